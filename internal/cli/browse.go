package cli

import (
	"io"

	"github.com/Adithya-Monish-Kumar-K/rankview/internal/render"
	"github.com/Adithya-Monish-Kumar-K/rankview/internal/tui"
	"github.com/Adithya-Monish-Kumar-K/rankview/internal/viewer"
	"github.com/spf13/cobra"
)

func newBrowseCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "browse",
		Short: "Browse snapshots interactively in the terminal",
		Long: `browse shows both sliders and the table in the terminal.

tab switches between the snapshot and cutoff sliders, left and right move the
focused slider, up and down scroll the table, q quits. Logs go to
logging.file only.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := root.setup(io.Discard); err != nil {
				return err
			}
			defer root.close()
			variant, err := render.ParseVariant(root.cfg.View.Variant)
			if err != nil {
				return err
			}
			b, err := newBackend(root.cfg, nil)
			if err != nil {
				return err
			}
			defer b.Close()

			page := viewer.NewPage(b.store, root.cfg.View, viewer.Options{Variant: variant, Frontend: tui.Frontend})
			return tui.Run(cmd.Context(), page)
		},
	}
}
