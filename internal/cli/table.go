package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/Adithya-Monish-Kumar-K/rankview/internal/render"
	"github.com/Adithya-Monish-Kumar-K/rankview/internal/viewer"
	apperrors "github.com/Adithya-Monish-Kumar-K/rankview/pkg/errors"
	"github.com/spf13/cobra"
)

// tableFrontend labels metrics and logs of one-shot renders.
const tableFrontend = "cli"

type tableOptions struct {
	snapshot int
	cutoff   int
	format   string
	variant  string
}

func newTableCommand(root *rootOptions) *cobra.Command {
	opts := &tableOptions{}
	cmd := &cobra.Command{
		Use:   "table",
		Short: "Render one snapshot as a table and exit",
		Example: `  rankview table --snapshot 2 --cutoff 1500
  rankview table -s 0 --format json --variant extended`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := root.setup(cmd.ErrOrStderr()); err != nil {
				return err
			}
			defer root.close()
			if !cmd.Flags().Changed("snapshot") {
				opts.snapshot = root.cfg.View.DefaultSnapshot
			}
			if !cmd.Flags().Changed("cutoff") {
				opts.cutoff = root.cfg.View.DefaultCutoff
			}
			if opts.variant != "" {
				root.cfg.View.Variant = opts.variant
			}
			return runTable(cmd, root, opts)
		},
	}
	cmd.Flags().IntVarP(&opts.snapshot, "snapshot", "s", 0, "snapshot slider position (default view.defaultSnapshot)")
	cmd.Flags().IntVar(&opts.cutoff, "cutoff", 0, "only show entries with more lists than this (default view.defaultCutoff)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "output format: text, html or json")
	cmd.Flags().StringVar(&opts.variant, "variant", "", "override view.variant (basic or extended)")
	return cmd
}

func runTable(cmd *cobra.Command, root *rootOptions, opts *tableOptions) error {
	switch opts.format {
	case "text", "html", "json":
	default:
		return fmt.Errorf("%w: format %q", apperrors.ErrInvalidInput, opts.format)
	}
	variant, err := render.ParseVariant(root.cfg.View.Variant)
	if err != nil {
		return err
	}
	b, err := newBackend(root.cfg, nil)
	if err != nil {
		return err
	}
	defer b.Close()

	if opts.snapshot < 0 || opts.snapshot >= b.store.Len() {
		return fmt.Errorf("%w: snapshot %d, have %d positions", apperrors.ErrInvalidInput, opts.snapshot, b.store.Len())
	}
	if view := root.cfg.View; !view.CutoffAllowed(opts.cutoff) {
		return fmt.Errorf("%w: cutoff %d must be in [%d,%d] in steps of %d",
			apperrors.ErrInvalidInput, opts.cutoff, view.CutoffMin, view.CutoffMax, max(view.CutoffStep, 1))
	}

	page := viewer.NewPage(b.store, root.cfg.View, viewer.Options{Variant: variant, Frontend: tableFrontend})
	out, err := page.Select(cmd.Context(), opts.snapshot, opts.cutoff)
	if err != nil {
		return err
	}
	return writeTable(cmd.OutOrStdout(), opts.format, page, out)
}

func writeTable(w io.Writer, format string, page *viewer.Page, out viewer.Outcome) error {
	view := page.Table.View()
	switch format {
	case "html":
		if err := render.WriteHTML(w, view.ID, view.Header, view.Rows); err != nil {
			return err
		}
		_, err := fmt.Fprintln(w)
		return err
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Snapshot      int          `json:"snapshot"`
			SnapshotValue int          `json:"snapshot_value"`
			Cutoff        int          `json:"cutoff"`
			Header        []string     `json:"header"`
			Rows          []render.Row `json:"rows"`
		}{out.Index, out.Value, out.Cutoff, view.Header, view.Rows})
	default:
		_, err := fmt.Fprintf(w, "Snapshot %s, more than %s lists: %d rows\n%s\n",
			page.SnapshotLabel.Text(), page.CutoffLabel.Text(), out.Rows, render.Text(view.Header, view.Rows))
		return err
	}
}
