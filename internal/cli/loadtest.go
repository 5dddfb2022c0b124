package cli

import (
	"fmt"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/rankview/internal/loadtest"
	"github.com/spf13/cobra"
)

func newLoadtestCommand(root *rootOptions) *cobra.Command {
	cfg := loadtest.Config{}
	cmd := &cobra.Command{
		Use:     "loadtest",
		Short:   "Hammer a running server with table requests",
		Example: `  rankview loadtest --url http://localhost:8080 --concurrency 20 --duration 1m`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := root.setup(cmd.ErrOrStderr()); err != nil {
				return err
			}
			defer root.close()
			view := root.cfg.View
			cfg.CutoffMin, cfg.CutoffMax, cfg.CutoffStep = view.CutoffMin, view.CutoffMax, view.CutoffStep

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Target:      %s\n", cfg.BaseURL)
			fmt.Fprintf(out, "Concurrency: %d\n", cfg.Concurrency)
			fmt.Fprintf(out, "Duration:    %s\n\n", cfg.Duration)

			client := &http.Client{
				Timeout: 10 * time.Second,
				Transport: &http.Transport{
					MaxIdleConnsPerHost: cfg.Concurrency * 2,
					IdleConnTimeout:     90 * time.Second,
				},
			}
			defer client.CloseIdleConnections()
			rep, err := loadtest.Run(cmd.Context(), client, cfg)
			if err != nil {
				return err
			}
			rep.Write(out)
			if rep.Total == 0 {
				return fmt.Errorf("no requests completed")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&cfg.BaseURL, "url", "http://localhost:8080", "base URL of the rankview server")
	cmd.Flags().IntVar(&cfg.Concurrency, "concurrency", 10, "number of concurrent workers")
	cmd.Flags().DurationVar(&cfg.Duration, "duration", 30*time.Second, "test duration")
	return cmd
}
