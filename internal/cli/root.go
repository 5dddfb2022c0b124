// Package cli defines the rankview command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/rankview/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/rankview/pkg/logger"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	logLevel   string
	cfg        *config.Config
	closeLog   func() error
}

// NewRootCommand builds the rankview command with its subcommands.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "rankview",
		Short: "Browse MyAnimeList ranking snapshots",
		Long: `rankview serves and renders rankings computed from MyAnimeList user lists.

A ranking snapshot is a static JSON file pre-filtered by a minimum number of
lists. rankview joins a snapshot with anime metadata and shows it as a table
that can be narrowed further with a list-count cutoff.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file (defaults are used when empty)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")

	cmd.AddCommand(
		newServeCommand(opts),
		newTableCommand(opts),
		newBrowseCommand(opts),
		newLoadtestCommand(opts),
	)
	return cmd
}

// setup loads the config and installs the default logger writing to w.
func (o *rootOptions) setup(w io.Writer) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	closeLog, err := logger.SetupWriter(w, cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	if err != nil {
		return err
	}
	o.cfg = cfg
	o.closeLog = closeLog
	return nil
}

// close releases what setup opened.
func (o *rootOptions) close() {
	if o.closeLog != nil {
		o.closeLog()
		o.closeLog = nil
	}
}

// Execute runs the command tree and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
