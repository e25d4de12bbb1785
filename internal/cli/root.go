// Package cli wires the dataloop commands: the runloop itself and the
// offline content indexer.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/quarch/dataloop/internal/config"
)

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	Verbose    bool
	ConfigPath string

	cfg config.Config
}

// Config returns the configuration resolved during command setup.
func (o *RootOptions) Config() config.Config {
	return o.cfg
}

// NewRootCommand creates the dataloop root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "dataloop",
		Short: "Background data runloop for frontend transfers",
		Long: `dataloop drives cooperative background transfers: chunked file reads,
progressive image decodes and HTTP fetches, a bounded amount of work per
tick so nothing ever blocks.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if opts.Verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: level,
			})))

			if opts.ConfigPath == "" {
				opts.ConfigPath = os.Getenv("DATALOOP_CONFIG")
			}
			if opts.ConfigPath == "" {
				opts.cfg = config.Default()
				return nil
			}
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config (or $DATALOOP_CONFIG)")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewIndexCommand(opts))

	return cmd
}
