package cli

import (
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/quarch/dataloop/internal/dbindex"
	"github.com/quarch/dataloop/internal/runloop"
)

// IndexOptions holds flags for the index command.
type IndexOptions struct {
	*RootOptions
	Database string
}

// NewIndexCommand creates the index command: scan content directories into
// the SQLite index, one entry per runloop tick.
func NewIndexCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IndexOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "index <content-dir>...",
		Short: "Write the offline content index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the index database (defaults to config)")

	return cmd
}

func runIndex(opts *IndexOptions, dirs []string) error {
	cfg := opts.Config()

	dbPath := opts.Database
	if dbPath == "" {
		dbPath = cfg.Index.DatabasePath
	}

	var paths []string
	for _, dir := range dirs {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.Type().IsRegular() {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("scan %s: %w", dir, err)
		}
	}

	writer, err := dbindex.NewWriter(dbPath, paths)
	if err != nil {
		return err
	}

	eng := runloop.New(cfg, runloop.Deps{})
	eng.Init()
	defer eng.Deinit()

	// The DB driver steps the writer once per tick and frees it when the
	// scan is exhausted.
	eng.SetIndexWriter(writer)
	for eng.Busy() {
		eng.Iterate()
		time.Sleep(time.Millisecond)
	}

	slog.Info("content index written",
		"db", dbPath, "entries", writer.Indexed(), "scanned", len(paths))
	return nil
}
