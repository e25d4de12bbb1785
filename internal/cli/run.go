package cli

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/quarch/dataloop/internal/runloop"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions

	Files     []string
	Wallpaper string
	URLs      []string
}

// NewRunCommand creates the run command: post the requested transfers and
// tick the runloop until every lane drains.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the data runloop over the requested transfers",
		Long: `Run posts the requested transfers to the engine's lane queues and ticks
until all lanes are idle.

File and URL arguments may carry a completion tag after a pipe:

  dataloop run --file /tmp/data.bin
  dataloop run --wallpaper /tmp/background.png
  dataloop run --url 'http://buildbot/cores/index|cb_core_updater_list'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransfers(opts)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Files, "file", nil, "file to load (path[|tag])")
	cmd.Flags().StringVar(&opts.Wallpaper, "wallpaper", "", "PNG file to decode as the background")
	cmd.Flags().StringArrayVar(&opts.URLs, "url", nil, "URL to fetch (url[|tag])")

	return cmd
}

func runTransfers(opts *RunOptions) error {
	if len(opts.Files) == 0 && opts.Wallpaper == "" && len(opts.URLs) == 0 {
		return fmt.Errorf("nothing to do: pass --file, --wallpaper or --url")
	}

	cfg := opts.Config()
	eng := runloop.New(cfg, runloop.Deps{
		Renderer: &logRenderer{log: slog.Default()},
		Updater:  newDirUpdater(cfg.HTTP.DownloadDir, slog.Default()),
	})
	eng.Init()
	defer eng.Deinit()

	for _, f := range opts.Files {
		path, tag := splitArg(f)
		eng.Post(runloop.TypeFile, path, tag, 0, 1, false)
	}
	if opts.Wallpaper != "" {
		eng.Post(runloop.TypeImage, opts.Wallpaper, "cb_menu_wallpaper", 0, 180, true)
	}
	for _, u := range opts.URLs {
		url, tag := splitArg(u)
		eng.Post(runloop.TypeHTTP, url, tag, 0, 1, false)
	}

	// In threaded mode Iterate is a no-op and the worker drains the lanes
	// by itself; inline mode ticks here. Either way this loop ends when
	// every lane is idle.
	for eng.Busy() {
		eng.Iterate()
		time.Sleep(time.Millisecond)
	}

	slog.Info("all transfers drained")
	return nil
}

func splitArg(arg string) (primary, tag string) {
	if i := strings.IndexByte(arg, '|'); i >= 0 {
		return arg[:i], arg[i+1:]
	}
	return arg, ""
}
