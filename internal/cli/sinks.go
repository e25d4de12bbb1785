package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/quarch/dataloop/internal/runloop"
)

// logRenderer stands in for the menu's texture uploader: it reports the
// decoded wallpaper and lets the buffer go.
type logRenderer struct {
	log *slog.Logger
}

func (r *logRenderer) LoadBackground(img runloop.Image) {
	r.log.Info("wallpaper decoded",
		"width", img.Width, "height", img.Height, "bytes", len(img.Pixels))
}

// dirUpdater is the production core-updater sink pair: downloaded bodies
// are written under a directory, list bodies are reported.
type dirUpdater struct {
	dir string
	log *slog.Logger
	seq int
}

func newDirUpdater(dir string, log *slog.Logger) *dirUpdater {
	return &dirUpdater{dir: dir, log: log}
}

func (u *dirUpdater) Download(body []byte) error {
	if err := os.MkdirAll(u.dir, 0o755); err != nil {
		return fmt.Errorf("create download dir: %w", err)
	}

	u.seq++
	path := filepath.Join(u.dir, fmt.Sprintf("download-%03d.bin", u.seq))
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("write download: %w", err)
	}

	u.log.Info("core downloaded", "path", path, "bytes", len(body))
	return nil
}

func (u *dirUpdater) List(body []byte) error {
	u.log.Info("core list received", "bytes", len(body))
	return nil
}
