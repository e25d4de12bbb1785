package runloop

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarch/dataloop/internal/config"
	"github.com/quarch/dataloop/internal/overlay"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(cfg config.Config, deps Deps) *Engine {
	if deps.Logger == nil {
		deps.Logger = quietLogger()
	}
	e := New(cfg, deps)
	e.Init()
	return e
}

func ticks(e *Engine, n int) {
	for i := 0; i < n; i++ {
		e.Iterate()
	}
}

func runUntilIdle(t *testing.T, e *Engine) int {
	t.Helper()
	for i := 0; i < 200; i++ {
		if !e.Busy() {
			return i
		}
		e.Iterate()
	}
	t.Fatal("engine did not go idle")
	return 0
}

func TestInit_Idempotent(t *testing.T) {
	tbl := newOpenTable()
	e := newTestEngine(config.Default(), Deps{OpenFile: tbl.open})

	e.Post(TypeFile, "/tmp/x.bin", "", 0, 1, false)
	e.Init()

	assert.True(t, e.Busy(), "second Init must not reset queued commands")
}

func TestDeinit_WithoutInit(t *testing.T) {
	e := New(config.Default(), Deps{Logger: quietLogger()})
	e.Deinit()
	assert.False(t, e.Busy())
}

func TestClearState_ReleasesActiveTransfer(t *testing.T) {
	tbl := newOpenTable()
	reader := &fakeReader{stepsNeeded: 100}
	tbl.add("/tmp/x.bin", reader)

	e := newTestEngine(config.Default(), Deps{OpenFile: tbl.open})
	e.Post(TypeFile, "/tmp/x.bin", "", 0, 1, false)
	ticks(e, 3)
	require.NotNil(t, e.nbio.handle, "transfer should be in flight")

	e.ClearState()

	assert.True(t, reader.freed, "clear_state frees the in-flight handle")
	assert.False(t, e.Busy())

	// The reset engine processes new commands like a fresh one.
	tbl.add("/tmp/y.bin", &fakeReader{stepsNeeded: 1})
	e.Post(TypeFile, "/tmp/y.bin", "", 0, 1, false)
	runUntilIdle(t, e)
	assert.Equal(t, 1, tbl.opens["/tmp/y.bin"])
}

func TestPost_NoneAndOverlayIgnored(t *testing.T) {
	e := newTestEngine(config.Default(), Deps{OpenFile: newOpenTable().open})

	e.Post(TypeNone, "ignored", "", 0, 1, false)
	e.Post(TypeOverlay, "ignored", "", 0, 1, false)

	assert.False(t, e.Busy())
}

func TestPost_OverflowDropsNinthCommand(t *testing.T) {
	tbl := newOpenTable()
	e := newTestEngine(config.Default(), Deps{OpenFile: tbl.open})

	for i := 0; i < 9; i++ {
		e.Post(TypeFile, "/tmp/x.bin", "", 0, 1, false)
	}

	assert.Equal(t, 8, e.nbio.queue.Len(), "ninth command is dropped")
}

func TestPost_FlushProcessesOnce(t *testing.T) {
	tbl := newOpenTable()
	tbl.add("/tmp/x.bin", &fakeReader{stepsNeeded: 1})
	tbl.add("/tmp/x.bin", &fakeReader{stepsNeeded: 1})

	e := newTestEngine(config.Default(), Deps{OpenFile: tbl.open})
	e.Post(TypeFile, "/tmp/x.bin", "", 0, 1, true)
	e.Post(TypeFile, "/tmp/x.bin", "", 0, 1, true)

	runUntilIdle(t, e)
	assert.Equal(t, 1, tbl.opens["/tmp/x.bin"], "flushed duplicate posts run once")
}

func TestWorkerMode_IterateIsNoopAndWorkStillRuns(t *testing.T) {
	tbl := newOpenTable()
	reader := &fakeReader{stepsNeeded: 12}
	tbl.add("/tmp/x.bin", reader)

	cfg := config.Default()
	cfg.ThreadedRunloop = true
	e := newTestEngine(cfg, Deps{OpenFile: tbl.open})
	defer e.Deinit()

	e.Post(TypeFile, "/tmp/x.bin", "", 0, 1, false)

	// The worker owns the loop; inline ticks are no-ops but harmless.
	e.Iterate()

	require.Eventually(t, func() bool { return !e.Busy() },
		5*time.Second, time.Millisecond)

	e.Deinit()
	assert.True(t, reader.began)
	assert.True(t, reader.freed)
	assert.Equal(t, 1, tbl.opens["/tmp/x.bin"])
}

func TestWorkerMode_DeinitJoins(t *testing.T) {
	cfg := config.Default()
	cfg.ThreadedRunloop = true
	e := newTestEngine(cfg, Deps{OpenFile: newOpenTable().open})

	e.Deinit()
	e.Deinit()

	// Re-initializing restarts a fresh worker; a second teardown joins it.
	e.Init()
	e.Deinit()
	assert.False(t, e.Busy())
}

func TestOverlayDriver_WalksDeferredLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pad.cfg")
	require.NoError(t, os.WriteFile(path, []byte("overlay"), 0o644))

	host := &fakeHost{ov: overlay.New([]string{path})}
	e := newTestEngine(config.Default(), Deps{
		OpenFile: newOpenTable().open,
		Host:     host,
	})

	// load -> loading -> resolve -> done -> alive, one step per tick.
	ticks(e, 1)
	assert.Equal(t, overlay.StatusDeferredLoading, host.ov.Status())
	ticks(e, 1)
	assert.Equal(t, overlay.StatusDeferredLoadingResolve, host.ov.Status())
	ticks(e, 1)
	assert.Equal(t, overlay.StatusDeferredDone, host.ov.Status())
	ticks(e, 1)
	assert.Equal(t, overlay.StatusAlive, host.ov.Status())
}

func TestOverlayDriver_SkippedWhileHostIdle(t *testing.T) {
	host := &fakeHost{idle: true, ov: overlay.New([]string{"unused"})}
	e := newTestEngine(config.Default(), Deps{
		OpenFile: newOpenTable().open,
		Host:     host,
	})

	ticks(e, 5)
	assert.Equal(t, overlay.StatusDeferredLoad, host.ov.Status())
}

func TestDBDriver_StepsThenFrees(t *testing.T) {
	w := &fakeIndexWriter{stepsLeft: 3}
	e := newTestEngine(config.Default(), Deps{OpenFile: newOpenTable().open})
	e.SetIndexWriter(w)

	ticks(e, 3)
	assert.Equal(t, 3, w.steps, "one index entry per tick")
	assert.False(t, w.freed)

	ticks(e, 1)
	assert.True(t, w.freed, "exhausted writer is freed and cleared")
	assert.False(t, e.Busy())
}

func TestDBDriver_BlockedWriterNotStepped(t *testing.T) {
	w := &fakeIndexWriter{stepsLeft: 3, blocking: true}
	e := newTestEngine(config.Default(), Deps{OpenFile: newOpenTable().open})
	e.SetIndexWriter(w)

	ticks(e, 5)
	assert.Equal(t, 0, w.steps)
	assert.False(t, w.freed)
}

func TestStepBudget_Boundaries(t *testing.T) {
	assert.Equal(t, 1, stepBudget(0, 2))
	assert.Equal(t, 1, stepBudget(1, 2))
	assert.Equal(t, 1, stepBudget(3, 4))
	assert.Equal(t, 4, stepBudget(8, 2))
	assert.Equal(t, 2, stepBudget(8, 4))
	assert.Equal(t, 5, stepBudget(5, 0), "degenerate divisor falls back to 1")
}
