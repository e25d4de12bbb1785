package runloop

import "github.com/quarch/dataloop/internal/overlay"

// overlayIterate steps the host's deferred overlay loader. The driver owns
// no state: it only dispatches on the loader's status. Skipped entirely
// while the host is idle.
func (e *Engine) overlayIterate() {
	host := e.deps.Host
	if host == nil || host.Idle() {
		return
	}
	o := host.Overlay()
	if o == nil {
		return
	}

	switch o.Status() {
	case overlay.StatusNone, overlay.StatusAlive:
	case overlay.StatusDeferredLoad:
		o.LoadOverlays()
	case overlay.StatusDeferredLoading:
		o.LoadOverlaysIterate()
	case overlay.StatusDeferredLoadingResolve:
		o.LoadOverlaysResolveIterate()
	case overlay.StatusDeferredDone:
		o.NewDone()
	case overlay.StatusDeferredError:
		if err := o.Err(); err != nil {
			e.log.Error("overlay load failed", "error", err)
		}
		o.Free()
	}
}

// dbIterate steps the content index writer: one entry per tick while it is
// iterating, freed and cleared once it stops.
func (e *Engine) dbIterate() {
	w := e.rdl
	if w == nil {
		return
	}
	if w.Blocking() {
		return
	}

	if !w.Iterating() {
		if err := w.Free(); err != nil {
			e.log.Error("close content index", "error", err)
		}
		e.rdl = nil
		return
	}

	if err := w.Iterate(); err != nil {
		e.log.Warn("content index entry skipped", "error", err)
	}
}
