// Package overlay implements the deferred input-overlay loader whose state
// machine the data runloop steps once per tick.
//
// Loading is deliberately spread across ticks: each driver call performs one
// step (load one descriptor, resolve one target) and advances the status
// field the runloop dispatches on.
package overlay

import (
	"fmt"
	"os"
	"path/filepath"
)

// Status is the externally visible loader state.
type Status int

const (
	// StatusNone means no overlay is configured.
	StatusNone Status = iota
	// StatusAlive means the overlay is loaded and active.
	StatusAlive
	// StatusDeferredLoad means loading has been requested but not started.
	StatusDeferredLoad
	// StatusDeferredLoading means descriptors are being loaded one per step.
	StatusDeferredLoading
	// StatusDeferredLoadingResolve means loaded descriptors are being resolved.
	StatusDeferredLoadingResolve
	// StatusDeferredDone means loading finished and awaits activation.
	StatusDeferredDone
	// StatusDeferredError means loading failed; the driver frees the overlay.
	StatusDeferredError
)

// Descriptor is one loaded overlay image reference.
type Descriptor struct {
	Name      string
	ImagePath string
	Size      int64
}

// Overlay is a deferred-loading overlay set.
type Overlay struct {
	status  Status
	pending []string
	loaded  []Descriptor
	resolve int
	err     error
}

// New creates an overlay set that will load the given descriptor paths.
func New(paths []string) *Overlay {
	return &Overlay{
		status:  StatusDeferredLoad,
		pending: append([]string(nil), paths...),
	}
}

// Status returns the current loader state.
func (o *Overlay) Status() Status {
	return o.status
}

// Err reports the load failure, if any.
func (o *Overlay) Err() error {
	return o.err
}

// Descriptors returns the loaded descriptors.
func (o *Overlay) Descriptors() []Descriptor {
	return o.loaded
}

// LoadOverlays begins a deferred load.
func (o *Overlay) LoadOverlays() {
	if len(o.pending) == 0 {
		o.fail(fmt.Errorf("no overlay descriptors configured"))
		return
	}
	o.status = StatusDeferredLoading
}

// LoadOverlaysIterate loads the next descriptor.
func (o *Overlay) LoadOverlaysIterate() {
	if len(o.loaded) >= len(o.pending) {
		o.status = StatusDeferredLoadingResolve
		return
	}

	path := o.pending[len(o.loaded)]
	fi, err := os.Stat(path)
	if err != nil {
		o.fail(fmt.Errorf("overlay descriptor %s: %w", path, err))
		return
	}
	o.loaded = append(o.loaded, Descriptor{
		Name:      fi.Name(),
		ImagePath: path,
		Size:      fi.Size(),
	})

	if len(o.loaded) == len(o.pending) {
		o.status = StatusDeferredLoadingResolve
	}
}

// LoadOverlaysResolveIterate resolves the next loaded descriptor.
func (o *Overlay) LoadOverlaysResolveIterate() {
	if o.resolve >= len(o.loaded) {
		o.status = StatusDeferredDone
		return
	}

	abs, err := filepath.Abs(o.loaded[o.resolve].ImagePath)
	if err != nil {
		o.fail(fmt.Errorf("resolve overlay %s: %w", o.loaded[o.resolve].ImagePath, err))
		return
	}
	o.loaded[o.resolve].ImagePath = abs
	o.resolve++

	if o.resolve == len(o.loaded) {
		o.status = StatusDeferredDone
	}
}

// NewDone activates the loaded overlay set.
func (o *Overlay) NewDone() {
	o.status = StatusAlive
}

// Free drops all loader state.
func (o *Overlay) Free() {
	o.status = StatusNone
	o.pending = nil
	o.loaded = nil
	o.resolve = 0
}

func (o *Overlay) fail(err error) {
	o.err = err
	o.status = StatusDeferredError
}
