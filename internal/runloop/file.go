package runloop

import (
	"github.com/google/uuid"

	"github.com/quarch/dataloop/internal/msgqueue"
)

// fileCompletion selects what happens to the bytes once a file transfer
// finishes. Tags exist only at the queue boundary; internally the callback
// is this closed set.
type fileCompletion int

const (
	// completionDefault drops the bytes; the task is freed next tick.
	completionDefault fileCompletion = iota
	// completionMenuWallpaper bridges the bytes to the image sub-lane.
	completionMenuWallpaper
)

const tagMenuWallpaper = "cb_menu_wallpaper"

func completionFromTag(tag string) fileCompletion {
	if tag == tagMenuWallpaper {
		return completionMenuWallpaper
	}
	return completionDefault
}

// fileState is the file lane: one non-blocking read at a time.
type fileState struct {
	queue *msgqueue.Queue

	handle     FileReader
	isBlocking bool
	isFinished bool
	cb         fileCompletion

	posIncrement int
	frameCount   uint64

	path       string
	transferID string

	image imageState
}

// nbioIterate advances the file lane and its image sub-lane by one tick.
func (e *Engine) nbioIterate() {
	n := &e.nbio

	if n.handle != nil {
		switch {
		case !n.isBlocking:
			if e.nbioIterateTransfer() == -1 {
				e.nbioIterateParse()
			}
		case n.isFinished:
			e.nbioIterateParseFree()
		}
	} else {
		e.nbioIteratePoll()
	}

	img := &n.image
	if img.handle != nil {
		switch {
		case img.isBlockingOnProcessing:
			if e.imageIterateProcessTransfer() == -1 {
				e.imageIterateProcessTransferParse()
			}
		case !img.isBlocking:
			if e.imageIterateTransfer() == -1 {
				e.imageIterateTransferParse()
			}
		case img.isFinished:
			e.imageIterateParseFree()
		}
	} else {
		e.imageIteratePoll()
	}
}

// nbioIteratePoll starts the next queued file transfer. While a transfer is
// active the command stays queued and is picked up after the free.
func (e *Engine) nbioIteratePoll() {
	n := &e.nbio
	if n.queue == nil || n.handle != nil {
		return
	}

	msg, ok := n.queue.Pull()
	if !ok {
		return
	}
	path, tag := splitCommand(msg)

	handle, err := e.deps.OpenFile(path)
	if err != nil {
		e.log.Error("could not create file loading handle",
			"path", path, "error", err)
		return
	}

	n.handle = handle
	n.isBlocking = false
	n.isFinished = false
	n.cb = completionFromTag(tag)
	n.path = path
	n.transferID = uuid.NewString()

	handle.BeginRead()
	e.log.Debug("file transfer started",
		"transfer", n.transferID, "path", path)
}

// nbioIterateTransfer runs the per-tick read budget. Returns -1 once the
// primitive signals completion, which flips the lane to parsing.
func (e *Engine) nbioIterateTransfer() int {
	n := &e.nbio
	n.posIncrement = e.cfg.NbioStepsPerTick

	if n.isFinished {
		return 0
	}
	for i := 0; i < n.posIncrement; i++ {
		if n.handle.Iterate() {
			return -1
		}
	}
	n.frameCount++
	return 0
}

// nbioIterateParse runs the transfer's completion callback.
func (e *Engine) nbioIterateParse() {
	n := &e.nbio

	switch n.cb {
	case completionMenuWallpaper:
		e.bridgeWallpaper()
	default:
		n.isBlocking = true
		n.isFinished = true
	}

	e.log.Debug("file transfer complete",
		"transfer", n.transferID, "path", n.path, "frames", n.frameCount)
}

// nbioIterateParseFree releases the finished transfer; the lane is idle on
// the next tick.
func (e *Engine) nbioIterateParseFree() {
	n := &e.nbio
	if !n.isFinished {
		return
	}

	n.handle.Free()
	n.handle = nil
	n.isBlocking = false
	n.isFinished = false
	n.frameCount = 0
	n.path = ""
	n.transferID = ""
}
