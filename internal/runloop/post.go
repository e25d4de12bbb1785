package runloop

import (
	"strings"

	"github.com/quarch/dataloop/internal/msgqueue"
)

// Type routes a posted command to a lane queue.
type Type int

const (
	// TypeNone is accepted and ignored.
	TypeNone Type = iota
	// TypeFile targets the file lane.
	TypeFile
	// TypeImage targets the image sub-lane.
	TypeImage
	// TypeHTTP targets the HTTP lane.
	TypeHTTP
	// TypeOverlay is accepted and ignored: the overlay driver has no queue.
	TypeOverlay
)

func (t Type) String() string {
	switch t {
	case TypeFile:
		return "file"
	case TypeImage:
		return "image"
	case TypeHTTP:
		return "http"
	case TypeOverlay:
		return "overlay"
	default:
		return "none"
	}
}

// InitQueues creates the lane queues if they do not exist yet. Post calls
// this itself; it is exposed for hosts that want the queues up front.
func (e *Engine) InitQueues() {
	e.mu.Lock()
	e.initQueues()
	e.mu.Unlock()
}

func (e *Engine) initQueues() {
	if e.nbio.queue == nil {
		e.nbio.queue = msgqueue.New(e.cfg.QueueCapacity)
	}
	if e.nbio.image.queue == nil {
		e.nbio.image.queue = msgqueue.New(e.cfg.QueueCapacity)
	}
	if e.http.queue == nil {
		e.http.queue = msgqueue.New(e.cfg.QueueCapacity)
	}
}

// Post enqueues a command for a lane. msg carries the primary argument
// (path or URL), msg2 an optional completion tag; they are joined as
// "msg|msg2". flush clears the target queue first. Safe from any goroutine
// in both concurrency modes.
func (e *Engine) Post(t Type, msg, msg2 string, priority, duration uint, flush bool) {
	e.mu.Lock()
	e.initQueues()

	var q *msgqueue.Queue
	switch t {
	case TypeFile:
		q = e.nbio.queue
	case TypeImage:
		q = e.nbio.image.queue
	case TypeHTTP:
		q = e.http.queue
	}
	e.mu.Unlock()

	if q == nil {
		return
	}

	joined := msg
	if msg2 != "" {
		joined = msg + "|" + msg2
	}

	if flush {
		q.Clear()
	}
	if !q.Push(joined, priority, duration) {
		e.log.Warn("lane queue full, command dropped",
			"lane", t.String(), "command", joined)
	}
}

// splitCommand separates a queued "primary|tag" command. A command without
// a tag yields an empty tag.
func splitCommand(msg string) (primary, tag string) {
	parts := strings.Split(msg, "|")
	primary = parts[0]
	if len(parts) > 1 {
		tag = parts[1]
	}
	return primary, tag
}
