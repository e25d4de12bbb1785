package runloop

import (
	"github.com/google/uuid"

	"github.com/quarch/dataloop/internal/msgqueue"
)

// bodySink selects where a completed HTTP body is delivered. Tags exist
// only at the queue boundary; an unknown tag drops the body.
type bodySink int

const (
	sinkNone bodySink = iota
	sinkCoreUpdaterDownload
	sinkCoreUpdaterList
)

const (
	tagCoreUpdaterDownload = "cb_core_updater_download"
	tagCoreUpdaterList     = "cb_core_updater_list"
)

func sinkFromTag(tag string) bodySink {
	switch tag {
	case tagCoreUpdaterDownload:
		return sinkCoreUpdaterDownload
	case tagCoreUpdaterList:
		return sinkCoreUpdaterList
	default:
		return sinkNone
	}
}

// httpState is the HTTP lane: a two-phase transfer, connection handshake
// then body session, one at a time.
type httpState struct {
	queue *msgqueue.Queue

	conn struct {
		handle HTTPConnection
		cb     func(*Engine) error
		tag    string
	}

	handle HTTPSession
	sink   bodySink

	url        string
	transferID string
}

// httpIterate advances the HTTP lane by one tick.
func (e *Engine) httpIterate() {
	h := &e.http

	if h.conn.handle != nil {
		if e.httpConnIterateTransfer() == 0 {
			e.httpConnIterateTransferParse()
		}
	}

	if h.handle != nil {
		if e.httpIterateTransfer() == 0 {
			e.httpIterateTransferParse()
		}
	} else {
		e.httpIteratePoll()
	}
}

// httpIteratePoll starts the next queued URL. While a handshake or a
// transfer is active the command stays queued.
func (e *Engine) httpIteratePoll() {
	h := &e.http
	if h.queue == nil || h.handle != nil || h.conn.handle != nil {
		return
	}

	msg, ok := h.queue.Pull()
	if !ok {
		return
	}
	url, tag := splitCommand(msg)

	conn, err := e.deps.HTTP.NewConnection(url)
	if err != nil {
		e.log.Error("could not create HTTP connection",
			"url", url, "error", err)
		return
	}

	h.conn.handle = conn
	h.conn.cb = (*Engine).httpConnDefault
	h.conn.tag = tag
	h.url = url
	h.transferID = uuid.NewString()

	e.log.Debug("http transfer started",
		"transfer", h.transferID, "url", url)
}

func (e *Engine) httpConnIterateTransfer() int {
	if !e.http.conn.handle.Iterate() {
		return -1
	}
	return 0
}

// httpConnIterateTransferParse runs the connection callback on success and
// frees the connection either way.
func (e *Engine) httpConnIterateTransferParse() {
	h := &e.http

	if h.conn.handle.Done() {
		if h.conn.cb != nil {
			if err := h.conn.cb(e); err != nil {
				e.log.Error("could not create HTTP session",
					"transfer", h.transferID, "url", h.url, "error", err)
			}
		}
	} else {
		e.log.Error("HTTP connection failed",
			"transfer", h.transferID, "url", h.url)
	}

	h.conn.handle.Free()
	h.conn.handle = nil
	h.conn.cb = nil
}

// httpConnDefault promotes a completed connection to a body session and
// selects the body sink from the command's tag.
func (e *Engine) httpConnDefault() error {
	h := &e.http

	sess, err := e.deps.HTTP.NewSession(h.conn.handle)
	if err != nil {
		return err
	}
	h.handle = sess
	h.sink = sinkFromTag(h.conn.tag)
	return nil
}

// httpIterateTransfer runs one transport step, logging byte progress while
// the body is in flight.
func (e *Engine) httpIterateTransfer() int {
	h := &e.http

	var pos, tot int64
	if !h.handle.Update(&pos, &tot) {
		if e.progress.Allow() {
			e.log.Info("http transfer progress",
				"transfer", h.transferID,
				"bytes", e.printer.Sprintf("%d / %d", pos, tot))
		}
		return -1
	}
	return 0
}

// httpIterateTransferParse delivers the body to its sink, frees the
// session and sheds stale queued duplicates.
func (e *Engine) httpIterateTransferParse() {
	h := &e.http

	if data, ok := h.handle.Data(); ok {
		e.dispatchBody(data)
	} else {
		e.log.Error("HTTP transfer failed",
			"transfer", h.transferID, "url", h.url)
	}

	h.handle.Close()
	h.handle = nil
	h.sink = sinkNone
	h.queue.Clear()
}

func (e *Engine) dispatchBody(data []byte) {
	h := &e.http

	switch h.sink {
	case sinkCoreUpdaterDownload:
		if e.deps.Updater == nil {
			return
		}
		if err := e.deps.Updater.Download(data); err != nil {
			e.log.Error("core download failed",
				"transfer", h.transferID, "url", h.url, "error", err)
		}
	case sinkCoreUpdaterList:
		if e.deps.Updater == nil {
			return
		}
		if err := e.deps.Updater.List(data); err != nil {
			e.log.Error("core list failed",
				"transfer", h.transferID, "url", h.url, "error", err)
		}
	default:
		// No sink selected: the body is dropped.
	}
}
