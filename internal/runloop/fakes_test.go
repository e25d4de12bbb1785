package runloop

import (
	"fmt"

	"github.com/quarch/dataloop/internal/overlay"
)

// fakeReader is a scripted FileReader: the transfer completes after a fixed
// number of Iterate substeps.
type fakeReader struct {
	data        []byte
	stepsNeeded int
	steps       int
	began       bool
	freed       bool
}

func (r *fakeReader) BeginRead() { r.began = true }

func (r *fakeReader) Iterate() bool {
	r.steps++
	return r.steps >= r.stepsNeeded
}

func (r *fakeReader) Ptr() []byte { return r.data }
func (r *fakeReader) Free()       { r.freed = true }

// fakeDecoder is a scripted ImageDecoder: a fixed number of chunk steps,
// fixed header flags, and a fixed number of processing steps before a
// terminal status.
type fakeDecoder struct {
	startOK bool

	chunks   int
	iterated int

	ihdr, idat, iend bool

	processSteps int
	processed    int
	terminal     ProcessStatus

	pix  []byte
	w, h int

	freed bool
}

func (d *fakeDecoder) Start(data []byte) bool { return d.startOK }

func (d *fakeDecoder) Iterate(b []byte) bool {
	if d.iterated >= d.chunks {
		return false
	}
	d.iterated++
	return true
}

func (d *fakeDecoder) ChunkSize() uint32 { return 0 }
func (d *fakeDecoder) HasIHDR() bool     { return d.ihdr }
func (d *fakeDecoder) HasIDAT() bool     { return d.idat }
func (d *fakeDecoder) HasIEND() bool     { return d.iend }

func (d *fakeDecoder) Process() ProcessStatus {
	if d.processed < d.processSteps {
		d.processed++
		return ProcessNext
	}
	return d.terminal
}

func (d *fakeDecoder) Image() ([]byte, int, int) { return d.pix, d.w, d.h }
func (d *fakeDecoder) Free()                     { d.freed = true }

// fakeConn is a scripted HTTPConnection.
type fakeConn struct {
	iteratesNeeded int
	iterates       int
	ok             bool
	freed          bool
}

func (c *fakeConn) Iterate() bool {
	c.iterates++
	return c.iterates >= c.iteratesNeeded
}

func (c *fakeConn) Done() bool {
	return c.iterates >= c.iteratesNeeded && c.ok
}

func (c *fakeConn) Free() { c.freed = true }

// fakeSession is a scripted HTTPSession.
type fakeSession struct {
	updatesNeeded int
	updates       int
	body          []byte
	ok            bool
	closed        bool
}

func (s *fakeSession) Update(pos, tot *int64) bool {
	s.updates++
	done := s.updates >= s.updatesNeeded
	if pos != nil {
		*pos = int64(s.updates)
	}
	if tot != nil {
		*tot = int64(s.updatesNeeded)
	}
	return done
}

func (s *fakeSession) Data() ([]byte, bool) {
	if !s.ok {
		return nil, false
	}
	return s.body, true
}

func (s *fakeSession) Close() { s.closed = true }

// fakeHTTPClient scripts one connection/session pair per URL.
type fakeHTTPClient struct {
	conns      map[string]*fakeConn
	sessions   map[string]*fakeSession
	sessionErr error
	lastURL    string
}

func (f *fakeHTTPClient) NewConnection(url string) (HTTPConnection, error) {
	c, ok := f.conns[url]
	if !ok {
		return nil, fmt.Errorf("no route to %s", url)
	}
	f.lastURL = url
	return c, nil
}

func (f *fakeHTTPClient) NewSession(conn HTTPConnection) (HTTPSession, error) {
	if f.sessionErr != nil {
		return nil, f.sessionErr
	}
	s, ok := f.sessions[f.lastURL]
	if !ok {
		return nil, fmt.Errorf("no session for %s", f.lastURL)
	}
	return s, nil
}

// fakeRenderer records uploaded backgrounds.
type fakeRenderer struct {
	uploads []Image
}

func (r *fakeRenderer) LoadBackground(img Image) {
	r.uploads = append(r.uploads, img)
}

// fakeUpdater records dispatched HTTP bodies.
type fakeUpdater struct {
	downloads [][]byte
	lists     [][]byte
}

func (u *fakeUpdater) Download(body []byte) error {
	u.downloads = append(u.downloads, body)
	return nil
}

func (u *fakeUpdater) List(body []byte) error {
	u.lists = append(u.lists, body)
	return nil
}

// fakeHost exposes one overlay to the driver.
type fakeHost struct {
	idle bool
	ov   *overlay.Overlay
}

func (h *fakeHost) Idle() bool                { return h.idle }
func (h *fakeHost) Overlay() *overlay.Overlay { return h.ov }

// fakeIndexWriter is a scripted IndexWriter.
type fakeIndexWriter struct {
	stepsLeft int
	steps     int
	blocking  bool
	freed     bool
}

func (w *fakeIndexWriter) Blocking() bool  { return w.blocking }
func (w *fakeIndexWriter) Iterating() bool { return w.stepsLeft > 0 }

func (w *fakeIndexWriter) Iterate() error {
	if w.stepsLeft > 0 {
		w.stepsLeft--
		w.steps++
	}
	return nil
}

func (w *fakeIndexWriter) Free() error {
	w.freed = true
	return nil
}

// openTable wires fakeReaders by path, counting opens.
type openTable struct {
	readers map[string][]*fakeReader
	opens   map[string]int
}

func newOpenTable() *openTable {
	return &openTable{
		readers: make(map[string][]*fakeReader),
		opens:   make(map[string]int),
	}
}

func (o *openTable) add(path string, r *fakeReader) {
	o.readers[path] = append(o.readers[path], r)
}

func (o *openTable) open(path string) (FileReader, error) {
	rs := o.readers[path]
	if len(rs) == 0 {
		return nil, fmt.Errorf("open %s: no such file", path)
	}
	r := rs[0]
	o.readers[path] = rs[1:]
	o.opens[path]++
	return r, nil
}
