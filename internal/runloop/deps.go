package runloop

import (
	"log/slog"

	"github.com/quarch/dataloop/internal/httpclient"
	"github.com/quarch/dataloop/internal/nbio"
	"github.com/quarch/dataloop/internal/overlay"
	"github.com/quarch/dataloop/internal/pngdec"
)

// FileReader is the non-blocking file read primitive the file lane drives.
type FileReader interface {
	BeginRead()
	// Iterate performs one read substep; true means the transfer is over.
	Iterate() bool
	// Ptr returns the bytes read so far; complete once Iterate reports done.
	Ptr() []byte
	Free()
}

// ProcessStatus is the image decoder's per-step processing result.
type ProcessStatus int

const (
	// ProcessNext means more processing steps remain.
	ProcessNext ProcessStatus = iota
	// ProcessDone means the pixel buffer is complete.
	ProcessDone
	// ProcessError means the image data is invalid.
	ProcessError
	// ProcessErrorEnd means the pixel stream ended prematurely.
	ProcessErrorEnd
)

// ImageDecoder is the progressive image decoder the image sub-lane drives.
// The lane lends it the file buffer and advances the read cursor itself,
// one chunk (length + type + data + CRC) per Iterate.
type ImageDecoder interface {
	Start(data []byte) bool
	Iterate(b []byte) bool
	ChunkSize() uint32
	HasIHDR() bool
	HasIDAT() bool
	HasIEND() bool
	Process() ProcessStatus
	Image() (pix []byte, width, height int)
	Free()
}

// HTTPConnection is an in-progress connection handshake.
type HTTPConnection interface {
	// Iterate reports whether the handshake has settled.
	Iterate() bool
	// Done reports whether the connection was established.
	Done() bool
	Free()
}

// HTTPSession is an in-progress body transfer.
type HTTPSession interface {
	Update(pos, tot *int64) bool
	Data() ([]byte, bool)
	Close()
}

// HTTPClient creates connections and promotes them to sessions.
type HTTPClient interface {
	NewConnection(url string) (HTTPConnection, error)
	NewSession(conn HTTPConnection) (HTTPSession, error)
}

// Image is a decoded RGBA buffer handed to the renderer.
type Image struct {
	Pixels []byte
	Width  int
	Height int
}

// Renderer receives decoded wallpaper images.
type Renderer interface {
	LoadBackground(img Image)
}

// CoreUpdater receives HTTP bodies dispatched by completion tag.
type CoreUpdater interface {
	Download(body []byte) error
	List(body []byte) error
}

// IndexWriter is the offline content indexer the DB driver steps.
type IndexWriter interface {
	Blocking() bool
	Iterating() bool
	Iterate() error
	Free() error
}

// OverlayHost exposes the host's overlay, if any. The driver is skipped
// entirely while the host reports idle.
type OverlayHost interface {
	Idle() bool
	Overlay() *overlay.Overlay
}

// Deps are the engine's external collaborators. Zero fields are filled with
// the production implementations (nbio, pngdec, httpclient); Renderer,
// Updater and Host may stay nil, in which case their results are dropped.
type Deps struct {
	OpenFile   func(path string) (FileReader, error)
	NewDecoder func() ImageDecoder
	HTTP       HTTPClient
	Renderer   Renderer
	Updater    CoreUpdater
	Host       OverlayHost
	Logger     *slog.Logger
}

func (d *Deps) fillDefaults() {
	if d.OpenFile == nil {
		d.OpenFile = func(path string) (FileReader, error) {
			r, err := nbio.Open(path)
			if err != nil {
				return nil, err
			}
			return r, nil
		}
	}
	if d.NewDecoder == nil {
		d.NewDecoder = func() ImageDecoder {
			return &pngDecoder{dec: pngdec.New()}
		}
	}
	if d.HTTP == nil {
		d.HTTP = netHTTPClient{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
}

// pngDecoder adapts pngdec.Decoder to the lane contract.
type pngDecoder struct {
	dec *pngdec.Decoder
}

func (p *pngDecoder) Start(data []byte) bool { return p.dec.Start(data) }
func (p *pngDecoder) Iterate(b []byte) bool  { return p.dec.Iterate(b) }
func (p *pngDecoder) ChunkSize() uint32      { return p.dec.ChunkSize() }
func (p *pngDecoder) HasIHDR() bool          { return p.dec.HasIHDR() }
func (p *pngDecoder) HasIDAT() bool          { return p.dec.HasIDAT() }
func (p *pngDecoder) HasIEND() bool          { return p.dec.HasIEND() }
func (p *pngDecoder) Free()                  { p.dec.Free() }

func (p *pngDecoder) Process() ProcessStatus {
	switch p.dec.Process() {
	case pngdec.ProcessNext:
		return ProcessNext
	case pngdec.ProcessDone:
		return ProcessDone
	case pngdec.ProcessErrorEnd:
		return ProcessErrorEnd
	default:
		return ProcessError
	}
}

func (p *pngDecoder) Image() ([]byte, int, int) {
	return p.dec.Image()
}

// netHTTPClient adapts the httpclient package to the lane contract.
type netHTTPClient struct{}

type netConnection struct {
	conn *httpclient.Connection
}

func (c *netConnection) Iterate() bool { return c.conn.Iterate() }
func (c *netConnection) Done() bool    { return c.conn.Done() }
func (c *netConnection) Free()         { c.conn.Free() }

func (netHTTPClient) NewConnection(url string) (HTTPConnection, error) {
	conn, err := httpclient.NewConnection(url)
	if err != nil {
		return nil, err
	}
	return &netConnection{conn: conn}, nil
}

func (netHTTPClient) NewSession(conn HTTPConnection) (HTTPSession, error) {
	s, err := httpclient.NewSession(conn.(*netConnection).conn)
	if err != nil {
		return nil, err
	}
	return s, nil
}
