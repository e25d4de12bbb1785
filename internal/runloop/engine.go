package runloop

import (
	"log/slog"
	"runtime"
	"sync"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/time/rate"

	"github.com/quarch/dataloop/internal/config"
	"github.com/quarch/dataloop/internal/msgqueue"
)

// Engine is the background data runloop.
//
// All lane state is owned by the engine and mutated by exactly one
// goroutine: the worker when threaded mode is on, the caller of Iterate
// otherwise. Producers interact with the engine only through Post, which
// touches nothing but the thread-safe queues.
type Engine struct {
	cfg  config.Config
	deps Deps
	log  *slog.Logger

	nbio fileState
	http httpState
	rdl  IndexWriter

	inited       bool
	threadInited bool

	// mu guards lane state: held for every tick and for queue creation.
	mu   sync.Mutex
	quit chan struct{}
	done chan struct{}

	printer  *message.Printer
	progress *rate.Limiter
}

// New creates an engine. Zero-valued config fields fall back to the
// defaults so a hand-built Config behaves like config.Default().
func New(cfg config.Config, deps Deps) *Engine {
	def := config.Default()
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = def.QueueCapacity
	}
	if cfg.NbioStepsPerTick <= 0 {
		cfg.NbioStepsPerTick = def.NbioStepsPerTick
	}
	if cfg.PNGChunksPerTickDivisor <= 0 {
		cfg.PNGChunksPerTickDivisor = def.PNGChunksPerTickDivisor
	}
	if cfg.PNGProcessPerTickDivisor <= 0 {
		cfg.PNGProcessPerTickDivisor = def.PNGProcessPerTickDivisor
	}

	deps.fillDefaults()

	return &Engine{
		cfg:      cfg,
		deps:     deps,
		log:      deps.Logger,
		printer:  message.NewPrinter(language.English),
		progress: rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
	}
}

// Init prepares the lanes and, in threaded mode, starts the worker.
// Idempotent: calling Init on an initialized engine does nothing.
func (e *Engine) Init() {
	if e.inited {
		return
	}

	e.mu.Lock()
	e.nbio = fileState{}
	e.http = httpState{}
	e.mu.Unlock()

	if e.cfg.ThreadedRunloop {
		e.quit = make(chan struct{})
		e.done = make(chan struct{})
		e.threadInited = true
		go e.threadLoop()
	}
	e.inited = true
}

func (e *Engine) threadLoop() {
	defer close(e.done)
	for {
		select {
		case <-e.quit:
			return
		default:
		}

		e.mu.Lock()
		e.iterate()
		e.mu.Unlock()
		runtime.Gosched()
	}
}

// Iterate runs one tick from the host's main loop. A no-op while the worker
// owns the loop.
func (e *Engine) Iterate() {
	if e.threadInited {
		return
	}

	e.mu.Lock()
	e.iterate()
	e.mu.Unlock()
}

// iterate is one tick: every lane advances by a bounded amount of work.
// Callers hold e.mu.
func (e *Engine) iterate() {
	e.overlayIterate()
	e.nbioIterate()
	e.httpIterate()
	e.dbIterate()
}

// Deinit stops the worker, releases any in-flight transfer handles and
// marks the engine uninitialized.
func (e *Engine) Deinit() {
	if !e.inited {
		return
	}

	if e.threadInited {
		close(e.quit)
		<-e.done
		e.threadInited = false
	}

	e.mu.Lock()
	e.releaseHandles()
	e.mu.Unlock()

	e.inited = false
}

// releaseHandles frees every owned external handle. Callers hold e.mu.
func (e *Engine) releaseHandles() {
	img := &e.nbio.image
	if img.handle != nil {
		img.handle.Free()
		img.handle = nil
	}
	if e.nbio.handle != nil {
		e.nbio.handle.Free()
		e.nbio.handle = nil
	}
	if e.http.conn.handle != nil {
		e.http.conn.handle.Free()
		e.http.conn.handle = nil
	}
	if e.http.handle != nil {
		e.http.handle.Close()
		e.http.handle = nil
	}
}

// ClearState resets the engine to a freshly initialized state.
func (e *Engine) ClearState() {
	e.Deinit()
	e.Init()
}

// SetIndexWriter hands the DB driver a content indexer to step. The driver
// frees the writer once it stops iterating.
func (e *Engine) SetIndexWriter(w IndexWriter) {
	e.mu.Lock()
	e.rdl = w
	e.mu.Unlock()
}

// Busy reports whether any lane holds an active transfer or a queued
// command, or the DB driver still owns an index writer.
func (e *Engine) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := &e.nbio
	if n.handle != nil || n.image.handle != nil ||
		e.http.conn.handle != nil || e.http.handle != nil || e.rdl != nil {
		return true
	}
	for _, q := range []*msgqueue.Queue{n.queue, n.image.queue, e.http.queue} {
		if q != nil && q.Len() > 0 {
			return true
		}
	}
	return false
}
