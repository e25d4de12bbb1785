// Package nbio implements the non-blocking file read primitive driven by the
// data runloop's file lane.
//
// A Reader slurps a file into memory one fixed-size chunk per Iterate call,
// so the caller can spread a large read across ticks without ever blocking
// for more than one chunk's worth of disk I/O.
package nbio

import (
	"fmt"
	"io"
	"os"
)

// ChunkSize is the number of bytes read per Iterate call.
const ChunkSize = 32 * 1024

// Reader reads one file into memory incrementally.
type Reader struct {
	f       *os.File
	path    string
	buf     []byte
	got     int
	started bool
	done    bool
	err     error
}

// Open opens path for a chunked read. The whole-file buffer is sized up
// front from the file's current length.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("nbio open %s: %w", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("nbio stat %s: %w", path, err)
	}
	return &Reader{
		f:    f,
		path: path,
		buf:  make([]byte, fi.Size()),
	}, nil
}

// BeginRead arms the transfer. Iterate does nothing until it is called.
func (r *Reader) BeginRead() {
	r.started = true
}

// Iterate reads the next chunk. Returns true once the transfer is complete,
// whether it ended in success or in a read error (see Err).
func (r *Reader) Iterate() bool {
	if r.done {
		return true
	}
	if !r.started {
		return false
	}

	end := r.got + ChunkSize
	if end > len(r.buf) {
		end = len(r.buf)
	}

	if r.got < end {
		n, err := r.f.Read(r.buf[r.got:end])
		r.got += n
		if err != nil && err != io.EOF {
			r.err = fmt.Errorf("nbio read %s: %w", r.path, err)
			r.done = true
			return true
		}
		if err == io.EOF {
			// File shrank underneath us; deliver what we have.
			r.buf = r.buf[:r.got]
		}
	}

	if r.got >= len(r.buf) {
		r.done = true
	}
	return r.done
}

// Ptr returns the bytes read so far. After Iterate reports done, this is the
// complete file contents. The slice is owned by the Reader and is only valid
// until Free.
func (r *Reader) Ptr() []byte {
	return r.buf[:r.got]
}

// Err reports a read error observed during Iterate, if any.
func (r *Reader) Err() error {
	return r.err
}

// Free releases the file handle. The Reader must not be used afterwards.
func (r *Reader) Free() {
	if r.f != nil {
		r.f.Close()
		r.f = nil
	}
	r.buf = nil
}
