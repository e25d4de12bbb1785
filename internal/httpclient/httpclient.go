// Package httpclient implements the pollable two-phase HTTP client driven by
// the data runloop's HTTP lane.
//
// A transfer is split the way the lane steps it: a Connection covers name
// resolution and the TCP handshake, a Session covers the request/response
// exchange and the body download. Both run on their own goroutine and expose
// poll methods the lane calls once per tick; no method blocks.
package httpclient

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"net/http/httputil"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	dialTimeout = 30 * time.Second
	userAgent   = "dataloop/1.0"
	readChunk   = 16 * 1024
)

// Connection is an in-progress TCP connection to an HTTP origin.
type Connection struct {
	host string
	path string
	addr string

	mu    sync.Mutex
	conn  net.Conn
	done  bool
	ok    bool
	freed bool
	err   error
}

// NewConnection parses rawurl and starts connecting in the background.
// Only plain http URLs are supported.
func NewConnection(rawurl string) (*Connection, error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", rawurl, err)
	}
	if u.Scheme != "http" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("url %q has no host", rawurl)
	}

	addr := u.Host
	if u.Port() == "" {
		addr = net.JoinHostPort(u.Hostname(), "80")
	}
	path := u.RequestURI()
	if path == "" {
		path = "/"
	}

	c := &Connection{host: u.Host, path: path, addr: addr}
	go c.dial()
	return c, nil
}

func (c *Connection) dial() {
	conn, err := net.DialTimeout("tcp", c.addr, dialTimeout)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.freed {
		// Freed mid-handshake; the late socket must not leak.
		if conn != nil {
			conn.Close()
		}
		return
	}
	c.conn = conn
	c.err = err
	c.ok = err == nil
	c.done = true
}

// Iterate reports whether the handshake has finished, in success or failure.
func (c *Connection) Iterate() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Done reports whether the connection was established.
func (c *Connection) Done() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done && c.ok
}

// take hands the socket to a Session, exactly once.
func (c *Connection) take() (net.Conn, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.done || !c.ok || c.conn == nil {
		return nil, false
	}
	conn := c.conn
	c.conn = nil
	return conn, true
}

// Free releases the connection. A socket already handed to a Session is
// untouched.
func (c *Connection) Free() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.freed = true
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// Session is an in-progress HTTP body transfer over an established
// connection.
type Session struct {
	conn net.Conn

	mu   sync.Mutex
	pos  int64
	tot  int64
	body []byte
	done bool
	err  error
}

// NewSession takes over the Connection's socket and starts the request
// exchange in the background.
func NewSession(c *Connection) (*Session, error) {
	conn, ok := c.take()
	if !ok {
		return nil, fmt.Errorf("connection to %s not established", c.addr)
	}
	s := &Session{conn: conn}
	go s.run(c.host, c.path)
	return s, nil
}

func (s *Session) run(host, path string) {
	fail := func(err error) {
		s.mu.Lock()
		s.err = err
		s.done = true
		s.mu.Unlock()
	}

	req := fmt.Sprintf("GET %s HTTP/1.1\r\nHost: %s\r\nUser-Agent: %s\r\nConnection: close\r\n\r\n",
		path, host, userAgent)
	if _, err := io.WriteString(s.conn, req); err != nil {
		fail(fmt.Errorf("write request: %w", err))
		return
	}

	br := bufio.NewReader(s.conn)
	tp := textproto.NewReader(br)

	statusLine, err := tp.ReadLine()
	if err != nil {
		fail(fmt.Errorf("read status line: %w", err))
		return
	}
	code, err := parseStatus(statusLine)
	if err != nil {
		fail(err)
		return
	}
	header, err := tp.ReadMIMEHeader()
	if err != nil {
		fail(fmt.Errorf("read headers: %w", err))
		return
	}
	if code < 200 || code > 299 {
		fail(fmt.Errorf("http status %d", code))
		return
	}

	var body io.Reader = br
	if strings.EqualFold(header.Get("Transfer-Encoding"), "chunked") {
		body = httputil.NewChunkedReader(br)
	} else if cl := header.Get("Content-Length"); cl != "" {
		n, perr := strconv.ParseInt(cl, 10, 64)
		if perr != nil {
			fail(fmt.Errorf("bad content-length %q: %w", cl, perr))
			return
		}
		body = io.LimitReader(br, n)
		s.mu.Lock()
		s.tot = n
		s.mu.Unlock()
	}

	buf := make([]byte, readChunk)
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			s.mu.Lock()
			s.body = append(s.body, buf[:n]...)
			s.pos += int64(n)
			s.mu.Unlock()
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			fail(fmt.Errorf("read body: %w", rerr))
			return
		}
	}

	s.mu.Lock()
	s.done = true
	s.mu.Unlock()
}

func parseStatus(line string) (int, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 || !strings.HasPrefix(fields[0], "HTTP/") {
		return 0, fmt.Errorf("malformed status line %q", line)
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, fmt.Errorf("malformed status code %q", fields[1])
	}
	return code, nil
}

// Update reports transfer progress. Returns true once the body is fully
// received or the transfer failed.
func (s *Session) Update(pos, tot *int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pos != nil {
		*pos = s.pos
	}
	if tot != nil {
		*tot = s.tot
	}
	return s.done
}

// Data returns the response body. Reports false if the transfer failed;
// the body is then dropped.
func (s *Session) Data() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, false
	}
	return s.body, true
}

// Err reports the transfer error, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close tears the session down and closes the socket.
func (s *Session) Close() {
	s.conn.Close()
}
