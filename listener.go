package frameserv

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/valyala/tcplisten"
)

// defaultBacklog matches spec.md §4.5 step 1: listen with backlog 100.
const defaultBacklog = 100

// newListener binds and listens on 0.0.0.0:port using tcplisten.Config so
// the accept socket gets SO_REUSEPORT, letting a future multi-process
// deployment of this server scale linearly across cores the way
// nginx/fasthttp do, per tcplisten's own doc comment. Grounded on the
// teacher's go.mod dependency on github.com/valyala/tcplisten (kept here
// instead of a bare net.Listen, which the teacher never uses for its own
// Serve path but ships as a first-class listener constructor).
func newListener(port uint16, backlog int) (net.Listener, error) {
	if backlog <= 0 {
		backlog = defaultBacklog
	}
	cfg := &tcplisten.Config{
		ReusePort: true,
		Backlog:   backlog,
	}
	addr := fmt.Sprintf(":%d", port)
	return cfg.NewListener("tcp4", addr)
}

// acceptConn accepts the next connection, retrying on temporary errors the
// way spec.md §4.5's accept loop tolerates transient accept failures.
func acceptConn(ln net.Listener, logger Logger, lastTemporaryErrorTime *time.Time) (net.Conn, error) {
	for {
		c, err := ln.Accept()
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				if time.Since(*lastTemporaryErrorTime) > time.Minute {
					logger.Printf("frameserv: temporary error accepting connections: %s", netErr)
					*lastTemporaryErrorTime = time.Now()
				}
				time.Sleep(time.Second)
				continue
			}
			if strings.Contains(err.Error(), "use of closed network connection") {
				return nil, errListenerClosed
			}
			return nil, err
		}
		return c, nil
	}
}

var errListenerClosed = fmt.Errorf("frameserv: listener closed")

// TimeoutListener wraps a net.Listener so every accepted connection carries
// read/write deadlines. It is not used by Server.Start (the receive state
// machine is driven by blocking reads with no deadline by default); it is
// exported as a standalone net.Listener wrapper, mirroring the teacher's own
// TimeoutListener.
type TimeoutListener struct {
	Listener net.Listener

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func (ln *TimeoutListener) Accept() (net.Conn, error) {
	c, err := ln.Listener.Accept()
	if err != nil {
		return nil, err
	}
	return &timeoutConn{
		Conn:         c,
		readTimeout:  ln.ReadTimeout,
		writeTimeout: ln.WriteTimeout,
	}, nil
}

func (ln *TimeoutListener) Addr() net.Addr { return ln.Listener.Addr() }
func (ln *TimeoutListener) Close() error   { return ln.Listener.Close() }

type timeoutConn struct {
	net.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func (c *timeoutConn) Write(b []byte) (int, error) {
	if c.writeTimeout > 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(b)
}

func (c *timeoutConn) Read(b []byte) (int, error) {
	if c.readTimeout > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(b)
}
