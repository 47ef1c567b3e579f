package frameserv

import (
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultMaxBodyLen bounds a single frame's body_len, per spec.md
	// §4.1's recommendation (configurable, default 16 MiB).
	DefaultMaxBodyLen = 16 << 20

	// DefaultMaxWorkers bounds how many connections are served
	// concurrently before new accepts are rejected.
	DefaultMaxWorkers = 256 * 1024
)

// Server is the length-prefixed TCP framing server described by
// SPEC_FULL.md: it accepts connections, drives each through the receive
// state machine in conn.go, and publishes completed frames to whatever
// handlers have been registered via OnPacketReceived.
//
// The zero value is not usable; construct with NewServer.
type Server struct {
	// MaxBodyLen caps a frame's body_len. Zero means DefaultMaxBodyLen.
	// Negative disables the cap (not recommended; see spec.md §4.1).
	MaxBodyLen int32

	// MaxWorkers bounds concurrently served connections. Zero means
	// DefaultMaxWorkers.
	MaxWorkers int

	// AcceptBacklog is the listen backlog. Zero means defaultBacklog (100).
	AcceptBacklog int

	// IdleTimeout is how long a connection may sit without a successful
	// read before the reaper closes it. Zero means defaultIdleTimeout.
	IdleTimeout time.Duration

	// Logger receives diagnostic messages. Nil means defaultLogger.
	Logger Logger

	// LogAllErrors, when true, logs every connection-serving error instead
	// of swallowing the expected "peer went away" family silently.
	LogAllErrors bool

	pool     ioContextPool
	registry *connRegistry
	hook     *publishHook
	wp       *workerPool
	rp       *reaper

	ln net.Listener

	shuttingDown atomic.Bool
	startOnce    sync.Once
	startErr     error
}

// NewServer constructs a ready-to-start Server with default limits.
func NewServer() *Server {
	s := &Server{}
	s.registry = newConnRegistry()
	s.hook = &publishHook{}
	return s
}

func (s *Server) logger() Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return defaultLogger
}

func (s *Server) maxBodyLen() int32 {
	if s.MaxBodyLen == 0 {
		return DefaultMaxBodyLen
	}
	if s.MaxBodyLen < 0 {
		return 0
	}
	return s.MaxBodyLen
}

func (s *Server) maxWorkers() int {
	if s.MaxWorkers <= 0 {
		return DefaultMaxWorkers
	}
	return s.MaxWorkers
}

func (s *Server) idleTimeout() time.Duration {
	if s.IdleTimeout <= 0 {
		return defaultIdleTimeout
	}
	return s.IdleTimeout
}

// OnPacketReceived registers a handler invoked synchronously for every
// completed frame, in registration order. It may be called before or
// after Start; handlers registered after Start take effect for the next
// frame published on any connection.
func (s *Server) OnPacketReceived(handler PacketHandler) {
	s.hook.add(handler)
}

// ConnectionCount reports the number of currently registered connections.
func (s *Server) ConnectionCount() int {
	return s.registry.count()
}

// Start binds 0.0.0.0:port, begins accepting connections, and starts the
// reaper timer. It returns once the listener is bound; accepting happens
// on a background goroutine. Start may only be called once per Server: a
// second call returns the first call's result. Calling Start on a Server
// that has already had Stop called on it (or after a prior Start lost the
// race with a concurrent Stop) returns ErrServerClosed instead of binding
// a new listener.
func (s *Server) Start(port uint16) error {
	if s.shuttingDown.Load() {
		return ErrServerClosed
	}
	s.startOnce.Do(func() {
		if s.registry == nil {
			s.registry = newConnRegistry()
		}
		if s.hook == nil {
			s.hook = &publishHook{}
		}
		s.hook.logger = s.logger()

		ln, err := newListener(port, s.AcceptBacklog)
		if err != nil {
			s.startErr = err
			return
		}
		s.ln = ln

		s.wp = &workerPool{
			WorkerFunc:      s.serveConn,
			MaxWorkersCount: s.maxWorkers(),
			Logger:          s.logger(),
			LogAllErrors:    s.LogAllErrors,
		}
		s.wp.Start()

		s.rp = newReaper(s.registry, s.closeConn)
		s.rp.idleTimeout = s.idleTimeout()
		s.rp.start()

		go s.acceptLoop(ln)
	})
	return s.startErr
}

// acceptLoop implements spec.md §4.5: accept, hand the connection to the
// worker pool (which provisions/pops an ioContext and posts the first
// receive), and re-arm the next accept. If the worker pool is saturated
// the connection is dropped; if the server is shutting down new
// connections are dropped without being registered.
func (s *Server) acceptLoop(ln net.Listener) {
	var lastTemporaryErrorTime time.Time
	for {
		c, err := acceptConn(ln, s.logger(), &lastTemporaryErrorTime)
		if err != nil {
			return
		}

		if s.shuttingDown.Load() {
			_ = c.Close()
			continue
		}

		if !s.wp.Serve(c) {
			_ = c.Close()
			s.logger().Printf("frameserv: %v: %d concurrent connections already served", ErrConcurrencyLimit, s.maxWorkers())
		}
	}
}

// serveConn is the workerPool.WorkerFunc: it provisions an ioContext (pool
// pop, else fresh allocation), registers the connection, runs the receive
// state machine to completion, and always runs the close path before
// returning — matching spec.md §4.5/§4.7 end to end.
//
// Only this goroutine ever pushes cs.ctx back to the pool, and only after
// cs.serve has returned. closeConn itself may run concurrently from the
// reaper or a forced Stop (to shut the socket down early and deregister
// it), but it never touches the pool: doing the push here instead keeps
// spec.md §4.7's "no context is used by two connections simultaneously"
// guarantee even when something else closes the socket out from under a
// connection still technically blocked in cs.conn.Read.
func (s *Server) serveConn(c net.Conn) error {
	if s.shuttingDown.Load() {
		_ = c.Close()
		return nil
	}

	ctx := s.pool.pop()
	if ctx == nil {
		ctx = newIoContext()
	}
	cs := newConnState(c, ctx)
	s.registry.add(cs)

	err := cs.serve(s.maxBodyLen(), s.hook.publish)
	s.closeConn(cs)
	s.pool.push(cs.ctx)

	if err == io.EOF || err == nil {
		return nil
	}
	return err
}

// closeConn runs spec.md §4.7's idempotent close path (socket shutdown and
// registry deregistration). It is safe to call more than once for the same
// connState (from serveConn's return and, concurrently, from the reaper or
// a forced Stop): only the call that observes the registry entry still
// present logs the final shutdown line, which is the de-duplication token
// spec.md calls for. Returning cs.ctx to the pool is deliberately not done
// here — see serveConn.
func (s *Server) closeConn(cs *connState) {
	if tc, ok := cs.conn.(interface{ CloseWrite() error }); ok {
		_ = tc.CloseWrite()
	}
	_ = cs.conn.Close()

	wasPresent, nowEmpty := s.registry.removeAndCheckEmpty(cs.conn)
	if !wasPresent {
		return
	}

	if nowEmpty && s.shuttingDown.Load() {
		s.logger().Printf("frameserv: all connections closed, server shut down")
	}
}

// Stop initiates shutdown. It always stops accepting new connections.
// With force=false it logs an advisory and lets existing connections
// drain naturally as peers disconnect; the last one out runs the final
// log line. With force=true it additionally closes every connection
// currently in the registry.
func (s *Server) Stop(force bool) {
	s.shuttingDown.Store(true)

	if s.ln != nil {
		_ = s.ln.Close()
	}
	if s.rp != nil {
		s.rp.stop()
	}
	if s.wp != nil {
		s.wp.Stop()
	}

	if !force {
		if s.registry.count() > 0 {
			s.logger().Printf("frameserv: graceful shutdown requested, waiting for %d connections to drain", s.registry.count())
		} else {
			s.logger().Printf("frameserv: all connections closed, server shut down")
		}
		return
	}

	for _, cs := range s.registry.snapshot() {
		s.closeConn(cs)
	}
}
