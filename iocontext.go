package frameserv

import (
	"sync"

	"github.com/valyala/bytebufferpool"
)

// ioContext bundles the reusable scratch storage needed to drive one
// outstanding receive: the fixed header window and a pooled body buffer.
// The "user token" from spec.md's data model (the owning ConnectionState)
// is attached by the accept loop for the lifetime of one connection and
// cleared before the context is returned to the pool.
type ioContext struct {
	header [headerLen]byte
	body   *bytebufferpool.ByteBuffer

	conn *connState

	next *ioContext // intrusive LIFO stack link
}

func newIoContext() *ioContext {
	return &ioContext{body: bytebufferpool.Get()}
}

func (c *ioContext) reset() {
	c.conn = nil
	c.body.Reset()
}

// ioContextPool is a mutex-guarded LIFO stack of reusable ioContext values.
//
// It intentionally has no upper bound: it grows to the high-water mark of
// concurrent connections and never shrinks. The accept loop's listener
// backlog already bounds burst provisioning, so the extra complexity of a
// shrinking pool (and the GC churn of a sync.Pool, which offers no "never
// evicted" guarantee) buys nothing here.
type ioContextPool struct {
	mu   sync.Mutex
	head *ioContext
	n    int
}

// pop returns a context if the pool has one ready, else nil. Callers must
// allocate a fresh context on a nil return; the pool never allocates on a
// miss.
func (p *ioContextPool) pop() *ioContext {
	p.mu.Lock()
	defer p.mu.Unlock()

	c := p.head
	if c == nil {
		return nil
	}
	p.head = c.next
	c.next = nil
	p.n--
	return c
}

// push returns a context to the pool. Pushing nil is a programmer error.
func (p *ioContextPool) push(c *ioContext) {
	if c == nil {
		panic(ErrInvalidArgument)
	}
	c.reset()

	p.mu.Lock()
	c.next = p.head
	p.head = c
	p.n++
	p.mu.Unlock()
}

// count returns the number of contexts currently sitting idle in the pool.
// Advisory only: the true in-use count is tracked by the connection
// registry, not here.
func (p *ioContextPool) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.n
}
