package frameserv

import (
	"net"
	"sync"
)

// connRegistry maps accepted sockets to their per-connection state. All
// mutations (add at accept, remove at close, bulk snapshot in the reaper)
// take a single mutex; readers that only need Count also take it. Storing
// the net.Conn twice (as map key and inside connState) is acceptable per
// spec.md's data model note.
type connRegistry struct {
	mu sync.Mutex
	m  map[net.Conn]*connState
}

func newConnRegistry() *connRegistry {
	return &connRegistry{m: make(map[net.Conn]*connState)}
}

func (r *connRegistry) add(cs *connState) {
	r.mu.Lock()
	r.m[cs.conn] = cs
	r.mu.Unlock()
}

// remove deletes the entry for c and reports whether it was present. The
// "was present" result is the de-duplication token the close path uses to
// stay idempotent.
func (r *connRegistry) remove(c net.Conn) (wasPresent bool) {
	r.mu.Lock()
	_, wasPresent = r.m[c]
	delete(r.m, c)
	r.mu.Unlock()
	return wasPresent
}

// snapshot copies out the current set of registered connections for the
// reaper or a forced shutdown to walk outside the registry lock.
func (r *connRegistry) snapshot() []*connState {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*connState, 0, len(r.m))
	for _, cs := range r.m {
		out = append(out, cs)
	}
	return out
}

func (r *connRegistry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.m)
}

// removeAndCheckEmpty deletes the entry for c, reporting whether it was
// present and whether the registry holds no connections afterwards. It
// exists separately from remove() and count() so the close path can make the
// "was present AND now empty" check under one lock acquisition.
func (r *connRegistry) removeAndCheckEmpty(c net.Conn) (wasPresent, nowEmpty bool) {
	r.mu.Lock()
	_, wasPresent = r.m[c]
	delete(r.m, c)
	nowEmpty = len(r.m) == 0
	r.mu.Unlock()
	return wasPresent, nowEmpty
}
