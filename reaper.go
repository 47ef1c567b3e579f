package frameserv

import "time"

// defaultReaperFirstDelay and defaultReaperInterval match spec.md §4.5 step
// 3: first fire after 1s, then every 5s.
const (
	defaultReaperFirstDelay = time.Second
	defaultReaperInterval   = 5 * time.Second
	defaultIdleTimeout      = 90 * time.Second
)

// reaper periodically sweeps the connection registry and closes
// connections that no longer look live. "Live" here means "read from
// recently" (see connState.lastActivity) rather than a raw socket poll —
// see SPEC_FULL.md's Open Question decision on why a concurrent socket
// probe would be unsafe in this module's threaded realization.
type reaper struct {
	registry *connRegistry
	closeFn  func(*connState)

	firstDelay  time.Duration
	interval    time.Duration
	idleTimeout time.Duration

	stopCh chan struct{}
}

func newReaper(registry *connRegistry, closeFn func(*connState)) *reaper {
	return &reaper{
		registry:    registry,
		closeFn:     closeFn,
		firstDelay:  defaultReaperFirstDelay,
		interval:    defaultReaperInterval,
		idleTimeout: defaultIdleTimeout,
	}
}

func (r *reaper) start() {
	r.stopCh = make(chan struct{})
	stopCh := r.stopCh
	go func() {
		timer := time.NewTimer(r.firstDelay)
		defer timer.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-timer.C:
				r.sweep()
				timer.Reset(r.interval)
			}
		}
	}()
}

func (r *reaper) stop() {
	if r.stopCh == nil {
		return
	}
	close(r.stopCh)
	r.stopCh = nil
}

// sweep copies the candidate set out from under the registry lock (per
// spec.md §5's lock-discipline note: the reaper should not hold the
// registry lock while probing) and runs the close path — shutdown, socket
// close, registry removal — on anything idle for longer than idleTimeout.
// Running the close path here, rather than only deleting the registry
// entry, is the corrected behavior spec.md §9 calls for; the source's
// CheckClientConnections leaked an IoContext per reaped connection by
// skipping it.
//
// idleSince measures "no successful read recently", not "socket is dead":
// a connection whose peer is simply quiet (no frame to send) for longer
// than idleTimeout is reaped the same as one whose peer vanished. This is
// a deliberate trade against spec.md §4.6's dead-socket-only probe — see
// SPEC_FULL.md's Open Question decision — and why idleTimeout defaults to
// a generous 90s rather than something close to a real keepalive interval.
func (r *reaper) sweep() {
	for _, cs := range r.registry.snapshot() {
		if cs.idleSince() >= r.idleTimeout {
			r.closeFn(cs)
		}
	}
}
