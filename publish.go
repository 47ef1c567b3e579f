package frameserv

import "sync"

// PacketHandler receives a completed frame's opcode and body bytes. Body is
// only valid for the duration of the call: the backing buffer is owned by
// the connection's pooled ioContext and is reused for the next frame.
// Handlers that need the bytes afterward must copy them. Handlers must not
// block — do fast work, or dispatch to your own worker pool.
type PacketHandler func(opcode int16, body []byte)

type publishFunc func(opcode int16, body []byte)

// publishHook fans a completed frame out to zero or more registered
// handlers, synchronously, in registration order. A handler that panics is
// logged and swallowed; it never reaches the I/O loop and never prevents
// the remaining handlers from running.
type publishHook struct {
	mu       sync.Mutex
	handlers []PacketHandler
	logger   Logger
}

func (h *publishHook) add(fn PacketHandler) {
	h.mu.Lock()
	h.handlers = append(h.handlers, fn)
	h.mu.Unlock()
}

func (h *publishHook) log() Logger {
	if h.logger != nil {
		return h.logger
	}
	return defaultLogger
}

func (h *publishHook) publish(opcode int16, body []byte) {
	h.mu.Lock()
	handlers := h.handlers
	h.mu.Unlock()

	for _, fn := range handlers {
		h.invoke(fn, opcode, body)
	}
}

func (h *publishHook) invoke(fn PacketHandler, opcode int16, body []byte) {
	defer func() {
		if r := recover(); r != nil {
			h.log().Printf("frameserv: packet handler panic for opcode %d: %v", opcode, r)
		}
	}()
	fn(opcode, body)
}
