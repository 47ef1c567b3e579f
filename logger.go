package frameserv

import (
	"log"
	"os"
)

// Logger is used for logging formatted messages.
//
// Any component that accepts a Logger field falls back to defaultLogger
// when left nil, so a Server is usable without any explicit wiring.
type Logger interface {
	// Printf must have the same semantics as log.Printf.
	Printf(format string, args ...interface{})
}

var defaultLogger = Logger(log.New(os.Stderr, "", log.LstdFlags))
