// Package qtrust keeps the set of TLS certificate authorities a device
// trusts and runs the trust-on-first-use flow that adds to it.
//
// Anchors live in a single dictionary of a tstore.Engine. A Store reads
// and writes that dictionary; an Establisher takes a certificate chain
// seen during a handshake, asks the user which authorities to trust and
// saves the chosen ones through a Store.
//
// Neither type locks. Callers sharing a Store across goroutines must
// serialize access themselves.
package qtrust

import (
	"github.com/juju/loggo/v2"
)

// Logger receives diagnostics. loggo.Logger satisfies it.
type Logger interface {
	Errorf(format string, args ...any)
	Warningf(format string, args ...any)
	Infof(format string, args ...any)
	Debugf(format string, args ...any)
	Tracef(format string, args ...any)
}

var logger Logger = loggo.GetLogger("qtrust")

func loggerOr(l Logger) Logger {
	if l == nil {
		return logger
	}
	return l
}
