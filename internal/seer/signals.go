package seer

import (
	"os"
	"slices"
)

// Signals returns every signal the seer reacts to, for use with
// signal.Notify.
func Signals() []os.Signal {
	sigs := make([]os.Signal, 0, len(signalEvents)+len(shutdownSignals))
	for sig := range signalEvents {
		sigs = append(sigs, sig)
	}
	return append(sigs, shutdownSignals...)
}

// EventFor returns the event mapped to sig.
func EventFor(sig os.Signal) (Event, bool) {
	e, ok := signalEvents[sig]
	return e, ok
}

// IsShutdownSignal reports whether sig starts the shutdown sequence.
func IsShutdownSignal(sig os.Signal) bool {
	return slices.Contains(shutdownSignals, sig)
}
