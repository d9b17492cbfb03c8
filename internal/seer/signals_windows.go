// Signal mapping for Windows. Only interrupt and terminate exist, so the
// reflect, awaken and rally events can only be reached from code.

//go:build windows

package seer

import (
	"os"
	"syscall"
)

var signalEvents = map[os.Signal]Event{
	syscall.SIGINT: Overexert,
}

var shutdownSignals = []os.Signal{syscall.SIGTERM}
