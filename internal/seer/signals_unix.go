// Signal mapping for Unix-like systems.

//go:build !windows

package seer

import (
	"os"

	"golang.org/x/sys/unix"
)

// signalEvents maps signals to the events they dispatch.
var signalEvents = map[os.Signal]Event{
	unix.SIGHUP:  Reflect,
	unix.SIGINT:  Overexert,
	unix.SIGUSR1: Awaken,
	unix.SIGUSR2: Rally,
}

// shutdownSignals trigger [Seer.Shutdown].
var shutdownSignals = []os.Signal{unix.SIGTERM}
