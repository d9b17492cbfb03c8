// Package notify sends sd_notify-style readiness messages to a sidecar over a
// local socket.
//
// Every message is a set of newline-separated KEY=value lines. A fresh
// connection is opened for each update; nothing is read back.
package notify

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"tools.zach/dev/seer/internal/metrics"
)

// Message keys understood by the sidecar.
const (
	KeyReady       = "READY"
	KeyMainPID     = "MAINPID"
	KeyInjectedPID = "INJECTED_PID"
)

// Defaults for [Options].
const (
	DefaultNetwork        = "unixgram"
	DefaultConnectTimeout = 30 * time.Second
	DefaultPollInterval   = 2 * time.Second
)

var (
	// ErrNoConnection is returned when the socket could not be reached within
	// the connect timeout.
	ErrNoConnection = errors.New("notification socket unreachable")
	// ErrMalformedMessages is returned when the injected message file cannot
	// be parsed.
	ErrMalformedMessages = errors.New("malformed injected messages")
)

// ///////////////////////////////////////////////
// Notifier
// ///////////////////////////////////////////////

// Options configures a [Notifier]. Zero values take the package defaults.
type Options struct {
	// SocketPath is the sidecar's socket.
	SocketPath string
	// Network is "unixgram" or "unix".
	Network string
	// MessagesPath is the injected message batch file.
	MessagesPath string
	// ConnectTimeout bounds the retry loop of one connection attempt.
	ConnectTimeout time.Duration
	// PollInterval is the wait between connection attempts.
	PollInterval time.Duration
}

// Notifier sends readiness updates and injected message batches.
type Notifier struct {
	opts Options
	dial func(network, path string) (net.Conn, error)
}

// New returns a Notifier for opts.
func New(opts Options) *Notifier {
	if opts.Network == "" {
		opts.Network = DefaultNetwork
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	return &Notifier{opts: opts, dial: dial}
}

// SocketPath returns the configured socket path.
func (n *Notifier) SocketPath() string { return n.opts.SocketPath }

// SendReadyUpdate sends READY=1 or READY=0, plus MAINPID when pid is nonzero.
// Failures are logged and reported as false.
func (n *Notifier) SendReadyUpdate(ready bool, pid int) bool {
	msg := ReadyMessage(ready, pid)

	conn, err := n.connect()
	if err != nil {
		slog.Error("failed to connect to sidecar", "socket", n.opts.SocketPath, "error", err)
		metrics.RecordNotification(metrics.KindReady, false)
		return false
	}
	defer conn.Close()

	slog.Debug("sending ready update", "message", strconv.Quote(msg))
	if _, err := conn.Write([]byte(msg)); err != nil {
		slog.Error("failed to send message to sidecar", "socket", n.opts.SocketPath, "error", err)
		metrics.RecordNotification(metrics.KindReady, false)
		return false
	}
	metrics.RecordNotification(metrics.KindReady, true)
	return true
}

// ReadyMessage encodes a readiness update.
func ReadyMessage(ready bool, pid int) string {
	state := "0"
	if ready {
		state = "1"
	}
	var b strings.Builder
	b.WriteString(KeyReady + "=" + state)
	if pid != 0 {
		b.WriteString("\n" + KeyMainPID + "=" + strconv.Itoa(pid))
	}
	return b.String()
}

// HasPendingInjections reports whether an injected message batch is waiting.
func (n *Notifier) HasPendingInjections() bool {
	if n.opts.MessagesPath == "" {
		return false
	}
	_, err := os.Stat(n.opts.MessagesPath)
	return err == nil
}

// ///////////////////////////////////////////////
// Connection
// ///////////////////////////////////////////////

// connect dials the socket until it succeeds or the connect timeout elapses.
// Between attempts it waits for the poll interval, waking early when the
// socket file is created.
func (n *Notifier) connect() (net.Conn, error) {
	start := time.Now()
	deadline := start.Add(n.opts.ConnectTimeout)

	var waiter *socketWaiter
	defer func() {
		if waiter != nil {
			waiter.Close()
		}
	}()

	var lastErr error
	for {
		conn, err := n.dial(n.opts.Network, n.opts.SocketPath)
		if err == nil {
			slog.Debug("socket connected", "socket", n.opts.SocketPath, "after", time.Since(start).Round(time.Millisecond))
			return conn, nil
		}
		lastErr = err

		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		if waiter == nil {
			waiter = newSocketWaiter(n.opts.SocketPath)
		}
		waiter.Wait(min(n.opts.PollInterval, remaining))
	}

	return nil, fmt.Errorf("%w after %s: %v", ErrNoConnection, n.opts.ConnectTimeout, lastErr)
}
