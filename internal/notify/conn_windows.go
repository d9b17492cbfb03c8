// conn_windows.go dials the sidecar over a named pipe. Windows has no
// datagram unix sockets, so both network types map to a pipe connection.

//go:build windows

package notify

import (
	"net"
	"strings"
	"time"

	"github.com/Microsoft/go-winio"
)

// pipeDialTimeout bounds one pipe dial; retries are handled by the caller.
const pipeDialTimeout = time.Second

// dial connects to the named pipe at path. Bare names are placed under
// \\.\pipe\.
func dial(_ string, path string) (net.Conn, error) {
	if !strings.HasPrefix(path, `\\`) {
		path = `\\.\pipe\` + path
	}
	timeout := pipeDialTimeout
	return winio.DialPipe(path, &timeout)
}
