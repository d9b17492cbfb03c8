// conn_unix.go dials the sidecar's unix domain socket.

//go:build !windows

package notify

import "net"

// dial connects to a unix domain socket of the given network type.
func dial(network, path string) (net.Conn, error) {
	return net.Dial(network, path)
}
