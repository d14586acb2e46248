//go:build linux

package netfabric

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// setSocketOptions configures the listening/dialing socket for the TCP
// connection-oriented backend: SO_REUSEADDR so a restarted Target can rebind
// its passive endpoint immediately, and TCP_NODELAY so small immediate-data
// writes aren't held by Nagle's algorithm.
func setSocketOptions(fd uintptr) error {
	if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fmt.Errorf("failed to set SO_REUSEADDR: %w", err)
	}
	if err := unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
		return fmt.Errorf("failed to set TCP_NODELAY: %w", err)
	}
	return nil
}

// platformControl is the net.ListenConfig/net.Dialer control function used by
// this package's TCP passive and active endpoints.
func platformControl(_, _ string, c syscall.RawConn) error {
	var sockoptErr error
	err := c.Control(func(fd uintptr) {
		sockoptErr = setSocketOptions(fd)
	})
	if err != nil {
		return fmt.Errorf("raw conn control failed: %w", err)
	}
	return sockoptErr
}

// PlatformControl is the net.Dialer/net.ListenConfig Control hook used by
// internal/endpoint's Connect and Listen to apply this platform's socket
// tuning before the connection-oriented backend's handshake begins.
func PlatformControl(network, address string, c syscall.RawConn) error {
	return platformControl(network, address, c)
}
