//go:build darwin

package netfabric

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// setSocketOptions configures the listening/dialing socket on Darwin. BSD's
// SO_REUSEPORT lets a restarted Target rebind before the prior socket's
// TIME_WAIT expires; TCP_NODELAY disables Nagle coalescing for small
// immediate-data writes.
func setSocketOptions(fd uintptr) error {
	if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fmt.Errorf("failed to set SO_REUSEADDR: %w", err)
	}
	if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
		return fmt.Errorf("failed to set SO_REUSEPORT: %w", err)
	}
	if err := unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
		return fmt.Errorf("failed to set TCP_NODELAY: %w", err)
	}
	return nil
}

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
