//go:build windows

package netfabric

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/windows"
)

// setSocketOptions configures the listening/dialing socket on Windows.
// SO_REUSEADDR is set because Windows lacks SO_REUSEPORT but grants
// SO_REUSEADDR POSIX-SO_REUSEPORT-like port-sharing semantics; TCP_NODELAY
// disables Nagle coalescing for small immediate-data writes.
func setSocketOptions(fd uintptr) error {
	if err := windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_REUSEADDR, 1); err != nil {
		return fmt.Errorf("failed to set SO_REUSEADDR: %w", err)
	}
	if err := windows.SetsockoptInt(windows.Handle(fd), windows.IPPROTO_TCP, windows.TCP_NODELAY, 1); err != nil {
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
