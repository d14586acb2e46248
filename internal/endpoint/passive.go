package endpoint

import (
	"context"
	"net"

	"github.com/mxl-media/fabrics/internal/ferrors"
	"github.com/mxl-media/fabrics/internal/netfabric"
	"github.com/mxl-media/fabrics/internal/obslog"
)

// PassiveEndpoint is a connection-oriented listener bound to an EventQueue.
// Every accepted connection's CONNREQ handshake frame is surfaced as an
// EventConnReq; the caller (internal/target) then builds an active Endpoint
// from it via NewFromConnReq and calls Accept.
type PassiveEndpoint struct {
	listener net.Listener
	eq       *EventQueue
	closed   chan struct{}
}

// Listen binds a PassiveEndpoint to (node, service) -- e.g. ("127.0.0.1",
// "0") for an ephemeral port -- and starts accepting connections in the
// background. Results surface on eq, never as a direct return value, per
// spec §4.2.
func Listen(eq *EventQueue, node, service string) (*PassiveEndpoint, error) {
	lc := net.ListenConfig{Control: netfabric.PlatformControl}
	ln, err := lc.Listen(context.Background(), "tcp", net.JoinHostPort(node, service))
	if err != nil {
		return nil, ferrors.Wrap(ferrors.StatusNoFabric, "endpoint.Listen", err)
	}
	pe := &PassiveEndpoint{listener: ln, eq: eq, closed: make(chan struct{})}
	go pe.acceptLoop()
	return pe, nil
}

// Addr returns the bound local address, useful to discover the ephemeral
// port chosen when service=="0".
func (pe *PassiveEndpoint) Addr() net.Addr {
	return pe.listener.Addr()
}

func (pe *PassiveEndpoint) acceptLoop() {
	for {
		conn, err := pe.listener.Accept()
		if err != nil {
			select {
			case <-pe.closed:
				return
			default:
			}
			pe.eq.push(Event{Type: EventError, Err: ferrors.Wrap(ferrors.StatusNoFabric, "endpoint.acceptLoop", err)})
			return
		}

		f, err := readFrame(conn)
		if err != nil || f.Type != frameConnReq {
			obslog.Logger().Warn("passive endpoint: malformed connection request", "remote", conn.RemoteAddr())
			_ = conn.Close()
			continue
		}
		pe.eq.push(Event{Type: EventConnReq, PeerAddr: conn.RemoteAddr(), PeerIdentity: f.Identity, Conn: conn})
	}
}

// Close stops accepting new connections.
func (pe *PassiveEndpoint) Close() error {
	close(pe.closed)
	return pe.listener.Close()
}

// NewFromConnReq builds the Target-side active Endpoint from a ConnReq
// event's raw connection. The caller must still call Accept to complete the
// handshake.
func NewFromConnReq(domain RegionResolver, eq *EventQueue, cq *CompletionQueue, cqDataViaRecv bool, ev Event) (*Endpoint, error) {
	if ev.Type != EventConnReq || ev.Conn == nil {
		return nil, ferrors.New(ferrors.StatusInvalidArg, "endpoint.NewFromConnReq", "event is not a connection request")
	}
	return newFromConnReq(domain, eq, cq, cqDataViaRecv, ev.Conn, ev.PeerIdentity), nil
}
