package endpoint

import (
	"net"

	"github.com/mxl-media/fabrics/internal/ferrors"
)

// EnableSHM binds and enables a connectionless Endpoint over UDP — this
// package's realisation of the SHM provider (spec §4.3.2, §4.4.2). The
// returned Endpoint's AddressVector starts empty; callers insert peers
// before writing to them (mirroring fi_av_insert).
func EnableSHM(domain RegionResolver, eq *EventQueue, cq *CompletionQueue, av *AddressVector, node, service string) (*Endpoint, error) {
	pk, err := net.ListenPacket("udp", net.JoinHostPort(node, service))
	if err != nil {
		return nil, ferrors.Wrap(ferrors.StatusNoFabric, "endpoint.EnableSHM", err)
	}
	ep := newEndpoint(domain, eq, cq, true)
	ep.pk = pk
	ep.av = av

	go ep.shmReadLoop()
	return ep, nil
}

// Addr returns the bound local UDP address.
func (ep *Endpoint) Addr() net.Addr {
	if ep.pk != nil {
		return ep.pk.LocalAddr()
	}
	if ep.conn != nil {
		return ep.conn.LocalAddr()
	}
	return nil
}

// shmReadLoop services a connectionless Endpoint's socket for its entire
// lifetime. Every inbound datagram is a one-sided write; the sender's
// address is inserted into the AddressVector (if not already present) so a
// Target can discover Initiators it never explicitly dialed, matching a
// real RDM provider's passive-receive-driven peer discovery.
func (ep *Endpoint) shmReadLoop() {
	buf := make([]byte, 64*1024)
	for {
		n, addr, err := ep.pk.ReadFrom(buf)
		if err != nil {
			if ep.closed.Load() {
				return
			}
			ep.eq.push(Event{Type: EventShutdown, Err: ferrors.Wrap(ferrors.StatusInterrupted, "endpoint.shmReadLoop", err)})
			return
		}

		_, f, err := decodeDatagram(buf[:n])
		if err != nil {
			continue
		}
		if ep.av != nil {
			if _, known := ep.av.IndexOf(addr); !known {
				fiAddr := ep.av.Insert(addr)
				ep.eq.push(Event{Type: EventConnReq, PeerAddr: addr, PeerIdentity: fiAddr})
			}
		}
		ep.applyWrite(f)
	}
}
