package initiator

import (
	"net"

	"github.com/mxl-media/fabrics/internal/endpoint"
	"github.com/mxl-media/fabrics/internal/ferrors"
	"github.com/mxl-media/fabrics/internal/metrics"
	"github.com/mxl-media/fabrics/internal/netfabric"
	"github.com/mxl-media/fabrics/internal/targetinfo"
)

// clPeerState is a connectionless peer's state, per spec §4.4.2: no wait
// states, a peer is writable as soon as it is Activated.
type clPeerState int

const (
	clIdle clPeerState = iota
	clActivated
	clDone
)

// clPeer is the per-peer state an Initiator keeps for one connectionless
// Target it has been told about via AddTarget.
type clPeer struct {
	info   targetinfo.TargetInfo
	state  clPeerState
	fiAddr uint64
}

func (in *Initiator) setupCL(domain *netfabric.Domain, cfg Config) error {
	in.backend = "shm"
	in.eq = endpoint.NewEventQueue(64)
	in.av = endpoint.NewAddressVector()
	ep, err := endpoint.EnableSHM(domain, in.eq, in.cq, in.av, cfg.Node, cfg.Service)
	if err != nil {
		return err
	}
	in.ep = ep
	return nil
}

func (in *Initiator) addTargetCL(info targetinfo.TargetInfo) error {
	if _, exists := in.clPeers[info.Identifier]; exists {
		return nil
	}
	addr, err := net.ResolveUDPAddr("udp", string(info.FabricAddress))
	if err != nil {
		return ferrors.Wrap(ferrors.StatusInvalidArg, "Initiator.AddTarget", err)
	}
	fiAddr := in.av.Insert(addr)
	in.clPeers[info.Identifier] = &clPeer{info: info, state: clActivated, fiAddr: fiAddr}
	metrics.ConnectionsActive.WithLabelValues("initiator", "shm").Inc()
	return nil
}

func (in *Initiator) removeTargetCL(identifier uint64) error {
	p, ok := in.clPeers[identifier]
	if !ok {
		return ferrors.New(ferrors.StatusNotFound, "Initiator.RemoveTarget", "no such target")
	}
	if p.state == clDone {
		return nil
	}
	_ = in.av.Remove(p.fiAddr)
	p.state = clDone
	metrics.ConnectionsActive.WithLabelValues("initiator", "shm").Dec()
	return nil
}

// advanceCL drains the shared completion queue (retiring nothing, since CL
// writes complete synchronously and there's nothing async to retire) and
// evicts Done peers. A CL peer reaches Activated the instant AddTarget
// succeeds, so unlike the CO side there's no wait state to report as
// pending work: this only ever reports true transiently, on the same tick
// a peer is evicted.
func (in *Initiator) advanceCL() (bool, error) {
	for _, ok := in.cq.TryRead(); ok; _, ok = in.cq.TryRead() {
	}

	pending := false
	for id, p := range in.clPeers {
		if p.state == clDone {
			delete(in.clPeers, id)
			pending = true
		}
	}
	return pending, nil
}
