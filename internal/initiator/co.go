package initiator

import (
	"context"
	"time"

	"github.com/mxl-media/fabrics/internal/endpoint"
	"github.com/mxl-media/fabrics/internal/ferrors"
	"github.com/mxl-media/fabrics/internal/metrics"
	"github.com/mxl-media/fabrics/internal/obslog"
	"github.com/mxl-media/fabrics/internal/targetinfo"
)

// coPeerState is a connection-oriented peer's state, per spec §4.4.1.
type coPeerState int

const (
	coIdle coPeerState = iota
	coConnecting
	coConnected
	coShutdown
	coDone
)

// coPeer is the per-peer state an Initiator keeps for one connection-oriented
// Target it has been told about via AddTarget.
type coPeer struct {
	info       targetinfo.TargetInfo
	state      coPeerState
	ep         *endpoint.Endpoint
	eq         *endpoint.EventQueue
	pending    int
	lastFailAt time.Time // zero value: never failed, activate immediately
}

func (in *Initiator) addTargetCO(info targetinfo.TargetInfo) error {
	if _, exists := in.coPeers[info.Identifier]; exists {
		return nil
	}
	in.coPeers[info.Identifier] = &coPeer{info: info, state: coIdle}
	return nil
}

func (in *Initiator) removeTargetCO(identifier uint64) error {
	p, ok := in.coPeers[identifier]
	if !ok {
		return ferrors.New(ferrors.StatusNotFound, "Initiator.RemoveTarget", "no such target")
	}
	if p.state == coDone {
		return nil
	}
	if p.state == coConnected {
		metrics.ConnectionsActive.WithLabelValues("initiator", "tcp").Dec()
	}
	p.state = coShutdown
	if p.ep != nil {
		_ = p.ep.Shutdown()
	}
	return nil
}

// advanceCO steps every CO peer's state machine once, drains the shared
// completion queue to retire pending transfers, and evicts Done peers.
func (in *Initiator) advanceCO() (bool, error) {
	for cqe, ok := in.cq.TryRead(); ok; cqe, ok = in.cq.TryRead() {
		if p, found := in.coPeers[cqe.Token]; found && p.pending > 0 {
			p.pending--
		}
	}

	pending := false
	for id, p := range in.coPeers {
		switch p.state {
		case coIdle:
			if time.Since(p.lastFailAt) < activationThrottle && !p.lastFailAt.IsZero() {
				pending = true
				continue
			}
			in.activatePeer(p)
			pending = true

		case coConnecting:
			ev, ok := p.eq.TryRead()
			if !ok {
				pending = true
				continue
			}
			switch ev.Type {
			case endpoint.EventConnected:
				p.state = coConnected
				metrics.ConnectionsActive.WithLabelValues("initiator", "tcp").Inc()
			default:
				obslog.With("initiator").Warn("connection attempt failed", "target", id, "event", ev.Type)
				p.ep = nil
				p.state = coIdle
				p.lastFailAt = time.Now()
			}
			pending = true

		case coConnected:
			if ev, ok := p.eq.TryRead(); ok && (ev.Type == endpoint.EventShutdown || ev.Type == endpoint.EventError) {
				p.state = coIdle
				p.lastFailAt = time.Now()
				metrics.ConnectionsActive.WithLabelValues("initiator", "tcp").Dec()
			}
			if p.pending > 0 {
				pending = true
			}

		case coShutdown:
			// Shutdown() closes our own conn synchronously and suppresses the
			// read loop's usual EventShutdown push (it's our own close, not a
			// surprise from the peer), so there is nothing further to wait
			// for: drain straight to Done on the next tick.
			p.state = coDone

		case coDone:
			delete(in.coPeers, id)
		}
	}
	return pending, nil
}

// activatePeer binds a fresh Endpoint to the peer's advertised address,
// mirroring the "construct a fresh endpoint bound to the same domain and
// identity" demotion/retry rule of spec §4.4.1.
func (in *Initiator) activatePeer(p *coPeer) {
	p.eq = endpoint.NewEventQueue(64)
	ep, err := endpoint.Connect(context.Background(), in.domain, p.eq, in.cq, string(p.info.FabricAddress))
	if err != nil {
		p.state = coIdle
		p.lastFailAt = time.Now()
		return
	}
	p.ep = ep
	p.state = coConnecting
}
