package target

import (
	"github.com/mxl-media/fabrics/internal/endpoint"
	"github.com/mxl-media/fabrics/internal/ferrors"
	"github.com/mxl-media/fabrics/internal/metrics"
	"github.com/mxl-media/fabrics/internal/netfabric"
	"github.com/mxl-media/fabrics/internal/obslog"
	"github.com/mxl-media/fabrics/internal/region"
	"github.com/mxl-media/fabrics/internal/targetinfo"
)

// coState is the connection-oriented Target's state, per spec §4.3.1.
type coState int

const (
	coWaitForConnReq coState = iota
	coWaitForConnected
	coConnected
)

func (t *Target) setupCO(domain *netfabric.Domain, cfg Config, remoteRegions []region.RemoteRegion) (targetinfo.TargetInfo, error) {
	t.backend = "tcp"
	t.listenEQ = endpoint.NewEventQueue(64)
	passive, err := endpoint.Listen(t.listenEQ, cfg.Node, cfg.Service)
	if err != nil {
		return targetinfo.TargetInfo{}, err
	}
	t.passive = passive
	t.cq = endpoint.NewCompletionQueue(256)
	t.coState = coWaitForConnReq
	t.identity = endpoint.NewIdentity()

	return targetinfo.TargetInfo{
		FabricAddress: encodeAddr(passive.Addr()),
		Regions:       remoteRegions,
		Identifier:    t.identity,
	}, nil
}

// advanceCO drives the CO state machine (spec §4.3.1) one non-blocking step.
func (t *Target) advanceCO() (TransferResult, error) {
	switch t.coState {
	case coWaitForConnReq:
		ev, ok := t.listenEQ.TryRead()
		if !ok {
			return TransferResult{}, ferrors.New(ferrors.StatusNotReady, "Target.advanceCO", "no connection request yet")
		}
		if ev.Type != endpoint.EventConnReq {
			obslog.With("target").Warn("unexpected event while waiting for a connection request", "event", ev.Type)
			return TransferResult{}, ferrors.New(ferrors.StatusNotReady, "Target.advanceCO", "no connection request yet")
		}
		return t.handleConnReq(ev)

	case coWaitForConnected:
		ev, ok := t.activeEQ.TryRead()
		if !ok {
			return TransferResult{}, ferrors.New(ferrors.StatusNotReady, "Target.advanceCO", "awaiting connected event")
		}
		switch ev.Type {
		case endpoint.EventConnected:
			t.coState = coConnected
			metrics.ConnectionsActive.WithLabelValues("target", "tcp").Inc()
			return TransferResult{}, ferrors.New(ferrors.StatusNotReady, "Target.advanceCO", "connected; no transfer yet")
		default:
			t.coState = coWaitForConnReq
			return TransferResult{}, ferrors.New(ferrors.StatusInterrupted, "Target.advanceCO", "peer failed before connect completed")
		}

	case coConnected:
		cqe, ok := t.cq.TryRead()
		if ok {
			if t.domain.CQDataViaRecv() {
				_ = t.ep.Recv(0)
			}
			if cqe.Err != nil {
				return TransferResult{}, cqe.Err
			}
			return t.decodeTransfer(cqe.ImmData)
		}
		if ev, ok := t.activeEQ.TryRead(); ok && (ev.Type == endpoint.EventShutdown || ev.Type == endpoint.EventError) {
			return TransferResult{}, ferrors.New(ferrors.StatusInterrupted, "Target.advanceCO", "peer shutdown")
		}
		return TransferResult{}, ferrors.New(ferrors.StatusNotReady, "Target.advanceCO", "no transfer pending")
	}
	return TransferResult{}, ferrors.New(ferrors.StatusInternal, "Target.advanceCO", "unreachable state")
}

// handleConnReq builds the active Endpoint for an accepted connection
// request, primes the first immediate-data receive if the domain requires
// it, and accepts — per spec §4.3.1's WaitForConnReq transition.
func (t *Target) handleConnReq(ev endpoint.Event) (TransferResult, error) {
	t.activeEQ = endpoint.NewEventQueue(64)
	ep, err := endpoint.NewFromConnReq(t.domain, t.activeEQ, t.cq, t.domain.CQDataViaRecv(), ev)
	if err != nil {
		return TransferResult{}, err
	}
	if t.domain.CQDataViaRecv() {
		_ = ep.Recv(0)
	}
	if err := ep.Accept(); err != nil {
		return TransferResult{}, err
	}
	t.ep = ep
	t.coState = coWaitForConnected
	return TransferResult{}, ferrors.New(ferrors.StatusNotReady, "Target.advanceCO", "accepted; awaiting connected event")
}
