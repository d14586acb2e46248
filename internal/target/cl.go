package target

import (
	"github.com/mxl-media/fabrics/internal/endpoint"
	"github.com/mxl-media/fabrics/internal/ferrors"
	"github.com/mxl-media/fabrics/internal/metrics"
	"github.com/mxl-media/fabrics/internal/netfabric"
	"github.com/mxl-media/fabrics/internal/region"
	"github.com/mxl-media/fabrics/internal/targetinfo"
)

func (t *Target) setupCL(domain *netfabric.Domain, cfg Config, remoteRegions []region.RemoteRegion) (targetinfo.TargetInfo, error) {
	t.backend = "shm"
	eq := endpoint.NewEventQueue(64)
	cq := endpoint.NewCompletionQueue(256)
	t.av = endpoint.NewAddressVector()

	ep, err := endpoint.EnableSHM(domain, eq, cq, t.av, cfg.Node, cfg.Service)
	if err != nil {
		return targetinfo.TargetInfo{}, err
	}
	if domain.CQDataViaRecv() {
		_ = ep.Recv(0)
	}
	t.ep = ep
	t.activeEQ = eq
	t.cq = cq
	t.identity = ep.Identity
	metrics.ConnectionsActive.WithLabelValues("target", "shm").Inc()

	return targetinfo.TargetInfo{
		FabricAddress: encodeAddr(ep.Addr()),
		Regions:       remoteRegions,
		Identifier:    t.identity,
	}, nil
}

// advanceCL drives the single-state Ready variant (spec §4.3.2): discovered
// peers (surfaced as EventConnReq by the SHM read loop) are consumed without
// changing any state; only arrived writes and EventShutdown matter.
func (t *Target) advanceCL() (TransferResult, error) {
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
	if ev, ok := t.activeEQ.TryRead(); ok && ev.Type == endpoint.EventShutdown {
		return TransferResult{}, ferrors.New(ferrors.StatusInterrupted, "Target.advanceCL", "endpoint shut down")
	}
	return TransferResult{}, ferrors.New(ferrors.StatusNotReady, "Target.advanceCL", "no transfer pending")
}
