// Package initiator implements the Initiator (sender) side of the fabrics
// core (spec §4.4): the per-peer connection-oriented and connectionless
// state machines, grain/sample transfer planning, and cooperative progress.
package initiator

import (
	"context"
	"sync"
	"time"

	"github.com/mxl-media/fabrics/internal/bounce"
	"github.com/mxl-media/fabrics/internal/endpoint"
	"github.com/mxl-media/fabrics/internal/ferrors"
	"github.com/mxl-media/fabrics/internal/netfabric"
	"github.com/mxl-media/fabrics/internal/obslog"
	"github.com/mxl-media/fabrics/internal/protocol"
	"github.com/mxl-media/fabrics/internal/region"
	"github.com/mxl-media/fabrics/internal/targetinfo"
)

// activationThrottle is the minimum time a CO peer must sit in Idle after a
// failed activation before it may be retried, per spec §4.4.1.
const activationThrottle = 5 * time.Second

// Config selects an Initiator's backend, bind address, and the RegionSet it
// drains outgoing transfers from. Regions may be nil for an Initiator that
// only needs to reach Connected (spec §8 scenario 1).
type Config struct {
	Provider       netfabric.Provider
	Connectionless bool
	Node, Service  string
	Regions        *region.RegionSet
	DeviceSupport  bool
}

// Initiator is the sender half of a fabrics connection, driving any number
// of peer Targets it has been told about via AddTarget. Single-threaded
// cooperative progress: every exported method must be called from one
// goroutine at a time (spec §5).
type Initiator struct {
	mu  sync.Mutex
	cfg Config

	fabric *netfabric.Fabric
	domain *netfabric.Domain
	backend string

	hasRegions bool
	layout     region.DataLayout

	grainEgress protocol.GrainEgress
	audioEgress protocol.AudioEgress

	closed bool

	// connection-oriented fields; see co.go
	coPeers map[uint64]*coPeer

	// connectionless fields; see cl.go
	clPeers map[uint64]*clPeer
	ep      *endpoint.Endpoint
	eq      *endpoint.EventQueue
	av      *endpoint.AddressVector

	cq *endpoint.CompletionQueue
}

// Setup opens the Initiator's Fabric/Domain and registers cfg.Regions (if
// any) for local access. For the connectionless backend this also enables
// the single shared Endpoint/AddressVector; the connection-oriented backend
// instead creates one Endpoint per peer when MakeProgress first activates a
// peer added by AddTarget.
func Setup(ctx context.Context, cfg Config) (*Initiator, error) {
	fab, err := netfabric.Open(ctx, netfabric.FabricConfig{
		Provider:       cfg.Provider,
		Connectionless: cfg.Connectionless,
		Capabilities:   netfabric.Capabilities{RemoteWrite: true, DeviceMemory: cfg.DeviceSupport},
		Node:           cfg.Node,
		Service:        cfg.Service,
	})
	if err != nil {
		return nil, err
	}
	domain := netfabric.OpenDomain(fab, netfabric.DefaultDomainConfig(fab.Provider()))

	in := &Initiator{
		cfg:        cfg,
		fabric:     fab,
		domain:     domain,
		hasRegions: cfg.Regions != nil,
		coPeers:    make(map[uint64]*coPeer),
		clPeers:    make(map[uint64]*clPeer),
		cq:         endpoint.NewCompletionQueue(256),
	}
	if in.hasRegions {
		in.layout = cfg.Regions.Layout
		if _, err := domain.RegisterRegionGroups(cfg.Regions, netfabric.AccessLocalWrite); err != nil {
			return nil, err
		}
		switch in.layout.Kind {
		case region.LayoutVideo:
			in.grainEgress = protocol.GrainEgress{Layout: in.layout.Video}
		case region.LayoutAudio:
			buf, err := bounce.NewBuffer(bounce.ContinuousUnpacker{Layout: in.layout.Audio})
			if err != nil {
				return nil, err
			}
			in.audioEgress = protocol.AudioEgress{Buffer: buf}
		}
	}

	if cfg.Connectionless {
		if err := in.setupCL(domain, cfg); err != nil {
			return nil, err
		}
		return in, nil
	}
	in.backend = "tcp"
	return in, nil
}

// AddTarget registers a peer Target and creates its per-peer state. Per
// spec §9(a) this is idempotent: re-adding an already-known target's
// identifier is a no-op, not an error. Per spec §9(b) an addressing-mode
// mismatch between this Initiator's Domain and the Target's published
// regions is rejected as InvalidArg at this point, not at transfer time.
func (in *Initiator) AddTarget(info targetinfo.TargetInfo) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if addressModeMismatch(in.domain, info) {
		return ferrors.New(ferrors.StatusInvalidArg, "Initiator.AddTarget", "target's addressing mode does not match this initiator's domain")
	}
	if in.cfg.Connectionless {
		return in.addTargetCL(info)
	}
	return in.addTargetCO(info)
}

// addressModeMismatch reports whether info's regions were published in the
// opposite addressing mode from d. A Target with no regions (spec §8
// scenarios 1/2) carries no addressing signal, so nothing to mismatch.
func addressModeMismatch(d *netfabric.Domain, info targetinfo.TargetInfo) bool {
	if len(info.Regions) == 0 {
		return false
	}
	remoteIsVirtual := false
	for _, r := range info.Regions {
		if r.Addr != 0 {
			remoteIsVirtual = true
			break
		}
	}
	return remoteIsVirtual != d.VirtualAddressMode()
}

// RemoveTarget requests a graceful shutdown of a known peer. NotFound if the
// identifier was never added (or was already evicted as Done).
func (in *Initiator) RemoveTarget(identifier uint64) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.cfg.Connectionless {
		return in.removeTargetCL(identifier)
	}
	return in.removeTargetCO(identifier)
}

// MakeProgress drains the Initiator's queues once, advances every peer's
// state machine a single step, evicts Done peers, and reports whether any
// work remains: an Idle or Connecting peer, a Connected peer with transfers
// outstanding, or a connectionless peer evicted this tick.
func (in *Initiator) MakeProgress() (bool, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.advance()
}

// MakeProgressBlocking calls MakeProgress repeatedly until no work is
// pending, a step returns an error, ctx is cancelled, or timeout elapses.
func (in *Initiator) MakeProgressBlocking(ctx context.Context, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		in.mu.Lock()
		pending, err := in.advance()
		in.mu.Unlock()
		if err != nil {
			return false, err
		}
		if !pending {
			return false, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true, ferrors.New(ferrors.StatusTimeout, "Initiator.MakeProgressBlocking", "deadline elapsed with work pending")
		}
		select {
		case <-ctx.Done():
			return true, ferrors.Wrap(ferrors.StatusInterrupted, "Initiator.MakeProgressBlocking", ctx.Err())
		case <-time.After(minDuration(remaining, 50*time.Millisecond)):
		}
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func (in *Initiator) advance() (bool, error) {
	if in.closed {
		return false, ferrors.New(ferrors.StatusInvalidState, "Initiator.advance", "initiator is shut down")
	}
	if in.cfg.Connectionless {
		return in.advanceCL()
	}
	return in.advanceCO()
}

// Shutdown closes every peer's endpoint and releases the Initiator's Domain.
func (in *Initiator) Shutdown() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return nil
	}
	in.closed = true
	obslog.With("initiator").Info("shutdown")

	var err error
	for id, p := range in.coPeers {
		if p.ep != nil {
			if e := p.ep.Close(); e != nil && err == nil {
				err = e
			}
		}
		delete(in.coPeers, id)
	}
	if in.ep != nil {
		if e := in.ep.Close(); e != nil && err == nil {
			err = e
		}
	}
	if e := in.domain.Close(); e != nil && err == nil {
		err = e
	}
	if e := in.fabric.Close(); e != nil && err == nil {
		err = e
	}
	return err
}
