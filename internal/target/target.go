// Package target implements the Target (receiver) side of the fabrics core
// (spec §4.3): the connection-oriented and connectionless state machines,
// receive-side index recovery, and the bounce-buffered audio ingress path.
package target

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/mxl-media/fabrics/internal/bounce"
	"github.com/mxl-media/fabrics/internal/endpoint"
	"github.com/mxl-media/fabrics/internal/ferrors"
	"github.com/mxl-media/fabrics/internal/metrics"
	"github.com/mxl-media/fabrics/internal/netfabric"
	"github.com/mxl-media/fabrics/internal/obslog"
	"github.com/mxl-media/fabrics/internal/protocol"
	"github.com/mxl-media/fabrics/internal/region"
	"github.com/mxl-media/fabrics/internal/targetinfo"
)

// Config selects a Target's backend, bind address, and the RegionSet it
// will expose for remote writes. Regions may be nil for a Target that only
// needs to reach Connected (spec §8 scenarios 1–2 exercise exactly this).
type Config struct {
	Provider       netfabric.Provider
	Connectionless bool
	Node, Service  string
	Regions        *region.RegionSet
	DeviceSupport  bool
}

// TransferResult is what Read/ReadBlocking yields on an arrived transfer.
// Video fields are populated when Layout == region.LayoutVideo, audio
// fields when Layout == region.LayoutAudio.
type TransferResult struct {
	Layout region.LayoutKind

	RingIndex uint64
	LastSlice uint16

	BounceEntryIndex int
	HeadIndex        uint64
	Count            uint16
}

// Target is the receiver half of a fabrics connection. Single-threaded
// cooperative progress: every exported method must be called from one
// goroutine at a time (spec §5).
type Target struct {
	mu  sync.Mutex
	cfg Config

	fabric *netfabric.Fabric
	domain *netfabric.Domain

	identity uint64
	backend  string // metrics label: "tcp" or "shm"

	hasRegions bool
	layout     region.DataLayout

	grainIngress protocol.GrainIngress
	audioIngress protocol.AudioIngress
	finalAudio   region.RegionGroup

	referenceGrain uint64
	referenceHead  uint64

	closed bool

	// connection-oriented fields; see co.go
	passive  *endpoint.PassiveEndpoint
	listenEQ *endpoint.EventQueue
	activeEQ *endpoint.EventQueue
	cq       *endpoint.CompletionQueue
	ep       *endpoint.Endpoint
	coState  coState

	// connectionless fields; see cl.go
	av *endpoint.AddressVector
}

// Setup opens the Target's Fabric/Domain, registers cfg.Regions (if any),
// starts listening (CO) or enables the endpoint (CL), and returns the
// TargetInfo an Initiator needs to reach it.
func Setup(ctx context.Context, cfg Config) (*Target, targetinfo.TargetInfo, error) {
	fab, err := netfabric.Open(ctx, netfabric.FabricConfig{
		Provider:       cfg.Provider,
		Connectionless: cfg.Connectionless,
		Capabilities:   netfabric.Capabilities{RemoteWrite: true, DeviceMemory: cfg.DeviceSupport},
		Node:           cfg.Node,
		Service:        cfg.Service,
	})
	if err != nil {
		return nil, targetinfo.TargetInfo{}, err
	}
	domain := netfabric.OpenDomain(fab, netfabric.DefaultDomainConfig(fab.Provider()))

	t := &Target{
		cfg:        cfg,
		fabric:     fab,
		domain:     domain,
		hasRegions: cfg.Regions != nil,
	}
	if t.hasRegions {
		t.layout = cfg.Regions.Layout
	}

	var remoteRegions []region.RemoteRegion
	if t.hasRegions {
		switch t.layout.Kind {
		case region.LayoutVideo:
			if _, err := domain.RegisterRegionGroups(cfg.Regions, netfabric.AccessLocalWrite|netfabric.AccessRemoteWrite); err != nil {
				return nil, targetinfo.TargetInfo{}, err
			}
			remoteRegions, err = domain.RemoteRegions(cfg.Regions)
			if err != nil {
				return nil, targetinfo.TargetInfo{}, err
			}
			t.grainIngress = protocol.GrainIngress{RingSize: uint64(cfg.Regions.RingSize())}

		case region.LayoutAudio:
			t.finalAudio = cfg.Regions.GroupAt(0)
			buf, err := bounce.NewBuffer(bounce.ContinuousUnpacker{Layout: t.layout.Audio})
			if err != nil {
				return nil, targetinfo.TargetInfo{}, err
			}
			stagingRegions, err := buf.Regions()
			if err != nil {
				return nil, targetinfo.TargetInfo{}, err
			}
			stagingGroups := make([]region.RegionGroup, len(stagingRegions))
			for i, r := range stagingRegions {
				stagingGroups[i] = region.RegionGroup{Regions: []region.Region{r}}
			}
			stagingSet, err := region.NewRegionSet(stagingGroups, t.layout)
			if err != nil {
				return nil, targetinfo.TargetInfo{}, err
			}
			if _, err := domain.RegisterRegionGroups(stagingSet, netfabric.AccessLocalWrite|netfabric.AccessRemoteWrite); err != nil {
				return nil, targetinfo.TargetInfo{}, err
			}
			remoteRegions, err = domain.RemoteRegions(stagingSet)
			if err != nil {
				return nil, targetinfo.TargetInfo{}, err
			}
			t.audioIngress = protocol.AudioIngress{Buffer: buf, RingSize: uint64(t.layout.Audio.SamplesPerChannel)}
		}
	}

	if cfg.Connectionless {
		info, err := t.setupCL(domain, cfg, remoteRegions)
		if err != nil {
			return nil, targetinfo.TargetInfo{}, err
		}
		return t, info, nil
	}
	info, err := t.setupCO(domain, cfg, remoteRegions)
	if err != nil {
		return nil, targetinfo.TargetInfo{}, err
	}
	return t, info, nil
}

func encodeAddr(a net.Addr) []byte {
	return []byte(a.String())
}

// advance drives the state machine one non-blocking step and returns any
// newly available transfer. Dispatches to the CO or CL variant per spec
// §4.3.1/§4.3.2.
func (t *Target) advance() (TransferResult, error) {
	if t.closed {
		return TransferResult{}, ferrors.New(ferrors.StatusInvalidState, "Target.advance", "target is shut down")
	}
	if t.cfg.Connectionless {
		return t.advanceCL()
	}
	return t.advanceCO()
}

// Read is the non-blocking `targetTryNewGrain` equivalent (ReadBlocking
// backs `targetWaitForNewGrain`): advances the state machine once and returns any newly
// available transfer, or StatusNotReady if nothing arrived yet.
func (t *Target) Read() (TransferResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.advance()
}

// ReadBlocking advances the state machine with blocking queue polls up to
// timeout, returning Timeout if the deadline elapses or Interrupted if a
// shutdown event is observed while waiting.
func (t *Target) ReadBlocking(ctx context.Context, timeout time.Duration) (TransferResult, error) {
	deadline := time.Now().Add(timeout)
	t.mu.Lock()
	closedAtStart := t.closed
	t.mu.Unlock()
	for {
		t.mu.Lock()
		res, err := t.advance()
		closed := t.closed
		t.mu.Unlock()
		if err == nil {
			return res, nil
		}
		if closed && !closedAtStart {
			return TransferResult{}, ferrors.New(ferrors.StatusInterrupted, "Target.ReadBlocking", "target shut down while waiting")
		}
		if ferrors.Is(err, ferrors.StatusInterrupted) {
			return TransferResult{}, err
		}
		if !ferrors.Is(err, ferrors.StatusNotReady) {
			return TransferResult{}, err
		}
		if timeout <= 0 {
			return TransferResult{}, ferrors.New(ferrors.StatusNotReady, "Target.ReadBlocking", "no progress")
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return TransferResult{}, ferrors.New(ferrors.StatusTimeout, "Target.ReadBlocking", "deadline elapsed")
		}
		select {
		case <-ctx.Done():
			return TransferResult{}, ferrors.Wrap(ferrors.StatusInterrupted, "Target.ReadBlocking", ctx.Err())
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

// decodeTransfer turns a completion's immediate-data word into a
// TransferResult, performing index recovery per spec §4.3.3 and, for audio,
// unpacking the arrived bounce entry into the Target's final channel
// buffers.
func (t *Target) decodeTransfer(immData uint32) (TransferResult, error) {
	if !t.hasRegions {
		return TransferResult{}, ferrors.New(ferrors.StatusInternal, "Target.decodeTransfer", "target has no region set configured")
	}
	switch t.layout.Kind {
	case region.LayoutVideo:
		idx, last := t.grainIngress.Decode(immData, t.referenceGrain)
		t.referenceGrain = idx
		metrics.TransfersCompleted.WithLabelValues("video", "ok").Inc()
		return TransferResult{Layout: region.LayoutVideo, RingIndex: idx, LastSlice: last}, nil

	case region.LayoutAudio:
		entryIdx, head, count := t.audioIngress.Decode(immData, t.referenceHead)
		t.referenceHead = head
		dst := make([][]byte, len(t.finalAudio.Regions))
		for i, r := range t.finalAudio.Regions {
			dst[i] = r.Data
		}
		if err := t.audioIngress.Unpack(int(entryIdx), head, uint32(count), dst); err != nil {
			metrics.TransfersCompleted.WithLabelValues("audio", "error").Inc()
			return TransferResult{}, err
		}
		metrics.TransfersCompleted.WithLabelValues("audio", "ok").Inc()
		return TransferResult{Layout: region.LayoutAudio, BounceEntryIndex: int(entryIdx), HeadIndex: head, Count: count}, nil

	default:
		return TransferResult{}, ferrors.New(ferrors.StatusInternal, "Target.decodeTransfer", "target has no region set configured")
	}
}

// Shutdown closes the Target's listener/endpoint and releases its Domain.
// Any in-flight ReadBlocking observes Interrupted.
func (t *Target) Shutdown() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	obslog.With("target").Info("shutdown", "identity", t.identity)

	var err error
	if t.ep != nil {
		err = t.ep.Shutdown()
	}
	if t.passive != nil {
		if e := t.passive.Close(); e != nil && err == nil {
			err = e
		}
	}
	if e := t.domain.Close(); e != nil && err == nil {
		err = e
	}
	if e := t.fabric.Close(); e != nil && err == nil {
		err = e
	}
	if t.coState == coConnected || t.cfg.Connectionless {
		metrics.ConnectionsActive.WithLabelValues("target", t.backend).Dec()
	}
	return err
}
