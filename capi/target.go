package capi

import (
	"context"
	"time"

	"github.com/mxl-media/fabrics/internal/ferrors"
	"github.com/mxl-media/fabrics/internal/region"
	"github.com/mxl-media/fabrics/internal/target"
)

// TargetHandle is an opaque reference to a *target.Target.
type TargetHandle uint64

var targets = newRegistry()

// EndpointConfig is the endpoint/provider/regions/deviceSupport config shape
// shared by targetSetup and initiatorSetup (spec §6).
type EndpointConfig struct {
	Provider       Provider
	Connectionless bool
	Node, Service  string
	Regions        RegionSetHandle // zero value: no regions (spec §8 scenarios 1-2)
	DeviceSupport  bool
}

// CreateTarget allocates a TargetHandle under instance. No I/O happens until
// TargetSetup.
func CreateTarget(instanceHandle FabricsInstanceHandle) (TargetHandle, Status, error) {
	if err := lookupInstance("CreateTarget", instanceHandle); err != nil {
		return 0, statusOf(err), err
	}
	return TargetHandle(targets.put((*target.Target)(nil))), StatusOK, nil
}

// TargetSetup opens the Target's Fabric/Domain and starts listening (CO) or
// enables its endpoint (CL), returning the TargetInfoHandle an Initiator
// needs to reach it.
func TargetSetup(ctx context.Context, h TargetHandle, cfg EndpointConfig) (TargetInfoHandle, Status, error) {
	if _, ok := targets.get(uint64(h)); !ok {
		err := invalidHandle("TargetSetup")
		return 0, statusOf(err), err
	}

	var regions *region.RegionSet
	if cfg.Regions != 0 {
		rs, err := lookupRegionSet("TargetSetup", cfg.Regions)
		if err != nil {
			return 0, statusOf(err), err
		}
		regions = rs
	}

	tgt, info, err := target.Setup(ctx, target.Config{
		Provider:       cfg.Provider,
		Connectionless: cfg.Connectionless,
		Node:           cfg.Node,
		Service:        cfg.Service,
		Regions:        regions,
		DeviceSupport:  cfg.DeviceSupport,
	})
	if err != nil {
		return 0, statusOf(err), err
	}
	targets.replace(uint64(h), tgt)
	return TargetInfoHandle(targetInfos.put(info)), StatusOK, nil
}

// TargetTryNewGrain is the non-blocking poll: NotReady if nothing has
// arrived yet.
func TargetTryNewGrain(h TargetHandle) (TransferResult, Status, error) {
	tgt, err := lookupTarget("TargetTryNewGrain", h)
	if err != nil {
		return TransferResult{}, statusOf(err), err
	}
	res, err := tgt.Read()
	if err != nil {
		return TransferResult{}, statusOf(err), err
	}
	return fromInternalResult(res), StatusOK, nil
}

// TargetWaitForNewGrain blocks up to timeout for a transfer to arrive.
func TargetWaitForNewGrain(ctx context.Context, h TargetHandle, timeout time.Duration) (TransferResult, Status, error) {
	tgt, err := lookupTarget("TargetWaitForNewGrain", h)
	if err != nil {
		return TransferResult{}, statusOf(err), err
	}
	res, err := tgt.ReadBlocking(ctx, timeout)
	if err != nil {
		return TransferResult{}, statusOf(err), err
	}
	return fromInternalResult(res), StatusOK, nil
}

// TargetShutdown closes the Target's PassiveEndpoint and any active
// endpoint; any in-flight TargetWaitForNewGrain returns Interrupted.
func TargetShutdown(h TargetHandle) Status {
	tgt, err := lookupTarget("TargetShutdown", h)
	if err != nil {
		return StatusInvalidArg
	}
	targets.delete(uint64(h))
	return statusOf(tgt.Shutdown())
}

// TransferResult mirrors target.TransferResult at the C boundary.
type TransferResult struct {
	Layout region.LayoutKind

	RingIndex uint64
	LastSlice uint16

	BounceEntryIndex int
	HeadIndex        uint64
	Count            uint16
}

func fromInternalResult(r target.TransferResult) TransferResult {
	return TransferResult{
		Layout:           r.Layout,
		RingIndex:        r.RingIndex,
		LastSlice:        r.LastSlice,
		BounceEntryIndex: r.BounceEntryIndex,
		HeadIndex:        r.HeadIndex,
		Count:            r.Count,
	}
}

func lookupTarget(op string, h TargetHandle) (*target.Target, error) {
	v, ok := targets.get(uint64(h))
	if !ok {
		return nil, invalidHandle(op)
	}
	tgt, ok := v.(*target.Target)
	if !ok || tgt == nil {
		return nil, ferrors.New(ferrors.StatusInvalidState, op, "target handle created but not yet set up")
	}
	return tgt, nil
}
