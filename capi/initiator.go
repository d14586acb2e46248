package capi

import (
	"context"
	"time"

	"github.com/mxl-media/fabrics/internal/ferrors"
	"github.com/mxl-media/fabrics/internal/initiator"
	"github.com/mxl-media/fabrics/internal/region"
)

// InitiatorHandle is an opaque reference to a *initiator.Initiator.
type InitiatorHandle uint64

var initiators = newRegistry()

// CreateInitiator allocates an InitiatorHandle under instance. No I/O
// happens until InitiatorSetup.
func CreateInitiator(instanceHandle FabricsInstanceHandle) (InitiatorHandle, Status, error) {
	if err := lookupInstance("CreateInitiator", instanceHandle); err != nil {
		return 0, statusOf(err), err
	}
	return InitiatorHandle(initiators.put((*initiator.Initiator)(nil))), StatusOK, nil
}

// InitiatorSetup opens the Initiator's Fabric/Domain for cfg's provider and
// registers cfg.Regions (if any) for local access.
func InitiatorSetup(ctx context.Context, h InitiatorHandle, cfg EndpointConfig) (Status, error) {
	if _, ok := initiators.get(uint64(h)); !ok {
		err := invalidHandle("InitiatorSetup")
		return statusOf(err), err
	}

	var regions *region.RegionSet
	if cfg.Regions != 0 {
		rs, err := lookupRegionSet("InitiatorSetup", cfg.Regions)
		if err != nil {
			return statusOf(err), err
		}
		regions = rs
	}

	in, err := initiator.Setup(ctx, initiator.Config{
		Provider:       cfg.Provider,
		Connectionless: cfg.Connectionless,
		Node:           cfg.Node,
		Service:        cfg.Service,
		Regions:        regions,
		DeviceSupport:  cfg.DeviceSupport,
	})
	if err != nil {
		return statusOf(err), err
	}
	initiators.replace(uint64(h), in)
	return StatusOK, nil
}

// InitiatorAddTarget registers a peer Target's published TargetInfo.
// Idempotent for an already-known identifier (spec §9(a)).
func InitiatorAddTarget(h InitiatorHandle, infoHandle TargetInfoHandle) (Status, error) {
	in, err := lookupInitiator("InitiatorAddTarget", h)
	if err != nil {
		return statusOf(err), err
	}
	info, err := lookupTargetInfo("InitiatorAddTarget", infoHandle)
	if err != nil {
		return statusOf(err), err
	}
	err = in.AddTarget(info)
	return statusOf(err), err
}

// InitiatorRemoveTarget requests a graceful shutdown for the given peer.
// NotFound if identifier was never added (or already evicted as Done).
func InitiatorRemoveTarget(h InitiatorHandle, identifier uint64) (Status, error) {
	in, err := lookupInitiator("InitiatorRemoveTarget", h)
	if err != nil {
		return statusOf(err), err
	}
	err = in.RemoveTarget(identifier)
	return statusOf(err), err
}

// InitiatorTransferGrain posts a discrete/video one-sided write to every
// writable peer, per spec §4.4.3.
func InitiatorTransferGrain(h InitiatorHandle, grainIndex, payloadOffset uint64, startSlice, endSlice uint32) (Status, error) {
	in, err := lookupInitiator("InitiatorTransferGrain", h)
	if err != nil {
		return statusOf(err), err
	}
	sliceRange, err := region.NewSliceRange(startSlice, endSlice)
	if err != nil {
		return statusOf(err), err
	}
	err = in.TransferGrain(grainIndex, payloadOffset, sliceRange)
	return statusOf(err), err
}

// InitiatorTransferGrainToTarget is InitiatorTransferGrain targeted at a
// single peer, with independent local/remote ring indices.
func InitiatorTransferGrainToTarget(h InitiatorHandle, targetID, localIdx, remoteIdx, payloadOffset uint64, startSlice, endSlice uint32) (Status, error) {
	in, err := lookupInitiator("InitiatorTransferGrainToTarget", h)
	if err != nil {
		return statusOf(err), err
	}
	sliceRange, err := region.NewSliceRange(startSlice, endSlice)
	if err != nil {
		return statusOf(err), err
	}
	err = in.TransferGrainToTarget(targetID, localIdx, remoteIdx, payloadOffset, sliceRange)
	return statusOf(err), err
}

// InitiatorTransferSamples gathers [headIndex, headIndex+count) from the
// Initiator's own channel buffers and posts it to every writable peer.
func InitiatorTransferSamples(h InitiatorHandle, headIndex uint64, count uint32) (Status, error) {
	in, err := lookupInitiator("InitiatorTransferSamples", h)
	if err != nil {
		return statusOf(err), err
	}
	err = in.TransferSamples(headIndex, count)
	return statusOf(err), err
}

// InitiatorMakeProgressNonBlocking drains the Initiator's queues once and
// reports whether work remains pending.
func InitiatorMakeProgressNonBlocking(h InitiatorHandle) (bool, Status, error) {
	in, err := lookupInitiator("InitiatorMakeProgressNonBlocking", h)
	if err != nil {
		return false, statusOf(err), err
	}
	pending, err := in.MakeProgress()
	return pending, statusOf(err), err
}

// InitiatorMakeProgressBlocking drains the Initiator's queues until no work
// is pending, ctx is cancelled, or timeout elapses.
func InitiatorMakeProgressBlocking(ctx context.Context, h InitiatorHandle, timeout time.Duration) (bool, Status, error) {
	in, err := lookupInitiator("InitiatorMakeProgressBlocking", h)
	if err != nil {
		return false, statusOf(err), err
	}
	pending, err := in.MakeProgressBlocking(ctx, timeout)
	return pending, statusOf(err), err
}

// InitiatorShutdown closes every peer's endpoint and releases the
// Initiator's Domain.
func InitiatorShutdown(h InitiatorHandle) Status {
	in, err := lookupInitiator("InitiatorShutdown", h)
	if err != nil {
		return StatusInvalidArg
	}
	initiators.delete(uint64(h))
	return statusOf(in.Shutdown())
}

func lookupInitiator(op string, h InitiatorHandle) (*initiator.Initiator, error) {
	v, ok := initiators.get(uint64(h))
	if !ok {
		return nil, invalidHandle(op)
	}
	in, ok := v.(*initiator.Initiator)
	if !ok || in == nil {
		return nil, ferrors.New(ferrors.StatusInvalidState, op, "initiator handle created but not yet set up")
	}
	return in, nil
}
