package initiator

import (
	"github.com/mxl-media/fabrics/internal/endpoint"
	"github.com/mxl-media/fabrics/internal/ferrors"
	"github.com/mxl-media/fabrics/internal/metrics"
	"github.com/mxl-media/fabrics/internal/protocol"
	"github.com/mxl-media/fabrics/internal/region"
)

// TransferGrain posts a one-sided write of sliceRange from grainIndex's slot
// in this Initiator's own ring to the matching slot in every writable peer's
// ring (spec §4.4.3). Both rings are assumed to share a ring size; use
// TransferGrainToTarget when they differ.
func (in *Initiator) TransferGrain(grainIndex uint64, payloadOffset uint64, sliceRange region.SliceRange) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if !in.hasRegions || in.layout.Kind != region.LayoutVideo {
		return ferrors.New(ferrors.StatusInvalidArg, "Initiator.TransferGrain", "initiator has no video region set configured")
	}
	ringSlot := grainIndex % uint64(in.cfg.Regions.RingSize())
	return in.postGrainToWritablePeers(ringSlot, ringSlot, payloadOffset, sliceRange, 0, false)
}

// TransferGrainToTarget is TransferGrain targeted at a single peer, with
// independent local and remote ring indices for when the two rings differ
// in size or phase.
func (in *Initiator) TransferGrainToTarget(targetID uint64, localIdx, remoteIdx uint64, payloadOffset uint64, sliceRange region.SliceRange) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if !in.hasRegions || in.layout.Kind != region.LayoutVideo {
		return ferrors.New(ferrors.StatusInvalidArg, "Initiator.TransferGrainToTarget", "initiator has no video region set configured")
	}
	return in.postGrainToWritablePeers(localIdx, remoteIdx, payloadOffset, sliceRange, targetID, true)
}

func (in *Initiator) postGrainToWritablePeers(localIdx, remoteIdx uint64, payloadOffset uint64, sliceRange region.SliceRange, targetID uint64, targeted bool) error {
	group := in.cfg.Regions.GroupAt(localIdx)
	reqs, err := in.grainEgress.Plan(remoteIdx, payloadOffset, sliceRange)
	if err != nil {
		return err
	}

	if in.cfg.Connectionless {
		for id, p := range in.clPeers {
			if targeted && id != targetID {
				continue
			}
			if p.state != clActivated {
				continue
			}
			if err := postGrainWrites(in.ep, group, reqs, p.info.Regions, remoteIdx, p.fiAddr, p.info.Identifier); err != nil {
				return err
			}
		}
		return nil
	}

	for id, p := range in.coPeers {
		if targeted && id != targetID {
			continue
		}
		if p.state != coConnected {
			continue
		}
		if err := postGrainWrites(p.ep, group, reqs, p.info.Regions, remoteIdx, 0, p.info.Identifier); err != nil {
			return err
		}
		p.pending += len(reqs)
	}
	return nil
}

// postGrainWrites issues one Write per planned plane, honoring the
// WRITE_WITH_IMM convention that only the last plane carries a non-zero
// immediate-data tag.
func postGrainWrites(ep *endpoint.Endpoint, group region.RegionGroup, reqs []protocol.GrainWriteRequest, remoteRegions []region.RemoteRegion, remoteIdx uint64, dest uint64, token uint64) error {
	planes := len(reqs)
	base := remoteIdx * uint64(planes)
	if base+uint64(planes) > uint64(len(remoteRegions)) {
		return ferrors.New(ferrors.StatusInvalidArg, "Initiator", "remote ring slot out of range for this target's published regions")
	}
	for _, req := range reqs {
		payload := group.Regions[req.Plane].Data[req.LocalOffset : req.LocalOffset+req.Length]
		remote, err := remoteRegions[base+uint64(req.Plane)].Sub(req.RemoteOffset, req.Length)
		if err != nil {
			return err
		}
		if _, err := ep.Write(token, region.LocalRegion{}, payload, remote, dest, req.ImmData); err != nil {
			metrics.TransfersCompleted.WithLabelValues("video", "error").Inc()
			return err
		}
		metrics.TransfersCompleted.WithLabelValues("video", "ok").Inc()
	}
	return nil
}

// TransferSamples gathers [headIndex, headIndex+count) from this
// Initiator's own channel buffers into its local bounce buffer and posts
// the gathered staging entry to every writable peer's matching entry.
func (in *Initiator) TransferSamples(headIndex uint64, count uint32) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if !in.hasRegions || in.layout.Kind != region.LayoutAudio {
		return ferrors.New(ferrors.StatusInvalidArg, "Initiator.TransferSamples", "initiator has no audio region set configured")
	}
	group := in.cfg.Regions.GroupAt(0)
	src := make([][]byte, len(group.Regions))
	for i, r := range group.Regions {
		src[i] = r.Data
	}
	req, err := in.audioEgress.Plan(headIndex, count, src)
	if err != nil {
		return err
	}
	entry := in.audioEgress.Buffer.EntryAt(uint64(req.EntryIndex))

	if in.cfg.Connectionless {
		for _, p := range in.clPeers {
			if p.state != clActivated {
				continue
			}
			if err := postAudioWrite(in.ep, entry.Data, p.info.Regions, req, p.fiAddr, p.info.Identifier); err != nil {
				return err
			}
		}
		return nil
	}
	for _, p := range in.coPeers {
		if p.state != coConnected {
			continue
		}
		if err := postAudioWrite(p.ep, entry.Data, p.info.Regions, req, 0, p.info.Identifier); err != nil {
			return err
		}
		p.pending++
	}
	return nil
}

func postAudioWrite(ep *endpoint.Endpoint, payload []byte, remoteRegions []region.RemoteRegion, req protocol.AudioWriteRequest, dest uint64, token uint64) error {
	if req.EntryIndex >= len(remoteRegions) {
		return ferrors.New(ferrors.StatusInvalidArg, "Initiator", "bounce entry index out of range for this target's published regions")
	}
	remote := remoteRegions[req.EntryIndex]
	if _, err := ep.Write(token, region.LocalRegion{}, payload, remote, dest, req.ImmData); err != nil {
		metrics.TransfersCompleted.WithLabelValues("audio", "error").Inc()
		return err
	}
	metrics.TransfersCompleted.WithLabelValues("audio", "ok").Inc()
	return nil
}
