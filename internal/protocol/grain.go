package protocol

import (
	"github.com/mxl-media/fabrics/internal/ferrors"
	"github.com/mxl-media/fabrics/internal/immdata"
	"github.com/mxl-media/fabrics/internal/region"
)

// GrainWriteRequest is one planned write for an RMA-grain transfer: the
// byte range within a single plane's local and remote sub-region. Only the
// last plane's request carries the non-zero immediate-data tag — mirrors a
// real RDMA NIC's WRITE_WITH_IMM convention of signalling arrival only on
// the final segment of a multi-part transfer.
type GrainWriteRequest struct {
	Plane                     int
	LocalOffset, RemoteOffset uint64
	Length                    uint64
	ImmData                   uint32
}

// GrainEgress plans the direct remote writes for a discrete/video transfer
// (spec §4.5.1): no copy on the initiator, sub-regions computed straight
// from the slice range and per-plane slice size.
type GrainEgress struct {
	Layout region.VideoLayout
}

func (GrainEgress) Kind() Kind { return KindVideo }

// Plan computes one GrainWriteRequest per plane for a transfer of
// sliceRange into ring slot ringSlot, tagging the last plane's request with
// the packed (ringSlot, sliceRange.End) immediate-data word.
func (g GrainEgress) Plan(ringSlot uint64, payloadOffset uint64, sliceRange region.SliceRange) ([]GrainWriteRequest, error) {
	if len(g.Layout.PlaneSliceSizes) == 0 {
		return nil, ferrors.New(ferrors.StatusInvalidArg, "GrainEgress.Plan", "video layout has no planes")
	}

	reqs := make([]GrainWriteRequest, len(g.Layout.PlaneSliceSizes))
	for i, sliceSize := range g.Layout.PlaneSliceSizes {
		off := sliceRange.TransferOffset(payloadOffset, sliceSize)
		size := sliceRange.TransferSize(payloadOffset, sliceSize)
		reqs[i] = GrainWriteRequest{Plane: i, LocalOffset: off, RemoteOffset: off, Length: size}
	}

	tag := immdata.NewGrain(ringSlot, uint16(sliceRange.End))
	reqs[len(reqs)-1].ImmData = tag.Raw()
	return reqs, nil
}

// GrainIngress decodes an arriving grain's immediate data into an absolute
// ring index (spec §4.3.3 index recovery).
type GrainIngress struct {
	RingSize uint64
}

func (GrainIngress) Kind() Kind { return KindVideo }

// Decode recovers the absolute ring index and the exclusive last-slice
// index from a write's immediate data, disambiguating the partial index
// against reference (the caller's best estimate of the current grain).
func (g GrainIngress) Decode(immData uint32, reference uint64) (absoluteIndex uint64, lastSlice uint16) {
	grain := immdata.GrainFromRaw(immData)
	ringPart, last := grain.Unpack()
	return immdata.NearestRingIndex(uint64(ringPart), g.RingSize, reference), last
}
