package bounce

import (
	"github.com/mxl-media/fabrics/internal/ferrors"
	"github.com/mxl-media/fabrics/internal/region"
)

// DiscreteUnpacker is the grain BounceBufferUnpacker variant: planes are
// concatenated into (and split back out of) the staging entry in order,
// with no ring-wrap handling since a grain's planes are not a circular
// buffer. RMA-grain transfers normally bypass bounce-buffering entirely
// (§4.5.1); this variant exists so the two-kind Unpacker contract is
// complete and mis-pairing with ContinuousUnpacker is still detectable,
// ported from BounceBufferDiscreteUnpacker in the original implementation.
type DiscreteUnpacker struct {
	Layout region.VideoLayout
}

func (d DiscreteUnpacker) Kind() Kind { return KindDiscrete }

func (d DiscreteUnpacker) EntrySize() int {
	var total int
	for _, s := range d.Layout.PlaneSliceSizes {
		total += int(s)
	}
	return total
}

func (d DiscreteUnpacker) UnpackFull(entry Entry, dst [][]byte) error {
	return d.copy(entry, dst, false)
}

// UnpackWindow is accepted for interface symmetry but a grain's planes
// aren't sample-indexed, so it always copies the full entry; headIndex and
// count are ignored.
func (d DiscreteUnpacker) UnpackWindow(entry Entry, _ uint64, _ uint32, dst [][]byte) error {
	return d.UnpackFull(entry, dst)
}

func (d DiscreteUnpacker) Gather(entry Entry, _ uint64, _ uint32, src [][]byte) error {
	return d.copy(entry, src, true)
}

func (d DiscreteUnpacker) copy(entry Entry, bufs [][]byte, toEntry bool) error {
	if len(bufs) != len(d.Layout.PlaneSliceSizes) {
		return ferrors.New(ferrors.StatusInvalidArg, "DiscreteUnpacker", "plane buffer count must match layout")
	}
	off := 0
	for i, size := range d.Layout.PlaneSliceSizes {
		n := int(size)
		if len(bufs[i]) < n {
			return ferrors.New(ferrors.StatusInvalidArg, "DiscreteUnpacker", "plane buffer smaller than slice size")
		}
		if toEntry {
			copy(entry.Data[off:off+n], bufs[i][:n])
		} else {
			copy(bufs[i][:n], entry.Data[off:off+n])
		}
		off += n
	}
	return nil
}
