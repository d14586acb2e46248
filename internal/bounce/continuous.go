package bounce

import (
	"github.com/mxl-media/fabrics/internal/ferrors"
	"github.com/mxl-media/fabrics/internal/region"
)

// ContinuousUnpacker is the audio BounceBufferUnpacker variant: it gathers
// and scatters a non-interleaved multi-channel sample window, one channel
// buffer per slice of src/dst, ported from AudioBounceBuffer{,Entry} in the
// original implementation.
type ContinuousUnpacker struct {
	Layout region.AudioLayout
}

func (c ContinuousUnpacker) Kind() Kind { return KindContinuous }

// EntrySize sizes the staging entry for the largest possible transfer: a
// full-ring refresh across every channel.
func (c ContinuousUnpacker) EntrySize() int {
	return c.Layout.ChannelCount * c.Layout.SamplesPerChannel * c.Layout.BytesPerSample
}

func (c ContinuousUnpacker) UnpackFull(entry Entry, dst [][]byte) error {
	return c.UnpackWindow(entry, 0, uint32(c.Layout.SamplesPerChannel), dst)
}

func (c ContinuousUnpacker) UnpackWindow(entry Entry, headIndex uint64, count uint32, dst [][]byte) error {
	return c.copy(entry, headIndex, count, dst, false)
}

func (c ContinuousUnpacker) Gather(entry Entry, headIndex uint64, count uint32, src [][]byte) error {
	return c.copy(entry, headIndex, count, src, true)
}

// copy walks the same fragment/channel ordering for both directions so the
// staging entry's byte layout (frag0-ch0, frag0-ch1, ..., frag1-ch0, ...) is
// identical whether it's being filled (toEntry) or drained.
func (c ContinuousUnpacker) copy(entry Entry, headIndex uint64, count uint32, bufs [][]byte, toEntry bool) error {
	if len(bufs) != c.Layout.ChannelCount {
		return ferrors.New(ferrors.StatusInvalidArg, "ContinuousUnpacker", "channel buffer count must match layout")
	}
	if int(count) > c.Layout.SamplesPerChannel {
		return ferrors.New(ferrors.StatusInvalidArg, "ContinuousUnpacker", "count exceeds ring capacity")
	}

	frags := PlanWindow(c.Layout.SamplesPerChannel, c.Layout.BytesPerSample, headIndex, count)
	entryOff := 0
	for _, f := range frags {
		if f.Length == 0 {
			continue
		}
		end := f.Offset + f.Length
		for ch := 0; ch < c.Layout.ChannelCount; ch++ {
			if uint64(len(bufs[ch])) < end {
				return ferrors.New(ferrors.StatusInvalidArg, "ContinuousUnpacker", "channel buffer smaller than ring capacity")
			}
			if toEntry {
				copy(entry.Data[entryOff:entryOff+int(f.Length)], bufs[ch][f.Offset:end])
			} else {
				copy(bufs[ch][f.Offset:end], entry.Data[entryOff:entryOff+int(f.Length)])
			}
			entryOff += int(f.Length)
		}
	}
	return nil
}
