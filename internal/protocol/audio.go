package protocol

import (
	"github.com/mxl-media/fabrics/internal/bounce"
	"github.com/mxl-media/fabrics/internal/immdata"
)

// AudioWriteRequest is the single write a bounce-buffered audio transfer
// posts: the chosen staging entry and the packed immediate-data tag.
type AudioWriteRequest struct {
	EntryIndex int
	ImmData    uint32
}

// AudioEgress plans bounce-buffered writes for a continuous/audio transfer
// (spec §4.5.2): gather scattered channel buffers into a staging entry,
// then post one contiguous write.
type AudioEgress struct {
	Buffer *bounce.Buffer
}

func (AudioEgress) Kind() Kind { return KindAudio }

// Plan gathers src (one []byte per channel) into the staging entry selected
// by headIndex mod the buffer's ring depth, and returns the write request
// tagged with the packed (entry, headIndex, count) immediate-data word.
func (a AudioEgress) Plan(headIndex uint64, count uint32, src [][]byte) (AudioWriteRequest, error) {
	idx, err := a.Buffer.Gather(headIndex, count, src)
	if err != nil {
		return AudioWriteRequest{}, err
	}
	tag := immdata.NewSample(uint8(idx), headIndex, count)
	return AudioWriteRequest{EntryIndex: idx, ImmData: tag.Raw()}, nil
}

// AudioIngress decodes an arriving audio transfer's immediate data and
// unpacks its staging entry back into the consumer's per-channel layout.
type AudioIngress struct {
	Buffer   *bounce.Buffer
	RingSize uint64 // ring capacity in samples per channel, for head-index recovery
}

func (AudioIngress) Kind() Kind { return KindAudio }

// Decode recovers the staging entry index, the absolute head index, and the
// per-channel sample count from a write's immediate data.
func (a AudioIngress) Decode(immData uint32, reference uint64) (entryIndex uint8, headIndex uint64, count uint16) {
	s := immdata.SampleFromRaw(immData)
	entry, partialHead, c := s.Unpack()
	return entry, immdata.NearestRingIndex(uint64(partialHead), a.RingSize, reference), c
}

// Unpack scatters the staging entry at entryIndex back into dst (one
// []byte per channel) for the sample window [headIndex, headIndex+count).
func (a AudioIngress) Unpack(entryIndex int, headIndex uint64, count uint32, dst [][]byte) error {
	return a.Buffer.UnpackWindow(entryIndex, headIndex, count, dst)
}
