// Package bounce implements the staging buffers used to merge or split
// non-contiguous layouts for a single transfer (spec §4.5.2, "Bounce-buffered
// (continuous / audio)"). Grounded on the original implementation's
// BounceBuffer/AudioBounceBuffer pair: a fixed-size ring of staging entries,
// each sized for the largest possible transfer, gathered into on send and
// unpacked out of on receive.
package bounce

import (
	"github.com/mxl-media/fabrics/internal/ferrors"
	"github.com/mxl-media/fabrics/internal/region"
)

// NumberOfEntries is the staging ring depth, matching the original
// implementation's BounceBuffer::NUMBER_OF_ENTRIES.
const NumberOfEntries = 4

// Entry is one fixed-size staging slot.
type Entry struct {
	Data []byte
}

// Kind discriminates the two BounceBufferUnpacker variants spec §4.5.2
// requires. Gathering through an Unpacker with no egress support fails with
// StatusInternal; a channel or plane count that does not match the layout
// fails with StatusInvalidArg.
type Kind int

const (
	KindDiscrete Kind = iota
	KindContinuous
)

func (k Kind) String() string {
	if k == KindContinuous {
		return "continuous"
	}
	return "discrete"
}

// Unpacker copies a staging Entry's bytes into (or out of) the consumer's
// final layout. ContinuousUnpacker and DiscreteUnpacker are the two
// concrete variants.
type Unpacker interface {
	Kind() Kind
	EntrySize() int
	UnpackFull(entry Entry, dst [][]byte) error
	UnpackWindow(entry Entry, headIndex uint64, count uint32, dst [][]byte) error
}

// gatherer is implemented by Unpackers that also support the egress
// direction (gathering scattered source data into a staging Entry).
// DiscreteUnpacker supports it as a straight concatenation; it exists as a
// separate interface so Buffer.Gather can fail Internal for any future
// ingress-only Unpacker variant instead of panicking on a type assertion.
type gatherer interface {
	Gather(entry Entry, headIndex uint64, count uint32, src [][]byte) error
}

// Buffer is the runtime staging ring: NumberOfEntries entries, each sized to
// the Unpacker's largest possible transfer.
type Buffer struct {
	unpacker Unpacker
	entries  []Entry
}

// NewBuffer allocates a Buffer's NumberOfEntries staging entries, each
// unpacker.EntrySize() bytes.
func NewBuffer(unpacker Unpacker) (*Buffer, error) {
	size := unpacker.EntrySize()
	if size <= 0 {
		return nil, ferrors.New(ferrors.StatusInvalidArg, "bounce.NewBuffer", "entry size must be > 0")
	}
	entries := make([]Entry, NumberOfEntries)
	for i := range entries {
		entries[i] = Entry{Data: make([]byte, size)}
	}
	return &Buffer{unpacker: unpacker, entries: entries}, nil
}

// Kind returns the Buffer's Unpacker variant.
func (b *Buffer) Kind() Kind { return b.unpacker.Kind() }

// NumEntries returns the staging ring depth.
func (b *Buffer) NumEntries() int { return len(b.entries) }

// EntryAt returns the entry at the given absolute index, modulo ring depth.
func (b *Buffer) EntryAt(index uint64) Entry {
	return b.entries[index%uint64(len(b.entries))]
}

// EntryIndexFor returns which staging slot a transfer rooted at headIndex
// round-robins to, per spec §4.5.2 ("round-robin by headIndex mod N").
func (b *Buffer) EntryIndexFor(headIndex uint64) int {
	return int(headIndex % uint64(len(b.entries)))
}

// Regions returns one host-memory region.Region per staging entry, for
// registration as RDMA-writable memory by internal/netfabric.
func (b *Buffer) Regions() ([]region.Region, error) {
	out := make([]region.Region, len(b.entries))
	for i, e := range b.entries {
		r, err := region.NewRegion(e.Data, region.Host())
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

// Gather packs src (one []byte per channel/plane) into the staging entry
// selected by headIndex mod ring depth, returning the chosen entry index so
// the caller can address the matching write at the peer. Fails Internal if
// the Buffer's Unpacker doesn't support egress (mis-paired kind).
func (b *Buffer) Gather(headIndex uint64, count uint32, src [][]byte) (int, error) {
	g, ok := b.unpacker.(gatherer)
	if !ok {
		return 0, ferrors.New(ferrors.StatusInternal, "Buffer.Gather", "bounce buffer unpacker does not support egress")
	}
	idx := b.EntryIndexFor(headIndex)
	if err := g.Gather(b.entries[idx], headIndex, count, src); err != nil {
		return 0, err
	}
	return idx, nil
}

// UnpackWindow copies entryIndex's staging bytes into dst, restoring the
// per-channel/plane stride pattern for the sample window [headIndex,
// headIndex+count).
func (b *Buffer) UnpackWindow(entryIndex int, headIndex uint64, count uint32, dst [][]byte) error {
	if entryIndex < 0 || entryIndex >= len(b.entries) {
		return ferrors.New(ferrors.StatusInvalidArg, "Buffer.UnpackWindow", "entry index out of range")
	}
	return b.unpacker.UnpackWindow(b.entries[entryIndex], headIndex, count, dst)
}

// UnpackFull copies the entire entry into dst.
func (b *Buffer) UnpackFull(entryIndex int, dst [][]byte) error {
	if entryIndex < 0 || entryIndex >= len(b.entries) {
		return ferrors.New(ferrors.StatusInvalidArg, "Buffer.UnpackFull", "entry index out of range")
	}
	return b.unpacker.UnpackFull(b.entries[entryIndex], dst)
}

// Fragment is a half-open byte range [Offset, Offset+Length) within a single
// channel's ring buffer.
type Fragment struct {
	Offset uint64
	Length uint64
}

// PlanWindow returns the scatter-gather fragments covering the sample range
// [headIndex, headIndex+count) of a ring holding ringSamples samples per
// channel, in byte units. A second fragment is returned only when the
// window wraps past the end of the ring (spec §8 scenario 4: "at most 2
// fragments per channel on wrap").
func PlanWindow(ringSamples, bytesPerSample int, headIndex uint64, count uint32) []Fragment {
	ringBytes := uint64(ringSamples) * uint64(bytesPerSample)
	start := (headIndex % uint64(ringSamples)) * uint64(bytesPerSample)
	total := uint64(count) * uint64(bytesPerSample)

	if start+total <= ringBytes {
		return []Fragment{{Offset: start, Length: total}}
	}
	first := ringBytes - start
	return []Fragment{{Offset: start, Length: first}, {Offset: 0, Length: total - first}}
}
