// Package region implements the fabrics core's memory-region data model:
// Region, RegionGroup, RegionSet, and their registered counterparts
// LocalRegion and RemoteRegion, plus the SliceRange and DataLayout types
// that describe how a grain or audio window is carved up for transfer.
package region

import (
	"unsafe"

	"github.com/mxl-media/fabrics/internal/ferrors"
)

// Location tags where a Region's bytes live: host memory, or a specific
// device (e.g. a GPU) identified by DeviceID.
type Location struct {
	Device   bool
	DeviceID int
}

// Host returns the host-memory Location.
func Host() Location { return Location{} }

// OnDevice returns a Location for device memory at the given device index.
func OnDevice(id int) Location { return Location{Device: true, DeviceID: id} }

// Region is a single contiguous span of memory: the backing bytes plus the
// location tag. Base is computed from the address of Data's first byte, so
// that it behaves like a real virtual address the way a registered RDMA
// region's address would.
type Region struct {
	Data []byte
	Loc  Location
}

// NewRegion wraps a caller-owned buffer as a Region. The buffer must not be
// resliced or garbage collected while the Region (or anything registered
// from it) is alive.
func NewRegion(data []byte, loc Location) (Region, error) {
	if len(data) == 0 {
		return Region{}, ferrors.New(ferrors.StatusInvalidArg, "NewRegion", "length must be > 0")
	}
	return Region{Data: data, Loc: loc}, nil
}

// Base returns the region's synthetic address: the address of its first byte.
func (r Region) Base() uint64 {
	if len(r.Data) == 0 {
		return 0
	}
	return uint64(uintptr(unsafe.Pointer(&r.Data[0])))
}

// Size returns the region's length in bytes.
func (r Region) Size() uint64 {
	return uint64(len(r.Data))
}

// Sub returns a sub-region of length len starting at byte offset off,
// validating that it fits within the region. Mirrors the "offset + len >
// region.len fails InvalidArg" boundary behaviour.
func (r Region) Sub(off, length uint64) (Region, error) {
	if off+length > r.Size() {
		return Region{}, ferrors.New(ferrors.StatusInvalidArg, "Region.Sub", "offset+len exceeds region length")
	}
	return Region{Data: r.Data[off : off+length], Loc: r.Loc}, nil
}

// RegionGroup is one logical grain (or audio window) spread over one or more
// Regions — e.g. one Region per video plane.
type RegionGroup struct {
	Regions []Region
}

// TotalSize returns the sum of every Region's size in the group.
func (g RegionGroup) TotalSize() uint64 {
	var total uint64
	for _, r := range g.Regions {
		total += r.Size()
	}
	return total
}

// LayoutKind discriminates the two supported data layouts.
type LayoutKind int

const (
	LayoutVideo LayoutKind = iota
	LayoutAudio
)

func (k LayoutKind) String() string {
	if k == LayoutAudio {
		return "audio"
	}
	return "video"
}

// VideoLayout describes a discrete grain's payload: per-plane slice sizes in
// bytes (a "plane" here means any independently-sliced payload segment,
// e.g. a video plane).
type VideoLayout struct {
	PlaneSliceSizes []uint64
}

// SliceSize returns the per-slice byte size for the given plane index.
func (v VideoLayout) SliceSize(plane int) (uint64, error) {
	if plane < 0 || plane >= len(v.PlaneSliceSizes) {
		return 0, ferrors.New(ferrors.StatusInvalidArg, "VideoLayout.SliceSize", "plane index out of range")
	}
	return v.PlaneSliceSizes[plane], nil
}

// AudioLayout describes a continuous, non-interleaved multi-channel audio
// window: channel count, samples per channel per window, and sample width.
type AudioLayout struct {
	ChannelCount      int
	SamplesPerChannel int
	BytesPerSample    int
}

// ChannelStride returns the byte size of one channel's buffer.
func (a AudioLayout) ChannelStride() uint64 {
	return uint64(a.SamplesPerChannel) * uint64(a.BytesPerSample)
}

// DataLayout tags a RegionSet as carrying video (discrete grain) or audio
// (continuous sample window) payloads, and determines which protocol
// strategy (internal/protocol) is selected for it.
type DataLayout struct {
	Kind  LayoutKind
	Video VideoLayout
	Audio AudioLayout
}

// IsAudio reports whether this layout is the continuous/audio variant.
func (d DataLayout) IsAudio() bool { return d.Kind == LayoutAudio }

// NewVideoLayout builds a DataLayout for discrete/video payloads.
func NewVideoLayout(planeSliceSizes []uint64) DataLayout {
	return DataLayout{Kind: LayoutVideo, Video: VideoLayout{PlaneSliceSizes: planeSliceSizes}}
}

// NewAudioLayout builds a DataLayout for continuous/audio payloads.
func NewAudioLayout(channels, samplesPerChannel, bytesPerSample int) DataLayout {
	return DataLayout{Kind: LayoutAudio, Audio: AudioLayout{
		ChannelCount:      channels,
		SamplesPerChannel: samplesPerChannel,
		BytesPerSample:    bytesPerSample,
	}}
}

// RegionSet is an ordered ring of RegionGroups sharing a DataLayout. Ring
// size equals len(Groups); every group must agree on total size and on the
// host/device location of its regions.
type RegionSet struct {
	Groups []RegionGroup
	Layout DataLayout
}

// NewRegionSet validates and constructs a RegionSet. Fails InvalidArg if the
// set is empty, if groups disagree on total size, or if a group mixes
// locations.
func NewRegionSet(groups []RegionGroup, layout DataLayout) (*RegionSet, error) {
	if len(groups) == 0 {
		return nil, ferrors.New(ferrors.StatusInvalidArg, "NewRegionSet", "at least one group is required")
	}
	want := groups[0].TotalSize()
	for i, g := range groups {
		if len(g.Regions) == 0 {
			return nil, ferrors.New(ferrors.StatusInvalidArg, "NewRegionSet", "group has no regions")
		}
		if g.TotalSize() != want {
			return nil, ferrors.New(ferrors.StatusInvalidArg, "NewRegionSet", "groups must share an equal total size")
		}
		loc := g.Regions[0].Loc
		for _, r := range g.Regions {
			if r.Loc != loc {
				return nil, ferrors.New(ferrors.StatusInvalidArg, "NewRegionSet", "location must be uniform within a group")
			}
		}
		_ = i
	}
	return &RegionSet{Groups: groups, Layout: layout}, nil
}

// RingSize returns the number of slots (= number of groups) in the set.
func (rs *RegionSet) RingSize() int {
	return len(rs.Groups)
}

// GroupAt returns the group at the given absolute index modulo the ring size.
func (rs *RegionSet) GroupAt(index uint64) RegionGroup {
	return rs.Groups[index%uint64(rs.RingSize())]
}

// LocalRegion is a registered, locally-usable memory region: address, length,
// and an opaque local descriptor (here, the registering MemoryRegion's id).
type LocalRegion struct {
	Addr uint64
	Len  uint64
	Desc uint64
}

// RemoteRegion is the transferable, remote-writable counterpart: address
// (absolute in virtual-address mode, else 0) plus a remote key.
type RemoteRegion struct {
	Addr uint64
	Len  uint64
	RKey uint64
}

// Sub returns the byte range [off, off+length) of a RemoteRegion, validating
// that it fits, for targeted sub-region writes.
func (r RemoteRegion) Sub(off, length uint64) (RemoteRegion, error) {
	if off+length > r.Len {
		return RemoteRegion{}, ferrors.New(ferrors.StatusInvalidArg, "RemoteRegion.Sub", "offset+len exceeds region length")
	}
	addr := r.Addr
	if addr != 0 {
		addr += off
	}
	return RemoteRegion{Addr: addr, Len: length, RKey: r.RKey}, nil
}

// Sub returns the byte range [off, off+length) of a LocalRegion.
func (r LocalRegion) Sub(off, length uint64) (LocalRegion, error) {
	if off+length > r.Len {
		return LocalRegion{}, ferrors.New(ferrors.StatusInvalidArg, "LocalRegion.Sub", "offset+len exceeds region length")
	}
	return LocalRegion{Addr: r.Addr + off, Len: length, Desc: r.Desc}, nil
}

// SliceRange is a half-open range [Start, End) over a grain's slice indices.
type SliceRange struct {
	Start, End uint32
}

// NewSliceRange validates and constructs a SliceRange. start > end fails
// InvalidArg.
func NewSliceRange(start, end uint32) (SliceRange, error) {
	if start > end {
		return SliceRange{}, ferrors.New(ferrors.StatusInvalidArg, "NewSliceRange", "start must be <= end")
	}
	return SliceRange{Start: start, End: end}, nil
}

// TransferSize returns the number of payload bytes this slice range covers,
// including the grain header (payloadOffset) when the range starts at slice 0.
func (s SliceRange) TransferSize(payloadOffset, sliceSize uint64) uint64 {
	size := uint64(s.End-s.Start) * sliceSize
	if s.Start == 0 {
		size += payloadOffset
	}
	return size
}

// TransferOffset returns the byte offset into the grain's buffer where this
// slice range's transfer begins.
func (s SliceRange) TransferOffset(payloadOffset, sliceSize uint64) uint64 {
	if s.Start == 0 {
		return 0
	}
	return payloadOffset + uint64(s.Start)*sliceSize
}

// FlowRegionSource is implemented by the (out-of-scope) flow-file layer so
// that this core can be wired to it without depending on its implementation.
// RegionsForFlowReader/Writer in package capi accept any FlowRegionSource.
type FlowRegionSource interface {
	// ReaderRegions returns the RegionSet a flow reader should register.
	ReaderRegions() (*RegionSet, error)
	// WriterRegions returns the RegionSet a flow writer should register.
	WriterRegions() (*RegionSet, error)
}
