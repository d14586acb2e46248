package capi

import (
	"github.com/mxl-media/fabrics/internal/ferrors"
	"github.com/mxl-media/fabrics/internal/region"
)

// RegionSetHandle is an opaque reference to a *region.RegionSet.
type RegionSetHandle uint64

var regionSets = newRegistry()

// BufferSpec describes one caller-owned buffer to wrap as a region.Region,
// the shape regionsFromUserBuffers takes per spec §6.
type BufferSpec struct {
	Data     []byte
	OnDevice bool
	DeviceID int
}

// VideoFormat selects the discrete/video DataLayout: one group of planes per
// ring slot, PlaneSliceSizes bytes per plane per slice.
type VideoFormat struct {
	PlaneSliceSizes []uint64
}

// AudioFormat selects the continuous/audio DataLayout.
type AudioFormat struct {
	Channels          int
	SamplesPerChannel int
	BytesPerSample    int
}

// RegionsFromUserBuffers wraps groups of caller-owned buffers (one group per
// ring slot) as a RegionSet under the given data format. Exactly one of
// Video/Audio must be non-nil.
func RegionsFromUserBuffers(groups [][]BufferSpec, video *VideoFormat, audio *AudioFormat) (RegionSetHandle, Status, error) {
	layout, err := resolveFormat(video, audio)
	if err != nil {
		return 0, statusOf(err), err
	}

	rgroups := make([]region.RegionGroup, len(groups))
	for i, g := range groups {
		regions := make([]region.Region, len(g))
		for j, spec := range g {
			loc := region.Host()
			if spec.OnDevice {
				loc = region.OnDevice(spec.DeviceID)
			}
			r, err := region.NewRegion(spec.Data, loc)
			if err != nil {
				return 0, statusOf(err), err
			}
			regions[j] = r
		}
		rgroups[i] = region.RegionGroup{Regions: regions}
	}

	set, err := region.NewRegionSet(rgroups, layout)
	if err != nil {
		return 0, statusOf(err), err
	}
	return RegionSetHandle(regionSets.put(set)), StatusOK, nil
}

// RegionsForFlowReader / RegionsForFlowWriter adapt the out-of-scope
// flow-file layer: anything implementing region.FlowRegionSource (e.g. a
// real MXL flow reader/writer) can hand this core a RegionSet without this
// module depending on that layer's implementation.
func RegionsForFlowReader(src region.FlowRegionSource) (RegionSetHandle, Status, error) {
	set, err := src.ReaderRegions()
	if err != nil {
		return 0, statusOf(err), err
	}
	return RegionSetHandle(regionSets.put(set)), StatusOK, nil
}

func RegionsForFlowWriter(src region.FlowRegionSource) (RegionSetHandle, Status, error) {
	set, err := src.WriterRegions()
	if err != nil {
		return 0, statusOf(err), err
	}
	return RegionSetHandle(regionSets.put(set)), StatusOK, nil
}

// RegionsFree releases a RegionSetHandle. The underlying buffers remain
// owned by the caller; this only forgets the handle.
func RegionsFree(h RegionSetHandle) Status {
	if _, ok := regionSets.get(uint64(h)); !ok {
		return StatusInvalidArg
	}
	regionSets.delete(uint64(h))
	return StatusOK
}

func resolveFormat(video *VideoFormat, audio *AudioFormat) (region.DataLayout, error) {
	switch {
	case video != nil && audio == nil:
		return region.NewVideoLayout(video.PlaneSliceSizes), nil
	case audio != nil && video == nil:
		return region.NewAudioLayout(audio.Channels, audio.SamplesPerChannel, audio.BytesPerSample), nil
	default:
		return region.DataLayout{}, ferrors.New(ferrors.StatusInvalidArg, "RegionsFromUserBuffers", "exactly one of video or audio format must be set")
	}
}

func lookupRegionSet(op string, h RegionSetHandle) (*region.RegionSet, error) {
	v, ok := regionSets.get(uint64(h))
	if !ok {
		return nil, invalidHandle(op)
	}
	return v.(*region.RegionSet), nil
}
