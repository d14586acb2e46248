// Package config loads the TOML-based setup configuration for the
// fabricsctl demo tool's `listen` and `send` commands — grounded on
// dsmmcken-dh-cli's internal/config, which loads the same shape of
// structured settings via pelletier/go-toml/v2.
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/mxl-media/fabrics/internal/region"
)

// EndpointConfig selects a Target's or Initiator's backend and bind/dial
// address, mirroring spec §6's targetSetup/initiatorSetup config shape.
type EndpointConfig struct {
	Provider       string `toml:"provider,omitempty"`
	Connectionless bool   `toml:"connectionless,omitempty"`
	Node           string `toml:"node"`
	Service        string `toml:"service"`
}

// VideoLayoutConfig describes a discrete/video RegionSet: ring depth and
// per-plane slice sizes in bytes.
type VideoLayoutConfig struct {
	RingSize        int      `toml:"ring_size"`
	PlaneSliceSizes []uint64 `toml:"plane_slice_sizes"`
}

// BuildRegionSet allocates RingSize fresh host-memory RegionGroups, one
// region per plane, for the demo tool to exercise RMA-grain transfers
// without a real MXL flow file behind them.
func (v VideoLayoutConfig) BuildRegionSet() (*region.RegionSet, error) {
	groups := make([]region.RegionGroup, v.RingSize)
	for i := range groups {
		regions := make([]region.Region, len(v.PlaneSliceSizes))
		for p, size := range v.PlaneSliceSizes {
			r, err := region.NewRegion(make([]byte, size), region.Host())
			if err != nil {
				return nil, err
			}
			regions[p] = r
		}
		groups[i] = region.RegionGroup{Regions: regions}
	}
	return region.NewRegionSet(groups, region.NewVideoLayout(v.PlaneSliceSizes))
}

// AudioLayoutConfig describes a continuous/audio RegionSet: channel count,
// samples per channel, and sample width.
type AudioLayoutConfig struct {
	ChannelCount      int `toml:"channel_count"`
	SamplesPerChannel int `toml:"samples_per_channel"`
	BytesPerSample    int `toml:"bytes_per_sample"`
}

// BuildRegionSet allocates one RegionGroup with ChannelCount fresh
// host-memory regions, each sized for the full non-interleaved ring.
func (a AudioLayoutConfig) BuildRegionSet() (*region.RegionSet, error) {
	regions := make([]region.Region, a.ChannelCount)
	stride := a.SamplesPerChannel * a.BytesPerSample
	for c := range regions {
		r, err := region.NewRegion(make([]byte, stride), region.Host())
		if err != nil {
			return nil, err
		}
		regions[c] = r
	}
	group := region.RegionGroup{Regions: regions}
	layout := region.NewAudioLayout(a.ChannelCount, a.SamplesPerChannel, a.BytesPerSample)
	return region.NewRegionSet([]region.RegionGroup{group}, layout)
}

// TargetConfig is the fabricsctl `listen` command's TOML configuration.
type TargetConfig struct {
	Endpoint EndpointConfig     `toml:"endpoint"`
	Video    *VideoLayoutConfig `toml:"video,omitempty"`
	Audio    *AudioLayoutConfig `toml:"audio,omitempty"`
}

// InitiatorConfig is the fabricsctl `send` command's TOML configuration.
type InitiatorConfig struct {
	Endpoint EndpointConfig     `toml:"endpoint"`
	Video    *VideoLayoutConfig `toml:"video,omitempty"`
	Audio    *AudioLayoutConfig `toml:"audio,omitempty"`
	Target   string             `toml:"target,omitempty"` // a serialised TargetInfo, or a path to one
}

// LoadTarget parses a TargetConfig from a TOML file at path.
func LoadTarget(path string) (*TargetConfig, error) {
	var cfg TargetConfig
	if err := loadTOML(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadInitiator parses an InitiatorConfig from a TOML file at path.
func LoadInitiator(path string) (*InitiatorConfig, error) {
	var cfg InitiatorConfig
	if err := loadTOML(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadTOML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}
