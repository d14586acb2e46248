package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadTargetParsesVideoLayout(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "target.toml")
	const body = `
[endpoint]
provider = "TCP"
node = "127.0.0.1"
service = "0"

[video]
ring_size = 4
plane_slice_sizes = [720, 360]
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadTarget(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Endpoint.Provider != "TCP" || cfg.Endpoint.Node != "127.0.0.1" {
		t.Fatalf("unexpected endpoint config: %+v", cfg.Endpoint)
	}
	if cfg.Video == nil || cfg.Video.RingSize != 4 || len(cfg.Video.PlaneSliceSizes) != 2 {
		t.Fatalf("unexpected video config: %+v", cfg.Video)
	}
}

func TestVideoLayoutConfigBuildRegionSet(t *testing.T) {
	v := VideoLayoutConfig{RingSize: 3, PlaneSliceSizes: []uint64{64, 32}}
	set, err := v.BuildRegionSet()
	if err != nil {
		t.Fatal(err)
	}
	if set.RingSize() != 3 {
		t.Fatalf("expected ring size 3, got %d", set.RingSize())
	}
	if got := set.GroupAt(0).TotalSize(); got != 96 {
		t.Fatalf("expected group total size 96, got %d", got)
	}
}

func TestAudioLayoutConfigBuildRegionSet(t *testing.T) {
	a := AudioLayoutConfig{ChannelCount: 2, SamplesPerChannel: 1024, BytesPerSample: 4}
	set, err := a.BuildRegionSet()
	if err != nil {
		t.Fatal(err)
	}
	if set.RingSize() != 1 {
		t.Fatalf("expected ring size 1, got %d", set.RingSize())
	}
	if len(set.GroupAt(0).Regions) != 2 {
		t.Fatalf("expected 2 channel regions, got %d", len(set.GroupAt(0).Regions))
	}
}
