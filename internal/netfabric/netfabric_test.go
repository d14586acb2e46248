package netfabric

import (
	"context"
	"testing"

	"github.com/mxl-media/fabrics/internal/ferrors"
	"github.com/mxl-media/fabrics/internal/region"
)

func TestOpenResolvesAutoByConnectionMode(t *testing.T) {
	f, err := Open(context.Background(), FabricConfig{Provider: ProviderAuto, Connectionless: false})
	if err != nil {
		t.Fatal(err)
	}
	if f.Provider() != ProviderTCP {
		t.Fatalf("expected Auto+connection-oriented to resolve to TCP, got %s", f.Provider())
	}

	f2, err := Open(context.Background(), FabricConfig{Provider: ProviderAuto, Connectionless: true})
	if err != nil {
		t.Fatal(err)
	}
	if f2.Provider() != ProviderSHM {
		t.Fatalf("expected Auto+connectionless to resolve to SHM, got %s", f2.Provider())
	}
}

func TestOpenRejectsUnrealisedProvider(t *testing.T) {
	_, err := Open(context.Background(), FabricConfig{Provider: ProviderVerbs})
	if !ferrors.Is(err, ferrors.StatusNoFabric) {
		t.Fatalf("expected NoFabric for verbs, got %v", err)
	}
}

func TestOpenRejectsConnectionModeMismatch(t *testing.T) {
	_, err := Open(context.Background(), FabricConfig{Provider: ProviderTCP, Connectionless: true})
	if !ferrors.Is(err, ferrors.StatusNoFabric) {
		t.Fatalf("expected NoFabric for TCP requested connectionless, got %v", err)
	}
}

func TestProviderFromStringRoundTrip(t *testing.T) {
	for _, s := range []string{"auto", "tcp", "verbs", "efa", "shm", ""} {
		p, err := ProviderFromString(s)
		if err != nil {
			t.Fatalf("ProviderFromString(%q): %v", s, err)
		}
		if s != "" && p.String() != s {
			t.Fatalf("ProviderFromString(%q).String() = %q", s, p.String())
		}
	}
	if _, err := ProviderFromString("bogus"); !ferrors.Is(err, ferrors.StatusInvalidArg) {
		t.Fatalf("expected InvalidArg for bogus provider, got %v", err)
	}
}

func TestDomainRegisterAndLookupByRKey(t *testing.T) {
	f, err := Open(context.Background(), FabricConfig{Provider: ProviderTCP})
	if err != nil {
		t.Fatal(err)
	}
	d := OpenDomain(f, defaultDomainConfig(f.Provider()))

	reg, err := region.NewRegion(make([]byte, 64), region.Host())
	if err != nil {
		t.Fatal(err)
	}
	set, err := region.NewRegionSet([]region.RegionGroup{{Regions: []region.Region{reg}}}, region.NewVideoLayout([]uint64{64}))
	if err != nil {
		t.Fatal(err)
	}

	mrs, err := d.RegisterRegionGroups(set, AccessRemoteWrite)
	if err != nil {
		t.Fatal(err)
	}
	if len(mrs) != 1 {
		t.Fatalf("expected 1 memory region, got %d", len(mrs))
	}

	remotes, err := d.RemoteRegions(set)
	if err != nil {
		t.Fatal(err)
	}
	if remotes[0].Addr == 0 {
		t.Fatal("expected virtual-address-mode TCP domain to report non-zero remote address")
	}

	found, err := d.MemoryRegionByRKey(remotes[0].RKey)
	if err != nil {
		t.Fatal(err)
	}
	if found != mrs[0] {
		t.Fatal("MemoryRegionByRKey returned a different region than registered")
	}
}

func TestDomainRemoteRegionsRejectsUnregisteredSet(t *testing.T) {
	f, _ := Open(context.Background(), FabricConfig{Provider: ProviderTCP})
	d := OpenDomain(f, defaultDomainConfig(f.Provider()))
	reg, _ := region.NewRegion(make([]byte, 8), region.Host())
	set, _ := region.NewRegionSet([]region.RegionGroup{{Regions: []region.Region{reg}}}, region.NewVideoLayout([]uint64{8}))
	if _, err := d.RemoteRegions(set); !ferrors.Is(err, ferrors.StatusNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestSHMDomainUsesRelativeAddressing(t *testing.T) {
	f, err := Open(context.Background(), FabricConfig{Provider: ProviderSHM, Connectionless: true})
	if err != nil {
		t.Fatal(err)
	}
	d := OpenDomain(f, defaultDomainConfig(f.Provider()))
	if d.VirtualAddressMode() {
		t.Fatal("expected SHM domain to default to relative addressing")
	}
	if !d.CQDataViaRecv() {
		t.Fatal("expected SHM domain to deliver immediate data via receive completion")
	}

	reg, _ := region.NewRegion(make([]byte, 16), region.Host())
	set, _ := region.NewRegionSet([]region.RegionGroup{{Regions: []region.Region{reg}}}, region.NewVideoLayout([]uint64{16}))
	if _, err := d.RegisterRegionGroups(set, AccessRemoteWrite); err != nil {
		t.Fatal(err)
	}
	remotes, err := d.RemoteRegions(set)
	if err != nil {
		t.Fatal(err)
	}
	if remotes[0].Addr != 0 {
		t.Fatalf("expected relative-addressing remote region to report addr=0, got %d", remotes[0].Addr)
	}
}
