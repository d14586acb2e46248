package netfabric

import (
	"sync"

	"github.com/mxl-media/fabrics/internal/ferrors"
	"github.com/mxl-media/fabrics/internal/region"
)

// Domain is a registration scope bound to a Fabric: it owns the set of
// registered MemoryRegions backing one RegionSet, and the two addressing
// decisions spec §4.1/§9(b) hinge on.
//
// virtualAddressMode: when true, RemoteRegion.Addr is the real address of the
// region on the Target (the TCP backend's equivalent of FI_MR_VIRT_ADDR);
// when false, every remote write addresses its target region by offset 0
// (FI_MR_PROV_KEY-style relative addressing). A mismatch between an
// Initiator's and a Target's addressing mode is an InvalidArg when the
// Initiator adds the Target (Initiator.AddTarget), not at transfer time.
//
// cqDataViaRecv: when true, immediate data only surfaces through a receive
// completion (the connectionless/SHM backend's model); when false, it
// surfaces directly on the remote write's own completion (the
// connection-oriented/TCP backend's model).
type Domain struct {
	fabric             *Fabric
	virtualAddressMode bool
	cqDataViaRecv      bool

	mu      sync.Mutex
	local   []*MemoryRegion
	groups  *region.RegionSet
	access  AccessFlags
	regions map[*region.RegionSet][]*MemoryRegion
}

// DomainConfig selects the two addressing behaviours a Domain enforces.
type DomainConfig struct {
	VirtualAddressMode bool
	CQDataViaRecv      bool
}

// defaultDomainConfig returns the config implied by a Fabric's provider:
// TCP uses virtual addressing and delivers immediate data on the write's own
// completion; SHM (connectionless) uses relative addressing and only
// surfaces immediate data via a receive completion.
func defaultDomainConfig(p Provider) DomainConfig {
	if p == ProviderSHM {
		return DomainConfig{VirtualAddressMode: false, CQDataViaRecv: true}
	}
	return DomainConfig{VirtualAddressMode: true, CQDataViaRecv: false}
}

// DefaultDomainConfig exposes defaultDomainConfig to other packages
// (internal/target, internal/initiator) that need the provider's implied
// addressing behaviour without hand-rolling the TCP/SHM distinction.
func DefaultDomainConfig(p Provider) DomainConfig {
	return defaultDomainConfig(p)
}

// OpenDomain opens a Domain on the given Fabric with the given DomainConfig.
// Pass DefaultDomainConfig(f.Provider()) for the provider's usual behaviour,
// or an explicit DomainConfig to override it.
func OpenDomain(f *Fabric, cfg DomainConfig) *Domain {
	return &Domain{
		fabric:             f,
		virtualAddressMode: cfg.VirtualAddressMode,
		cqDataViaRecv:      cfg.CQDataViaRecv,
		regions:            make(map[*region.RegionSet][]*MemoryRegion),
	}
}

// VirtualAddressMode reports whether remote writes address by real address
// (true) or by zero-based relative offset (false).
func (d *Domain) VirtualAddressMode() bool { return d.virtualAddressMode }

// CQDataViaRecv reports whether immediate data requires a matching receive
// to surface, per this Domain's provider.
func (d *Domain) CQDataViaRecv() bool { return d.cqDataViaRecv }

// RegisterRegionGroups registers every Region in every RegionGroup of set,
// returning one MemoryRegion per underlying region.Region in group-major,
// region-minor order. The mapping is cached so RemoteRegions/LocalRegions
// can be recomputed for the same set without re-registering.
func (d *Domain) RegisterRegionGroups(set *region.RegionSet, access AccessFlags) ([]*MemoryRegion, error) {
	if set == nil {
		return nil, ferrors.New(ferrors.StatusInvalidArg, "Domain.RegisterRegionGroups", "region set must not be nil")
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if existing, ok := d.regions[set]; ok {
		return existing, nil
	}

	var mrs []*MemoryRegion
	for _, g := range set.Groups {
		for _, r := range g.Regions {
			mr, err := Register(r, access)
			if err != nil {
				return nil, err
			}
			mrs = append(mrs, mr)
		}
	}
	d.regions[set] = mrs
	d.local = append(d.local, mrs...)
	return mrs, nil
}

// RemoteRegions returns the RemoteRegion view of every MemoryRegion
// registered for set, in the same group-major, region-minor order
// RegisterRegionGroups produced them in. Used to populate the control-plane
// TargetInfo payload (internal/targetinfo) a Target advertises.
func (d *Domain) RemoteRegions(set *region.RegionSet) ([]region.RemoteRegion, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	mrs, ok := d.regions[set]
	if !ok {
		return nil, ferrors.New(ferrors.StatusNotFound, "Domain.RemoteRegions", "region set not registered on this domain")
	}
	out := make([]region.RemoteRegion, len(mrs))
	for i, mr := range mrs {
		out[i] = mr.RemoteRegion(d.virtualAddressMode)
	}
	return out, nil
}

// LocalRegions returns the LocalRegion view of every MemoryRegion registered
// for set.
func (d *Domain) LocalRegions(set *region.RegionSet) ([]region.LocalRegion, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	mrs, ok := d.regions[set]
	if !ok {
		return nil, ferrors.New(ferrors.StatusNotFound, "Domain.LocalRegions", "region set not registered on this domain")
	}
	out := make([]region.LocalRegion, len(mrs))
	for i, mr := range mrs {
		out[i] = mr.LocalDescriptor()
	}
	return out, nil
}

// MemoryRegionByRKey looks up a previously-registered MemoryRegion by its
// remote key, for the Target-side resolution of an inbound write's rkey.
func (d *Domain) MemoryRegionByRKey(rkey uint64) (*MemoryRegion, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, mr := range d.local {
		if mr.RKey() == rkey {
			return mr, nil
		}
	}
	return nil, ferrors.New(ferrors.StatusNotFound, "Domain.MemoryRegionByRKey", "no region registered for rkey")
}

// Close releases the Domain. Registered MemoryRegions hold no external
// resource beyond process memory, so this only drops the internal bookkeeping.
func (d *Domain) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.local = nil
	d.regions = nil
	return nil
}
