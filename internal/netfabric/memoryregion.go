package netfabric

import (
	"crypto/rand"
	"encoding/binary"
	"sync/atomic"

	"github.com/mxl-media/fabrics/internal/ferrors"
	"github.com/mxl-media/fabrics/internal/region"
)

var nextDescriptor uint64

// MemoryRegion is a registered buffer: its backing region.Region, an opaque
// local descriptor unique within the process, and a remote key that must be
// presented by a peer to target this region with a one-sided write.
//
// The local descriptor stands in for libfabric's fid_mr-derived void*
// descriptor; the remote key is a cryptographically random 64-bit value
// rather than a provider-assigned one, since this backend has no driver to
// assign it for us.
type MemoryRegion struct {
	reg  region.Region
	desc uint64
	rkey uint64
}

// Register wraps a region.Region as a MemoryRegion, assigning it a process-
// unique local descriptor and a random remote key.
func Register(reg region.Region, access AccessFlags) (*MemoryRegion, error) {
	if reg.Size() == 0 {
		return nil, ferrors.New(ferrors.StatusInvalidArg, "netfabric.Register", "region must be non-empty")
	}
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return nil, ferrors.Wrap(ferrors.StatusInternal, "netfabric.Register", err)
	}
	return &MemoryRegion{
		reg:  reg,
		desc: atomic.AddUint64(&nextDescriptor, 1),
		rkey: binary.LittleEndian.Uint64(buf[:]),
	}, nil
}

// AccessFlags mirrors fi_mr_reg's access bitmask; this backend only
// distinguishes whether remote write is permitted since that's the only
// operation this module performs.
type AccessFlags int

const (
	AccessLocalWrite AccessFlags = 1 << iota
	AccessRemoteWrite
)

// LocalDescriptor returns the LocalRegion view used for local-side operations.
func (m *MemoryRegion) LocalDescriptor() region.LocalRegion {
	return region.LocalRegion{Addr: m.reg.Base(), Len: m.reg.Size(), Desc: m.desc}
}

// RemoteRegion returns the transferable view published to peers over the
// out-of-band control channel (internal/targetinfo). In the virtual-address
// addressing mode, Addr is the region's real synthetic address; in the
// provider-assigned/relative mode, Addr is always 0 and writers must treat
// every offset as relative to the start of the region.
func (m *MemoryRegion) RemoteRegion(virtualAddressMode bool) region.RemoteRegion {
	addr := m.reg.Base()
	if !virtualAddressMode {
		addr = 0
	}
	return region.RemoteRegion{Addr: addr, Len: m.reg.Size(), RKey: m.rkey}
}

// Bytes exposes the backing buffer for local fills/reads (e.g. a Target
// copying a completed grain out to a flow writer).
func (m *MemoryRegion) Bytes() []byte {
	return m.reg.Data
}

// RKey returns the remote key a peer must present to write into this region.
func (m *MemoryRegion) RKey() uint64 {
	return m.rkey
}
