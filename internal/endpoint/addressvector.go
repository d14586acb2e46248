package endpoint

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/mxl-media/fabrics/internal/ferrors"
)

// AddressVector maps inserted peer addresses to compact indices usable in
// datagram sends, per spec §4.2/GLOSSARY. Used only by the connectionless
// (SHM/UDP) backend.
type AddressVector struct {
	mu      sync.Mutex
	byIndex map[uint64]net.Addr
	byKey   map[string]uint64
	next    uint64
}

// NewAddressVector allocates an empty AddressVector.
func NewAddressVector() *AddressVector {
	return &AddressVector{
		byIndex: make(map[uint64]net.Addr),
		byKey:   make(map[string]uint64),
	}
}

// Insert adds addr to the table, returning its compact fi_addr-equivalent
// index. Re-inserting an address already present returns its existing index.
func (av *AddressVector) Insert(addr net.Addr) uint64 {
	av.mu.Lock()
	defer av.mu.Unlock()

	key := addr.String()
	if idx, ok := av.byKey[key]; ok {
		return idx
	}
	idx := atomic.AddUint64(&av.next, 1)
	av.byIndex[idx] = addr
	av.byKey[key] = idx
	return idx
}

// Remove drops a previously inserted address by its fi_addr-equivalent index.
func (av *AddressVector) Remove(fiAddr uint64) error {
	av.mu.Lock()
	defer av.mu.Unlock()
	addr, ok := av.byIndex[fiAddr]
	if !ok {
		return ferrors.New(ferrors.StatusNotFound, "AddressVector.Remove", "fabric address not in vector")
	}
	delete(av.byIndex, fiAddr)
	delete(av.byKey, addr.String())
	return nil
}

// Lookup resolves a compact fi_addr-equivalent index back to a net.Addr.
func (av *AddressVector) Lookup(fiAddr uint64) (net.Addr, error) {
	av.mu.Lock()
	defer av.mu.Unlock()
	addr, ok := av.byIndex[fiAddr]
	if !ok {
		return nil, ferrors.New(ferrors.StatusNotFound, "AddressVector.Lookup", "fabric address not in vector")
	}
	return addr, nil
}

// IndexOf returns the compact index for addr if already inserted.
func (av *AddressVector) IndexOf(addr net.Addr) (uint64, bool) {
	av.mu.Lock()
	defer av.mu.Unlock()
	idx, ok := av.byKey[addr.String()]
	return idx, ok
}
