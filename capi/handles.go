// Package capi is the fabrics core's C-style library surface (spec §6): an
// opaque-handle API in front of internal/target, internal/initiator, and
// internal/region, shaped so that a future cgo shim can re-export it as the
// literal C ABI without touching any Go-side logic. Every handle is an
// opaque uint64 token rather than a Go pointer, mirroring how the real ABI
// would hand a caller an integer it can't dereference.
package capi

import (
	"sync"
	"sync/atomic"

	"github.com/mxl-media/fabrics/internal/ferrors"
)

var handleSeq uint64

// registry is a type-erased opaque-handle table: put stores a value under a
// freshly minted token, get/replace/delete retrieve, overwrite and remove it. One
// registry per concrete handle kind (regions, targets, initiators, ...) so a
// RegionSetHandle can never be looked up as a TargetHandle by accident.
type registry struct {
	mu    sync.RWMutex
	items map[uint64]any
}

func newRegistry() *registry {
	return &registry{items: make(map[uint64]any)}
}

func (r *registry) put(v any) uint64 {
	h := atomic.AddUint64(&handleSeq, 1)
	r.mu.Lock()
	r.items[h] = v
	r.mu.Unlock()
	return h
}

func (r *registry) get(h uint64) (any, bool) {
	r.mu.RLock()
	v, ok := r.items[h]
	r.mu.RUnlock()
	return v, ok
}

func (r *registry) replace(h uint64, v any) {
	r.mu.Lock()
	r.items[h] = v
	r.mu.Unlock()
}

func (r *registry) delete(h uint64) {
	r.mu.Lock()
	delete(r.items, h)
	r.mu.Unlock()
}

func invalidHandle(op string) error {
	return ferrors.New(ferrors.StatusInvalidArg, op, "unknown or already-freed handle")
}
