package netfabric

import (
	"context"

	"github.com/mxl-media/fabrics/internal/obslog"
)

// FabricConfig selects the provider and addressing family an Open call
// requests, mirroring fi_getinfo's hints in the original implementation.
type FabricConfig struct {
	Provider       Provider
	Connectionless bool
	Capabilities   Capabilities
	// Node/Service name the resulting Domain's endpoints bind or connect to.
	// Interpreted by internal/endpoint, not by this package.
	Node    string
	Service string
}

// Fabric is the top-level adapter context: the resolved provider plus
// whatever process-wide resource that provider needs (none, for the
// TCP/SHM backends realized here — a real libfabric binding would hold the
// fi_fabric handle).
type Fabric struct {
	provider Provider
	cfg      FabricConfig
}

// Open resolves cfg.Provider against the realised provider set and returns a
// Fabric bound to it. Returns StatusNoFabric if the requested provider has
// no Go-native backend on this host (Verbs, EFA), and StatusInvalidArg for
// an unrecognised provider value.
func Open(ctx context.Context, cfg FabricConfig) (*Fabric, error) {
	p, err := selectProvider(cfg.Provider, cfg.Connectionless, cfg.Capabilities)
	if err != nil {
		return nil, err
	}
	obslog.Logger().InfoContext(ctx, "fabric opened", "provider", p.String(), "connectionless", cfg.Connectionless)
	return &Fabric{provider: p, cfg: cfg}, nil
}

// Provider returns the resolved provider (never Auto).
func (f *Fabric) Provider() Provider {
	return f.provider
}

// Close releases the Fabric. The TCP/SHM backends hold no process-wide
// resource, so this is a no-op kept for parity with domains that do.
func (f *Fabric) Close() error {
	return nil
}
