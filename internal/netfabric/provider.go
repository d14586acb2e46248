// Package netfabric implements the fabrics core's network-primitives layer:
// Fabric (adapter context), Domain (registration scope), and MemoryRegion
// (a registered buffer with its local descriptor and remote key). Endpoint,
// PassiveEndpoint, EventQueue, CompletionQueue, and AddressVector live in the
// sibling internal/endpoint package, which depends on this one.
package netfabric

import "github.com/mxl-media/fabrics/internal/ferrors"

// Provider enumerates the selectable fabric backends, per spec §6.
type Provider int

const (
	ProviderAuto Provider = iota
	ProviderTCP
	ProviderVerbs
	ProviderEFA
	ProviderSHM
)

func (p Provider) String() string {
	switch p {
	case ProviderAuto:
		return "auto"
	case ProviderTCP:
		return "tcp"
	case ProviderVerbs:
		return "verbs"
	case ProviderEFA:
		return "efa"
	case ProviderSHM:
		return "shm"
	default:
		return "unknown"
	}
}

// ProviderFromString parses the wire/CLI spelling of a Provider.
func ProviderFromString(s string) (Provider, error) {
	switch s {
	case "auto", "":
		return ProviderAuto, nil
	case "tcp":
		return ProviderTCP, nil
	case "verbs":
		return ProviderVerbs, nil
	case "efa":
		return ProviderEFA, nil
	case "shm":
		return ProviderSHM, nil
	default:
		return 0, ferrors.New(ferrors.StatusInvalidArg, "ProviderFromString", "unknown provider: "+s)
	}
}

// descriptor captures the selection-order attributes from spec §4.1:
// "preference order (EFA, Verbs, SHM, TCP, with ties broken by: supports
// device-memory capability, auto-progress domain, non-SOCKADDR address
// family)". realised reports whether this module has an actual Go-native
// implementation of the provider (only TCP and SHM do; EFA/Verbs require
// real RDMA-capable hardware and a libfabric binding this module doesn't
// carry, so selecting them always yields NoFabric here).
type descriptor struct {
	provider           Provider
	supportsDeviceMem  bool
	autoProgressDomain bool
	nonSockaddrFamily  bool
	realised           bool
	connectionless     bool
}

// preferenceTable is ordered EFA, Verbs, SHM, TCP as spec §4.1 mandates.
var preferenceTable = []descriptor{
	{provider: ProviderEFA, supportsDeviceMem: true, autoProgressDomain: true, nonSockaddrFamily: true, realised: false},
	{provider: ProviderVerbs, supportsDeviceMem: true, autoProgressDomain: false, nonSockaddrFamily: true, realised: false},
	{provider: ProviderSHM, supportsDeviceMem: false, autoProgressDomain: true, nonSockaddrFamily: false, realised: true, connectionless: true},
	{provider: ProviderTCP, supportsDeviceMem: false, autoProgressDomain: false, nonSockaddrFamily: false, realised: true},
}

// Capabilities is the set of requirements a selected provider must meet.
type Capabilities struct {
	RemoteWrite  bool // always required; kept for symmetry with the original fi_caps bitmask
	DeviceMemory bool
}

// selectProvider resolves Auto to TCP (connection-oriented) or SHM
// (connectionless) per spec §6, and otherwise validates that the requested
// provider is realised by this module and meets the requested capabilities.
func selectProvider(requested Provider, connectionless bool, caps Capabilities) (Provider, error) {
	if requested == ProviderAuto {
		if connectionless {
			return ProviderSHM, nil
		}
		return ProviderTCP, nil
	}

	for _, d := range preferenceTable {
		if d.provider != requested {
			continue
		}
		if !d.realised {
			return 0, ferrors.New(ferrors.StatusNoFabric, "selectProvider",
				"provider "+requested.String()+" has no fabric available on this host")
		}
		if d.connectionless != connectionless {
			return 0, ferrors.New(ferrors.StatusNoFabric, "selectProvider",
				"provider "+requested.String()+" does not support the requested addressing mode")
		}
		if caps.DeviceMemory && !d.supportsDeviceMem {
			return 0, ferrors.New(ferrors.StatusNoFabric, "selectProvider",
				"provider "+requested.String()+" does not support device memory")
		}
		return requested, nil
	}
	return 0, ferrors.New(ferrors.StatusInvalidArg, "selectProvider", "unknown provider: "+requested.String())
}
