package capi

import "github.com/mxl-media/fabrics/internal/netfabric"

// Provider mirrors netfabric.Provider at the C boundary: {Auto, TCP, Verbs,
// EFA, SHM}, per spec §6.
type Provider = netfabric.Provider

const (
	ProviderAuto  = netfabric.ProviderAuto
	ProviderTCP   = netfabric.ProviderTCP
	ProviderVerbs = netfabric.ProviderVerbs
	ProviderEFA   = netfabric.ProviderEFA
	ProviderSHM   = netfabric.ProviderSHM
)

// ProviderToString / ProviderFromString expose the enum's wire/CLI spelling.
func ProviderToString(p Provider) string {
	return p.String()
}

func ProviderFromString(s string) (Provider, Status, error) {
	p, err := netfabric.ProviderFromString(s)
	if err != nil {
		return 0, statusOf(err), err
	}
	return p, StatusOK, nil
}
