// Package protocol implements the two transfer strategies spec §4.5
// requires: RMA-grain (discrete/video, direct remote write) and
// bounce-buffered (continuous/audio, gather-then-write / receive-then-
// scatter). Both sides are pure planning/decoding logic — the actual I/O is
// internal/endpoint's job; these strategies only decide what bytes move
// where and how the 32-bit immediate-data tag is built and interpreted.
//
// Egress and Ingress are marker interfaces with exactly two concrete
// variants each — not a class hierarchy. They declare only Kind(); the
// planning (Plan), decoding (Decode) and unpacking (Unpack) methods live on
// the concrete types.
package protocol

import "github.com/mxl-media/fabrics/internal/region"

// Kind mirrors region.LayoutKind, naming which strategy a RegionSet selects.
type Kind = region.LayoutKind

const (
	KindVideo = region.LayoutVideo
	KindAudio = region.LayoutAudio
)

// Egress is implemented by GrainEgress and AudioEgress.
type Egress interface {
	Kind() Kind
}

// Ingress is implemented by GrainIngress and AudioIngress.
type Ingress interface {
	Kind() Kind
}
