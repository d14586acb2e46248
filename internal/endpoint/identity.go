package endpoint

import "github.com/google/uuid"

// NewIdentity generates a 64-bit cryptographically random endpoint identity
// (spec §4.2, §9 "Random endpoint identity"), folded from a UUIDv4 so a
// restarted peer is distinguishable from its previous incarnation in a
// completion stream.
func NewIdentity() uint64 {
	id := uuid.New()
	var v uint64
	for _, b := range id[8:16] {
		v = v<<8 | uint64(b)
	}
	return v
}
