package region

import (
	"testing"

	"github.com/mxl-media/fabrics/internal/ferrors"
)

func TestRegionBaseAndSize(t *testing.T) {
	buf := make([]byte, 128)
	r, err := NewRegion(buf, Host())
	if err != nil {
		t.Fatal(err)
	}
	if r.Size() != 128 {
		t.Fatalf("expected size 128, got %d", r.Size())
	}
	if r.Base() == 0 {
		t.Fatal("expected non-zero base address")
	}
}

func TestNewRegionRejectsEmptyBuffer(t *testing.T) {
	_, err := NewRegion(nil, Host())
	if !ferrors.Is(err, ferrors.StatusInvalidArg) {
		t.Fatalf("expected InvalidArg, got %v", err)
	}
}

func TestRegionSubRejectsOutOfRange(t *testing.T) {
	buf := make([]byte, 16)
	r, _ := NewRegion(buf, Host())
	if _, err := r.Sub(10, 10); !ferrors.Is(err, ferrors.StatusInvalidArg) {
		t.Fatalf("expected InvalidArg for offset+len > region.len, got %v", err)
	}
	sub, err := r.Sub(4, 8)
	if err != nil {
		t.Fatal(err)
	}
	if sub.Size() != 8 {
		t.Fatalf("expected sub-region of size 8, got %d", sub.Size())
	}
}

func TestNewRegionSetRequiresEqualGroupSize(t *testing.T) {
	g1 := RegionGroup{Regions: []Region{mustRegion(t, 100)}}
	g2 := RegionGroup{Regions: []Region{mustRegion(t, 200)}}
	_, err := NewRegionSet([]RegionGroup{g1, g2}, NewVideoLayout([]uint64{100}))
	if !ferrors.Is(err, ferrors.StatusInvalidArg) {
		t.Fatalf("expected InvalidArg for mismatched group sizes, got %v", err)
	}
}

func TestNewRegionSetRequiresUniformLocationWithinGroup(t *testing.T) {
	g := RegionGroup{Regions: []Region{
		{Data: make([]byte, 10), Loc: Host()},
		{Data: make([]byte, 10), Loc: OnDevice(0)},
	}}
	_, err := NewRegionSet([]RegionGroup{g}, NewVideoLayout(nil))
	if !ferrors.Is(err, ferrors.StatusInvalidArg) {
		t.Fatalf("expected InvalidArg for mixed locations, got %v", err)
	}
}

func TestRegionSetRingSize(t *testing.T) {
	groups := []RegionGroup{
		{Regions: []Region{mustRegion(t, 64)}},
		{Regions: []Region{mustRegion(t, 64)}},
		{Regions: []Region{mustRegion(t, 64)}},
	}
	rs, err := NewRegionSet(groups, NewVideoLayout([]uint64{64}))
	if err != nil {
		t.Fatal(err)
	}
	if rs.RingSize() != 3 {
		t.Fatalf("expected ring size 3, got %d", rs.RingSize())
	}
	if got := rs.GroupAt(4); len(got.Regions) != 1 {
		t.Fatalf("GroupAt should wrap modulo ring size")
	}
}

func TestSliceRangeRejectsStartGreaterThanEnd(t *testing.T) {
	if _, err := NewSliceRange(5, 3); !ferrors.Is(err, ferrors.StatusInvalidArg) {
		t.Fatalf("expected InvalidArg, got %v", err)
	}
}

func TestSliceRangeTransferSizeAndOffset(t *testing.T) {
	// Invariant 3 & 4 from spec: transferSize/transferOffset formulas.
	const payloadOffset, sliceSize = 64, 720
	full, _ := NewSliceRange(0, 1)
	if got := full.TransferSize(payloadOffset, sliceSize); got != 720+64 {
		t.Fatalf("TransferSize at start=0: got %d, want %d", got, 720+64)
	}
	if got := full.TransferOffset(payloadOffset, sliceSize); got != 0 {
		t.Fatalf("TransferOffset at start=0: got %d, want 0", got)
	}

	mid, _ := NewSliceRange(2, 5)
	if got := mid.TransferSize(payloadOffset, sliceSize); got != 3*sliceSize {
		t.Fatalf("TransferSize at start>0: got %d, want %d", got, 3*sliceSize)
	}
	if got := mid.TransferOffset(payloadOffset, sliceSize); got != payloadOffset+2*sliceSize {
		t.Fatalf("TransferOffset at start>0: got %d, want %d", got, payloadOffset+2*sliceSize)
	}
}

func TestRemoteRegionSubRejectsOutOfRange(t *testing.T) {
	rr := RemoteRegion{Addr: 1000, Len: 16, RKey: 42}
	if _, err := rr.Sub(10, 10); !ferrors.Is(err, ferrors.StatusInvalidArg) {
		t.Fatalf("expected InvalidArg, got %v", err)
	}
	sub, err := rr.Sub(4, 8)
	if err != nil {
		t.Fatal(err)
	}
	if sub.Addr != 1004 || sub.Len != 8 || sub.RKey != 42 {
		t.Fatalf("unexpected sub-region: %+v", sub)
	}
}

func TestRemoteRegionSubRelativeAddressingModeKeepsZero(t *testing.T) {
	rr := RemoteRegion{Addr: 0, Len: 16, RKey: 42}
	sub, err := rr.Sub(4, 8)
	if err != nil {
		t.Fatal(err)
	}
	if sub.Addr != 0 {
		t.Fatalf("expected relative-addressing sub-region to keep addr=0, got %d", sub.Addr)
	}
}

func mustRegion(t *testing.T, size int) Region {
	t.Helper()
	r, err := NewRegion(make([]byte, size), Host())
	if err != nil {
		t.Fatal(err)
	}
	return r
}
