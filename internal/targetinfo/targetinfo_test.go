package targetinfo

import (
	"testing"

	"github.com/mxl-media/fabrics/internal/ferrors"
	"github.com/mxl-media/fabrics/internal/region"
)

// TestScenario5JSONRoundTrip mirrors spec §8 scenario 5's literal payload:
// toString(fromString(input)) must equal input byte-for-byte.
func TestScenario5JSONRoundTrip(t *testing.T) {
	const input = `{"fabricAddress":{"addr":"AgAjg38AAAEAAAAAAAAAAA=="},"regions":[{"addr":0,"len":2496512,"rkey":12490884954606633550},{"addr":0,"len":2496512,"rkey":8202674608102871622}],"identifier":1995225397354848055}`

	info, err := FromString(input)
	if err != nil {
		t.Fatal(err)
	}
	out, err := ToString(info)
	if err != nil {
		t.Fatal(err)
	}
	if out != input {
		t.Fatalf("round trip mismatch:\n got: %s\nwant: %s", out, input)
	}
}

func TestFromStringFieldByFieldValues(t *testing.T) {
	const input = `{"fabricAddress":{"addr":"AgAjg38AAAEAAAAAAAAAAA=="},"regions":[{"addr":0,"len":2496512,"rkey":12490884954606633550}],"identifier":1995225397354848055}`
	info, err := FromString(input)
	if err != nil {
		t.Fatal(err)
	}
	if info.Identifier != 1995225397354848055 {
		t.Fatalf("unexpected identifier: %d", info.Identifier)
	}
	if len(info.Regions) != 1 || info.Regions[0].RKey != 12490884954606633550 || info.Regions[0].Len != 2496512 {
		t.Fatalf("unexpected region: %+v", info.Regions)
	}
}

func TestFromStringRejectsUnknownField(t *testing.T) {
	const input = `{"fabricAddress":{"addr":"AA=="},"regions":[],"identifier":1,"extra":true}`
	if _, err := FromString(input); !ferrors.Is(err, ferrors.StatusInvalidArg) {
		t.Fatalf("expected InvalidArg for an unexpected top-level field, got %v", err)
	}
}

func TestFromStringRejectsUnknownNestedField(t *testing.T) {
	const input = `{"fabricAddress":{"addr":"AA==","extra":1},"regions":[],"identifier":1}`
	if _, err := FromString(input); !ferrors.Is(err, ferrors.StatusInvalidArg) {
		t.Fatalf("expected InvalidArg for an unexpected nested field, got %v", err)
	}
}

func TestFromStringRejectsUnknownRegionField(t *testing.T) {
	const input = `{"fabricAddress":{"addr":"AA=="},"regions":[{"addr":0,"len":1,"rkey":1,"extra":1}],"identifier":1}`
	if _, err := FromString(input); !ferrors.Is(err, ferrors.StatusInvalidArg) {
		t.Fatalf("expected InvalidArg for an unexpected region field, got %v", err)
	}
}

func TestToStringThenFromStringRoundTripsArbitraryValue(t *testing.T) {
	want := TargetInfo{
		FabricAddress: []byte{0x01, 0x02, 0x03, 0x04},
		Regions: []region.RemoteRegion{
			{Addr: 0, Len: 4096, RKey: 42},
			{Addr: 8192, Len: 2048, RKey: 7},
		},
		Identifier: 9999999999,
	}
	text, err := ToString(want)
	if err != nil {
		t.Fatal(err)
	}
	got, err := FromString(text)
	if err != nil {
		t.Fatal(err)
	}
	if got.Identifier != want.Identifier || len(got.Regions) != len(want.Regions) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, want)
	}
	for i := range want.Regions {
		if got.Regions[i] != want.Regions[i] {
			t.Fatalf("region %d mismatch: got %+v, want %+v", i, got.Regions[i], want.Regions[i])
		}
	}
	if string(got.FabricAddress) != string(want.FabricAddress) {
		t.Fatalf("fabric address mismatch: got %v, want %v", got.FabricAddress, want.FabricAddress)
	}
}
