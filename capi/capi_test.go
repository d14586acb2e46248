package capi_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/mxl-media/fabrics/capi"
)

// TestConnectionEstablishmentThroughHandles mirrors spec §8 scenario 1,
// driven entirely through the opaque-handle surface rather than the
// internal packages directly.
func TestConnectionEstablishmentThroughHandles(t *testing.T) {
	ctx := context.Background()
	inst := capi.CreateInstance()
	defer capi.InstanceClose(inst)

	tgtH, status, err := capi.CreateTarget(inst)
	if err != nil {
		t.Fatalf("CreateTarget: status=%v err=%v", status, err)
	}
	infoH, status, err := capi.TargetSetup(ctx, tgtH, capi.EndpointConfig{
		Provider: capi.ProviderTCP, Node: "127.0.0.1", Service: "0",
	})
	if err != nil {
		t.Fatalf("TargetSetup: status=%v err=%v", status, err)
	}
	defer capi.TargetShutdown(tgtH)

	inH, status, err := capi.CreateInitiator(inst)
	if err != nil {
		t.Fatalf("CreateInitiator: status=%v err=%v", status, err)
	}
	if status, err := capi.InitiatorSetup(ctx, inH, capi.EndpointConfig{
		Provider: capi.ProviderTCP, Node: "127.0.0.1", Service: "0",
	}); err != nil {
		t.Fatalf("InitiatorSetup: status=%v err=%v", status, err)
	}
	defer capi.InitiatorShutdown(inH)

	if status, err := capi.InitiatorAddTarget(inH, infoH); err != nil {
		t.Fatalf("InitiatorAddTarget: status=%v err=%v", status, err)
	}
	// Re-adding the same TargetInfo must be a no-op, not Exists (spec §9(a)).
	if status, err := capi.InitiatorAddTarget(inH, infoH); err != nil {
		t.Fatalf("InitiatorAddTarget (duplicate): status=%v err=%v", status, err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, status, err := capi.TargetTryNewGrain(tgtH); err != nil && status != capi.StatusNotReady {
			t.Fatalf("unexpected target status: %v err=%v", status, err)
		}
		pending, status, err := capi.InitiatorMakeProgressNonBlocking(inH)
		if err != nil {
			t.Fatalf("MakeProgress: status=%v err=%v", status, err)
		}
		if !pending {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for initiator to reach connected with no work pending")
}

// TestTargetInfoTextRoundTripThroughHandles mirrors spec §8 scenario 5.
func TestTargetInfoTextRoundTripThroughHandles(t *testing.T) {
	const input = `{"fabricAddress":{"addr":"AgAjg38AAAEAAAAAAAAAAA=="},"regions":[{"addr":0,"len":2496512,"rkey":12490884954606633550}],"identifier":1995225397354848055}`

	h, status, err := capi.TargetInfoFromString(input)
	if err != nil {
		t.Fatalf("TargetInfoFromString: status=%v err=%v", status, err)
	}
	defer capi.TargetInfoFree(h)

	out, status, err := capi.TargetInfoToString(h)
	if err != nil {
		t.Fatalf("TargetInfoToString: status=%v err=%v", status, err)
	}
	if out != input {
		t.Fatalf("round trip mismatch:\n got: %s\nwant: %s", out, input)
	}
}

// TestRegionsFromUserBuffersRejectsBothFormats exercises the InvalidArg
// boundary for a config with neither, or both, of video/audio set.
func TestRegionsFromUserBuffersRejectsBothFormats(t *testing.T) {
	buf := bytes.Repeat([]byte{0}, 64)
	groups := [][]capi.BufferSpec{{{Data: buf}}}

	if _, status, err := capi.RegionsFromUserBuffers(groups, nil, nil); err == nil || status != capi.StatusInvalidArg {
		t.Fatalf("expected InvalidArg with no format set, got status=%v err=%v", status, err)
	}
	video := &capi.VideoFormat{PlaneSliceSizes: []uint64{64}}
	audio := &capi.AudioFormat{Channels: 1, SamplesPerChannel: 16, BytesPerSample: 4}
	if _, status, err := capi.RegionsFromUserBuffers(groups, video, audio); err == nil || status != capi.StatusInvalidArg {
		t.Fatalf("expected InvalidArg with both formats set, got status=%v err=%v", status, err)
	}
}

// TestProviderStringRoundTrip exercises providerToString/providerFromString.
func TestProviderStringRoundTrip(t *testing.T) {
	for _, p := range []capi.Provider{capi.ProviderAuto, capi.ProviderTCP, capi.ProviderVerbs, capi.ProviderEFA, capi.ProviderSHM} {
		s := capi.ProviderToString(p)
		got, status, err := capi.ProviderFromString(s)
		if err != nil {
			t.Fatalf("ProviderFromString(%q): status=%v err=%v", s, status, err)
		}
		if got != p {
			t.Fatalf("round trip mismatch for %v: got %v", p, got)
		}
	}
}

// TestHandleReuseAfterFreeIsInvalidArg exercises the "unknown handle" edge
// case a cgo caller would hit from a use-after-free.
func TestHandleReuseAfterFreeIsInvalidArg(t *testing.T) {
	const input = `{"fabricAddress":{"addr":"AA=="},"regions":[],"identifier":1}`
	h, _, err := capi.TargetInfoFromString(input)
	if err != nil {
		t.Fatal(err)
	}
	if status := capi.TargetInfoFree(h); status != capi.StatusOK {
		t.Fatalf("expected OK freeing a live handle, got %v", status)
	}
	if status := capi.TargetInfoFree(h); status != capi.StatusInvalidArg {
		t.Fatalf("expected InvalidArg freeing an already-freed handle, got %v", status)
	}
}
