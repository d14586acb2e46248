package endpoint

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/mxl-media/fabrics/internal/ferrors"
	"github.com/mxl-media/fabrics/internal/netfabric"
	"github.com/mxl-media/fabrics/internal/region"
)

func TestEventQueueTryReadAndBlocking(t *testing.T) {
	q := NewEventQueue(4)
	if _, ok := q.TryRead(); ok {
		t.Fatal("expected empty queue to report not-ready")
	}
	q.push(Event{Type: EventConnected})
	ev, ok := q.TryRead()
	if !ok || ev.Type != EventConnected {
		t.Fatalf("expected EventConnected, got %+v ok=%v", ev, ok)
	}

	if _, err := q.ReadBlocking(context.Background(), 0); !ferrors.Is(err, ferrors.StatusNotReady) {
		t.Fatalf("expected NotReady for zero timeout, got %v", err)
	}
	if _, err := q.ReadBlocking(context.Background(), 20*time.Millisecond); !ferrors.Is(err, ferrors.StatusTimeout) {
		t.Fatalf("expected Timeout, got %v", err)
	}
}

func TestCompletionQueueTryReadAndBlocking(t *testing.T) {
	q := NewCompletionQueue(4)
	q.push(CompletionEntry{Kind: CompletionWrite, ImmData: 7})
	e, ok := q.TryRead()
	if !ok || e.ImmData != 7 {
		t.Fatalf("expected completion with ImmData=7, got %+v", e)
	}
	if _, err := q.ReadBlocking(context.Background(), 20*time.Millisecond); !ferrors.Is(err, ferrors.StatusTimeout) {
		t.Fatalf("expected Timeout, got %v", err)
	}
}

func TestAddressVectorInsertLookupRemove(t *testing.T) {
	av := NewAddressVector()
	addr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 9999}
	idx := av.Insert(addr)
	if again := av.Insert(addr); again != idx {
		t.Fatalf("re-inserting the same address should return the same index: got %d want %d", again, idx)
	}
	got, err := av.Lookup(idx)
	if err != nil || got.String() != addr.String() {
		t.Fatalf("Lookup(%d) = %v, %v", idx, got, err)
	}
	if err := av.Remove(idx); err != nil {
		t.Fatal(err)
	}
	if _, err := av.Lookup(idx); !ferrors.Is(err, ferrors.StatusNotFound) {
		t.Fatalf("expected NotFound after Remove, got %v", err)
	}
}

func TestWireFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := frame{Type: frameWrite, RKey: 42, Offset: 8, ImmData: 0xDEADBEEF, Payload: []byte("hello")}
	if err := writeFrame(&buf, want); err != nil {
		t.Fatal(err)
	}
	got, err := readFrame(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.RKey != want.RKey || got.Offset != want.Offset || got.ImmData != want.ImmData || !bytes.Equal(got.Payload, want.Payload) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestDatagramRoundTrip(t *testing.T) {
	f := frame{Type: frameWrite, RKey: 1, Offset: 2, ImmData: 3, Payload: []byte("audio")}
	buf := encodeDatagram(99, f)
	sender, got, err := decodeDatagram(buf)
	if err != nil {
		t.Fatal(err)
	}
	if sender != 99 || got.RKey != 1 || got.Offset != 2 || got.ImmData != 3 || !bytes.Equal(got.Payload, []byte("audio")) {
		t.Fatalf("datagram round trip mismatch: sender=%d frame=%+v", sender, got)
	}
}

// setupDomain opens a TCP-backed Fabric/Domain pair for tests, sized small.
func setupDomain(t *testing.T) *netfabric.Domain {
	t.Helper()
	f, err := netfabric.Open(context.Background(), netfabric.FabricConfig{Provider: netfabric.ProviderTCP})
	if err != nil {
		t.Fatal(err)
	}
	return netfabric.OpenDomain(f, netfabric.DomainConfig{VirtualAddressMode: true, CQDataViaRecv: false})
}

// TestConnectionEstablishmentCOTCP mirrors spec scenario 1: connect, accept,
// and reach Connected on both the initiator's and the target's own queues.
func TestConnectionEstablishmentCOTCP(t *testing.T) {
	targetEQ := NewEventQueue(8)
	domain := setupDomain(t)

	pe, err := Listen(targetEQ, "127.0.0.1", "0")
	if err != nil {
		t.Fatal(err)
	}
	defer pe.Close()

	initEQ := NewEventQueue(8)
	initCQ := NewCompletionQueue(8)
	initEP, err := Connect(context.Background(), domain, initEQ, initCQ, pe.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer initEP.Close()

	ev, err := targetEQ.ReadBlocking(context.Background(), 2*time.Second)
	if err != nil || ev.Type != EventConnReq {
		t.Fatalf("expected EventConnReq on target EQ, got %+v, err=%v", ev, err)
	}

	perPeerEQ := NewEventQueue(8)
	perPeerCQ := NewCompletionQueue(8)
	targetEP, err := NewFromConnReq(domain, perPeerEQ, perPeerCQ, false, ev)
	if err != nil {
		t.Fatal(err)
	}
	defer targetEP.Close()
	if err := targetEP.Accept(); err != nil {
		t.Fatal(err)
	}

	tev, err := perPeerEQ.ReadBlocking(context.Background(), 2*time.Second)
	if err != nil || tev.Type != EventConnected {
		t.Fatalf("expected EventConnected on target's per-peer EQ, got %+v, err=%v", tev, err)
	}

	iev, err := initEQ.ReadBlocking(context.Background(), 2*time.Second)
	if err != nil || iev.Type != EventConnected {
		t.Fatalf("expected EventConnected on initiator EQ, got %+v, err=%v", iev, err)
	}
}

// TestWriteAppliesPayloadAndSurfacesCompletion mirrors spec scenario 3: a
// single grain transfer lands in the target's registered buffer and a
// completion carries the packed immediate-data tag.
func TestWriteAppliesPayloadAndSurfacesCompletion(t *testing.T) {
	targetEQ, targetCQ := NewEventQueue(8), NewCompletionQueue(8)
	domain := setupDomain(t)

	pe, err := Listen(targetEQ, "127.0.0.1", "0")
	if err != nil {
		t.Fatal(err)
	}
	defer pe.Close()

	initEQ, initCQ := NewEventQueue(8), NewCompletionQueue(8)
	initEP, err := Connect(context.Background(), domain, initEQ, initCQ, pe.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer initEP.Close()

	ev, err := targetEQ.ReadBlocking(context.Background(), 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	targetEP, err := NewFromConnReq(domain, targetEQ, targetCQ, false, ev)
	if err != nil {
		t.Fatal(err)
	}
	defer targetEP.Close()
	if err := targetEP.Accept(); err != nil {
		t.Fatal(err)
	}
	if _, err := targetEQ.ReadBlocking(context.Background(), 2*time.Second); err != nil {
		t.Fatal(err)
	}
	if _, err := initEQ.ReadBlocking(context.Background(), 2*time.Second); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 1024)
	reg, err := region.NewRegion(buf, region.Host())
	if err != nil {
		t.Fatal(err)
	}
	set, err := region.NewRegionSet([]region.RegionGroup{{Regions: []region.Region{reg}}}, region.NewVideoLayout([]uint64{720}))
	if err != nil {
		t.Fatal(err)
	}
	mrs, err := domain.RegisterRegionGroups(set, netfabric.AccessRemoteWrite)
	if err != nil {
		t.Fatal(err)
	}
	remote := mrs[0].RemoteRegion(true)

	payload := bytes.Repeat([]byte{0xAB}, 720)
	if _, err := initEP.Write(1, region.LocalRegion{}, payload, remote, 0, 0x00010000); err != nil {
		t.Fatal(err)
	}

	cqe, err := targetCQ.ReadBlocking(context.Background(), 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if cqe.ImmData != 0x00010000 {
		t.Fatalf("expected ImmData 0x10000, got %#x", cqe.ImmData)
	}
	if !bytes.Equal(buf[:720], payload) {
		t.Fatal("target buffer was not updated by the remote write")
	}
}

// TestSHMConnectionlessDiscoversPeer mirrors spec scenario 2: the SHM
// backend's receive loop inserts an unseen sender into the AddressVector
// and surfaces it as a connection request.
func TestSHMConnectionlessDiscoversPeer(t *testing.T) {
	domain := setupDomain(t)

	targetEQ, targetCQ := NewEventQueue(8), NewCompletionQueue(8)
	targetAV := NewAddressVector()
	targetEP, err := EnableSHM(domain, targetEQ, targetCQ, targetAV, "127.0.0.1", "0")
	if err != nil {
		t.Fatal(err)
	}
	defer targetEP.Close()

	initEQ, initCQ := NewEventQueue(8), NewCompletionQueue(8)
	initAV := NewAddressVector()
	initEP, err := EnableSHM(domain, initEQ, initCQ, initAV, "127.0.0.1", "0")
	if err != nil {
		t.Fatal(err)
	}
	defer initEP.Close()

	targetFiAddr := initAV.Insert(targetEP.Addr())
	if _, err := initEP.Write(1, region.LocalRegion{}, []byte("x"), region.RemoteRegion{Len: 1, RKey: 0}, targetFiAddr, 0); err == nil {
		// RKey 0 won't resolve to a registered region; the test only cares
		// that the datagram reached the target's read loop.
	}

	ev, err := targetEQ.ReadBlocking(context.Background(), 2*time.Second)
	if err != nil || ev.Type != EventConnReq {
		t.Fatalf("expected target to discover the initiator, got %+v, err=%v", ev, err)
	}
}
