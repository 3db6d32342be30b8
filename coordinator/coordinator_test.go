package coordinator

import (
	"math/rand"
	"sync"
	"testing"

	"duoram/env"
	"duoram/pairing"
	"duoram/partynode"
	"duoram/ring"
)

// harness wires up a pairing server and two party nodes, mirroring
// the full data flow: Coordinator -> (Party A, Party B) -> pairing
// server -> peer exchange -> Coordinator.
type harness struct {
	pairing *pairing.Server
	partyA  *partynode.Party
	partyB  *partynode.Party
	coord   *Coordinator
	wg      sync.WaitGroup
}

func newHarness(t *testing.T, rows int, opts ...Option) *harness {
	t.Helper()
	cfg := &env.Config{Rand: rand.New(rand.NewSource(1))}

	// The parties hold the flat dimension rows*RecordWidth.
	probe := &Coordinator{recordWidth: 1}
	for _, opt := range opts {
		opt(probe)
	}
	dim := rows * probe.recordWidth

	ps, err := pairing.Listen("127.0.0.1:0", cfg)
	if err != nil {
		t.Fatalf("pairing.Listen: %v", err)
	}

	pa, err := partynode.Listen(partynode.RoleA, dim, "127.0.0.1:0", "127.0.0.1:0", "", ps.Addr().String(), cfg)
	if err != nil {
		t.Fatalf("party A Listen: %v", err)
	}
	pb, err := partynode.Listen(partynode.RoleB, dim, "127.0.0.1:0", "127.0.0.1:0", pa.PeerAddr().String(), ps.Addr().String(), cfg)
	if err != nil {
		t.Fatalf("party B Listen: %v", err)
	}
	if err := pa.SetPeerAddr(pb.PeerAddr().String()); err != nil {
		t.Fatalf("party A SetPeerAddr: %v", err)
	}

	h := &harness{pairing: ps, partyA: pa, partyB: pb}
	h.wg.Add(3)
	go func() { defer h.wg.Done(); ps.Serve() }()
	go func() { defer h.wg.Done(); pa.Serve() }()
	go func() { defer h.wg.Done(); pb.Serve() }()

	c, err := New(pa.ClientAddr().String(), pb.ClientAddr().String(), rows, cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.coord = c
	return h
}

func (h *harness) close() {
	h.partyA.Close()
	h.partyB.Close()
	h.pairing.Close()
	h.wg.Wait()
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	h := newHarness(t, 8)
	defer h.close()

	want := ring.New(424242)
	if err := h.coord.Write(3, []ring.Element{want}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := h.coord.Read(3)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != 1 || got[0] != want {
		t.Fatalf("Read(3) = %v, want [%v]", got, want)
	}
}

func TestDistinctIndicesIndependent(t *testing.T) {
	h := newHarness(t, 8)
	defer h.close()

	if err := h.coord.Write(1, []ring.Element{ring.New(10)}); err != nil {
		t.Fatalf("Write(1): %v", err)
	}
	if err := h.coord.Write(2, []ring.Element{ring.New(20)}); err != nil {
		t.Fatalf("Write(2): %v", err)
	}
	got1, err := h.coord.Read(1)
	if err != nil {
		t.Fatalf("Read(1): %v", err)
	}
	got2, err := h.coord.Read(2)
	if err != nil {
		t.Fatalf("Read(2): %v", err)
	}
	if got1[0] != ring.New(10) || got2[0] != ring.New(20) {
		t.Fatalf("got (%v, %v), want (10, 20)", got1[0], got2[0])
	}
	got0, err := h.coord.Read(0)
	if err != nil {
		t.Fatalf("Read(0): %v", err)
	}
	if got0[0] != ring.Zero() {
		t.Fatalf("Read(0) = %v, want 0", got0[0])
	}
}

func TestAccumulatingWritesAdd(t *testing.T) {
	h := newHarness(t, 4)
	defer h.close()

	if err := h.coord.Write(0, []ring.Element{ring.New(5)}); err != nil {
		t.Fatalf("Write 1: %v", err)
	}
	if err := h.coord.Write(0, []ring.Element{ring.New(7)}); err != nil {
		t.Fatalf("Write 2: %v", err)
	}
	got, err := h.coord.Read(0)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got[0] != ring.New(12) {
		t.Fatalf("Read(0) = %v, want 12", got[0])
	}
}

func TestConcurrentReadsSameDim(t *testing.T) {
	h := newHarness(t, 4)
	defer h.close()

	if err := h.coord.Write(0, []ring.Element{ring.New(111)}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := h.coord.Write(1, []ring.Element{ring.New(222)}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var wg sync.WaitGroup
	results := make([]ring.Element, 2)
	errs := make([]error, 2)
	for i, idx := range []int{0, 1} {
		wg.Add(1)
		go func(i, idx int) {
			defer wg.Done()
			got, err := h.coord.Read(idx)
			errs[i] = err
			if err == nil {
				results[i] = got[0]
			}
		}(i, idx)
	}
	wg.Wait()
	if errs[0] != nil || errs[1] != nil {
		t.Fatalf("concurrent reads errored: %v, %v", errs[0], errs[1])
	}
	if results[0] != ring.New(111) || results[1] != ring.New(222) {
		t.Fatalf("got %v, want [111 222]", results)
	}
}

func TestIndexOutOfRangeNoSockets(t *testing.T) {
	h := newHarness(t, 4)
	defer h.close()

	if _, err := h.coord.Read(4); err == nil {
		t.Fatal("Read(4) on rows=4 succeeded, want out-of-range error")
	}
	if err := h.coord.Write(-1, []ring.Element{ring.New(1)}); err == nil {
		t.Fatal("Write(-1) succeeded, want out-of-range error")
	}
}

func TestRecordWidthMultiElement(t *testing.T) {
	h := newHarness(t, 4, WithRecordWidth(3))
	defer h.close()

	rec := []ring.Element{ring.New(1), ring.New(2), ring.New(3)}
	if err := h.coord.Write(2, rec); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := h.coord.Read(2)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != 3 || got[0] != rec[0] || got[1] != rec[1] || got[2] != rec[2] {
		t.Fatalf("Read(2) = %v, want %v", got, rec)
	}
	other, err := h.coord.Read(0)
	if err != nil {
		t.Fatalf("Read(0): %v", err)
	}
	for _, e := range other {
		if e != ring.Zero() {
			t.Fatalf("Read(0) = %v, want all zero", other)
		}
	}
}

func TestWriteFailureWhenPartyUnreachable(t *testing.T) {
	h := newHarness(t, 4)
	h.partyB.Close()

	err := h.coord.Write(0, []ring.Element{ring.New(1)})
	if err == nil {
		t.Fatal("Write with party B down succeeded, want error")
	}

	h.partyA.Close()
	h.pairing.Close()
	h.wg.Wait()
}
