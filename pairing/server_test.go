package pairing

import (
	"math/rand"
	"sync"
	"testing"

	"duoram/env"
)

func startTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := Listen("127.0.0.1:0", &env.Config{Rand: rand.New(rand.NewSource(42))})
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	go s.Serve()
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMatchesTwoRequestsForSameDim(t *testing.T) {
	s := startTestServer(t)
	addr := s.Addr().String()

	const dim = 4
	var wg sync.WaitGroup
	wg.Add(2)

	var sid0, sid1 uint64
	var err0, err1 error

	go func() {
		defer wg.Done()
		sid0, _, err0 = FetchHalf(addr, dim)
	}()
	go func() {
		defer wg.Done()
		sid1, _, err1 = FetchHalf(addr, dim)
	}()
	wg.Wait()

	if err0 != nil || err1 != nil {
		t.Fatalf("FetchHalf errors: %v, %v", err0, err1)
	}
	if sid0 != sid1 {
		t.Errorf("session ids differ: %d != %d", sid0, sid1)
	}
}

func TestTripleIdentityHolds(t *testing.T) {
	s := startTestServer(t)
	addr := s.Addr().String()

	const dim = 5
	var wg sync.WaitGroup
	wg.Add(2)

	type result struct {
		sid  uint64
		a, b []uint32
		c    uint32
	}
	var r0, r1 result
	var err0, err1 error

	go func() {
		defer wg.Done()
		sid, half, err := FetchHalf(addr, dim)
		err0 = err
		r0.sid = sid
		for _, e := range half.A {
			r0.a = append(r0.a, e.Uint32())
		}
		for _, e := range half.B {
			r0.b = append(r0.b, e.Uint32())
		}
		r0.c = half.C.Uint32()
	}()
	go func() {
		defer wg.Done()
		sid, half, err := FetchHalf(addr, dim)
		err1 = err
		r1.sid = sid
		for _, e := range half.A {
			r1.a = append(r1.a, e.Uint32())
		}
		for _, e := range half.B {
			r1.b = append(r1.b, e.Uint32())
		}
		r1.c = half.C.Uint32()
	}()
	wg.Wait()

	if err0 != nil || err1 != nil {
		t.Fatalf("FetchHalf errors: %v, %v", err0, err1)
	}

	// c0 + c1 must equal <a0+a1, b0+b1> mod 2^31.
	const mask = 1<<31 - 1
	var dot uint64
	for i := 0; i < dim; i++ {
		a := uint64(r0.a[i]+r1.a[i]) & mask
		b := uint64(r0.b[i]+r1.b[i]) & mask
		dot = (dot + a*b) & mask
	}
	gotC := (uint64(r0.c) + uint64(r1.c)) & mask
	if gotC != dot {
		t.Errorf("c0+c1 = %d, expected <a,b> = %d", gotC, dot)
	}
}

func TestZeroDimensionCloses(t *testing.T) {
	s := startTestServer(t)
	addr := s.Addr().String()

	_, _, err := FetchHalf(addr, 0)
	if err == nil {
		t.Fatal("expected error for dim=0")
	}
}
