package ring

import (
	"math/rand"
	"testing"
)

func TestAddSubNeg(t *testing.T) {
	a := New(1<<31 - 1)
	b := New(5)
	if got := a.Add(b); got != New(4) {
		t.Errorf("Add: got %v, expected %v", got, New(4))
	}
	if got := a.Neg().Neg(); got != a {
		t.Errorf("Neg Neg: got %v, expected %v", got, a)
	}
	if got := a.Sub(a); got != Zero() {
		t.Errorf("Sub self: got %v, expected 0", got)
	}
}

func TestMulWidens(t *testing.T) {
	// (2^30) * 4 overflows 32 bits before reduction; must widen to 64.
	a := New(1 << 30)
	b := New(4)
	got := a.Mul(b)
	want := New(uint32((uint64(1<<30) * 4) & uint64(Mask)))
	if got != want {
		t.Errorf("Mul: got %v, expected %v", got, want)
	}
}

func TestInverse(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		v := New(rnd.Uint32()&Mask | 1) // force odd
		inv, err := v.Inverse()
		if err != nil {
			t.Fatalf("Inverse(%v): %v", v, err)
		}
		if got := v.Mul(inv); got != One() {
			t.Errorf("v=%v inv=%v: v*inv = %v, expected 1", v, inv, got)
		}
	}
}

func TestInverseEvenFails(t *testing.T) {
	_, err := New(4).Inverse()
	if err == nil {
		t.Fatal("expected error for even element")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	rnd := rand.New(rand.NewSource(2))
	for i := 0; i < 100; i++ {
		v := New(rnd.Uint32() & Mask)
		buf := v.Encode()
		if buf[0]&0x80 != 0 {
			t.Fatalf("top bit set in encoding of %v", v)
		}
		got, err := Decode(buf[:])
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if got != v {
			t.Errorf("round trip: got %v, expected %v", got, v)
		}
	}
}

func TestDecodeRejectsTopBit(t *testing.T) {
	_, err := Decode([]byte{0x80, 0, 0, 0})
	if err != ErrOutOfRange {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
}

func TestVectorDotAndAdd(t *testing.T) {
	a := Vector{New(1), New(2), New(3)}
	b := Vector{New(4), New(5), New(6)}

	sum, err := a.Add(b)
	if err != nil {
		t.Fatal(err)
	}
	if sum[0] != New(5) || sum[1] != New(7) || sum[2] != New(9) {
		t.Errorf("Add: got %v", sum)
	}

	dot, err := a.Dot(b)
	if err != nil {
		t.Fatal(err)
	}
	want := New(1*4 + 2*5 + 3*6)
	if dot != want {
		t.Errorf("Dot: got %v, expected %v", dot, want)
	}
}

func TestDuAtallahIdentity(t *testing.T) {
	// For random (a0, a1, b0, b1), with c0 + c1 = <a0+a1, b0+b1>, the
	// Du-Atallah reconstruction s_A + s_B equals <x, y> for any x, y of
	// matching dimension.
	rnd := rand.New(rand.NewSource(3))
	const dim = 6

	randVec := func() Vector {
		v := make(Vector, dim)
		for i := range v {
			v[i] = New(rnd.Uint32() & Mask)
		}
		return v
	}

	a0, a1, b0, b1 := randVec(), randVec(), randVec(), randVec()
	a, err := a0.Add(a1)
	if err != nil {
		t.Fatal(err)
	}
	b, err := b0.Add(b1)
	if err != nil {
		t.Fatal(err)
	}
	c, err := a.Dot(b)
	if err != nil {
		t.Fatal(err)
	}
	c0 := New(rnd.Uint32() & Mask)
	c1 := c.Sub(c0)

	x, y := randVec(), randVec()

	// X-side (A) sends u = x + a; Y-side (B) sends v = y + b.
	u, err := x.Add(a)
	if err != nil {
		t.Fatal(err)
	}
	v, err := y.Add(b)
	if err != nil {
		t.Fatal(err)
	}

	uDotB0, _ := u.Dot(b0)
	a0DotV, _ := a0.Dot(v)
	sA := Zero().Sub(uDotB0).Sub(a0DotV).Add(c0)

	uDotV, _ := u.Dot(v)
	uDotB1, _ := u.Dot(b1)
	a1DotV, _ := a1.Dot(v)
	sB := uDotV.Sub(uDotB1).Sub(a1DotV).Add(c1)

	got := sA.Add(sB)
	want, err := x.Dot(y)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("Du-Atallah identity: got %v, expected %v", got, want)
	}
}

func TestStandardBasisOutOfRange(t *testing.T) {
	_, err := StandardBasis(4, 4, One())
	if err == nil {
		t.Fatal("expected out-of-range error")
	}
}
