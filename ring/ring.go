// Package ring implements arithmetic over Z/2^31Z, the fixed ring that
// backs every DUORAM share vector. All operations reduce modulo 2^31;
// multiplication widens to 64 bits before masking down. There is no
// constant-time guarantee: obliviousness comes from the secret-sharing
// protocol above this package, not from branch-free arithmetic here.
package ring

import (
	"encoding/binary"
	"errors"
	"fmt"

	mmath "duoram/pkg/math"
)

const (
	// Bits is the width of the ring's modulus, 2^31.
	Bits = 31
	// Mod is the ring modulus, 2^31.
	Mod uint64 = 1 << Bits
	// Mask reduces a 32- or 64-bit word into the ring.
	Mask uint32 = uint32(Mod - 1)
)

// ErrNoInverse is returned by Inverse when the element is even and
// therefore has no multiplicative inverse modulo 2^31.
var ErrNoInverse = errors.New("ring: no inverse for even element")

// ErrOutOfRange is returned when a decoded element does not fit the
// ring's top-bit-zero wire convention.
var ErrOutOfRange = errors.New("ring: element out of range")

// Element is a ring element: an unsigned integer in [0, 2^31).
type Element uint32

// New reduces a raw 32-bit word into the ring.
func New(v uint32) Element {
	return Element(v & Mask)
}

// Zero is the additive identity.
func Zero() Element { return Element(0) }

// One is the multiplicative identity.
func One() Element { return Element(1) }

// Add returns a+b mod 2^31.
func (a Element) Add(b Element) Element {
	return Element((uint32(a) + uint32(b)) & Mask)
}

// Sub returns a-b mod 2^31.
func (a Element) Sub(b Element) Element {
	return Element((uint32(a) - uint32(b)) & Mask)
}

// Neg returns -a mod 2^31.
func (a Element) Neg() Element {
	return Element((0 - uint32(a)) & Mask)
}

// Mul returns a*b mod 2^31, widening to 64 bits before reducing.
func (a Element) Mul(b Element) Element {
	return Element((uint64(a) * uint64(b)) & uint64(Mask))
}

// Equal reports whether a and b are the same ring element.
func (a Element) Equal(b Element) bool {
	return a == b
}

// IsOdd reports whether a has a multiplicative inverse modulo 2^31.
func (a Element) IsOdd() bool {
	return uint32(a)&1 == 1
}

// Inverse returns the multiplicative inverse of a modulo 2^31. Only odd
// elements are invertible in this ring; even elements return
// ErrNoInverse. The inverse is computed by Newton-Hensel lifting: start
// from x=1 (correct mod 2) and double the number of correct bits each
// iteration via x <- x*(2-a*x), which converges to the full 31-bit
// inverse in five steps (1->2->4->8->16->32 bits).
func (a Element) Inverse() (Element, error) {
	if !a.IsOdd() {
		return 0, fmt.Errorf("%w: %d", ErrNoInverse, uint32(a))
	}
	x := uint32(1)
	av := uint32(a)
	for i := 0; i < 5; i++ {
		ax := (av * x) & Mask
		twoMinusAx := (2 - ax) & Mask
		x = (x * twoMinusAx) & Mask
	}
	return Element(x), nil
}

// Uint32 returns the element's raw value.
func (a Element) Uint32() uint32 {
	return uint32(a)
}

// String implements fmt.Stringer.
func (a Element) String() string {
	return fmt.Sprintf("%d", uint32(a))
}

// Encode writes the element as 4 bytes, big-endian, with the top bit
// always zero (guaranteed since the value is < 2^31).
func (a Element) Encode() [4]byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(a))
	return buf
}

// Decode reads an element from a 4-byte big-endian buffer, rejecting
// values whose top bit is set.
func Decode(buf []byte) (Element, error) {
	if len(buf) != 4 {
		return 0, fmt.Errorf("ring: decode: expected 4 bytes, got %d", len(buf))
	}
	v := binary.BigEndian.Uint32(buf)
	topBit := uint32(mmath.MaxUint32) &^ Mask
	if v&topBit != 0 {
		return 0, ErrOutOfRange
	}
	return Element(v), nil
}

// Vector is an ordered sequence of ring elements, the unit of exchange
// for share vectors, selector shares, and Du-Atallah triple halves.
type Vector []Element

// NewVector allocates a zero vector of the given length.
func NewVector(n int) Vector {
	return make(Vector, n)
}

// Add returns the elementwise sum of two vectors of equal length.
func (v Vector) Add(o Vector) (Vector, error) {
	if len(v) != len(o) {
		return nil, fmt.Errorf("ring: vector length mismatch: %d != %d", len(v), len(o))
	}
	r := make(Vector, len(v))
	for i := range v {
		r[i] = v[i].Add(o[i])
	}
	return r, nil
}

// AddInPlace adds o into v elementwise, mutating v. Used by WRITE_VEC.
func (v Vector) AddInPlace(o Vector) error {
	if len(v) != len(o) {
		return fmt.Errorf("ring: vector length mismatch: %d != %d", len(v), len(o))
	}
	for i := range v {
		v[i] = v[i].Add(o[i])
	}
	return nil
}

// Sub returns the elementwise difference of two vectors of equal length.
func (v Vector) Sub(o Vector) (Vector, error) {
	if len(v) != len(o) {
		return nil, fmt.Errorf("ring: vector length mismatch: %d != %d", len(v), len(o))
	}
	r := make(Vector, len(v))
	for i := range v {
		r[i] = v[i].Sub(o[i])
	}
	return r, nil
}

// Dot returns the inner product <v, o> over the ring.
func (v Vector) Dot(o Vector) (Element, error) {
	if len(v) != len(o) {
		return 0, fmt.Errorf("ring: vector length mismatch: %d != %d", len(v), len(o))
	}
	var acc Element
	for i := range v {
		acc = acc.Add(v[i].Mul(o[i]))
	}
	return acc, nil
}

// Neg returns the elementwise negation of v.
func (v Vector) Neg() Vector {
	r := make(Vector, len(v))
	for i := range v {
		r[i] = v[i].Neg()
	}
	return r
}

// Clone returns a copy of v.
func (v Vector) Clone() Vector {
	r := make(Vector, len(v))
	copy(r, v)
	return r
}

// StandardBasis returns a length-dim vector with value v at index idx and
// zero elsewhere. Returns ErrOutOfRange if idx >= dim.
func StandardBasis(dim, idx int, v Element) (Vector, error) {
	if idx < 0 || idx >= dim {
		return nil, fmt.Errorf("ring: %w: index %d, dim %d", ErrOutOfRange, idx, dim)
	}
	e := make(Vector, dim)
	e[idx] = v
	return e, nil
}
