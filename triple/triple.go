// Package triple implements the Du-Atallah correlated-randomness triple
// shared between the pairing server (C2, which generates it) and the
// party node (C3, which consumes one per READ_SECURE). Grounded on
// common.hpp's DuAtAllahServer/DuAtAllahClient split and
// share_server.py's wire encoding.
package triple

import (
	"fmt"
	"io"

	"duoram/ring"
)

// Half is one party's share of a Du-Atallah triple for a fixed
// dimension: (a_P, b_P, c_P) such that, across both parties,
// a_0+a_1, b_0+b_1 are the full masking vectors and c_0+c_1 =
// <a_0+a_1, b_0+b_1>.
type Half struct {
	Dim int
	A   ring.Vector
	B   ring.Vector
	C   ring.Element
}

// Full is the pairing server's view of a freshly generated triple
// before it is split into the two halves sent to the matched pair.
type Full struct {
	Dim    int
	A0, A1 ring.Vector
	B0, B1 ring.Vector
	C0, C1 ring.Element
}

// Generate samples a fresh triple of the given dimension using the
// supplied entropy source. c is split as c0 uniform, c1 = c - c0, so
// that c0+c1 = <a0+a1, b0+b1> without revealing c to either half.
func Generate(rnd io.Reader, dim int) (*Full, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("triple: dimension must be > 0, got %d", dim)
	}
	a0, err := randomVector(rnd, dim)
	if err != nil {
		return nil, err
	}
	a1, err := randomVector(rnd, dim)
	if err != nil {
		return nil, err
	}
	b0, err := randomVector(rnd, dim)
	if err != nil {
		return nil, err
	}
	b1, err := randomVector(rnd, dim)
	if err != nil {
		return nil, err
	}

	a, err := a0.Add(a1)
	if err != nil {
		return nil, err
	}
	b, err := b0.Add(b1)
	if err != nil {
		return nil, err
	}
	c, err := a.Dot(b)
	if err != nil {
		return nil, err
	}

	c0Raw, err := randomElement(rnd)
	if err != nil {
		return nil, err
	}
	c0 := c0Raw
	c1 := c.Sub(c0)

	return &Full{
		Dim: dim,
		A0:  a0, A1: a1,
		B0: b0, B1: b1,
		C0: c0, C1: c1,
	}, nil
}

// Split returns the two halves to deliver to the first- and
// second-arrived requesters, respectively.
func (f *Full) Split() (first, second Half) {
	first = Half{Dim: f.Dim, A: f.A0, B: f.B0, C: f.C0}
	second = Half{Dim: f.Dim, A: f.A1, B: f.B1, C: f.C1}
	return
}

func randomElement(rnd io.Reader) (ring.Element, error) {
	var buf [4]byte
	if _, err := io.ReadFull(rnd, buf[:]); err != nil {
		return 0, fmt.Errorf("triple: read random element: %w", err)
	}
	v := uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3])
	return ring.New(v), nil
}

func randomVector(rnd io.Reader, dim int) (ring.Vector, error) {
	v := ring.NewVector(dim)
	for i := range v {
		e, err := randomElement(rnd)
		if err != nil {
			return nil, err
		}
		v[i] = e
	}
	return v, nil
}
