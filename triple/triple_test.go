package triple

import (
	"math/rand"
	"testing"
)

func TestGenerateSplitIdentity(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	const dim = 6

	full, err := Generate(rnd, dim)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	h0, h1 := full.Split()

	a, err := h0.A.Add(h1.A)
	if err != nil {
		t.Fatalf("add a: %v", err)
	}
	b, err := h0.B.Add(h1.B)
	if err != nil {
		t.Fatalf("add b: %v", err)
	}
	want, err := a.Dot(b)
	if err != nil {
		t.Fatalf("dot: %v", err)
	}
	got := h0.C.Add(h1.C)
	if got != want {
		t.Errorf("c0+c1 = %v, want <a,b> = %v", got, want)
	}
}

func TestGenerateRejectsNonPositiveDim(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	if _, err := Generate(rnd, 0); err == nil {
		t.Error("expected error for dim=0")
	}
	if _, err := Generate(rnd, -1); err == nil {
		t.Error("expected error for negative dim")
	}
}

func TestGenerateIsFreshEachCall(t *testing.T) {
	rnd := rand.New(rand.NewSource(3))
	f0, err := Generate(rnd, 4)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	f1, err := Generate(rnd, 4)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	same := true
	for i := range f0.A0 {
		if f0.A0[i] != f1.A0[i] {
			same = false
		}
	}
	if same {
		t.Error("two successive triples produced identical a0 vectors")
	}
}
