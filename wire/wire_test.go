package wire

import (
	"errors"
	"testing"

	"duoram/p2p"
	"duoram/ring"
)

func TestSendReceiveVectorRoundTrip(t *testing.T) {
	a, b := p2p.Pipe()
	v := ring.Vector{ring.New(1), ring.New(2), ring.New(0x7fffffff)}

	done := make(chan error, 1)
	go func() {
		err := SendVector(a, v)
		if err == nil {
			err = a.Flush()
		}
		done <- err
	}()

	got, err := ReceiveVector(b, len(v))
	if err != nil {
		t.Fatalf("ReceiveVector: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("SendVector: %v", err)
	}
	for i := range v {
		if got[i] != v[i] {
			t.Errorf("element %d: got %v, want %v", i, got[i], v[i])
		}
	}
}

func TestSendReceiveElementRoundTrip(t *testing.T) {
	a, b := p2p.Pipe()
	e := ring.New(0x12345678)

	done := make(chan error, 1)
	go func() {
		err := SendElement(a, e)
		if err == nil {
			err = a.Flush()
		}
		done <- err
	}()

	got, err := ReceiveElement(b)
	if err != nil {
		t.Fatalf("ReceiveElement: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("SendElement: %v", err)
	}
	if got != e {
		t.Errorf("got %v, want %v", got, e)
	}
}

func TestReceiveVectorZeroLength(t *testing.T) {
	a, b := p2p.Pipe()
	done := make(chan error, 1)
	go func() {
		err := SendVector(a, ring.Vector{})
		if err == nil {
			err = a.Flush()
		}
		done <- err
	}()
	got, err := ReceiveVector(b, 0)
	if err != nil {
		t.Fatalf("ReceiveVector: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty vector, got %v", got)
	}
	if err := <-done; err != nil {
		t.Fatalf("SendVector: %v", err)
	}
}

func TestReceiveElementRejectsTopBitSet(t *testing.T) {
	a, b := p2p.Pipe()
	done := make(chan error, 1)
	go func() {
		err := a.SendUint32(int(uint32(0x80000000)))
		if err == nil {
			err = a.Flush()
		}
		done <- err
	}()

	_, err := ReceiveElement(b)
	if !errors.Is(err, ring.ErrOutOfRange) {
		t.Errorf("ReceiveElement: got err %v, want ring.ErrOutOfRange", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("send raw word: %v", err)
	}
}

func TestReceiveVectorRejectsTopBitSet(t *testing.T) {
	a, b := p2p.Pipe()
	done := make(chan error, 1)
	go func() {
		err := a.SendUint32(int(uint32(0x80000001)))
		if err == nil {
			err = a.Flush()
		}
		done <- err
	}()

	_, err := ReceiveVector(b, 1)
	if !errors.Is(err, ring.ErrOutOfRange) {
		t.Errorf("ReceiveVector: got err %v, want ring.ErrOutOfRange", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("send raw word: %v", err)
	}
}
