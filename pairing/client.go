package pairing

import (
	"fmt"
	"net"

	"duoram/p2p"
	"duoram/triple"
	"duoram/wire"
)

// FetchHalf connects to the pairing server at addr, requests a triple
// of the given dimension, and returns the session id and this party's
// half. Grounded on party_client.py's fetch_share /
// duoram_party_client_sync.cpp's fetch_dta_share.
func FetchHalf(addr string, dim int) (sid uint64, half triple.Half, err error) {
	raw, err := net.Dial("tcp", addr)
	if err != nil {
		return 0, triple.Half{}, fmt.Errorf("pairing: dial %s: %w", addr, err)
	}
	conn := p2p.NewConn(raw)
	defer raw.Close()

	if err := conn.SendByte(wire.OpPairingRequest); err != nil {
		return 0, triple.Half{}, fmt.Errorf("pairing: send request: %w", err)
	}
	if err := conn.SendUint32(dim); err != nil {
		return 0, triple.Half{}, fmt.Errorf("pairing: send dim: %w", err)
	}
	if err := conn.Flush(); err != nil {
		return 0, triple.Half{}, fmt.Errorf("pairing: flush: %w", err)
	}

	op, err := conn.ReceiveByte()
	if err != nil {
		return 0, triple.Half{}, fmt.Errorf("pairing: receive op: %w", err)
	}
	if op != wire.OpPairingResponse {
		return 0, triple.Half{}, fmt.Errorf("%w: pairing server op %#x", wire.ErrBadOp, op)
	}
	rdim, err := conn.ReceiveUint32()
	if err != nil {
		return 0, triple.Half{}, fmt.Errorf("pairing: receive dim: %w", err)
	}
	if rdim != dim {
		return 0, triple.Half{}, fmt.Errorf("%w: pairing server returned dim %d, expected %d",
			wire.ErrDimMismatch, rdim, dim)
	}
	sid, err = conn.ReceiveUint64()
	if err != nil {
		return 0, triple.Half{}, fmt.Errorf("pairing: receive sid: %w", err)
	}
	a, err := wire.ReceiveVector(conn, dim)
	if err != nil {
		return 0, triple.Half{}, fmt.Errorf("pairing: receive a: %w", err)
	}
	b, err := wire.ReceiveVector(conn, dim)
	if err != nil {
		return 0, triple.Half{}, fmt.Errorf("pairing: receive b: %w", err)
	}
	c, err := wire.ReceiveElement(conn)
	if err != nil {
		return 0, triple.Half{}, fmt.Errorf("pairing: receive c: %w", err)
	}

	return sid, triple.Half{Dim: dim, A: a, B: b, C: c}, nil
}
