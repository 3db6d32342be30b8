// Package wire holds the shared byte-level protocol constants and the
// ring.Vector/ring.Element framing built on top of p2p.Conn, so the
// pairing server, party node, and coordinator all speak the exact same
// bytes. Grounded on duatallah_pairing_server.cpp and
// duoram_party_client_sync.cpp's OP_* enums and send/recv helpers.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"duoram/p2p"
	"duoram/ring"
)

// Pairing server request/response opcodes.
const (
	OpPairingRequest  byte = 0x31
	OpPairingResponse byte = 0x33
)

// Party node client-facing opcodes.
const (
	OpWriteVec   byte = 0x40
	OpReadSecure byte = 0x41
)

// Peer cross-term tags, one per direction of the Du-Atallah exchange.
const (
	TagCross01 byte = 0x01
	TagCross10 byte = 0x10
)

// ackOK is WRITE_VEC's literal success reply, matching party_client.py's
// conn.sendall(b"OK"). There is no error counterpart: a failed request
// closes the connection instead of sending a status byte.
var ackOK = [2]byte{'O', 'K'}

// ErrFrameMismatch is returned when a received frame's header fields
// (session id, tag, or dimension) don't match what the protocol state
// machine expected next.
var ErrFrameMismatch = errors.New("wire: frame header mismatch")

// ErrBadOp is returned when a connection's first byte is not the
// expected opcode.
var ErrBadOp = errors.New("wire: unexpected opcode")

// ErrDimMismatch is returned when a declared dimension does not match
// the expected one (e.g. WRITE_VEC/READ_SECURE dim != rows).
var ErrDimMismatch = errors.New("wire: dimension mismatch")

// SendVector writes a ring.Vector as dim*4 bytes, each element
// big-endian with top bit zero (the dimension itself is NOT written;
// callers write it separately since its position in each frame
// differs).
func SendVector(c *p2p.Conn, v ring.Vector) error {
	for _, e := range v {
		if err := c.SendUint32(int(e.Uint32())); err != nil {
			return fmt.Errorf("wire: send vector: %w", err)
		}
	}
	return nil
}

// ReceiveVector reads dim ring elements, rejecting any whose top bit
// is set.
func ReceiveVector(c *p2p.Conn, dim int) (ring.Vector, error) {
	v := ring.NewVector(dim)
	for i := 0; i < dim; i++ {
		raw, err := c.ReceiveUint32()
		if err != nil {
			return nil, fmt.Errorf("wire: receive vector: %w", err)
		}
		e, err := decodeElement(raw)
		if err != nil {
			return nil, fmt.Errorf("wire: receive vector: %w", err)
		}
		v[i] = e
	}
	return v, nil
}

// SendElement writes a single ring element.
func SendElement(c *p2p.Conn, e ring.Element) error {
	if err := c.SendUint32(int(e.Uint32())); err != nil {
		return fmt.Errorf("wire: send element: %w", err)
	}
	return nil
}

// ReceiveElement reads a single ring element, rejecting a top bit set.
func ReceiveElement(c *p2p.Conn) (ring.Element, error) {
	raw, err := c.ReceiveUint32()
	if err != nil {
		return 0, fmt.Errorf("wire: receive element: %w", err)
	}
	e, err := decodeElement(raw)
	if err != nil {
		return 0, fmt.Errorf("wire: receive element: %w", err)
	}
	return e, nil
}

// decodeElement routes a wire-read word through ring.Decode so the
// top-bit-zero convention is enforced rather than silently masked.
func decodeElement(raw int) (ring.Element, error) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(raw))
	return ring.Decode(buf[:])
}

// SendAck writes and flushes WRITE_VEC's 2-byte "OK" success reply.
func SendAck(c *p2p.Conn) error {
	if err := c.SendByte(ackOK[0]); err != nil {
		return fmt.Errorf("wire: send ack: %w", err)
	}
	if err := c.SendByte(ackOK[1]); err != nil {
		return fmt.Errorf("wire: send ack: %w", err)
	}
	return c.Flush()
}

// ReceiveAck reads and validates WRITE_VEC's 2-byte "OK" success reply.
func ReceiveAck(c *p2p.Conn) error {
	b0, err := c.ReceiveByte()
	if err != nil {
		return fmt.Errorf("wire: receive ack: %w", err)
	}
	b1, err := c.ReceiveByte()
	if err != nil {
		return fmt.Errorf("wire: receive ack: %w", err)
	}
	if b0 != ackOK[0] || b1 != ackOK[1] {
		return fmt.Errorf("wire: %w: unexpected ack bytes %q", ErrBadOp, []byte{b0, b1})
	}
	return nil
}

// SendPeerFrame writes one cross-term message between two party nodes:
// [u64 sid][u8 tag][u32 dim][dim ring elements uPart][dim ring elements
// vPart]. A single frame carries both halves of the additive masks
// needed to reconstruct the Du-Atallah u and v vectors from each side's
// own triple half; see partynode's dtaCross.
func SendPeerFrame(c *p2p.Conn, sid uint64, tag byte, uPart, vPart ring.Vector) error {
	if len(uPart) != len(vPart) {
		return fmt.Errorf("wire: send peer frame: %w: uPart %d, vPart %d",
			ErrDimMismatch, len(uPart), len(vPart))
	}
	if err := c.SendUint64(sid); err != nil {
		return fmt.Errorf("wire: send peer frame sid: %w", err)
	}
	if err := c.SendByte(tag); err != nil {
		return fmt.Errorf("wire: send peer frame tag: %w", err)
	}
	if err := c.SendUint32(len(uPart)); err != nil {
		return fmt.Errorf("wire: send peer frame dim: %w", err)
	}
	if err := SendVector(c, uPart); err != nil {
		return err
	}
	if err := SendVector(c, vPart); err != nil {
		return err
	}
	return c.Flush()
}

// ReceivePeerFrame reads a cross-term message and validates its header
// against the session id, tag, and dimension the caller is expecting.
// Any mismatch is reported as ErrFrameMismatch.
func ReceivePeerFrame(c *p2p.Conn, wantSid uint64, wantTag byte, wantDim int) (uPart, vPart ring.Vector, err error) {
	sid, err := c.ReceiveUint64()
	if err != nil {
		return nil, nil, fmt.Errorf("wire: receive peer frame sid: %w", err)
	}
	tag, err := c.ReceiveByte()
	if err != nil {
		return nil, nil, fmt.Errorf("wire: receive peer frame tag: %w", err)
	}
	dimRaw, err := c.ReceiveUint32()
	if err != nil {
		return nil, nil, fmt.Errorf("wire: receive peer frame dim: %w", err)
	}
	if sid != wantSid || tag != wantTag || dimRaw != wantDim {
		return nil, nil, fmt.Errorf(
			"%w: got sid=%d tag=%#x dim=%d, want sid=%d tag=%#x dim=%d",
			ErrFrameMismatch, sid, tag, dimRaw, wantSid, wantTag, wantDim)
	}
	u, err := ReceiveVector(c, wantDim)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: receive peer frame u: %w", err)
	}
	v, err := ReceiveVector(c, wantDim)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: receive peer frame v: %w", err)
	}
	return u, v, nil
}
