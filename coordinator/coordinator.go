// Package coordinator implements the DUORAM coordinator: it turns a
// logical read or write into a pair of additive share vectors, fans
// them out to party A and party B concurrently over their
// client-facing ports, and reassembles the parties' replies. Grounded
// on duoram_py/user_facing_api.py's Oram.read/Oram.write, adapted to
// the Go concurrency idioms used elsewhere in this module (a goroutine
// per concurrent peer plus a result channel).
package coordinator

import (
	"errors"
	"fmt"
	"io"
	"net"

	"duoram/env"
	"duoram/p2p"
	"duoram/ring"
	"duoram/wire"
)

// ErrIndexOutOfRange is returned when the requested logical row index
// does not fit the configured dimension, without opening any sockets.
var ErrIndexOutOfRange = errors.New("coordinator: index out of range")

// ErrPartyFailed wraps a failure reported by, or communicating with,
// one of the two parties.
var ErrPartyFailed = errors.New("coordinator: party request failed")

// Coordinator issues READ and WRITE operations against a pair of
// DUORAM party nodes addressed by their client-facing ports.
type Coordinator struct {
	addrA, addrB string
	rows         int // logical row count
	recordWidth  int // elements per logical record; dim = rows*recordWidth
	cfg          *env.Config
}

// Option configures a Coordinator at construction.
type Option func(*Coordinator)

// WithRecordWidth sets the number of ring elements per logical record.
// The plain model is RecordWidth == 1, the default; values above 1
// implement fixed-width multi-element records, addressing element i
// of row idx at the flat position idx*RecordWidth+i.
func WithRecordWidth(width int) Option {
	return func(c *Coordinator) { c.recordWidth = width }
}

// New builds a Coordinator for rows logical rows against party
// client-facing addresses addrA/addrB. cfg may be nil to use
// crypto/rand.Reader.
func New(addrA, addrB string, rows int, cfg *env.Config, opts ...Option) (*Coordinator, error) {
	if rows <= 0 {
		return nil, fmt.Errorf("coordinator: rows must be > 0, got %d", rows)
	}
	if cfg == nil {
		cfg = env.Default
	}
	c := &Coordinator{addrA: addrA, addrB: addrB, rows: rows, recordWidth: 1, cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}
	if c.recordWidth <= 0 {
		return nil, fmt.Errorf("coordinator: record width must be > 0, got %d", c.recordWidth)
	}
	return c, nil
}

// dim is the flat dimension the party nodes were configured with.
func (c *Coordinator) dim() int { return c.rows * c.recordWidth }

// Read reconstructs the logical record at idx: RecordWidth ring
// elements, one oblivious dot-product READ_SECURE per element.
func (c *Coordinator) Read(idx int) ([]ring.Element, error) {
	if idx < 0 || idx >= c.rows {
		return nil, fmt.Errorf("%w: idx %d, rows %d", ErrIndexOutOfRange, idx, c.rows)
	}
	out := make([]ring.Element, c.recordWidth)
	for i := 0; i < c.recordWidth; i++ {
		v, err := c.readElement(idx*c.recordWidth + i)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Write splits vals (length RecordWidth) into additive shares and
// applies them to both parties concurrently.
func (c *Coordinator) Write(idx int, vals []ring.Element) error {
	if idx < 0 || idx >= c.rows {
		return fmt.Errorf("%w: idx %d, rows %d", ErrIndexOutOfRange, idx, c.rows)
	}
	if len(vals) != c.recordWidth {
		return fmt.Errorf("coordinator: %w: got %d values, want record width %d",
			wire.ErrDimMismatch, len(vals), c.recordWidth)
	}
	for i, v := range vals {
		if err := c.writeElement(idx*c.recordWidth+i, v); err != nil {
			return err
		}
	}
	return nil
}

// readElement runs one READ_SECURE for the flat position pos,
// returning the reconstructed ring element.
func (c *Coordinator) readElement(pos int) (ring.Element, error) {
	share0, share1, err := c.splitBasis(pos, ring.One())
	if err != nil {
		return 0, err
	}

	type result struct {
		val ring.Element
		err error
	}
	chA := make(chan result, 1)
	chB := make(chan result, 1)
	go func() {
		v, err := readFromParty(c.addrA, c.dim(), share0)
		chA <- result{v, err}
	}()
	go func() {
		v, err := readFromParty(c.addrB, c.dim(), share1)
		chB <- result{v, err}
	}()

	rA := <-chA
	rB := <-chB
	if rA.err != nil {
		return 0, fmt.Errorf("%w: party A: %v", ErrPartyFailed, rA.err)
	}
	if rB.err != nil {
		return 0, fmt.Errorf("%w: party B: %v", ErrPartyFailed, rB.err)
	}
	return rA.val.Add(rB.val), nil
}

// writeElement applies one WRITE_VEC delta (a standard-basis vector
// scaled by v at pos) to both parties concurrently.
func (c *Coordinator) writeElement(pos int, v ring.Element) error {
	share0, share1, err := c.splitBasis(pos, v)
	if err != nil {
		return err
	}

	chA := make(chan error, 1)
	chB := make(chan error, 1)
	go func() { chA <- writeToParty(c.addrA, c.dim(), share0) }()
	go func() { chB <- writeToParty(c.addrB, c.dim(), share1) }()

	errA := <-chA
	errB := <-chB
	if errA != nil {
		return fmt.Errorf("%w: party A: %v", ErrPartyFailed, errA)
	}
	if errB != nil {
		return fmt.Errorf("%w: party B: %v", ErrPartyFailed, errB)
	}
	return nil
}

// splitBasis builds e with e[pos] = v and splits it as share0 = e-f,
// share1 = f for a uniformly random f.
func (c *Coordinator) splitBasis(pos int, v ring.Element) (share0, share1 ring.Vector, err error) {
	e, err := ring.StandardBasis(c.dim(), pos, v)
	if err != nil {
		return nil, nil, err
	}
	f := make(ring.Vector, c.dim())
	buf := make([]byte, 4)
	rnd := c.cfg.GetRandom()
	for i := range f {
		if _, err := io.ReadFull(rnd, buf); err != nil {
			return nil, nil, fmt.Errorf("coordinator: sample randomness: %w", err)
		}
		f[i] = ring.New(uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3]))
	}
	share0, err = e.Sub(f)
	if err != nil {
		return nil, nil, err
	}
	return share0, f, nil
}

func dialParty(addr string) (*p2p.Conn, net.Conn, error) {
	raw, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("dial: %w", err)
	}
	return p2p.NewConn(raw), raw, nil
}

func readFromParty(addr string, dim int, share ring.Vector) (ring.Element, error) {
	conn, raw, err := dialParty(addr)
	if err != nil {
		return 0, err
	}
	defer raw.Close()

	if err := conn.SendByte(wire.OpReadSecure); err != nil {
		return 0, err
	}
	if err := conn.SendUint32(dim); err != nil {
		return 0, err
	}
	if err := wire.SendVector(conn, share); err != nil {
		return 0, err
	}
	if err := conn.Flush(); err != nil {
		return 0, err
	}

	return wire.ReceiveElement(conn)
}

func writeToParty(addr string, dim int, delta ring.Vector) error {
	conn, raw, err := dialParty(addr)
	if err != nil {
		return err
	}
	defer raw.Close()

	if err := conn.SendByte(wire.OpWriteVec); err != nil {
		return err
	}
	if err := conn.SendUint32(dim); err != nil {
		return err
	}
	if err := wire.SendVector(conn, delta); err != nil {
		return err
	}
	if err := conn.Flush(); err != nil {
		return err
	}

	return wire.ReceiveAck(conn)
}
