// Package partynode implements a DUORAM party node: it holds one
// additive share S_P of the shared array, answers WRITE_VEC by
// accumulating a vector into S_P, and answers READ_SECURE by running
// the Du-Atallah online inner-product subprotocol against its peer
// party to return one share of the dot product with the requester's
// selector share. Grounded on duoram_party_client_sync.cpp and
// party_client.py, with the wire framing and peer-message ordering
// adapted from those.
package partynode

import (
	"fmt"
	"log"
	"net"
	"sync"

	"duoram/env"
	"duoram/p2p"
	"duoram/pairing"
	"duoram/ring"
	"duoram/wire"
)

// Role identifies which of the two DUORAM parties this node plays.
// The role is fixed at construction and never changes.
type Role byte

const (
	RoleA Role = 'A'
	RoleB Role = 'B'
)

func (r Role) String() string { return string(r) }

// Party is one of the two DUORAM servers: it owns a share vector S_P
// of fixed length rows and answers client-facing WRITE_VEC/READ_SECURE
// requests, cooperating with its peer over a separate peer-facing
// listener for the cross-term exchange.
type Party struct {
	role Role
	rows int
	cfg  *env.Config

	pairingAddr string
	peerAddr    string // dial address of the OTHER party's peer listener

	clientListener net.Listener
	peerListener   net.Listener

	router *peerRouter

	mu     sync.RWMutex
	shares ring.Vector
}

// Listen starts a Party of the given role and row count, binding a
// client-facing listener at clientAddr and a peer-facing listener at
// peerListenAddr. peerDialAddr is where the other party's peer
// listener can be reached. cfg may be nil to use crypto/rand.Reader.
func Listen(role Role, rows int, clientAddr, peerListenAddr, peerDialAddr, pairingAddr string, cfg *env.Config) (*Party, error) {
	if rows <= 0 {
		return nil, fmt.Errorf("partynode: rows must be > 0, got %d", rows)
	}
	if role != RoleA && role != RoleB {
		return nil, fmt.Errorf("partynode: invalid role %q", byte(role))
	}
	cln, err := net.Listen("tcp", clientAddr)
	if err != nil {
		return nil, fmt.Errorf("partynode: listen client: %w", err)
	}
	pln, err := net.Listen("tcp", peerListenAddr)
	if err != nil {
		cln.Close()
		return nil, fmt.Errorf("partynode: listen peer: %w", err)
	}
	if cfg == nil {
		cfg = env.Default
	}
	p := &Party{
		role:           role,
		rows:           rows,
		cfg:            cfg,
		pairingAddr:    pairingAddr,
		peerAddr:       peerDialAddr,
		clientListener: cln,
		peerListener:   pln,
		router:         newPeerRouter(),
		shares:         ring.NewVector(rows),
	}
	go p.servePeer()
	return p, nil
}

// ClientAddr returns the bound client-facing address.
func (p *Party) ClientAddr() net.Addr { return p.clientListener.Addr() }

// PeerAddr returns the bound peer-facing address.
func (p *Party) PeerAddr() net.Addr { return p.peerListener.Addr() }

// SetPeerAddr updates the dial address used to reach the other party's
// peer-facing listener. Callers that bind both parties to ephemeral
// ports (addr ":0") need this to complete the wiring after both
// listeners are up, since each party's dial target is the other's
// bound address, not known before either Listen call returns.
func (p *Party) SetPeerAddr(addr string) error {
	if addr == "" {
		return fmt.Errorf("partynode: peer address must not be empty")
	}
	p.mu.Lock()
	p.peerAddr = addr
	p.mu.Unlock()
	return nil
}

// Close closes both listeners.
func (p *Party) Close() error {
	err1 := p.clientListener.Close()
	err2 := p.peerListener.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// Serve accepts client-facing connections forever, handling each on
// its own goroutine, until the listener is closed.
func (p *Party) Serve() error {
	for {
		raw, err := p.clientListener.Accept()
		if err != nil {
			return err
		}
		go p.handleClient(raw)
	}
}

func (p *Party) handleClient(raw net.Conn) {
	defer raw.Close()
	conn := p2p.NewConn(raw)

	op, err := conn.ReceiveByte()
	if err != nil {
		return
	}
	switch op {
	case wire.OpWriteVec:
		p.handleWriteVec(conn)
	case wire.OpReadSecure:
		p.handleReadSecure(conn)
	default:
		log.Printf("partynode[%s]: unknown client op %#x from %s", p.role, op, raw.RemoteAddr())
	}
}

// handleWriteVec replies "OK" on success. Any failure closes the
// connection without a reply; there is no error status byte.
func (p *Party) handleWriteVec(conn *p2p.Conn) {
	dim, err := conn.ReceiveUint32()
	if err != nil || dim != p.rows {
		return
	}
	delta, err := wire.ReceiveVector(conn, dim)
	if err != nil {
		return
	}

	p.mu.Lock()
	err = p.shares.AddInPlace(delta)
	p.mu.Unlock()
	if err != nil {
		log.Printf("partynode[%s]: write_vec: %v", p.role, err)
		return
	}
	if err := wire.SendAck(conn); err != nil {
		log.Printf("partynode[%s]: write_vec: send ack: %v", p.role, err)
	}
}

// handleReadSecure replies with a bare ring element on success. Any
// failure closes the connection without a reply.
func (p *Party) handleReadSecure(conn *p2p.Conn) {
	dim, err := conn.ReceiveUint32()
	if err != nil || dim != p.rows {
		return
	}
	eShare, err := wire.ReceiveVector(conn, dim)
	if err != nil {
		return
	}

	p.mu.RLock()
	snapshot := p.shares.Clone()
	p.mu.RUnlock()

	result, err := p.readSecure(snapshot, eShare)
	if err != nil {
		log.Printf("partynode[%s]: read_secure: %v", p.role, err)
		return
	}

	if err := wire.SendElement(conn, result); err != nil {
		return
	}
	conn.Flush()
}

// readSecure computes this party's share of <S, e> where S = S_A + S_B
// is the logical array (this party holds only its own share) and e is
// the full selector vector (split as eShare here, e_peer on the other
// side). It does so as self-dot plus two Du-Atallah cross terms
// run concurrently against the peer, both drawing on the one triple
// fetched for this read: fetching a second triple for the second
// cross term would let the pairing server match this party's two
// requests to each other instead of to the peer's, leaving both sides
// without a matching session id.
func (p *Party) readSecure(shareSnapshot, eShare ring.Vector) (ring.Element, error) {
	self, err := shareSnapshot.Dot(eShare)
	if err != nil {
		return 0, err
	}

	sid, half, err := pairing.FetchHalf(p.pairingAddr, p.rows)
	if err != nil {
		return 0, fmt.Errorf("fetch triple: %w", err)
	}

	type crossResult struct {
		val ring.Element
		err error
	}
	ch01 := make(chan crossResult, 1)
	ch10 := make(chan crossResult, 1)

	go func() {
		v, err := p.dtaCross(sid, wire.TagCross01, p.role == RoleA, pick(p.role == RoleA, shareSnapshot, eShare), half)
		ch01 <- crossResult{v, err}
	}()
	go func() {
		v, err := p.dtaCross(sid, wire.TagCross10, p.role == RoleB, pick(p.role == RoleB, shareSnapshot, eShare), half)
		ch10 <- crossResult{v, err}
	}()

	r01 := <-ch01
	if r01.err != nil {
		return 0, fmt.Errorf("cross01: %w", r01.err)
	}
	r10 := <-ch10
	if r10.err != nil {
		return 0, fmt.Errorf("cross10: %w", r10.err)
	}

	return self.Add(r01.val).Add(r10.val), nil
}

func pick(cond bool, a, b ring.Vector) ring.Vector {
	if cond {
		return a
	}
	return b
}
