package partynode

import (
	"fmt"
	"net"
	"sync"
	"time"

	"duoram/p2p"
	"duoram/ring"
	"duoram/wire"
)

// crossTimeout bounds how long a party waits for the peer's half of a
// cross-term exchange before giving up on that single READ_SECURE
// request. The protocol does not mandate a value; this is generous
// enough for same-host and LAN deployments.
const crossTimeout = 30 * time.Second

type peerKey struct {
	sid uint64
	tag byte
}

// routed is a peer connection that has been read past its frame header
// and is ready for the waiting goroutine to read the two ring vectors.
type routed struct {
	conn *p2p.Conn
	raw  net.Conn
}

// peerRouter rendezvous-matches incoming peer connections (identified
// by session id and cross-term tag) with the goroutine that is
// expecting them. Concurrent READ_SECURE requests on the same party
// share one peer-facing listener, so connections can arrive before or
// after the corresponding dtaCross call starts waiting; either order
// is handled.
type peerRouter struct {
	mu      sync.Mutex
	waiting map[peerKey]chan routed
	pending map[peerKey]routed
}

func newPeerRouter() *peerRouter {
	return &peerRouter{
		waiting: make(map[peerKey]chan routed),
		pending: make(map[peerKey]routed),
	}
}

func (r *peerRouter) deliver(key peerKey, rt routed) {
	r.mu.Lock()
	if ch, ok := r.waiting[key]; ok {
		delete(r.waiting, key)
		r.mu.Unlock()
		ch <- rt
		return
	}
	r.pending[key] = rt
	r.mu.Unlock()
}

// await blocks until a connection tagged with key arrives, or until
// crossTimeout elapses.
func (r *peerRouter) await(key peerKey) (routed, error) {
	r.mu.Lock()
	if rt, ok := r.pending[key]; ok {
		delete(r.pending, key)
		r.mu.Unlock()
		return rt, nil
	}
	ch := make(chan routed, 1)
	r.waiting[key] = ch
	r.mu.Unlock()

	select {
	case rt := <-ch:
		return rt, nil
	case <-time.After(crossTimeout):
		r.mu.Lock()
		delete(r.waiting, key)
		r.mu.Unlock()
		return routed{}, fmt.Errorf("partynode: timed out waiting for peer sid=%d tag=%#x", key.sid, key.tag)
	}
}

// servePeer accepts peer connections forever, reading each frame's
// header and routing the remainder to whichever dtaCross call is
// expecting it.
func (p *Party) servePeer() {
	for {
		raw, err := p.peerListener.Accept()
		if err != nil {
			return
		}
		go p.routeIncoming(raw)
	}
}

func (p *Party) routeIncoming(raw net.Conn) {
	conn := p2p.NewConn(raw)
	sid, err := conn.ReceiveUint64()
	if err != nil {
		raw.Close()
		return
	}
	tag, err := conn.ReceiveByte()
	if err != nil {
		raw.Close()
		return
	}
	dim, err := conn.ReceiveUint32()
	if err != nil || dim != p.rows {
		raw.Close()
		return
	}
	p.router.deliver(peerKey{sid: sid, tag: tag}, routed{conn: conn, raw: raw})
}

// sendCross dials the peer's peer-facing address and writes one
// cross-term frame.
func (p *Party) sendCross(sid uint64, tag byte, uPart, vPart ring.Vector) error {
	p.mu.RLock()
	addr := p.peerAddr
	p.mu.RUnlock()
	raw, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("partynode: dial peer: %w", err)
	}
	defer raw.Close()
	conn := p2p.NewConn(raw)
	return wire.SendPeerFrame(conn, sid, tag, uPart, vPart)
}

// recvCross waits for the peer's cross-term frame tagged (sid, tag)
// and reads its two ring vectors.
func (p *Party) recvCross(sid uint64, tag byte) (uPart, vPart ring.Vector, err error) {
	rt, err := p.router.await(peerKey{sid: sid, tag: tag})
	if err != nil {
		return nil, nil, err
	}
	defer rt.raw.Close()

	uPart, err = wire.ReceiveVector(rt.conn, p.rows)
	if err != nil {
		return nil, nil, fmt.Errorf("partynode: receive cross u: %w", err)
	}
	vPart, err = wire.ReceiveVector(rt.conn, p.rows)
	if err != nil {
		return nil, nil, fmt.Errorf("partynode: receive cross v: %w", err)
	}
	return uPart, vPart, nil
}
