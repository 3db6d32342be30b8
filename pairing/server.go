// Package pairing implements the Du-Atallah triple pairing server: it
// matches two concurrent requests for the same dimension and hands
// each side one half of a freshly generated correlated-randomness
// triple, tagged with a shared session id. Grounded on
// share_server.py and duatallah_pairing_server.cpp.
package pairing

import (
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"net"
	"sync"

	"duoram/env"
	"duoram/p2p"
	"duoram/triple"
	"duoram/wire"
)

// Server is the pairing server's run-time state: a listener and the
// per-dimension FIFO of parked first-arrivals.
type Server struct {
	cfg      *env.Config
	listener net.Listener

	mu      sync.Mutex
	waiting map[uint32][]*parked
}

type parked struct {
	conn *p2p.Conn
	raw  net.Conn
}

// Listen opens a TCP listener at addr and returns a Server ready to
// Serve connections. cfg may be nil to use crypto/rand.Reader.
func Listen(addr string, cfg *env.Config) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("pairing: listen: %w", err)
	}
	if cfg == nil {
		cfg = env.Default
	}
	return &Server{
		cfg:      cfg,
		listener: ln,
		waiting:  make(map[uint32][]*parked),
	}, nil
}

// Addr returns the server's bound address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Close closes the listener. Parked connections are not explicitly
// closed; they will fail on their next use.
func (s *Server) Close() error {
	return s.listener.Close()
}

// Serve accepts connections forever, handling each on its own
// goroutine, until the listener is closed.
func (s *Server) Serve() error {
	for {
		raw, err := s.listener.Accept()
		if err != nil {
			return err
		}
		go s.handle(raw)
	}
}

func (s *Server) handle(raw net.Conn) {
	conn := p2p.NewConn(raw)

	op, err := conn.ReceiveByte()
	if err != nil || op != wire.OpPairingRequest {
		log.Printf("pairing: bad request from %s: op=%v err=%v", raw.RemoteAddr(), op, err)
		raw.Close()
		return
	}
	dimRaw, err := conn.ReceiveUint32()
	if err != nil || dimRaw <= 0 {
		log.Printf("pairing: bad dimension from %s: %v (err=%v)", raw.RemoteAddr(), dimRaw, err)
		raw.Close()
		return
	}
	dim := uint32(dimRaw)

	log.Printf("pairing: request dim=%d from %s", dim, raw.RemoteAddr())

	self := &parked{conn: conn, raw: raw}

	for {
		s.mu.Lock()
		q := s.waiting[dim]
		if len(q) == 0 {
			s.waiting[dim] = append(q, self)
			s.mu.Unlock()
			// Parked: no further reads from this socket. The match,
			// if any, is driven by a future arrival's goroutine.
			return
		}
		peer := q[0]
		q = q[1:]
		if len(q) == 0 {
			delete(s.waiting, dim)
		} else {
			s.waiting[dim] = q
		}
		s.mu.Unlock()

		if err := s.match(dim, peer, self); err != nil {
			log.Printf("pairing: dropping dead peer for dim=%d: %v", dim, err)
			peer.raw.Close()
			continue // try the next parked connection, if any
		}
		return
	}
}

// match generates one triple for dim and delivers one half to each of
// peer (first-arrived, index 0) and self (second-arrived, index 1)
// concurrently, under a freshly minted session id.
func (s *Server) match(dim uint32, peer, self *parked) error {
	t, err := triple.Generate(s.cfg.GetRandom(), int(dim))
	if err != nil {
		self.raw.Close()
		return fmt.Errorf("generate triple: %w", err)
	}
	sid, err := randomSessionID(s.cfg.GetRandom())
	if err != nil {
		self.raw.Close()
		return fmt.Errorf("mint session id: %w", err)
	}

	half0, half1 := t.Split()

	var wg sync.WaitGroup
	var errPeer, errSelf error
	wg.Add(2)
	go func() {
		defer wg.Done()
		errPeer = sendHalf(peer.conn, dim, sid, half0)
		peer.raw.Close()
	}()
	go func() {
		defer wg.Done()
		errSelf = sendHalf(self.conn, dim, sid, half1)
		self.raw.Close()
	}()
	wg.Wait()

	if errPeer != nil {
		return errPeer
	}
	if errSelf != nil {
		// self is not retried: it is this request's own connection,
		// not a parked one; the requester observes the failure when
		// its read fails.
		log.Printf("pairing: send to second arrival failed: %v", errSelf)
	}
	log.Printf("pairing: matched dim=%d sid=%d", dim, sid)
	return nil
}

func sendHalf(conn *p2p.Conn, dim uint32, sid uint64, h triple.Half) error {
	if err := conn.SendByte(wire.OpPairingResponse); err != nil {
		return err
	}
	if err := conn.SendUint32(int(dim)); err != nil {
		return err
	}
	if err := conn.SendUint64(sid); err != nil {
		return err
	}
	if err := wire.SendVector(conn, h.A); err != nil {
		return err
	}
	if err := wire.SendVector(conn, h.B); err != nil {
		return err
	}
	if err := wire.SendElement(conn, h.C); err != nil {
		return err
	}
	return conn.Flush()
}

func randomSessionID(rnd io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(rnd, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}
