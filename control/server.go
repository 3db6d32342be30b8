package control

import (
	"bufio"
	"crypto/rsa"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net"

	"duoram/env"
)

// Server is the control channel's server half: it holds the RSA key
// pair (persisted under dir/keys) and an in-memory user table mapping
// username to hex-encoded SHA-256 password hash.
type Server struct {
	cfg      *env.Config
	priv     *rsa.PrivateKey
	pubPEM   []byte
	users    map[string]string
	listener net.Listener
}

// Listen starts a Server at addr, loading or generating its RSA key
// pair under dir/keys. users maps username to hex SHA-256 password
// hash.
func Listen(addr, dir string, users map[string]string, cfg *env.Config) (*Server, error) {
	priv, pubPEM, err := loadOrGenerateKeyPair(dir)
	if err != nil {
		return nil, err
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("control: listen: %w", err)
	}
	if cfg == nil {
		cfg = env.Default
	}
	return &Server{cfg: cfg, priv: priv, pubPEM: pubPEM, users: users, listener: ln}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// Close closes the listener.
func (s *Server) Close() error { return s.listener.Close() }

// Serve accepts connections forever, handling each on its own
// goroutine.
func (s *Server) Serve() error {
	for {
		raw, err := s.listener.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(raw)
	}
}

func (s *Server) handleConn(raw net.Conn) {
	defer raw.Close()
	r := bufio.NewReader(raw)
	w := bufio.NewWriter(raw)

	msg, err := recvEnvelope(r)
	if err != nil {
		return
	}
	if msg.Op == "PUB" {
		if err := sendEnvelope(w, Envelope{Op: "PUB", PublicPEMB64: base64.StdEncoding.EncodeToString(s.pubPEM)}); err != nil {
			return
		}
		msg, err = recvEnvelope(r)
		if err != nil {
			return
		}
	}
	if msg.Op != "ENROLL" {
		sendEnvelope(w, Envelope{Error: "expected ENROLL"})
		return
	}

	ct, err := base64.StdEncoding.DecodeString(msg.PayloadB64)
	if err != nil {
		sendEnvelope(w, Envelope{Error: "bad base64 payload"})
		return
	}
	blob, err := rsaDecryptOAEP(s.priv, ct)
	if err != nil {
		sendEnvelope(w, Envelope{Error: "enrollment decrypt failed"})
		return
	}

	kc, username, passHex, ok := parseEnrollBlob(blob)
	if !ok {
		sendEnvelope(w, Envelope{Error: "malformed enrollment blob"})
		return
	}

	stored, known := s.users[username]
	authOK := known && subtle.ConstantTimeCompare([]byte(stored), []byte(passHex)) == 1

	if !authOK {
		nonce, ct, err := aesGCMEncrypt(kc, []byte(authFailPlaintext))
		if err != nil {
			return
		}
		sendEnvelope(w, Envelope{
			Op: "AUTH", OK: boolPtr(false),
			NonceB64: base64.StdEncoding.EncodeToString(nonce),
			CTB64:    base64.StdEncoding.EncodeToString(ct),
		})
		return
	}

	rk := make([]byte, 32)
	if _, err := s.cfg.GetRandom().Read(rk); err != nil {
		return
	}
	confirm, err := hkdfConfirmSubkey(kc)
	if err != nil {
		return
	}
	authPt, err := json.Marshal(authPayload{
		RK: base64.StdEncoding.EncodeToString(rk), Counter: 0,
		ConfirmB64: base64.StdEncoding.EncodeToString(confirm),
	})
	if err != nil {
		return
	}
	nonce, ct, err := aesGCMEncrypt(kc, authPt)
	if err != nil {
		return
	}
	if err := sendEnvelope(w, Envelope{
		Op: "AUTH", OK: boolPtr(true),
		NonceB64: base64.StdEncoding.EncodeToString(nonce),
		CTB64:    base64.StdEncoding.EncodeToString(ct),
	}); err != nil {
		return
	}
	log.Printf("control: %s authenticated as %q", raw.RemoteAddr(), username)

	sess := &session{rk: rk, counter: 0}
	s.serveSession(raw, r, w, sess)
}

func (s *Server) serveSession(raw net.Conn, r *bufio.Reader, w *bufio.Writer, sess *session) {
	for {
		msg, err := recvEnvelope(r)
		if err != nil {
			return
		}
		if msg.Op != "RK_MSG" {
			sendEnvelope(w, Envelope{Error: "expected RK_MSG"})
			continue
		}
		nonce, err1 := base64.StdEncoding.DecodeString(msg.NonceB64)
		ct, err2 := base64.StdEncoding.DecodeString(msg.CTB64)
		if err1 != nil || err2 != nil {
			sendEnvelope(w, Envelope{Error: "bad base64"})
			return
		}
		pt, err := aesGCMDecrypt(sess.rk, nonce, ct)
		if err != nil {
			sendEnvelope(w, Envelope{Error: "authentication tag invalid"})
			return
		}
		var data rkPayload
		if err := json.Unmarshal(pt, &data); err != nil {
			sendEnvelope(w, Envelope{Error: "malformed rk_msg payload"})
			return
		}
		if data.Counter != sess.counter {
			sendEnvelope(w, Envelope{Error: "counter mismatch"})
			return
		}
		log.Printf("control: %s (ctr=%d): %s", raw.RemoteAddr(), sess.counter, data.Payload)
		sess.advance()

		replyPt, err := json.Marshal(rkPayload{Payload: "ACK:" + data.Payload, Counter: sess.counter})
		if err != nil {
			return
		}
		rn, rc, err := aesGCMEncrypt(sess.rk, replyPt)
		if err != nil {
			return
		}
		if err := sendEnvelope(w, Envelope{
			Op: "RK_MSG",
			NonceB64: base64.StdEncoding.EncodeToString(rn),
			CTB64:    base64.StdEncoding.EncodeToString(rc),
		}); err != nil {
			return
		}
		sess.advance()
	}
}

// parseEnrollBlob splits the decrypted OAEP plaintext into
// K_c || len8(username) || username || len8(pass hex) || pass hex.
func parseEnrollBlob(blob []byte) (kc []byte, username, passHex string, ok bool) {
	if len(blob) < SessionKeyLen+2 {
		return nil, "", "", false
	}
	kc = blob[:SessionKeyLen]
	i := SessionKeyLen
	ulen := int(blob[i])
	i++
	if i+ulen+1 > len(blob) {
		return nil, "", "", false
	}
	username = string(blob[i : i+ulen])
	i += ulen
	hlen := int(blob[i])
	i++
	if i+hlen > len(blob) {
		return nil, "", "", false
	}
	passHex = string(blob[i : i+hlen])
	return kc, username, passHex, true
}
