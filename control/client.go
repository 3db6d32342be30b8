package control

import (
	"bufio"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"duoram/env"
)

// Client is one enrolled control-channel session: a single long-lived
// connection plus the rotating-key ratchet state.
type Client struct {
	cfg  *env.Config
	raw  net.Conn
	r    *bufio.Reader
	w    *bufio.Writer
	mu   sync.Mutex
	sess *session
}

// Enroll dials addr, fetches the server's public key, performs the
// RSA-OAEP enrollment handshake for username/password, and returns a
// ready Client. Grounded on client.py's main(): PUB -> ENROLL -> AUTH.
func Enroll(addr, username, password string, cfg *env.Config) (*Client, error) {
	raw, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("control: dial: %w", err)
	}
	if cfg == nil {
		cfg = env.Default
	}
	r := bufio.NewReader(raw)
	w := bufio.NewWriter(raw)

	if err := sendEnvelope(w, Envelope{Op: "PUB"}); err != nil {
		raw.Close()
		return nil, err
	}
	resp, err := recvEnvelope(r)
	if err != nil {
		raw.Close()
		return nil, err
	}
	if resp.Op != "PUB" {
		raw.Close()
		return nil, fmt.Errorf("control: %w: expected PUB reply, got %q", ErrMalformed, resp.Op)
	}
	pubPEM, err := base64.StdEncoding.DecodeString(resp.PublicPEMB64)
	if err != nil {
		raw.Close()
		return nil, fmt.Errorf("control: decode server public key: %w", err)
	}
	pub, err := parsePublicPEM(pubPEM)
	if err != nil {
		raw.Close()
		return nil, err
	}

	kc := make([]byte, SessionKeyLen)
	if _, err := cfg.GetRandom().Read(kc); err != nil {
		raw.Close()
		return nil, err
	}
	passHex := hex.EncodeToString(sha256Sum(password))
	blob, err := buildEnrollBlob(kc, username, passHex)
	if err != nil {
		raw.Close()
		return nil, err
	}
	ct, err := rsaEncryptOAEP(pub, blob)
	if err != nil {
		raw.Close()
		return nil, err
	}
	if err := sendEnvelope(w, Envelope{Op: "ENROLL", PayloadB64: base64.StdEncoding.EncodeToString(ct)}); err != nil {
		raw.Close()
		return nil, err
	}

	auth, err := recvEnvelope(r)
	if err != nil {
		raw.Close()
		return nil, err
	}
	if auth.Op != "AUTH" {
		raw.Close()
		return nil, fmt.Errorf("control: %w: expected AUTH reply, got %q", ErrMalformed, auth.Op)
	}
	nonce, err1 := base64.StdEncoding.DecodeString(auth.NonceB64)
	authCT, err2 := base64.StdEncoding.DecodeString(auth.CTB64)
	if err1 != nil || err2 != nil {
		raw.Close()
		return nil, fmt.Errorf("control: %w: bad base64 in AUTH reply", ErrMalformed)
	}
	pt, err := aesGCMDecrypt(kc, nonce, authCT)
	if err != nil {
		raw.Close()
		return nil, err
	}
	if auth.OK == nil || !*auth.OK {
		raw.Close()
		return nil, fmt.Errorf("control: %w", ErrAuthFailed)
	}

	var info authPayload
	if err := json.Unmarshal(pt, &info); err != nil {
		raw.Close()
		return nil, fmt.Errorf("control: %w: malformed AUTH payload: %v", ErrMalformed, err)
	}
	confirm, err := hkdfConfirmSubkey(kc)
	if err != nil {
		raw.Close()
		return nil, err
	}
	if info.ConfirmB64 != base64.StdEncoding.EncodeToString(confirm) {
		raw.Close()
		return nil, fmt.Errorf("control: %w: enrollment confirmation mismatch", ErrCryptoFailure)
	}
	rk, err := base64.StdEncoding.DecodeString(info.RK)
	if err != nil {
		raw.Close()
		return nil, fmt.Errorf("control: decode rk: %w", err)
	}

	return &Client{
		cfg: cfg, raw: raw, r: r, w: w,
		sess: &session{rk: rk, counter: info.Counter},
	}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.raw.Close() }

// Send encrypts payload under the current rotating key, sends it, and
// returns the server's decrypted ACK payload. Grounded on client.py's
// interactive loop.
func (c *Client) Send(payload string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	msgPt, err := json.Marshal(rkPayload{Payload: payload, Counter: c.sess.counter})
	if err != nil {
		return "", err
	}
	nonce, ct, err := aesGCMEncrypt(c.sess.rk, msgPt)
	if err != nil {
		return "", err
	}
	if err := sendEnvelope(c.w, Envelope{
		Op: "RK_MSG",
		NonceB64: base64.StdEncoding.EncodeToString(nonce),
		CTB64:    base64.StdEncoding.EncodeToString(ct),
	}); err != nil {
		return "", err
	}
	c.sess.advance()

	resp, err := recvEnvelope(c.r)
	if err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", fmt.Errorf("control: server reported error: %s", resp.Error)
	}
	rNonce, err1 := base64.StdEncoding.DecodeString(resp.NonceB64)
	rCT, err2 := base64.StdEncoding.DecodeString(resp.CTB64)
	if err1 != nil || err2 != nil {
		return "", fmt.Errorf("control: %w: bad base64 in reply", ErrMalformed)
	}
	pt, err := aesGCMDecrypt(c.sess.rk, rNonce, rCT)
	if err != nil {
		return "", err
	}
	var info rkPayload
	if err := json.Unmarshal(pt, &info); err != nil {
		return "", fmt.Errorf("control: %w: malformed reply payload", ErrMalformed)
	}
	if info.Counter != c.sess.counter {
		return "", fmt.Errorf("control: %w", ErrCounterDesync)
	}
	c.sess.advance()
	return info.Payload, nil
}

func sha256Sum(s string) []byte {
	h := sha256.Sum256([]byte(s))
	return h[:]
}

// buildEnrollBlob constructs K_c || len8(username) || username ||
// len8(passHex) || passHex, rejecting fields that overrun the
// single-byte length prefix.
func buildEnrollBlob(kc []byte, username, passHex string) ([]byte, error) {
	if len(username) > 255 || len(passHex) > 255 {
		return nil, fmt.Errorf("control: %w: username or password hash too long", ErrLengthOverrun)
	}
	blob := make([]byte, 0, len(kc)+2+len(username)+len(passHex))
	blob = append(blob, kc...)
	blob = append(blob, byte(len(username)))
	blob = append(blob, username...)
	blob = append(blob, byte(len(passHex)))
	blob = append(blob, passHex...)
	return blob, nil
}
