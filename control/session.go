package control

// session holds one side's rotating-key ratchet state. Both the
// server and client advance it identically: after any message tagged
// with counter C is processed (sent or received), rk and counter
// advance to C+1. A full request/reply round therefore advances the
// counter by 2 at both peers, keeping them in lockstep.
type session struct {
	rk      []byte
	counter uint64
}

func (s *session) advance() {
	s.rk = deriveNextRK(s.rk, s.counter)
	s.counter++
}

// rkPayload is the plaintext JSON carried by every RK_MSG ciphertext.
type rkPayload struct {
	Payload string `json:"payload"`
	Counter uint64 `json:"counter"`
}

// authPayload is the plaintext JSON carried by a successful AUTH
// ciphertext. ConfirmB64 is an HKDF-derived sub-key over K_c that lets
// the client verify the server actually decrypted the same K_c it
// sent, before trusting rk/counter.
type authPayload struct {
	RK         string `json:"rk"`
	Counter    uint64 `json:"counter"`
	ConfirmB64 string `json:"confirm_b64"`
}

// authFailPlaintext is the fixed ciphertext payload on authentication
// failure: a constant string so failure carries no information about
// which of username/password was wrong.
const authFailPlaintext = "AUTH_FAIL"
