package control

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/binary"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/hkdf"
)

// RSAKeyBits is the fixed RSA modulus size for the enrollment key pair.
const RSAKeyBits = 2048

// SessionKeyLen is the length of K_c, the client-chosen session key.
const SessionKeyLen = 32

// NonceLen is the AES-256-GCM nonce length.
const NonceLen = 12

// hkdfInfo is the HKDF info string binding the enrollment confirmation
// sub-key to this protocol, so it cannot be confused with any other
// derivation over the same K_c.
var hkdfInfo = []byte("duoram-enroll")

var (
	ErrMalformed      = errors.New("control: malformed message")
	ErrUnknownOp      = errors.New("control: unknown op")
	ErrCryptoFailure  = errors.New("control: crypto failure")
	ErrAuthFailed     = errors.New("control: authentication failed")
	ErrCounterDesync  = errors.New("control: counter desync")
	ErrLengthOverrun  = errors.New("control: length-prefix overrun")
)

// loadOrGenerateKeyPair loads keys/private.pem and keys/public.pem
// under dir, generating and persisting a fresh 2048-bit RSA key pair
// on first start. Grounded on server.py's ensure_keypair.
func loadOrGenerateKeyPair(dir string) (*rsa.PrivateKey, []byte, error) {
	keyDir := filepath.Join(dir, "keys")
	privPath := filepath.Join(keyDir, "private.pem")
	pubPath := filepath.Join(keyDir, "public.pem")

	if privPEM, err := os.ReadFile(privPath); err == nil {
		pubPEM, err := os.ReadFile(pubPath)
		if err != nil {
			return nil, nil, fmt.Errorf("control: read public.pem: %w", err)
		}
		priv, err := parsePrivatePEM(privPEM)
		if err != nil {
			return nil, nil, err
		}
		return priv, pubPEM, nil
	}

	if err := os.MkdirAll(keyDir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("control: create keys dir: %w", err)
	}
	priv, err := rsa.GenerateKey(rand.Reader, RSAKeyBits)
	if err != nil {
		return nil, nil, fmt.Errorf("control: generate key: %w", err)
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, nil, fmt.Errorf("control: marshal private key: %w", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})

	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("control: marshal public key: %w", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	if err := os.WriteFile(privPath, privPEM, 0o600); err != nil {
		return nil, nil, fmt.Errorf("control: write private.pem: %w", err)
	}
	if err := os.WriteFile(pubPath, pubPEM, 0o644); err != nil {
		return nil, nil, fmt.Errorf("control: write public.pem: %w", err)
	}
	return priv, pubPEM, nil
}

func parsePrivatePEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("control: %w: private.pem has no PEM block", ErrCryptoFailure)
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("control: parse private key: %w", err)
	}
	priv, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("control: %w: private.pem is not an RSA key", ErrCryptoFailure)
	}
	return priv, nil
}

func parsePublicPEM(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("control: %w: public key has no PEM block", ErrCryptoFailure)
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("control: parse public key: %w", err)
	}
	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("control: %w: not an RSA public key", ErrCryptoFailure)
	}
	return pub, nil
}

func rsaEncryptOAEP(pub *rsa.PublicKey, plaintext []byte) ([]byte, error) {
	ct, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, plaintext, nil)
	if err != nil {
		return nil, fmt.Errorf("control: %w: oaep encrypt: %v", ErrCryptoFailure, err)
	}
	return ct, nil
}

func rsaDecryptOAEP(priv *rsa.PrivateKey, ct []byte) ([]byte, error) {
	pt, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("control: %w: oaep decrypt: %v", ErrCryptoFailure, err)
	}
	return pt, nil
}

func aesGCMEncrypt(key, plaintext []byte) (nonce, ciphertext []byte, err error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, fmt.Errorf("control: %w: aes: %v", ErrCryptoFailure, err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, NonceLen)
	if err != nil {
		return nil, nil, fmt.Errorf("control: %w: gcm: %v", ErrCryptoFailure, err)
	}
	nonce = make([]byte, NonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("control: %w: nonce: %v", ErrCryptoFailure, err)
	}
	ciphertext = gcm.Seal(nil, nonce, plaintext, nil)
	return nonce, ciphertext, nil
}

func aesGCMDecrypt(key, nonce, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("control: %w: aes: %v", ErrCryptoFailure, err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, NonceLen)
	if err != nil {
		return nil, fmt.Errorf("control: %w: gcm: %v", ErrCryptoFailure, err)
	}
	pt, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("control: %w: tag verification failed", ErrCryptoFailure)
	}
	return pt, nil
}

// deriveNextRK computes rk <- HMAC-SHA256(key=rk, "rotate" || be64(counter)),
// the per-message ratchet step run identically by both sides.
func deriveNextRK(rk []byte, counter uint64) []byte {
	var be [8]byte
	binary.BigEndian.PutUint64(be[:], counter)
	mac := hmac.New(sha256.New, rk)
	mac.Write([]byte("rotate"))
	mac.Write(be[:])
	return mac.Sum(nil)
}

// hkdfConfirmSubkey derives the confirmation sub-key: the server sends
// it inside the AUTH envelope and the client checks it before trusting
// the envelope's rk/counter.
func hkdfConfirmSubkey(kc []byte) ([]byte, error) {
	r := hkdf.New(sha256.New, kc, nil, hkdfInfo)
	sub := make([]byte, 32)
	if _, err := io.ReadFull(r, sub); err != nil {
		return nil, fmt.Errorf("control: %w: hkdf: %v", ErrCryptoFailure, err)
	}
	return sub, nil
}
