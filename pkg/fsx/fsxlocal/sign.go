package fsxlocal

import (
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strconv"

	"golang.org/x/crypto/blake2b"
)

// Signer computes keyed BLAKE2b-256 MACs over (method, path, expiry).
type Signer struct {
	key []byte
}

// NewSigner returns a signer for key. BLAKE2b accepts keys of 1 to 64 bytes.
func NewSigner(key []byte) (*Signer, error) {
	if len(key) == 0 || len(key) > blake2b.Size {
		return nil, errors.New("fsxlocal: signing key must be 1-64 bytes")
	}
	return &Signer{key: append([]byte(nil), key...)}, nil
}

// Sign returns the hex-encoded MAC.
func (s *Signer) Sign(method, path string, expires int64) string {
	// blake2b.New256 only fails on an oversized key, rejected in NewSigner.
	h, _ := blake2b.New256(s.key)
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(h.Sum(nil))
}

// Verify reports whether signature matches in constant time.
func (s *Signer) Verify(method, path string, expires int64, signature string) bool {
	want := s.Sign(method, path, expires)
	return subtle.ConstantTimeCompare([]byte(want), []byte(signature)) == 1
}
