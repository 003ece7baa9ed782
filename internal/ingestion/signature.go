package ingestion

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
)

const signaturePrefix = "sha256="

// Verifier authenticates webhook bodies signed with a shared secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, errors.New("webhook secret must not be empty")
	}
	return &Verifier{secret: []byte(secret)}, nil
}

// Sign returns "sha256=" + hex(HMAC-SHA256(secret, raw)).
func (v *Verifier) Sign(raw []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(raw)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks signature against the exact bytes received. It also returns
// the expected value for diagnostics; callers must not echo it to clients.
// An empty signature is invalid.
func (v *Verifier) Verify(raw []byte, signature string) (bool, string) {
	expected := v.Sign(raw)
	if signature == "" {
		return false, expected
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1, expected
}
