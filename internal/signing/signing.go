// Package signing implements the HMAC helper behind signed download URLs.
// Signatures bind a file ID to an expiry so links cannot be reused for other
// files or after they lapse.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// Signer generates and validates HMAC-SHA256 signatures.
type Signer struct {
	secret []byte
}

// NewSigner creates a Signer from a shared secret.
func NewSigner(secret []byte) *Signer {
	return &Signer{secret: secret}
}

// Sign returns the hex signature for a file ID and expiry pair.
func (s *Signer) Sign(fileID string, expiresUnix int64) string {
	mac := hmac.New(sha256.New, s.secret)
	payload := fmt.Sprintf("%s:%d", fileID, expiresUnix)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Validate checks the signature and that the expiry has not passed. The
// comparison is constant time.
func (s *Signer) Validate(fileID, expires, signature string) bool {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return false
	}
	if time.Now().Unix() > exp {
		return false
	}
	expected := s.Sign(fileID, exp)
	return hmac.Equal([]byte(expected), []byte(signature))
}
