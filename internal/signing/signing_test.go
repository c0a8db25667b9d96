package signing

import (
	"strconv"
	"testing"
	"time"
)

func TestSigner(t *testing.T) {
	s := NewSigner([]byte("topsecret"))
	exp := time.Now().Add(time.Hour).Unix()
	expStr := strconv.FormatInt(exp, 10)

	sig := s.Sign("file123", exp)
	if len(sig) == 0 {
		t.Fatalf("expected signature")
	}
	if !s.Validate("file123", expStr, sig) {
		t.Fatalf("expected signature to validate")
	}
	if s.Validate("wrong", expStr, sig) {
		t.Fatalf("expected validation to fail for wrong file id")
	}
	if s.Validate("file123", "42", sig) {
		t.Fatalf("expected validation to fail for wrong expiry")
	}
	if s.Validate("file123", "notanumber", sig) {
		t.Fatalf("expected validation to fail for malformed expiry")
	}
}

func TestSignerRejectsExpired(t *testing.T) {
	s := NewSigner([]byte("topsecret"))
	exp := time.Now().Add(-time.Minute).Unix()
	sig := s.Sign("file123", exp)
	if s.Validate("file123", strconv.FormatInt(exp, 10), sig) {
		t.Fatalf("expected expired signature to fail validation")
	}
}
