package crypto

import (
	"errors"
	"strings"
	"testing"
)

func TestSignVerify(t *testing.T) {
	key := []byte("shared-secret")
	data := []byte("aXY=:Y2lwaGVy")
	tag := Sign(data, key)
	if len(tag) != 64 || strings.ToLower(tag) != tag {
		t.Fatalf("expected 64 lower-case hex chars, got %q", tag)
	}
	if err := Verify(data, tag, key); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if err := Verify(data, tag, []byte("other-secret")); !errors.Is(err, ErrIntegrity) {
		t.Fatalf("expected integrity error for wrong key, got %v", err)
	}
	if err := Verify([]byte("aXY=:Y2lwaGVz"), tag, key); !errors.Is(err, ErrIntegrity) {
		t.Fatalf("expected integrity error for changed data, got %v", err)
	}
}

func TestVerifyRejectsNonHexTag(t *testing.T) {
	for _, tag := range []string{"", "zz", strings.Repeat("0", 63), strings.Repeat("g", 64)} {
		if err := Verify([]byte("x"), tag, []byte("k")); !errors.Is(err, ErrIntegrity) {
			t.Fatalf("tag %q: expected integrity error, got %v", tag, err)
		}
	}
}
