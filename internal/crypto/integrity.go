package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

var ErrIntegrity = errors.New("integrity verification failed")

// Sign returns the lower-case hex HMAC-SHA256 of data.
func Sign(data, key []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the tag and compares in constant time. A tag that is not
// hex fails the same way as a mismatch.
func Verify(data []byte, tagHex string, key []byte) error {
	tag, err := hex.DecodeString(tagHex)
	if err != nil || len(tag) != sha256.Size {
		return ErrIntegrity
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	if !hmac.Equal(mac.Sum(nil), tag) {
		return ErrIntegrity
	}
	return nil
}
