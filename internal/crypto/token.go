package crypto

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strconv"
	"time"
)

const DefaultTokenMaxAge = 30

var ErrTokenInvalid = errors.New("invalid dynamic token")

// TokenAt derives the dynamic token for a given unix second.
func TokenAt(secret []byte, txID string, unix int64) string {
	buf := make([]byte, 0, 20+len(secret)+len(txID))
	buf = strconv.AppendInt(buf, unix, 10)
	buf = append(buf, secret...)
	buf = append(buf, txID...)
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:])
}

func GenerateToken(secret []byte, txID string) string {
	return TokenAt(secret, txID, time.Now().Unix())
}

// ValidateToken walks back from now one second at a time, maxAge inclusive.
// The mint time is never sent, so the scan is the only way to find it, and a
// captured token replays freely inside the window.
func ValidateToken(token string, secret []byte, txID string, now time.Time, maxAge int) error {
	if maxAge < 0 {
		maxAge = 0
	}
	base := now.Unix()
	for off := 0; off <= maxAge; off++ {
		want := TokenAt(secret, txID, base-int64(off))
		if subtle.ConstantTimeCompare([]byte(want), []byte(token)) == 1 {
			return nil
		}
	}
	return ErrTokenInvalid
}
