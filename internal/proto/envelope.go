package proto

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"securetx/internal/crypto"
)

const envelopeSep = ":"

var (
	ErrMalformedEnvelope = errors.New("invalid message format")
	ErrInvalidIV         = errors.New("invalid IV")
)

// Keys are the two shared secrets of a deployment. MAC is also the token secret.
type Keys struct {
	Cipher []byte
	MAC    []byte
}

// Envelope is a parsed wire line. IVB64 and CiphertextB64 are kept as received
// because the MAC covers their text form.
type Envelope struct {
	IV            []byte
	IVB64         string
	CiphertextB64 string
	MAC           string
}

func (e Envelope) signedPart() []byte {
	return []byte(e.IVB64 + envelopeSep + e.CiphertextB64)
}

func (e Envelope) String() string {
	return e.IVB64 + envelopeSep + e.CiphertextB64 + envelopeSep + e.MAC
}

// Seal serializes, encrypts under a fresh IV and signs tx.
func Seal(tx Transaction, keys Keys) (string, error) {
	iv, err := crypto.NewIV()
	if err != nil {
		return "", err
	}
	return SealWithIV(tx, keys, iv)
}

func SealWithIV(tx Transaction, keys Keys, iv []byte) (string, error) {
	payload, err := EncodePayload(tx)
	if err != nil {
		return "", err
	}
	ct, err := crypto.EncryptCBC([]byte(payload), keys.Cipher, iv)
	if err != nil {
		return "", err
	}
	env := Envelope{
		IV:            iv,
		IVB64:         base64.StdEncoding.EncodeToString(iv),
		CiphertextB64: base64.StdEncoding.EncodeToString(ct),
	}
	env.MAC = crypto.Sign(env.signedPart(), keys.MAC)
	return env.String(), nil
}

func ParseEnvelope(line string) (Envelope, error) {
	parts := strings.Split(line, envelopeSep)
	if len(parts) != 3 {
		return Envelope{}, fmt.Errorf("%w: %d segments", ErrMalformedEnvelope, len(parts))
	}
	for _, p := range parts {
		if p == "" {
			return Envelope{}, fmt.Errorf("%w: empty segment", ErrMalformedEnvelope)
		}
	}
	iv, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil || len(iv) != crypto.IVSize {
		return Envelope{}, ErrInvalidIV
	}
	return Envelope{IV: iv, IVB64: parts[0], CiphertextB64: parts[1], MAC: parts[2]}, nil
}

// Open checks the MAC before touching the cipher, so tampered bytes never
// reach the decrypter.
func Open(env Envelope, keys Keys) (Transaction, error) {
	if err := crypto.Verify(env.signedPart(), env.MAC, keys.MAC); err != nil {
		return Transaction{}, err
	}
	ct, err := base64.StdEncoding.DecodeString(env.CiphertextB64)
	if err != nil {
		return Transaction{}, crypto.ErrDecryption
	}
	plain, err := crypto.DecryptCBC(ct, keys.Cipher, env.IV)
	if err != nil {
		return Transaction{}, err
	}
	return DecodePayload(string(plain))
}

// OpenLine is ParseEnvelope followed by Open.
func OpenLine(line string, keys Keys) (Transaction, error) {
	env, err := ParseEnvelope(line)
	if err != nil {
		return Transaction{}, err
	}
	return Open(env, keys)
}
