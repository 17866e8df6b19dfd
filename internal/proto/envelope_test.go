package proto

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"securetx/internal/crypto"
)

func testKeys() Keys {
	return Keys{
		Cipher: bytes.Repeat([]byte{0x11}, crypto.KeySize),
		MAC:    []byte("test-shared-secret"),
	}
}

func sampleTx() Transaction {
	return Transaction{
		ID:           "4f1c2b9e-0000-4000-8000-000000000001",
		Timestamp:    "2025-03-01T10:00:00.000Z",
		Type:         TypeTransfer,
		Amount:       decimal.RequireFromString("100.50"),
		AccountFrom:  "1111",
		AccountTo:    "2222",
		DynamicToken: strings.Repeat("ab", 32),
	}
}

func TestSealOpenRoundTrip(t *testing.T) {
	keys := testKeys()
	tx := sampleTx()
	want, err := EncodePayload(tx)
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}
	line, err := Seal(tx, keys)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if strings.Count(line, ":") != 2 || strings.ContainsAny(line, "\r\n") {
		t.Fatalf("unexpected wire line %q", line)
	}
	got, err := OpenLine(line, keys)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	again, err := EncodePayload(got)
	if err != nil {
		t.Fatalf("re-encode: %v", err)
	}
	if again != want {
		t.Fatalf("payload mismatch:\n got %q\nwant %q", again, want)
	}
}

func TestSealWithIVDeterministic(t *testing.T) {
	iv := bytes.Repeat([]byte{0x22}, crypto.IVSize)
	a, err := SealWithIV(sampleTx(), testKeys(), iv)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	b, err := SealWithIV(sampleTx(), testKeys(), iv)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if a != b {
		t.Fatalf("expected identical envelopes for a fixed iv")
	}
}

func TestSingleBitFlipFailsIntegrityFirst(t *testing.T) {
	keys := testKeys()
	line, err := Seal(sampleTx(), keys)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	env, err := ParseEnvelope(line)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	ct, err := base64.StdEncoding.DecodeString(env.CiphertextB64)
	if err != nil {
		t.Fatalf("decode ct: %v", err)
	}
	// A nil cipher key makes any decrypt attempt fail with ErrKeySize, so an
	// ErrIntegrity result proves the cipher was never reached.
	noCipher := Keys{MAC: keys.MAC}

	flip := func(b []byte, bit int) []byte {
		out := append([]byte(nil), b...)
		out[bit/8] ^= 1 << (bit % 8)
		return out
	}
	for bit := 0; bit < len(env.IV)*8; bit++ {
		iv := flip(env.IV, bit)
		tampered := Envelope{IV: iv, IVB64: base64.StdEncoding.EncodeToString(iv), CiphertextB64: env.CiphertextB64, MAC: env.MAC}
		if _, err := Open(tampered, noCipher); !errors.Is(err, crypto.ErrIntegrity) {
			t.Fatalf("iv bit %d: expected integrity failure, got %v", bit, err)
		}
	}
	for bit := 0; bit < len(ct)*8; bit++ {
		tampered := env
		tampered.CiphertextB64 = base64.StdEncoding.EncodeToString(flip(ct, bit))
		if _, err := Open(tampered, noCipher); !errors.Is(err, crypto.ErrIntegrity) {
			t.Fatalf("ciphertext bit %d: expected integrity failure, got %v", bit, err)
		}
	}
}

func TestParseEnvelopeErrors(t *testing.T) {
	iv16 := base64.StdEncoding.EncodeToString(make([]byte, 16))
	iv8 := base64.StdEncoding.EncodeToString(make([]byte, 8))
	cases := []struct {
		name string
		line string
		want error
	}{
		{"empty", "", ErrMalformedEnvelope},
		{"one segment", "abc", ErrMalformedEnvelope},
		{"two segments", iv16 + ":abc", ErrMalformedEnvelope},
		{"four segments", iv16 + ":abc:def:ghi", ErrMalformedEnvelope},
		{"empty mac", iv16 + ":abc:", ErrMalformedEnvelope},
		{"short iv", iv8 + ":abc:def", ErrInvalidIV},
		{"bad base64 iv", "!!!!:abc:def", ErrInvalidIV},
	}
	for _, tc := range cases {
		if _, err := ParseEnvelope(tc.line); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestOpenWrongMACKey(t *testing.T) {
	line, err := Seal(sampleTx(), testKeys())
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	other := testKeys()
	other.MAC = []byte("another-secret")
	if _, err := OpenLine(line, other); !errors.Is(err, crypto.ErrIntegrity) {
		t.Fatalf("expected integrity failure, got %v", err)
	}
}

func TestOpenSignedGarbagePayload(t *testing.T) {
	keys := testKeys()
	iv := bytes.Repeat([]byte{0x33}, crypto.IVSize)
	ct, err := crypto.EncryptCBC([]byte("only|three|fields"), keys.Cipher, iv)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	env := Envelope{IV: iv, IVB64: base64.StdEncoding.EncodeToString(iv), CiphertextB64: base64.StdEncoding.EncodeToString(ct)}
	env.MAC = crypto.Sign(env.signedPart(), keys.MAC)
	if _, err := OpenLine(env.String(), keys); !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected malformed payload, got %v", err)
	}

	env.CiphertextB64 = "not base64!"
	env.MAC = crypto.Sign(env.signedPart(), keys.MAC)
	if _, err := Open(env, keys); !errors.Is(err, crypto.ErrDecryption) {
		t.Fatalf("expected decryption failure, got %v", err)
	}
}
