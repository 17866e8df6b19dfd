// internal/crypto/cipher.go
package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

// -----------------------------------------------------------------------------
// securetx crypto stack
//
// - AES-256-CBC + PKCS#7 for confidentiality
// - HMAC-SHA256 over the encoded envelope (encrypt-then-MAC)
// - SHA-256 time-bound dynamic token
// -----------------------------------------------------------------------------

const (
	KeySize = 32
	IVSize  = aes.BlockSize // 16
)

var (
	ErrKeySize    = fmt.Errorf("bad key size: need %d", KeySize)
	ErrIVSize     = fmt.Errorf("bad iv size: need %d", IVSize)
	ErrDecryption = errors.New("decryption failed")
)

// CheckKey reports a key that cannot drive AES-256. Config loading calls it once
// so a bad key aborts startup instead of failing every message.
func CheckKey(key []byte) error {
	if len(key) != KeySize {
		return ErrKeySize
	}
	return nil
}

func NewIV() ([]byte, error) {
	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}
	return iv, nil
}

// EncryptCBC is deterministic for a fixed key, iv and plaintext.
func EncryptCBC(plaintext, key, iv []byte) ([]byte, error) {
	block, err := newBlock(key, iv)
	if err != nil {
		return nil, err
	}
	padded := pad(plaintext)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out, nil
}

func DecryptCBC(ciphertext, key, iv []byte) ([]byte, error) {
	block, err := newBlock(key, iv)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, ErrDecryption
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)
	return unpad(out)
}

func newBlock(key, iv []byte) (cipher.Block, error) {
	if err := CheckKey(key); err != nil {
		return nil, err
	}
	if len(iv) != IVSize {
		return nil, ErrIVSize
	}
	return aes.NewCipher(key)
}

func pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	out := make([]byte, len(b), len(b)+n)
	copy(out, b)
	return append(out, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte) ([]byte, error) {
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, ErrDecryption
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, ErrDecryption
		}
	}
	return b[:len(b)-n], nil
}
