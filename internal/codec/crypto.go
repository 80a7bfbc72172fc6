// Package codec recovers structured chat messages from the platform's
// obfuscated wire format: AES-CBC payload ciphers, a binary attachment
// envelope, and a heuristic field scraper for schema-less payloads.
package codec

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Errors returned by the crypto layer. Corrupt input fails closed with
// ErrUndecodable and never propagates a panic into the pipeline.
var (
	ErrUndecodable = errors.New("payload undecodable")
	ErrBadKeySize  = errors.New("key profile has invalid key size")
)

// KeyProfile names a symmetric cipher configuration used by the platform.
// The message profile derives its key by hashing a passphrase; the nickname
// profile uses fixed key material.
type KeyProfile struct {
	Name string
	key  []byte
	iv   []byte
}

// NewPassphraseProfile builds a profile whose AES-256 key is the SHA-256
// digest of the passphrase. The platform pairs it with an all-zero IV.
func NewPassphraseProfile(name, passphrase string) KeyProfile {
	sum := sha256.Sum256([]byte(passphrase))
	return KeyProfile{Name: name, key: sum[:], iv: make([]byte, aes.BlockSize)}
}

// NewFixedProfile builds a profile from fixed key and IV material.
func NewFixedProfile(name, key, iv string) (KeyProfile, error) {
	if len(key) != 32 {
		return KeyProfile{}, fmt.Errorf("%w: %d bytes", ErrBadKeySize, len(key))
	}
	if len(iv) != aes.BlockSize {
		return KeyProfile{}, fmt.Errorf("%w: iv %d bytes", ErrBadKeySize, len(iv))
	}
	return KeyProfile{Name: name, key: []byte(key), iv: []byte(iv)}, nil
}

// Decrypt reverses the platform cipher: base64 decode, AES-CBC decrypt,
// strip PKCS7 padding. Any malformed input yields ErrUndecodable.
func Decrypt(ciphertextBase64 string, profile KeyProfile) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(ciphertextBase64))
	if err != nil {
		return "", fmt.Errorf("%w: bad base64: %v", ErrUndecodable, err)
	}
	plain, err := decryptCBC(raw, profile.key, profile.iv)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(plain) {
		return "", fmt.Errorf("%w: plaintext is not UTF-8", ErrUndecodable)
	}
	return string(plain), nil
}

// Encrypt applies the platform cipher: PKCS7 pad, AES-CBC encrypt, base64.
// The bot uses it for outbound custom payloads and round-trip tests.
func Encrypt(plaintext string, profile KeyProfile) (string, error) {
	block, err := aes.NewCipher(profile.key)
	if err != nil {
		return "", err
	}
	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, profile.iv).CryptBlocks(out, padded)
	return base64.StdEncoding.EncodeToString(out), nil
}

func decryptCBC(raw, key, iv []byte) ([]byte, error) {
	if len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d", ErrUndecodable, len(raw))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(raw))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, raw)
	return pkcs7Unpad(out, aes.BlockSize)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("%w: bad padded length", ErrUndecodable)
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, fmt.Errorf("%w: bad padding byte", ErrUndecodable)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("%w: inconsistent padding", ErrUndecodable)
		}
	}
	return data[:len(data)-n], nil
}

// Base64URLDecode decodes the platform's URL-safe, unpadded base64 variant.
func Base64URLDecode(s string) ([]byte, error) {
	s = strings.ReplaceAll(s, "-", "+")
	s = strings.ReplaceAll(s, "_", "/")
	if pad := len(s) % 4; pad != 0 {
		s += strings.Repeat("=", 4-pad)
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: bad base64url: %v", ErrUndecodable, err)
	}
	return raw, nil
}

// Base64URLEncode encodes bytes into the platform's URL-safe unpadded form.
func Base64URLEncode(data []byte) string {
	s := base64.StdEncoding.EncodeToString(data)
	s = strings.TrimRight(s, "=")
	s = strings.ReplaceAll(s, "+", "-")
	return strings.ReplaceAll(s, "/", "_")
}
