package sealer

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the length of the master key in bytes.
const KeySize = 32

const (
	sealedPrefix = "v1:"

	encryptionInfo  = "check-deposit field encryption"
	fingerprintInfo = "check-deposit duplicate fingerprint"
)

var (
	ErrInvalidKey    = errors.New("encryption key must be 32 bytes, hex encoded")
	ErrNotSealed     = errors.New("value is not sealed")
	ErrTamperedValue = errors.New("sealed value failed authentication")
)

// Sealer encrypts sensitive check fields at rest and derives keyed fingerprints
// so equal values can be matched without storing them.
type Sealer struct {
	aead   cipher.AEAD
	macKey []byte
}

// ParseKey decodes a hex master key.
func ParseKey(encoded string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(encoded))
	if err != nil || len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	return key, nil
}

// New derives independent encryption and fingerprint keys from master.
func New(master []byte) (*Sealer, error) {
	if len(master) != KeySize {
		return nil, ErrInvalidKey
	}

	encKey, err := derive(master, encryptionInfo, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	macKey, err := derive(master, fingerprintInfo, 32)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.NewX(encKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return &Sealer{aead: aead, macKey: macKey}, nil
}

func derive(master []byte, info string, size int) ([]byte, error) {
	key := make([]byte, size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("failed to derive %s key: %w", info, err)
	}
	return key, nil
}

// Seal encrypts plaintext. The empty string stays empty.
func (s *Sealer) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	out := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.RawStdEncoding.EncodeToString(out), nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	if !strings.HasPrefix(sealed, sealedPrefix) {
		return "", ErrNotSealed
	}
	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(sealed, sealedPrefix))
	if err != nil || len(raw) < s.aead.NonceSize() {
		return "", ErrNotSealed
	}
	nonce, ciphertext := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrTamperedValue
	}
	return string(plaintext), nil
}

// SealPtr seals an optional field in place of its value.
func (s *Sealer) SealPtr(v *string) (*string, error) {
	if v == nil {
		return nil, nil
	}
	sealed, err := s.Seal(*v)
	if err != nil {
		return nil, err
	}
	return &sealed, nil
}

// OpenPtr reverses SealPtr.
func (s *Sealer) OpenPtr(v *string) (*string, error) {
	if v == nil {
		return nil, nil
	}
	plain, err := s.Open(*v)
	if err != nil {
		return nil, err
	}
	return &plain, nil
}

// Fingerprint returns a keyed BLAKE2b-256 digest of value, hex encoded.
// The same value always yields the same fingerprint under one master key.
func (s *Sealer) Fingerprint(value string) string {
	h, err := blake2b.New256(s.macKey)
	if err != nil {
		// macKey is always 32 bytes
		panic(err)
	}
	h.Write([]byte(value))
	return hex.EncodeToString(h.Sum(nil))
}
