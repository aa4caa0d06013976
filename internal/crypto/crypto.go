package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// AEAD encrypts and decrypts short secrets (stored tokens, card details in the
// config file) with AES-GCM. Ciphertexts are base64 with the nonce prepended.
type AEAD struct{ aead cipher.AEAD }

const (
	keySize        = 32
	pbkdf2Iters    = 600_000
	derivationSalt = "courtsched.secrets.v1"
)

func New(key []byte) (*AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	a, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &AEAD{aead: a}, nil
}

// KeyFromString accepts either a base64 32-byte key (as produced by the keys
// command) or an arbitrary passphrase, which is stretched with PBKDF2.
func KeyFromString(s string) []byte {
	if b, err := base64.StdEncoding.DecodeString(s); err == nil && len(b) == keySize {
		return b
	}
	if b, err := base64.RawStdEncoding.DecodeString(s); err == nil && len(b) == keySize {
		return b
	}
	return pbkdf2.Key([]byte(s), []byte(derivationSalt), pbkdf2Iters, keySize, sha256.New)
}

func (a *AEAD) EncryptToString(plaintext string) (string, error) {
	nonce := make([]byte, a.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	ct := a.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return base64.RawStdEncoding.EncodeToString(append(nonce, ct...)), nil
}

func (a *AEAD) DecryptString(ciphertextB64 string) (string, error) {
	buf, err := base64.RawStdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return "", err
	}
	ns := a.aead.NonceSize()
	if len(buf) < ns {
		return "", fmt.Errorf("ciphertext too short")
	}
	pt, err := a.aead.Open(nil, buf[:ns], buf[ns:], nil)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}
