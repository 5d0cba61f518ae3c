package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"

	"golang.org/x/crypto/scrypt"
)

const (
	saltSize = 32

	// Key derivation cost, the interactive parameters recommended by
	// https://godoc.org/golang.org/x/crypto/scrypt
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// EncryptOpts is the struct given to Encrypt method
type EncryptOpts struct {
	PlainText  string
	Passphrase string
}

func (o EncryptOpts) validate() error {
	if len(o.PlainText) <= 0 {
		return ErrNullPlainText
	}
	if len(o.Passphrase) <= 0 {
		return ErrNullPassphrase
	}
	return nil
}

// Encrypt seals the plaintext with AES-256-GCM under a key derived from the
// passphrase with scrypt. The returned string packs salt, nonce and
// ciphertext, base64 encoded.
func Encrypt(opts EncryptOpts) (string, error) {
	if err := opts.validate(); err != nil {
		return "", err
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	gcm, err := newAEAD([]byte(opts.Passphrase), salt)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	buf := make([]byte, 0, saltSize+len(nonce)+len(opts.PlainText)+gcm.Overhead())
	buf = append(buf, salt...)
	buf = append(buf, nonce...)
	buf = gcm.Seal(buf, nonce, []byte(opts.PlainText), nil)

	return base64.StdEncoding.EncodeToString(buf), nil
}

// DecryptOpts is the struct given to Decrypt method
type DecryptOpts struct {
	CipherText string
	Passphrase string
}

func (o DecryptOpts) validate() error {
	if len(o.CipherText) <= 0 {
		return ErrNullCipherText
	}
	if len(o.Passphrase) <= 0 {
		return ErrNullPassphrase
	}
	return nil
}

// Decrypt reverses Encrypt. It returns ErrInvalidCipherText when the input
// is malformed, truncated or sealed under a different passphrase.
func Decrypt(opts DecryptOpts) (string, error) {
	if err := opts.validate(); err != nil {
		return "", err
	}

	data, err := base64.StdEncoding.DecodeString(opts.CipherText)
	if err != nil {
		return "", ErrInvalidCipherText
	}
	if len(data) < saltSize {
		return "", ErrInvalidCipherText
	}
	salt, data := data[:saltSize], data[saltSize:]

	gcm, err := newAEAD([]byte(opts.Passphrase), salt)
	if err != nil {
		return "", err
	}
	if len(data) < gcm.NonceSize() {
		return "", ErrInvalidCipherText
	}
	nonce, text := data[:gcm.NonceSize()], data[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, text, nil)
	if err != nil {
		return "", ErrInvalidCipherText
	}
	return string(plaintext), nil
}

func newAEAD(passphrase, salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key(passphrase, salt, scryptN, scryptR, scryptP, 32)
	if err != nil {
		return nil, err
	}
	blockCipher, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(blockCipher)
}
