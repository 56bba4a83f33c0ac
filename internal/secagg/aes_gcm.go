package secagg

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
)

// gcmNonceSize is the standard 12-byte GCM nonce, prepended to every
// ciphertext.
const gcmNonceSize = 12

func newAESGCM(key AesKey) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, errKeySize(len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt seals plaintext under key with AES-256-GCM. The random nonce is
// prepended to the returned ciphertext.
func Encrypt(key AesKey, plaintext []byte) ([]byte, error) {
	aead, err := newAESGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcmNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens ciphertext produced by Encrypt. The second return value is
// false on any authentication failure, including truncated input. A false
// result is a per-peer data event, not a protocol error: callers mark the
// peer dead and continue.
func Decrypt(key AesKey, ciphertext []byte) ([]byte, bool) {
	aead, err := newAESGCM(key)
	if err != nil {
		return nil, false
	}
	if len(ciphertext) < gcmNonceSize {
		return nil, false
	}
	plaintext, err := aead.Open(nil, ciphertext[:gcmNonceSize], ciphertext[gcmNonceSize:], nil)
	if err != nil {
		return nil, false
	}
	return plaintext, true
}
