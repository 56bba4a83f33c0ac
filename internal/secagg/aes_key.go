// Package secagg holds the shared cryptographic and vector primitives of the
// secure aggregation client: AES-GCM envelope encryption, the AES-CTR mask
// PRNG, packed integer vectors, the mask engine, and threshold key shares.
package secagg

import (
	"crypto/rand"
	"crypto/subtle"
)

// KeySize is the byte length of every AES key used by the protocol.
const KeySize = 32

// AesKey is a 32-byte secret. The zero-length key is a sentinel used for
// slots that carry no key (a client's own entry in its peer tables, or a
// dead peer). Holders wipe keys with Zero once a key leaves scope.
type AesKey []byte

// NewAesKey copies b into a fresh key. b must be exactly KeySize bytes.
func NewAesKey(b []byte) (AesKey, error) {
	if len(b) != KeySize {
		return nil, errKeySize(len(b))
	}
	k := make(AesKey, KeySize)
	copy(k, b)
	return k, nil
}

// NewRandomAesKey draws a fresh key from the system CSPRNG.
func NewRandomAesKey() (AesKey, error) {
	k := make(AesKey, KeySize)
	if _, err := rand.Read(k); err != nil {
		return nil, err
	}
	return k, nil
}

// IsEmpty reports whether the key is the sentinel no-key value.
func (k AesKey) IsEmpty() bool { return len(k) == 0 }

// Equal compares keys in constant time.
func (k AesKey) Equal(other AesKey) bool {
	if len(k) != len(other) {
		return false
	}
	return subtle.ConstantTimeCompare(k, other) == 1
}

// Clone returns an independent copy of the key.
func (k AesKey) Clone() AesKey {
	if k.IsEmpty() {
		return nil
	}
	c := make(AesKey, len(k))
	copy(c, k)
	return c
}

// Zero wipes the key material in place.
func (k AesKey) Zero() {
	for i := range k {
		k[i] = 0
	}
}

// ZeroKeys wipes every key in the slice.
func ZeroKeys(keys []AesKey) {
	for _, k := range keys {
		k.Zero()
	}
}

func errKeySize(n int) error {
	return wrapInvalidf("aes key must be %d bytes, got %d", KeySize, n)
}
