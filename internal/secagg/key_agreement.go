package secagg

import (
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// KDF info strings separating the two keys derived from one ECDH agreement.
const (
	kdfInfoEncryption = "secagg pairwise encryption key"
	kdfInfoPairwise   = "secagg pairwise mask seed"
)

// EcdhKeyPair is a P-256 key pair advertised in round 0 and consumed by the
// pairwise key agreements of round 1.
type EcdhKeyPair struct {
	priv *ecdh.PrivateKey
}

// GenerateEcdhKeyPair draws a fresh P-256 key pair.
func GenerateEcdhKeyPair() (EcdhKeyPair, error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return EcdhKeyPair{}, err
	}
	return EcdhKeyPair{priv: priv}, nil
}

// PublicKeyBytes returns the uncompressed public point for the wire.
func (kp EcdhKeyPair) PublicKeyBytes() []byte {
	if kp.priv == nil {
		return nil
	}
	return kp.priv.PublicKey().Bytes()
}

// SecretKeyBytes exposes the private scalar so it can be threshold-shared.
func (kp EcdhKeyPair) SecretKeyBytes() []byte {
	if kp.priv == nil {
		return nil
	}
	return kp.priv.Bytes()
}

// EncryptionKey agrees on the AES key that seals key-share envelopes between
// this client and the peer advertising peerPublic.
func (kp EcdhKeyPair) EncryptionKey(peerPublic []byte) (AesKey, error) {
	return kp.derive(peerPublic, kdfInfoEncryption)
}

// PairwiseMaskSeed agrees on the AES seed of the canceling pairwise mask
// stream shared with the peer advertising peerPublic.
func (kp EcdhKeyPair) PairwiseMaskSeed(peerPublic []byte) (AesKey, error) {
	return kp.derive(peerPublic, kdfInfoPairwise)
}

func (kp EcdhKeyPair) derive(peerPublic []byte, info string) (AesKey, error) {
	if kp.priv == nil {
		return nil, wrapInternalf("key pair not initialized")
	}
	pub, err := ecdh.P256().NewPublicKey(peerPublic)
	if err != nil {
		return nil, wrapInvalidf("bad peer public key: %v", err)
	}
	shared, err := kp.priv.ECDH(pub)
	if err != nil {
		return nil, wrapInvalidf("ecdh agreement failed: %v", err)
	}
	key := make(AesKey, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, shared, nil, []byte(info)), key); err != nil {
		return nil, err
	}
	for i := range shared {
		shared[i] = 0
	}
	return key, nil
}
