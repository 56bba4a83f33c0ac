package secagg

import (
	"testing"
)

func TestKeyAgreement_BothSidesAgree(t *testing.T) {
	alice, err := GenerateEcdhKeyPair()
	if err != nil {
		t.Fatalf("alice: %v", err)
	}
	bob, err := GenerateEcdhKeyPair()
	if err != nil {
		t.Fatalf("bob: %v", err)
	}

	ab, err := alice.EncryptionKey(bob.PublicKeyBytes())
	if err != nil {
		t.Fatalf("alice enc: %v", err)
	}
	ba, err := bob.EncryptionKey(alice.PublicKeyBytes())
	if err != nil {
		t.Fatalf("bob enc: %v", err)
	}
	if !ab.Equal(ba) {
		t.Fatalf("encryption keys disagree")
	}

	abSeed, err := alice.PairwiseMaskSeed(bob.PublicKeyBytes())
	if err != nil {
		t.Fatalf("alice seed: %v", err)
	}
	baSeed, err := bob.PairwiseMaskSeed(alice.PublicKeyBytes())
	if err != nil {
		t.Fatalf("bob seed: %v", err)
	}
	if !abSeed.Equal(baSeed) {
		t.Fatalf("mask seeds disagree")
	}

	if ab.Equal(abSeed) {
		t.Fatalf("encryption key and mask seed must be independent")
	}
}

func TestKeyAgreement_DistinctPeersDistinctKeys(t *testing.T) {
	alice, _ := GenerateEcdhKeyPair()
	bob, _ := GenerateEcdhKeyPair()
	carol, _ := GenerateEcdhKeyPair()
	kb, err := alice.EncryptionKey(bob.PublicKeyBytes())
	if err != nil {
		t.Fatalf("alice-bob: %v", err)
	}
	kc, err := alice.EncryptionKey(carol.PublicKeyBytes())
	if err != nil {
		t.Fatalf("alice-carol: %v", err)
	}
	if kb.Equal(kc) {
		t.Fatalf("keys for different peers coincide")
	}
}

func TestKeyAgreement_RejectsGarbagePublicKey(t *testing.T) {
	alice, _ := GenerateEcdhKeyPair()
	if _, err := alice.EncryptionKey([]byte("not a point")); err == nil {
		t.Fatalf("garbage public key accepted")
	}
}
