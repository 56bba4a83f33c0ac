package secagg

import (
	"bytes"
	"testing"
)

func TestShamir_SplitReconstruct(t *testing.T) {
	secret := []byte("a thirty-two byte secret value!!")
	shares, err := ShamirSplit(secret, 5, 3)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(shares) != 5 {
		t.Fatalf("want 5 shares, got %d", len(shares))
	}
	got, err := ShamirReconstruct(shares[:3], 3)
	if err != nil {
		t.Fatalf("reconstruct: %v", err)
	}
	if !bytes.Equal(got, secret) {
		t.Fatalf("reconstruct mismatch")
	}
}

func TestShamir_AnySubsetOfThresholdSize(t *testing.T) {
	secret := []byte{0, 1, 2, 255, 128}
	shares, err := ShamirSplit(secret, 6, 4)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	subsets := [][]int{{0, 1, 2, 3}, {2, 3, 4, 5}, {0, 2, 4, 5}, {5, 3, 1, 0}}
	for _, idx := range subsets {
		sub := make([]ShamirShare, 0, len(idx))
		for _, i := range idx {
			sub = append(sub, shares[i])
		}
		got, err := ShamirReconstruct(sub, 4)
		if err != nil {
			t.Fatalf("subset %v: %v", idx, err)
		}
		if !bytes.Equal(got, secret) {
			t.Fatalf("subset %v: mismatch", idx)
		}
	}
}

func TestShamir_TooFewSharesFails(t *testing.T) {
	shares, err := ShamirSplit([]byte("secret"), 4, 3)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if _, err := ShamirReconstruct(shares[:2], 3); err == nil {
		t.Fatalf("want error with 2 of 3 shares")
	}
}

func TestShamir_EmptySharesIgnored(t *testing.T) {
	secret := []byte("secret")
	shares, err := ShamirSplit(secret, 4, 2)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	// Dead peers leave empty slots; reconstruction skips them.
	withGaps := []ShamirShare{{}, shares[1], {}, shares[3]}
	got, err := ShamirReconstruct(withGaps, 2)
	if err != nil {
		t.Fatalf("reconstruct: %v", err)
	}
	if !bytes.Equal(got, secret) {
		t.Fatalf("mismatch with gapped shares")
	}
}

func TestShamir_BadParameters(t *testing.T) {
	if _, err := ShamirSplit([]byte("x"), 4, 1); err == nil {
		t.Fatalf("threshold 1 accepted")
	}
	if _, err := ShamirSplit([]byte("x"), 2, 3); err == nil {
		t.Fatalf("threshold above n accepted")
	}
	if _, err := ShamirSplit(nil, 4, 2); err == nil {
		t.Fatalf("empty secret accepted")
	}
	if _, err := ShamirSplit([]byte("x"), 300, 2); err == nil {
		t.Fatalf("300 shares accepted")
	}
}

func TestShamir_DuplicateSharesRejected(t *testing.T) {
	shares, err := ShamirSplit([]byte("secret"), 3, 2)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if _, err := ShamirReconstruct([]ShamirShare{shares[0], shares[0]}, 2); err == nil {
		t.Fatalf("duplicate evaluation points accepted")
	}
}

func TestGF256_MulInv(t *testing.T) {
	for a := 1; a < 256; a++ {
		if got := gfMul(byte(a), gfInv(byte(a))); got != 1 {
			t.Fatalf("%d * inv(%d) = %d", a, a, got)
		}
	}
}
