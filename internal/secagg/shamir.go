package secagg

import (
	"crypto/rand"
)

// ShamirShare is one share of a secret under a (t, n) threshold scheme. The
// protocol rounds only carry and compare shares; reconstruction happens at
// unmasking. Wire form: a one-byte evaluation point followed by one GF(256)
// evaluation per secret byte.
type ShamirShare struct {
	Data []byte
}

// IsEmpty reports whether the share carries no data (a dead peer's slot).
func (s ShamirShare) IsEmpty() bool { return len(s.Data) == 0 }

// Zero wipes the share in place.
func (s ShamirShare) Zero() {
	for i := range s.Data {
		s.Data[i] = 0
	}
}

// ZeroShares wipes every share in the slice.
func ZeroShares(shares []ShamirShare) {
	for _, s := range shares {
		s.Zero()
	}
}

// ShamirSplit shares secret into n shares such that any threshold of them
// reconstruct it and threshold-1 reveal nothing. Each byte of the secret is
// shared independently over GF(256); share i evaluates the polynomials at
// x = i+1.
func ShamirSplit(secret []byte, n, threshold int) ([]ShamirShare, error) {
	if threshold < 2 || threshold > n {
		return nil, wrapInvalidf("threshold %d outside [2, %d]", threshold, n)
	}
	if n > 255 {
		return nil, wrapInvalidf("cannot split into %d shares, max 255", n)
	}
	if len(secret) == 0 {
		return nil, wrapInvalidf("cannot split an empty secret")
	}
	shares := make([]ShamirShare, n)
	for i := range shares {
		shares[i].Data = make([]byte, 1+len(secret))
		shares[i].Data[0] = byte(i + 1)
	}
	coeffs := make([]byte, threshold)
	for bi, sb := range secret {
		coeffs[0] = sb
		if _, err := rand.Read(coeffs[1:]); err != nil {
			return nil, err
		}
		for i := range shares {
			shares[i].Data[1+bi] = gfEval(coeffs, byte(i+1))
		}
	}
	for i := range coeffs {
		coeffs[i] = 0
	}
	return shares, nil
}

// ShamirReconstruct recombines at least threshold non-empty shares of equal
// length via Lagrange interpolation at x = 0.
func ShamirReconstruct(shares []ShamirShare, threshold int) ([]byte, error) {
	var use []ShamirShare
	for _, s := range shares {
		if !s.IsEmpty() {
			use = append(use, s)
		}
	}
	if len(use) < threshold {
		return nil, wrapInvalidf("have %d shares, need %d", len(use), threshold)
	}
	use = use[:threshold]
	secretLen := len(use[0].Data) - 1
	if secretLen < 1 {
		return nil, wrapInvalidf("share too short")
	}
	for _, s := range use {
		if len(s.Data) != secretLen+1 {
			return nil, wrapInvalidf("shares have mismatched lengths")
		}
	}
	seen := make(map[byte]bool, len(use))
	for _, s := range use {
		x := s.Data[0]
		if x == 0 || seen[x] {
			return nil, wrapInvalidf("duplicate or zero evaluation point %d", x)
		}
		seen[x] = true
	}
	secret := make([]byte, secretLen)
	for bi := range secret {
		var acc byte
		for i, si := range use {
			// Lagrange basis at x=0: prod over j != i of x_j / (x_j - x_i).
			num, den := byte(1), byte(1)
			for j, sj := range use {
				if i == j {
					continue
				}
				num = gfMul(num, sj.Data[0])
				den = gfMul(den, sj.Data[0]^si.Data[0])
			}
			acc ^= gfMul(si.Data[1+bi], gfMul(num, gfInv(den)))
		}
		secret[bi] = acc
	}
	return secret, nil
}

// gfEval evaluates the polynomial with the given coefficients (constant term
// first) at x via Horner's rule.
func gfEval(coeffs []byte, x byte) byte {
	var y byte
	for i := len(coeffs) - 1; i >= 0; i-- {
		y = gfMul(y, x) ^ coeffs[i]
	}
	return y
}

// gfMul multiplies in GF(2^8) with the AES reduction polynomial x^8+x^4+x^3+x+1.
func gfMul(a, b byte) byte {
	var p byte
	for b != 0 {
		if b&1 != 0 {
			p ^= a
		}
		hi := a & 0x80
		a <<= 1
		if hi != 0 {
			a ^= 0x1b
		}
		b >>= 1
	}
	return p
}

// gfInv inverts via Fermat: a^254 = a^-1 in GF(2^8).
func gfInv(a byte) byte {
	var r byte = 1
	for i := 0; i < 254; i++ {
		r = gfMul(r, a)
	}
	return r
}
