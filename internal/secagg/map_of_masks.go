package secagg

import (
	"crypto/sha256"
	"encoding/binary"
	"time"

	"github.com/AishPattabi/federated-compute/pkg/metrics"
)

// vectorDomain derives the per-vector PRNG domain from the session id, the
// vector name, and the vector length, so no two vectors of a session and no
// two sessions ever share a mask stream.
func vectorDomain(sid SessionID, name string, length uint32) []byte {
	h := sha256.New()
	h.Write(sid[:])
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(name)))
	h.Write(n[:])
	h.Write([]byte(name))
	binary.LittleEndian.PutUint32(n[:], length)
	h.Write(n[:])
	return h.Sum(nil)[:domainSize]
}

// MapOfMasks computes one mask vector per spec: element j is the sum of the
// j-th stream values of every add seed minus those of every sub seed, each
// reduced into [0, modulus) as it is accumulated. With the modulus capped at
// 2^62 every partial sum stays below 2^63, so plain uint64 arithmetic is
// exact. Empty seed sets yield the zero vector.
//
// The abort signal, when non-nil, is polled between seeds and makes the
// computation return ErrCancelled.
func MapOfMasks(addSeeds, subSeeds []AesKey, specs []InputVectorSpecification, sid SessionID, factory PrngFactory, abort *AsyncAbort) (VectorMap, error) {
	begin := time.Now()
	masks := make(VectorMap, len(specs))
	for _, spec := range specs {
		domain := vectorDomain(sid, spec.Name(), spec.Length())
		acc := make([]uint64, spec.Length())
		if err := accumulate(acc, addSeeds, domain, spec.Modulus(), false, factory, abort); err != nil {
			return nil, err
		}
		if err := accumulate(acc, subSeeds, domain, spec.Modulus(), true, factory, abort); err != nil {
			return nil, err
		}
		vec, err := NewSecAggVector(acc, spec.Modulus())
		if err != nil {
			return nil, wrapInternalf("mask for %q out of range: %v", spec.Name(), err)
		}
		masks[spec.Name()] = vec
	}
	metrics.ObserveSummary("secagg_mask_ms", nil, float64(time.Since(begin).Milliseconds()))
	return masks, nil
}

func accumulate(acc []uint64, seeds []AesKey, domain []byte, modulus uint64, subtract bool, factory PrngFactory, abort *AsyncAbort) error {
	for _, seed := range seeds {
		if abort.Signaled() {
			return ErrCancelled
		}
		prng, err := factory.MakePrng(seed, domain)
		if err != nil {
			return err
		}
		for j := range acc {
			v := prng.Rand64() % modulus
			if subtract {
				acc[j] = (acc[j] + modulus - v) % modulus
			} else {
				acc[j] = (acc[j] + v) % modulus
			}
		}
	}
	return nil
}
