package secagg

import (
	"crypto/sha256"
	"encoding/binary"
)

// SessionIDSize is the byte length of a session identifier.
const SessionIDSize = 32

// SessionID uniquely names one protocol run and domain-separates every mask
// stream derived within it.
type SessionID [SessionIDSize]byte

// ComputeSessionID derives the session id as the SHA-256 digest of the
// advertised public keys, in client order. Every client hashes the same
// share-keys request, so all participants agree on the id without an extra
// round trip.
func ComputeSessionID(publicKeys ...[]byte) SessionID {
	h := sha256.New()
	var n [4]byte
	for _, pk := range publicKeys {
		binary.LittleEndian.PutUint32(n[:], uint32(len(pk)))
		h.Write(n[:])
		h.Write(pk)
	}
	var sid SessionID
	copy(sid[:], h.Sum(nil))
	return sid
}
