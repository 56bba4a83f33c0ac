package client

import (
	"bytes"
	"fmt"

	"github.com/AishPattabi/federated-compute/internal/secagg"
	"github.com/AishPattabi/federated-compute/internal/secagg/wire"
	"github.com/AishPattabi/federated-compute/pkg/metrics"
)

// R1ShareKeysState waits for the server's share-keys request carrying every
// client's advertised public keys. Handling it establishes the session id,
// the pairwise keys, and the threshold shares of this client's secrets.
type R1ShareKeysState struct {
	baseState
	nTotal       uint32
	minSurviving uint32
	specs        []secagg.InputVectorSpecification
	prngFactory  secagg.PrngFactory
	encPair      secagg.EcdhKeyPair
	noisePair    secagg.EcdhKeyPair
}

func newR1ShareKeysState(b baseState, nTotal, minSurviving uint32, specs []secagg.InputVectorSpecification, factory secagg.PrngFactory, encPair, noisePair secagg.EcdhKeyPair) *R1ShareKeysState {
	st := &R1ShareKeysState{
		baseState:    b,
		nTotal:       nTotal,
		minSurviving: minSurviving,
		specs:        specs,
		prngFactory:  factory,
		encPair:      encPair,
		noisePair:    noisePair,
	}
	st.enter(StateR1ShareKeys, "R0_ADVERTISE_KEYS", st.StateName(), "")
	return st
}

func (s *R1ShareKeysState) StateName() string { return "R1_SHARE_KEYS" }

func (s *R1ShareKeysState) HandleMessage(msg *wire.ServerToClientWrapperMessage) (State, error) {
	countMsg(msgKind(msg))
	switch {
	case msg != nil && msg.Abort != nil:
		return s.handleAbortMessage(msg.Abort, s.StateName())
	case msg != nil && msg.ShareKeysRequest != nil:
		return s.handleShareKeysRequest(msg.ShareKeysRequest)
	default:
		return s.abortWith(abortMsgUnexpected, s.StateName(), true)
	}
}

func (s *R1ShareKeysState) Abort(reason string) (State, error) {
	return s.abortExternally(reason, s.StateName())
}

func (s *R1ShareKeysState) handleShareKeysRequest(req *wire.ShareKeysRequest) (State, error) {
	pairs := req.PairsOfPublicKeys
	if uint32(len(pairs)) != s.nTotal {
		return s.abortWith(
			fmt.Sprintf("Received a share keys request with %d key pairs, expected %d.", len(pairs), s.nTotal),
			s.StateName(), true)
	}

	clientID, ok := s.findOwnIndex(pairs)
	if !ok {
		return s.abortWith("The server did not include this client's public keys in the share keys request.", s.StateName(), true)
	}

	sessionID := SessionIDFromPairs(pairs)

	peerStates := make([]OtherClientState, s.nTotal)
	encKeys := make([]secagg.AesKey, s.nTotal)
	prngKeys := make([]secagg.AesKey, s.nTotal)
	nAlive := s.nTotal
	for i := range pairs {
		if next, fired := s.checkAsyncAbort(s.StateName()); fired {
			secagg.ZeroKeys(encKeys)
			secagg.ZeroKeys(prngKeys)
			return next, nil
		}
		if uint32(i) == clientID {
			continue // own slot is a sentinel
		}
		if pairs[i].IsEmpty() {
			peerStates[i] = PeerDeadAtRound1
			nAlive--
			metrics.Inc("secagg_peer_deaths_total", map[string]string{"round": "1"})
			continue
		}
		encKey, err := s.encPair.EncryptionKey(pairs[i].EncPK)
		if err != nil {
			return s.abortWith(fmt.Sprintf("Client %d advertised an invalid public key.", i), s.StateName(), true)
		}
		prngKey, err := s.noisePair.PairwiseMaskSeed(pairs[i].NoisePK)
		if err != nil {
			encKey.Zero()
			return s.abortWith(fmt.Sprintf("Client %d advertised an invalid public key.", i), s.StateName(), true)
		}
		encKeys[i] = encKey
		prngKeys[i] = prngKey
	}

	if nAlive < s.minSurviving {
		secagg.ZeroKeys(encKeys)
		secagg.ZeroKeys(prngKeys)
		return s.abortWith(abortMsgNotEnoughClients, s.StateName(), true)
	}

	wipeAll := func(keys ...secagg.AesKey) {
		secagg.ZeroKeys(encKeys)
		secagg.ZeroKeys(prngKeys)
		secagg.ZeroKeys(keys)
	}

	selfPrngKey, err := secagg.NewRandomAesKey()
	if err != nil {
		wipeAll()
		return s.abortWith("Failed to generate the self mask seed.", s.StateName(), true)
	}
	noiseShares, err := secagg.ShamirSplit(s.noisePair.SecretKeyBytes(), int(s.nTotal), int(s.minSurviving))
	if err != nil {
		wipeAll(selfPrngKey)
		return s.abortWith("Failed to share the noise secret key.", s.StateName(), true)
	}
	prfShares, err := secagg.ShamirSplit(selfPrngKey, int(s.nTotal), int(s.minSurviving))
	if err != nil {
		wipeAll(selfPrngKey)
		return s.abortWith("Failed to share the self mask seed.", s.StateName(), true)
	}

	envelopes := make([][]byte, s.nTotal)
	for i := uint32(0); i < s.nTotal; i++ {
		if i == clientID || peerStates[i] != PeerAlive {
			envelopes[i] = nil
			continue
		}
		plaintext, err := wire.EncodePairOfKeyShares(wire.PairOfKeyShares{
			NoiseSKShare: noiseShares[i].Data,
			PrfSKShare:   prfShares[i].Data,
		})
		if err != nil {
			wipeAll(selfPrngKey)
			secagg.ZeroShares(noiseShares)
			secagg.ZeroShares(prfShares)
			return s.abortWith("Failed to encode a key share pair.", s.StateName(), true)
		}
		ciphertext, err := secagg.Encrypt(encKeys[i], plaintext)
		wipe(plaintext)
		if err != nil {
			wipeAll(selfPrngKey)
			secagg.ZeroShares(noiseShares)
			secagg.ZeroShares(prfShares)
			return s.abortWith(fmt.Sprintf("Failed to encrypt the key shares for client %d.", i), s.StateName(), true)
		}
		envelopes[i] = ciphertext
	}

	s.send(&wire.ClientToServerWrapperMessage{
		ShareKeysResponse: &wire.ShareKeysResponse{EncryptedKeyShares: envelopes},
	})

	ownSelfShare := prfShares[clientID]
	// Shares were delivered inside the envelopes; only the own self share
	// survives locally.
	for i := range noiseShares {
		noiseShares[i].Zero()
		if uint32(i) != clientID {
			prfShares[i].Zero()
		}
	}

	return newR2WaitingForInputState(r2Carryover{
		base:         s.collab(),
		clientID:     clientID,
		minSurviving: s.minSurviving,
		nAlive:       nAlive,
		nTotal:       s.nTotal,
		specs:        s.specs,
		peerStates:   peerStates,
		peerEncKeys:  encKeys,
		peerPrngKeys: prngKeys,
		ownSelfShare: ownSelfShare,
		selfPrngKey:  selfPrngKey,
		sessionID:    sessionID,
		prngFactory:  s.prngFactory,
	}, s.StateName()), nil
}

func (s *R1ShareKeysState) findOwnIndex(pairs []wire.PairOfPublicKeys) (uint32, bool) {
	encPK := s.encPair.PublicKeyBytes()
	noisePK := s.noisePair.PublicKeyBytes()
	for i := range pairs {
		if bytes.Equal(pairs[i].EncPK, encPK) && bytes.Equal(pairs[i].NoisePK, noisePK) {
			return uint32(i), true
		}
	}
	return 0, false
}

// SessionIDFromPairs derives the session id every participant agrees on from
// the advertised key pairs, in client order.
func SessionIDFromPairs(pairs []wire.PairOfPublicKeys) secagg.SessionID {
	keys := make([][]byte, 0, 2*len(pairs))
	for i := range pairs {
		keys = append(keys, pairs[i].EncPK, pairs[i].NoisePK)
	}
	return secagg.ComputeSessionID(keys...)
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
