package client

import (
	"errors"
	"fmt"

	"github.com/AishPattabi/federated-compute/internal/secagg"
	"github.com/AishPattabi/federated-compute/internal/secagg/wire"
	"github.com/AishPattabi/federated-compute/pkg/metrics"
)

// R2InputSetState is round 2 with the input set: the state that decrypts the
// peers' key-share envelopes, computes the masked input, and hands the
// session to unmasking.
type R2InputSetState struct {
	baseState
	carry r2Carryover
	input secagg.VectorMap
}

// R2Params assembles an R2InputSetState directly, bypassing rounds 0 and 1.
// Production code arrives here through the state machine; tests and replay
// tooling construct the state from recorded material.
type R2Params struct {
	ClientID             uint32
	MinSurvivingClients  uint32
	NumberOfAliveClients uint32
	NumberOfClients      uint32
	Input                secagg.VectorMap
	Specs                []secagg.InputVectorSpecification
	PeerStates           []OtherClientState
	PeerEncKeys          []secagg.AesKey
	PeerPrngKeys         []secagg.AesKey
	OwnSelfShare         secagg.ShamirShare
	SelfPrngKey          secagg.AesKey
	SessionID            secagg.SessionID
	PrngFactory          secagg.PrngFactory
	Sender               SendToServer
	Listener             StateTransitionListener
	AsyncAbort           *secagg.AsyncAbort
	// TolerateTruncatedRequest pads a short encrypted-share list with empty
	// envelopes instead of aborting. The strict default matches the
	// reference behavior.
	TolerateTruncatedRequest bool
}

// NewR2MaskedInputCollInputSetState builds the round 2 input-set state from
// explicit parameters.
func NewR2MaskedInputCollInputSetState(p R2Params) *R2InputSetState {
	base := baseState{
		sender:   p.Sender,
		listener: p.Listener,
		abortSig: p.AsyncAbort,
		cfg:      Config{TolerateTruncatedRequest: p.TolerateTruncatedRequest},
	}
	carry := r2Carryover{
		base:         base,
		clientID:     p.ClientID,
		minSurviving: p.MinSurvivingClients,
		nAlive:       p.NumberOfAliveClients,
		nTotal:       p.NumberOfClients,
		specs:        p.Specs,
		peerStates:   p.PeerStates,
		peerEncKeys:  p.PeerEncKeys,
		peerPrngKeys: p.PeerPrngKeys,
		ownSelfShare: p.OwnSelfShare,
		selfPrngKey:  p.SelfPrngKey,
		sessionID:    p.SessionID,
		prngFactory:  p.PrngFactory,
	}
	return newR2InputSetState(carry, p.Input, StateInitial.String())
}

func newR2InputSetState(carry r2Carryover, input secagg.VectorMap, from string) *R2InputSetState {
	st := &R2InputSetState{baseState: carry.base, carry: carry, input: input}
	st.enter(StateR2MaskedInput, from, st.StateName(), "")
	return st
}

func (s *R2InputSetState) StateName() string { return "R2_MASKED_INPUT_COLL_INPUT_SET" }

func (s *R2InputSetState) HandleMessage(msg *wire.ServerToClientWrapperMessage) (State, error) {
	countMsg(msgKind(msg))
	switch {
	case msg != nil && msg.Abort != nil:
		s.carry.wipe()
		return s.handleAbortMessage(msg.Abort, s.StateName())
	case msg != nil && msg.MaskedInputRequest != nil:
		return s.handleMaskedInputRequest(msg.MaskedInputRequest)
	default:
		s.carry.wipe()
		return s.abortWith(abortMsgUnexpected, s.StateName(), true)
	}
}

func (s *R2InputSetState) Abort(reason string) (State, error) {
	s.carry.wipe()
	return s.abortExternally(reason, s.StateName())
}

func (s *R2InputSetState) handleMaskedInputRequest(req *wire.MaskedInputRequest) (State, error) {
	envelopes := req.EncryptedKeyShares
	if uint32(len(envelopes)) != s.carry.nTotal {
		if !s.cfg.TolerateTruncatedRequest || uint32(len(envelopes)) > s.carry.nTotal {
			s.carry.wipe()
			return s.abortWith(
				fmt.Sprintf("Received %d encrypted key shares, expected %d.", len(envelopes), s.carry.nTotal),
				s.StateName(), true)
		}
		padded := make([][]byte, s.carry.nTotal)
		copy(padded, envelopes)
		envelopes = padded
	}

	// Collected share tables, indexed by peer id, carried into unmasking.
	noiseShares := make([]secagg.ShamirShare, s.carry.nTotal)
	prfShares := make([]secagg.ShamirShare, s.carry.nTotal)

	for i := uint32(0); i < s.carry.nTotal; i++ {
		if next, fired := s.checkAsyncAbort(s.StateName()); fired {
			s.carry.wipe()
			return next, nil
		}
		if i == s.carry.clientID {
			continue // own slot is required present but ignored
		}
		if s.carry.peerStates[i] != PeerAlive {
			continue
		}
		if len(envelopes[i]) == 0 {
			s.markDeadAtRound2(i)
			continue
		}
		plaintext, ok := secagg.Decrypt(s.carry.peerEncKeys[i], envelopes[i])
		if !ok {
			// A failed decrypt is a per-peer data event, not a protocol
			// error.
			s.markDeadAtRound2(i)
			continue
		}
		pair, err := wire.DecodePairOfKeyShares(plaintext)
		wipe(plaintext)
		if err != nil {
			s.markDeadAtRound2(i)
			continue
		}
		noiseShares[i] = secagg.ShamirShare{Data: pair.NoiseSKShare}
		prfShares[i] = secagg.ShamirShare{Data: pair.PrfSKShare}
	}

	if s.carry.nAlive < s.carry.minSurviving {
		s.carry.wipe()
		secagg.ZeroShares(noiseShares)
		secagg.ZeroShares(prfShares)
		return s.abortWith(abortMsgNotEnoughClients, s.StateName(), true)
	}

	addSeeds, subSeeds := s.maskSeeds()
	masks, err := secagg.MapOfMasks(addSeeds, subSeeds, s.carry.specs, s.carry.sessionID, s.carry.prngFactory, s.abortSig)
	if err != nil {
		s.carry.wipe()
		secagg.ZeroShares(noiseShares)
		secagg.ZeroShares(prfShares)
		if errors.Is(err, secagg.ErrCancelled) {
			return newAbortedState(s.collab(), s.abortSig.Message(), s.StateName()), nil
		}
		return s.abortWith(fmt.Sprintf("Mask computation failed: %v.", err), s.StateName(), true)
	}

	vectors := make(map[string]wire.MaskedInputVector, len(s.carry.specs))
	for _, spec := range s.carry.specs {
		inputVec, ok := s.input[spec.Name()]
		if !ok {
			s.carry.wipe()
			return s.abortWith(fmt.Sprintf("Input is missing vector %q.", spec.Name()), s.StateName(), true)
		}
		mask := masks[spec.Name()]
		masked, err := addModVectors(inputVec, mask, spec.Modulus())
		if err != nil {
			s.carry.wipe()
			return s.abortWith(fmt.Sprintf("Masking vector %q failed: %v.", spec.Name(), err), s.StateName(), true)
		}
		vectors[spec.Name()] = wire.MaskedInputVector{EncodedVector: masked.PackedBytes()}
	}

	s.send(&wire.ClientToServerWrapperMessage{
		MaskedInputResponse: &wire.MaskedInputResponse{Vectors: vectors},
	})

	// The envelope keys have served their purpose; only the pairwise mask
	// seeds move forward.
	secagg.ZeroKeys(s.carry.peerEncKeys)

	return newR3UnmaskingState(r3Carryover{
		base:          s.collab(),
		clientID:      s.carry.clientID,
		minSurviving:  s.carry.minSurviving,
		nAlive:        s.carry.nAlive,
		nTotal:        s.carry.nTotal,
		specs:         s.carry.specs,
		peerStates:    s.carry.peerStates,
		peerPrngKeys:  s.carry.peerPrngKeys,
		noiseSKShares: noiseShares,
		prfSKShares:   prfShares,
		ownSelfShare:  s.carry.ownSelfShare,
		selfPrngKey:   s.carry.selfPrngKey,
		sessionID:     s.carry.sessionID,
	}, s.StateName()), nil
}

func (s *R2InputSetState) markDeadAtRound2(i uint32) {
	s.carry.peerStates[i] = PeerDeadAtRound2
	s.carry.nAlive--
	metrics.Inc("secagg_peer_deaths_total", map[string]string{"round": "2"})
}

// maskSeeds selects the canceling seed sets: the self seed and every alive
// lower-id pairwise seed are added, every alive higher-id pairwise seed is
// subtracted. Summed over all clients each pairwise stream appears once with
// each sign, and the self streams cancel at unmasking.
func (s *R2InputSetState) maskSeeds() (add, sub []secagg.AesKey) {
	add = append(add, s.carry.selfPrngKey)
	for i := uint32(0); i < s.carry.nTotal; i++ {
		if i == s.carry.clientID || s.carry.peerStates[i] != PeerAlive {
			continue
		}
		if i < s.carry.clientID {
			add = append(add, s.carry.peerPrngKeys[i])
		} else {
			sub = append(sub, s.carry.peerPrngKeys[i])
		}
	}
	return add, sub
}

func addModVectors(input, mask secagg.SecAggVector, modulus uint64) (secagg.SecAggVector, error) {
	if input.Len() != mask.Len() {
		return secagg.SecAggVector{}, fmt.Errorf("length mismatch %d vs %d: %w", input.Len(), mask.Len(), secagg.ErrInternal)
	}
	in := input.Elements()
	m := mask.Elements()
	out := make([]uint64, len(in))
	for j := range in {
		// Both operands are below the modulus, which is capped at 2^62, so
		// the sum cannot overflow.
		out[j] = (in[j] + m[j]) % modulus
	}
	return secagg.NewSecAggVector(out, modulus)
}
