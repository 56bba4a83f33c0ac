package client

import (
	"fmt"

	"github.com/AishPattabi/federated-compute/internal/secagg"
	"github.com/AishPattabi/federated-compute/internal/secagg/wire"
	"github.com/AishPattabi/federated-compute/pkg/metrics"
)

type r3Carryover struct {
	base          baseState
	clientID      uint32
	minSurviving  uint32
	nAlive        uint32
	nTotal        uint32
	specs         []secagg.InputVectorSpecification
	peerStates    []OtherClientState
	peerPrngKeys  []secagg.AesKey
	noiseSKShares []secagg.ShamirShare
	prfSKShares   []secagg.ShamirShare
	ownSelfShare  secagg.ShamirShare
	selfPrngKey   secagg.AesKey
	sessionID     secagg.SessionID
}

func (c *r3Carryover) wipe() {
	secagg.ZeroKeys(c.peerPrngKeys)
	secagg.ZeroShares(c.noiseSKShares)
	secagg.ZeroShares(c.prfSKShares)
	c.ownSelfShare.Zero()
	c.selfPrngKey.Zero()
}

// R3UnmaskingState holds the collected key shares and waits for the server
// to name the clients that dropped after submitting masked input. Its
// response lets the server strip the remaining masks from the aggregate.
type R3UnmaskingState struct {
	baseState
	carry r3Carryover
}

func newR3UnmaskingState(carry r3Carryover, from string) *R3UnmaskingState {
	st := &R3UnmaskingState{baseState: carry.base, carry: carry}
	st.enter(StateR3Unmasking, from, st.StateName(), "")
	return st
}

func (s *R3UnmaskingState) StateName() string { return "R3_UNMASKING" }

func (s *R3UnmaskingState) HandleMessage(msg *wire.ServerToClientWrapperMessage) (State, error) {
	countMsg(msgKind(msg))
	switch {
	case msg != nil && msg.Abort != nil:
		s.carry.wipe()
		return s.handleAbortMessage(msg.Abort, s.StateName())
	case msg != nil && msg.UnmaskingRequest != nil:
		return s.handleUnmaskingRequest(msg.UnmaskingRequest)
	default:
		s.carry.wipe()
		return s.abortWith(abortMsgUnexpected, s.StateName(), true)
	}
}

func (s *R3UnmaskingState) Abort(reason string) (State, error) {
	s.carry.wipe()
	return s.abortExternally(reason, s.StateName())
}

func (s *R3UnmaskingState) handleUnmaskingRequest(req *wire.UnmaskingRequest) (State, error) {
	for _, id := range req.DeadThreeClientIDs {
		if next, fired := s.checkAsyncAbort(s.StateName()); fired {
			s.carry.wipe()
			return next, nil
		}
		if id >= s.carry.nTotal {
			s.carry.wipe()
			return s.abortWith(fmt.Sprintf("Received an invalid client id %d in the unmasking request.", id), s.StateName(), true)
		}
		if id == s.carry.clientID {
			s.carry.wipe()
			return s.abortWith("Received an unmasking request that marks this client as dead.", s.StateName(), true)
		}
		if s.carry.peerStates[id] != PeerAlive {
			s.carry.wipe()
			return s.abortWith(fmt.Sprintf("Received a dead client id %d for a client that was already dead.", id), s.StateName(), true)
		}
		s.carry.peerStates[id] = PeerDeadAtRound3
		s.carry.nAlive--
		metrics.Inc("secagg_peer_deaths_total", map[string]string{"round": "3"})
	}

	if s.carry.nAlive < s.carry.minSurviving {
		s.carry.wipe()
		return s.abortWith(abortMsgNotEnoughClients, s.StateName(), true)
	}

	// One entry per peer: the noise secret-key share of a round 3 casualty
	// (so its pairwise masks can be reconstructed and removed), the self
	// seed share of a survivor (so surviving self masks cancel), nothing
	// for peers that never reached round 3.
	entries := make([]wire.NoiseOrPrfKeyShare, s.carry.nTotal)
	for i := uint32(0); i < s.carry.nTotal; i++ {
		switch {
		case i == s.carry.clientID:
			entries[i] = wire.NoiseOrPrfKeyShare{PrfSKShare: s.carry.ownSelfShare.Data}
		case s.carry.peerStates[i] == PeerAlive:
			entries[i] = wire.NoiseOrPrfKeyShare{PrfSKShare: s.carry.prfSKShares[i].Data}
		case s.carry.peerStates[i] == PeerDeadAtRound3:
			entries[i] = wire.NoiseOrPrfKeyShare{NoiseSKShare: s.carry.noiseSKShares[i].Data}
		}
	}

	s.send(&wire.ClientToServerWrapperMessage{
		UnmaskingResponse: &wire.UnmaskingResponse{NoiseOrPrfKeyShares: entries},
	})

	// The shares just left in the response; the seeds are no longer needed.
	secagg.ZeroKeys(s.carry.peerPrngKeys)
	s.carry.selfPrngKey.Zero()

	return newCompletedState(s.collab(), s.StateName()), nil
}
