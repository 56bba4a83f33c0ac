package client

import (
	"fmt"

	"github.com/AishPattabi/federated-compute/internal/secagg"
	"github.com/AishPattabi/federated-compute/internal/secagg/wire"
)

const abortMsgInputNotSet = "Received masked input request, but the input has not been set."

// r2Carryover bundles the protocol state established in round 1 that both
// round 2 states own.
type r2Carryover struct {
	base         baseState
	clientID     uint32
	minSurviving uint32
	nAlive       uint32
	nTotal       uint32
	specs        []secagg.InputVectorSpecification
	peerStates   []OtherClientState
	peerEncKeys  []secagg.AesKey
	peerPrngKeys []secagg.AesKey
	ownSelfShare secagg.ShamirShare
	selfPrngKey  secagg.AesKey
	sessionID    secagg.SessionID
	prngFactory  secagg.PrngFactory
}

func (c *r2Carryover) wipe() {
	secagg.ZeroKeys(c.peerEncKeys)
	secagg.ZeroKeys(c.peerPrngKeys)
	c.selfPrngKey.Zero()
	c.ownSelfShare.Zero()
}

// R2WaitingForInputState has completed the key exchange and waits for the
// caller to provide the input vectors.
type R2WaitingForInputState struct {
	baseState
	carry r2Carryover
}

func newR2WaitingForInputState(carry r2Carryover, from string) *R2WaitingForInputState {
	st := &R2WaitingForInputState{baseState: carry.base, carry: carry}
	st.enter(StateR2MaskedInput, from, st.StateName(), "")
	return st
}

func (s *R2WaitingForInputState) StateName() string {
	return "R2_MASKED_INPUT_COLL_WAITING_FOR_INPUT"
}

// SetInput validates the input against the vector specs and arms round 2.
// Validation failures do not transition the state.
func (s *R2WaitingForInputState) SetInput(input secagg.VectorMap) (State, error) {
	if err := validateInput(input, s.carry.specs); err != nil {
		return nil, err
	}
	return newR2InputSetState(s.carry, input, s.StateName()), nil
}

func (s *R2WaitingForInputState) HandleMessage(msg *wire.ServerToClientWrapperMessage) (State, error) {
	countMsg(msgKind(msg))
	switch {
	case msg != nil && msg.Abort != nil:
		s.carry.wipe()
		return s.handleAbortMessage(msg.Abort, s.StateName())
	case msg != nil && msg.MaskedInputRequest != nil:
		s.carry.wipe()
		return s.abortWith(abortMsgInputNotSet, s.StateName(), true)
	default:
		s.carry.wipe()
		return s.abortWith(abortMsgUnexpected, s.StateName(), true)
	}
}

func (s *R2WaitingForInputState) Abort(reason string) (State, error) {
	s.carry.wipe()
	return s.abortExternally(reason, s.StateName())
}

func validateInput(input secagg.VectorMap, specs []secagg.InputVectorSpecification) error {
	if len(input) != len(specs) {
		return fmt.Errorf("input has %d vectors, specs have %d: %w", len(input), len(specs), secagg.ErrInvalidArgument)
	}
	for _, spec := range specs {
		vec, ok := input[spec.Name()]
		if !ok {
			return fmt.Errorf("input is missing vector %q: %w", spec.Name(), secagg.ErrInvalidArgument)
		}
		if uint32(vec.Len()) != spec.Length() {
			return fmt.Errorf("vector %q has length %d, spec says %d: %w", spec.Name(), vec.Len(), spec.Length(), secagg.ErrInvalidArgument)
		}
		if vec.Modulus() != spec.Modulus() {
			return fmt.Errorf("vector %q has modulus %d, spec says %d: %w", spec.Name(), vec.Modulus(), spec.Modulus(), secagg.ErrInvalidArgument)
		}
	}
	return nil
}
