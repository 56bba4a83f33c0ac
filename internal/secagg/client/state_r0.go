package client

import (
	"github.com/AishPattabi/federated-compute/internal/secagg"
	"github.com/AishPattabi/federated-compute/internal/secagg/wire"
)

// R0AdvertiseKeysState is the initial state. Start generates the two ECDH
// key pairs, advertises the public halves, and moves to round 1.
type R0AdvertiseKeysState struct {
	baseState
	nTotal       uint32
	minSurviving uint32
	specs        []secagg.InputVectorSpecification
	prngFactory  secagg.PrngFactory
}

func newR0AdvertiseKeysState(b baseState, nTotal, minSurviving uint32, specs []secagg.InputVectorSpecification, factory secagg.PrngFactory) *R0AdvertiseKeysState {
	st := &R0AdvertiseKeysState{
		baseState:    b,
		nTotal:       nTotal,
		minSurviving: minSurviving,
		specs:        specs,
		prngFactory:  factory,
	}
	st.enter(StateR0AdvertiseKeys, StateInitial.String(), st.StateName(), "")
	return st
}

func (s *R0AdvertiseKeysState) StateName() string { return "R0_ADVERTISE_KEYS" }

func (s *R0AdvertiseKeysState) Start() (State, error) {
	if next, fired := s.checkAsyncAbort(s.StateName()); fired {
		return next, nil
	}
	encPair, err := secagg.GenerateEcdhKeyPair()
	if err != nil {
		return s.abortWith("Failed to generate the encryption key pair.", s.StateName(), true)
	}
	noisePair, err := secagg.GenerateEcdhKeyPair()
	if err != nil {
		return s.abortWith("Failed to generate the noise key pair.", s.StateName(), true)
	}
	s.send(&wire.ClientToServerWrapperMessage{
		AdvertiseKeys: &wire.AdvertiseKeys{
			PairOfPublicKeys: wire.PairOfPublicKeys{
				EncPK:   encPair.PublicKeyBytes(),
				NoisePK: noisePair.PublicKeyBytes(),
			},
		},
	})
	return newR1ShareKeysState(s.collab(), s.nTotal, s.minSurviving, s.specs, s.prngFactory, encPair, noisePair), nil
}

func (s *R0AdvertiseKeysState) HandleMessage(msg *wire.ServerToClientWrapperMessage) (State, error) {
	countMsg(msgKind(msg))
	if msg != nil && msg.Abort != nil {
		return s.handleAbortMessage(msg.Abort, s.StateName())
	}
	return s.abortWith(abortMsgUnexpected, s.StateName(), true)
}

func (s *R0AdvertiseKeysState) Abort(reason string) (State, error) {
	return s.abortExternally(reason, s.StateName())
}
