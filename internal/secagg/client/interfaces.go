// Package client implements the client side of the secure aggregation
// protocol as a finite state machine. Each protocol state is its own value;
// a transition moves all owned secret material into the successor and the
// predecessor is never reused. The engine is not internally synchronized:
// callers that deliver messages concurrently must serialize externally, for
// example through a bus with a single consumer.
package client

import (
	"github.com/AishPattabi/federated-compute/internal/secagg/wire"
)

// ClientState is the coarse state tag reported to transition listeners.
type ClientState int32

const (
	StateInitial ClientState = iota
	StateR0AdvertiseKeys
	StateR1ShareKeys
	StateR2MaskedInput
	StateR3Unmasking
	StateCompleted
	StateAborted
)

func (s ClientState) String() string {
	switch s {
	case StateInitial:
		return "INITIAL"
	case StateR0AdvertiseKeys:
		return "R0_ADVERTISE_KEYS"
	case StateR1ShareKeys:
		return "R1_SHARE_KEYS"
	case StateR2MaskedInput:
		return "R2_MASKED_INPUT"
	case StateR3Unmasking:
		return "R3_UNMASKING"
	case StateCompleted:
		return "COMPLETED"
	case StateAborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// SendToServer is the outbound message sink. Send is fire-and-forget: a
// failure is logged but never rolls back a state transition.
type SendToServer interface {
	Send(msg *wire.ClientToServerWrapperMessage) error
}

// StateTransitionListener observes every state change. It is invoked exactly
// once per transition, after any outbound message has been sent and before
// the successor state is visible to the caller.
type StateTransitionListener interface {
	Transition(newState ClientState)
}

// OtherClientState tracks a peer through the session. A peer that has moved
// to a dead state never returns to alive.
type OtherClientState int

const (
	PeerAlive OtherClientState = iota
	PeerDeadAtRound1
	PeerDeadAtRound2
	PeerDeadAtRound3
	// PeerCompleted is part of the peer-state vocabulary but is never
	// assigned: the session reaches Completed right after the unmasking
	// response, with surviving peers still marked PeerAlive.
	PeerCompleted
	PeerUnknown
)

func (s OtherClientState) String() string {
	switch s {
	case PeerAlive:
		return "alive"
	case PeerDeadAtRound1:
		return "dead_at_round_1"
	case PeerDeadAtRound2:
		return "dead_at_round_2"
	case PeerDeadAtRound3:
		return "dead_at_round_3"
	case PeerCompleted:
		return "completed"
	default:
		return "unknown"
	}
}
