package client

import (
	"fmt"

	"github.com/AishPattabi/federated-compute/internal/secagg"
	"github.com/AishPattabi/federated-compute/internal/secagg/wire"
)

// CompletedState is terminal. It owns no secret material.
type CompletedState struct {
	baseState
}

func newCompletedState(b baseState, from string) *CompletedState {
	st := &CompletedState{baseState: b}
	st.enter(StateCompleted, from, st.StateName(), "")
	return st
}

func (s *CompletedState) StateName() string             { return "COMPLETED" }
func (s *CompletedState) IsCompletedSuccessfully() bool { return true }

func (s *CompletedState) HandleMessage(*wire.ServerToClientWrapperMessage) (State, error) {
	return nil, fmt.Errorf("the protocol is already completed: %w", secagg.ErrFailedPrecondition)
}

// Abort is a no-op in a terminal state: there is nothing left to wind down
// and no envelope is sent.
func (s *CompletedState) Abort(string) (State, error) { return s, nil }

// AbortedState is terminal. It owns no secret material; only the diagnostic
// survives.
type AbortedState struct {
	baseState
	errorMessage string
}

func newAbortedState(b baseState, errorMessage, from string) *AbortedState {
	st := &AbortedState{baseState: b, errorMessage: errorMessage}
	st.enter(StateAborted, from, st.StateName(), errorMessage)
	return st
}

func (s *AbortedState) StateName() string { return "ABORTED" }
func (s *AbortedState) IsAborted() bool   { return true }

func (s *AbortedState) ErrorMessage() (string, error) { return s.errorMessage, nil }

func (s *AbortedState) HandleMessage(*wire.ServerToClientWrapperMessage) (State, error) {
	return nil, fmt.Errorf("the protocol is already aborted: %w", secagg.ErrFailedPrecondition)
}

func (s *AbortedState) Abort(string) (State, error) { return s, nil }
