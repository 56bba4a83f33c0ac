package client

import (
	"fmt"

	"github.com/AishPattabi/federated-compute/internal/secagg"
	"github.com/AishPattabi/federated-compute/internal/secagg/wire"
	"github.com/AishPattabi/federated-compute/pkg/logger"
	"github.com/AishPattabi/federated-compute/pkg/metrics"
)

// Diagnostic strings fixed by the protocol. Servers and tooling match on
// them, so they must not drift.
const (
	abortMsgFromServer       = "Aborting because of abort message from the server."
	abortMsgUnexpected       = "Received unexpected message type."
	abortMsgNotEnoughClients = "There are not enough clients to complete this protocol session. Aborting."
	abortMsgExternalFormat   = "Abort upon external request for reason <%s>."
)

// State is the uniform capability surface of every protocol state. Methods
// that are not allowed in the receiver's state return a nil successor and an
// error wrapping secagg.ErrFailedPrecondition; the caller keeps the current
// state in that case.
type State interface {
	StateName() string
	IsAborted() bool
	IsCompletedSuccessfully() bool
	Start() (State, error)
	SetInput(input secagg.VectorMap) (State, error)
	HandleMessage(msg *wire.ServerToClientWrapperMessage) (State, error)
	Abort(reason string) (State, error)
	ErrorMessage() (string, error)
}

// baseState carries the collaborators shared by every state and the default
// (refusing) implementations of the capability methods.
type baseState struct {
	sender   SendToServer
	listener StateTransitionListener
	abortSig *secagg.AsyncAbort
	cfg      Config
}

func (b *baseState) IsAborted() bool               { return false }
func (b *baseState) IsCompletedSuccessfully() bool { return false }

func (b *baseState) Start() (State, error) {
	return nil, fmt.Errorf("the client may not be started in this state: %w", secagg.ErrFailedPrecondition)
}

func (b *baseState) SetInput(secagg.VectorMap) (State, error) {
	return nil, fmt.Errorf("the input may not be set in this state: %w", secagg.ErrFailedPrecondition)
}

func (b *baseState) ErrorMessage() (string, error) {
	return "", fmt.Errorf("no error message in a non-aborted state: %w", secagg.ErrFailedPrecondition)
}

// send pushes one outbound message. Failures never roll back a transition.
func (b *baseState) send(msg *wire.ClientToServerWrapperMessage) {
	if b.sender == nil {
		return
	}
	if err := b.sender.Send(msg); err != nil {
		logger.WarnJ("secagg_send", map[string]any{"op": "send", "result": "error", "error": err.Error()})
	}
}

// enter records a transition: structured log, counter, then the listener
// notification. Callers invoke it from the successor's constructor, after
// any outbound message was sent.
func (b *baseState) enter(tag ClientState, from, to, reason string) {
	fields := map[string]any{"op": "transition", "from": from, "to": to}
	if reason != "" {
		fields["reason"] = reason
	}
	logger.InfoJ("secagg_state", fields)
	metrics.Inc("secagg_transitions_total", map[string]string{"from": from, "to": to})
	if b.listener != nil {
		b.listener.Transition(tag)
	}
}

// abortExternally implements the uniform Abort(reason) operation for
// non-terminal states: notify the server, then move to Aborted. Callers wipe
// their secrets before invoking it.
func (b *baseState) abortExternally(reason, from string) (State, error) {
	diagnostic := fmt.Sprintf(abortMsgExternalFormat, reason)
	b.send(&wire.ClientToServerWrapperMessage{Abort: &wire.AbortMessage{DiagnosticInfo: diagnostic}})
	return newAbortedState(b.collab(), diagnostic, from), nil
}

// abortWith moves to Aborted with the given diagnostic, optionally notifying
// the server first.
func (b *baseState) abortWith(diagnostic, from string, notifyServer bool) (State, error) {
	if notifyServer {
		b.send(&wire.ClientToServerWrapperMessage{Abort: &wire.AbortMessage{DiagnosticInfo: diagnostic}})
	}
	return newAbortedState(b.collab(), diagnostic, from), nil
}

// handleAbortMessage implements the shared server-abort rules: early success
// completes the session, anything else aborts it. Neither sends outbound.
func (b *baseState) handleAbortMessage(abort *wire.AbortMessage, from string) (State, error) {
	if abort.EarlySuccess {
		return newCompletedState(b.collab(), from), nil
	}
	return newAbortedState(b.collab(), abortMsgFromServer, from), nil
}

// checkAsyncAbort returns the Aborted successor when the async abort signal
// has fired. No server notification is required for a cancelled operation.
func (b *baseState) checkAsyncAbort(from string) (State, bool) {
	if !b.abortSig.Signaled() {
		return nil, false
	}
	return newAbortedState(b.collab(), b.abortSig.Message(), from), true
}

// collab clones the shared collaborator set for a successor state.
func (b *baseState) collab() baseState {
	return baseState{sender: b.sender, listener: b.listener, abortSig: b.abortSig, cfg: b.cfg}
}

func countMsg(kind string) {
	metrics.Inc("secagg_msgs_total", map[string]string{"type": kind})
}

func msgKind(msg *wire.ServerToClientWrapperMessage) string {
	switch {
	case msg == nil:
		return "nil"
	case msg.Abort != nil:
		return "abort"
	case msg.ShareKeysRequest != nil:
		return "share_keys_request"
	case msg.MaskedInputRequest != nil:
		return "masked_input_request"
	case msg.UnmaskingRequest != nil:
		return "unmasking_request"
	default:
		return "unknown"
	}
}
