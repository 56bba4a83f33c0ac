package client

import (
	"errors"
	"testing"

	"github.com/AishPattabi/federated-compute/internal/secagg"
	"github.com/AishPattabi/federated-compute/internal/secagg/wire"
)

func newTestClient(t *testing.T, n, min uint32) (*SecAggClient, *fakeSender, *fakeListener) {
	t.Helper()
	sender := &fakeSender{}
	listener := &fakeListener{}
	c, err := NewSecAggClient(Config{
		NumberOfClients:     n,
		MinSurvivingClients: min,
		InputVectorSpecs:    []secagg.InputVectorSpecification{makeSpec(t, "test", 4, 32)},
		Sender:              sender,
		Listener:            listener,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c, sender, listener
}

func TestNewSecAggClient_ValidatesConfig(t *testing.T) {
	base := Config{
		NumberOfClients:     4,
		MinSurvivingClients: 3,
		Sender:              &fakeSender{},
	}
	bad := base
	bad.NumberOfClients = 1
	if _, err := NewSecAggClient(bad); !errors.Is(err, secagg.ErrInvalidArgument) {
		t.Fatalf("one client accepted: %v", err)
	}
	bad = base
	bad.MinSurvivingClients = 5
	if _, err := NewSecAggClient(bad); !errors.Is(err, secagg.ErrInvalidArgument) {
		t.Fatalf("threshold above n accepted: %v", err)
	}
	bad = base
	bad.Sender = nil
	if _, err := NewSecAggClient(bad); !errors.Is(err, secagg.ErrInvalidArgument) {
		t.Fatalf("nil sender accepted: %v", err)
	}
}

func TestClient_StartAdvertisesKeys(t *testing.T) {
	c, sender, listener := newTestClient(t, 4, 3)
	if got := c.StateName(); got != "R0_ADVERTISE_KEYS" {
		t.Fatalf("initial state %q", got)
	}
	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := c.StateName(); got != "R1_SHARE_KEYS" {
		t.Fatalf("state after start %q", got)
	}
	if len(sender.sent) != 1 || sender.sent[0].AdvertiseKeys == nil {
		t.Fatalf("expected one advertise_keys message")
	}
	pair := sender.sent[0].AdvertiseKeys.PairOfPublicKeys
	if len(pair.EncPK) == 0 || len(pair.NoisePK) == 0 {
		t.Fatalf("empty public keys advertised")
	}
	want := []ClientState{StateR0AdvertiseKeys, StateR1ShareKeys}
	if len(listener.tags) != len(want) {
		t.Fatalf("listener tags %v", listener.tags)
	}
	for i := range want {
		if listener.tags[i] != want[i] {
			t.Fatalf("listener tags %v, want %v", listener.tags, want)
		}
	}
}

func TestClient_StartTwiceFailsWithoutTransition(t *testing.T) {
	c, _, _ := newTestClient(t, 4, 3)
	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	before := c.StateName()
	if err := c.Start(); !errors.Is(err, secagg.ErrFailedPrecondition) {
		t.Fatalf("second start: %v", err)
	}
	if c.StateName() != before {
		t.Fatalf("failed call transitioned the state")
	}
}

func TestClient_SetInputBeforeRound2Fails(t *testing.T) {
	c, _, _ := newTestClient(t, 4, 3)
	err := c.SetInput(secagg.VectorMap{})
	if !errors.Is(err, secagg.ErrFailedPrecondition) {
		t.Fatalf("set input in R0: %v", err)
	}
	if c.StateName() != "R0_ADVERTISE_KEYS" {
		t.Fatalf("failed call transitioned the state")
	}
}

func TestClient_ErrorMessageOnlyWhenAborted(t *testing.T) {
	c, _, _ := newTestClient(t, 4, 3)
	if _, err := c.ErrorMessage(); !errors.Is(err, secagg.ErrFailedPrecondition) {
		t.Fatalf("error message in R0: %v", err)
	}
	if err := c.Abort("test reason"); err != nil {
		t.Fatalf("abort: %v", err)
	}
	if !c.IsAborted() || c.StateName() != "ABORTED" {
		t.Fatalf("state %q", c.StateName())
	}
	msg, err := c.ErrorMessage()
	if err != nil {
		t.Fatalf("error message: %v", err)
	}
	if msg != "Abort upon external request for reason <test reason>." {
		t.Fatalf("message %q", msg)
	}
}

func TestClient_AbortIsIdempotentInTerminalState(t *testing.T) {
	c, sender, _ := newTestClient(t, 4, 3)
	if err := c.Abort("first"); err != nil {
		t.Fatalf("abort: %v", err)
	}
	sentBefore := len(sender.sent)
	if err := c.Abort("second"); err != nil {
		t.Fatalf("second abort: %v", err)
	}
	if len(sender.sent) != sentBefore {
		t.Fatalf("terminal abort sent a message")
	}
	if msg, _ := c.ErrorMessage(); msg != "Abort upon external request for reason <first>." {
		t.Fatalf("diagnostic overwritten: %q", msg)
	}
}

func TestClient_StatePredicatesAreConsistent(t *testing.T) {
	c, _, _ := newTestClient(t, 4, 3)
	check := func() {
		if c.IsAborted() != (c.StateName() == "ABORTED") {
			t.Fatalf("IsAborted inconsistent in %q", c.StateName())
		}
		if c.IsCompletedSuccessfully() != (c.StateName() == "COMPLETED") {
			t.Fatalf("IsCompletedSuccessfully inconsistent in %q", c.StateName())
		}
	}
	check()
	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	check()
	if err := c.ReceiveMessage(&wire.ServerToClientWrapperMessage{
		Abort: &wire.AbortMessage{EarlySuccess: true},
	}); err != nil {
		t.Fatalf("receive: %v", err)
	}
	check()
}

func TestClient_UnexpectedMessageInR1Aborts(t *testing.T) {
	c, sender, _ := newTestClient(t, 4, 3)
	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.ReceiveMessage(&wire.ServerToClientWrapperMessage{
		UnmaskingRequest: &wire.UnmaskingRequest{},
	}); err != nil {
		t.Fatalf("receive: %v", err)
	}
	if c.StateName() != "ABORTED" {
		t.Fatalf("state %q", c.StateName())
	}
	if got := sender.lastAbortDiagnostic(t); got != "Received unexpected message type." {
		t.Fatalf("diagnostic %q", got)
	}
}
