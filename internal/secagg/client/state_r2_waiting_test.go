package client

import (
	"errors"
	"testing"

	"github.com/AishPattabi/federated-compute/internal/secagg"
	"github.com/AishPattabi/federated-compute/internal/secagg/wire"
)

func newWaitingFixture(t *testing.T) (*R2WaitingForInputState, *fakeSender) {
	t.Helper()
	sender := &fakeSender{}
	carry := r2Carryover{
		base:         baseState{sender: sender, listener: &fakeListener{}},
		clientID:     1,
		minSurviving: 3,
		nAlive:       4,
		nTotal:       4,
		specs:        []secagg.InputVectorSpecification{makeSpec(t, "test", 4, 32)},
		peerStates:   allAlive(4),
		peerEncKeys:  make([]secagg.AesKey, 4),
		peerPrngKeys: make([]secagg.AesKey, 4),
		selfPrngKey:  makeKey(t, "test 32 byte AES self prng key. "),
		prngFactory:  secagg.AesCtrPrngFactory{},
	}
	return newR2WaitingForInputState(carry, "R1_SHARE_KEYS"), sender
}

func TestR2Waiting_SetInputTransitions(t *testing.T) {
	st, _ := newWaitingFixture(t)
	next, err := st.SetInput(secagg.VectorMap{"test": makeVector(t, []uint64{2, 4, 6, 8}, 32)})
	if err != nil {
		t.Fatalf("set input: %v", err)
	}
	if next.StateName() != "R2_MASKED_INPUT_COLL_INPUT_SET" {
		t.Fatalf("state %q", next.StateName())
	}
}

func TestR2Waiting_SetInputValidation(t *testing.T) {
	st, _ := newWaitingFixture(t)
	cases := []struct {
		name  string
		input secagg.VectorMap
	}{
		{"missing vector", secagg.VectorMap{}},
		{"wrong name", secagg.VectorMap{"other": makeVector(t, []uint64{1, 2, 3, 4}, 32)}},
		{"wrong length", secagg.VectorMap{"test": makeVector(t, []uint64{1, 2, 3}, 32)}},
		{"wrong modulus", secagg.VectorMap{"test": makeVector(t, []uint64{1, 2, 3, 4}, 64)}},
		{"extra vector", secagg.VectorMap{
			"test":  makeVector(t, []uint64{1, 2, 3, 4}, 32),
			"extra": makeVector(t, []uint64{1}, 32),
		}},
	}
	for _, tc := range cases {
		next, err := st.SetInput(tc.input)
		if !errors.Is(err, secagg.ErrInvalidArgument) {
			t.Fatalf("%s: err = %v", tc.name, err)
		}
		if next != nil {
			t.Fatalf("%s: invalid input transitioned the state", tc.name)
		}
	}
}

func TestR2Waiting_MaskedInputRequestBeforeInputAborts(t *testing.T) {
	st, sender := newWaitingFixture(t)
	next, err := st.HandleMessage(&wire.ServerToClientWrapperMessage{
		MaskedInputRequest: &wire.MaskedInputRequest{EncryptedKeyShares: make([][]byte, 4)},
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if next.StateName() != "ABORTED" {
		t.Fatalf("state %q", next.StateName())
	}
	if got := sender.lastAbortDiagnostic(t); got != abortMsgInputNotSet {
		t.Fatalf("diagnostic %q", got)
	}
}

func TestR2Waiting_ServerAbortVariants(t *testing.T) {
	st, sender := newWaitingFixture(t)
	next, err := st.HandleMessage(&wire.ServerToClientWrapperMessage{
		Abort: &wire.AbortMessage{EarlySuccess: true},
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if next.StateName() != "COMPLETED" || len(sender.sent) != 0 {
		t.Fatalf("early success mishandled")
	}

	st2, sender2 := newWaitingFixture(t)
	next, err = st2.HandleMessage(&wire.ServerToClientWrapperMessage{
		Abort: &wire.AbortMessage{},
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if next.StateName() != "ABORTED" || len(sender2.sent) != 0 {
		t.Fatalf("server abort mishandled")
	}
}
