package client

import (
	"testing"

	"github.com/AishPattabi/federated-compute/internal/secagg"
	"github.com/AishPattabi/federated-compute/internal/secagg/wire"
)

type fakeSender struct {
	sent []*wire.ClientToServerWrapperMessage
}

func (f *fakeSender) Send(msg *wire.ClientToServerWrapperMessage) error {
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSender) lastAbortDiagnostic(t *testing.T) string {
	t.Helper()
	if len(f.sent) == 0 {
		t.Fatalf("no message was sent")
	}
	last := f.sent[len(f.sent)-1]
	if last.Abort == nil {
		t.Fatalf("last message is not an abort: %+v", last)
	}
	return last.Abort.DiagnosticInfo
}

type fakeListener struct {
	tags []ClientState
}

func (f *fakeListener) Transition(newState ClientState) {
	f.tags = append(f.tags, newState)
}

func makeKey(t *testing.T, s string) secagg.AesKey {
	t.Helper()
	k, err := secagg.NewAesKey([]byte(s))
	if err != nil {
		t.Fatalf("key %q: %v", s, err)
	}
	return k
}

func makeSessionID(fill byte) secagg.SessionID {
	var sid secagg.SessionID
	for i := range sid {
		sid[i] = fill
	}
	return sid
}

func makeSpec(t *testing.T, name string, length uint32, modulus uint64) secagg.InputVectorSpecification {
	t.Helper()
	s, err := secagg.NewInputVectorSpecification(name, length, modulus)
	if err != nil {
		t.Fatalf("spec: %v", err)
	}
	return s
}

func makeVector(t *testing.T, elements []uint64, modulus uint64) secagg.SecAggVector {
	t.Helper()
	v, err := secagg.NewSecAggVector(append([]uint64(nil), elements...), modulus)
	if err != nil {
		t.Fatalf("vector: %v", err)
	}
	return v
}

func allAlive(n int) []OtherClientState {
	return make([]OtherClientState, n)
}
