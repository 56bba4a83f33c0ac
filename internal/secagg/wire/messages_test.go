package wire

import (
	"bytes"
	"testing"
)

func TestServerMessage_EncodeDecode(t *testing.T) {
	msg := &ServerToClientWrapperMessage{
		MaskedInputRequest: &MaskedInputRequest{
			EncryptedKeyShares: [][]byte{[]byte("envelope-0"), nil, []byte("envelope-2")},
		},
	}
	b, err := EncodeServerMessage(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeServerMessage(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.MaskedInputRequest == nil || got.Abort != nil {
		t.Fatalf("wrong variant decoded")
	}
	shares := got.MaskedInputRequest.EncryptedKeyShares
	if len(shares) != 3 || !bytes.Equal(shares[0], []byte("envelope-0")) || len(shares[1]) != 0 {
		t.Fatalf("shares roundtrip mismatch: %v", shares)
	}
}

func TestClientMessage_AbortCarriesDiagnostic(t *testing.T) {
	msg := &ClientToServerWrapperMessage{
		Abort: &AbortMessage{DiagnosticInfo: "Abort upon external request for reason <test>."},
	}
	b, err := EncodeClientMessage(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeClientMessage(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Abort == nil || got.Abort.DiagnosticInfo != msg.Abort.DiagnosticInfo {
		t.Fatalf("diagnostic lost: %+v", got)
	}
}

func TestPairOfKeyShares_RoundTrip(t *testing.T) {
	pair := PairOfKeyShares{NoiseSKShare: []byte{1, 2, 3}, PrfSKShare: []byte{4, 5}}
	b, err := EncodePairOfKeyShares(pair)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodePairOfKeyShares(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(got.NoiseSKShare, pair.NoiseSKShare) || !bytes.Equal(got.PrfSKShare, pair.PrfSKShare) {
		t.Fatalf("roundtrip mismatch: %+v", got)
	}
}

func TestDecode_RejectsGarbage(t *testing.T) {
	if _, err := DecodeServerMessage([]byte("{")); err == nil {
		t.Fatalf("garbage accepted")
	}
	if _, err := DecodePairOfKeyShares([]byte("no")); err == nil {
		t.Fatalf("garbage pair accepted")
	}
}

func TestPairOfPublicKeys_IsEmpty(t *testing.T) {
	if !(PairOfPublicKeys{}).IsEmpty() {
		t.Fatalf("zero pair should be empty")
	}
	if (PairOfPublicKeys{EncPK: []byte{1}}).IsEmpty() {
		t.Fatalf("pair with a key should not be empty")
	}
}
