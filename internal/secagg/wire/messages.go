// Package wire defines the client/server wrapper messages of the secure
// aggregation protocol. Encoding is JSON with lower_snake_case keys and
// base64 byte fields; it is schema-stable and carries exactly one variant
// per wrapper.
package wire

import (
	"encoding/json"
	"fmt"
)

// AbortMessage flows in both directions. From the server, EarlySuccess
// distinguishes "you are done early" from a failure abort; from the client
// only DiagnosticInfo is meaningful.
type AbortMessage struct {
	EarlySuccess   bool   `json:"early_success,omitempty"`
	DiagnosticInfo string `json:"diagnostic_info,omitempty"`
}

// PairOfPublicKeys carries one client's advertised ECDH public keys: the
// envelope-encryption key and the pairwise-noise key.
type PairOfPublicKeys struct {
	EncPK   []byte `json:"enc_pk,omitempty"`
	NoisePK []byte `json:"noise_pk,omitempty"`
}

// IsEmpty reports an all-empty pair, the server's marker for a peer that
// dropped before advertising.
func (p PairOfPublicKeys) IsEmpty() bool { return len(p.EncPK) == 0 && len(p.NoisePK) == 0 }

// AdvertiseKeys is the round 0 client payload.
type AdvertiseKeys struct {
	PairOfPublicKeys PairOfPublicKeys `json:"pair_of_public_keys"`
}

// ShareKeysRequest is the round 1 server payload: every client's advertised
// key pair, indexed by client id. An empty pair denotes a dropped peer.
type ShareKeysRequest struct {
	PairsOfPublicKeys []PairOfPublicKeys `json:"pairs_of_public_keys"`
}

// ShareKeysResponse is the round 1 client payload: one encrypted key-share
// envelope per peer, empty at the sender's own index and at dead peers.
type ShareKeysResponse struct {
	EncryptedKeyShares [][]byte `json:"encrypted_key_shares"`
}

// MaskedInputRequest is the round 2 server payload: the envelopes addressed
// to this client, one per peer. Empty bytes denote a dropped peer.
type MaskedInputRequest struct {
	EncryptedKeyShares [][]byte `json:"encrypted_key_shares"`
}

// MaskedInputVector is one packed masked vector.
type MaskedInputVector struct {
	EncodedVector []byte `json:"encoded_vector"`
}

// MaskedInputResponse is the round 2 client payload.
type MaskedInputResponse struct {
	Vectors map[string]MaskedInputVector `json:"vectors"`
}

// UnmaskingRequest is the round 3 server payload: ids of clients that
// dropped after submitting masked input.
type UnmaskingRequest struct {
	DeadThreeClientIDs []uint32 `json:"dead_3_client_ids"`
}

// NoiseOrPrfKeyShare carries at most one of the two share kinds: the noise
// secret-key share of a peer that dropped at round 3, or the self-mask (PRF)
// seed share of a surviving one. The entry of a peer that dropped before
// round 3 carries neither.
type NoiseOrPrfKeyShare struct {
	NoiseSKShare []byte `json:"noise_sk_share,omitempty"`
	PrfSKShare   []byte `json:"prf_sk_share,omitempty"`
}

// UnmaskingResponse is the round 3 client payload, one entry per peer in id
// order.
type UnmaskingResponse struct {
	NoiseOrPrfKeyShares []NoiseOrPrfKeyShare `json:"noise_or_prf_key_shares"`
}

// ClientToServerWrapperMessage holds exactly one client payload.
type ClientToServerWrapperMessage struct {
	Abort               *AbortMessage        `json:"abort,omitempty"`
	AdvertiseKeys       *AdvertiseKeys       `json:"advertise_keys,omitempty"`
	ShareKeysResponse   *ShareKeysResponse   `json:"share_keys_response,omitempty"`
	MaskedInputResponse *MaskedInputResponse `json:"masked_input_response,omitempty"`
	UnmaskingResponse   *UnmaskingResponse   `json:"unmasking_response,omitempty"`
}

// ServerToClientWrapperMessage holds exactly one server payload.
type ServerToClientWrapperMessage struct {
	Abort              *AbortMessage       `json:"abort,omitempty"`
	ShareKeysRequest   *ShareKeysRequest   `json:"share_keys_request,omitempty"`
	MaskedInputRequest *MaskedInputRequest `json:"masked_input_request,omitempty"`
	UnmaskingRequest   *UnmaskingRequest   `json:"unmasking_request,omitempty"`
}

// EncodeClientMessage serializes a client-to-server wrapper.
func EncodeClientMessage(msg *ClientToServerWrapperMessage) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeClientMessage parses a client-to-server wrapper.
func DecodeClientMessage(b []byte) (*ClientToServerWrapperMessage, error) {
	var msg ClientToServerWrapperMessage
	if err := json.Unmarshal(b, &msg); err != nil {
		return nil, fmt.Errorf("decode client message: %w", err)
	}
	return &msg, nil
}

// EncodeServerMessage serializes a server-to-client wrapper.
func EncodeServerMessage(msg *ServerToClientWrapperMessage) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeServerMessage parses a server-to-client wrapper.
func DecodeServerMessage(b []byte) (*ServerToClientWrapperMessage, error) {
	var msg ServerToClientWrapperMessage
	if err := json.Unmarshal(b, &msg); err != nil {
		return nil, fmt.Errorf("decode server message: %w", err)
	}
	return &msg, nil
}

// PairOfKeyShares is the plaintext of one key-share envelope: one peer's
// shares of the sender's noise secret key and self-mask seed.
type PairOfKeyShares struct {
	NoiseSKShare []byte `json:"noise_sk_share"`
	PrfSKShare   []byte `json:"prf_sk_share"`
}

// EncodePairOfKeyShares serializes an envelope plaintext.
func EncodePairOfKeyShares(p PairOfKeyShares) ([]byte, error) {
	return json.Marshal(p)
}

// DecodePairOfKeyShares parses an envelope plaintext.
func DecodePairOfKeyShares(b []byte) (PairOfKeyShares, error) {
	var p PairOfKeyShares
	if err := json.Unmarshal(b, &p); err != nil {
		return PairOfKeyShares{}, fmt.Errorf("decode key share pair: %w", err)
	}
	return p, nil
}
