package client

import (
	"fmt"

	"github.com/AishPattabi/federated-compute/internal/secagg"
	"github.com/AishPattabi/federated-compute/internal/secagg/wire"
)

// Config wires one SecAggClient. NumberOfClients counts every participant
// including this one; MinSurvivingClients is the reconstruction threshold
// the server needs at unmasking.
type Config struct {
	NumberOfClients     uint32
	MinSurvivingClients uint32
	InputVectorSpecs    []secagg.InputVectorSpecification
	Sender              SendToServer
	Listener            StateTransitionListener
	// PrngFactory defaults to the AES-CTR factory.
	PrngFactory secagg.PrngFactory
	// AsyncAbort, when non-nil, lets another goroutine cancel long
	// operations; the engine polls it at coarse progress points.
	AsyncAbort *secagg.AsyncAbort
	// TolerateTruncatedRequest pads a short round 2 share list with empty
	// envelopes instead of aborting.
	TolerateTruncatedRequest bool
}

// SecAggClient drives one secure aggregation session. It owns the current
// protocol state and is single-threaded: callers must serialize Start,
// SetInput, ReceiveMessage and Abort externally.
type SecAggClient struct {
	state State
}

// NewSecAggClient validates the configuration and places the engine in the
// R0 advertise-keys state.
func NewSecAggClient(cfg Config) (*SecAggClient, error) {
	if cfg.NumberOfClients < 2 {
		return nil, fmt.Errorf("a session needs at least 2 clients, got %d: %w", cfg.NumberOfClients, secagg.ErrInvalidArgument)
	}
	if cfg.MinSurvivingClients < 2 || cfg.MinSurvivingClients > cfg.NumberOfClients {
		return nil, fmt.Errorf("minimum surviving clients %d outside [2, %d]: %w", cfg.MinSurvivingClients, cfg.NumberOfClients, secagg.ErrInvalidArgument)
	}
	if cfg.Sender == nil {
		return nil, fmt.Errorf("a sender is required: %w", secagg.ErrInvalidArgument)
	}
	factory := cfg.PrngFactory
	if factory == nil {
		factory = secagg.AesCtrPrngFactory{}
	}
	base := baseState{
		sender:   cfg.Sender,
		listener: cfg.Listener,
		abortSig: cfg.AsyncAbort,
		cfg:      cfg,
	}
	return &SecAggClient{
		state: newR0AdvertiseKeysState(base, cfg.NumberOfClients, cfg.MinSurvivingClients, cfg.InputVectorSpecs, factory),
	}, nil
}

// Start kicks off the protocol by advertising this client's public keys.
func (c *SecAggClient) Start() error {
	return c.step(c.state.Start())
}

// SetInput supplies the input vectors. Allowed only while round 2 is
// waiting for input.
func (c *SecAggClient) SetInput(input secagg.VectorMap) error {
	return c.step(c.state.SetInput(input))
}

// ReceiveMessage dispatches one inbound server message to the current state.
func (c *SecAggClient) ReceiveMessage(msg *wire.ServerToClientWrapperMessage) error {
	return c.step(c.state.HandleMessage(msg))
}

// Abort ends the session on external request, notifying the server unless
// the session already reached a terminal state.
func (c *SecAggClient) Abort(reason string) error {
	return c.step(c.state.Abort(reason))
}

// step installs the successor state. On error the current state is kept
// unchanged; a state never both transitions and errors.
func (c *SecAggClient) step(next State, err error) error {
	if err != nil {
		return err
	}
	if next != nil {
		c.state = next
	}
	return nil
}

// StateName reports the current state's fixed identifier.
func (c *SecAggClient) StateName() string { return c.state.StateName() }

// IsAborted reports whether the session ended in the aborted state.
func (c *SecAggClient) IsAborted() bool { return c.state.IsAborted() }

// IsCompletedSuccessfully reports whether the session completed.
func (c *SecAggClient) IsCompletedSuccessfully() bool { return c.state.IsCompletedSuccessfully() }

// ErrorMessage returns the abort diagnostic; valid only in the aborted
// state.
func (c *SecAggClient) ErrorMessage() (string, error) { return c.state.ErrorMessage() }
