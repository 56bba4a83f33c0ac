// Command secagg-sim runs a full secure aggregation session with N
// in-process clients and a minimal in-process round driver, then checks that
// the unmasked aggregate equals the plain sum of the inputs. It exists to
// exercise the client engine end to end; nothing here is the real server.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"

	"github.com/AishPattabi/federated-compute/internal/secagg"
	"github.com/AishPattabi/federated-compute/internal/secagg/client"
	"github.com/AishPattabi/federated-compute/internal/secagg/wire"
	"github.com/AishPattabi/federated-compute/pkg/bus"
	"github.com/AishPattabi/federated-compute/pkg/logger"
	"github.com/AishPattabi/federated-compute/pkg/metrics"
	"github.com/AishPattabi/federated-compute/pkg/trace"
	"github.com/google/uuid"
)

type mailboxSender struct {
	id    uint32
	inbox *[]clientMessage
}

type clientMessage struct {
	from uint32
	msg  *wire.ClientToServerWrapperMessage
}

func (s mailboxSender) Send(msg *wire.ClientToServerWrapperMessage) error {
	*s.inbox = append(*s.inbox, clientMessage{from: s.id, msg: msg})
	return nil
}

type logListener struct{ id uint32 }

func (l logListener) Transition(newState client.ClientState) {
	logger.InfoJ("sim_transition", map[string]any{"client": l.id, "state": newState.String()})
}

func main() {
	var (
		nClients  int
		threshold int
		vecLen    int
		bound     uint64
		drop      int
		seed      int64
		dumpProm  bool
	)
	flag.IntVar(&nClients, "clients", 4, "Number of clients in the session")
	flag.IntVar(&threshold, "threshold", 3, "Minimum surviving clients for reconstruction")
	flag.IntVar(&vecLen, "len", 16, "Input vector length")
	flag.Uint64Var(&bound, "bound", 1<<20, "Element bound (values are in [0, bound))")
	flag.IntVar(&drop, "drop", 0, "Number of clients dropped at round 2")
	flag.Int64Var(&seed, "seed", 1, "Input generator seed")
	flag.BoolVar(&dumpProm, "metrics", false, "Dump metrics on exit")
	flag.Parse()

	if err := run(nClients, threshold, vecLen, bound, drop, seed); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
	if dumpProm {
		fmt.Print(metrics.DumpProm())
	}
}

func run(nClients, threshold, vecLen int, bound uint64, drop int, seed int64) error {
	if drop > nClients-threshold {
		return fmt.Errorf("dropping %d clients breaks the %d-of-%d threshold", drop, threshold, nClients)
	}
	ctx := trace.WithTraceID(context.Background(), "sim-"+uuid.NewString())
	runID, _ := trace.FromContext(ctx)
	logger.InfoJ("sim_start", map[string]any{"run_id": runID, "clients": nClients, "threshold": threshold})

	spec, err := secagg.NewInputVectorSpecification("values", uint32(vecLen), bound)
	if err != nil {
		return err
	}
	specs := []secagg.InputVectorSpecification{spec}

	rng := rand.New(rand.NewSource(seed))
	inputs := make([][]uint64, nClients)
	for i := range inputs {
		inputs[i] = make([]uint64, vecLen)
		for j := range inputs[i] {
			inputs[i][j] = rng.Uint64() % bound
		}
	}

	var inbox []clientMessage
	clients := make([]*client.SecAggClient, nClients)
	for i := range clients {
		c, err := client.NewSecAggClient(client.Config{
			NumberOfClients:     uint32(nClients),
			MinSurvivingClients: uint32(threshold),
			InputVectorSpecs:    specs,
			Sender:              mailboxSender{id: uint32(i), inbox: &inbox},
			Listener:            logListener{id: uint32(i)},
		})
		if err != nil {
			return err
		}
		clients[i] = c
	}

	// Round 0: every client advertises its key pairs.
	for _, c := range clients {
		if err := c.Start(); err != nil {
			return err
		}
	}
	pairs := make([]wire.PairOfPublicKeys, nClients)
	for _, m := range drain(&inbox) {
		if m.msg.AdvertiseKeys == nil {
			return fmt.Errorf("client %d: expected advertise_keys", m.from)
		}
		pairs[m.from] = m.msg.AdvertiseKeys.PairOfPublicKeys
	}

	// Round 1: broadcast the advertised keys; collect the share envelopes.
	b := bus.New(4 * nClients)
	for i := range clients {
		b.Publish(ctx, bus.Event{
			Kind:     bus.KindServerMessage,
			ClientID: uint32(i),
			Body:     &wire.ServerToClientWrapperMessage{ShareKeysRequest: &wire.ShareKeysRequest{PairsOfPublicKeys: pairs}},
			TraceID:  runID,
		})
	}
	if err := deliver(b, clients); err != nil {
		return err
	}
	// envelopes[from][to]
	envelopes := make([][][]byte, nClients)
	for _, m := range drain(&inbox) {
		if m.msg.ShareKeysResponse == nil {
			return fmt.Errorf("client %d: expected share_keys_response", m.from)
		}
		envelopes[m.from] = m.msg.ShareKeysResponse.EncryptedKeyShares
	}

	// Round 2: the last `drop` clients fall over before the masked input
	// request goes out; everyone else gets one envelope per peer.
	dead := make(map[uint32]bool, drop)
	for i := nClients - drop; i < nClients; i++ {
		dead[uint32(i)] = true
	}
	for i := range clients {
		if dead[uint32(i)] {
			continue
		}
		input := secagg.VectorMap{}
		vec, err := secagg.NewSecAggVector(append([]uint64(nil), inputs[i]...), bound)
		if err != nil {
			return err
		}
		input["values"] = vec
		if err := clients[i].SetInput(input); err != nil {
			return err
		}
		perPeer := make([][]byte, nClients)
		for from := 0; from < nClients; from++ {
			if from == i || dead[uint32(from)] {
				continue
			}
			perPeer[from] = envelopes[from][i]
		}
		b.Publish(ctx, bus.Event{
			Kind:     bus.KindServerMessage,
			ClientID: uint32(i),
			Body:     &wire.ServerToClientWrapperMessage{MaskedInputRequest: &wire.MaskedInputRequest{EncryptedKeyShares: perPeer}},
			TraceID:  runID,
		})
	}
	if err := deliver(b, clients); err != nil {
		return err
	}
	aggregate := make([]uint64, vecLen)
	for _, m := range drain(&inbox) {
		if m.msg.MaskedInputResponse == nil {
			return fmt.Errorf("client %d: expected masked_input_response", m.from)
		}
		vec, err := secagg.UnpackSecAggVector(m.msg.MaskedInputResponse.Vectors["values"].EncodedVector, bound, vecLen)
		if err != nil {
			return err
		}
		for j, v := range vec.Elements() {
			aggregate[j] = (aggregate[j] + v) % bound
		}
	}

	// Round 3: nobody died after masked input, so the unmasking request
	// names no one and the clients answer with self-seed shares.
	for i := range clients {
		if dead[uint32(i)] {
			continue
		}
		b.Publish(ctx, bus.Event{
			Kind:     bus.KindServerMessage,
			ClientID: uint32(i),
			Body:     &wire.ServerToClientWrapperMessage{UnmaskingRequest: &wire.UnmaskingRequest{}},
			TraceID:  runID,
		})
	}
	if err := deliver(b, clients); err != nil {
		return err
	}
	prfShares := make([][]secagg.ShamirShare, nClients) // indexed by subject client
	for _, m := range drain(&inbox) {
		if m.msg.UnmaskingResponse == nil {
			return fmt.Errorf("client %d: expected unmasking_response", m.from)
		}
		for subject, entry := range m.msg.UnmaskingResponse.NoiseOrPrfKeyShares {
			if len(entry.PrfSKShare) > 0 {
				prfShares[subject] = append(prfShares[subject], secagg.ShamirShare{Data: entry.PrfSKShare})
			}
		}
	}

	// Unmask: pairwise masks canceled in the sum; subtract each survivor's
	// reconstructed self mask.
	sid := client.SessionIDFromPairs(pairs)
	for i := 0; i < nClients; i++ {
		if dead[uint32(i)] {
			continue
		}
		keyBytes, err := secagg.ShamirReconstruct(prfShares[i], threshold)
		if err != nil {
			return fmt.Errorf("reconstructing client %d self seed: %w", i, err)
		}
		selfKey, err := secagg.NewAesKey(keyBytes)
		if err != nil {
			return err
		}
		masks, err := secagg.MapOfMasks(nil, []secagg.AesKey{selfKey}, specs, sid, secagg.AesCtrPrngFactory{}, nil)
		if err != nil {
			return err
		}
		for j, v := range masks["values"].Elements() {
			aggregate[j] = (aggregate[j] + v) % bound
		}
	}

	want := make([]uint64, vecLen)
	for i := 0; i < nClients; i++ {
		if dead[uint32(i)] {
			continue
		}
		for j := range want {
			want[j] = (want[j] + inputs[i][j]) % bound
		}
	}
	for j := range want {
		if aggregate[j] != want[j] {
			return fmt.Errorf("aggregate mismatch at %d: got %d want %d", j, aggregate[j], want[j])
		}
	}

	for i, c := range clients {
		if !dead[uint32(i)] && !c.IsCompletedSuccessfully() {
			return fmt.Errorf("client %d ended in %s", i, c.StateName())
		}
	}
	logger.InfoJ("sim_done", map[string]any{"run_id": runID, "result": "ok", "sum0": aggregate[0]})
	fmt.Printf("aggregate of %d clients verified (%d elements, bound %d)\n", nClients-drop, vecLen, bound)
	return nil
}

// deliver drains the bus and hands each queued server message to its client.
func deliver(b *bus.Bus, clients []*client.SecAggClient) error {
	for {
		select {
		case ev := <-b.Subscribe():
			msg, ok := ev.Body.(*wire.ServerToClientWrapperMessage)
			if !ok {
				return fmt.Errorf("unexpected bus payload %T", ev.Body)
			}
			if err := clients[ev.ClientID].ReceiveMessage(msg); err != nil {
				return fmt.Errorf("client %d: %w", ev.ClientID, err)
			}
		default:
			return nil
		}
	}
}

func drain(inbox *[]clientMessage) []clientMessage {
	out := *inbox
	*inbox = nil
	return out
}
