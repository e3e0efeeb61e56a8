package graph

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/dustline/internal/adapter"
	"github.com/dustline/internal/types"
)

// memorySource is a TransactionSource over an in-memory graph
type memorySource struct {
	mu      sync.Mutex
	txs     map[string]*types.TransactionRecord
	history map[string][]string
	failing map[string]bool
	calls   map[string]int
}

func newMemorySource() *memorySource {
	return &memorySource{
		txs:     map[string]*types.TransactionRecord{},
		history: map[string][]string{},
		failing: map[string]bool{},
		calls:   map[string]int{},
	}
}

func (s *memorySource) GetTransaction(_ context.Context, txid string) (*types.TransactionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[txid]++
	if s.failing[txid] {
		return nil, adapter.NewSourceError("memory", "GetTransaction", adapter.ErrProviderUnavailable, nil)
	}
	rec, ok := s.txs[txid]
	if !ok {
		return nil, adapter.ErrNotFound
	}
	return rec, nil
}

func (s *memorySource) GetHistory(_ context.Context, address string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing["history:"+address] {
		return nil, adapter.ErrProviderUnavailable
	}
	return s.history[address], nil
}

func (s *memorySource) callCount(txid string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[txid]
}

// add stores a transaction and links each input to its funding output
func (s *memorySource) add(txid string, ins []types.TxInput, outs []types.TxOutput) {
	s.txs[txid] = &types.TransactionRecord{TxID: txid, Inputs: ins, Outputs: outs}
	for _, in := range ins {
		if prev, ok := s.txs[in.PrevTxID]; ok && int(in.PrevVout) < len(prev.Outputs) {
			prev.Outputs[in.PrevVout].SpentByID = txid
		}
	}
}

func in(addr, prev string, vout uint32, amount int64) types.TxInput {
	return types.TxInput{Address: addr, PrevTxID: prev, PrevVout: vout, Amount: amount, Sequence: 0xFFFFFFFF}
}

func out(addr string, amount int64) types.TxOutput {
	return types.TxOutput{Address: addr, Amount: amount}
}

// randomGraph builds a forward-linked random graph reachable from "origin"
func randomGraph(seed int64, size int) *memorySource {
	rng := rand.New(rand.NewSource(seed))
	s := newMemorySource()

	s.add("tx0000", []types.TxInput{{Address: "origin", Amount: 100_000, PrevTxID: "funding"}},
		[]types.TxOutput{out("a0-0", 50_000), out("a0-1", 49_000)})
	s.history["origin"] = []string{"tx0000"}

	ids := []string{"tx0000"}
	for i := 1; i < size; i++ {
		txid := fmt.Sprintf("tx%04d", i)
		var ins []types.TxInput
		nIn := 1 + rng.Intn(3)
		for j := 0; j < nIn; j++ {
			prev := ids[rng.Intn(len(ids))]
			vout := uint32(rng.Intn(len(s.txs[prev].Outputs)))
			if s.txs[prev].Outputs[vout].SpentByID != "" {
				continue
			}
			ins = append(ins, in(s.txs[prev].Outputs[vout].Address, prev, vout, 1000))
		}
		if len(ins) == 0 {
			continue
		}
		nOut := 1 + rng.Intn(6)
		outs := make([]types.TxOutput, nOut)
		for k := range outs {
			outs[k] = out(fmt.Sprintf("a%d-%d", i, k), int64(1000+rng.Intn(5000)))
		}
		s.add(txid, ins, outs)
		ids = append(ids, txid)
		if rng.Intn(4) == 0 {
			s.history["origin"] = append(s.history["origin"], txid)
		}
	}
	return s
}
