// Package testutil holds shared test doubles and fixtures.
package testutil

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/yieldledger/yieldledger/pkg/assets"
	"github.com/yieldledger/yieldledger/pkg/types"
)

// Addr builds a deterministic address from a single tag byte.
func Addr(tag byte) common.Address {
	var a common.Address
	a[common.AddressLength-1] = tag
	return a
}

// MockMover records settlement batches and simulates batch atomicity. When
// Err is set, Settle fails and records nothing.
type MockMover struct {
	mu      sync.Mutex
	Err     error
	batches [][]assets.Transfer
}

// Settle records the batch, or fails wholesale when Err is set.
func (m *MockMover) Settle(_ context.Context, transfers []assets.Transfer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}

	cp := make([]assets.Transfer, len(transfers))
	for i, tr := range transfers {
		cp[i] = assets.Transfer{
			Token:  tr.Token,
			From:   tr.From,
			To:     tr.To,
			Amount: new(big.Int).Set(tr.Amount),
		}
	}
	m.batches = append(m.batches, cp)
	return nil
}

// Batches returns all recorded settlement batches.
func (m *MockMover) Batches() [][]assets.Transfer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batches
}

// Net returns the net amount of token received by account across all
// recorded batches. Outgoing transfers count negative.
func (m *MockMover) Net(token, account common.Address) *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()

	net := new(big.Int)
	for _, batch := range m.batches {
		for _, tr := range batch {
			if tr.Token != token {
				continue
			}
			if tr.To == account {
				net.Add(net, tr.Amount)
			}
			if tr.From == account {
				net.Sub(net, tr.Amount)
			}
		}
	}
	return net
}

// SinkRecorder collects emitted events for assertions.
type SinkRecorder struct {
	mu     sync.Mutex
	events []*types.Event
}

// Emit records the event.
func (s *SinkRecorder) Emit(ev *types.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

// Events returns the recorded events in emission order.
func (s *SinkRecorder) Events() []*types.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events
}

// Kinds returns the recorded event kinds in emission order.
func (s *SinkRecorder) Kinds() []types.EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]types.EventKind, len(s.events))
	for i, ev := range s.events {
		kinds[i] = ev.Kind
	}
	return kinds
}
