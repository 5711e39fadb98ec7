package proofstore

import (
	"context"
	"sync"
	"time"

	"github.com/compose-network/proof-orchestrator/x/prover"
)

var (
	_ Store  = (*Memory)(nil)
	_ Pruner = (*Memory)(nil)
)

type record struct {
	proof    []byte
	storedAt time.Time
}

// Memory implements an in-memory proof store; suitable for tests and
// single-instance deployments that can afford to reprove on restart.
type Memory struct {
	mu      sync.RWMutex
	records map[Key]record
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{records: make(map[Key]record)}
}

func (m *Memory) Get(_ context.Context, batch uint64, t prover.Type) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[Key{Batch: batch, Prover: t}]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(rec.proof))
	copy(out, rec.proof)
	return out, true, nil
}

func (m *Memory) Put(_ context.Context, batch uint64, t prover.Type, proof []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := Key{Batch: batch, Prover: t}
	if _, ok := m.records[key]; ok {
		return nil
	}
	stored := make([]byte, len(proof))
	copy(stored, proof)
	m.records[key] = record{proof: stored, storedAt: time.Now()}
	return nil
}

func (m *Memory) Delete(_ context.Context, batch uint64, t prover.Type) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.records, Key{Batch: batch, Prover: t})
	return nil
}

func (m *Memory) Keys(_ context.Context) ([]Key, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Key, 0, len(m.records))
	for k := range m.records {
		out = append(out, k)
	}
	return out, nil
}

func (m *Memory) PruneBelow(_ context.Context, batch uint64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pruned := 0
	for k := range m.records {
		if k.Batch < batch {
			delete(m.records, k)
			pruned++
		}
	}
	return pruned, nil
}
