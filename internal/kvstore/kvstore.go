package kvstore

import (
	"context"
	"encoding/json"
	"sync"

	"tillclose/backend/internal/domain"
)

// RefundLedgerStore is the durable key-value collaborator behind the refund
// ledger. Implementations store the whole snapshot under one key per store.
type RefundLedgerStore interface {
	LoadRefundLedger(ctx context.Context, storeID string) (domain.RefundLedgerSnapshot, error)
	SaveRefundLedger(ctx context.Context, storeID string, snapshot domain.RefundLedgerSnapshot) error
}

// MemoryLedgerStore keeps encoded snapshots in process memory. Snapshots are
// round-tripped through JSON so callers never share maps with the store.
type MemoryLedgerStore struct {
	mu      sync.RWMutex
	payload map[string][]byte
}

func NewMemoryLedgerStore() *MemoryLedgerStore {
	return &MemoryLedgerStore{payload: make(map[string][]byte)}
}

func (s *MemoryLedgerStore) LoadRefundLedger(_ context.Context, storeID string) (domain.RefundLedgerSnapshot, error) {
	s.mu.RLock()
	raw, ok := s.payload[storeID]
	s.mu.RUnlock()
	if !ok {
		return emptySnapshot(), nil
	}
	return decodeSnapshot(raw)
}

func (s *MemoryLedgerStore) SaveRefundLedger(_ context.Context, storeID string, snapshot domain.RefundLedgerSnapshot) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.payload[storeID] = raw
	s.mu.Unlock()
	return nil
}

func emptySnapshot() domain.RefundLedgerSnapshot {
	return domain.RefundLedgerSnapshot{Entries: map[string]domain.RefundEntry{}}
}

func decodeSnapshot(raw []byte) (domain.RefundLedgerSnapshot, error) {
	var snapshot domain.RefundLedgerSnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return domain.RefundLedgerSnapshot{}, err
	}
	if snapshot.Entries == nil {
		snapshot.Entries = map[string]domain.RefundEntry{}
	}
	return snapshot, nil
}
