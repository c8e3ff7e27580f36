package ledger

import (
	"context"
	"errors"
	"sync"

	"github.com/dvloznov/kyc-ledger/internal/domain"
)

// ErrClientNotFound is returned by stores and the ledger for unknown keys.
var ErrClientNotFound = errors.New("client not found")

// Store persists client records. Implementations must return copies so that
// callers never share memory with stored state, and must list keys in the
// order they were first written.
type Store interface {
	// Get returns the record for key or ErrClientNotFound.
	Get(ctx context.Context, key domain.ClientKey) (*domain.ClientRecord, error)

	// Put creates or replaces the record stored under rec.Key.
	Put(ctx context.Context, rec *domain.ClientRecord) error

	// Delete removes key. Deleting an unknown key is not an error.
	Delete(ctx context.Context, key domain.ClientKey) error

	// ListKeys returns every key in insertion order.
	ListKeys(ctx context.Context) ([]domain.ClientKey, error)
}

// MemoryStore is an in-memory Store. It is safe for concurrent use.
// Data is lost on restart - use a GCS or SQLite store for persistence.
type MemoryStore struct {
	mu      sync.RWMutex
	order   []domain.ClientKey
	records map[domain.ClientKey]*domain.ClientRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[domain.ClientKey]*domain.ClientRecord),
	}
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, key domain.ClientKey) (*domain.ClientRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[key]
	if !ok {
		return nil, ErrClientNotFound
	}
	return rec.Clone(), nil
}

// Put implements Store.
func (s *MemoryStore) Put(ctx context.Context, rec *domain.ClientRecord) error {
	if rec == nil || rec.Key == "" {
		return errors.New("record with a key is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.Key]; !exists {
		s.order = append(s.order, rec.Key)
	}
	s.records[rec.Key] = rec.Clone()
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, key domain.ClientKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[key]; !exists {
		return nil
	}
	delete(s.records, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// ListKeys implements Store.
func (s *MemoryStore) ListKeys(ctx context.Context) ([]domain.ClientKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]domain.ClientKey(nil), s.order...), nil
}

var _ Store = (*MemoryStore)(nil)
