// Package ledger owns every client record accumulated across documents.
//
// Writes to one client key are serialized; whole-ledger operations
// (reconciliation, import, export) exclude all other writers. Entries are
// only ever appended: processing the same document twice doubles its totals.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/kyc-ledger/internal/domain"
)

// EntryKind selects which list MergeClientData appends to.
type EntryKind string

const (
	KindAssets      EntryKind = "assets"
	KindLiabilities EntryKind = "liabilities"
)

// Ledger is the owned collection of client records.
type Ledger struct {
	store Store
	mu    sync.RWMutex
	keys  *keyedMutex
	now   func() time.Time
}

// Option customizes a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New creates a ledger over store. A nil store means an in-memory ledger.
func New(store Store, opts ...Option) *Ledger {
	if store == nil {
		store = NewMemoryStore()
	}
	l := &Ledger{
		store: store,
		keys:  newKeyedMutex(),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Now returns the ledger's clock reading.
func (l *Ledger) Now() time.Time {
	return l.now()
}

// Update loads (or creates) the record for key, applies fn and writes it back
// while holding the key's lock. It returns a copy of the stored record.
func (l *Ledger) Update(ctx context.Context, key domain.ClientKey, fn func(rec *domain.ClientRecord) error) (*domain.ClientRecord, error) {
	if key == "" {
		return nil, errors.New("ledger: client key is required")
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	unlock := l.keys.Lock(key)
	defer unlock()

	now := l.now()
	rec, err := l.store.Get(ctx, key)
	switch {
	case errors.Is(err, ErrClientNotFound):
		rec = domain.NewClientRecord(key, now)
	case err != nil:
		return nil, fmt.Errorf("ledger: loading %s: %w", key, err)
	}

	if err := fn(rec); err != nil {
		return nil, err
	}
	rec.UpdatedAt = now

	if err := l.store.Put(ctx, rec); err != nil {
		return nil, fmt.Errorf("ledger: storing %s: %w", key, err)
	}
	return rec.Clone(), nil
}

// MergeClientData appends entries to the asset or liability list of key,
// creating the record when absent. Liability values are stored as absolute
// values.
func (l *Ledger) MergeClientData(ctx context.Context, key domain.ClientKey, kind EntryKind, entries []domain.Entry) error {
	switch kind {
	case KindAssets, KindLiabilities:
	default:
		return fmt.Errorf("ledger: unknown entry kind %q", kind)
	}

	_, err := l.Update(ctx, key, func(rec *domain.ClientRecord) error {
		for _, e := range entries {
			if kind == KindAssets {
				a := domain.NewAssetEntry(e.Description, e.Value, e.Category, e.Currency)
				a.Source = e.Source
				rec.Assets = append(rec.Assets, a)
				continue
			}
			li := domain.NewLiabilityEntry(e.Description, e.Value, e.Category, e.Currency)
			li.Source = e.Source
			rec.Liabilities = append(rec.Liabilities, li)
		}
		return nil
	})
	return err
}

// RecordEvent appends a processing history entry to key.
func (l *Ledger) RecordEvent(ctx context.Context, key domain.ClientKey, kind domain.EventKind, metadata map[string]string) error {
	_, err := l.Update(ctx, key, func(rec *domain.ClientRecord) error {
		rec.History = append(rec.History, domain.NewProcessingEvent(kind, l.now(), metadata))
		return nil
	})
	return err
}

// SetClientInfo attaches identity information to key.
func (l *Ledger) SetClientInfo(ctx context.Context, key domain.ClientKey, info domain.ClientInfo) error {
	_, err := l.Update(ctx, key, func(rec *domain.ClientRecord) error {
		if info.NormalizedName == "" && info.ClientName != "" {
			info.NormalizedName = domain.NormalizeName(info.ClientName)
		}
		rec.ClientInfo = &info
		return nil
	})
	return err
}

// Get returns a copy of the record for key, or ErrClientNotFound.
func (l *Ledger) Get(ctx context.Context, key domain.ClientKey) (*domain.ClientRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rec, err := l.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrClientNotFound) {
			return nil, ErrClientNotFound
		}
		return nil, fmt.Errorf("ledger: loading %s: %w", key, err)
	}
	return rec, nil
}

// Keys lists every client key in insertion order.
func (l *Ledger) Keys(ctx context.Context) ([]domain.ClientKey, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	keys, err := l.store.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger: listing keys: %w", err)
	}
	return keys, nil
}

// Summary returns the compact view of one client.
func (l *Ledger) Summary(ctx context.Context, key domain.ClientKey) (domain.ClientSummary, error) {
	rec, err := l.Get(ctx, key)
	if err != nil {
		return domain.ClientSummary{}, err
	}
	return domain.Summarize(rec), nil
}

// Summaries returns the compact view of every client in insertion order.
func (l *Ledger) Summaries(ctx context.Context) ([]domain.ClientSummary, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	records, err := l.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ClientSummary, 0, len(records))
	for _, rec := range records {
		out = append(out, domain.Summarize(rec))
	}
	return out, nil
}

// loadAll reads every record; callers hold l.mu.
func (l *Ledger) loadAll(ctx context.Context) ([]*domain.ClientRecord, error) {
	keys, err := l.store.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger: listing keys: %w", err)
	}
	records := make([]*domain.ClientRecord, 0, len(keys))
	for _, key := range keys {
		rec, err := l.store.Get(ctx, key)
		if errors.Is(err, ErrClientNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("ledger: loading %s: %w", key, err)
		}
		records = append(records, rec)
	}
	return records, nil
}
