package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/kyc-ledger/internal/domain"
	"github.com/dvloznov/kyc-ledger/internal/logger"
)

// Reconcile merges records that share a normalized client name into the
// first such record in insertion order and returns the number of records
// absorbed. There is no fuzzy matching and no deduplication of entries.
func (l *Ledger) Reconcile(ctx context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	log := logger.FromContext(ctx)

	records, err := l.loadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("ledger: reconcile: %w", err)
	}

	groups := make(map[string][]*domain.ClientRecord)
	var order []string
	for _, rec := range records {
		if rec.ClientInfo == nil || !rec.ClientInfo.HasName() {
			continue
		}
		name := domain.NormalizeName(rec.ClientInfo.ClientName)
		if _, seen := groups[name]; !seen {
			order = append(order, name)
		}
		groups[name] = append(groups[name], rec)
	}

	merges := 0
	for _, name := range order {
		members := groups[name]
		if len(members) < 2 {
			continue
		}

		primary := members[0]
		now := l.now()
		for _, other := range members[1:] {
			absorb(primary, other, now)
		}
		primary.UpdatedAt = now

		if err := l.store.Put(ctx, primary); err != nil {
			return merges, fmt.Errorf("ledger: reconcile %s: %w", primary.Key, err)
		}
		for _, other := range members[1:] {
			if err := l.store.Delete(ctx, other.Key); err != nil {
				return merges, fmt.Errorf("ledger: reconcile delete %s: %w", other.Key, err)
			}
			merges++
			log.Info().
				Str("primary", string(primary.Key)).
				Str("merged_from", string(other.Key)).
				Msg("Merged client records")
		}
	}

	return merges, nil
}

// absorb concatenates other into primary and records the merge.
func absorb(primary, other *domain.ClientRecord, now time.Time) {
	primary.Assets = append(primary.Assets, other.Assets...)
	primary.Liabilities = append(primary.Liabilities, other.Liabilities...)
	primary.History = append(primary.History, other.History...)
	primary.MergeHistory = append(primary.MergeHistory, other.MergeHistory...)
	primary.MergeHistory = append(primary.MergeHistory, domain.MergeRecord{
		MergedFrom:       other.Key,
		Timestamp:        now,
		AssetsCount:      len(other.Assets),
		LiabilitiesCount: len(other.Liabilities),
		EventsCount:      len(other.History),
	})
	if primary.ClientInfo != nil && other.ClientInfo != nil {
		fillMissing(primary.ClientInfo, other.ClientInfo)
	}
}

// fillMissing copies identifiers the primary lacks from the absorbed record.
func fillMissing(dst, src *domain.ClientInfo) {
	if domain.IsPlaceholderID(dst.ClientID) && !domain.IsPlaceholderID(src.ClientID) {
		dst.ClientID = src.ClientID
	}
	if dst.AccountNumber == "" {
		dst.AccountNumber = src.AccountNumber
	}
	if dst.TaxID == "" {
		dst.TaxID = src.TaxID
	}
}
