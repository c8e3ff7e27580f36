package gcsstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/dvloznov/kyc-ledger/internal/domain"
	"github.com/dvloznov/kyc-ledger/internal/ledger"
)

const (
	recordSuffix = ".json"
	// firstWrittenKey preserves insertion order across rewrites, which
	// reset the object's creation time.
	firstWrittenKey = "first-written"
)

// LedgerStore is a ledger.Store keeping one JSON object per client under
// "<prefix><escaped key>.json".
type LedgerStore struct {
	objs   objects
	prefix string
}

// NewLedgerStore creates a store in bucket under prefix.
func NewLedgerStore(client *storage.Client, bucket, prefix string) *LedgerStore {
	return newLedgerStore(bucketObjects{bkt: client.Bucket(bucket)}, prefix)
}

func newLedgerStore(objs objects, prefix string) *LedgerStore {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &LedgerStore{objs: objs, prefix: prefix}
}

func (s *LedgerStore) objectName(key domain.ClientKey) string {
	return s.prefix + url.PathEscape(string(key)) + recordSuffix
}

// Get implements ledger.Store.
func (s *LedgerStore) Get(ctx context.Context, key domain.ClientKey) (*domain.ClientRecord, error) {
	data, err := s.objs.Read(ctx, s.objectName(key))
	if errors.Is(err, errNotExist) {
		return nil, ledger.ErrClientNotFound
	}
	if err != nil {
		return nil, err
	}

	var rec domain.ClientRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode client record %q: %w", key, err)
	}
	return &rec, nil
}

// Put implements ledger.Store.
func (s *LedgerStore) Put(ctx context.Context, rec *domain.ClientRecord) error {
	if rec == nil || rec.Key == "" {
		return errors.New("record with a key is required")
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode client record %q: %w", rec.Key, err)
	}
	meta := map[string]string{firstWrittenKey: rec.CreatedAt.UTC().Format(time.RFC3339Nano)}
	return s.objs.Write(ctx, s.objectName(rec.Key), data, "application/json", meta)
}

// Delete implements ledger.Store.
func (s *LedgerStore) Delete(ctx context.Context, key domain.ClientKey) error {
	err := s.objs.Delete(ctx, s.objectName(key))
	if errors.Is(err, errNotExist) {
		return nil
	}
	return err
}

// ListKeys implements ledger.Store, ordering keys by first write.
func (s *LedgerStore) ListKeys(ctx context.Context) ([]domain.ClientKey, error) {
	infos, err := s.objs.List(ctx, s.prefix)
	if err != nil {
		return nil, err
	}

	type entry struct {
		key   domain.ClientKey
		first time.Time
	}
	entries := make([]entry, 0, len(infos))
	for _, info := range infos {
		name := strings.TrimPrefix(info.Name, s.prefix)
		if !strings.HasSuffix(name, recordSuffix) || strings.Contains(name, "/") {
			continue
		}
		key, err := url.PathUnescape(strings.TrimSuffix(name, recordSuffix))
		if err != nil {
			continue
		}
		first := info.Created
		if t, err := time.Parse(time.RFC3339Nano, info.Metadata[firstWrittenKey]); err == nil {
			first = t
		}
		entries = append(entries, entry{key: domain.ClientKey(key), first: first})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].first.Equal(entries[j].first) {
			return entries[i].first.Before(entries[j].first)
		}
		return entries[i].key < entries[j].key
	})
	keys := make([]domain.ClientKey, len(entries))
	for i, e := range entries {
		keys[i] = e.key
	}
	return keys, nil
}

var _ ledger.Store = (*LedgerStore)(nil)
