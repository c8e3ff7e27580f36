package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventKind names a processing history entry.
type EventKind string

const (
	EventOverviewUpdate  EventKind = "overview_update"
	EventAssetUpdate     EventKind = "asset_update"
	EventLiabilityUpdate EventKind = "liability_update"
	EventClientInfo      EventKind = "client_info"
)

// ProcessingEvent is one entry in a client's processing history.
type ProcessingEvent struct {
	ID        string            `json:"id"`
	Kind      EventKind         `json:"kind"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// NewProcessingEvent stamps a new history entry.
func NewProcessingEvent(kind EventKind, at time.Time, metadata map[string]string) ProcessingEvent {
	return ProcessingEvent{
		ID:        uuid.NewString(),
		Kind:      kind,
		Timestamp: at,
		Metadata:  copyStrings(metadata),
	}
}

// MergeRecord documents one record absorbed during reconciliation.
type MergeRecord struct {
	MergedFrom       ClientKey `json:"merged_from_id"`
	Timestamp        time.Time `json:"timestamp"`
	AssetsCount      int       `json:"assets_count"`
	LiabilitiesCount int       `json:"liabilities_count"`
	EventsCount      int       `json:"events_count"`
}

// ClientRecord is everything the ledger knows about one client.
type ClientRecord struct {
	Key          ClientKey         `json:"client_id"`
	ClientInfo   *ClientInfo       `json:"client_info,omitempty"`
	Assets       []AssetEntry      `json:"assets"`
	Liabilities  []LiabilityEntry  `json:"liabilities"`
	History      []ProcessingEvent `json:"history"`
	MergeHistory []MergeRecord     `json:"merge_history,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// NewClientRecord creates an empty record for key.
func NewClientRecord(key ClientKey, now time.Time) *ClientRecord {
	return &ClientRecord{
		Key:         key,
		Assets:      []AssetEntry{},
		Liabilities: []LiabilityEntry{},
		History:     []ProcessingEvent{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Name returns the client's display name, if known.
func (r *ClientRecord) Name() string {
	if r.ClientInfo == nil {
		return ""
	}
	return r.ClientInfo.ClientName
}

// TotalAssets sums every asset value.
func (r *ClientRecord) TotalAssets() decimal.Decimal {
	total := decimal.Zero
	for _, a := range r.Assets {
		total = total.Add(a.Value)
	}
	return total
}

// TotalLiabilities sums every liability value.
func (r *ClientRecord) TotalLiabilities() decimal.Decimal {
	total := decimal.Zero
	for _, l := range r.Liabilities {
		total = total.Add(l.Value)
	}
	return total
}

// NetWorth is TotalAssets minus TotalLiabilities.
func (r *ClientRecord) NetWorth() decimal.Decimal {
	return r.TotalAssets().Sub(r.TotalLiabilities())
}

// Clone returns a deep copy so callers never share slices with the store.
func (r *ClientRecord) Clone() *ClientRecord {
	if r == nil {
		return nil
	}
	out := *r
	if r.ClientInfo != nil {
		info := *r.ClientInfo
		out.ClientInfo = &info
	}
	out.Assets = make([]AssetEntry, len(r.Assets))
	for i, a := range r.Assets {
		out.Assets[i] = AssetEntry{a.clone()}
	}
	out.Liabilities = make([]LiabilityEntry, len(r.Liabilities))
	for i, l := range r.Liabilities {
		out.Liabilities[i] = LiabilityEntry{l.clone()}
	}
	out.History = make([]ProcessingEvent, len(r.History))
	for i, ev := range r.History {
		ev.Metadata = copyStrings(ev.Metadata)
		out.History[i] = ev
	}
	if r.MergeHistory != nil {
		out.MergeHistory = append([]MergeRecord(nil), r.MergeHistory...)
	}
	return &out
}

// LastUpdated is the most recent of UpdatedAt and any history timestamp.
func (r *ClientRecord) LastUpdated() time.Time {
	last := r.UpdatedAt
	for _, ev := range r.History {
		if ev.Timestamp.After(last) {
			last = ev.Timestamp
		}
	}
	return last
}

func copyStrings(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
