package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Uncategorized tags entries whose document type is not a known category.
const Uncategorized = "Uncategorized"

// SourceRef records where an entry came from.
type SourceRef struct {
	DocumentName string    `json:"document_name,omitempty"`
	Stage        string    `json:"stage,omitempty"`
	ExtractedAt  time.Time `json:"extracted_at,omitempty"`
}

// Entry is one monetary line item held by a client record.
type Entry struct {
	Description string          `json:"description"`
	Value       decimal.Decimal `json:"value"`
	Category    string          `json:"category,omitempty"`
	Currency    string          `json:"currency,omitempty"`
	Source      *SourceRef      `json:"source,omitempty"`
}

// AssetEntry values are stored as extracted, sign included. A negative asset
// (an overdrawn account, a revaluation) lowers net worth.
type AssetEntry struct {
	Entry
}

// LiabilityEntry values are always non-negative.
type LiabilityEntry struct {
	Entry
}

// NewAssetEntry builds an asset line item.
func NewAssetEntry(description string, value decimal.Decimal, category, currency string) AssetEntry {
	return AssetEntry{Entry{
		Description: description,
		Value:       value,
		Category:    category,
		Currency:    currency,
	}}
}

// NewLiabilityEntry builds a liability line item holding the absolute value.
func NewLiabilityEntry(description string, value decimal.Decimal, category, currency string) LiabilityEntry {
	return LiabilityEntry{Entry{
		Description: description,
		Value:       value.Abs(),
		Category:    category,
		Currency:    currency,
	}}
}

// UnmarshalJSON keeps imported liabilities non-negative.
func (l *LiabilityEntry) UnmarshalJSON(data []byte) error {
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return err
	}
	e.Value = e.Value.Abs()
	l.Entry = e
	return nil
}

// WithSource returns a copy of the asset tagged with its origin.
func (a AssetEntry) WithSource(src SourceRef) AssetEntry {
	a.Source = &src
	return a
}

// WithSource returns a copy of the liability tagged with its origin.
func (l LiabilityEntry) WithSource(src SourceRef) LiabilityEntry {
	l.Source = &src
	return l
}

func (e Entry) clone() Entry {
	if e.Source != nil {
		src := *e.Source
		e.Source = &src
	}
	return e
}
