package pipeline

import (
	"github.com/shopspring/decimal"
)

// ExtractedItem is one line item from the asset or liability stage.
type ExtractedItem struct {
	Description  string           `json:"description"`
	Value        decimal.Decimal  `json:"value"`
	Type         string           `json:"type,omitempty"`
	Details      string           `json:"details,omitempty"`
	InterestRate *decimal.Decimal `json:"interest_rate,omitempty"`
	Term         string           `json:"term,omitempty"`
}

// AssetExtraction is the output of the asset stage.
type AssetExtraction struct {
	Total         decimal.Decimal            `json:"total_assets_value"`
	Currency      string                     `json:"currency"`
	ValuationDate string                     `json:"valuation_date,omitempty"`
	Items         []ExtractedItem            `json:"assets"`
	Subtotals     map[string]decimal.Decimal `json:"subtotals,omitempty"`
}

// LiabilityExtraction is the output of the liability stage.
type LiabilityExtraction struct {
	Total         decimal.Decimal            `json:"total_liabilities_value"`
	Currency      string                     `json:"currency"`
	StatementDate string                     `json:"statement_date,omitempty"`
	Items         []ExtractedItem            `json:"liabilities"`
	Subtotals     map[string]decimal.Decimal `json:"subtotals,omitempty"`
}

// NormalizedValue is one converted amount.
type NormalizedValue struct {
	OriginalValue       string           `json:"original_value"`
	OriginalCurrency    string           `json:"original_currency,omitempty"`
	NormalizedValue     decimal.Decimal  `json:"normalized_value"`
	TargetCurrency      string           `json:"target_currency"`
	ExchangeRateApplied *decimal.Decimal `json:"exchange_rate_applied,omitempty"`
	Confidence          string           `json:"confidence,omitempty"`
}

// CurrencyNormalization is the output of the currency stage.
type CurrencyNormalization struct {
	Values         []NormalizedValue `json:"normalized_values"`
	TotalInTarget  decimal.Decimal   `json:"total_value_in_target_currency"`
	TargetCurrency string            `json:"target_currency"`
}

func defaultAssetExtraction() AssetExtraction {
	return AssetExtraction{Total: decimal.Zero, Currency: DefaultCurrency, Items: []ExtractedItem{}}
}

func defaultLiabilityExtraction() LiabilityExtraction {
	return LiabilityExtraction{Total: decimal.Zero, Currency: DefaultCurrency, Items: []ExtractedItem{}}
}

func defaultCurrencyNormalization(target string) CurrencyNormalization {
	return CurrencyNormalization{Values: []NormalizedValue{}, TotalInTarget: decimal.Zero, TargetCurrency: target}
}
