package domain

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// LanguageInfo is the outcome of language detection.
type LanguageInfo struct {
	PrimaryLanguage string     `json:"primary_language"`
	LanguageCode    string     `json:"language_code"`
	Confidence      Confidence `json:"confidence"`
	OtherLanguages  []string   `json:"other_languages"`
	WritingSystem   string     `json:"writing_system,omitempty"`
}

// DefaultLanguage is assumed whenever detection cannot be trusted.
func DefaultLanguage() LanguageInfo {
	return LanguageInfo{
		PrimaryLanguage: "English",
		LanguageCode:    "en",
		Confidence:      ConfidenceLow,
		OtherLanguages:  []string{},
	}
}

// IsEnglish reports whether the document can skip translation.
func (l LanguageInfo) IsEnglish() bool {
	return l.LanguageCode == "en"
}

// OverviewDetail is one line item in a financial overview section.
type OverviewDetail struct {
	Description string          `json:"description"`
	Value       decimal.Decimal `json:"value"`
	Currency    string          `json:"currency,omitempty"`
}

// OverviewSection is the assets, liabilities or income block of one client.
type OverviewSection struct {
	Total    decimal.Decimal  `json:"total"`
	Currency string           `json:"currency,omitempty"`
	Details  []OverviewDetail `json:"details"`
}

// ClientOverview is the per-client payload of the financial overview stage.
type ClientOverview struct {
	Assets      OverviewSection `json:"assets"`
	Liabilities OverviewSection `json:"liabilities"`
	Income      OverviewSection `json:"income"`
}

// FinancialOverview maps client display names to their extracted data.
type FinancialOverview map[string]ClientOverview

// ClientNotFound is the error text of a summary for an unknown key.
const ClientNotFound = "Client not found"

// NetWorthSummary is the per-client net worth with its supporting breakdown.
type NetWorthSummary struct {
	ClientID           ClientKey                  `json:"client_id"`
	ClientName         string                     `json:"client_name,omitempty"`
	CalculationDate    civil.Date                 `json:"calculation_date"`
	TotalAssets        decimal.Decimal            `json:"total_assets"`
	TotalLiabilities   decimal.Decimal            `json:"total_liabilities"`
	NetWorth           decimal.Decimal            `json:"net_worth"`
	Currency           string                     `json:"currency,omitempty"`
	AssetBreakdown     map[string]decimal.Decimal `json:"asset_breakdown,omitempty"`
	LiabilityBreakdown map[string]decimal.Decimal `json:"liability_breakdown,omitempty"`
	DataCompleteness   string                     `json:"data_completeness,omitempty"`
	Recommendations    []string                   `json:"recommendations,omitempty"`
	Error              string                     `json:"error,omitempty"`
}

// NotFoundSummary is returned for keys the ledger has never seen.
func NotFoundSummary(key ClientKey, today civil.Date) NetWorthSummary {
	return NetWorthSummary{
		ClientID:         key,
		CalculationDate:  today,
		TotalAssets:      decimal.Zero,
		TotalLiabilities: decimal.Zero,
		NetWorth:         decimal.Zero,
		Error:            ClientNotFound,
	}
}

// Found distinguishes "no data" from "zero net worth".
func (s NetWorthSummary) Found() bool {
	return s.Error != ClientNotFound
}

// NetWorthReport aggregates the summaries of every client in one document.
type NetWorthReport struct {
	CombinedNetWorth   decimal.Decimal            `json:"combined_net_worth"`
	IndividualNetWorth map[string]NetWorthSummary `json:"individual_net_worth"`
}

// NewNetWorthReport sums the net worth of every found client.
func NewNetWorthReport(individual map[string]NetWorthSummary) *NetWorthReport {
	if individual == nil {
		individual = map[string]NetWorthSummary{}
	}
	combined := decimal.Zero
	for _, s := range individual {
		if s.Found() {
			combined = combined.Add(s.NetWorth)
		}
	}
	return &NetWorthReport{
		CombinedNetWorth:   combined,
		IndividualNetWorth: individual,
	}
}

// AnalysisStatus is the terminal state of a document analysis.
type AnalysisStatus string

const (
	StatusCompleted AnalysisStatus = "completed"
	StatusFailed    AnalysisStatus = "failed"
)

// DocumentAnalysisResult is returned for every analyzed document.
type DocumentAnalysisResult struct {
	RunID             string            `json:"run_id,omitempty"`
	DocumentName      string            `json:"document_name"`
	Status            AnalysisStatus    `json:"status"`
	Language          *LanguageInfo     `json:"language,omitempty"`
	DocumentType      DocumentCategory  `json:"document_type"`
	ClientInformation *ClientInfo       `json:"client_information"`
	FinancialData     FinancialOverview `json:"financial_data,omitempty"`
	NetWorth          *NetWorthReport   `json:"net_worth"`
	Warnings          []string          `json:"warnings,omitempty"`
	Error             string            `json:"error,omitempty"`
	ErrorType         string            `json:"error_type,omitempty"`
	StartedAt         time.Time         `json:"started_at"`
	CompletedAt       time.Time         `json:"completed_at"`
}

// Failed reports whether the analysis could not complete.
func (r DocumentAnalysisResult) Failed() bool {
	return r.Status == StatusFailed
}

// ClientSummary is a compact view of one ledger record.
type ClientSummary struct {
	ClientID           ClientKey       `json:"client_id"`
	ClientName         string          `json:"client_name,omitempty"`
	AssetsCount        int             `json:"assets_count"`
	LiabilitiesCount   int             `json:"liabilities_count"`
	DocumentsProcessed int             `json:"documents_processed"`
	MergesCount        int             `json:"merges_count"`
	TotalAssets        decimal.Decimal `json:"total_assets"`
	TotalLiabilities   decimal.Decimal `json:"total_liabilities"`
	NetWorth           decimal.Decimal `json:"net_worth"`
	LastUpdated        time.Time       `json:"last_updated"`
}

// Summarize builds the compact view of a record.
func Summarize(r *ClientRecord) ClientSummary {
	docs := 0
	for _, ev := range r.History {
		if ev.Kind == EventOverviewUpdate || ev.Kind == EventAssetUpdate || ev.Kind == EventLiabilityUpdate {
			docs++
		}
	}
	return ClientSummary{
		ClientID:           r.Key,
		ClientName:         r.Name(),
		AssetsCount:        len(r.Assets),
		LiabilitiesCount:   len(r.Liabilities),
		DocumentsProcessed: docs,
		MergesCount:        len(r.MergeHistory),
		TotalAssets:        r.TotalAssets(),
		TotalLiabilities:   r.TotalLiabilities(),
		NetWorth:           r.NetWorth(),
		LastUpdated:        r.LastUpdated(),
	}
}
