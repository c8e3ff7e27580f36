package pipeline

// Defaults for document analysis.
const (
	// LanguageSampleRunes is how much of a document language detection sees.
	LanguageSampleRunes = 1000

	// DefaultCurrency is reported by the asset and liability stages when
	// their output cannot be decoded.
	DefaultCurrency = "USD"

	// MaxErrorMessageLen bounds error text stored with failed runs.
	MaxErrorMessageLen = 2000
)

// Stage names, used in logs, run records and entry source metadata.
const (
	StageDetectLanguage = "detect_language"
	StageTranslate      = "translate"
	StageIdentifyClient = "identify_client"
	StageClassify       = "classify"
	StageOverview       = "financial_overview"
	StageLedgerUpdate   = "ledger_update"
	StageNetWorth       = "net_worth"
	StageAssets         = "assets"
	StageLiabilities    = "liabilities"
	StageCurrencies     = "normalize_currencies"
)
