// Package config loads runtime settings from the environment (optionally seeded
// from a .env file) and validates that required credentials are present.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrMissingConfig is wrapped by every validation failure so callers can treat
// configuration problems as fatal.
var ErrMissingConfig = errors.New("missing required configuration")

// Ledger backends.
const (
	BackendMemory = "memory"
	BackendGCS    = "gcs"
	BackendSQLite = "sqlite"
)

const (
	DefaultModel             = "gemini-2.5-flash"
	DefaultExtractionTimeout = 60 * time.Second
	DefaultWorkerCount       = 5
	DefaultTargetCurrency    = "USD"
	DefaultLedgerPrefix      = "clients/"
	DefaultResultsPrefix     = "results/"
)

// Config holds every setting the binaries need.
type Config struct {
	// Extraction service
	GeminiAPIKey      string
	VertexProject     string
	VertexLocation    string
	Model             string
	ExtractionTimeout time.Duration
	ParallelStages    bool

	// Ledger persistence
	LedgerBackend string
	LedgerBucket  string
	LedgerPrefix  string
	SQLitePath    string

	// Documents and results
	DocumentsBucket string
	ResultsBucket   string
	ResultsPrefix   string

	// Analysis run bookkeeping (optional)
	BigQueryProject string
	BigQueryDataset string

	// Notion sync (optional)
	NotionToken      string
	NotionDatabaseID string

	// HTTP API
	Port     string
	APIToken string

	WorkerCount    int
	TargetCurrency string
	LogLevel       string
	LogJSON        bool
}

// ConfigError lists every missing or invalid variable.
type ConfigError struct {
	Missing []string
	Invalid []string
}

func (e *ConfigError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid: "+strings.Join(e.Invalid, ", "))
	}
	return fmt.Sprintf("%s (%s)", ErrMissingConfig.Error(), strings.Join(parts, "; "))
}

func (e *ConfigError) Unwrap() error { return ErrMissingConfig }

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from an arbitrary variable source and validates it.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}

	cfg := &Config{
		GeminiAPIKey:     get("GEMINI_API_KEY", ""),
		VertexProject:    get("GOOGLE_CLOUD_PROJECT", ""),
		VertexLocation:   get("GOOGLE_CLOUD_LOCATION", "us-central1"),
		Model:            get("KYC_MODEL", DefaultModel),
		LedgerBackend:    strings.ToLower(get("LEDGER_BACKEND", BackendMemory)),
		LedgerBucket:     get("LEDGER_BUCKET", ""),
		LedgerPrefix:     get("LEDGER_PREFIX", DefaultLedgerPrefix),
		SQLitePath:       get("SQLITE_PATH", "kyc-ledger.sqlite"),
		DocumentsBucket:  get("DOCUMENTS_BUCKET", ""),
		ResultsBucket:    get("RESULTS_BUCKET", ""),
		ResultsPrefix:    get("RESULTS_PREFIX", DefaultResultsPrefix),
		BigQueryProject:  get("BIGQUERY_PROJECT", ""),
		BigQueryDataset:  get("BIGQUERY_DATASET", "kyc"),
		NotionToken:      get("NOTION_TOKEN", ""),
		NotionDatabaseID: get("NOTION_DATABASE_ID", ""),
		Port:             get("PORT", "8080"),
		APIToken:         get("API_TOKEN", ""),
		TargetCurrency:   strings.ToUpper(get("TARGET_CURRENCY", DefaultTargetCurrency)),
		LogLevel:         get("LOG_LEVEL", "info"),
	}

	cerr := &ConfigError{}

	cfg.ExtractionTimeout = DefaultExtractionTimeout
	if raw := get("EXTRACTION_TIMEOUT", ""); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			cerr.Invalid = append(cerr.Invalid, "EXTRACTION_TIMEOUT")
		} else {
			cfg.ExtractionTimeout = d
		}
	}

	cfg.WorkerCount = DefaultWorkerCount
	if raw := get("WORKER_COUNT", ""); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			cerr.Invalid = append(cerr.Invalid, "WORKER_COUNT")
		} else {
			cfg.WorkerCount = n
		}
	}

	cfg.ParallelStages = parseBool(get("PARALLEL_STAGES", "false"))
	cfg.LogJSON = parseBool(get("LOG_JSON", "false"))

	if len(cerr.Invalid) > 0 {
		return nil, cerr
	}
	return cfg, nil
}

// Validate checks the settings required by the extraction service and the
// selected ledger backend.
func (c *Config) Validate() error {
	cerr := &ConfigError{}
	if c.GeminiAPIKey == "" && c.VertexProject == "" {
		cerr.Missing = append(cerr.Missing, "GEMINI_API_KEY or GOOGLE_CLOUD_PROJECT")
	}
	c.checkLedger(cerr)
	return cerr.orNil()
}

// ValidateLedger checks only the ledger backend settings, for commands that
// never call the extraction service.
func (c *Config) ValidateLedger() error {
	cerr := &ConfigError{}
	c.checkLedger(cerr)
	return cerr.orNil()
}

func (c *Config) checkLedger(cerr *ConfigError) {
	switch c.LedgerBackend {
	case BackendMemory:
	case BackendGCS:
		if c.LedgerBucket == "" {
			cerr.Missing = append(cerr.Missing, "LEDGER_BUCKET")
		}
	case BackendSQLite:
		if c.SQLitePath == "" {
			cerr.Missing = append(cerr.Missing, "SQLITE_PATH")
		}
	default:
		cerr.Invalid = append(cerr.Invalid, "LEDGER_BACKEND")
	}
}

func (e *ConfigError) orNil() error {
	if len(e.Missing) > 0 || len(e.Invalid) > 0 {
		return e
	}
	return nil
}

// RequireDocuments checks the settings used by the document worker.
func (c *Config) RequireDocuments() error {
	cerr := &ConfigError{}
	if c.DocumentsBucket == "" {
		cerr.Missing = append(cerr.Missing, "DOCUMENTS_BUCKET")
	}
	if c.ResultsBucket == "" {
		cerr.Missing = append(cerr.Missing, "RESULTS_BUCKET")
	}
	return cerr.orNil()
}

// RequireNotion checks the settings used by the Notion sync.
func (c *Config) RequireNotion() error {
	cerr := &ConfigError{}
	if c.NotionToken == "" {
		cerr.Missing = append(cerr.Missing, "NOTION_TOKEN")
	}
	if c.NotionDatabaseID == "" {
		cerr.Missing = append(cerr.Missing, "NOTION_DATABASE_ID")
	}
	return cerr.orNil()
}

// RecordsRuns reports whether analysis runs should be written to BigQuery.
func (c *Config) RecordsRuns() bool {
	return c.BigQueryProject != ""
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(s)
	return err == nil && b
}
