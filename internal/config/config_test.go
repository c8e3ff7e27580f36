package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestFromLookup_Defaults(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(map[string]string{"GEMINI_API_KEY": "k"}))
	require.NoError(t, err)

	assert.Equal(t, DefaultModel, cfg.Model)
	assert.Equal(t, BackendMemory, cfg.LedgerBackend)
	assert.Equal(t, DefaultExtractionTimeout, cfg.ExtractionTimeout)
	assert.Equal(t, DefaultWorkerCount, cfg.WorkerCount)
	assert.Equal(t, "USD", cfg.TargetCurrency)
	assert.False(t, cfg.ParallelStages)
	assert.NoError(t, cfg.Validate())
}

func TestFromLookup_Overrides(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(map[string]string{
		"GEMINI_API_KEY":     "k",
		"EXTRACTION_TIMEOUT": "15s",
		"WORKER_COUNT":       "2",
		"PARALLEL_STAGES":    "true",
		"TARGET_CURRENCY":    "chf",
		"LEDGER_BACKEND":     "SQLite",
	}))
	require.NoError(t, err)

	assert.Equal(t, 15*time.Second, cfg.ExtractionTimeout)
	assert.Equal(t, 2, cfg.WorkerCount)
	assert.True(t, cfg.ParallelStages)
	assert.Equal(t, "CHF", cfg.TargetCurrency)
	assert.Equal(t, BackendSQLite, cfg.LedgerBackend)
}

func TestFromLookup_InvalidValues(t *testing.T) {
	_, err := FromLookup(lookupFrom(map[string]string{
		"EXTRACTION_TIMEOUT": "soon",
		"WORKER_COUNT":       "-1",
	}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingConfig))

	var cerr *ConfigError
	require.True(t, errors.As(err, &cerr))
	assert.ElementsMatch(t, []string{"EXTRACTION_TIMEOUT", "WORKER_COUNT"}, cerr.Invalid)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		env         map[string]string
		wantMissing []string
		wantInvalid []string
	}{
		{
			name:        "no credentials",
			env:         map[string]string{},
			wantMissing: []string{"GEMINI_API_KEY or GOOGLE_CLOUD_PROJECT"},
		},
		{
			name: "vertex project is enough",
			env:  map[string]string{"GOOGLE_CLOUD_PROJECT": "p"},
		},
		{
			name:        "gcs backend needs a bucket",
			env:         map[string]string{"GEMINI_API_KEY": "k", "LEDGER_BACKEND": "gcs"},
			wantMissing: []string{"LEDGER_BUCKET"},
		},
		{
			name:        "unknown backend",
			env:         map[string]string{"GEMINI_API_KEY": "k", "LEDGER_BACKEND": "redis"},
			wantInvalid: []string{"LEDGER_BACKEND"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := FromLookup(lookupFrom(tt.env))
			require.NoError(t, err)

			err = cfg.Validate()
			if tt.wantMissing == nil && tt.wantInvalid == nil {
				assert.NoError(t, err)
				return
			}

			var cerr *ConfigError
			require.True(t, errors.As(err, &cerr))
			assert.Equal(t, tt.wantMissing, cerr.Missing)
			assert.Equal(t, tt.wantInvalid, cerr.Invalid)
			assert.Contains(t, err.Error(), "missing required configuration")
		})
	}
}

func TestRequireDocuments(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(map[string]string{"DOCUMENTS_BUCKET": "docs"}))
	require.NoError(t, err)

	err = cfg.RequireDocuments()
	var cerr *ConfigError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, []string{"RESULTS_BUCKET"}, cerr.Missing)
}

func TestValidateLedger_IgnoresCredentials(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(map[string]string{"LEDGER_BACKEND": "sqlite", "SQLITE_PATH": "/tmp/k.db"}))
	require.NoError(t, err)

	assert.NoError(t, cfg.ValidateLedger())
	assert.Error(t, cfg.Validate())
}

func TestRequireNotion(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(map[string]string{"NOTION_TOKEN": "secret_x"}))
	require.NoError(t, err)

	var cerr *ConfigError
	require.True(t, errors.As(cfg.RequireNotion(), &cerr))
	assert.Equal(t, []string{"NOTION_DATABASE_ID"}, cerr.Missing)
}

func TestFromLookup_HTTPSettings(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(map[string]string{"API_TOKEN": " t0k "}))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "t0k", cfg.APIToken)
}
