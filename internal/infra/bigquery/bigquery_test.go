package bigquery

import (
	"errors"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/dvloznov/kyc-ledger/internal/domain"
	"github.com/dvloznov/kyc-ledger/internal/pipeline"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename string
		valid    bool
		version  int
		name     string
	}{
		{"0001_init_schema_migrations.sql", true, 1, "init_schema_migrations"},
		{"0012_create_analysis_runs.sql", true, 12, "create_analysis_runs"},
		{"001_invalid.sql", false, 0, ""},       // wrong number format
		{"0001_test", false, 0, ""},             // missing .sql
		{"0001.sql", false, 0, ""},              // missing name
		{"invalid_0001_test.sql", false, 0, ""}, // wrong order
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, ok := ParseMigrationFilename(tt.filename)
			if ok != tt.valid {
				t.Fatalf("ParseMigrationFilename(%q) ok = %v, want %v", tt.filename, ok, tt.valid)
			}
			if version != tt.version || name != tt.name {
				t.Errorf("ParseMigrationFilename(%q) = %d, %q; want %d, %q", tt.filename, version, name, tt.version, tt.name)
			}
		})
	}
}

func TestReadMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"0002_runs.sql":   {Data: []byte("CREATE TABLE `{{PROJECT_ID}}.{{DATASET_ID}}.runs` (id STRING);")},
		"0001_init.sql":   {Data: []byte("SELECT 1;")},
		"README.md":       {Data: []byte("docs")},
		"nested/0003.sql": {Data: []byte("ignored")},
	}

	migrations, err := ReadMigrations(fsys, "proj", "kyc")
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "runs", migrations[1].Name)
	assert.Equal(t, "CREATE TABLE `proj.kyc.runs` (id STRING);", migrations[1].SQL)

	// Checksums ignore the substituted project and dataset.
	other, err := ReadMigrations(fsys, "other", "ds")
	require.NoError(t, err)
	assert.Equal(t, migrations[1].Checksum, other[1].Checksum)
	assert.NotEqual(t, migrations[0].Checksum, migrations[1].Checksum)
}

func TestReadMigrations_DuplicateVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"0001_a.sql": {Data: []byte("SELECT 1;")},
		"0001_b.sql": {Data: []byte("SELECT 2;")},
	}
	_, err := ReadMigrations(fsys, "p", "d")
	assert.Error(t, err)
}

func TestEmbeddedMigrations(t *testing.T) {
	migrations, err := ReadMigrations(EmbeddedMigrations(), "proj", "kyc")
	require.NoError(t, err)
	require.Len(t, migrations, 3)
	for i, m := range migrations {
		assert.Equal(t, i+1, m.Version)
		assert.NotContains(t, m.SQL, "{{")
	}
	assert.Contains(t, migrations[1].SQL, "`proj.kyc."+runsTable+"`")
	assert.Contains(t, migrations[2].SQL, "`proj.kyc."+stageOutputsTable+"`")
}

func TestPendingMigrations(t *testing.T) {
	all := []Migration{
		{Version: 1, Name: "init", Checksum: "a"},
		{Version: 2, Name: "runs", Checksum: "b"},
		{Version: 3, Name: "outputs", Checksum: "c"},
	}

	pending, err := PendingMigrations(all, []AppliedMigration{{Version: 1, Checksum: "a"}, {Version: 2}})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 3, pending[0].Version)

	_, err = PendingMigrations(all, []AppliedMigration{{Version: 2, Checksum: "changed"}})
	assert.Error(t, err)
}

func TestNewStageOutputRow(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	row, err := newStageOutputRow("run-1", pipeline.StageOutput{
		Stage:      pipeline.StageDetectLanguage,
		Outcome:    pipeline.OutcomeFallback,
		Reason:     strings.Repeat("x", pipeline.MaxErrorMessageLen+10),
		Payload:    domain.DefaultLanguage(),
		RecordedAt: at,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, row.OutputID)
	assert.Equal(t, "run-1", row.RunID)
	assert.Equal(t, "fallback", row.Outcome)
	assert.Len(t, row.Reason.StringVal, pipeline.MaxErrorMessageLen)
	require.True(t, row.Payload.Valid)
	assert.Contains(t, row.Payload.JSONVal, `"language_code":"en"`)
	assert.Equal(t, at, row.RecordedTS)

	row, err = newStageOutputRow("run-1", pipeline.StageOutput{Stage: pipeline.StageClassify, Outcome: pipeline.OutcomeFailed})
	require.NoError(t, err)
	assert.False(t, row.Payload.Valid)
	assert.False(t, row.Reason.Valid)
	assert.False(t, row.RecordedTS.IsZero())

	_, err = newStageOutputRow("run-1", pipeline.StageOutput{Stage: "bad", Payload: make(chan int)})
	assert.Error(t, err)
}

func TestCompletedRunFields(t *testing.T) {
	done := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	result := domain.DocumentAnalysisResult{
		RunID:             "run-1",
		DocumentName:      "statement.txt",
		Status:            domain.StatusCompleted,
		Language:          &domain.LanguageInfo{LanguageCode: "de"},
		DocumentType:      domain.BankableAssets,
		ClientInformation: &domain.ClientInfo{ClientID: "12345678"},
		NetWorth: domain.NewNetWorthReport(map[string]domain.NetWorthSummary{
			"Zed": {NetWorth: decimal.NewFromInt(5)},
			"Amy": {NetWorth: decimal.NewFromInt(7)},
		}),
		Warnings:    []string{"one"},
		CompletedAt: done,
	}

	row := completedRunFields(result)
	assert.Equal(t, RunStatusSuccess, row.Status)
	assert.Equal(t, "de", row.LanguageCode.StringVal)
	assert.Equal(t, "BankableAssets", row.DocumentType.StringVal)
	assert.Equal(t, "12345678", row.ClientID.StringVal)
	assert.Equal(t, []string{"Amy", "Zed"}, row.ClientNames)
	assert.Equal(t, "12", row.CombinedNetWorth.StringVal)
	assert.Equal(t, int64(1), row.WarningsCount.Int64)
	assert.Equal(t, done, row.FinishedTS.Timestamp)

	empty := completedRunFields(domain.DocumentAnalysisResult{RunID: "r"})
	assert.False(t, empty.LanguageCode.Valid)
	assert.False(t, empty.CombinedNetWorth.Valid)
	assert.False(t, empty.FinishedTS.Valid)
	assert.Empty(t, empty.ClientNames)
}

func TestTruncateError(t *testing.T) {
	assert.Equal(t, "short", truncateError("short"))
	assert.Len(t, truncateError(strings.Repeat("e", 5000)), pipeline.MaxErrorMessageLen)
	assert.Equal(t, pipeline.ErrorTypeInternal, pipeline.ErrorType(errors.New("x")))
}
