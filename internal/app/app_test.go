package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/dvloznov/kyc-ledger/internal/config"
	"github.com/dvloznov/kyc-ledger/internal/domain"
	"github.com/dvloznov/kyc-ledger/internal/ledger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, env map[string]string) *config.Config {
	t.Helper()
	cfg, err := config.FromLookup(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	require.NoError(t, err)
	return cfg
}

func TestBuild_OfflineMemory(t *testing.T) {
	a, err := Build(context.Background(), testConfig(t, map[string]string{"LOG_LEVEL": "error"}), Offline())
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Ledger)
	assert.NotNil(t, a.NetWorth)
	assert.Nil(t, a.Service)
	assert.Nil(t, a.Analyzer)
	assert.Nil(t, a.Runs)
}

func TestBuild_OfflineSQLitePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	cfg := testConfig(t, map[string]string{"LEDGER_BACKEND": "sqlite", "SQLITE_PATH": path, "LOG_LEVEL": "error"})
	ctx := context.Background()
	key := domain.KeyForName("John Smith")

	a, err := Build(ctx, cfg, Offline())
	require.NoError(t, err)
	require.NoError(t, a.Ledger.MergeClientData(ctx, key, ledger.KindAssets, []domain.Entry{
		{Description: "Savings", Value: decimal.NewFromInt(1000), Currency: "USD"},
	}))
	require.NoError(t, a.Close())

	b, err := Build(ctx, cfg, Offline())
	require.NoError(t, err)
	defer b.Close()

	summary, err := b.NetWorth.Compute(ctx, key)
	require.NoError(t, err)
	assert.True(t, summary.NetWorth.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, "USD", summary.Currency)
}

func TestBuild_ConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		opts []Option
	}{
		{name: "online without credentials", env: map[string]string{}},
		{name: "gcs without bucket", env: map[string]string{"LEDGER_BACKEND": "gcs"}, opts: []Option{Offline()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(context.Background(), testConfig(t, tt.env), tt.opts...)
			assert.True(t, errors.Is(err, config.ErrMissingConfig))
		})
	}
}
