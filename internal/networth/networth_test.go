package networth

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/kyc-ledger/internal/domain"
	"github.com/dvloznov/kyc-ledger/internal/extraction"
	"github.com/dvloznov/kyc-ledger/internal/extraction/extractiontest"
	"github.com/dvloznov/kyc-ledger/internal/ledger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDay = civil.Date{Year: 2026, Month: 10, Day: 18}

func newCalculator(l *ledger.Ledger, svc extraction.Service) *Calculator {
	return New(l, svc, WithToday(func() civil.Date { return testDay }), WithDefaultCurrency("EUR"))
}

func seed(t *testing.T, l *ledger.Ledger, key domain.ClientKey, assets, liabilities []domain.Entry) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, l.SetClientInfo(ctx, key, domain.ClientInfo{ClientID: string(key), ClientName: "Test Client"}))
	require.NoError(t, l.MergeClientData(ctx, key, ledger.KindAssets, assets))
	require.NoError(t, l.MergeClientData(ctx, key, ledger.KindLiabilities, liabilities))
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCompute_UnknownClient(t *testing.T) {
	fake := &extractiontest.Fake{}
	calc := newCalculator(ledger.New(nil), fake)

	summary, err := calc.Compute(context.Background(), "NAME-ghost")
	require.NoError(t, err)

	assert.Equal(t, domain.ClientNotFound, summary.Error)
	assert.False(t, summary.Found())
	assert.True(t, summary.TotalAssets.IsZero())
	assert.True(t, summary.TotalLiabilities.IsZero())
	assert.True(t, summary.NetWorth.IsZero())
	assert.Equal(t, testDay, summary.CalculationDate)
	assert.Empty(t, fake.Calls())
}

func TestCompute_UsesLocalTotalsAndModelNarrative(t *testing.T) {
	l := ledger.New(nil)
	seed(t, l, "NAME-test client",
		[]domain.Entry{
			{Description: "Savings", Value: d("10000"), Category: "BankableAssets", Currency: "CHF"},
			{Description: "Portfolio", Value: d("25000.50"), Category: "FinancialAssets", Currency: "CHF"},
		},
		[]domain.Entry{{Description: "Mortgage", Value: d("-5000"), Category: "Mortgages", Currency: "CHF"}},
	)

	fake := &extractiontest.Fake{Responses: map[extraction.TaskID]string{
		extraction.TaskNetWorth: "```json\n" + `{
			"total_assets": 1, "total_liabilities": 2, "net_worth": 999999,
			"currency": "CHF",
			"asset_breakdown": {"cash": "10,000.00", "investments": 25000.5},
			"liability_breakdown": {"mortgage": 5000},
			"data_completeness": "partial",
			"recommendations": ["Provide pension statements"]
		}` + "\n```",
	}}
	calc := newCalculator(l, fake)

	summary, err := calc.Compute(context.Background(), "NAME-test client")
	require.NoError(t, err)

	assert.Empty(t, summary.Error)
	assert.Equal(t, "Test Client", summary.ClientName)
	assert.True(t, summary.TotalAssets.Equal(d("35000.50")))
	assert.True(t, summary.TotalLiabilities.Equal(d("5000")))
	assert.True(t, summary.NetWorth.Equal(d("30000.50")))
	assert.Equal(t, "CHF", summary.Currency)
	assert.True(t, summary.AssetBreakdown["cash"].Equal(d("10000")))
	assert.True(t, summary.LiabilityBreakdown["mortgage"].Equal(d("5000")))
	assert.Equal(t, "partial", summary.DataCompleteness)
	assert.Equal(t, []string{"Provide pension statements"}, summary.Recommendations)

	call, ok := fake.LastCall(extraction.TaskNetWorth)
	require.True(t, ok)
	assert.Equal(t, "2026-10-18", call.Params["calculation_date"])
	assert.Contains(t, call.Params["assets"], "Portfolio")
	assert.Contains(t, call.Params["liabilities"], "Mortgage")
	assert.Contains(t, call.Params["client_info"], "Test Client")
}

func TestCompute_UnparsableResponseFallsBackLocally(t *testing.T) {
	l := ledger.New(nil)
	seed(t, l, "k",
		[]domain.Entry{{Description: "Cash", Value: d("100"), Category: "BankableAssets"}},
		nil,
	)
	fake := &extractiontest.Fake{Responses: map[extraction.TaskID]string{
		extraction.TaskNetWorth: "I cannot compute that.",
	}}

	summary, err := newCalculator(l, fake).Compute(context.Background(), "k")
	require.NoError(t, err)

	assert.Equal(t, CouldNotCalculate, summary.Error)
	assert.True(t, summary.Found())
	assert.True(t, summary.NetWorth.Equal(d("100")))
	assert.Equal(t, "EUR", summary.Currency)
	assert.Equal(t, "partial", summary.DataCompleteness)
	assert.True(t, summary.AssetBreakdown["BankableAssets"].Equal(d("100")))
}

func TestCompute_ServiceErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{name: "timeout falls back", err: fmt.Errorf("%w: CalculateNetWorth", extraction.ErrTimeout)},
		{name: "transport is reported", err: fmt.Errorf("%w: 503", extraction.ErrTransport), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := ledger.New(nil)
			seed(t, l, "k", []domain.Entry{{Description: "Cash", Value: d("10")}}, []domain.Entry{{Description: "Loan", Value: d("4")}})
			fake := &extractiontest.Fake{Errors: map[extraction.TaskID]error{extraction.TaskNetWorth: tt.err}}

			summary, err := newCalculator(l, fake).Compute(context.Background(), "k")
			if tt.wantErr {
				assert.True(t, errors.Is(err, extraction.ErrTransport))
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, CouldNotCalculate, summary.Error)
			assert.True(t, summary.NetWorth.Equal(d("6")))
			assert.Equal(t, "complete", summary.DataCompleteness)
		})
	}
}

func TestCompute_WithoutService(t *testing.T) {
	l := ledger.New(nil)
	seed(t, l, "k",
		[]domain.Entry{
			{Description: "a", Value: d("1"), Currency: "GBP"},
			{Description: "b", Value: d("2"), Currency: "USD"},
			{Description: "c", Value: d("3"), Currency: "GBP"},
		},
		nil,
	)

	summary, err := newCalculator(l, nil).Compute(context.Background(), "k")
	require.NoError(t, err)
	assert.Empty(t, summary.Error)
	assert.Equal(t, "GBP", summary.Currency)
	assert.True(t, summary.AssetBreakdown[domain.Uncategorized].Equal(d("6")))
	assert.Nil(t, summary.LiabilityBreakdown)
}

// Net worth is exactly assets minus liabilities for any ledger state,
// whatever the model claims.
func TestCompute_NetWorthIdentityRandomized(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	fake := &extractiontest.Fake{Responses: map[extraction.TaskID]string{
		extraction.TaskNetWorth: `{"total_assets": 1, "total_liabilities": 1, "net_worth": 1}`,
	}}

	randomEntries := func() []domain.Entry {
		n := rng.Intn(6)
		out := make([]domain.Entry, n)
		for i := range out {
			cents := rng.Int63n(2_000_000_00) - 1_000_000_00
			out[i] = domain.Entry{Description: fmt.Sprintf("e%d", i), Value: decimal.New(cents, -2)}
		}
		return out
	}

	for i := 0; i < 200; i++ {
		l := ledger.New(nil)
		key := domain.ClientKey(fmt.Sprintf("NAME-client %d", i))
		assets, liabilities := randomEntries(), randomEntries()
		seed(t, l, key, assets, liabilities)

		summary, err := newCalculator(l, fake).Compute(context.Background(), key)
		require.NoError(t, err)

		wantAssets := decimal.Zero
		for _, e := range assets {
			wantAssets = wantAssets.Add(e.Value)
		}
		wantLiabilities := decimal.Zero
		for _, e := range liabilities {
			wantLiabilities = wantLiabilities.Add(e.Value.Abs())
		}

		require.True(t, summary.TotalAssets.Equal(wantAssets), "iteration %d", i)
		require.True(t, summary.TotalLiabilities.Equal(wantLiabilities), "iteration %d", i)
		require.True(t, summary.NetWorth.Equal(summary.TotalAssets.Sub(summary.TotalLiabilities)), "iteration %d", i)
		require.False(t, summary.TotalLiabilities.IsNegative(), "iteration %d", i)
	}
}

func TestComputeMany_PartialFailure(t *testing.T) {
	l := ledger.New(nil)
	seed(t, l, "good", []domain.Entry{{Description: "a", Value: d("5")}}, nil)
	seed(t, l, "bad", []domain.Entry{{Description: "b", Value: d("7")}}, nil)

	fake := &extractiontest.Fake{Func: func(ctx context.Context, req extraction.Request) (string, error) {
		if strings.Contains(req.Params["client_info"], `"client_id":"bad"`) {
			return "", extraction.ErrTransport
		}
		return `{"data_completeness": "partial"}`, nil
	}}

	results := New(l, fake, WithConcurrency(2)).ComputeMany(context.Background(), []domain.ClientKey{"good", "bad", "missing"})
	require.Len(t, results, 3)

	assert.Equal(t, domain.ClientKey("good"), results[0].Key)
	assert.NoError(t, results[0].Err)
	assert.True(t, results[0].Summary.NetWorth.Equal(d("5")))

	assert.Equal(t, domain.ClientKey("bad"), results[1].Key)
	assert.True(t, errors.Is(results[1].Err, extraction.ErrTransport))
	assert.True(t, results[1].Summary.NetWorth.Equal(d("7")))

	assert.NoError(t, results[2].Err)
	assert.Equal(t, domain.ClientNotFound, results[2].Summary.Error)
}
