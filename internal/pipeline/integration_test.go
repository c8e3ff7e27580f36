package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/kyc-ledger/internal/domain"
	"github.com/dvloznov/kyc-ledger/internal/extraction"
	"github.com/dvloznov/kyc-ledger/internal/extraction/extractiontest"
	"github.com/dvloznov/kyc-ledger/internal/ledger"
	"github.com/dvloznov/kyc-ledger/internal/logger"
	"github.com/dvloznov/kyc-ledger/internal/networth"
	"github.com/dvloznov/kyc-ledger/internal/pipeline"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bankStatement = `FIRST NATIONAL BANK
Account Statement
Account Holder: John Smith
Account Number: 12345678
Closing balance: $15,000.00`

const (
	englishLanguage = `{"primary_language": "English", "language_code": "en", "confidence": "high", "other_languages": [], "writing_system": "latin"}`
	johnSmith       = `{"client_id": "12345678", "client_name": "John Smith", "account_number": "12345678", "tax_id": null, "confidence": "high"}`
	johnOverview    = `{"John Smith": {
		"assets": {"total_value": 15000, "currency": "USD", "details": [{"description": "Checking account", "value": 15000}]},
		"liabilities": {"total_value": 0, "currency": "USD", "details": []},
		"income": {"total_income": 0, "details": []}}}`
	netWorthNarrative = `{"currency": "USD", "data_completeness": "partial", "recommendations": ["Request liability statements"]}`
)

// MockRunRecorder records calls made by the analyzer.
type MockRunRecorder struct {
	mu        sync.Mutex
	started   []string
	outputs   map[string][]pipeline.StageOutput
	succeeded []string
	failed    map[string]error

	StartRunFunc func(ctx context.Context, runID, documentName string, startedAt time.Time) error
}

func (m *MockRunRecorder) StartRun(ctx context.Context, runID, documentName string, startedAt time.Time) error {
	m.mu.Lock()
	m.started = append(m.started, runID)
	m.mu.Unlock()
	if m.StartRunFunc != nil {
		return m.StartRunFunc(ctx, runID, documentName, startedAt)
	}
	return nil
}

func (m *MockRunRecorder) InsertStageOutput(ctx context.Context, runID string, out pipeline.StageOutput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outputs == nil {
		m.outputs = map[string][]pipeline.StageOutput{}
	}
	m.outputs[runID] = append(m.outputs[runID], out)
	return nil
}

func (m *MockRunRecorder) MarkRunSucceeded(ctx context.Context, runID string, result domain.DocumentAnalysisResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.succeeded = append(m.succeeded, runID)
	return nil
}

func (m *MockRunRecorder) MarkRunFailed(ctx context.Context, runID string, runErr error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failed == nil {
		m.failed = map[string]error{}
	}
	m.failed[runID] = runErr
}

type harness struct {
	fake     *extractiontest.Fake
	ledger   *ledger.Ledger
	analyzer *pipeline.Analyzer
}

func newHarness(t *testing.T, fake *extractiontest.Fake, opts ...pipeline.Option) *harness {
	t.Helper()
	l := ledger.New(nil)
	calc := networth.New(l, fake, networth.WithToday(func() civil.Date {
		return civil.Date{Year: 2026, Month: 10, Day: 18}
	}))
	a, err := pipeline.NewAnalyzer(fake, l, calc, opts...)
	require.NoError(t, err)
	return &harness{fake: fake, ledger: l, analyzer: a}
}

func englishResponses() map[extraction.TaskID]string {
	return map[extraction.TaskID]string{
		extraction.TaskDetectLanguage:   englishLanguage,
		extraction.TaskClientIdentifier: johnSmith,
		extraction.TaskClassify:         "BankableAssets",
		extraction.TaskOverview:         johnOverview,
		extraction.TaskNetWorth:         netWorthNarrative,
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestAnalyzeDocument_EnglishBankStatement(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		t.Run(fmt.Sprintf("parallel=%v", parallel), func(t *testing.T) {
			recorder := &MockRunRecorder{}
			h := newHarness(t, &extractiontest.Fake{Responses: englishResponses()},
				pipeline.WithParallelStages(parallel), pipeline.WithRunRecorder(recorder))

			res := h.analyzer.AnalyzeDocument(context.Background(), bankStatement, "statement.txt")

			require.Equal(t, domain.StatusCompleted, res.Status, res.Error)
			assert.Empty(t, res.Error)
			assert.Empty(t, res.ErrorType)
			assert.Equal(t, "statement.txt", res.DocumentName)
			assert.NotEmpty(t, res.RunID)
			assert.Equal(t, domain.BankableAssets, res.DocumentType)

			require.NotNil(t, res.ClientInformation)
			assert.Equal(t, "12345678", res.ClientInformation.ClientID)
			assert.Equal(t, "John Smith", res.ClientInformation.ClientName)
			assert.Equal(t, "john smith", res.ClientInformation.NormalizedName)
			assert.Equal(t, domain.ConfidenceHigh, res.ClientInformation.Confidence)

			require.NotNil(t, res.Language)
			assert.Equal(t, "en", res.Language.LanguageCode)

			require.NotNil(t, res.NetWorth)
			summary, ok := res.NetWorth.IndividualNetWorth["John Smith"]
			require.True(t, ok)
			assert.True(t, summary.NetWorth.Equal(dec("15000")))
			assert.True(t, res.NetWorth.CombinedNetWorth.Equal(dec("15000")))
			assert.Equal(t, "partial", summary.DataCompleteness)

			assert.Equal(t, 0, h.fake.CallCount(extraction.TaskTranslate))
			assert.Equal(t, 0, h.fake.CallCount(extraction.TaskMultilingualClientIdentifier))
			assert.Equal(t, 1, h.fake.CallCount(extraction.TaskClassify))

			rec, err := h.ledger.Get(context.Background(), "NAME-john smith")
			require.NoError(t, err)
			require.Len(t, rec.Assets, 1)
			assert.Equal(t, "BankableAssets", rec.Assets[0].Category)
			require.NotNil(t, rec.Assets[0].Source)
			assert.Equal(t, "statement.txt", rec.Assets[0].Source.DocumentName)
			require.NotNil(t, rec.ClientInfo)
			assert.Equal(t, "12345678", rec.ClientInfo.AccountNumber)

			require.Len(t, recorder.succeeded, 1)
			assert.Equal(t, res.RunID, recorder.succeeded[0])
			assert.NotEmpty(t, recorder.outputs[res.RunID])
		})
	}
}

func TestAnalyzeDocument_EmptyOverview(t *testing.T) {
	responses := englishResponses()
	responses[extraction.TaskOverview] = `{}`
	h := newHarness(t, &extractiontest.Fake{Responses: responses})

	res := h.analyzer.AnalyzeDocument(context.Background(), bankStatement, "empty.txt")

	require.Equal(t, domain.StatusCompleted, res.Status)
	assert.Empty(t, res.FinancialData)
	require.NotNil(t, res.NetWorth)
	assert.Empty(t, res.NetWorth.IndividualNetWorth)
	assert.True(t, res.NetWorth.CombinedNetWorth.IsZero())
	assert.Equal(t, 0, h.fake.CallCount(extraction.TaskNetWorth))

	keys, err := h.ledger.Keys(context.Background())
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestAnalyzeDocument_MalformedLanguageDefaultsToEnglish(t *testing.T) {
	responses := englishResponses()
	responses[extraction.TaskDetectLanguage] = "The language is probably English."
	h := newHarness(t, &extractiontest.Fake{Responses: responses})

	res := h.analyzer.AnalyzeDocument(context.Background(), bankStatement, "statement.txt")

	require.Equal(t, domain.StatusCompleted, res.Status)
	require.NotNil(t, res.Language)
	assert.Equal(t, "English", res.Language.PrimaryLanguage)
	assert.Equal(t, "en", res.Language.LanguageCode)
	assert.Equal(t, domain.ConfidenceLow, res.Language.Confidence)
	assert.Equal(t, 0, h.fake.CallCount(extraction.TaskTranslate))
	assert.Equal(t, 1, h.fake.CallCount(extraction.TaskClientIdentifier))
	assert.NotEmpty(t, res.Warnings)
}

func TestAnalyzeDocument_FallbackIsLogged(t *testing.T) {
	responses := englishResponses()
	responses[extraction.TaskDetectLanguage] = "not json"
	h := newHarness(t, &extractiontest.Fake{Responses: responses})

	var buf bytes.Buffer
	ctx := logger.WithContext(context.Background(), logger.NewWithWriter(&buf))
	res := h.analyzer.AnalyzeDocument(ctx, bankStatement, "statement.txt")

	require.Equal(t, domain.StatusCompleted, res.Status)
	out := buf.String()
	assert.Contains(t, out, "Stage fell back to default")
	assert.Contains(t, out, `"stage":"detect_language"`)
	assert.Contains(t, out, `"document_name":"statement.txt"`)
}

func TestAnalyzeDocument_UnknownCategoryCompletes(t *testing.T) {
	responses := englishResponses()
	responses[extraction.TaskClassify] = "I think this is some kind of bank doc"
	h := newHarness(t, &extractiontest.Fake{Responses: responses})

	res := h.analyzer.AnalyzeDocument(context.Background(), bankStatement, "statement.txt")

	require.Equal(t, domain.StatusCompleted, res.Status, res.Error)
	assert.Empty(t, res.ErrorType)
	assert.Equal(t, domain.DocumentCategory("I think this is some kind of bank doc"), res.DocumentType)
	assert.False(t, res.DocumentType.Known())
	assert.NotEmpty(t, res.Warnings)

	rec, err := h.ledger.Get(context.Background(), "NAME-john smith")
	require.NoError(t, err)
	require.Len(t, rec.Assets, 1)
	assert.Equal(t, domain.Uncategorized, rec.Assets[0].Category)
	assert.True(t, res.NetWorth.CombinedNetWorth.Equal(dec("15000")))
}

func TestAnalyzeDocument_GermanDocumentIsTranslated(t *testing.T) {
	const translated = "Account holder: Hans Muster. Savings: CHF 20,000"
	fake := &extractiontest.Fake{Responses: map[extraction.TaskID]string{
		extraction.TaskDetectLanguage:               `{"primary_language": "German", "language_code": "DE", "confidence": "high"}`,
		extraction.TaskTranslate:                    translated,
		extraction.TaskMultilingualClientIdentifier: `{"client_id": "UNKNOWN", "client_name": "Hans Muster", "confidence": "medium"}`,
		extraction.TaskClassifyMultilingual:         "  bankable assets \n",
		extraction.TaskOverview:                     `{"Hans Muster": {"assets": {"total": "CHF 20'000", "details": [{"description": "Sparkonto", "value": "20'000.00", "currency": "chf"}]}}}`,
		extraction.TaskNetWorth:                     `not json`,
	}}
	h := newHarness(t, fake)

	res := h.analyzer.AnalyzeDocument(context.Background(), "Kontoinhaber: Hans Muster ...", "konto.txt")

	require.Equal(t, domain.StatusCompleted, res.Status, res.Error)
	assert.Equal(t, "de", res.Language.LanguageCode)
	assert.Equal(t, domain.BankableAssets, res.DocumentType)
	assert.Equal(t, "NAME-hans muster", res.ClientInformation.ClientID)
	assert.Equal(t, "de", res.ClientInformation.LanguageDetected)

	call, ok := fake.LastCall(extraction.TaskTranslate)
	require.True(t, ok)
	assert.Equal(t, "German", call.Params["source_language"])

	call, ok = fake.LastCall(extraction.TaskMultilingualClientIdentifier)
	require.True(t, ok)
	assert.Equal(t, "de", call.Params["language"])
	assert.Equal(t, "Kontoinhaber: Hans Muster ...", call.Params["document"])

	call, ok = fake.LastCall(extraction.TaskOverview)
	require.True(t, ok)
	assert.Equal(t, translated, call.Params["document"])

	summary := res.NetWorth.IndividualNetWorth["Hans Muster"]
	assert.Equal(t, networth.CouldNotCalculate, summary.Error)
	assert.True(t, summary.TotalAssets.Equal(dec("20000")))
	assert.Equal(t, "CHF", summary.Currency)
}

func TestAnalyzeDocument_TranslationFailsOpen(t *testing.T) {
	fake := &extractiontest.Fake{
		Responses: map[extraction.TaskID]string{
			extraction.TaskDetectLanguage:               `{"primary_language": "French", "language_code": "fr", "confidence": "high"}`,
			extraction.TaskMultilingualClientIdentifier: `{"client_id": "FR-1", "client_name": "Marie Curie", "confidence": "high"}`,
			extraction.TaskClassifyMultilingual:         "Salary",
			extraction.TaskOverview:                     `{}`,
		},
		Errors: map[extraction.TaskID]error{
			extraction.TaskTranslate: fmt.Errorf("%w: 500", extraction.ErrTransport),
		},
	}
	h := newHarness(t, fake)

	res := h.analyzer.AnalyzeDocument(context.Background(), "Bulletin de salaire", "paie.txt")

	require.Equal(t, domain.StatusCompleted, res.Status, res.Error)
	call, ok := fake.LastCall(extraction.TaskOverview)
	require.True(t, ok)
	assert.Equal(t, "Bulletin de salaire", call.Params["document"])
	assert.NotEmpty(t, res.Warnings)
}

func TestAnalyzeDocument_TwoClients(t *testing.T) {
	responses := englishResponses()
	responses[extraction.TaskClassify] = "FinancialAssets"
	responses[extraction.TaskOverview] = `{
		"John Smith": {"assets": {"details": [{"description": "Brokerage", "value": 1000}]},
		               "liabilities": {"details": [{"description": "Margin loan", "value": -200}]}},
		"Jane Smith": {"assets": {"details": [{"description": "Brokerage", "value": "$2,500.50"}]}}
	}`
	h := newHarness(t, &extractiontest.Fake{Responses: responses})

	res := h.analyzer.AnalyzeDocument(context.Background(), "joint statement", "joint.txt")
	require.Equal(t, domain.StatusCompleted, res.Status, res.Error)

	keys, err := h.ledger.Keys(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []domain.ClientKey{"NAME-john smith", "NAME-jane smith"}, keys)

	require.Len(t, res.NetWorth.IndividualNetWorth, 2)
	john := res.NetWorth.IndividualNetWorth["John Smith"]
	jane := res.NetWorth.IndividualNetWorth["Jane Smith"]
	assert.True(t, john.NetWorth.Equal(dec("800")))
	assert.True(t, john.TotalLiabilities.Equal(dec("200")))
	assert.True(t, jane.NetWorth.Equal(dec("2500.50")))
	assert.True(t, res.NetWorth.CombinedNetWorth.Equal(john.NetWorth.Add(jane.NetWorth)))

	janeRec, err := h.ledger.Get(context.Background(), "NAME-jane smith")
	require.NoError(t, err)
	require.NotNil(t, janeRec.ClientInfo)
	assert.Equal(t, "Jane Smith", janeRec.ClientInfo.ClientName)
	assert.Empty(t, janeRec.ClientInfo.AccountNumber)
}

func TestAnalyzeDocument_ReprocessingDoublesTotals(t *testing.T) {
	h := newHarness(t, &extractiontest.Fake{Responses: englishResponses()})

	first := h.analyzer.AnalyzeDocument(context.Background(), bankStatement, "statement.txt")
	second := h.analyzer.AnalyzeDocument(context.Background(), bankStatement, "statement.txt")

	require.Equal(t, domain.StatusCompleted, second.Status)
	assert.True(t, first.NetWorth.CombinedNetWorth.Equal(dec("15000")))
	assert.True(t, second.NetWorth.CombinedNetWorth.Equal(dec("30000")))

	summary, err := h.ledger.Summary(context.Background(), "NAME-john smith")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.AssetsCount)
	assert.Equal(t, 2, summary.DocumentsProcessed)
}

func TestAnalyzeDocument_SingleClientPayload(t *testing.T) {
	responses := englishResponses()
	responses[extraction.TaskOverview] = `{"assets": {"total_assets_value": 500, "details": [{"description": "Cash", "value": 500}]}}`
	h := newHarness(t, &extractiontest.Fake{Responses: responses})

	res := h.analyzer.AnalyzeDocument(context.Background(), bankStatement, "statement.txt")

	require.Equal(t, domain.StatusCompleted, res.Status)
	require.Contains(t, res.FinancialData, "John Smith")
	assert.True(t, res.NetWorth.CombinedNetWorth.Equal(dec("500")))
}

func TestAnalyzeDocument_Failures(t *testing.T) {
	tests := []struct {
		name     string
		errs     map[extraction.TaskID]error
		wantType string
	}{
		{
			name:     "transport error during language detection",
			errs:     map[extraction.TaskID]error{extraction.TaskDetectLanguage: fmt.Errorf("%w: 503", extraction.ErrTransport)},
			wantType: pipeline.ErrorTypeTransport,
		},
		{
			name:     "transport error during identification",
			errs:     map[extraction.TaskID]error{extraction.TaskClientIdentifier: fmt.Errorf("%w: connection reset", extraction.ErrTransport)},
			wantType: pipeline.ErrorTypeTransport,
		},
		{
			name:     "classification timeout has no default",
			errs:     map[extraction.TaskID]error{extraction.TaskClassify: fmt.Errorf("%w: ClassifyFinancialDocument", extraction.ErrTimeout)},
			wantType: pipeline.ErrorTypeTimeout,
		},
		{
			name:     "configuration error",
			errs:     map[extraction.TaskID]error{extraction.TaskDetectLanguage: fmt.Errorf("%w: no API key", extraction.ErrConfiguration)},
			wantType: pipeline.ErrorTypeConfiguration,
		},
		{
			name:     "unexpected error",
			errs:     map[extraction.TaskID]error{extraction.TaskOverview: errors.New("boom")},
			wantType: pipeline.ErrorTypeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := &MockRunRecorder{}
			h := newHarness(t, &extractiontest.Fake{Responses: englishResponses(), Errors: tt.errs},
				pipeline.WithRunRecorder(recorder))

			res := h.analyzer.AnalyzeDocument(context.Background(), bankStatement, "statement.txt")

			assert.Equal(t, domain.StatusFailed, res.Status)
			assert.True(t, res.Failed())
			assert.Equal(t, tt.wantType, res.ErrorType)
			assert.NotEmpty(t, res.Error)
			assert.Equal(t, "statement.txt", res.DocumentName)
			assert.Nil(t, res.NetWorth)
			assert.Contains(t, recorder.failed, res.RunID)

			keys, err := h.ledger.Keys(context.Background())
			require.NoError(t, err)
			assert.Empty(t, keys)
		})
	}
}

func TestAnalyzeDocument_OverviewTimeoutFallsBack(t *testing.T) {
	fake := &extractiontest.Fake{
		Responses: englishResponses(),
		Errors:    map[extraction.TaskID]error{extraction.TaskOverview: fmt.Errorf("%w: ExtractOverview", extraction.ErrTimeout)},
	}
	h := newHarness(t, fake)

	res := h.analyzer.AnalyzeDocument(context.Background(), bankStatement, "statement.txt")

	require.Equal(t, domain.StatusCompleted, res.Status)
	assert.Empty(t, res.FinancialData)
	assert.NotEmpty(t, res.Warnings)
}

func TestAnalyzeDocument_RealTimeout(t *testing.T) {
	fake := &extractiontest.Fake{Func: func(ctx context.Context, req extraction.Request) (string, error) {
		if req.Task == extraction.TaskClassify {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return englishResponses()[req.Task], nil
	}}
	l := ledger.New(nil)
	svc := extraction.WithTimeout(fake, 20*time.Millisecond)
	a, err := pipeline.NewAnalyzer(svc, l, networth.New(l, svc))
	require.NoError(t, err)

	res := a.AnalyzeDocument(context.Background(), bankStatement, "slow.txt")

	assert.Equal(t, domain.StatusFailed, res.Status)
	assert.Equal(t, pipeline.ErrorTypeTimeout, res.ErrorType)
}

func TestAnalyzeDocument_Canceled(t *testing.T) {
	h := newHarness(t, &extractiontest.Fake{Responses: englishResponses()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := h.analyzer.AnalyzeDocument(ctx, bankStatement, "statement.txt")

	assert.Equal(t, domain.StatusFailed, res.Status)
	assert.Equal(t, pipeline.ErrorTypeCanceled, res.ErrorType)
	assert.Empty(t, h.fake.Calls())
}

func TestAnalyzeDocument_RecoversPanics(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		t.Run(fmt.Sprintf("parallel=%v", parallel), func(t *testing.T) {
			fake := &extractiontest.Fake{Func: func(ctx context.Context, req extraction.Request) (string, error) {
				if req.Task == extraction.TaskClassify {
					panic("classifier exploded")
				}
				return englishResponses()[req.Task], nil
			}}
			h := newHarness(t, fake, pipeline.WithParallelStages(parallel))

			var res domain.DocumentAnalysisResult
			require.NotPanics(t, func() {
				res = h.analyzer.AnalyzeDocument(context.Background(), bankStatement, "statement.txt")
			})
			assert.Equal(t, domain.StatusFailed, res.Status)
			assert.Equal(t, pipeline.ErrorTypePanic, res.ErrorType)
			assert.Contains(t, res.Error, "classifier exploded")
		})
	}
}

func TestAnalyzeDocument_RecorderFailureIsIgnored(t *testing.T) {
	recorder := &MockRunRecorder{StartRunFunc: func(ctx context.Context, runID, documentName string, startedAt time.Time) error {
		return errors.New("bigquery unavailable")
	}}
	h := newHarness(t, &extractiontest.Fake{Responses: englishResponses()}, pipeline.WithRunRecorder(recorder))

	res := h.analyzer.AnalyzeDocument(context.Background(), bankStatement, "statement.txt")
	assert.Equal(t, domain.StatusCompleted, res.Status)
}

func TestIngestAssetsAndLiabilities(t *testing.T) {
	fake := &extractiontest.Fake{Responses: map[extraction.TaskID]string{
		extraction.TaskAssets: `{"total_assets_value": "1,500", "currency": "eur",
			"assets": [{"description": "Fund A", "value": 1000, "type": "fund"}, {"description": "Cash", "value": "500"}]}`,
		extraction.TaskLiabilities: `{"liabilities": [{"description": "Mortgage", "value": -90000, "interest_rate": 1.5}]}`,
	}}
	h := newHarness(t, fake)
	ctx := context.Background()
	key := domain.ClientKey("NAME-john smith")

	assets, err := h.analyzer.IngestAssets(ctx, key, "portfolio", "portfolio.txt", domain.FinancialAssets)
	require.NoError(t, err)
	assert.True(t, assets.Total.Equal(dec("1500")))
	assert.Equal(t, "EUR", assets.Currency)
	require.Len(t, assets.Items, 2)

	liabilities, err := h.analyzer.IngestLiabilities(ctx, key, "mortgage", "mortgage.txt", domain.Mortgages)
	require.NoError(t, err)
	assert.Equal(t, pipeline.DefaultCurrency, liabilities.Currency)
	assert.True(t, liabilities.Total.Equal(dec("-90000")))

	rec, err := h.ledger.Get(ctx, key)
	require.NoError(t, err)
	require.Len(t, rec.Assets, 2)
	assert.Equal(t, "fund", rec.Assets[0].Category)
	assert.Equal(t, "FinancialAssets", rec.Assets[1].Category)
	require.Len(t, rec.Liabilities, 1)
	assert.True(t, rec.Liabilities[0].Value.Equal(dec("90000")))
	assert.True(t, rec.NetWorth().Equal(dec("-88500")))

	_, err = h.analyzer.IngestAssets(ctx, domain.UnknownClient, "x", "x.txt", domain.FinancialAssets)
	assert.Error(t, err)
}
