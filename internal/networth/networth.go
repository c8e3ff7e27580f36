// Package networth computes per-client net worth from the ledger.
//
// Totals are always summed locally; the extraction service only contributes
// the categorized breakdown, completeness flag and recommendations.
package networth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/kyc-ledger/internal/domain"
	"github.com/dvloznov/kyc-ledger/internal/extraction"
	"github.com/dvloznov/kyc-ledger/internal/ledger"
	"github.com/dvloznov/kyc-ledger/internal/logger"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// CouldNotCalculate is the summary error when the narrative breakdown is
// unavailable. Totals remain valid.
const CouldNotCalculate = "Could not calculate net worth"

const (
	completenessComplete     = "complete"
	completenessPartial      = "partial"
	completenessInsufficient = "insufficient"
)

// Calculator produces NetWorthSummary values for ledger keys.
type Calculator struct {
	ledger      *ledger.Ledger
	svc         extraction.Service
	currency    string
	concurrency int
	today       func() civil.Date
}

// Option customizes a Calculator.
type Option func(*Calculator)

// WithDefaultCurrency sets the currency reported when entries carry none.
func WithDefaultCurrency(code string) Option {
	return func(c *Calculator) {
		if code != "" {
			c.currency = code
		}
	}
}

// WithConcurrency bounds ComputeMany.
func WithConcurrency(n int) Option {
	return func(c *Calculator) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithToday overrides the calculation date source.
func WithToday(today func() civil.Date) Option {
	return func(c *Calculator) { c.today = today }
}

// New creates a calculator. svc may be nil, in which case only the local
// breakdown is produced.
func New(l *ledger.Ledger, svc extraction.Service, opts ...Option) *Calculator {
	c := &Calculator{
		ledger:      l,
		svc:         svc,
		currency:    "USD",
		concurrency: 4,
		today:       func() civil.Date { return civil.DateOf(time.Now().UTC()) },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// llmSummary is the shape requested from the CalculateNetWorth task.
type llmSummary struct {
	Currency           extraction.FlexString             `json:"currency"`
	TotalAssets        extraction.FlexDecimal            `json:"total_assets"`
	TotalLiabilities   extraction.FlexDecimal            `json:"total_liabilities"`
	NetWorth           extraction.FlexDecimal            `json:"net_worth"`
	AssetBreakdown     map[string]extraction.FlexDecimal `json:"asset_breakdown"`
	LiabilityBreakdown map[string]extraction.FlexDecimal `json:"liability_breakdown"`
	DataCompleteness   extraction.FlexString             `json:"data_completeness"`
	Recommendations    []extraction.FlexString           `json:"recommendations"`
}

// Compute returns the summary for key. An unknown key yields the
// "Client not found" summary without calling the extraction service.
// A transport failure returns the local summary together with the error.
func (c *Calculator) Compute(ctx context.Context, key domain.ClientKey) (domain.NetWorthSummary, error) {
	log := logger.FromContext(ctx).With().Str("client_key", string(key)).Logger()
	today := c.today()

	rec, err := c.ledger.Get(ctx, key)
	if errors.Is(err, ledger.ErrClientNotFound) {
		return domain.NotFoundSummary(key, today), nil
	}
	if err != nil {
		return domain.NetWorthSummary{}, fmt.Errorf("net worth %s: %w", key, err)
	}

	summary := c.local(rec, today)
	if c.svc == nil {
		return summary, nil
	}

	params, err := taskParams(rec, today)
	if err != nil {
		return summary, fmt.Errorf("net worth %s: %w", key, err)
	}

	raw, err := c.svc.Complete(ctx, extraction.Request{Task: extraction.TaskNetWorth, Params: params})
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return summary, ctx.Err()
	case errors.Is(err, extraction.ErrTimeout):
		log.Warn().Err(err).Msg("Net worth breakdown timed out, using local totals")
		summary.Error = CouldNotCalculate
		return summary, nil
	default:
		summary.Error = CouldNotCalculate
		return summary, fmt.Errorf("net worth %s: %w", key, err)
	}

	var parsed llmSummary
	if err := extraction.DecodeJSON(raw, &parsed); err != nil {
		log.Warn().Err(err).Msg("Unparsable net worth response, using local totals")
		summary.Error = CouldNotCalculate
		return summary, nil
	}

	if parsed.NetWorth.Valid && !parsed.NetWorth.Equal(summary.NetWorth) {
		log.Debug().
			Str("reported", parsed.NetWorth.String()).
			Str("computed", summary.NetWorth.String()).
			Msg("Model net worth differs from ledger totals")
	}
	apply(&summary, parsed)
	return summary, nil
}

// Result pairs a key with its summary and any per-client error.
type Result struct {
	Key     domain.ClientKey
	Summary domain.NetWorthSummary
	Err     error
}

// ComputeMany computes every key concurrently. One client's failure never
// prevents the others; results keep the order of keys.
func (c *Calculator) ComputeMany(ctx context.Context, keys []domain.ClientKey) []Result {
	results := make([]Result, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			summary, err := c.Compute(gctx, key)
			results[i] = Result{Key: key, Summary: summary, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (c *Calculator) local(rec *domain.ClientRecord, today civil.Date) domain.NetWorthSummary {
	return domain.NetWorthSummary{
		ClientID:           rec.Key,
		ClientName:         rec.Name(),
		CalculationDate:    today,
		TotalAssets:        rec.TotalAssets(),
		TotalLiabilities:   rec.TotalLiabilities(),
		NetWorth:           rec.NetWorth(),
		Currency:           dominantCurrency(rec, c.currency),
		AssetBreakdown:     breakdown(assetEntries(rec)),
		LiabilityBreakdown: breakdown(liabilityEntries(rec)),
		DataCompleteness:   completeness(rec),
	}
}

// apply copies the narrative fields of a decoded response onto summary.
func apply(summary *domain.NetWorthSummary, parsed llmSummary) {
	if cur := parsed.Currency.String(); cur != "" {
		summary.Currency = cur
	}
	if b := validBreakdown(parsed.AssetBreakdown); len(b) > 0 {
		summary.AssetBreakdown = b
	}
	if b := validBreakdown(parsed.LiabilityBreakdown); len(b) > 0 {
		summary.LiabilityBreakdown = b
	}
	switch dc := parsed.DataCompleteness.String(); dc {
	case completenessComplete, completenessPartial, completenessInsufficient:
		summary.DataCompleteness = dc
	}
	for _, r := range parsed.Recommendations {
		if r != "" {
			summary.Recommendations = append(summary.Recommendations, r.String())
		}
	}
}

func validBreakdown(in map[string]extraction.FlexDecimal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(in))
	for k, v := range in {
		if k != "" && v.Valid {
			out[k] = v.Decimal
		}
	}
	return out
}

func assetEntries(rec *domain.ClientRecord) []domain.Entry {
	out := make([]domain.Entry, len(rec.Assets))
	for i, a := range rec.Assets {
		out[i] = a.Entry
	}
	return out
}

func liabilityEntries(rec *domain.ClientRecord) []domain.Entry {
	out := make([]domain.Entry, len(rec.Liabilities))
	for i, l := range rec.Liabilities {
		out[i] = l.Entry
	}
	return out
}

func breakdown(entries []domain.Entry) map[string]decimal.Decimal {
	if len(entries) == 0 {
		return nil
	}
	out := make(map[string]decimal.Decimal)
	for _, e := range entries {
		cat := e.Category
		if cat == "" {
			cat = domain.Uncategorized
		}
		out[cat] = out[cat].Add(e.Value)
	}
	return out
}

func completeness(rec *domain.ClientRecord) string {
	switch {
	case len(rec.Assets) == 0 && len(rec.Liabilities) == 0:
		return completenessInsufficient
	case len(rec.Assets) == 0 || len(rec.Liabilities) == 0:
		return completenessPartial
	default:
		return completenessComplete
	}
}

// dominantCurrency is the most frequent entry currency, ties going to the
// one seen first.
func dominantCurrency(rec *domain.ClientRecord, fallback string) string {
	counts := map[string]int{}
	var order []string
	count := func(cur string) {
		if cur == "" {
			return
		}
		if counts[cur] == 0 {
			order = append(order, cur)
		}
		counts[cur]++
	}
	for _, a := range rec.Assets {
		count(a.Currency)
	}
	for _, l := range rec.Liabilities {
		count(l.Currency)
	}
	if len(order) == 0 {
		return fallback
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	return order[0]
}

func taskParams(rec *domain.ClientRecord, today civil.Date) (map[string]string, error) {
	assets, err := json.Marshal(rec.Assets)
	if err != nil {
		return nil, fmt.Errorf("encoding assets: %w", err)
	}
	liabilities, err := json.Marshal(rec.Liabilities)
	if err != nil {
		return nil, fmt.Errorf("encoding liabilities: %w", err)
	}
	info := domain.ClientInfo{ClientID: string(rec.Key), ClientName: rec.Name()}
	if rec.ClientInfo != nil {
		info = *rec.ClientInfo
	}
	clientInfo, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("encoding client info: %w", err)
	}
	return map[string]string{
		"assets":           string(assets),
		"liabilities":      string(liabilities),
		"client_info":      string(clientInfo),
		"calculation_date": today.String(),
	}, nil
}
