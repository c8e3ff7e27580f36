package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/dvloznov/kyc-ledger/internal/domain"
	"github.com/dvloznov/kyc-ledger/internal/extraction"
	"github.com/shopspring/decimal"
)

// Model responses are untrusted: every decoder below accepts numbers where
// strings are expected and vice versa, and never fails on a missing field.

type flexList []string

func (l *flexList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '[' {
		var s extraction.FlexString
		if err := s.UnmarshalJSON(data); err != nil {
			return nil
		}
		if s != "" {
			*l = flexList{s.String()}
		}
		return nil
	}
	var items []extraction.FlexString
	if err := json.Unmarshal(data, &items); err != nil {
		return nil
	}
	out := make(flexList, 0, len(items))
	for _, it := range items {
		if it != "" {
			out = append(out, it.String())
		}
	}
	*l = out
	return nil
}

type rawLanguage struct {
	PrimaryLanguage extraction.FlexString `json:"primary_language"`
	LanguageCode    extraction.FlexString `json:"language_code"`
	Confidence      extraction.FlexString `json:"confidence"`
	OtherLanguages  flexList              `json:"other_languages"`
	WritingSystem   extraction.FlexString `json:"writing_system"`
}

// parseLanguage decodes a detection response. A missing or malformed
// language code is a parse error.
func parseLanguage(raw string) (domain.LanguageInfo, error) {
	var r rawLanguage
	if err := extraction.DecodeJSON(raw, &r); err != nil {
		return domain.LanguageInfo{}, parseError(extraction.TaskDetectLanguage, err)
	}
	code, ok := normalizeLanguageCode(r.LanguageCode.String())
	if !ok {
		return domain.LanguageInfo{}, parseError(extraction.TaskDetectLanguage,
			fmt.Errorf("invalid language code %q", r.LanguageCode))
	}

	info := domain.LanguageInfo{
		PrimaryLanguage: r.PrimaryLanguage.String(),
		LanguageCode:    code,
		Confidence:      domain.ParseConfidence(r.Confidence.String()),
		OtherLanguages:  []string(r.OtherLanguages),
		WritingSystem:   strings.ToLower(r.WritingSystem.String()),
	}
	if info.PrimaryLanguage == "" {
		info.PrimaryLanguage = code
	}
	if info.OtherLanguages == nil {
		info.OtherLanguages = []string{}
	}
	return info, nil
}

// normalizeLanguageCode accepts "en", "EN" or "en-GB" style codes.
func normalizeLanguageCode(code string) (string, bool) {
	code = strings.ToLower(strings.TrimSpace(code))
	if i := strings.IndexAny(code, "-_"); i != -1 {
		code = code[:i]
	}
	if len(code) != 2 {
		return "", false
	}
	for _, r := range code {
		if r < 'a' || r > 'z' {
			return "", false
		}
	}
	return code, true
}

type rawClient struct {
	ClientID         extraction.FlexString `json:"client_id"`
	ClientName       extraction.FlexString `json:"client_name"`
	AccountNumber    extraction.FlexString `json:"account_number"`
	TaxID            extraction.FlexString `json:"tax_id"`
	LanguageDetected extraction.FlexString `json:"language_detected"`
	Confidence       extraction.FlexString `json:"confidence"`
	Source           extraction.FlexString `json:"source"`
}

// parseClient decodes an identification response and derives the
// normalized name and name-based id.
func parseClient(task extraction.TaskID, raw string) (domain.ClientInfo, error) {
	var r rawClient
	if err := extraction.DecodeJSON(raw, &r); err != nil {
		return domain.ClientInfo{}, parseError(task, err)
	}
	info := domain.ClientInfo{
		ClientID:         optional(r.ClientID.String()),
		ClientName:       optional(r.ClientName.String()),
		AccountNumber:    optional(r.AccountNumber.String()),
		TaxID:            optional(r.TaxID.String()),
		LanguageDetected: optional(r.LanguageDetected.String()),
		Confidence:       domain.ParseConfidence(r.Confidence.String()),
		Source:           optional(r.Source.String()),
	}
	return finishClientInfo(info), nil
}

// finishClientInfo attaches the normalized name and replaces placeholder
// ids with the name-based key.
func finishClientInfo(info domain.ClientInfo) domain.ClientInfo {
	if info.ClientName == "" {
		info.ClientName = domain.UnknownClient
	}
	if info.HasName() {
		info.NormalizedName = domain.NormalizeName(info.ClientName)
		if domain.IsPlaceholderID(info.ClientID) {
			info.ClientID = string(domain.KeyForName(info.ClientName))
		}
	}
	if info.ClientID == "" {
		info.ClientID = domain.UnknownClient
	}
	if info.Confidence == "" {
		info.Confidence = domain.ConfidenceLow
	}
	return info
}

// optional blanks the textual nulls models like to emit.
func optional(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "null", "none", "nil", "n/a":
		return ""
	}
	return strings.TrimSpace(s)
}

type rawDetail struct {
	Description extraction.FlexString  `json:"description"`
	Name        extraction.FlexString  `json:"name"`
	Value       extraction.FlexDecimal `json:"value"`
	Amount      extraction.FlexDecimal `json:"amount"`
	Currency    extraction.FlexString  `json:"currency"`
}

func (d rawDetail) toDetail(currency string) domain.OverviewDetail {
	desc := d.Description.String()
	if desc == "" {
		desc = d.Name.String()
	}
	value := d.Value.Decimal
	if !d.Value.Valid && d.Amount.Valid {
		value = d.Amount.Decimal
	}
	cur := strings.ToUpper(d.Currency.String())
	if cur == "" {
		cur = currency
	}
	return domain.OverviewDetail{Description: desc, Value: value, Currency: cur}
}

type rawSection struct {
	Total                 extraction.FlexDecimal `json:"total"`
	TotalValue            extraction.FlexDecimal `json:"total_value"`
	TotalAssetsValue      extraction.FlexDecimal `json:"total_assets_value"`
	TotalLiabilitiesValue extraction.FlexDecimal `json:"total_liabilities_value"`
	TotalIncome           extraction.FlexDecimal `json:"total_income"`
	Currency              extraction.FlexString  `json:"currency"`
	Details               []rawDetail            `json:"details"`
}

func (s *rawSection) toSection() domain.OverviewSection {
	out := domain.OverviewSection{
		Currency: strings.ToUpper(s.Currency.String()),
		Details:  make([]domain.OverviewDetail, 0, len(s.Details)),
	}
	sum := decimal.Zero
	for _, d := range s.Details {
		detail := d.toDetail(out.Currency)
		sum = sum.Add(detail.Value)
		out.Details = append(out.Details, detail)
	}

	out.Total = sum
	for _, t := range []extraction.FlexDecimal{s.Total, s.TotalValue, s.TotalAssetsValue, s.TotalLiabilitiesValue, s.TotalIncome} {
		if t.Valid {
			out.Total = t.Decimal
			break
		}
	}
	return out
}

// decodeSection reads one section leniently: a malformed section is empty.
func decodeSection(data json.RawMessage) domain.OverviewSection {
	var s rawSection
	if len(data) > 0 {
		if err := json.Unmarshal(data, &s); err != nil {
			s = rawSection{}
		}
	}
	return s.toSection()
}

func decodeClientOverview(data json.RawMessage) (domain.ClientOverview, bool) {
	var sections map[string]json.RawMessage
	if err := json.Unmarshal(data, &sections); err != nil {
		return domain.ClientOverview{}, false
	}
	return clientOverview(sections), true
}

// clientOverview builds one client's overview from its sections, matching
// section names case-insensitively.
func clientOverview(sections map[string]json.RawMessage) domain.ClientOverview {
	lower := make(map[string]json.RawMessage, len(sections))
	for k, v := range sections {
		lower[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return domain.ClientOverview{
		Assets:      decodeSection(lower["assets"]),
		Liabilities: decodeSection(lower["liabilities"]),
		Income:      decodeSection(lower["income"]),
	}
}

var sectionKeys = map[string]bool{"assets": true, "liabilities": true, "income": true}

// parseOverview decodes the per-client overview. A payload with top-level
// sections instead of client names is attributed to clientName, or dropped
// when the client is unknown.
func parseOverview(raw string, client domain.ClientInfo) (domain.FinancialOverview, []string, error) {
	var top map[string]json.RawMessage
	if err := extraction.DecodeJSON(raw, &top); err != nil {
		return nil, nil, parseError(extraction.TaskOverview, err)
	}

	var warnings []string
	for k := range top {
		if sectionKeys[strings.ToLower(strings.TrimSpace(k))] {
			if !client.HasName() {
				return domain.FinancialOverview{}, []string{"overview has no client names and the client is unknown; dropped"}, nil
			}
			return domain.FinancialOverview{client.ClientName: clientOverview(top)}, nil, nil
		}
	}

	names := make([]string, 0, len(top))
	for name := range top {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(domain.FinancialOverview, len(top))
	for _, name := range names {
		clean := strings.TrimSpace(name)
		if !(domain.ClientInfo{ClientName: clean}).HasName() {
			warnings = append(warnings, fmt.Sprintf("overview entry %q has no usable client name; skipped", name))
			continue
		}
		co, ok := decodeClientOverview(top[name])
		if !ok {
			warnings = append(warnings, fmt.Sprintf("overview entry for %q is not an object; skipped", clean))
			continue
		}
		out[clean] = co
	}
	return out, warnings, nil
}

type rawItem struct {
	Description  extraction.FlexString  `json:"description"`
	Name         extraction.FlexString  `json:"name"`
	Value        extraction.FlexDecimal `json:"value"`
	Amount       extraction.FlexDecimal `json:"amount"`
	Type         extraction.FlexString  `json:"type"`
	Details      extraction.FlexString  `json:"details"`
	InterestRate extraction.FlexDecimal `json:"interest_rate"`
	Term         extraction.FlexString  `json:"term"`
}

func (r rawItem) toItem() ExtractedItem {
	it := ExtractedItem{
		Description: r.Description.String(),
		Value:       r.Value.Decimal,
		Type:        r.Type.String(),
		Details:     r.Details.String(),
		Term:        r.Term.String(),
	}
	if it.Description == "" {
		it.Description = r.Name.String()
	}
	if !r.Value.Valid && r.Amount.Valid {
		it.Value = r.Amount.Decimal
	}
	if r.InterestRate.Valid {
		rate := r.InterestRate.Decimal
		it.InterestRate = &rate
	}
	return it
}

func toItems(primary, details []rawItem) []ExtractedItem {
	src := primary
	if len(src) == 0 {
		src = details
	}
	out := make([]ExtractedItem, 0, len(src))
	for _, r := range src {
		out = append(out, r.toItem())
	}
	return out
}

func toSubtotals(in map[string]extraction.FlexDecimal) map[string]decimal.Decimal {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]decimal.Decimal, len(in))
	for k, v := range in {
		if v.Valid {
			out[k] = v.Decimal
		}
	}
	return out
}

func firstValid(fallback decimal.Decimal, values ...extraction.FlexDecimal) decimal.Decimal {
	for _, v := range values {
		if v.Valid {
			return v.Decimal
		}
	}
	return fallback
}

func sumItems(items []ExtractedItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Value)
	}
	return total
}

type rawAssets struct {
	TotalAssetsValue extraction.FlexDecimal            `json:"total_assets_value"`
	TotalValue       extraction.FlexDecimal            `json:"total_value"`
	Currency         extraction.FlexString             `json:"currency"`
	ValuationDate    extraction.FlexString             `json:"valuation_date"`
	Assets           []rawItem                         `json:"assets"`
	Details          []rawItem                         `json:"details"`
	Subtotals        map[string]extraction.FlexDecimal `json:"subtotals"`
}

func parseAssets(raw string) (AssetExtraction, error) {
	var r rawAssets
	if err := extraction.DecodeJSON(raw, &r); err != nil {
		return AssetExtraction{}, parseError(extraction.TaskAssets, err)
	}
	out := AssetExtraction{
		Currency:      strings.ToUpper(r.Currency.String()),
		ValuationDate: optional(r.ValuationDate.String()),
		Items:         toItems(r.Assets, r.Details),
		Subtotals:     toSubtotals(r.Subtotals),
	}
	out.Total = firstValid(sumItems(out.Items), r.TotalAssetsValue, r.TotalValue)
	if out.Currency == "" {
		out.Currency = DefaultCurrency
	}
	return out, nil
}

type rawLiabilities struct {
	TotalLiabilitiesValue extraction.FlexDecimal            `json:"total_liabilities_value"`
	TotalValue            extraction.FlexDecimal            `json:"total_value"`
	Currency              extraction.FlexString             `json:"currency"`
	StatementDate         extraction.FlexString             `json:"statement_date"`
	Liabilities           []rawItem                         `json:"liabilities"`
	Details               []rawItem                         `json:"details"`
	Subtotals             map[string]extraction.FlexDecimal `json:"subtotals"`
}

func parseLiabilities(raw string) (LiabilityExtraction, error) {
	var r rawLiabilities
	if err := extraction.DecodeJSON(raw, &r); err != nil {
		return LiabilityExtraction{}, parseError(extraction.TaskLiabilities, err)
	}
	out := LiabilityExtraction{
		Currency:      strings.ToUpper(r.Currency.String()),
		StatementDate: optional(r.StatementDate.String()),
		Items:         toItems(r.Liabilities, r.Details),
		Subtotals:     toSubtotals(r.Subtotals),
	}
	out.Total = firstValid(sumItems(out.Items), r.TotalLiabilitiesValue, r.TotalValue)
	if out.Currency == "" {
		out.Currency = DefaultCurrency
	}
	return out, nil
}

type rawNormalized struct {
	OriginalValue       extraction.FlexString  `json:"original_value"`
	OriginalCurrency    extraction.FlexString  `json:"original_currency"`
	NormalizedValue     extraction.FlexDecimal `json:"normalized_value"`
	TargetCurrency      extraction.FlexString  `json:"target_currency"`
	ExchangeRateApplied extraction.FlexDecimal `json:"exchange_rate_applied"`
	Confidence          extraction.FlexString  `json:"confidence"`
}

type rawCurrencies struct {
	NormalizedValues []rawNormalized       `json:"normalized_values"`
	Total            extraction.FlexDecimal `json:"total_value_in_target_currency"`
}

func parseCurrencies(raw, target string) (CurrencyNormalization, error) {
	var r rawCurrencies
	if err := extraction.DecodeJSON(raw, &r); err != nil {
		return CurrencyNormalization{}, parseError(extraction.TaskNormalizeCurrencies, err)
	}
	out := CurrencyNormalization{
		Values:         make([]NormalizedValue, 0, len(r.NormalizedValues)),
		TargetCurrency: target,
	}
	sum := decimal.Zero
	for _, v := range r.NormalizedValues {
		nv := NormalizedValue{
			OriginalValue:    v.OriginalValue.String(),
			OriginalCurrency: strings.ToUpper(v.OriginalCurrency.String()),
			NormalizedValue:  v.NormalizedValue.Decimal,
			TargetCurrency:   target,
			Confidence:       string(domain.ParseConfidence(v.Confidence.String())),
		}
		if v.ExchangeRateApplied.Valid {
			rate := v.ExchangeRateApplied.Decimal
			nv.ExchangeRateApplied = &rate
		}
		sum = sum.Add(nv.NormalizedValue)
		out.Values = append(out.Values, nv)
	}
	out.TotalInTarget = firstValid(sum, r.Total)
	return out, nil
}
