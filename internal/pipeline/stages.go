package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dvloznov/kyc-ledger/internal/domain"
	"github.com/dvloznov/kyc-ledger/internal/extraction"
	"github.com/dvloznov/kyc-ledger/internal/logger"
)

// Stages runs individual extraction stages. It keeps no state between
// documents and is safe for concurrent use.
type Stages struct {
	svc extraction.Service
}

// NewStages creates the stage runner over svc.
func NewStages(svc extraction.Service) *Stages {
	return &Stages{svc: svc}
}

// OverviewResult is the financial overview with any entries that had to be
// skipped.
type OverviewResult struct {
	Overview domain.FinancialOverview
	Warnings []string
}

// DetectLanguage identifies the document language from its first
// LanguageSampleRunes characters. Unparsable output and timeouts yield the
// English default; transport and configuration errors fail the stage.
func (s *Stages) DetectLanguage(ctx context.Context, text string) Outcome[domain.LanguageInfo] {
	raw, err := s.svc.Complete(ctx, extraction.Request{
		Task:   extraction.TaskDetectLanguage,
		Params: map[string]string{"document_sample": DocumentSample(text, LanguageSampleRunes)},
	})
	if err != nil {
		if isFatal(ctx, err) || !errors.Is(err, extraction.ErrTimeout) {
			return Failed[domain.LanguageInfo](err)
		}
		return Fallback(domain.DefaultLanguage(), err.Error())
	}

	info, err := parseLanguage(raw)
	if err != nil {
		return Fallback(domain.DefaultLanguage(), err.Error())
	}
	return OK(info)
}

// Translate renders a non-English document in English. Any failure short of
// cancellation returns the original text.
func (s *Stages) Translate(ctx context.Context, text string, lang domain.LanguageInfo) Outcome[string] {
	if lang.IsEnglish() {
		return OK(text)
	}
	source := lang.PrimaryLanguage
	if source == "" {
		source = lang.LanguageCode
	}

	raw, err := s.svc.Complete(ctx, extraction.Request{
		Task:   extraction.TaskTranslate,
		Params: map[string]string{"document": text, "source_language": source},
	})
	if err != nil {
		if ctx.Err() != nil {
			return Failed[string](ctx.Err())
		}
		return Fallback(text, err.Error())
	}
	translated := strings.TrimSpace(raw)
	if translated == "" {
		return Fallback(text, "empty translation")
	}
	return OK(translated)
}

// IdentifyClient extracts the primary client using the language-appropriate
// task. Decode failures and timeouts yield the unknown client.
func (s *Stages) IdentifyClient(ctx context.Context, text, languageCode string) Outcome[domain.ClientInfo] {
	req := clientIdentification.request(text, languageCode)
	raw, err := s.svc.Complete(ctx, req)
	if err != nil {
		if isFatal(ctx, err) || !errors.Is(err, extraction.ErrTimeout) {
			return Failed[domain.ClientInfo](err)
		}
		return Fallback(domain.UnknownClientInfo(), err.Error())
	}

	info, err := parseClient(req.Task, raw)
	if err != nil {
		return Fallback(domain.UnknownClientInfo(), err.Error())
	}
	if info.LanguageDetected == "" && languageCode != "en" {
		info.LanguageDetected = languageCode
	}
	return OK(info)
}

// Classify assigns a document category. There is no default: any service
// error, including a timeout, fails the stage.
func (s *Stages) Classify(ctx context.Context, text, languageCode string) Outcome[domain.DocumentCategory] {
	raw, err := s.svc.Complete(ctx, classification.request(text, languageCode))
	if err != nil {
		return Failed[domain.DocumentCategory](err)
	}
	return OK(ParseCategoryLabel(raw))
}

// ExtractOverview extracts per-client assets, liabilities and income.
// Malformed output and timeouts yield an empty overview.
func (s *Stages) ExtractOverview(ctx context.Context, text string, client domain.ClientInfo) Outcome[OverviewResult] {
	empty := OverviewResult{Overview: domain.FinancialOverview{}}

	raw, err := s.svc.Complete(ctx, extraction.Request{
		Task:   extraction.TaskOverview,
		Params: map[string]string{"document": text},
	})
	if err != nil {
		if isFatal(ctx, err) || !errors.Is(err, extraction.ErrTimeout) {
			return Failed[OverviewResult](err)
		}
		return Fallback(empty, err.Error())
	}

	overview, warnings, err := parseOverview(raw, client)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Msg("Failed to parse financial overview")
		return Fallback(empty, err.Error())
	}
	return OK(OverviewResult{Overview: overview, Warnings: warnings})
}

// ExtractAssets extracts asset line items. Decode failures and timeouts
// yield a zero total in DefaultCurrency.
func (s *Stages) ExtractAssets(ctx context.Context, text string, docType domain.DocumentCategory, tables string) Outcome[AssetExtraction] {
	raw, err := s.svc.Complete(ctx, extraction.Request{
		Task:   extraction.TaskAssets,
		Params: map[string]string{"document": text, "document_type": string(docType), "tables": tables},
	})
	if err != nil {
		if isFatal(ctx, err) || !errors.Is(err, extraction.ErrTimeout) {
			return Failed[AssetExtraction](err)
		}
		return Fallback(defaultAssetExtraction(), err.Error())
	}
	out, err := parseAssets(raw)
	if err != nil {
		return Fallback(defaultAssetExtraction(), err.Error())
	}
	return OK(out)
}

// ExtractLiabilities extracts liability line items. Decode failures and
// timeouts yield a zero total in DefaultCurrency.
func (s *Stages) ExtractLiabilities(ctx context.Context, text string, docType domain.DocumentCategory, tables string) Outcome[LiabilityExtraction] {
	raw, err := s.svc.Complete(ctx, extraction.Request{
		Task:   extraction.TaskLiabilities,
		Params: map[string]string{"document": text, "document_type": string(docType), "tables": tables},
	})
	if err != nil {
		if isFatal(ctx, err) || !errors.Is(err, extraction.ErrTimeout) {
			return Failed[LiabilityExtraction](err)
		}
		return Fallback(defaultLiabilityExtraction(), err.Error())
	}
	out, err := parseLiabilities(raw)
	if err != nil {
		return Fallback(defaultLiabilityExtraction(), err.Error())
	}
	return OK(out)
}

// NormalizeCurrencies converts monetary strings into target. Decode
// failures and timeouts yield an empty list and a zero total.
func (s *Stages) NormalizeCurrencies(ctx context.Context, values []string, target string) Outcome[CurrencyNormalization] {
	if target == "" {
		target = DefaultCurrency
	}
	input, err := json.Marshal(values)
	if err != nil {
		return Failed[CurrencyNormalization](fmt.Errorf("encoding values: %w", err))
	}

	raw, err := s.svc.Complete(ctx, extraction.Request{
		Task:   extraction.TaskNormalizeCurrencies,
		Params: map[string]string{"input_values": string(input), "target_currency": target},
	})
	if err != nil {
		if isFatal(ctx, err) || !errors.Is(err, extraction.ErrTimeout) {
			return Failed[CurrencyNormalization](err)
		}
		return Fallback(defaultCurrencyNormalization(target), err.Error())
	}
	out, err := parseCurrencies(raw, target)
	if err != nil {
		return Fallback(defaultCurrencyNormalization(target), err.Error())
	}
	return OK(out)
}
