// Package extraction is the boundary to the LLM text-completion service.
// Callers name a task and pass string parameters; the response is free-form
// text that callers validate before use.
package extraction

import (
	"context"
	"errors"
)

// TaskID names a task descriptor in the registry.
type TaskID string

const (
	TaskDetectLanguage               TaskID = "DetectLanguage"
	TaskTranslate                    TaskID = "TranslateFinancialDocument"
	TaskClientIdentifier             TaskID = "ExtractClientIdentifier"
	TaskMultilingualClientIdentifier TaskID = "ExtractMultilingualClientIdentifier"
	TaskClassify                     TaskID = "ClassifyFinancialDocument"
	TaskClassifyMultilingual         TaskID = "ClassifyMultilingualDocument"
	TaskOverview                     TaskID = "ExtractOverview"
	TaskAssets                       TaskID = "ExtractAssets"
	TaskLiabilities                  TaskID = "ExtractLiabilities"
	TaskNetWorth                     TaskID = "CalculateNetWorth"
	TaskNormalizeCurrencies          TaskID = "NormalizeCurrencies"
)

// Request is one extraction call.
type Request struct {
	Task   TaskID
	Params map[string]string
}

// Service completes extraction requests.
type Service interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// ServiceFunc adapts a function to Service.
type ServiceFunc func(ctx context.Context, req Request) (string, error)

// Complete calls f.
func (f ServiceFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

var (
	// ErrConfiguration marks missing credentials or unusable task descriptors.
	ErrConfiguration = errors.New("extraction configuration error")
	// ErrTransport marks failures talking to the completion backend.
	ErrTransport = errors.New("extraction transport error")
	// ErrTimeout marks a call that exceeded its own deadline while the caller's
	// context was still live.
	ErrTimeout = errors.New("extraction call timed out")
)
