package pipeline

import "fmt"

// OutcomeKind tags how a stage finished.
type OutcomeKind int

const (
	// OutcomeOK means the stage produced a decoded value.
	OutcomeOK OutcomeKind = iota
	// OutcomeFallback means the stage substituted its documented default.
	OutcomeFallback
	// OutcomeFailed means the stage could not produce a value.
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeFallback:
		return "fallback"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome is the result of one stage.
type Outcome[T any] struct {
	Kind   OutcomeKind
	Value  T
	Reason string
	Err    error
}

// OK wraps a decoded value.
func OK[T any](v T) Outcome[T] {
	return Outcome[T]{Kind: OutcomeOK, Value: v}
}

// Fallback wraps a stage default together with why it was used.
func Fallback[T any](v T, reason string) Outcome[T] {
	return Outcome[T]{Kind: OutcomeFallback, Value: v, Reason: reason}
}

// Failed wraps an error that must abort the document.
func Failed[T any](err error) Outcome[T] {
	return Outcome[T]{Kind: OutcomeFailed, Err: err}
}

// Get returns the value of an OK or Fallback outcome, or the error of a
// Failed one.
func (o Outcome[T]) Get() (T, error) {
	if o.Kind == OutcomeFailed {
		var zero T
		return zero, o.Err
	}
	return o.Value, nil
}

// IsFallback reports whether the stage used its default.
func (o Outcome[T]) IsFallback() bool {
	return o.Kind == OutcomeFallback
}
