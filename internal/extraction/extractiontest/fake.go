// Package extractiontest provides a scripted extraction.Service for tests.
package extractiontest

import (
	"context"
	"sync"

	"github.com/dvloznov/kyc-ledger/internal/extraction"
)

// Fake answers each task from Responses or Errors and records every call.
// Func, when set, takes precedence.
type Fake struct {
	Responses map[extraction.TaskID]string
	Errors    map[extraction.TaskID]error
	Func      func(ctx context.Context, req extraction.Request) (string, error)

	mu    sync.Mutex
	calls []extraction.Request
}

// Complete implements extraction.Service.
func (f *Fake) Complete(ctx context.Context, req extraction.Request) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()

	if f.Func != nil {
		return f.Func(ctx, req)
	}
	if err, ok := f.Errors[req.Task]; ok {
		return "", err
	}
	return f.Responses[req.Task], nil
}

// Calls returns a copy of every request received.
func (f *Fake) Calls() []extraction.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]extraction.Request(nil), f.calls...)
}

// CallCount counts the requests for one task.
func (f *Fake) CallCount(task extraction.TaskID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Task == task {
			n++
		}
	}
	return n
}

// LastCall returns the most recent request for a task.
func (f *Fake) LastCall(task extraction.TaskID) (extraction.Request, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].Task == task {
			return f.calls[i], true
		}
	}
	return extraction.Request{}, false
}

var _ extraction.Service = (*Fake)(nil)
