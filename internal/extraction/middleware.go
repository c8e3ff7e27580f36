package extraction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/kyc-ledger/internal/logger"
)

// WithTimeout bounds every call with its own deadline. A call that runs out
// of time while ctx is still live fails with ErrTimeout.
func WithTimeout(next Service, d time.Duration) Service {
	if d <= 0 {
		return next
	}
	return ServiceFunc(func(ctx context.Context, req Request) (string, error) {
		callCtx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		out, err := next.Complete(callCtx, req)
		if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %s after %s", ErrTimeout, req.Task, d)
		}
		return out, err
	})
}

// WithLogging logs every call with its duration and response size using the
// logger carried by ctx.
func WithLogging(next Service) Service {
	return ServiceFunc(func(ctx context.Context, req Request) (string, error) {
		log := logger.FromContext(ctx)
		start := time.Now()

		out, err := next.Complete(ctx, req)

		ev := log.Debug()
		if err != nil {
			ev = log.Warn().Err(err)
		}
		ev.Str("task", string(req.Task)).
			Dur("duration", time.Since(start)).
			Int("response_bytes", len(out)).
			Msg("Extraction call")
		return out, err
	})
}
