package textgen

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"elementx/internal/logging"
)

// Retry retries GenerateJSON up to maxAttempts with exponential backoff
// starting at baseDelay. If context is canceled, it stops immediately.
func Retry(maxAttempts int, baseDelay time.Duration, log *zap.Logger) Middleware {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	return func(next Client) Client {
		return &retrying{next: next, max: maxAttempts, base: baseDelay, log: logging.OrNop(log)}
	}
}

type retrying struct {
	next Client
	max  int
	base time.Duration
	log  *zap.Logger
}

func (r *retrying) Name() string { return r.next.Name() }

func (r *retrying) GenerateJSON(ctx context.Context, req Request) (json.RawMessage, error) {
	var last error
	for i := 0; i < r.max; i++ {
		resp, err := r.next.GenerateJSON(ctx, req)
		if err == nil {
			return resp, nil
		}
		var pErr *PermanentError
		if errors.As(err, &pErr) {
			return nil, err
		}
		last = err
		if i == r.max-1 {
			break
		}
		delay := r.base * time.Duration(1<<i)
		r.log.Debug("retrying text generation",
			zap.String("client", r.next.Name()),
			zap.Int("attempt", i+1),
			zap.Duration("delay", delay),
			zap.Error(err))
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	return nil, last
}
