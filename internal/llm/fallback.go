package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Fallback tries the primary client first and switches to the secondary when the
// primary fails before producing any text.
type Fallback struct {
	primary  Client
	fallback Client
}

func NewFallback(primary, fallback Client) *Fallback {
	return &Fallback{primary: primary, fallback: fallback}
}

func (f *Fallback) Stream(ctx context.Context, req Request, onDelta DeltaHandler) (Response, error) {
	if f.primary == nil {
		return f.secondary().Stream(ctx, req, onDelta)
	}

	emitted := false
	resp, err := f.primary.Stream(ctx, req, func(delta string) error {
		if strings.TrimSpace(delta) != "" {
			emitted = true
		}
		if onDelta == nil {
			return nil
		}
		return onDelta(delta)
	})
	if err == nil || emitted || f.fallback == nil {
		return resp, err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resp, err
	}

	fallbackResp, fallbackErr := f.fallback.Stream(ctx, req, onDelta)
	if fallbackErr != nil {
		return fallbackResp, fmt.Errorf("primary llm error: %w; fallback llm error: %v", err, fallbackErr)
	}
	return fallbackResp, nil
}

func (f *Fallback) Complete(ctx context.Context, req Request) (Response, error) {
	if f.primary == nil {
		return f.secondary().Complete(ctx, req)
	}
	resp, err := f.primary.Complete(ctx, req)
	if err == nil || f.fallback == nil {
		return resp, err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resp, err
	}
	fallbackResp, fallbackErr := f.fallback.Complete(ctx, req)
	if fallbackErr != nil {
		return fallbackResp, fmt.Errorf("primary llm error: %w; fallback llm error: %v", err, fallbackErr)
	}
	return fallbackResp, nil
}

// ConfigError is only reported when neither side can serve.
func (f *Fallback) ConfigError() error {
	primaryErr := CheckConfigured(f.primary)
	if primaryErr == nil {
		return nil
	}
	if f.fallback != nil && CheckConfigured(f.fallback) == nil {
		return nil
	}
	return primaryErr
}

func (f *Fallback) secondary() Client {
	if f.fallback == nil {
		return &Unconfigured{Err: errors.New("fallback llm misconfigured")}
	}
	return f.fallback
}
