// Package llmservice wraps one required primary provider and one
// optional fallback provider with retry-with-fixed-delay semantics,
// recording a full attempt log for every invocation regardless of
// outcome.
package llmservice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dealbroker/negotiator/internal/llm"
	"github.com/dealbroker/negotiator/internal/logger"
	"github.com/dealbroker/negotiator/internal/metrics"
)

// Attempt is a single provider invocation record, appended to the
// attempt log whether it succeeded or failed.
type Attempt struct {
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	LatencyMs int64  `json:"latencyMs"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// Config holds the service's retry policy.
type Config struct {
	MaxRetriesPerProvider int // default 3, must be >= 1
	RetryDelayMs          int // default 1000, fixed delay, no backoff
}

// DefaultConfig returns the spec defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetriesPerProvider: 3,
		RetryDelayMs:          1000,
	}
}

// AllProvidersExhausted is returned when every attempt against every
// configured provider failed.
type AllProvidersExhausted struct {
	LastError error
	Attempts  []Attempt
}

func (e *AllProvidersExhausted) Error() string {
	return fmt.Sprintf("all providers exhausted: %v", e.LastError)
}

func (e *AllProvidersExhausted) Unwrap() error {
	return e.LastError
}

// Service is stateless and safe to share across experts and concurrent
// pipeline invocations; it must not be shared concurrently from within
// a single call (no provider is ever invoked in parallel by one Call).
type Service struct {
	primary  llm.Provider
	fallback llm.Provider
	cfg      Config
}

// New creates a service with a required primary provider and an
// optional fallback (pass nil to disable fallback).
func New(primary llm.Provider, fallback llm.Provider, cfg Config) *Service {
	if cfg.MaxRetriesPerProvider < 1 {
		cfg.MaxRetriesPerProvider = 1
	}
	if cfg.RetryDelayMs < 0 {
		cfg.RetryDelayMs = 0
	}
	return &Service{primary: primary, fallback: fallback, cfg: cfg}
}

// Result is the outcome of a logical Call: the successful response and
// the full ordered attempt log across every provider tried.
type Result struct {
	Response llm.Response
	Attempts []Attempt
}

// Call attempts the primary provider up to MaxRetriesPerProvider
// times, then the fallback (if configured) the same number of times,
// sleeping RetryDelayMs between attempts within a single provider.
// Returns on the first success. The attempt log is populated even on
// total failure.
func (s *Service) Call(ctx context.Context, req llm.Request) (Result, error) {
	callID := uuid.NewString()
	var attempts []Attempt
	var lastErr error

	providers := []llm.Provider{s.primary}
	if s.fallback != nil {
		providers = append(providers, s.fallback)
	}

	for _, p := range providers {
		for attempt := 0; attempt < s.cfg.MaxRetriesPerProvider; attempt++ {
			if err := ctx.Err(); err != nil {
				return Result{Attempts: attempts}, err
			}

			resp, err := p.Execute(ctx, req)
			a := Attempt{Provider: p.Name(), Model: p.Model(), LatencyMs: resp.LatencyMs}
			if err != nil {
				a.Success = false
				a.Error = err.Error()
				lastErr = err
				metrics.ObserveLLMAttempt(p.Name(), false, resp.LatencyMs)
				logger.Debug("llm service attempt failed",
					"call_id", callID, "provider", p.Name(), "attempt", attempt+1, "error", err)
			} else {
				a.Success = true
				metrics.ObserveLLMAttempt(p.Name(), true, resp.LatencyMs)
			}
			attempts = append(attempts, a)

			if err == nil {
				return Result{Response: resp, Attempts: attempts}, nil
			}

			if attempt < s.cfg.MaxRetriesPerProvider-1 && s.cfg.RetryDelayMs > 0 {
				select {
				case <-time.After(time.Duration(s.cfg.RetryDelayMs) * time.Millisecond):
				case <-ctx.Done():
					return Result{Attempts: attempts}, ctx.Err()
				}
			}
		}
	}

	if lastErr == nil {
		lastErr = errors.New("no provider configured")
	}
	return Result{Attempts: attempts}, &AllProvidersExhausted{LastError: lastErr, Attempts: attempts}
}
