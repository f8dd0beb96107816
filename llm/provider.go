package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Request carries one completion call. System and Prompt are kept separate so
// providers that support a system role can use it natively.
type Request struct {
	Model       string
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Completer is a single text-generation provider.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
	Name() string
}

// Error categories. Providers map their wire failures onto these so the chain
// and its callers can tell a quota problem from a bad key.
var (
	ErrRateLimited  = errors.New("rate limited")
	ErrUnauthorized = errors.New("invalid or missing credentials")
	ErrTimeout      = errors.New("request timed out")
	ErrMalformed    = errors.New("malformed provider response")
	ErrUnavailable  = errors.New("provider unavailable")
)

// Entry is one step in a fallback chain.
type Entry struct {
	Provider Completer
	Model    string
}

// Chain tries each entry in order until one returns a non-empty completion.
// The winner's identity is reported so responses can be attributed to the
// model that actually produced them.
type Chain struct {
	entries []Entry
	logger  *slog.Logger
}

func NewChain(entries []Entry, logger *slog.Logger) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{entries: entries, logger: logger}
}

// Complete runs the fallback chain. On total failure it returns the last
// error, which keeps the most specific category (eg. ErrRateLimited) intact
// for errors.Is checks.
func (c *Chain) Complete(ctx context.Context, req Request) (string, string, error) {
	if len(c.entries) == 0 {
		return "", "", fmt.Errorf("completion chain is empty")
	}

	var lastErr error
	for _, entry := range c.entries {
		if ctx.Err() != nil {
			return "", "", fmt.Errorf("completion aborted: %w", ctx.Err())
		}

		attempt := req
		attempt.Model = entry.Model

		text, err := entry.Provider.Complete(ctx, attempt)
		if err != nil {
			c.logger.Warn("completion attempt failed",
				"provider", entry.Provider.Name(),
				"model", entry.Model,
				"error", err,
			)
			lastErr = err
			continue
		}
		if text == "" {
			lastErr = fmt.Errorf("%s/%s: %w: empty completion", entry.Provider.Name(), entry.Model, ErrMalformed)
			c.logger.Warn("completion attempt returned no text",
				"provider", entry.Provider.Name(),
				"model", entry.Model,
			)
			continue
		}

		return text, entry.Provider.Name() + "/" + entry.Model, nil
	}

	return "", "", fmt.Errorf("all completion providers failed: %w", lastErr)
}
