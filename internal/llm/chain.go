package llm

import (
	"context"
	"fmt"
	"time"

	"curator/internal/logger"
	"curator/internal/retry"
)

const defaultCallTimeout = 45 * time.Second

// Chain tries an ordered list of providers until one returns output that
// parses into the task's expected JSON shape. Provider failures are logged
// and swallowed; exhaustion is reported to the task layer, which substitutes
// a safe default. The chain itself never panics and never lets a vendor
// error escape to user-facing flows.
type Chain struct {
	providers   []Provider
	callTimeout time.Duration
}

// NewChain builds a chain over providers in strict priority order.
func NewChain(callTimeout time.Duration, providers ...Provider) *Chain {
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}
	return &Chain{providers: providers, callTimeout: callTimeout}
}

// Providers returns the configured provider names in priority order.
func (c *Chain) Providers() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return names
}

// run sends prompt down the chain and unmarshals the first usable reply
// into out. The returned string is the name of the provider that succeeded.
// reset zeroes out before each provider's reply is parsed, so fields from a
// rejected reply never survive into a later provider's result. validate,
// when non-nil, rejects structurally valid JSON that fails the task's
// semantic checks.
func (c *Chain) run(ctx context.Context, prompt string, out any, reset func(), validate func() error) (string, error) {
	if len(c.providers) == 0 {
		return "", fmt.Errorf("no providers configured")
	}

	var lastErr error
	for _, provider := range c.providers {
		raw, err := retry.Do(ctx, func(ctx context.Context) (string, error) {
			return retry.WithTimeout(ctx, c.callTimeout,
				fmt.Sprintf("provider %s timed out after %s", provider.Name(), c.callTimeout),
				func(ctx context.Context) (string, error) {
					return provider.Complete(ctx, prompt)
				})
		}, retry.Options{
			MaxAttempts:  2,
			InitialDelay: 500 * time.Millisecond,
			OnRetry: func(attempt int, err error) {
				logger.Warn("provider call failed, retrying",
					map[string]any{"provider": provider.Name(), "attempt": attempt, "error": err.Error()})
			},
		})
		if err != nil {
			lastErr = err
			logger.Warn("provider failed, advancing down the chain",
				map[string]any{"provider": provider.Name(), "error": err.Error()})
			continue
		}

		if reset != nil {
			reset()
		}
		if err := ExtractJSON(raw, out); err != nil {
			lastErr = &ProviderError{Provider: provider.Name(), Err: err}
			logger.Warn("provider returned unparseable output, advancing down the chain",
				map[string]any{"provider": provider.Name(), "error": err.Error()})
			continue
		}
		if validate != nil {
			if err := validate(); err != nil {
				lastErr = &ProviderError{Provider: provider.Name(), Err: err}
				logger.Warn("provider output failed validation, advancing down the chain",
					map[string]any{"provider": provider.Name(), "error": err.Error()})
				continue
			}
		}

		return provider.Name(), nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("all providers failed")
	}
	return "", fmt.Errorf("provider chain exhausted: %w", lastErr)
}
