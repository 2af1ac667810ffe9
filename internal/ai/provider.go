package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/keshon/troupe/pkg/retrylimit"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options carries per-call generation parameters. Zero values mean
// provider defaults.
type Options struct {
	Temperature float64
	MaxTokens   int
}

type Provider interface {
	Generate(messages []Message, opts Options) (string, error)
}

// NewProvider builds a provider from an engine string, e.g.
// "pollinations", "g4f:gpt-oss-120b", "g4f:groq/qwen/qwen3-32b".
// The provider is wrapped with retry and adaptive rate limiting.
func NewProvider(engine string) (Provider, error) {
	switch {
	case engine == "pollinations":
		return withRetry(NewPollinationsProvider()), nil
	case engine == "" || engine == "g4f" || strings.HasPrefix(engine, "g4f:"):
		return withRetry(NewG4FProvider(engine)), nil
	default:
		return nil, fmt.Errorf("unsupported AI_PROVIDER: %s", engine)
	}
}

// retryingProvider retries transient generation failures and adapts the
// request rate to upstream pushback.
type retryingProvider struct {
	inner Provider
	lim   *retrylimit.AdaptiveLimiter
	cfg   retrylimit.RetryConfig
}

func withRetry(inner Provider) Provider {
	return &retryingProvider{
		inner: inner,
		lim:   retrylimit.NewAdaptiveLimiter(2, 1, 10, 1, 0.5),
		cfg: retrylimit.RetryConfig{
			MaxAttempts:    3,
			InitialDelay:   2 * time.Second,
			MaxDelay:       20 * time.Second,
			RateLimitDelay: 10 * time.Second,
			Multiplier:     2.0,
			Jitter:         true,
		},
	}
}

func (r *retryingProvider) Generate(messages []Message, opts Options) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	var reply string
	err := retrylimit.WithRetryConfig(ctx, func() error {
		var err error
		reply, err = r.inner.Generate(messages, opts)
		return err
	}, r.lim, r.cfg)
	if err != nil {
		return "", err
	}
	return reply, nil
}
