package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"opsagent/pkg/circuit"
	"opsagent/pkg/llm/llmerrors"
	"opsagent/pkg/logx"
	"opsagent/pkg/retry"
)

// RetryableClient wraps a Client with retry logic driven by error
// classification.
type RetryableClient struct {
	client Client
	policy *retry.Policy
	logger *logx.Logger
}

// NewRetryableClient creates a retrying wrapper around client.
func NewRetryableClient(client Client, config retry.Config) *RetryableClient {
	return &RetryableClient{
		client: client,
		policy: retry.NewPolicy(config, shouldRetryLLM),
		logger: logx.NewLogger("llm-retry"),
	}
}

// Complete implements Client with retry logic.
func (r *RetryableClient) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	resp, err := retry.DoValue(ctx, r.policy, func(ctx context.Context) (CompletionResponse, error) {
		return r.client.Complete(ctx, req)
	})
	if err != nil {
		r.logger.Warn("completion failed (%s), prompt: %s",
			llmerrors.TypeOf(err), llmerrors.SanitizePrompt(flattenMessages(req.Messages), 200))
		return CompletionResponse{}, fmt.Errorf("completion failed after retries: %w", err)
	}
	return resp, nil
}

// flattenMessages joins message contents for log sanitization.
func flattenMessages(messages []Message) string {
	parts := make([]string, 0, len(messages))
	for i := range messages {
		parts = append(parts, messages[i].Content)
	}
	return strings.Join(parts, "\n")
}

// shouldRetryLLM prefers the classified error's own retry hint and falls
// back to the generic pattern classifier.
func shouldRetryLLM(err error) bool {
	if err == nil {
		return false
	}

	var llmErr *llmerrors.Error
	if errors.As(err, &llmErr) {
		return llmErr.IsRetryable()
	}

	return retry.ShouldRetry(err)
}

// BreakerClient wraps a Client with a circuit breaker so a persistently
// failing provider is rejected fast instead of hammered.
type BreakerClient struct {
	client  Client
	breaker *circuit.Breaker
	logger  *logx.Logger
}

// NewBreakerClient creates a circuit-breaking wrapper around client.
func NewBreakerClient(client Client, config circuit.Config) *BreakerClient {
	return &BreakerClient{
		client:  client,
		breaker: circuit.New(config),
		logger:  logx.NewLogger("llm-breaker"),
	}
}

// Complete implements Client with circuit breaker logic.
func (b *BreakerClient) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	resp, err := circuit.Execute(b.breaker, ctx, func(ctx context.Context) (CompletionResponse, error) {
		return b.client.Complete(ctx, req)
	})
	if err != nil {
		var cbErr *circuit.Error
		if errors.As(err, &cbErr) {
			b.logger.Warn("completion rejected: %v", err)
			return CompletionResponse{}, err
		}
		b.logger.Debug("completion failure recorded: %v", err)
		return CompletionResponse{}, err
	}
	return resp, nil
}

// State exposes the underlying breaker state.
func (b *BreakerClient) State() circuit.State {
	return b.breaker.State()
}

// Reset forces the underlying breaker closed.
func (b *BreakerClient) Reset() {
	b.breaker.Reset()
}

// NewResilientClient layers a circuit breaker inside retry logic. The
// breaker sits on the inside so its rejections are not retried.
func NewResilientClient(base Client, breakerCfg circuit.Config, retryCfg retry.Config) Client {
	return NewRetryableClient(NewBreakerClient(base, breakerCfg), retryCfg)
}
