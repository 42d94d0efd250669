package embedding

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/crosslink/backend/pkg/circuitbreaker"
	"github.com/crosslink/backend/pkg/logger"
	"github.com/crosslink/backend/pkg/retry"
)

// Provider generates embeddings through the OpenAI API, wrapped in a
// circuit breaker and retry policy so a flaky upstream degrades the
// cache chain instead of taking the whole generation run down.
type Provider struct {
	client      *openai.Client
	model       string
	timeout     time.Duration
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

func NewProvider(apiKey, model string, timeout time.Duration) *Provider {
	client := openai.NewClient(apiKey)

	cb := circuitbreaker.NewCircuitBreaker("embedding", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	logger.Info("Embedding provider initialized", zap.String("model", model))

	return &Provider{
		client:      client,
		model:       model,
		timeout:     timeout,
		cb:          cb,
		retryConfig: retryConfig,
	}
}

func (p *Provider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var embedding []float32

	err := p.cb.Execute(ctx, func() error {
		return retry.Do(ctx, p.retryConfig, func() error {
			resp, err := p.client.CreateEmbeddings(
				ctx,
				openai.EmbeddingRequest{
					Input: []string{text},
					Model: openai.EmbeddingModel(p.model),
				},
			)

			if err != nil {
				return fmt.Errorf("failed to generate embedding: %w", err)
			}

			embedding = make([]float32, len(resp.Data[0].Embedding))
			copy(embedding, resp.Data[0].Embedding)

			return nil
		})
	})

	if err != nil {
		return nil, err
	}

	return embedding, nil
}
