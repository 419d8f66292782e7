package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/dia/backend/internal/config"
	"github.com/dia/backend/internal/core/ports"
	"github.com/dia/backend/internal/infrastructure/logger"
	"github.com/sashabaranov/go-openai"
)

const embeddingStage = "embedding"

type Embedder struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
	timeout    time.Duration
	guard      *guard
	log        *logger.Logger
}

// NewEmbedder builds an embeddings client. When chat is given the embedder
// shares its rate limit, concurrency bound and retry policy.
func NewEmbedder(cfg config.EmbeddingConfig, chat *Client, log *logger.Logger) *Embedder {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = baseURLFor("openai", cfg.BaseURL)
	clientConfig.HTTPClient = newHTTPClient()

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	g := newGuard(0, 0, 0, 2, 0, 0, log)
	if chat != nil {
		g = chat.guard
	}
	return &Embedder{
		client:     openai.NewClientWithConfig(clientConfig),
		model:      openai.EmbeddingModel(cfg.Model),
		dimensions: cfg.Dimensions,
		timeout:    timeout,
		guard:      g,
		log:        log,
	}
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := e.guard.do(ctx, embeddingStage, func(ctx context.Context) error {
		var err error
		vec, err = e.embedOnce(ctx, text)
		return err
	}, nil)
	if err != nil {
		e.log.Errorw("embedding_failed", "model", e.model, "error", err)
		return nil, err
	}
	return vec, nil
}

func (e *Embedder) embedOnce(ctx context.Context, text string) ([]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.CreateEmbeddings(callCtx, openai.EmbeddingRequest{
		Input:      []string{text},
		Model:      e.model,
		Dimensions: e.dimensions,
	})
	if err != nil {
		return nil, upstreamErr(callCtx, embeddingStage, e.timeout, err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: embedding returned no data", ports.ErrMalformedResponse)
	}
	return resp.Data[0].Embedding, nil
}
