package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/dia/backend/internal/config"
	"github.com/dia/backend/internal/core/ports"
	"github.com/dia/backend/internal/infrastructure/logger"
	"github.com/sashabaranov/go-openai"
)

// Client is an OpenAI-compatible chat completion provider with per-call
// timeouts, retries, client-side rate limiting and bounded concurrency.
type Client struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	guard       *guard
	metrics     ports.AssistantMetrics
	log         *logger.Logger
}

func NewClient(cfg config.LLMConfig, log *logger.Logger, metrics ports.AssistantMetrics) *Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = baseURLFor(cfg.Provider, cfg.BaseURL)
	clientConfig.HTTPClient = newHTTPClient()

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     timeout,
		guard: newGuard(cfg.RatePerSecond, cfg.RateBurst, cfg.MaxConcurrent,
			cfg.MaxRetries, cfg.RetryBaseDelay, cfg.RetryMaxDelay, log),
		metrics: metrics,
		log:     log,
	}
}

func baseURLFor(provider, baseURL string) string {
	if baseURL != "" {
		return baseURL
	}
	switch provider {
	case "deepseek":
		return "https://api.deepseek.com"
	case "openrouter":
		return "https://openrouter.ai/api/v1"
	case "ollama":
		return "http://localhost:11434/v1"
	default:
		return "https://api.openai.com/v1"
	}
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          50,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: time.Second,
		},
	}
}

func (c *Client) Complete(ctx context.Context, req ports.CompletionRequest) (string, error) {
	var content string
	err := c.guard.do(ctx, req.Stage, func(ctx context.Context) error {
		var err error
		content, err = c.completeOnce(ctx, req)
		return err
	}, func(err error, elapsed time.Duration) {
		c.observe(req.Stage, err, elapsed)
	})
	if err != nil {
		return "", err
	}
	return content, nil
}

func (c *Client) completeOnce(ctx context.Context, req ports.CompletionRequest) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	temperature := c.temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	maxTokens := c.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	chatReq := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: req.UserMessage},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
	if req.JSONMode {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.client.CreateChatCompletion(callCtx, chatReq)
	if err != nil {
		return "", upstreamErr(callCtx, req.Stage, c.timeout, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: %s returned no choices", ports.ErrMalformedResponse, req.Stage)
	}

	c.log.Debugw("llm_call_ok",
		"stage", req.Stage,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (c *Client) observe(stage string, err error, elapsed time.Duration) {
	if c.metrics == nil {
		return
	}
	status := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ports.ErrUpstreamTimeout):
		status = "timeout"
	default:
		status = "error"
	}
	c.metrics.ObserveLLMCall(stage, status, elapsed)
}
