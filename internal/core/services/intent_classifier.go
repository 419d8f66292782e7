package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dia/backend/internal/core/ports"
	"github.com/dia/backend/internal/domain"
	"github.com/dia/backend/internal/infrastructure/logger"
)

type IntentClassifier struct {
	llm    ports.LLMProvider
	logger *logger.Logger
}

func NewIntentClassifier(llm ports.LLMProvider, logger *logger.Logger) *IntentClassifier {
	return &IntentClassifier{llm: llm, logger: logger}
}

// Classify routes a request. A response that is not JSON or has no
// delegate_to field is ErrMalformedResponse.
func (c *IntentClassifier) Classify(ctx context.Context, request string) (domain.Intent, error) {
	var zero float32
	raw, err := c.llm.Complete(ctx, ports.CompletionRequest{
		Stage:        "intent",
		SystemPrompt: intentPrompt,
		UserMessage:  request,
		JSONMode:     true,
		Temperature:  &zero,
		MaxTokens:    64,
	})
	if err != nil {
		return "", err
	}

	var resp struct {
		DelegateTo *string `json:"delegate_to"`
	}
	if err := json.Unmarshal(stripFences(raw), &resp); err != nil {
		c.logger.Warnw("intent_response_invalid_json", "error", err)
		return "", fmt.Errorf("%w: intent: %v", ErrMalformedResponse, err)
	}
	if resp.DelegateTo == nil {
		c.logger.Warnw("intent_response_missing_field", "raw", raw)
		return "", fmt.Errorf("%w: intent: missing delegate_to", ErrMalformedResponse)
	}

	intent := domain.ParseIntent(*resp.DelegateTo)
	if intent == domain.IntentUnknown {
		c.logger.Infow("intent_unknown_agent", "delegate_to", *resp.DelegateTo)
	}
	return intent, nil
}
