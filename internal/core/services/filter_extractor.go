package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dia/backend/internal/core/ports"
	"github.com/dia/backend/internal/domain"
	"github.com/dia/backend/internal/infrastructure/logger"
)

type FilterExtractor struct {
	llm    ports.LLMProvider
	logger *logger.Logger
}

func NewFilterExtractor(llm ports.LLMProvider, logger *logger.Logger) *FilterExtractor {
	return &FilterExtractor{llm: llm, logger: logger}
}

// Extract asks the model for a task filter. Relative dates resolve against
// now, and zone-less timestamps are read in now's location.
//
// A response without the filters envelope is ErrMalformedResponse; an
// envelope holding unknown keys or values is ErrFilterValidation.
func (e *FilterExtractor) Extract(ctx context.Context, request string, now time.Time) (domain.Filter, error) {
	var zero float32
	raw, err := e.llm.Complete(ctx, ports.CompletionRequest{
		Stage:        "filters",
		SystemPrompt: filterPrompt + buildTimeAnchor(now, now.Location()),
		UserMessage:  request,
		JSONMode:     true,
		Temperature:  &zero,
	})
	if err != nil {
		return domain.Filter{}, err
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(stripFences(raw), &envelope); err != nil {
		e.logger.Warnw("filter_response_invalid_json", "error", err)
		return domain.Filter{}, fmt.Errorf("%w: filters: %v", ErrMalformedResponse, err)
	}
	rawFilters, ok := envelope["filters"]
	if !ok {
		e.logger.Warnw("filter_response_missing_envelope", "raw", raw)
		return domain.Filter{}, fmt.Errorf("%w: filters: missing filters field", ErrMalformedResponse)
	}

	filter, err := decodeFilter(rawFilters, now.Location())
	if err != nil {
		e.logger.Warnw("filter_validation_failed", "error", err, "raw", raw)
		return domain.Filter{}, fmt.Errorf("%w: %w", ErrFilterValidation, err)
	}
	e.logger.Debugw("filters_extracted", "filter", filter)
	return filter, nil
}

func decodeFilter(raw json.RawMessage, loc *time.Location) (domain.Filter, error) {
	var filter domain.Filter
	if isJSONNull(raw) {
		return filter, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return filter, fmt.Errorf("%w: filters must be an object", domain.ErrValidation)
	}

	for key, value := range fields {
		if isJSONNull(value) {
			continue
		}
		var err error
		switch key {
		case "start_time":
			filter.StartTime, err = decodeRange(key, value, loc)
		case "end_time":
			filter.EndTime, err = decodeRange(key, value, loc)
		case "reminder":
			filter.Reminder, err = decodeRange(key, value, loc)
		case "mark":
			var s string
			if err = json.Unmarshal(value, &s); err != nil {
				return filter, fmt.Errorf("%w: mark must be a string", domain.ErrValidation)
			}
			var mark domain.TaskMark
			if mark, err = domain.ParseTaskMark(s); err == nil {
				filter.Mark = &mark
			}
		case "status":
			var s string
			if err = json.Unmarshal(value, &s); err != nil {
				return filter, fmt.Errorf("%w: status must be a string", domain.ErrValidation)
			}
			var status domain.TaskStatus
			if status, err = domain.ParseTaskStatus(s); err == nil {
				filter.Status = &status
			}
		default:
			return filter, fmt.Errorf("%w: unknown filter field %q", domain.ErrValidation, key)
		}
		if err != nil {
			return filter, err
		}
	}

	if err := filter.Validate(); err != nil {
		return filter, err
	}
	return filter, nil
}

// decodeRange accepts a single timestamp (exact match) or a {gte, lte} object.
func decodeRange(field string, raw json.RawMessage, loc *time.Location) (*domain.TimeRange, error) {
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		t, err := domain.ParseTimestamp(single, loc)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", field, err)
		}
		return domain.At(t), nil
	}

	var bounds map[string]*string
	if err := json.Unmarshal(raw, &bounds); err != nil {
		return nil, fmt.Errorf("%w: %s must be a timestamp or a range", domain.ErrValidation, field)
	}
	r := &domain.TimeRange{}
	for op, value := range bounds {
		var target **time.Time
		switch op {
		case "gte":
			target = &r.Gte
		case "lte":
			target = &r.Lte
		default:
			return nil, fmt.Errorf("%w: %s has unknown operator %q", domain.ErrValidation, field, op)
		}
		t, err := optionalTime(value, loc)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", field, op, err)
		}
		*target = t
	}
	return r, nil
}
