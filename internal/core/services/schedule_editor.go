package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dia/backend/internal/core/ports"
	"github.com/dia/backend/internal/domain"
	"github.com/dia/backend/internal/infrastructure/logger"
)

type ScheduleEditor struct {
	llm    ports.LLMProvider
	logger *logger.Logger
}

func NewScheduleEditor(llm ports.LLMProvider, logger *logger.Logger) *ScheduleEditor {
	return &ScheduleEditor{llm: llm, logger: logger}
}

type editRequest struct {
	UserRequest string      `json:"user_request"`
	Tasks       *[]wireTask `json:"tasks"`
}

type editItem struct {
	Action     string          `json:"action"`
	EditedTask json.RawMessage `json:"edited_task"`
}

// Edit asks the model how the candidate tasks should change. A nil
// candidates slice is sent as null, telling the model nothing matched.
//
// The whole response is rejected when any item names an action outside
// CREATED, UPDATED, DELETED and READ.
func (e *ScheduleEditor) Edit(ctx context.Context, request string, candidates []domain.Task, now time.Time) ([]domain.EditAction, error) {
	loc := now.Location()
	payload := editRequest{UserRequest: request}
	if candidates != nil {
		tasks := make([]wireTask, 0, len(candidates))
		for i := range candidates {
			tasks = append(tasks, toWireTask(&candidates[i], loc))
		}
		payload.Tasks = &tasks
	}
	msg, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal edit request: %w", err)
	}

	var temperature float32 = 0.2
	raw, err := e.llm.Complete(ctx, ports.CompletionRequest{
		Stage:        "edit",
		SystemPrompt: editPrompt + buildTimeAnchor(now, loc),
		UserMessage:  string(msg),
		JSONMode:     true,
		Temperature:  &temperature,
	})
	if err != nil {
		return nil, err
	}

	actions, err := parseEditResponse(stripFences(raw), loc)
	if err != nil {
		e.logger.Warnw("schedule_edit_parse_failed", "error", err, "raw", raw)
		return nil, err
	}
	return actions, nil
}

// parseEditResponse accepts either a bare array of items or {"tasks": [...]}.
func parseEditResponse(body []byte, loc *time.Location) ([]domain.EditAction, error) {
	var items []editItem
	if bytes.HasPrefix(body, []byte("[")) {
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrScheduleEditParse, err)
		}
	} else {
		var envelope struct {
			Tasks *[]editItem `json:"tasks"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrScheduleEditParse, err)
		}
		if envelope.Tasks == nil {
			return nil, fmt.Errorf("%w: missing tasks field", ErrScheduleEditParse)
		}
		items = *envelope.Tasks
	}

	actions := make([]domain.EditAction, 0, len(items))
	for i, item := range items {
		kind, err := domain.ParseActionKind(item.Action)
		if err != nil {
			return nil, fmt.Errorf("%w: item %d: %w", ErrUnsupportedAction, i, err)
		}
		action, err := decodeEditedTask(kind, item.EditedTask, loc)
		if err != nil {
			return nil, fmt.Errorf("%w: item %d (%s): %w", ErrScheduleEditParse, i, kind, err)
		}
		actions = append(actions, action)
	}
	return actions, nil
}

func decodeEditedTask(kind domain.ActionKind, raw json.RawMessage, loc *time.Location) (domain.EditAction, error) {
	action := domain.EditAction{Kind: kind}
	if isJSONNull(raw) {
		return action, errors.New("edited_task is missing")
	}

	// DELETED and READ only need the id; some models send it bare.
	if kind == domain.ActionDeleted || kind == domain.ActionRead {
		var id string
		if err := json.Unmarshal(raw, &id); err == nil {
			if id == "" {
				return action, errors.New("task id is empty")
			}
			action.TaskID = id
			return action, nil
		}
	}

	var w wireTask
	if err := json.Unmarshal(raw, &w); err != nil {
		return action, fmt.Errorf("edited_task must be an object: %v", err)
	}

	switch kind {
	case domain.ActionCreated:
		// New tasks always get a fresh id; whatever the model sent is ignored.
		draft, err := w.draft(loc)
		if err != nil {
			return action, err
		}
		action.Draft = draft
	case domain.ActionUpdated:
		if w.id() == "" {
			return action, errors.New("task id is required")
		}
		draft, err := w.draft(loc)
		if err != nil {
			return action, err
		}
		action.TaskID = w.id()
		action.Draft = draft
	default:
		if w.id() == "" {
			return action, errors.New("task id is required")
		}
		action.TaskID = w.id()
	}
	return action, nil
}
