package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dia/backend/internal/core/ports"
	"github.com/dia/backend/internal/domain"
	"github.com/dia/backend/internal/infrastructure/logger"
)

type taskDrafter struct {
	llm    ports.LLMProvider
	tasks  ports.TaskService
	users  ports.UserRepository
	logger *logger.Logger
	now    func() time.Time
}

func NewTaskDrafter(llm ports.LLMProvider, tasks ports.TaskService, users ports.UserRepository, logger *logger.Logger) ports.TaskDrafter {
	return &taskDrafter{llm: llm, tasks: tasks, users: users, logger: logger, now: time.Now}
}

// DraftTask turns free text into a single stored task.
func (d *taskDrafter) DraftTask(ctx context.Context, ownerID, text string) (*domain.Task, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: text is required", domain.ErrValidation)
	}

	loc := time.UTC
	if d.users != nil {
		user, err := d.users.GetByID(ctx, ownerID)
		if err != nil {
			return nil, storeErr("get user", err)
		}
		loc = user.Location()
	}
	now := d.now().In(loc)

	raw, err := d.llm.Complete(ctx, ports.CompletionRequest{
		Stage:        "draft",
		SystemPrompt: draftPrompt + buildTimeAnchor(now, loc),
		UserMessage:  text,
		JSONMode:     true,
	})
	if err != nil {
		return nil, err
	}

	var w wireTask
	if err := json.Unmarshal(stripFences(raw), &w); err != nil {
		d.logger.Warnw("draft_response_invalid_json", "error", err)
		return nil, fmt.Errorf("%w: draft: %v", ErrMalformedResponse, err)
	}
	// Drafts always start out as new tasks.
	w.Status = nil
	draft, err := w.draft(loc)
	if err != nil {
		return nil, fmt.Errorf("%w: draft: %w", ErrMalformedResponse, err)
	}
	if draft.Title == nil || draft.StartTime == nil {
		return nil, fmt.Errorf("%w: draft: title and start_time are required", ErrMalformedResponse)
	}

	return d.tasks.CreateTask(ctx, ownerID, ports.CreateTaskInput{
		Title:       *draft.Title,
		Description: draft.Description,
		StartTime:   *draft.StartTime,
		EndTime:     draft.EndTime,
		Reminder:    draft.Reminder,
		Mark:        draft.Mark,
	})
}
