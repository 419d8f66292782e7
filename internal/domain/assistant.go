package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Intent string

const (
	IntentSchedule Intent = "schedule_agent"
	IntentUnknown  Intent = "unknown"
)

// ParseIntent maps a routing name to an Intent; anything unrecognised is unknown.
func ParseIntent(name string) Intent {
	if strings.TrimSpace(name) == string(IntentSchedule) {
		return IntentSchedule
	}
	return IntentUnknown
}

type ActionKind string

const (
	ActionCreated ActionKind = "CREATED"
	ActionUpdated ActionKind = "UPDATED"
	ActionDeleted ActionKind = "DELETED"
	ActionRead    ActionKind = "READ"
)

// ErrUnknownAction is returned by ParseActionKind for names outside the
// closed action set.
var ErrUnknownAction = errors.New("unknown action")

func ParseActionKind(s string) (ActionKind, error) {
	switch k := ActionKind(strings.ToUpper(strings.TrimSpace(s))); k {
	case ActionCreated, ActionUpdated, ActionDeleted, ActionRead:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

// EditAction is one instruction produced by the schedule editor.
type EditAction struct {
	Kind   ActionKind
	TaskID string
	Draft  TaskDraft
}

type ActionResult string

const (
	ActionResultApplied ActionResult = "applied"
	ActionResultSkipped ActionResult = "skipped"
	ActionResultFailed  ActionResult = "failed"
)

// AppliedAction reports what happened to one EditAction.
type AppliedAction struct {
	Action ActionKind   `json:"action"`
	TaskID string       `json:"task_id,omitempty"`
	Task   *Task        `json:"task,omitempty"`
	Result ActionResult `json:"result"`
	Error  string       `json:"error,omitempty"`
}

type AssistantResult struct {
	RequestID string          `json:"request_id"`
	Intent    Intent          `json:"intent"`
	Message   string          `json:"message,omitempty"`
	Actions   []AppliedAction `json:"actions"`
}

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Job tracks an assistant request executed in the background.
type Job struct {
	ID        string           `json:"id"`
	OwnerID   string           `json:"owner_id"`
	Request   string           `json:"request"`
	Status    JobStatus        `json:"status"`
	Result    *AssistantResult `json:"result,omitempty"`
	Error     string           `json:"error,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}
