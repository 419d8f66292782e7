package dto

import (
	"strings"
	"time"

	"github.com/dia/backend/internal/domain"
)

// MaxMessageLength bounds free-text input sent to the language model.
const MaxMessageLength = 4000

type AssistantRequest struct {
	Message string `json:"message"`
}

func (r *AssistantRequest) Validate() []string {
	var errors []string
	if strings.TrimSpace(r.Message) == "" {
		errors = append(errors, "message is required")
	} else if len(r.Message) > MaxMessageLength {
		errors = append(errors, "message is too long")
	}
	return errors
}

type ActionResponse struct {
	Action domain.ActionKind   `json:"action"`
	TaskID string              `json:"task_id,omitempty"`
	Task   *TaskResponse       `json:"task,omitempty"`
	Result domain.ActionResult `json:"result"`
	Error  string              `json:"error,omitempty"`
}

type AssistantResponse struct {
	RequestID string           `json:"request_id"`
	Intent    domain.Intent    `json:"intent"`
	Message   string           `json:"message,omitempty"`
	Actions   []ActionResponse `json:"actions"`
}

func AssistantResultToResponse(r *domain.AssistantResult, loc *time.Location) AssistantResponse {
	resp := AssistantResponse{
		RequestID: r.RequestID,
		Intent:    r.Intent,
		Message:   r.Message,
		Actions:   make([]ActionResponse, 0, len(r.Actions)),
	}
	for _, a := range r.Actions {
		item := ActionResponse{Action: a.Action, TaskID: a.TaskID, Result: a.Result, Error: a.Error}
		if a.Task != nil {
			task := TaskToResponse(a.Task, loc)
			item.Task = &task
		}
		resp.Actions = append(resp.Actions, item)
	}
	return resp
}

type JobResponse struct {
	ID        string             `json:"id"`
	Status    domain.JobStatus   `json:"status"`
	Result    *AssistantResponse `json:"result,omitempty"`
	Error     string             `json:"error,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

func JobToResponse(j *domain.Job, loc *time.Location) JobResponse {
	resp := JobResponse{
		ID:        j.ID,
		Status:    j.Status,
		Error:     j.Error,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
	if j.Result != nil {
		result := AssistantResultToResponse(j.Result, loc)
		resp.Result = &result
	}
	return resp
}
