package dto

import (
	"strings"
	"time"

	"github.com/dia/backend/internal/core/ports"
	"github.com/dia/backend/internal/domain"
)

// Timestamps in requests are RFC 3339, or zone-less local time read in the
// caller's timezone.

type CreateTaskRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	StartTime   string  `json:"start_time"`
	EndTime     *string `json:"end_time,omitempty"`
	Reminder    *string `json:"reminder,omitempty"`
	Mark        *string `json:"mark,omitempty"`
	Status      *string `json:"status,omitempty"`
}

func (r *CreateTaskRequest) Validate() []string {
	var errors []string

	if strings.TrimSpace(r.Title) == "" {
		errors = append(errors, "title is required")
	} else if len(r.Title) > 255 {
		errors = append(errors, "title must be at most 255 characters")
	}

	if r.StartTime == "" {
		errors = append(errors, "start_time is required")
	} else if !validTimestamp(&r.StartTime) {
		errors = append(errors, "start_time is not a valid timestamp")
	}
	if !validTimestamp(r.EndTime) {
		errors = append(errors, "end_time is not a valid timestamp")
	}
	if !validTimestamp(r.Reminder) {
		errors = append(errors, "reminder is not a valid timestamp")
	}

	errors = append(errors, validateVocabulary(r.Mark, r.Status)...)
	return errors
}

// ToInput assumes Validate passed.
func (r *CreateTaskRequest) ToInput(loc *time.Location) ports.CreateTaskInput {
	start, _ := domain.ParseTimestamp(r.StartTime, loc)
	input := ports.CreateTaskInput{
		Title:       strings.TrimSpace(r.Title),
		Description: r.Description,
		StartTime:   start,
		EndTime:     parseOptional(r.EndTime, loc),
		Reminder:    parseOptional(r.Reminder, loc),
	}
	if r.Mark != nil {
		mark, _ := domain.ParseTaskMark(*r.Mark)
		input.Mark = &mark
	}
	if r.Status != nil {
		status, _ := domain.ParseTaskStatus(*r.Status)
		input.Status = &status
	}
	return input
}

type UpdateTaskRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	StartTime   *string `json:"start_time,omitempty"`
	EndTime     *string `json:"end_time,omitempty"`
	Reminder    *string `json:"reminder,omitempty"`
	Mark        *string `json:"mark,omitempty"`
	Status      *string `json:"status,omitempty"`
}

func (r *UpdateTaskRequest) Validate() []string {
	var errors []string

	if r.Title != nil && strings.TrimSpace(*r.Title) == "" {
		errors = append(errors, "title must not be empty")
	}
	if !validTimestamp(r.StartTime) {
		errors = append(errors, "start_time is not a valid timestamp")
	}
	if !validTimestamp(r.EndTime) {
		errors = append(errors, "end_time is not a valid timestamp")
	}
	if !validTimestamp(r.Reminder) {
		errors = append(errors, "reminder is not a valid timestamp")
	}
	errors = append(errors, validateVocabulary(r.Mark, r.Status)...)

	if len(errors) == 0 && r.Title == nil && r.Description == nil && r.StartTime == nil &&
		r.EndTime == nil && r.Reminder == nil && r.Mark == nil && r.Status == nil {
		errors = append(errors, "at least one field must be provided")
	}
	return errors
}

// ToDraft assumes Validate passed.
func (r *UpdateTaskRequest) ToDraft(loc *time.Location) domain.TaskDraft {
	draft := domain.TaskDraft{
		Description: r.Description,
		StartTime:   parseOptional(r.StartTime, loc),
		EndTime:     parseOptional(r.EndTime, loc),
		Reminder:    parseOptional(r.Reminder, loc),
	}
	if r.Title != nil {
		title := strings.TrimSpace(*r.Title)
		draft.Title = &title
	}
	if r.Mark != nil {
		mark, _ := domain.ParseTaskMark(*r.Mark)
		draft.Mark = &mark
	}
	if r.Status != nil {
		status, _ := domain.ParseTaskStatus(*r.Status)
		draft.Status = &status
	}
	return draft
}

// TaskQuery is the query string of GET /tasks. Each *_from/*_to pair is a
// closed interval.
type TaskQuery struct {
	StartFrom    string `query:"start_from"`
	StartTo      string `query:"start_to"`
	EndFrom      string `query:"end_from"`
	EndTo        string `query:"end_to"`
	ReminderFrom string `query:"reminder_from"`
	ReminderTo   string `query:"reminder_to"`
	Mark         string `query:"mark"`
	Status       string `query:"status"`
}

func (q *TaskQuery) ToFilter(loc *time.Location) (domain.Filter, []string) {
	var errors []string
	var filter domain.Filter

	rangeOf := func(name, from, to string) *domain.TimeRange {
		if from == "" && to == "" {
			return nil
		}
		r := &domain.TimeRange{}
		if from != "" {
			t, err := domain.ParseTimestamp(from, loc)
			if err != nil {
				errors = append(errors, name+"_from is not a valid timestamp")
			}
			r.Gte = &t
		}
		if to != "" {
			t, err := domain.ParseTimestamp(to, loc)
			if err != nil {
				errors = append(errors, name+"_to is not a valid timestamp")
			}
			r.Lte = &t
		}
		return r
	}
	filter.StartTime = rangeOf("start", q.StartFrom, q.StartTo)
	filter.EndTime = rangeOf("end", q.EndFrom, q.EndTo)
	filter.Reminder = rangeOf("reminder", q.ReminderFrom, q.ReminderTo)

	if q.Mark != "" {
		mark, err := domain.ParseTaskMark(q.Mark)
		if err != nil {
			errors = append(errors, "mark must be one of: call, work, rest, sport, projects")
		}
		filter.Mark = &mark
	}
	if q.Status != "" {
		status, err := domain.ParseTaskStatus(q.Status)
		if err != nil {
			errors = append(errors, "status must be one of: created, in_progress, completed, cancelled")
		}
		filter.Status = &status
	}
	if len(errors) == 0 {
		if err := filter.Validate(); err != nil {
			errors = append(errors, err.Error())
		}
	}
	return filter, errors
}

type DraftTaskRequest struct {
	Text string `json:"text"`
}

func (r *DraftTaskRequest) Validate() []string {
	var errors []string
	if strings.TrimSpace(r.Text) == "" {
		errors = append(errors, "text is required")
	} else if len(r.Text) > MaxMessageLength {
		errors = append(errors, "text is too long")
	}
	return errors
}

type TaskResponse struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description *string           `json:"description"`
	StartTime   time.Time         `json:"start_time"`
	EndTime     *time.Time        `json:"end_time"`
	Reminder    *time.Time        `json:"reminder"`
	Mark        *domain.TaskMark  `json:"mark"`
	Status      domain.TaskStatus `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// TaskToResponse renders times in loc so clients see the owner's wall clock.
func TaskToResponse(t *domain.Task, loc *time.Location) TaskResponse {
	if loc == nil {
		loc = time.UTC
	}
	in := func(v *time.Time) *time.Time {
		if v == nil {
			return nil
		}
		local := v.In(loc)
		return &local
	}
	return TaskResponse{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		StartTime:   t.StartTime.In(loc),
		EndTime:     in(t.EndTime),
		Reminder:    in(t.Reminder),
		Mark:        t.Mark,
		Status:      t.Status,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func TasksToResponse(tasks []domain.Task, loc *time.Location) []TaskResponse {
	out := make([]TaskResponse, 0, len(tasks))
	for i := range tasks {
		out = append(out, TaskToResponse(&tasks[i], loc))
	}
	return out
}

func validTimestamp(s *string) bool {
	if s == nil {
		return true
	}
	_, err := domain.ParseTimestamp(*s, time.UTC)
	return err == nil
}

func parseOptional(s *string, loc *time.Location) *time.Time {
	if s == nil {
		return nil
	}
	t, err := domain.ParseTimestamp(*s, loc)
	if err != nil {
		return nil
	}
	return &t
}

func validateVocabulary(mark, status *string) []string {
	var errors []string
	if mark != nil {
		if _, err := domain.ParseTaskMark(*mark); err != nil {
			errors = append(errors, "mark must be one of: call, work, rest, sport, projects")
		}
	}
	if status != nil {
		if _, err := domain.ParseTaskStatus(*status); err != nil {
			errors = append(errors, "status must be one of: created, in_progress, completed, cancelled")
		}
	}
	return errors
}
