package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dia/backend/internal/domain"
)

// stripFences removes a markdown code fence some models wrap JSON in.
func stripFences(raw string) []byte {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return []byte(strings.TrimSpace(s))
}

func isJSONNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// wireTask is the task shape exchanged with the model. Null and absent
// fields both decode to nil.
type wireTask struct {
	ID          *string `json:"id"`
	Title       *string `json:"title"`
	Description *string `json:"description"`
	StartTime   *string `json:"start_time"`
	EndTime     *string `json:"end_time"`
	Reminder    *string `json:"reminder"`
	Mark        *string `json:"mark"`
	Status      *string `json:"status"`
}

var promptStatus = map[domain.TaskStatus]string{
	domain.TaskStatusCreated:    "TODO",
	domain.TaskStatusInProgress: "IN_PROGRESS",
	domain.TaskStatusCompleted:  "DONE",
	domain.TaskStatusCancelled:  "CANCELLED",
}

func toWireTask(t *domain.Task, loc *time.Location) wireTask {
	id := t.ID
	title := t.Title
	start := t.StartTime.In(loc).Format(localLayout)
	status := promptStatus[t.Status]
	w := wireTask{ID: &id, Title: &title, StartTime: &start, Status: &status, Description: t.Description}
	if t.EndTime != nil {
		end := t.EndTime.In(loc).Format(localLayout)
		w.EndTime = &end
	}
	if t.Reminder != nil {
		rem := t.Reminder.In(loc).Format(localLayout)
		w.Reminder = &rem
	}
	if t.Mark != nil {
		mark := string(*t.Mark)
		w.Mark = &mark
	}
	return w
}

// draft converts the wire fields to a TaskDraft. Empty strings count as absent.
func (w wireTask) draft(loc *time.Location) (domain.TaskDraft, error) {
	var d domain.TaskDraft
	if w.Title != nil {
		title := strings.TrimSpace(*w.Title)
		d.Title = &title
	}
	if w.Description != nil {
		desc := *w.Description
		d.Description = &desc
	}
	var err error
	if d.StartTime, err = optionalTime(w.StartTime, loc); err != nil {
		return d, fmt.Errorf("start_time: %w", err)
	}
	if d.EndTime, err = optionalTime(w.EndTime, loc); err != nil {
		return d, fmt.Errorf("end_time: %w", err)
	}
	if d.Reminder, err = optionalTime(w.Reminder, loc); err != nil {
		return d, fmt.Errorf("reminder: %w", err)
	}
	if w.Mark != nil && *w.Mark != "" {
		mark, err := domain.ParseTaskMark(*w.Mark)
		if err != nil {
			return d, err
		}
		d.Mark = &mark
	}
	if w.Status != nil && *w.Status != "" {
		status, err := domain.ParseTaskStatus(*w.Status)
		if err != nil {
			return d, err
		}
		d.Status = &status
	}
	return d, nil
}

func (w wireTask) id() string {
	if w.ID == nil {
		return ""
	}
	return strings.TrimSpace(*w.ID)
}

func optionalTime(s *string, loc *time.Location) (*time.Time, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	t, err := domain.ParseTimestamp(*s, loc)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
