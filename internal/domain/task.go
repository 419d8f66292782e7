package domain

import (
	"fmt"
	"time"
)

// Task is a scheduled item owned by a single user.
type Task struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	OwnerID     string     `gorm:"size:36;not null;index" json:"owner_id"`
	Title       string     `gorm:"size:255;not null" json:"title"`
	Description *string    `gorm:"type:text" json:"description"`
	StartTime   time.Time  `gorm:"not null;index" json:"start_time"`
	EndTime     *time.Time `gorm:"index" json:"end_time"`
	Reminder    *time.Time `json:"reminder"`
	Mark        *TaskMark  `gorm:"size:20" json:"mark"`
	Status      TaskStatus `gorm:"size:20;not null;default:'created'" json:"status"`
}

func (t *Task) Validate() error {
	if t.Title == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if t.StartTime.IsZero() {
		return fmt.Errorf("%w: start_time is required", ErrValidation)
	}
	if t.EndTime != nil && t.EndTime.Before(t.StartTime) {
		return fmt.Errorf("%w: end_time is before start_time", ErrValidation)
	}
	if t.Mark != nil && !t.Mark.Valid() {
		return fmt.Errorf("%w: unknown task mark %q", ErrValidation, *t.Mark)
	}
	if !t.Status.Valid() {
		return fmt.Errorf("%w: unknown task status %q", ErrValidation, t.Status)
	}
	return nil
}

// TaskDraft carries task fields where nil means "not provided".
type TaskDraft struct {
	Title       *string
	Description *string
	StartTime   *time.Time
	EndTime     *time.Time
	Reminder    *time.Time
	Mark        *TaskMark
	Status      *TaskStatus
}

// NewTask builds a task for ownerID from the draft. Status defaults to created.
func (d TaskDraft) NewTask(id, ownerID string) (*Task, error) {
	t := &Task{ID: id, OwnerID: ownerID, Status: TaskStatusCreated}
	d.ApplyTo(t)
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// ApplyTo overwrites only the fields present in the draft.
func (d TaskDraft) ApplyTo(t *Task) {
	if d.Title != nil {
		t.Title = *d.Title
	}
	if d.Description != nil {
		desc := *d.Description
		t.Description = &desc
	}
	if d.StartTime != nil {
		t.StartTime = *d.StartTime
	}
	if d.EndTime != nil {
		end := *d.EndTime
		t.EndTime = &end
	}
	if d.Reminder != nil {
		rem := *d.Reminder
		t.Reminder = &rem
	}
	if d.Mark != nil {
		mark := *d.Mark
		t.Mark = &mark
	}
	if d.Status != nil {
		t.Status = *d.Status
	}
}

func (d TaskDraft) IsEmpty() bool {
	return d.Title == nil && d.Description == nil && d.StartTime == nil &&
		d.EndTime == nil && d.Reminder == nil && d.Mark == nil && d.Status == nil
}
