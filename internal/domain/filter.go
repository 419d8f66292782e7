package domain

import (
	"fmt"
	"strings"
	"time"
)

// TimeRange is a closed interval; either bound may be open.
type TimeRange struct {
	Gte *time.Time `json:"gte,omitempty"`
	Lte *time.Time `json:"lte,omitempty"`
}

// At is a range that matches exactly one instant.
func At(t time.Time) *TimeRange {
	return &TimeRange{Gte: &t, Lte: &t}
}

func (r *TimeRange) Contains(t *time.Time) bool {
	if r == nil {
		return true
	}
	if t == nil {
		return false
	}
	if r.Gte != nil && t.Before(*r.Gte) {
		return false
	}
	if r.Lte != nil && t.After(*r.Lte) {
		return false
	}
	return true
}

func (r *TimeRange) validate(field string) error {
	if r == nil {
		return nil
	}
	if r.Gte == nil && r.Lte == nil {
		return fmt.Errorf("%w: %s range has no bounds", ErrValidation, field)
	}
	if r.Gte != nil && r.Lte != nil && r.Gte.After(*r.Lte) {
		return fmt.Errorf("%w: %s gte is after lte", ErrValidation, field)
	}
	return nil
}

// Filter narrows a task query. Present fields are combined with AND; the
// owner scope is applied separately by the store.
type Filter struct {
	StartTime *TimeRange  `json:"start_time,omitempty"`
	EndTime   *TimeRange  `json:"end_time,omitempty"`
	Reminder  *TimeRange  `json:"reminder,omitempty"`
	Mark      *TaskMark   `json:"mark,omitempty"`
	Status    *TaskStatus `json:"status,omitempty"`
}

func (f Filter) IsEmpty() bool {
	return f.StartTime == nil && f.EndTime == nil && f.Reminder == nil && f.Mark == nil && f.Status == nil
}

func (f Filter) Validate() error {
	if err := f.StartTime.validate("start_time"); err != nil {
		return err
	}
	if err := f.EndTime.validate("end_time"); err != nil {
		return err
	}
	if err := f.Reminder.validate("reminder"); err != nil {
		return err
	}
	if f.Mark != nil && !f.Mark.Valid() {
		return fmt.Errorf("%w: unknown task mark %q", ErrValidation, *f.Mark)
	}
	if f.Status != nil && !f.Status.Valid() {
		return fmt.Errorf("%w: unknown task status %q", ErrValidation, *f.Status)
	}
	return nil
}

// Matches reports whether t satisfies every present predicate.
func (f Filter) Matches(t *Task) bool {
	start := t.StartTime
	if !f.StartTime.Contains(&start) {
		return false
	}
	if !f.EndTime.Contains(t.EndTime) {
		return false
	}
	if !f.Reminder.Contains(t.Reminder) {
		return false
	}
	if f.Mark != nil && (t.Mark == nil || *t.Mark != *f.Mark) {
		return false
	}
	if f.Status != nil && t.Status != *f.Status {
		return false
	}
	return true
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp accepts RFC 3339 or a zone-less layout; zone-less values are
// read in loc.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
}
