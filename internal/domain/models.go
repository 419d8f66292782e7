package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ==================== ENUMS ====================

type TaskStatus string

const (
	TaskStatusCreated    TaskStatus = "created"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// statusAliases maps the vocabulary the assistant prompts use onto stored values.
var statusAliases = map[string]TaskStatus{
	"created":     TaskStatusCreated,
	"planned":     TaskStatusCreated,
	"todo":        TaskStatusCreated,
	"in_progress": TaskStatusInProgress,
	"completed":   TaskStatusCompleted,
	"done":        TaskStatusCompleted,
	"cancelled":   TaskStatusCancelled,
	"canceled":    TaskStatusCancelled,
}

func ParseTaskStatus(s string) (TaskStatus, error) {
	status, ok := statusAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("%w: unknown task status %q", ErrValidation, s)
	}
	return status, nil
}

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusCreated, TaskStatusInProgress, TaskStatusCompleted, TaskStatusCancelled:
		return true
	}
	return false
}

type TaskMark string

const (
	TaskMarkCall     TaskMark = "call"
	TaskMarkWork     TaskMark = "work"
	TaskMarkRest     TaskMark = "rest"
	TaskMarkSport    TaskMark = "sport"
	TaskMarkProjects TaskMark = "projects"
)

func ParseTaskMark(s string) (TaskMark, error) {
	mark := TaskMark(strings.ToLower(strings.TrimSpace(s)))
	if !mark.Valid() {
		return "", fmt.Errorf("%w: unknown task mark %q", ErrValidation, s)
	}
	return mark, nil
}

func (m TaskMark) Valid() bool {
	switch m {
	case TaskMarkCall, TaskMarkWork, TaskMarkRest, TaskMarkSport, TaskMarkProjects:
		return true
	}
	return false
}

type EventStatus string

const (
	EventStatusPending EventStatus = "pending"
	EventStatusSuccess EventStatus = "success"
	EventStatusFailed  EventStatus = "failed"
)

// ==================== JSONB TYPES ====================

type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	}
	return errors.New("failed to scan JSONB: invalid type")
}

// ==================== ENTITIES ====================

type User struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	TelegramID   int64  `gorm:"uniqueIndex;not null" json:"telegram_id"`
	Name         string `gorm:"size:255" json:"name"`
	PasswordHash string `gorm:"size:255" json:"-"`
	Timezone     string `gorm:"size:64;not null;default:'UTC'" json:"timezone"`
}

// Location falls back to UTC when the stored zone name is unknown.
func (u *User) Location() *time.Location {
	if u == nil || u.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(u.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type RefreshToken struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	Token     string    `gorm:"size:64;uniqueIndex;not null" json:"-"`
	UserID    string    `gorm:"size:36;not null;index" json:"user_id"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
}

func (t *RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// SmartTag is a free-form label a user attaches to one of their tasks.
type SmartTag struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	OwnerID string `gorm:"size:36;not null;index" json:"owner_id"`
	TaskID  string `gorm:"size:36;not null;index" json:"task_id"`
	Name    string `gorm:"size:100;not null" json:"name"`
}

type TimelineEvent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	OwnerID   string      `gorm:"size:36;not null;index" json:"owner_id"`
	RequestID string      `gorm:"size:64;index" json:"request_id"`
	Type      string      `gorm:"size:100;not null;index" json:"type"`
	Status    EventStatus `gorm:"size:20;not null;default:'pending';index" json:"status"`
	Message   string      `gorm:"type:text" json:"message"`
	Meta      JSONB       `gorm:"type:jsonb" json:"meta"`
}

// UserSetting is a per-owner key/value preference.
type UserSetting struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	OwnerID string `gorm:"size:36;not null;uniqueIndex:idx_user_settings_owner_key" json:"owner_id"`
	Key     string `gorm:"size:100;not null;uniqueIndex:idx_user_settings_owner_key" json:"key"`
	Value   string `gorm:"type:text" json:"value"`
}

const (
	SettingFallbackMessage = "fallback_message"
	SettingSearchTopK      = "search_top_k"
)
