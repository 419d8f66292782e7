package ports

import (
	"context"
	"time"

	"github.com/dia/backend/internal/domain"
)

// Lookups return (nil, nil) when the record does not exist.

type TaskRepository interface {
	Create(ctx context.Context, task *domain.Task) error
	GetByID(ctx context.Context, ownerID, id string) (*domain.Task, error)
	Find(ctx context.Context, ownerID string, filter domain.Filter) ([]domain.Task, error)
	Update(ctx context.Context, task *domain.Task) error
	Delete(ctx context.Context, ownerID, id string) (bool, error)
}

// Transactor runs fn inside one database transaction. Repositories called
// with the ctx passed to fn join that transaction.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
	Delete(ctx context.Context, id string) error
}

type RefreshTokenRepository interface {
	Create(ctx context.Context, token *domain.RefreshToken) error
	GetByToken(ctx context.Context, token string) (*domain.RefreshToken, error)
	DeleteByToken(ctx context.Context, token string) error
	DeleteByUser(ctx context.Context, userID string) error
}

type SmartTagRepository interface {
	Create(ctx context.Context, tag *domain.SmartTag) error
	ListByTask(ctx context.Context, ownerID, taskID string) ([]domain.SmartTag, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.SmartTag, error)
	Delete(ctx context.Context, ownerID, id string) (bool, error)
	DeleteByTask(ctx context.Context, ownerID, taskID string) error
}

type TimelineRepository interface {
	Create(ctx context.Context, event *domain.TimelineEvent) error
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]domain.TimelineEvent, error)
	ListByRequest(ctx context.Context, ownerID, requestID string) ([]domain.TimelineEvent, error)
	CleanupOld(ctx context.Context, olderThan time.Duration) error
}

type UserSettingRepository interface {
	Get(ctx context.Context, ownerID, key string) (*domain.UserSetting, error)
	Set(ctx context.Context, setting *domain.UserSetting) error
	List(ctx context.Context, ownerID string) ([]domain.UserSetting, error)
	Delete(ctx context.Context, ownerID, key string) error
}

// IndexEntry is one vector in the semantic index.
type IndexEntry struct {
	TaskID  string
	OwnerID string
	Vector  []float32
	Payload domain.JSONB
}

type SearchHit struct {
	TaskID  string
	Score   float64
	Payload domain.JSONB
}

type SemanticIndex interface {
	Upsert(ctx context.Context, entry IndexEntry) error
	Delete(ctx context.Context, taskID string) error
	Search(ctx context.Context, ownerID string, vector []float32, topK int) ([]SearchHit, error)
}

// IdempotencyStore remembers responses to requests carrying an
// Idempotency-Key.
type IdempotencyStore interface {
	Reserve(ctx context.Context, ownerID, key string) (bool, error)
	Complete(ctx context.Context, ownerID, key string, response []byte) error
	Lookup(ctx context.Context, ownerID, key string) ([]byte, bool, error)
	Release(ctx context.Context, ownerID, key string) error
}
