package ports

import (
	"context"
	"time"

	"github.com/dia/backend/internal/domain"
)

// CompletionRequest is a single chat completion with one system and one
// user message.
type CompletionRequest struct {
	Stage        string
	SystemPrompt string
	UserMessage  string
	JSONMode     bool
	Temperature  *float32
	MaxTokens    int
}

type LLMProvider interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// AssistantMetrics receives pipeline measurements.
type AssistantMetrics interface {
	ObserveLLMCall(stage, status string, elapsed time.Duration)
	IncRequest(intent, status string)
	IncAction(action, result string)
}

type CreateTaskInput struct {
	Title       string
	Description *string
	StartTime   time.Time
	EndTime     *time.Time
	Reminder    *time.Time
	Mark        *domain.TaskMark
	Status      *domain.TaskStatus
}

type TaskService interface {
	CreateTask(ctx context.Context, ownerID string, input CreateTaskInput) (*domain.Task, error)
	GetTask(ctx context.Context, ownerID, id string) (*domain.Task, error)
	ListTasks(ctx context.Context, ownerID string, filter domain.Filter) ([]domain.Task, error)
	ListTasksByDate(ctx context.Context, ownerID string, day time.Time) ([]domain.Task, error)
	UpdateTask(ctx context.Context, ownerID, id string, draft domain.TaskDraft) (*domain.Task, error)
	DeleteTask(ctx context.Context, ownerID, id string) error
	SearchTasks(ctx context.Context, ownerID, query string, topK int) ([]domain.Task, error)
}

type TaskDrafter interface {
	DraftTask(ctx context.Context, ownerID, text string) (*domain.Task, error)
}

type AssistantService interface {
	Handle(ctx context.Context, ownerID, request string) (*domain.AssistantResult, error)
}

type JobService interface {
	Submit(ctx context.Context, ownerID, request string) *domain.Job
	Get(ownerID, id string) (*domain.Job, error)
}

type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type RegisterInput struct {
	TelegramID int64
	Name       string
	Password   string
	Timezone   string
}

type AuthService interface {
	Register(ctx context.Context, input RegisterInput) (*domain.User, *TokenPair, error)
	Login(ctx context.Context, telegramID int64, password string) (*TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	ParseAccessToken(token string) (string, error)
}

type UpdateUserInput struct {
	Name     *string
	Timezone *string
	Password *string
}

type UserService interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
	EnsureTelegramUser(ctx context.Context, telegramID int64, name string) (*domain.User, error)
	UpdateUser(ctx context.Context, id string, input UpdateUserInput) (*domain.User, error)
	DeleteUser(ctx context.Context, id string) error
}

type SmartTagService interface {
	CreateTag(ctx context.Context, ownerID, taskID, name string) (*domain.SmartTag, error)
	ListTaskTags(ctx context.Context, ownerID, taskID string) ([]domain.SmartTag, error)
	ListTags(ctx context.Context, ownerID string) ([]domain.SmartTag, error)
	DeleteTag(ctx context.Context, ownerID, id string) error
}

type SettingService interface {
	GetSettings(ctx context.Context, ownerID string) (map[string]string, error)
	UpdateSettings(ctx context.Context, ownerID string, settings map[string]interface{}) error
	Get(ctx context.Context, ownerID, key string) (string, bool)
}
