package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dia/backend/internal/core/ports"
	"github.com/dia/backend/internal/domain"
	"github.com/dia/backend/internal/infrastructure/logger"
)

type taskService struct {
	repo    ports.TaskRepository
	tags    ports.SmartTagRepository
	tx      ports.Transactor
	indexer *TaskIndexer
	logger  *logger.Logger
}

type TaskServiceConfig struct {
	Repository ports.TaskRepository
	Tags       ports.SmartTagRepository
	Transactor ports.Transactor
	Indexer    *TaskIndexer
	Logger     *logger.Logger
}

func NewTaskService(cfg TaskServiceConfig) ports.TaskService {
	return &taskService{
		repo:    cfg.Repository,
		tags:    cfg.Tags,
		tx:      cfg.Transactor,
		indexer: cfg.Indexer,
		logger:  cfg.Logger,
	}
}

func (s *taskService) within(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.tx == nil {
		return fn(ctx)
	}
	return s.tx.WithinTransaction(ctx, fn)
}

func (s *taskService) CreateTask(ctx context.Context, ownerID string, input ports.CreateTaskInput) (*domain.Task, error) {
	task := &domain.Task{
		ID:          uuid.New().String(),
		OwnerID:     ownerID,
		Title:       input.Title,
		Description: input.Description,
		StartTime:   input.StartTime,
		EndTime:     input.EndTime,
		Reminder:    input.Reminder,
		Mark:        input.Mark,
		Status:      domain.TaskStatusCreated,
	}
	if input.Status != nil {
		task.Status = *input.Status
	}
	if err := task.Validate(); err != nil {
		return nil, err
	}

	vecs, err := s.indexer.Embed(ctx, task)
	if err != nil {
		s.logger.Errorw("task_embed_failed", "owner_id", ownerID, "error", err)
		return nil, err
	}
	err = s.within(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, task); err != nil {
			return storeErr("create task", err)
		}
		return s.indexer.UpsertWith(ctx, task, vecs)
	})
	if err != nil {
		s.logger.Errorw("task_create_failed", "owner_id", ownerID, "error", err)
		return nil, err
	}
	s.logger.Infow("task_created", "owner_id", ownerID, "task_id", task.ID)
	return task, nil
}

func (s *taskService) GetTask(ctx context.Context, ownerID, id string) (*domain.Task, error) {
	task, err := s.repo.GetByID(ctx, ownerID, id)
	if err != nil {
		return nil, storeErr("get task", err)
	}
	if task == nil {
		return nil, ErrTaskNotFound
	}
	return task, nil
}

func (s *taskService) ListTasks(ctx context.Context, ownerID string, filter domain.Filter) ([]domain.Task, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	tasks, err := s.repo.Find(ctx, ownerID, filter)
	if err != nil {
		return nil, storeErr("list tasks", err)
	}
	return tasks, nil
}

// ListTasksByDate returns tasks starting on day's calendar date in day's location.
func (s *taskService) ListTasksByDate(ctx context.Context, ownerID string, day time.Time) ([]domain.Task, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1).Add(-time.Nanosecond)
	return s.ListTasks(ctx, ownerID, domain.Filter{StartTime: &domain.TimeRange{Gte: &start, Lte: &end}})
}

func (s *taskService) UpdateTask(ctx context.Context, ownerID, id string, draft domain.TaskDraft) (*domain.Task, error) {
	preview, err := s.GetTask(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	draft.ApplyTo(preview)
	vecs, err := s.indexer.Embed(ctx, preview)
	if err != nil {
		return nil, err
	}

	var task *domain.Task
	err = s.within(ctx, func(ctx context.Context) error {
		var err error
		task, err = s.repo.GetByID(ctx, ownerID, id)
		if err != nil {
			return storeErr("get task", err)
		}
		if task == nil {
			return ErrTaskNotFound
		}
		draft.ApplyTo(task)
		if err := task.Validate(); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, task); err != nil {
			return storeErr("update task", err)
		}
		return s.indexer.UpsertWith(ctx, task, vecs)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Infow("task_updated", "owner_id", ownerID, "task_id", id)
	return task, nil
}

func (s *taskService) DeleteTask(ctx context.Context, ownerID, id string) error {
	err := s.within(ctx, func(ctx context.Context) error {
		deleted, err := s.repo.Delete(ctx, ownerID, id)
		if err != nil {
			return storeErr("delete task", err)
		}
		if !deleted {
			return ErrTaskNotFound
		}
		if s.tags != nil {
			if err := s.tags.DeleteByTask(ctx, ownerID, id); err != nil {
				return storeErr("delete task tags", err)
			}
		}
		return s.indexer.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.logger.Infow("task_deleted", "owner_id", ownerID, "task_id", id)
	return nil
}

func (s *taskService) SearchTasks(ctx context.Context, ownerID, query string, topK int) ([]domain.Task, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", domain.ErrValidation)
	}
	if topK <= 0 {
		topK = 5
	}
	return s.indexer.Search(ctx, ownerID, query, topK)
}
