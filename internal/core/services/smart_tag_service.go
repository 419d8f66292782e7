package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/dia/backend/internal/core/ports"
	"github.com/dia/backend/internal/domain"
	"github.com/dia/backend/internal/infrastructure/logger"
)

const maxTagLength = 100

type smartTagService struct {
	tags   ports.SmartTagRepository
	tasks  ports.TaskRepository
	logger *logger.Logger
}

func NewSmartTagService(tags ports.SmartTagRepository, tasks ports.TaskRepository, logger *logger.Logger) ports.SmartTagService {
	return &smartTagService{tags: tags, tasks: tasks, logger: logger}
}

func (s *smartTagService) CreateTag(ctx context.Context, ownerID, taskID, name string) (*domain.SmartTag, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxTagLength {
		return nil, fmt.Errorf("%w: name must be 1-%d characters", ErrSmartTagInvalidInput, maxTagLength)
	}
	if err := s.ensureTask(ctx, ownerID, taskID); err != nil {
		return nil, err
	}

	tag := &domain.SmartTag{
		ID:      uuid.New().String(),
		OwnerID: ownerID,
		TaskID:  taskID,
		Name:    name,
	}
	if err := s.tags.Create(ctx, tag); err != nil {
		return nil, storeErr("create tag", err)
	}
	s.logger.Infow("smart_tag_created", "owner_id", ownerID, "task_id", taskID, "tag_id", tag.ID)
	return tag, nil
}

func (s *smartTagService) ListTaskTags(ctx context.Context, ownerID, taskID string) ([]domain.SmartTag, error) {
	if err := s.ensureTask(ctx, ownerID, taskID); err != nil {
		return nil, err
	}
	tags, err := s.tags.ListByTask(ctx, ownerID, taskID)
	if err != nil {
		return nil, storeErr("list tags", err)
	}
	return tags, nil
}

func (s *smartTagService) ListTags(ctx context.Context, ownerID string) ([]domain.SmartTag, error) {
	tags, err := s.tags.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, storeErr("list tags", err)
	}
	return tags, nil
}

func (s *smartTagService) DeleteTag(ctx context.Context, ownerID, id string) error {
	deleted, err := s.tags.Delete(ctx, ownerID, id)
	if err != nil {
		return storeErr("delete tag", err)
	}
	if !deleted {
		return ErrSmartTagNotFound
	}
	return nil
}

func (s *smartTagService) ensureTask(ctx context.Context, ownerID, taskID string) error {
	task, err := s.tasks.GetByID(ctx, ownerID, taskID)
	if err != nil {
		return storeErr("get task", err)
	}
	if task == nil {
		return ErrTaskNotFound
	}
	return nil
}
