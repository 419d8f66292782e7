package db

import (
	"context"

	"github.com/dia/backend/internal/core/ports"
	"github.com/dia/backend/internal/domain"
	"github.com/dia/backend/internal/infrastructure/logger"
	"gorm.io/gorm"
)

type smartTagRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSmartTagRepository(db *gorm.DB, log *logger.Logger) ports.SmartTagRepository {
	return &smartTagRepository{db: db, log: log}
}

func (r *smartTagRepository) Create(ctx context.Context, tag *domain.SmartTag) error {
	if err := Conn(ctx, r.db).Create(tag).Error; err != nil {
		r.log.Errorw("smart_tag_repo_create_failed", "task_id", tag.TaskID, "error", err)
		return err
	}
	r.log.Infow("smart_tag_repo_create_ok", "id", tag.ID, "task_id", tag.TaskID)
	return nil
}

func (r *smartTagRepository) ListByTask(ctx context.Context, ownerID, taskID string) ([]domain.SmartTag, error) {
	var tags []domain.SmartTag
	err := Conn(ctx, r.db).
		Where("owner_id = ? AND task_id = ?", ownerID, taskID).
		Order("created_at asc").
		Find(&tags).Error
	if err != nil {
		r.log.Errorw("smart_tag_repo_list_by_task_failed", "task_id", taskID, "error", err)
		return nil, err
	}
	return tags, nil
}

func (r *smartTagRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.SmartTag, error) {
	var tags []domain.SmartTag
	err := Conn(ctx, r.db).
		Where("owner_id = ?", ownerID).
		Order("created_at asc").
		Find(&tags).Error
	if err != nil {
		r.log.Errorw("smart_tag_repo_list_failed", "owner_id", ownerID, "error", err)
		return nil, err
	}
	return tags, nil
}

func (r *smartTagRepository) Delete(ctx context.Context, ownerID, id string) (bool, error) {
	res := Conn(ctx, r.db).Where("owner_id = ? AND id = ?", ownerID, id).Delete(&domain.SmartTag{})
	if res.Error != nil {
		r.log.Errorw("smart_tag_repo_delete_failed", "id", id, "error", res.Error)
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *smartTagRepository) DeleteByTask(ctx context.Context, ownerID, taskID string) error {
	err := Conn(ctx, r.db).Where("owner_id = ? AND task_id = ?", ownerID, taskID).Delete(&domain.SmartTag{}).Error
	if err != nil {
		r.log.Errorw("smart_tag_repo_delete_by_task_failed", "task_id", taskID, "error", err)
		return err
	}
	return nil
}
