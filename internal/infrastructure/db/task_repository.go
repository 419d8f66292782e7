package db

import (
	"context"
	"errors"

	"github.com/dia/backend/internal/core/ports"
	"github.com/dia/backend/internal/domain"
	"github.com/dia/backend/internal/infrastructure/logger"
	"gorm.io/gorm"
)

type taskRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTaskRepository(db *gorm.DB, log *logger.Logger) ports.TaskRepository {
	return &taskRepository{db: db, log: log}
}

func (r *taskRepository) Create(ctx context.Context, task *domain.Task) error {
	if err := Conn(ctx, r.db).Create(task).Error; err != nil {
		r.log.Errorw("task_repo_create_failed", "owner_id", task.OwnerID, "error", err)
		return err
	}
	r.log.Infow("task_repo_create_ok", "id", task.ID, "owner_id", task.OwnerID)
	return nil
}

func (r *taskRepository) GetByID(ctx context.Context, ownerID, id string) (*domain.Task, error) {
	var task domain.Task
	err := Conn(ctx, r.db).
		Where("owner_id = ? AND id = ?", ownerID, id).
		First(&task).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.log.Errorw("task_repo_get_failed", "id", id, "owner_id", ownerID, "error", err)
		return nil, err
	}
	return &task, nil
}

func (r *taskRepository) Find(ctx context.Context, ownerID string, filter domain.Filter) ([]domain.Task, error) {
	var tasks []domain.Task
	if err := scopeTasks(Conn(ctx, r.db), ownerID, filter).Find(&tasks).Error; err != nil {
		r.log.Errorw("task_repo_find_failed", "owner_id", ownerID, "error", err)
		return nil, err
	}
	r.log.Infow("task_repo_find_ok", "owner_id", ownerID, "count", len(tasks))
	return tasks, nil
}

func (r *taskRepository) Update(ctx context.Context, task *domain.Task) error {
	res := Conn(ctx, r.db).
		Model(&domain.Task{}).
		Where("owner_id = ? AND id = ?", task.OwnerID, task.ID).
		Select("title", "description", "start_time", "end_time", "reminder", "mark", "status", "updated_at").
		Updates(task)
	if res.Error != nil {
		r.log.Errorw("task_repo_update_failed", "id", task.ID, "error", res.Error)
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	r.log.Infow("task_repo_update_ok", "id", task.ID)
	return nil
}

func (r *taskRepository) Delete(ctx context.Context, ownerID, id string) (bool, error) {
	res := Conn(ctx, r.db).
		Where("owner_id = ? AND id = ?", ownerID, id).
		Delete(&domain.Task{})
	if res.Error != nil {
		r.log.Errorw("task_repo_delete_failed", "id", id, "error", res.Error)
		return false, res.Error
	}
	r.log.Infow("task_repo_delete_ok", "id", id, "deleted", res.RowsAffected > 0)
	return res.RowsAffected > 0, nil
}

// scopeTasks restricts q to ownerID and ANDs every present filter field.
func scopeTasks(q *gorm.DB, ownerID string, f domain.Filter) *gorm.DB {
	q = q.Model(&domain.Task{}).Where("owner_id = ?", ownerID)
	q = scopeRange(q, "start_time", f.StartTime)
	q = scopeRange(q, "end_time", f.EndTime)
	q = scopeRange(q, "reminder", f.Reminder)
	if f.Mark != nil {
		q = q.Where("mark = ?", string(*f.Mark))
	}
	if f.Status != nil {
		q = q.Where("status = ?", string(*f.Status))
	}
	return q.Order("start_time asc")
}

func scopeRange(q *gorm.DB, column string, r *domain.TimeRange) *gorm.DB {
	if r == nil {
		return q
	}
	if r.Gte != nil {
		q = q.Where(column+" >= ?", *r.Gte)
	}
	if r.Lte != nil {
		q = q.Where(column+" <= ?", *r.Lte)
	}
	return q
}
