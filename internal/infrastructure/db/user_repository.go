package db

import (
	"context"
	"errors"

	"github.com/dia/backend/internal/core/ports"
	"github.com/dia/backend/internal/domain"
	"github.com/dia/backend/internal/infrastructure/logger"
	"gorm.io/gorm"
)

type userRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserRepository(db *gorm.DB, log *logger.Logger) ports.UserRepository {
	return &userRepository{db: db, log: log}
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	if err := Conn(ctx, r.db).Create(user).Error; err != nil {
		r.log.Errorw("user_repo_create_failed", "telegram_id", user.TelegramID, "error", err)
		return err
	}
	r.log.Infow("user_repo_create_ok", "id", user.ID, "telegram_id", user.TelegramID)
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	if err := Conn(ctx, r.db).Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.log.Errorw("user_repo_get_failed", "id", id, "error", err)
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error) {
	var user domain.User
	if err := Conn(ctx, r.db).Where("telegram_id = ?", telegramID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.log.Errorw("user_repo_get_by_telegram_failed", "telegram_id", telegramID, "error", err)
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) Update(ctx context.Context, user *domain.User) error {
	if err := Conn(ctx, r.db).Save(user).Error; err != nil {
		r.log.Errorw("user_repo_update_failed", "id", user.ID, "error", err)
		return err
	}
	r.log.Infow("user_repo_update_ok", "id", user.ID)
	return nil
}

func (r *userRepository) Delete(ctx context.Context, id string) error {
	if err := Conn(ctx, r.db).Where("id = ?", id).Delete(&domain.User{}).Error; err != nil {
		r.log.Errorw("user_repo_delete_failed", "id", id, "error", err)
		return err
	}
	r.log.Infow("user_repo_delete_ok", "id", id)
	return nil
}
