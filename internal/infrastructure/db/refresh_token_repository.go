package db

import (
	"context"
	"errors"

	"github.com/dia/backend/internal/core/ports"
	"github.com/dia/backend/internal/domain"
	"github.com/dia/backend/internal/infrastructure/logger"
	"gorm.io/gorm"
)

type refreshTokenRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRefreshTokenRepository(db *gorm.DB, log *logger.Logger) ports.RefreshTokenRepository {
	return &refreshTokenRepository{db: db, log: log}
}

func (r *refreshTokenRepository) Create(ctx context.Context, token *domain.RefreshToken) error {
	if err := Conn(ctx, r.db).Create(token).Error; err != nil {
		r.log.Errorw("refresh_token_repo_create_failed", "user_id", token.UserID, "error", err)
		return err
	}
	return nil
}

func (r *refreshTokenRepository) GetByToken(ctx context.Context, token string) (*domain.RefreshToken, error) {
	var rt domain.RefreshToken
	if err := Conn(ctx, r.db).Where("token = ?", token).First(&rt).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.log.Errorw("refresh_token_repo_get_failed", "error", err)
		return nil, err
	}
	return &rt, nil
}

func (r *refreshTokenRepository) DeleteByToken(ctx context.Context, token string) error {
	if err := Conn(ctx, r.db).Where("token = ?", token).Delete(&domain.RefreshToken{}).Error; err != nil {
		r.log.Errorw("refresh_token_repo_delete_failed", "error", err)
		return err
	}
	return nil
}

func (r *refreshTokenRepository) DeleteByUser(ctx context.Context, userID string) error {
	if err := Conn(ctx, r.db).Where("user_id = ?", userID).Delete(&domain.RefreshToken{}).Error; err != nil {
		r.log.Errorw("refresh_token_repo_delete_by_user_failed", "user_id", userID, "error", err)
		return err
	}
	return nil
}
