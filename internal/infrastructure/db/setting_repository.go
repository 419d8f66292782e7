package db

import (
	"context"
	"errors"

	"github.com/dia/backend/internal/core/ports"
	"github.com/dia/backend/internal/domain"
	"github.com/dia/backend/internal/infrastructure/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type userSettingRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserSettingRepository(db *gorm.DB, log *logger.Logger) ports.UserSettingRepository {
	return &userSettingRepository{db: db, log: log}
}

func (r *userSettingRepository) Get(ctx context.Context, ownerID, key string) (*domain.UserSetting, error) {
	var setting domain.UserSetting
	if err := Conn(ctx, r.db).Where("owner_id = ? AND key = ?", ownerID, key).First(&setting).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.log.Errorw("setting_repo_get_failed", "owner_id", ownerID, "key", key, "error", err)
		return nil, err
	}
	return &setting, nil
}

func (r *userSettingRepository) Set(ctx context.Context, setting *domain.UserSetting) error {
	err := Conn(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner_id"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(setting).Error
	if err != nil {
		r.log.Errorw("setting_repo_set_failed", "owner_id", setting.OwnerID, "key", setting.Key, "error", err)
		return err
	}
	r.log.Infow("setting_repo_set_ok", "owner_id", setting.OwnerID, "key", setting.Key)
	return nil
}

func (r *userSettingRepository) List(ctx context.Context, ownerID string) ([]domain.UserSetting, error) {
	var settings []domain.UserSetting
	if err := Conn(ctx, r.db).Where("owner_id = ?", ownerID).Order("key asc").Find(&settings).Error; err != nil {
		r.log.Errorw("setting_repo_list_failed", "owner_id", ownerID, "error", err)
		return nil, err
	}
	return settings, nil
}

func (r *userSettingRepository) Delete(ctx context.Context, ownerID, key string) error {
	if err := Conn(ctx, r.db).Where("owner_id = ? AND key = ?", ownerID, key).Delete(&domain.UserSetting{}).Error; err != nil {
		r.log.Errorw("setting_repo_delete_failed", "owner_id", ownerID, "key", key, "error", err)
		return err
	}
	r.log.Infow("setting_repo_delete_ok", "owner_id", ownerID, "key", key)
	return nil
}
