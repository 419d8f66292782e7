package services

import (
	"context"
	"fmt"
	"strconv"

	"github.com/dia/backend/internal/core/ports"
	"github.com/dia/backend/internal/domain"
	"github.com/dia/backend/internal/infrastructure/logger"
)

type UserSettingService struct {
	repo   ports.UserSettingRepository
	logger *logger.Logger
	locks  *keyLocker
}

func NewUserSettingService(repo ports.UserSettingRepository, logger *logger.Logger, enableLocks bool) *UserSettingService {
	return &UserSettingService{
		repo:   repo,
		logger: logger,
		locks:  newKeyLocker(enableLocks),
	}
}

func (s *UserSettingService) GetSettings(ctx context.Context, ownerID string) (map[string]string, error) {
	settings, err := s.repo.List(ctx, ownerID)
	if err != nil {
		s.logger.Errorw("failed to list settings", "owner_id", ownerID, "error", err)
		return nil, storeErr("list settings", err)
	}
	result := make(map[string]string, len(settings))
	for _, setting := range settings {
		result[setting.Key] = setting.Value
	}
	return result, nil
}

// Get returns a single value; lookup failures read as unset.
func (s *UserSettingService) Get(ctx context.Context, ownerID, key string) (string, bool) {
	setting, err := s.repo.Get(ctx, ownerID, key)
	if err != nil {
		s.logger.Warnw("failed to get setting", "owner_id", ownerID, "key", key, "error", err)
		return "", false
	}
	if setting == nil {
		return "", false
	}
	return setting.Value, true
}

// UpdateSettings validates every key before writing any. A nil or empty
// value removes the key.
func (s *UserSettingService) UpdateSettings(ctx context.Context, ownerID string, settings map[string]interface{}) error {
	values := make(map[string]string, len(settings))
	for key, val := range settings {
		strVal, err := normalizeSetting(key, val)
		if err != nil {
			return err
		}
		values[key] = strVal
	}

	if len(values) > 0 {
		keys := make([]string, 0, len(values))
		for key := range values {
			keys = append(keys, fmt.Sprintf("setting:%s:%s", ownerID, key))
		}
		unlock := s.locks.lock(keys...)
		defer unlock()
	}

	for key, val := range values {
		if val == "" {
			if err := s.repo.Delete(ctx, ownerID, key); err != nil {
				s.logger.Errorw("failed to delete setting", "owner_id", ownerID, "key", key, "error", err)
				return storeErr("delete setting", err)
			}
			continue
		}
		setting := &domain.UserSetting{OwnerID: ownerID, Key: key, Value: val}
		if err := s.repo.Set(ctx, setting); err != nil {
			s.logger.Errorw("failed to set setting", "owner_id", ownerID, "key", key, "error", err)
			return storeErr("set setting", err)
		}
	}
	return nil
}

// SearchTopK reads the owner's preferred search size, falling back to def.
func (s *UserSettingService) SearchTopK(ctx context.Context, ownerID string, def int) int {
	raw, ok := s.Get(ctx, ownerID, domain.SettingSearchTopK)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func normalizeSetting(key string, val interface{}) (string, error) {
	var strVal string
	switch v := val.(type) {
	case nil:
		strVal = ""
	case string:
		strVal = v
	case int, int8, int16, int32, int64:
		strVal = fmt.Sprintf("%d", v)
	case float32, float64:
		strVal = fmt.Sprintf("%g", v)
	case bool:
		strVal = fmt.Sprintf("%t", v)
	default:
		strVal = fmt.Sprintf("%v", v)
	}

	switch key {
	case domain.SettingFallbackMessage:
		if len(strVal) > 500 {
			return "", fmt.Errorf("%w: %s is longer than 500 characters", domain.ErrValidation, key)
		}
	case domain.SettingSearchTopK:
		if strVal == "" {
			break
		}
		n, err := strconv.Atoi(strVal)
		if err != nil || n < 1 || n > 50 {
			return "", fmt.Errorf("%w: %s must be an integer between 1 and 50", domain.ErrValidation, key)
		}
	default:
		return "", fmt.Errorf("%w: unknown setting %q", domain.ErrValidation, key)
	}
	return strVal, nil
}
