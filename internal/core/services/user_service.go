package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/dia/backend/internal/core/ports"
	"github.com/dia/backend/internal/domain"
	"github.com/dia/backend/internal/infrastructure/logger"
)

type userService struct {
	users    ports.UserRepository
	tokens   ports.RefreshTokenRepository
	tasks    ports.TaskRepository
	indexer  *TaskIndexer
	tags     ports.SmartTagRepository
	settings ports.UserSettingRepository
	tx       ports.Transactor
	logger   *logger.Logger
}

type UserServiceConfig struct {
	Users      ports.UserRepository
	Tokens     ports.RefreshTokenRepository
	Tasks      ports.TaskRepository
	Indexer    *TaskIndexer
	Tags       ports.SmartTagRepository
	Settings   ports.UserSettingRepository
	Transactor ports.Transactor
	Logger     *logger.Logger
}

func NewUserService(cfg UserServiceConfig) ports.UserService {
	return &userService{
		users:    cfg.Users,
		tokens:   cfg.Tokens,
		tasks:    cfg.Tasks,
		indexer:  cfg.Indexer,
		tags:     cfg.Tags,
		settings: cfg.Settings,
		tx:       cfg.Transactor,
		logger:   cfg.Logger,
	}
}

func (s *userService) GetUser(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr("get user", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// EnsureTelegramUser returns the user bound to telegramID, creating a
// password-less account on first contact.
func (s *userService) EnsureTelegramUser(ctx context.Context, telegramID int64, name string) (*domain.User, error) {
	user, err := s.users.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, storeErr("get user", err)
	}
	if user != nil {
		return user, nil
	}

	user = &domain.User{
		ID:         uuid.New().String(),
		TelegramID: telegramID,
		Name:       strings.TrimSpace(name),
		Timezone:   "UTC",
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, storeErr("create user", err)
	}
	s.logger.Infow("telegram_user_created", "user_id", user.ID, "telegram_id", telegramID)
	return user, nil
}

func (s *userService) UpdateUser(ctx context.Context, id string, input ports.UpdateUserInput) (*domain.User, error) {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if input.Name != nil {
		user.Name = strings.TrimSpace(*input.Name)
	}
	if input.Timezone != nil {
		if _, err := time.LoadLocation(*input.Timezone); err != nil || *input.Timezone == "" {
			return nil, fmt.Errorf("%w: unknown timezone %q", domain.ErrValidation, *input.Timezone)
		}
		user.Timezone = *input.Timezone
	}
	if input.Password != nil {
		if len(*input.Password) < 8 {
			return nil, fmt.Errorf("%w: password must be at least 8 characters", domain.ErrValidation)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*input.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		user.PasswordHash = string(hash)
	}
	if err := s.users.Update(ctx, user); err != nil {
		return nil, storeErr("update user", err)
	}
	return user, nil
}

// DeleteUser removes the account together with everything it owns.
func (s *userService) DeleteUser(ctx context.Context, id string) error {
	if _, err := s.GetUser(ctx, id); err != nil {
		return err
	}

	fn := func(ctx context.Context) error {
		tasks, err := s.tasks.Find(ctx, id, domain.Filter{})
		if err != nil {
			return storeErr("list tasks", err)
		}
		for _, task := range tasks {
			if _, err := s.tasks.Delete(ctx, id, task.ID); err != nil {
				return storeErr("delete task", err)
			}
			if s.tags != nil {
				if err := s.tags.DeleteByTask(ctx, id, task.ID); err != nil {
					return storeErr("delete task tags", err)
				}
			}
			if err := s.indexer.Delete(ctx, task.ID); err != nil {
				return err
			}
		}
		if s.settings != nil {
			settings, err := s.settings.List(ctx, id)
			if err != nil {
				return storeErr("list settings", err)
			}
			for _, setting := range settings {
				if err := s.settings.Delete(ctx, id, setting.Key); err != nil {
					return storeErr("delete setting", err)
				}
			}
		}
		if err := s.tokens.DeleteByUser(ctx, id); err != nil {
			return storeErr("revoke refresh tokens", err)
		}
		return storeErr("delete user", s.users.Delete(ctx, id))
	}

	var err error
	if s.tx != nil {
		err = s.tx.WithinTransaction(ctx, fn)
	} else {
		err = fn(ctx)
	}
	if err != nil {
		s.logger.Errorw("user_delete_failed", "user_id", id, "error", err)
		return err
	}
	s.logger.Infow("user_deleted", "user_id", id)
	return nil
}
