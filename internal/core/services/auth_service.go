package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/dia/backend/internal/core/ports"
	"github.com/dia/backend/internal/domain"
	"github.com/dia/backend/internal/infrastructure/logger"
)

type authService struct {
	users      ports.UserRepository
	tokens     ports.RefreshTokenRepository
	logger     *logger.Logger
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

type AuthServiceConfig struct {
	Users      ports.UserRepository
	Tokens     ports.RefreshTokenRepository
	Logger     *logger.Logger
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Clock      func() time.Time
}

func NewAuthService(cfg AuthServiceConfig) ports.AuthService {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	accessTTL := cfg.AccessTTL
	if accessTTL <= 0 {
		accessTTL = 30 * time.Minute
	}
	refreshTTL := cfg.RefreshTTL
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &authService{
		users:      cfg.Users,
		tokens:     cfg.Tokens,
		logger:     cfg.Logger,
		secret:     []byte(cfg.Secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        clock,
	}
}

func (s *authService) Register(ctx context.Context, input ports.RegisterInput) (*domain.User, *ports.TokenPair, error) {
	if input.TelegramID == 0 {
		return nil, nil, fmt.Errorf("%w: telegram_id is required", domain.ErrValidation)
	}
	timezone := strings.TrimSpace(input.Timezone)
	if timezone == "" {
		timezone = "UTC"
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return nil, nil, fmt.Errorf("%w: unknown timezone %q", domain.ErrValidation, timezone)
	}

	existing, err := s.users.GetByTelegramID(ctx, input.TelegramID)
	if err != nil {
		return nil, nil, storeErr("get user", err)
	}
	if existing != nil {
		return nil, nil, ErrUserAlreadyExists
	}

	user := &domain.User{
		ID:         uuid.New().String(),
		TelegramID: input.TelegramID,
		Name:       strings.TrimSpace(input.Name),
		Timezone:   timezone,
	}
	if input.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, nil, fmt.Errorf("hash password: %w", err)
		}
		user.PasswordHash = string(hash)
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, nil, storeErr("create user", err)
	}

	pair, err := s.issue(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	s.logger.Infow("user_registered", "user_id", user.ID, "telegram_id", user.TelegramID)
	return user, pair, nil
}

// Login authenticates by Telegram id and password. Accounts created from the
// bot have no password and cannot log in here.
func (s *authService) Login(ctx context.Context, telegramID int64, password string) (*ports.TokenPair, error) {
	user, err := s.users.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, storeErr("get user", err)
	}
	if user == nil || user.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.Warnw("auth_login_rejected", "user_id", user.ID)
		return nil, ErrInvalidCredentials
	}
	return s.issue(ctx, user.ID)
}

// Refresh rotates a refresh token: the presented token is consumed and a new
// pair is returned.
func (s *authService) Refresh(ctx context.Context, refreshToken string) (*ports.TokenPair, error) {
	stored, err := s.tokens.GetByToken(ctx, refreshToken)
	if err != nil {
		return nil, storeErr("get refresh token", err)
	}
	if stored == nil {
		return nil, ErrInvalidToken
	}
	if stored.Expired(s.now()) {
		if err := s.tokens.DeleteByToken(ctx, refreshToken); err != nil {
			s.logger.Warnw("auth_expired_token_cleanup_failed", "user_id", stored.UserID, "error", err)
		}
		return nil, ErrTokenExpired
	}

	user, err := s.users.GetByID(ctx, stored.UserID)
	if err != nil {
		return nil, storeErr("get user", err)
	}
	if user == nil {
		return nil, ErrInvalidToken
	}
	return s.issue(ctx, user.ID)
}

func (s *authService) Logout(ctx context.Context, refreshToken string) error {
	if err := s.tokens.DeleteByToken(ctx, refreshToken); err != nil {
		return storeErr("delete refresh token", err)
	}
	return nil
}

func (s *authService) ParseAccessToken(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// issue signs an access token and stores a fresh refresh token, dropping any
// the user held before.
func (s *authService) issue(ctx context.Context, userID string) (*ports.TokenPair, error) {
	now := s.now()
	expiresAt := now.Add(s.accessTTL)
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		ID:        uuid.New().String(),
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	if err := s.tokens.DeleteByUser(ctx, userID); err != nil {
		return nil, storeErr("revoke refresh tokens", err)
	}
	refresh := &domain.RefreshToken{
		Token:     uuid.New().String(),
		UserID:    userID,
		ExpiresAt: now.Add(s.refreshTTL),
	}
	if err := s.tokens.Create(ctx, refresh); err != nil {
		return nil, storeErr("create refresh token", err)
	}

	return &ports.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh.Token,
		TokenType:    "Bearer",
		ExpiresAt:    expiresAt,
	}, nil
}
