package dto

import (
	"strings"
	"time"

	"github.com/dia/backend/internal/core/ports"
	"github.com/dia/backend/internal/domain"
)

type RegisterRequest struct {
	TelegramID int64  `json:"telegram_id"`
	Name       string `json:"name"`
	Password   string `json:"password"`
	Timezone   string `json:"timezone"`
}

func (r *RegisterRequest) Validate() []string {
	var errors []string

	if r.TelegramID <= 0 {
		errors = append(errors, "telegram_id must be a positive integer")
	}
	if len(r.Password) < 8 {
		errors = append(errors, "password must be at least 8 characters")
	}
	if len(r.Name) > 255 {
		errors = append(errors, "name must be at most 255 characters")
	}
	if r.Timezone != "" {
		if _, err := time.LoadLocation(r.Timezone); err != nil {
			errors = append(errors, "timezone must be an IANA zone name")
		}
	}
	return errors
}

func (r *RegisterRequest) ToInput() ports.RegisterInput {
	return ports.RegisterInput{
		TelegramID: r.TelegramID,
		Name:       strings.TrimSpace(r.Name),
		Password:   r.Password,
		Timezone:   r.Timezone,
	}
}

type LoginRequest struct {
	TelegramID int64  `json:"telegram_id"`
	Password   string `json:"password"`
}

func (r *LoginRequest) Validate() []string {
	var errors []string
	if r.TelegramID <= 0 {
		errors = append(errors, "telegram_id must be a positive integer")
	}
	if r.Password == "" {
		errors = append(errors, "password is required")
	}
	return errors
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (r *RefreshRequest) Validate() []string {
	if r.RefreshToken == "" {
		return []string{"refresh_token is required"}
	}
	return nil
}

type UpdateUserRequest struct {
	Name     *string `json:"name,omitempty"`
	Timezone *string `json:"timezone,omitempty"`
	Password *string `json:"password,omitempty"`
}

func (r *UpdateUserRequest) Validate() []string {
	var errors []string

	if r.Name == nil && r.Timezone == nil && r.Password == nil {
		errors = append(errors, "at least one field must be provided")
	}
	if r.Name != nil && len(*r.Name) > 255 {
		errors = append(errors, "name must be at most 255 characters")
	}
	if r.Timezone != nil {
		if _, err := time.LoadLocation(*r.Timezone); err != nil || *r.Timezone == "" {
			errors = append(errors, "timezone must be an IANA zone name")
		}
	}
	if r.Password != nil && len(*r.Password) < 8 {
		errors = append(errors, "password must be at least 8 characters")
	}
	return errors
}

func (r *UpdateUserRequest) ToInput() ports.UpdateUserInput {
	return ports.UpdateUserInput{Name: r.Name, Timezone: r.Timezone, Password: r.Password}
}

type AuthResponse struct {
	User  *UserResponse    `json:"user,omitempty"`
	Token *ports.TokenPair `json:"token"`
}

type UserResponse struct {
	ID         string    `json:"id"`
	TelegramID int64     `json:"telegram_id"`
	Name       string    `json:"name"`
	Timezone   string    `json:"timezone"`
	CreatedAt  time.Time `json:"created_at"`
}

func UserToResponse(u *domain.User) *UserResponse {
	return &UserResponse{
		ID:         u.ID,
		TelegramID: u.TelegramID,
		Name:       u.Name,
		Timezone:   u.Timezone,
		CreatedAt:  u.CreatedAt,
	}
}
