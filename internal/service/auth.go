package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"employee-manager/internal/common"
	"employee-manager/internal/crypto"
	"employee-manager/internal/models"
	"employee-manager/internal/repository"
	"employee-manager/internal/token"
)

var (
	ErrUserAlreadyExists  = fmt.Errorf("user already exists: %w", common.ErrConflict)
	ErrInvalidCredentials = fmt.Errorf("invalid credentials: %w", common.ErrUnauthorized)
	ErrMissingCredentials = fmt.Errorf("username and password are required: %w", common.ErrValidation)
)

type AuthService interface {
	Register(ctx context.Context, username, password string) (*models.User, error)
	Login(ctx context.Context, username, password string) (string, time.Time, error) // token, expiry
}

type authService struct {
	repo   repository.AuthRepository
	tokens *token.Manager
	logger *zap.Logger
}

func NewAuthService(repo repository.AuthRepository, tokens *token.Manager, logger *zap.Logger) AuthService {
	return &authService{
		repo:   repo,
		tokens: tokens,
		logger: logger,
	}
}

func (s *authService) Register(ctx context.Context, username, password string) (*models.User, error) {
	if strings.TrimSpace(username) == "" || strings.TrimSpace(password) == "" {
		return nil, ErrMissingCredentials
	}

	existing, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		s.logger.Error("Failed to look up user", zap.String("username", username), zap.Error(err))
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if existing != nil {
		return nil, ErrUserAlreadyExists
	}

	passwordHash, err := crypto.HashPassword(password)
	if err != nil {
		s.logger.Error("Failed to hash password", zap.Error(err))
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{Username: username, PasswordHash: passwordHash}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		// lost a race with a concurrent registration
		if errors.Is(err, common.ErrConflict) {
			return nil, ErrUserAlreadyExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("User registered", zap.String("username", username), zap.Int64("user_id", user.ID))
	return user, nil
}

func (s *authService) Login(ctx context.Context, username, password string) (string, time.Time, error) {
	if strings.TrimSpace(username) == "" || strings.TrimSpace(password) == "" {
		return "", time.Time{}, ErrMissingCredentials
	}

	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		s.logger.Error("Failed to get user by username", zap.Error(err))
		return "", time.Time{}, fmt.Errorf("failed to retrieve user: %w", err)
	}
	if user == nil {
		return "", time.Time{}, ErrInvalidCredentials
	}

	ok, err := crypto.VerifyPassword(user.PasswordHash, password)
	if err != nil {
		s.logger.Warn("Stored password hash is unreadable", zap.String("username", username), zap.Error(err))
		return "", time.Time{}, ErrInvalidCredentials
	}
	if !ok {
		return "", time.Time{}, ErrInvalidCredentials
	}

	tokenString, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		s.logger.Error("Failed to generate JWT token", zap.Error(err))
		return "", time.Time{}, fmt.Errorf("failed to generate token: %w", err)
	}

	s.logger.Info("User logged in successfully.", zap.String("username", user.Username))
	return tokenString, expiresAt, nil
}
