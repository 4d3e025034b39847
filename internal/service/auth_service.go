package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/cwrk-planet/realtime-service/internal/domain"
)

type TokenValidator interface {
	UserID(token string) (int64, error)
}

type AuthService struct {
	tokens   TokenValidator
	userRepo UserRepository
}

func NewAuthService(tokens TokenValidator, userRepo UserRepository) *AuthService {
	return &AuthService{tokens: tokens, userRepo: userRepo}
}

// Authenticate проверяет access-токен и загружает пользователя.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	id, err := s.tokens.UserID(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
	}
	u, err := s.userRepo.GetByID(ctx, id)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, fmt.Errorf("%w: user %d not found", domain.ErrUnauthenticated, id)
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *AuthService) User(ctx context.Context, id int64) (*domain.User, error) {
	return s.userRepo.GetByID(ctx, id)
}
