package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/affiliate-backoffice/internal/model"
	"github.com/mmeshcher/affiliate-backoffice/internal/validation"
)

// AuthResult содержит выпущенную сессию и профиль вошедшего пользователя.
type AuthResult struct {
	Token   string           `json:"-"`
	Session model.Session    `json:"session"`
	Profile *model.Affiliate `json:"profile"`
}

// SignUp регистрирует пользователя, создаёт его профиль и открывает сессию.
func (s *Service) SignUp(ctx context.Context, email, password string) (*AuthResult, error) {
	if err := validation.ValidateCredentials(email, password); err != nil {
		return nil, err
	}

	id, err := s.provider.SignUp(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user signed up", zap.String("user_id", id.ID))
	return s.open(ctx, *id)
}

// SignIn проверяет пароль и открывает сессию. Профиль создаётся при первом входе.
func (s *Service) SignIn(ctx context.Context, email, password string) (*AuthResult, error) {
	if err := validation.ValidateCredentials(email, password); err != nil {
		return nil, err
	}

	id, err := s.provider.SignIn(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return nil, err
	}

	return s.open(ctx, *id)
}

// Session возвращает профиль владельца действующей сессии.
func (s *Service) Session(ctx context.Context, sess model.Session) (*AuthResult, error) {
	a, err := s.repo.GetAffiliate(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Session: sess, Profile: a}, nil
}

func (s *Service) open(ctx context.Context, id model.Identity) (*AuthResult, error) {
	a, err := s.repo.EnsureAffiliate(ctx, id.ID, id.Email, s.roleFor(id.Email))
	if err != nil {
		return nil, err
	}

	token, sess, err := s.sessions.Issue(id, a.Role)
	if err != nil {
		return nil, err
	}

	return &AuthResult{Token: token, Session: sess, Profile: a}, nil
}

func (s *Service) roleFor(email string) model.Role {
	if _, ok := s.owners[strings.ToLower(strings.TrimSpace(email))]; ok {
		return model.RoleOwner
	}
	return model.RoleAffiliate
}
