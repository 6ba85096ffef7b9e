// Package identity содержит провайдеры идентификации и выпуск сессионных токенов.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/affiliate-backoffice/internal/model"
	"github.com/mmeshcher/affiliate-backoffice/internal/repository"
)

var (
	// ErrInvalidCredentials возвращается при неверной паре email/пароль.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists возвращается при повторной регистрации email.
	ErrUserExists = errors.New("user already exists")
	// ErrUnavailable возвращается, если внешний провайдер не отвечает или ограничил частоту запросов.
	ErrUnavailable = errors.New("identity provider unavailable")
)

// Provider аутентифицирует пользователей по email и паролю.
type Provider interface {
	SignUp(ctx context.Context, email, password string) (*model.Identity, error)
	SignIn(ctx context.Context, email, password string) (*model.Identity, error)
}

// UserStore хранит учётные записи локального провайдера.
type UserStore interface {
	CreateUser(ctx context.Context, id, email string, passwordHash []byte) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
}

// Local реализует провайдер, хранящий bcrypt-хэши паролей в собственной БД.
type Local struct {
	users UserStore
	cost  int
}

// NewLocal создаёт локальный провайдер идентификации.
func NewLocal(users UserStore) *Local {
	return &Local{users: users, cost: bcrypt.DefaultCost}
}

// SignUp регистрирует пользователя.
func (l *Local) SignUp(ctx context.Context, email, password string) (*model.Identity, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	hash, err := bcrypt.GenerateFromPassword([]byte(password), l.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	id := uuid.NewString()
	if err := l.users.CreateUser(ctx, id, email, hash); err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return nil, ErrUserExists
		}
		return nil, err
	}

	return &model.Identity{ID: id, Email: email}, nil
}

// SignIn проверяет пароль пользователя.
func (l *Local) SignIn(ctx context.Context, email, password string) (*model.Identity, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	u, err := l.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return &model.Identity{ID: u.ID, Email: u.Email}, nil
}
