package identity

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mmeshcher/affiliate-backoffice/internal/model"
)

// ErrInvalidSession возвращается для просроченного или подделанного токена.
var ErrInvalidSession = errors.New("invalid session")

type claims struct {
	Email string     `json:"email"`
	Role  model.Role `json:"role"`
	jwt.RegisteredClaims
}

// Sessions выпускает и проверяет сессионные токены HS256.
type Sessions struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

var randRead = rand.Read

// NewSessions создаёт менеджер сессий. Пустой secret заменяется случайным,
// тогда сессии не переживают перезапуск процесса.
func NewSessions(secret string, ttl time.Duration) (*Sessions, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := randRead(key); err != nil {
			return nil, fmt.Errorf("generate session secret: %w", err)
		}
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Sessions{secret: key, ttl: ttl, now: time.Now}, nil
}

// TTL возвращает срок жизни сессии.
func (s *Sessions) TTL() time.Duration {
	return s.ttl
}

// Issue выпускает токен для пользователя с указанной ролью.
func (s *Sessions) Issue(id model.Identity, role model.Role) (string, model.Session, error) {
	now := s.now()
	sess := model.Session{
		UserID:    id.ID,
		Email:     id.Email,
		Role:      role,
		ExpiresAt: now.Add(s.ttl),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email: sess.Email,
		Role:  sess.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sess.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
		},
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", model.Session{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, sess, nil
}

// Parse проверяет подпись и срок действия токена.
func (s *Sessions) Parse(token string) (*model.Session, error) {
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if c.Subject == "" {
		return nil, ErrInvalidSession
	}

	return &model.Session{
		UserID:    c.Subject,
		Email:     c.Email,
		Role:      c.Role,
		ExpiresAt: c.ExpiresAt.Time,
	}, nil
}
