package identity

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/affiliate-backoffice/internal/model"
)

func newSessions(t *testing.T, secret string, ttl time.Duration) *Sessions {
	t.Helper()
	s, err := NewSessions(secret, ttl)
	require.NoError(t, err)
	return s
}

func TestSessions_IssueAndParse(t *testing.T) {
	s := newSessions(t, "test-secret", time.Hour)
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	token, sess, err := s.Issue(model.Identity{ID: "u1", Email: "owner@example.com"}, model.RoleOwner)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), sess.ExpiresAt)

	got, err := s.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "owner@example.com", got.Email)
	assert.Equal(t, model.RoleOwner, got.Role)
}

func TestSessions_Expired(t *testing.T) {
	s := newSessions(t, "test-secret", time.Minute)
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	token, _, err := s.Issue(model.Identity{ID: "u1"}, model.RoleAffiliate)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = s.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestSessions_WrongSecret(t *testing.T) {
	token, _, err := newSessions(t, "one", time.Hour).Issue(model.Identity{ID: "u1"}, model.RoleAffiliate)
	require.NoError(t, err)

	_, err = newSessions(t, "two", time.Hour).Parse(token)
	assert.ErrorIs(t, err, ErrInvalidSession)

	_, err = newSessions(t, "one", time.Hour).Parse("garbage")
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestNewSessions_RandomSecret(t *testing.T) {
	a := newSessions(t, "", 0)
	b := newSessions(t, "", 0)
	assert.Equal(t, 24*time.Hour, a.TTL())
	assert.Len(t, a.secret, 32)
	assert.NotEqual(t, a.secret, b.secret)
}

func TestNewSessions_RandomSourceFails(t *testing.T) {
	orig := randRead
	t.Cleanup(func() { randRead = orig })
	randRead = func([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

	s, err := NewSessions("", time.Hour)
	require.Error(t, err)
	assert.Nil(t, s)

	s, err = NewSessions("configured", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []byte("configured"), s.secret)
}
