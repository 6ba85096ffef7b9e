package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithRetry(t *testing.T) {
	r := &PostgresRepository{delays: []time.Duration{time.Millisecond, time.Millisecond}}

	t.Run("retries serialization failure", func(t *testing.T) {
		calls := 0
		err := r.withRetry(context.Background(), func() error {
			calls++
			if calls < 3 {
				return &pgconn.PgError{Code: pgerrcode.SerializationFailure}
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after last delay", func(t *testing.T) {
		calls := 0
		err := r.withRetry(context.Background(), func() error {
			calls++
			return &pgconn.PgError{Code: pgerrcode.DeadlockDetected}
		})
		require.Error(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("business errors are not retried", func(t *testing.T) {
		calls := 0
		err := r.withRetry(context.Background(), func() error {
			calls++
			return ErrInsufficientBalance
		})
		require.ErrorIs(t, err, ErrInsufficientBalance)
		assert.Equal(t, 1, calls)
	})

	t.Run("commit lost on the wire runs once", func(t *testing.T) {
		calls := 0
		err := r.withRetry(context.Background(), func() error {
			calls++
			return commitFailure(errors.New("write tcp 10.0.0.1:5432: connection reset by peer"))
		})
		require.ErrorIs(t, err, ErrCommitUnknown)
		assert.Equal(t, 1, calls)
	})

	t.Run("serialization failure at commit is retried", func(t *testing.T) {
		calls := 0
		err := r.withRetry(context.Background(), func() error {
			calls++
			if calls == 1 {
				return commitFailure(&pgconn.PgError{Code: pgerrcode.SerializationFailure})
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("stops on cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		slow := &PostgresRepository{delays: []time.Duration{time.Hour}}
		calls := 0
		err := slow.withRetry(ctx, func() error {
			calls++
			return errors.New("connection reset by peer")
		})
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}

func TestTruncateDay(t *testing.T) {
	in := time.Date(2026, 3, 15, 23, 59, 0, 0, time.FixedZone("BRT", -3*3600))
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), truncateDay(in))
}

func TestPayoutSearch(t *testing.T) {
	assert.Nil(t, payoutSearch("   "))

	got := payoutSearch(" ana ")
	require.NotNil(t, got)
	assert.Equal(t, "%ana%", *got)

	got = payoutSearch(`50%_off\`)
	require.NotNil(t, got)
	assert.Equal(t, `%50\%\_off\\%`, *got)
}
