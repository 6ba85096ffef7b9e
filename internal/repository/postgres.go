// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/affiliate-backoffice/internal/ledger"
	"github.com/mmeshcher/affiliate-backoffice/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserExists возвращается при попытке создать пользователя с уже существующим email.
var (
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrAffiliateNotFound возвращается, если профиль партнёра не найден.
	ErrAffiliateNotFound = errors.New("affiliate not found")
	// ErrNotApproved возвращается, если партнёр ещё не одобрен администратором.
	ErrNotApproved = errors.New("affiliate is not approved")
	// ErrPlatformNotFound возвращается, если площадки нет в каталоге.
	ErrPlatformNotFound = errors.New("platform not found")
	// ErrPlatformExists возвращается при дублировании названия площадки.
	ErrPlatformExists = errors.New("platform already exists")
	// ErrLinkNotFound возвращается, если привязка к площадке не найдена.
	ErrLinkNotFound = errors.New("platform link not found")
	// ErrAlreadyLinked возвращается, если партнёр уже подключён к площадке.
	ErrAlreadyLinked = errors.New("affiliate already linked to platform")
	// ErrRequestNotFound возвращается, если заявка на подключение не найдена.
	ErrRequestNotFound = errors.New("affiliation request not found")
	// ErrRequestExists возвращается, если по площадке уже есть ожидающая заявка.
	ErrRequestExists = errors.New("pending affiliation request already exists")
	// ErrRequestNotPending возвращается при попытке повторно рассмотреть заявку.
	ErrRequestNotPending = errors.New("affiliation request is not pending")
	// ErrPayoutNotFound возвращается, если заявка на вывод не найдена.
	ErrPayoutNotFound = errors.New("payout request not found")
	// ErrOpenPayouts возвращается при удалении привязки с незакрытыми резервами.
	ErrOpenPayouts = errors.New("platform link has open payout requests")
	// ErrInsufficientBalance возвращается, если доступного баланса не хватает для резерва.
	ErrInsufficientBalance = ledger.ErrInsufficientBalance
	// ErrCommitUnknown возвращается, если связь с БД оборвалась во время COMMIT и исход транзакции неизвестен.
	ErrCommitUnknown = errors.New("transaction commit outcome unknown")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	delays []time.Duration
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{
		pool:   pool,
		delays: []time.Duration{100 * time.Millisecond, 300 * time.Millisecond, 1 * time.Second},
	}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// Ping проверяет доступность БД.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// withRetry повторяет fn при конфликте сериализации, взаимной блокировке
// или обрыве соединения. Бизнес-ошибки не повторяются.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error

	for i := 0; i <= len(r.delays); i++ {
		err = fn()
		if err == nil || i == len(r.delays) || !isRetryable(err) {
			return err
		}

		timer := time.NewTimer(r.delays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

func isRetryable(err error) bool {
	if errors.Is(err, ErrCommitUnknown) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}

	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// inTx выполняет fn в одной транзакции, повторяя её целиком при временных ошибках.
func (r *PostgresRepository) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		if err := fn(tx); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return commitFailure(err)
		}
		return nil
	})
}

// commitFailure отличает отказ сервера в COMMIT от обрыва связи: после обрыва
// транзакция могла быть зафиксирована, и повторять её нельзя.
func commitFailure(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("commit tx: %w", err)
	}
	return fmt.Errorf("commit tx: %w: %w", ErrCommitUnknown, err)
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// lockAffiliate блокирует строку партнёра. Все операции с балансом берут
// эту блокировку первой, поэтому порядок захвата строк одинаков.
func lockAffiliate(ctx context.Context, tx pgx.Tx, id string) (model.Role, model.ApprovalStatus, error) {
	var (
		role   model.Role
		status model.ApprovalStatus
	)
	err := tx.QueryRow(ctx,
		`SELECT role, approval_status FROM affiliates WHERE id = $1 FOR UPDATE`,
		id,
	).Scan(&role, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", ErrAffiliateNotFound
		}
		return "", "", fmt.Errorf("lock affiliate: %w", err)
	}
	return role, status, nil
}

// recomputeAggregate пересчитывает кэш баланса партнёра из его привязок.
func recomputeAggregate(ctx context.Context, tx pgx.Tx, affiliateID string) error {
	_, err := tx.Exec(ctx,
		`UPDATE affiliates a SET
			commission_available = s.available,
			commission_requested = s.requested,
			commission_paid      = s.paid,
			commission_refused   = s.refused
		 FROM (
			SELECT COALESCE(SUM(commission_available), 0) AS available,
			       COALESCE(SUM(commission_requested), 0) AS requested,
			       COALESCE(SUM(commission_paid), 0)      AS paid,
			       COALESCE(SUM(commission_refused), 0)   AS refused
			FROM platform_links
			WHERE affiliate_id = $1
		 ) s
		 WHERE a.id = $1`,
		affiliateID,
	)
	if err != nil {
		return fmt.Errorf("recompute aggregate: %w", err)
	}
	return nil
}

// RecomputeAggregates пересчитывает кэш балансов не более чем limit партнёров,
// у которых он разошёлся с суммой по привязкам, и возвращает их идентификаторы.
func (r *PostgresRepository) RecomputeAggregates(ctx context.Context, limit int) ([]string, error) {
	var ids []string
	err := r.withRetry(ctx, func() error {
		ids = ids[:0]
		rows, err := r.pool.Query(ctx,
			`WITH sums AS (
				SELECT a.id,
				       COALESCE(SUM(l.commission_available), 0) AS available,
				       COALESCE(SUM(l.commission_requested), 0) AS requested,
				       COALESCE(SUM(l.commission_paid), 0)      AS paid,
				       COALESCE(SUM(l.commission_refused), 0)   AS refused
				FROM affiliates a
				LEFT JOIN platform_links l ON l.affiliate_id = a.id
				GROUP BY a.id
			 ), drifted AS (
				SELECT s.* FROM sums s JOIN affiliates a ON a.id = s.id
				WHERE (a.commission_available, a.commission_requested, a.commission_paid, a.commission_refused)
				      IS DISTINCT FROM (s.available, s.requested, s.paid, s.refused)
				ORDER BY s.id
				LIMIT $1
			 )
			 UPDATE affiliates a SET
				commission_available = d.available,
				commission_requested = d.requested,
				commission_paid      = d.paid,
				commission_refused   = d.refused
			 FROM drifted d
			 WHERE a.id = d.id
			 RETURNING a.id`,
			limit,
		)
		if err != nil {
			return fmt.Errorf("recompute aggregates: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return fmt.Errorf("scan affiliate id: %w", err)
			}
			ids = append(ids, id)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows error: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
