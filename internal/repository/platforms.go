package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/affiliate-backoffice/internal/model"
)

const platformColumns = `id, name, link, commission_model, baseline, cpa, rev, active, created_at`

func scanPlatform(row pgx.Row) (*model.Platform, error) {
	var p model.Platform
	err := row.Scan(&p.ID, &p.Name, &p.Link, &p.Terms.Model, &p.Terms.Baseline, &p.Terms.CPA, &p.Terms.Rev, &p.Active, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePlatform добавляет площадку в каталог.
func (r *PostgresRepository) CreatePlatform(ctx context.Context, p model.Platform) (*model.Platform, error) {
	created, err := scanPlatform(r.pool.QueryRow(ctx,
		`INSERT INTO platforms (id, name, link, commission_model, baseline, cpa, rev, active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+platformColumns,
		uuid.NewString(), p.Name, p.Link, p.Terms.Model, p.Terms.Baseline, p.Terms.CPA, p.Terms.Rev, p.Active,
	))
	if err != nil {
		if pgCode(err) == pgerrcode.UniqueViolation {
			return nil, fmt.Errorf("%w: %s", ErrPlatformExists, p.Name)
		}
		return nil, fmt.Errorf("create platform: %w", err)
	}
	return created, nil
}

// UpdatePlatform изменяет карточку площадки. Условия уже созданных привязок не меняются.
func (r *PostgresRepository) UpdatePlatform(ctx context.Context, p model.Platform) (*model.Platform, error) {
	updated, err := scanPlatform(r.pool.QueryRow(ctx,
		`UPDATE platforms SET
			name = $2, link = $3, commission_model = $4, baseline = $5, cpa = $6, rev = $7, active = $8
		 WHERE id = $1
		 RETURNING `+platformColumns,
		p.ID, p.Name, p.Link, p.Terms.Model, p.Terms.Baseline, p.Terms.CPA, p.Terms.Rev, p.Active,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPlatformNotFound
		}
		if pgCode(err) == pgerrcode.UniqueViolation {
			return nil, fmt.Errorf("%w: %s", ErrPlatformExists, p.Name)
		}
		return nil, fmt.Errorf("update platform: %w", err)
	}
	return updated, nil
}

// DeletePlatform удаляет площадку вместе с заявками и привязками к ней
// и пересчитывает балансы затронутых партнёров.
func (r *PostgresRepository) DeletePlatform(ctx context.Context, id string) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		var name string
		err := tx.QueryRow(ctx, `SELECT name FROM platforms WHERE id = $1 FOR UPDATE`, id).Scan(&name)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrPlatformNotFound
			}
			return fmt.Errorf("lock platform: %w", err)
		}

		affiliates, err := collectStrings(ctx, tx,
			`SELECT DISTINCT affiliate_id FROM platform_links WHERE platform_id = $1 ORDER BY affiliate_id`, id)
		if err != nil {
			return fmt.Errorf("select linked affiliates: %w", err)
		}
		for _, a := range affiliates {
			if _, _, err := lockAffiliate(ctx, tx, a); err != nil {
				return err
			}
		}

		if open, err := hasOpenPayouts(ctx, tx, `l.platform_id = $1`, id); err != nil {
			return err
		} else if open {
			return ErrOpenPayouts
		}

		if _, err := tx.Exec(ctx, `DELETE FROM platforms WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete platform: %w", err)
		}

		for _, a := range affiliates {
			if err := recomputeAggregate(ctx, tx, a); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetPlatform возвращает площадку каталога.
func (r *PostgresRepository) GetPlatform(ctx context.Context, id string) (*model.Platform, error) {
	p, err := scanPlatform(r.pool.QueryRow(ctx, `SELECT `+platformColumns+` FROM platforms WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPlatformNotFound
		}
		return nil, fmt.Errorf("get platform: %w", err)
	}
	return p, nil
}

// ListPlatforms возвращает каталог площадок по алфавиту.
func (r *PostgresRepository) ListPlatforms(ctx context.Context, activeOnly bool) ([]model.Platform, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+platformColumns+` FROM platforms WHERE active OR NOT $1 ORDER BY lower(name)`,
		activeOnly,
	)
	if err != nil {
		return nil, fmt.Errorf("select platforms: %w", err)
	}
	defer rows.Close()

	var res []model.Platform
	for rows.Next() {
		p, err := scanPlatform(rows)
		if err != nil {
			return nil, fmt.Errorf("scan platform: %w", err)
		}
		res = append(res, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

func collectStrings(ctx context.Context, tx pgx.Tx, query string, args ...any) ([]string, error) {
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// hasOpenPayouts сообщает, есть ли незакрытые резервы на привязках,
// отобранных условием cond над алиасом l.
func hasOpenPayouts(ctx context.Context, tx pgx.Tx, cond string, args ...any) (bool, error) {
	var open bool
	err := tx.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1
			FROM payout_allocations pa
			JOIN payout_requests p ON p.id = pa.payout_id
			JOIN platform_links l ON l.id = pa.link_id
			WHERE p.status IN ('requested', 'approved') AND `+cond+`
		 )`,
		args...,
	).Scan(&open)
	if err != nil {
		return false, fmt.Errorf("check open payouts: %w", err)
	}
	return open, nil
}
