package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/affiliate-backoffice/internal/model"
)

const affiliateColumns = `id, email, name, full_name, instagram, whatsapp, telegram, experience, notes,
	role, approval_status, approved_at, rejected_at,
	commission_available, commission_requested, commission_paid, commission_refused, created_at`

func scanAffiliate(row pgx.Row) (*model.Affiliate, error) {
	var a model.Affiliate
	err := row.Scan(
		&a.ID, &a.Email, &a.Name, &a.FullName, &a.Instagram, &a.Whatsapp, &a.Telegram, &a.Experience, &a.Notes,
		&a.Role, &a.ApprovalStatus, &a.ApprovedAt, &a.RejectedAt,
		&a.Balance.Available, &a.Balance.Requested, &a.Balance.Paid, &a.Balance.Refused, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// EnsureAffiliate создаёт профиль партнёра при первом входе. Существующий
// профиль не изменяется, в том числе его роль.
func (r *PostgresRepository) EnsureAffiliate(ctx context.Context, id, email string, role model.Role) (*model.Affiliate, error) {
	name, _, _ := strings.Cut(email, "@")

	status := model.ApprovalPending
	if role == model.RoleOwner {
		status = model.ApprovalApproved
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO affiliates (id, email, name, role, approval_status, approved_at)
		 VALUES ($1, $2, $3, $4, $5, CASE WHEN $5 = 'approved' THEN now() END)
		 ON CONFLICT (id) DO NOTHING`,
		id, strings.ToLower(email), name, role, status,
	)
	if err != nil {
		return nil, fmt.Errorf("ensure affiliate: %w", err)
	}

	return r.GetAffiliate(ctx, id)
}

// GetAffiliate возвращает профиль партнёра.
func (r *PostgresRepository) GetAffiliate(ctx context.Context, id string) (*model.Affiliate, error) {
	a, err := scanAffiliate(r.pool.QueryRow(ctx,
		`SELECT `+affiliateColumns+` FROM affiliates WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAffiliateNotFound
		}
		return nil, fmt.Errorf("get affiliate: %w", err)
	}
	return a, nil
}

// UpdateAffiliateProfile изменяет заполняемые партнёром поля профиля.
func (r *PostgresRepository) UpdateAffiliateProfile(ctx context.Context, id string, u model.ProfileUpdate) (*model.Affiliate, error) {
	a, err := scanAffiliate(r.pool.QueryRow(ctx,
		`UPDATE affiliates SET
			name       = COALESCE($2, name),
			full_name  = COALESCE($3, full_name),
			instagram  = COALESCE($4, instagram),
			whatsapp   = COALESCE($5, whatsapp),
			telegram   = COALESCE($6, telegram),
			experience = COALESCE($7, experience),
			notes      = COALESCE($8, notes)
		 WHERE id = $1
		 RETURNING `+affiliateColumns,
		id, u.Name, u.FullName, u.Instagram, u.Whatsapp, u.Telegram, u.Experience, u.Notes,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAffiliateNotFound
		}
		return nil, fmt.Errorf("update affiliate profile: %w", err)
	}
	return a, nil
}

// ListAffiliates возвращает партнёров (без владельцев), новые первыми.
func (r *PostgresRepository) ListAffiliates(ctx context.Context, f model.AffiliateFilter) ([]model.Affiliate, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 500
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+affiliateColumns+`
		 FROM affiliates
		 WHERE role = 'affiliate' AND ($1::text IS NULL OR approval_status = $1)
		 ORDER BY created_at DESC
		 LIMIT $2`,
		f.Status, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select affiliates: %w", err)
	}
	defer rows.Close()

	var res []model.Affiliate
	for rows.Next() {
		a, err := scanAffiliate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan affiliate: %w", err)
		}
		res = append(res, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// SetApprovalStatus меняет статус модерации партнёра и отметку времени решения.
func (r *PostgresRepository) SetApprovalStatus(ctx context.Context, id string, status model.ApprovalStatus) (*model.Affiliate, error) {
	a, err := scanAffiliate(r.pool.QueryRow(ctx,
		`UPDATE affiliates SET
			approval_status = $2,
			approved_at = CASE WHEN $2 = 'approved' THEN now() ELSE NULL END,
			rejected_at = CASE WHEN $2 = 'rejected' THEN now() ELSE NULL END
		 WHERE id = $1
		 RETURNING `+affiliateColumns,
		id, status,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAffiliateNotFound
		}
		return nil, fmt.Errorf("set approval status: %w", err)
	}
	return a, nil
}

// DeleteAffiliate удаляет партнёра со всеми зависимыми строками и учётной записью.
func (r *PostgresRepository) DeleteAffiliate(ctx context.Context, id string) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		if _, _, err := lockAffiliate(ctx, tx, id); err != nil {
			return err
		}

		// Привязки и резервы удаляются каскадом вместе с партнёром.
		if _, err := tx.Exec(ctx, `DELETE FROM affiliates WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete affiliate: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		return nil
	})
}

// Overview возвращает ключевые показатели для администратора.
func (r *PostgresRepository) Overview(ctx context.Context) (model.AdminOverview, error) {
	var o model.AdminOverview
	err := r.pool.QueryRow(ctx,
		`SELECT
			(SELECT count(*) FROM affiliates WHERE role = 'affiliate'),
			(SELECT count(*) FROM affiliates WHERE role = 'affiliate' AND approval_status = 'pending'),
			(SELECT count(*) FROM affiliation_requests WHERE status = 'pending'),
			(SELECT count(*) FROM payout_requests WHERE status IN ('requested', 'approved'))`,
	).Scan(&o.TotalAffiliates, &o.PendingApprovals, &o.PendingPlatformRequests, &o.PendingPayouts)
	if err != nil {
		return o, fmt.Errorf("overview: %w", err)
	}
	return o, nil
}
