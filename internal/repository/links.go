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

const linkColumns = `id, affiliate_id, platform_id, platform_name, platform_link, affiliate_link,
	commission_model, baseline, cpa, rev,
	commission_available, commission_requested, commission_paid, commission_refused,
	total_signups, total_ftds, total_deposits_amount, total_cpa_amount, total_revshare_amount,
	active, created_at`

func scanLink(row pgx.Row) (*model.PlatformLink, error) {
	var l model.PlatformLink
	err := row.Scan(
		&l.ID, &l.AffiliateID, &l.PlatformID, &l.PlatformName, &l.PlatformLink, &l.AffiliateLink,
		&l.Terms.Model, &l.Terms.Baseline, &l.Terms.CPA, &l.Terms.Rev,
		&l.Balance.Available, &l.Balance.Requested, &l.Balance.Paid, &l.Balance.Refused,
		&l.Counters.Signups, &l.Counters.FTDs, &l.Counters.DepositsAmount, &l.Counters.CPAAmount, &l.Counters.RevshareAmount,
		&l.Active, &l.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

const requestColumns = `id, affiliate_id, platform_id, platform_name, platform_link, status, created_at`

func scanRequest(row pgx.Row) (*model.AffiliationRequest, error) {
	var q model.AffiliationRequest
	err := row.Scan(&q.ID, &q.AffiliateID, &q.PlatformID, &q.PlatformName, &q.PlatformLink, &q.Status, &q.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// CreateAffiliationRequest создаёт заявку партнёра на подключение к активной площадке каталога.
func (r *PostgresRepository) CreateAffiliationRequest(ctx context.Context, affiliateID, platformID string) (*model.AffiliationRequest, error) {
	p, err := r.GetPlatform(ctx, platformID)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, ErrPlatformNotFound
	}

	var linked bool
	err = r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM platform_links WHERE affiliate_id = $1 AND lower(platform_name) = lower($2))`,
		affiliateID, p.Name,
	).Scan(&linked)
	if err != nil {
		return nil, fmt.Errorf("check link: %w", err)
	}
	if linked {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyLinked, p.Name)
	}

	q, err := scanRequest(r.pool.QueryRow(ctx,
		`INSERT INTO affiliation_requests (id, affiliate_id, platform_id, platform_name, platform_link)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+requestColumns,
		uuid.NewString(), affiliateID, p.ID, p.Name, p.Link,
	))
	if err != nil {
		switch pgCode(err) {
		case pgerrcode.UniqueViolation:
			return nil, fmt.Errorf("%w: %s", ErrRequestExists, p.Name)
		case pgerrcode.ForeignKeyViolation:
			return nil, ErrAffiliateNotFound
		}
		return nil, fmt.Errorf("create affiliation request: %w", err)
	}
	return q, nil
}

// ListAffiliationRequests возвращает заявки на подключение, новые первыми.
func (r *PostgresRepository) ListAffiliationRequests(ctx context.Context, f model.RequestFilter) ([]model.AffiliationRequest, error) {
	var affiliateID *string
	if f.AffiliateID != "" {
		affiliateID = &f.AffiliateID
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+requestColumns+`
		 FROM affiliation_requests
		 WHERE ($1::uuid IS NULL OR affiliate_id = $1) AND ($2::text IS NULL OR status = $2)
		 ORDER BY created_at DESC`,
		affiliateID, f.Status,
	)
	if err != nil {
		return nil, fmt.Errorf("select affiliation requests: %w", err)
	}
	defer rows.Close()

	var res []model.AffiliationRequest
	for rows.Next() {
		q, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan affiliation request: %w", err)
		}
		res = append(res, *q)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

func lockRequest(ctx context.Context, tx pgx.Tx, id string) (*model.AffiliationRequest, error) {
	q, err := scanRequest(tx.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM affiliation_requests WHERE id = $1 FOR UPDATE`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("lock affiliation request: %w", err)
	}
	return q, nil
}

// ApproveAffiliationRequest одобряет заявку и создаёт привязку с условиями
// площадки из каталога. Если привязка с таким названием площадки уже есть,
// новая не создаётся.
func (r *PostgresRepository) ApproveAffiliationRequest(ctx context.Context, id string, a model.LinkApproval) (*model.PlatformLink, error) {
	var link *model.PlatformLink
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		q, err := lockRequest(ctx, tx, id)
		if err != nil {
			return err
		}
		if q.Status != model.ApprovalPending {
			return ErrRequestNotPending
		}

		if _, _, err := lockAffiliate(ctx, tx, q.AffiliateID); err != nil {
			return err
		}

		terms := model.CommissionTerms{Model: model.CommissionCPA}
		if q.PlatformID != nil {
			err := tx.QueryRow(ctx,
				`SELECT commission_model, baseline, cpa, rev FROM platforms WHERE id = $1`,
				*q.PlatformID,
			).Scan(&terms.Model, &terms.Baseline, &terms.CPA, &terms.Rev)
			if err != nil && !errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("select platform terms: %w", err)
			}
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO platform_links (id, affiliate_id, platform_id, platform_name, platform_link, affiliate_link,
				commission_model, baseline, cpa, rev, commission_available)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			 ON CONFLICT (affiliate_id, lower(platform_name)) DO NOTHING`,
			uuid.NewString(), q.AffiliateID, q.PlatformID, q.PlatformName, q.PlatformLink, a.AffiliateLink,
			terms.Model, terms.Baseline, terms.CPA, terms.Rev, max(a.Available, 0),
		)
		if err != nil {
			return fmt.Errorf("insert platform link: %w", err)
		}

		link, err = scanLink(tx.QueryRow(ctx,
			`SELECT `+linkColumns+` FROM platform_links WHERE affiliate_id = $1 AND lower(platform_name) = lower($2)`,
			q.AffiliateID, q.PlatformName,
		))
		if err != nil {
			return fmt.Errorf("select platform link: %w", err)
		}

		if _, err := tx.Exec(ctx, `UPDATE affiliation_requests SET status = 'approved' WHERE id = $1`, id); err != nil {
			return fmt.Errorf("approve affiliation request: %w", err)
		}

		return recomputeAggregate(ctx, tx, q.AffiliateID)
	})
	if err != nil {
		return nil, err
	}
	return link, nil
}

// RejectAffiliationRequest отклоняет ожидающую заявку.
func (r *PostgresRepository) RejectAffiliationRequest(ctx context.Context, id string) (*model.AffiliationRequest, error) {
	var q *model.AffiliationRequest
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		q, err = lockRequest(ctx, tx, id)
		if err != nil {
			return err
		}
		if q.Status != model.ApprovalPending {
			return ErrRequestNotPending
		}

		if _, err := tx.Exec(ctx, `UPDATE affiliation_requests SET status = 'rejected' WHERE id = $1`, id); err != nil {
			return fmt.Errorf("reject affiliation request: %w", err)
		}
		q.Status = model.ApprovalRejected
		return nil
	})
	if err != nil {
		return nil, err
	}
	return q, nil
}

// DeleteAffiliationRequest удаляет заявку. Для одобренной заявки удаляется
// и созданная по ней привязка, если на ней нет незакрытых резервов.
func (r *PostgresRepository) DeleteAffiliationRequest(ctx context.Context, id string) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		q, err := lockRequest(ctx, tx, id)
		if err != nil {
			return err
		}

		if q.Status == model.ApprovalApproved {
			if _, _, err := lockAffiliate(ctx, tx, q.AffiliateID); err != nil && !errors.Is(err, ErrAffiliateNotFound) {
				return err
			}

			cond := `l.affiliate_id = $1 AND lower(l.platform_name) = lower($2)`
			if open, err := hasOpenPayouts(ctx, tx, cond, q.AffiliateID, q.PlatformName); err != nil {
				return err
			} else if open {
				return ErrOpenPayouts
			}

			_, err = tx.Exec(ctx,
				`DELETE FROM platform_links WHERE affiliate_id = $1 AND lower(platform_name) = lower($2)`,
				q.AffiliateID, q.PlatformName,
			)
			if err != nil {
				return fmt.Errorf("delete platform link: %w", err)
			}
			if err := recomputeAggregate(ctx, tx, q.AffiliateID); err != nil {
				return err
			}
		}

		if _, err := tx.Exec(ctx, `DELETE FROM affiliation_requests WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete affiliation request: %w", err)
		}
		return nil
	})
}

// ListPlatformLinks возвращает привязки партнёра в порядке создания.
func (r *PostgresRepository) ListPlatformLinks(ctx context.Context, affiliateID string, activeOnly bool) ([]model.PlatformLink, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+linkColumns+`
		 FROM platform_links
		 WHERE affiliate_id = $1 AND (active OR NOT $2)
		 ORDER BY created_at, id`,
		affiliateID, activeOnly,
	)
	if err != nil {
		return nil, fmt.Errorf("select platform links: %w", err)
	}
	defer rows.Close()

	var res []model.PlatformLink
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("scan platform link: %w", err)
		}
		res = append(res, *l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

func linkOwner(ctx context.Context, tx pgx.Tx, id string) (string, error) {
	var affiliateID string
	err := tx.QueryRow(ctx, `SELECT affiliate_id FROM platform_links WHERE id = $1`, id).Scan(&affiliateID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrLinkNotFound
		}
		return "", fmt.Errorf("select link owner: %w", err)
	}
	return affiliateID, nil
}

// UpdatePlatformLink изменяет условия, счётчики и доступный остаток привязки.
// Зарезервированные, выплаченные и отклонённые суммы меняются только переходами заявок.
func (r *PostgresRepository) UpdatePlatformLink(ctx context.Context, id string, u model.LinkUpdate) (*model.PlatformLink, error) {
	var (
		termsModel     *model.CommissionModel
		baseline, cpa  *model.Amount
		rev            *float64
		signups, ftds  *int64
		deposits       *model.Amount
		cpaTotal, revs *model.Amount
	)
	if u.Terms != nil {
		termsModel, baseline, cpa, rev = &u.Terms.Model, &u.Terms.Baseline, &u.Terms.CPA, &u.Terms.Rev
	}
	if u.Counters != nil {
		c := u.Counters
		signups, ftds, deposits, cpaTotal, revs = &c.Signups, &c.FTDs, &c.DepositsAmount, &c.CPAAmount, &c.RevshareAmount
	}

	var link *model.PlatformLink
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		affiliateID, err := linkOwner(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, _, err := lockAffiliate(ctx, tx, affiliateID); err != nil {
			return err
		}

		link, err = scanLink(tx.QueryRow(ctx,
			`UPDATE platform_links SET
				affiliate_link        = COALESCE($2, affiliate_link),
				commission_model      = COALESCE($3, commission_model),
				baseline              = COALESCE($4, baseline),
				cpa                   = COALESCE($5, cpa),
				rev                   = COALESCE($6, rev),
				total_signups         = COALESCE($7, total_signups),
				total_ftds            = COALESCE($8, total_ftds),
				total_deposits_amount = COALESCE($9, total_deposits_amount),
				total_cpa_amount      = COALESCE($10, total_cpa_amount),
				total_revshare_amount = COALESCE($11, total_revshare_amount),
				commission_available  = COALESCE($12, commission_available),
				active                = COALESCE($13, active)
			 WHERE id = $1
			 RETURNING `+linkColumns,
			id, u.AffiliateLink, termsModel, baseline, cpa, rev,
			signups, ftds, deposits, cpaTotal, revs,
			u.Available, u.Active,
		))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrLinkNotFound
			}
			return fmt.Errorf("update platform link: %w", err)
		}

		return recomputeAggregate(ctx, tx, affiliateID)
	})
	if err != nil {
		return nil, err
	}
	return link, nil
}

// DeletePlatformLink удаляет привязку без незакрытых резервов.
func (r *PostgresRepository) DeletePlatformLink(ctx context.Context, id string) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		affiliateID, err := linkOwner(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, _, err := lockAffiliate(ctx, tx, affiliateID); err != nil {
			return err
		}

		if open, err := hasOpenPayouts(ctx, tx, `l.id = $1`, id); err != nil {
			return err
		} else if open {
			return ErrOpenPayouts
		}

		tag, err := tx.Exec(ctx, `DELETE FROM platform_links WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete platform link: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrLinkNotFound
		}

		return recomputeAggregate(ctx, tx, affiliateID)
	})
}
