package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/affiliate-backoffice/internal/ledger"
	"github.com/mmeshcher/affiliate-backoffice/internal/model"
)

const payoutColumns = `p.id, p.affiliate_id, p.amount, p.approved_amount, p.status, p.admin_note,
	p.full_name, p.cpf, p.pix_key, p.bank_name, p.link_id, p.platform_name, p.created_at, p.processed_at`

func payoutDest(p *model.PayoutRequest) []any {
	return []any{
		&p.ID, &p.AffiliateID, &p.Amount, &p.ApprovedAmount, &p.Status, &p.AdminNote,
		&p.Details.FullName, &p.Details.CPF, &p.Details.PixKey, &p.Details.BankName,
		&p.LinkID, &p.PlatformName, &p.CreatedAt, &p.ProcessedAt,
	}
}

func scanPayout(row pgx.Row) (*model.PayoutRequest, error) {
	var p model.PayoutRequest
	if err := row.Scan(payoutDest(&p)...); err != nil {
		return nil, err
	}
	return &p, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadAllocations(ctx context.Context, q querier, payoutID string) ([]model.PayoutAllocation, error) {
	rows, err := q.Query(ctx,
		`SELECT link_id, amount FROM payout_allocations WHERE payout_id = $1 ORDER BY position`,
		payoutID,
	)
	if err != nil {
		return nil, fmt.Errorf("select allocations: %w", err)
	}
	defer rows.Close()

	var res []model.PayoutAllocation
	for rows.Next() {
		var a model.PayoutAllocation
		if err := rows.Scan(&a.LinkID, &a.Amount); err != nil {
			return nil, fmt.Errorf("scan allocation: %w", err)
		}
		res = append(res, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

func lockPayout(ctx context.Context, tx pgx.Tx, id string) (*model.PayoutRequest, error) {
	p, err := scanPayout(tx.QueryRow(ctx,
		`SELECT `+payoutColumns+` FROM payout_requests p WHERE p.id = $1 FOR UPDATE`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPayoutNotFound
		}
		return nil, fmt.Errorf("lock payout: %w", err)
	}
	return p, nil
}

// lockLinks блокирует привязки, отобранные условием cond, в порядке создания.
func lockLinks(ctx context.Context, tx pgx.Tx, cond string, args ...any) ([]model.PlatformLink, error) {
	rows, err := tx.Query(ctx,
		`SELECT `+linkColumns+` FROM platform_links WHERE `+cond+` ORDER BY created_at, id FOR UPDATE`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("lock platform links: %w", err)
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

func saveLinkBalance(ctx context.Context, tx pgx.Tx, id string, b model.Balance) error {
	_, err := tx.Exec(ctx,
		`UPDATE platform_links SET
			commission_available = $2,
			commission_requested = $3,
			commission_paid      = $4,
			commission_refused   = $5
		 WHERE id = $1`,
		id, b.Available, b.Requested, b.Paid, b.Refused,
	)
	if err != nil {
		return fmt.Errorf("update link balance: %w", err)
	}
	return nil
}

// CreatePayoutRequest атомарно проверяет доступный баланс и резервирует сумму
// заявки на привязках партнёра: на одной, если указан LinkID, иначе на всех
// начиная со старейшей.
func (r *PostgresRepository) CreatePayoutRequest(ctx context.Context, np model.NewPayout) (*model.PayoutRequest, error) {
	var created *model.PayoutRequest
	payoutID := uuid.NewString()
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		role, status, err := lockAffiliate(ctx, tx, np.AffiliateID)
		if err != nil {
			return err
		}
		if role != model.RoleOwner && status != model.ApprovalApproved {
			return ErrNotApproved
		}

		var links []model.PlatformLink
		if np.LinkID != nil {
			links, err = lockLinks(ctx, tx, `affiliate_id = $1 AND id = $2`, np.AffiliateID, *np.LinkID)
			if err == nil && len(links) == 0 {
				err = ErrLinkNotFound
			}
		} else {
			links, err = lockLinks(ctx, tx, `affiliate_id = $1`, np.AffiliateID)
		}
		if err != nil {
			return err
		}

		balances := make([]ledger.LinkBalance, 0, len(links))
		current := make(map[string]model.Balance, len(links))
		for _, l := range links {
			balances = append(balances, ledger.LinkBalance{LinkID: l.ID, Balance: l.Balance})
			current[l.ID] = l.Balance
		}

		allocs, err := ledger.Allocate(balances, np.Amount)
		if err != nil {
			return err
		}

		for _, a := range allocs {
			b, err := ledger.Reserve(current[a.LinkID], a.Amount)
			if err != nil {
				return err
			}
			if err := saveLinkBalance(ctx, tx, a.LinkID, b); err != nil {
				return err
			}
		}

		var platformName string
		if np.LinkID != nil {
			platformName = links[0].PlatformName
		}

		created, err = scanPayout(tx.QueryRow(ctx,
			`INSERT INTO payout_requests AS p (id, affiliate_id, amount, status, full_name, cpf, pix_key, bank_name, link_id, platform_name)
			 VALUES ($1, $2, $3, 'requested', $4, $5, $6, $7, $8, $9)
			 RETURNING `+payoutColumns,
			payoutID, np.AffiliateID, np.Amount,
			np.Details.FullName, np.Details.CPF, np.Details.PixKey, np.Details.BankName,
			np.LinkID, platformName,
		))
		if err != nil {
			return fmt.Errorf("insert payout: %w", err)
		}

		for i, a := range allocs {
			_, err := tx.Exec(ctx,
				`INSERT INTO payout_allocations (payout_id, link_id, position, amount) VALUES ($1, $2, $3, $4)`,
				created.ID, a.LinkID, i, a.Amount,
			)
			if err != nil {
				return fmt.Errorf("insert allocation: %w", err)
			}
		}
		created.Allocations = allocs

		return recomputeAggregate(ctx, tx, np.AffiliateID)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// settle применяет операцию закрытия к привязкам, на которых лежат резервы заявки.
func settle(ctx context.Context, tx pgx.Tx, payoutID string, op ledger.Op, payAmt model.Amount) ([]model.PayoutAllocation, error) {
	allocs, err := loadAllocations(ctx, tx, payoutID)
	if err != nil {
		return nil, err
	}

	links, err := lockLinks(ctx, tx,
		`id IN (SELECT link_id FROM payout_allocations WHERE payout_id = $1)`, payoutID)
	if err != nil {
		return nil, err
	}

	current := make(map[string]model.Balance, len(links))
	for _, l := range links {
		current[l.ID] = l.Balance
	}

	for id, b := range ledger.Settle(current, allocs, op, payAmt) {
		if b == current[id] {
			continue
		}
		if err := saveLinkBalance(ctx, tx, id, b); err != nil {
			return nil, err
		}
	}

	return allocs, nil
}

// FinalizePayout атомарно меняет статус заявки и балансы привязок, на которых
// лежит её резерв, и пересчитывает баланс партнёра.
func (r *PostgresRepository) FinalizePayout(ctx context.Context, id string, ch model.PayoutChange) (*model.PayoutRequest, error) {
	var updated *model.PayoutRequest
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		p, err := lockPayout(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := ledger.CanTransition(p.Status, ch.Status); err != nil {
			return fmt.Errorf("%w: %s -> %s", err, p.Status, ch.Status)
		}

		approved := p.ApprovedAmount
		if ch.ApprovedAmount != nil {
			approved = ch.ApprovedAmount
		}
		payAmt, err := ledger.PayAmount(p.Amount, approved)
		if err != nil {
			return err
		}

		if _, _, err := lockAffiliate(ctx, tx, p.AffiliateID); err != nil {
			return err
		}

		var allocs []model.PayoutAllocation
		if op, ok := ledger.OpFor(ch.Status); ok {
			allocs, err = settle(ctx, tx, p.ID, op, payAmt)
		} else {
			allocs, err = loadAllocations(ctx, tx, p.ID)
		}
		if err != nil {
			return err
		}

		updated, err = scanPayout(tx.QueryRow(ctx,
			`UPDATE payout_requests AS p SET
				status          = $2,
				approved_amount = $3,
				admin_note      = COALESCE($4, p.admin_note),
				processed_at    = CASE WHEN $5::boolean THEN now() ELSE p.processed_at END
			 WHERE p.id = $1
			 RETURNING `+payoutColumns,
			p.ID, ch.Status, approved, ch.AdminNote, ch.Status.Terminal(),
		))
		if err != nil {
			return fmt.Errorf("update payout: %w", err)
		}
		updated.Allocations = allocs

		return recomputeAggregate(ctx, tx, p.AffiliateID)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeletePayout удаляет заявку. Резерв незакрытой заявки возвращается в доступный остаток.
func (r *PostgresRepository) DeletePayout(ctx context.Context, id string) (*model.PayoutRequest, error) {
	var deleted *model.PayoutRequest
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		p, err := lockPayout(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, _, err := lockAffiliate(ctx, tx, p.AffiliateID); err != nil {
			return err
		}

		if ledger.RefundsOnDelete(p.Status) {
			if p.Allocations, err = settle(ctx, tx, p.ID, ledger.OpRelease, 0); err != nil {
				return err
			}
		}

		if _, err := tx.Exec(ctx, `DELETE FROM payout_requests WHERE id = $1`, p.ID); err != nil {
			return fmt.Errorf("delete payout: %w", err)
		}
		deleted = p

		return recomputeAggregate(ctx, tx, p.AffiliateID)
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// GetPayout возвращает заявку вместе с её резервами.
func (r *PostgresRepository) GetPayout(ctx context.Context, id string) (*model.PayoutRequest, error) {
	p, err := scanPayout(r.pool.QueryRow(ctx,
		`SELECT `+payoutColumns+` FROM payout_requests p WHERE p.id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPayoutNotFound
		}
		return nil, fmt.Errorf("get payout: %w", err)
	}

	if p.Allocations, err = loadAllocations(ctx, r.pool, p.ID); err != nil {
		return nil, err
	}
	return p, nil
}

// payoutSearch собирает шаблон ILIKE для поиска по заявкам; nil отключает поиск.
func payoutSearch(term string) *string {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil
	}
	pattern := "%" + likeEscaper.Replace(term) + "%"
	return &pattern
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

const payoutSearchCond = `($2::text IS NULL OR a.email ILIKE $2 OR a.name ILIKE $2 OR a.full_name ILIKE $2
	OR p.full_name ILIKE $2 OR p.cpf ILIKE $2 OR p.pix_key ILIKE $2 OR p.bank_name ILIKE $2 OR p.platform_name ILIKE $2)`

// ListPayouts возвращает заявки с данными партнёра, новые первыми.
func (r *PostgresRepository) ListPayouts(ctx context.Context, f model.PayoutFilter) ([]model.PayoutRow, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 500
	}

	var affiliateID *string
	if f.AffiliateID != "" {
		affiliateID = &f.AffiliateID
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+payoutColumns+`, a.email, a.name, a.full_name
		 FROM payout_requests p
		 JOIN affiliates a ON a.id = p.affiliate_id
		 WHERE ($1::uuid IS NULL OR p.affiliate_id = $1) AND `+payoutSearchCond+`
		   AND ($3::text IS NULL OR p.status = $3)
		 ORDER BY p.created_at DESC
		 LIMIT $4`,
		affiliateID, payoutSearch(f.Search), f.Status, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select payouts: %w", err)
	}
	defer rows.Close()

	var res []model.PayoutRow
	for rows.Next() {
		var row model.PayoutRow
		dest := append(payoutDest(&row.PayoutRequest), &row.AffiliateEmail, &row.AffiliateName, &row.AffiliateFullName)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan payout: %w", err)
		}
		res = append(res, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CountPayouts считает заявки по статусам с учётом партнёра и поиска из фильтра.
// Статус и лимит фильтра не учитываются.
func (r *PostgresRepository) CountPayouts(ctx context.Context, f model.PayoutFilter) (model.PayoutSummary, error) {
	var affiliateID *string
	if f.AffiliateID != "" {
		affiliateID = &f.AffiliateID
	}

	var sum model.PayoutSummary
	err := r.pool.QueryRow(ctx,
		`SELECT
			count(*) FILTER (WHERE p.status = 'requested'),
			count(*) FILTER (WHERE p.status = 'approved'),
			count(*) FILTER (WHERE p.status = 'paid'),
			count(*) FILTER (WHERE p.status = 'refused')
		 FROM payout_requests p
		 JOIN affiliates a ON a.id = p.affiliate_id
		 WHERE ($1::uuid IS NULL OR p.affiliate_id = $1) AND `+payoutSearchCond,
		affiliateID, payoutSearch(f.Search),
	).Scan(&sum.Requested, &sum.Approved, &sum.Paid, &sum.Refused)
	if err != nil {
		return model.PayoutSummary{}, fmt.Errorf("count payouts: %w", err)
	}
	return sum, nil
}
