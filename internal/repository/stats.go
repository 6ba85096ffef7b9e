package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"

	"github.com/mmeshcher/affiliate-backoffice/internal/model"
)

const statsColumns = `day, signups, ftds, ftd_amount, qftds_cpa, cpa_amount, deposits_amount, revshare_amount`

// UpsertDailyStats сохраняет метрики партнёра за день. При add значения
// прибавляются к уже сохранённым, иначе заменяют их.
func (r *PostgresRepository) UpsertDailyStats(ctx context.Context, affiliateID string, s model.DailyStats, add bool) (model.DailyStats, error) {
	query := `INSERT INTO affiliate_stats_daily AS d (affiliate_id, ` + statsColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (affiliate_id, day) DO UPDATE SET
			signups         = EXCLUDED.signups,
			ftds            = EXCLUDED.ftds,
			ftd_amount      = EXCLUDED.ftd_amount,
			qftds_cpa       = EXCLUDED.qftds_cpa,
			cpa_amount      = EXCLUDED.cpa_amount,
			deposits_amount = EXCLUDED.deposits_amount,
			revshare_amount = EXCLUDED.revshare_amount
		RETURNING ` + statsColumns
	if add {
		query = `INSERT INTO affiliate_stats_daily AS d (affiliate_id, ` + statsColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (affiliate_id, day) DO UPDATE SET
			signups         = d.signups + EXCLUDED.signups,
			ftds            = d.ftds + EXCLUDED.ftds,
			ftd_amount      = d.ftd_amount + EXCLUDED.ftd_amount,
			qftds_cpa       = d.qftds_cpa + EXCLUDED.qftds_cpa,
			cpa_amount      = d.cpa_amount + EXCLUDED.cpa_amount,
			deposits_amount = d.deposits_amount + EXCLUDED.deposits_amount,
			revshare_amount = d.revshare_amount + EXCLUDED.revshare_amount
		RETURNING ` + statsColumns
	}

	var out model.DailyStats
	err := r.pool.QueryRow(ctx, query,
		affiliateID, truncateDay(s.Day),
		s.Signups, s.FTDs, s.FTDAmount, s.QFTDsCPA, s.CPAAmount, s.DepositsAmount, s.RevshareAmount,
	).Scan(&out.Day, &out.Signups, &out.FTDs, &out.FTDAmount, &out.QFTDsCPA, &out.CPAAmount, &out.DepositsAmount, &out.RevshareAmount)
	if err != nil {
		if pgCode(err) == pgerrcode.ForeignKeyViolation {
			return out, ErrAffiliateNotFound
		}
		return out, fmt.Errorf("upsert daily stats: %w", err)
	}
	return out, nil
}

// ListDailyStats возвращает метрики партнёра за дни из [from, to] по возрастанию дат.
func (r *PostgresRepository) ListDailyStats(ctx context.Context, affiliateID string, rng model.DateRange) ([]model.DailyStats, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+statsColumns+`
		 FROM affiliate_stats_daily
		 WHERE affiliate_id = $1 AND day BETWEEN $2 AND $3
		 ORDER BY day`,
		affiliateID, truncateDay(rng.From), truncateDay(rng.To),
	)
	if err != nil {
		return nil, fmt.Errorf("select daily stats: %w", err)
	}
	defer rows.Close()

	var res []model.DailyStats
	for rows.Next() {
		var s model.DailyStats
		if err := rows.Scan(&s.Day, &s.Signups, &s.FTDs, &s.FTDAmount, &s.QFTDsCPA, &s.CPAAmount, &s.DepositsAmount, &s.RevshareAmount); err != nil {
			return nil, fmt.Errorf("scan daily stats: %w", err)
		}
		res = append(res, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
