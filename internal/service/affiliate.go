package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/affiliate-backoffice/internal/model"
	"github.com/mmeshcher/affiliate-backoffice/internal/repository"
	"github.com/mmeshcher/affiliate-backoffice/internal/validation"
)

const dashboardPayouts = 50

// Profile возвращает профиль партнёра.
func (s *Service) Profile(ctx context.Context, userID string) (*model.Affiliate, error) {
	return s.repo.GetAffiliate(ctx, userID)
}

// UpdateProfile сохраняет поля профиля, заполняемые партнёром.
func (s *Service) UpdateProfile(ctx context.Context, userID string, u model.ProfileUpdate) (*model.Affiliate, error) {
	for _, f := range []*string{u.Name, u.FullName, u.Instagram, u.Whatsapp, u.Telegram, u.Experience, u.Notes} {
		if f != nil {
			*f = strings.TrimSpace(*f)
		}
	}
	if u.Name != nil && *u.Name == "" {
		return nil, validation.Field("name", "required")
	}
	return s.repo.UpdateAffiliateProfile(ctx, userID, u)
}

// DeleteAccount удаляет аккаунт партнёра со всеми данными.
func (s *Service) DeleteAccount(ctx context.Context, userID string) error {
	if err := s.repo.DeleteAffiliate(ctx, userID); err != nil {
		return err
	}
	s.logger.Info("account deleted", zap.String("affiliate_id", userID))
	return nil
}

// approved возвращает профиль партнёра, допущенного к работе с площадками и выплатами.
func (s *Service) approved(ctx context.Context, userID string) (*model.Affiliate, error) {
	a, err := s.repo.GetAffiliate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if a.Role != model.RoleOwner && a.ApprovalStatus != model.ApprovalApproved {
		return nil, repository.ErrNotApproved
	}
	return a, nil
}

// Dashboard собирает сводку партнёра: баланс, метрики этого и прошлого месяца,
// площадки и последние заявки на вывод.
func (s *Service) Dashboard(ctx context.Context, userID string) (*model.Dashboard, error) {
	a, err := s.repo.GetAffiliate(ctx, userID)
	if err != nil {
		return nil, err
	}

	thisMonth, lastMonth := monthRanges(s.now())

	current, err := s.monthStats(ctx, userID, thisMonth)
	if err != nil {
		return nil, err
	}
	previous, err := s.monthStats(ctx, userID, lastMonth)
	if err != nil {
		return nil, err
	}

	links, err := s.repo.ListPlatformLinks(ctx, userID, true)
	if err != nil {
		return nil, err
	}

	payouts, err := s.Payouts(ctx, userID, dashboardPayouts)
	if err != nil {
		return nil, err
	}

	return &model.Dashboard{
		Commissions: a.Balance,
		ThisMonth:   current,
		LastMonth:   previous,
		Platforms:   links,
		Payouts:     payouts,
	}, nil
}

func (s *Service) monthStats(ctx context.Context, affiliateID string, rng model.DateRange) (model.MonthStats, error) {
	days, err := s.repo.ListDailyStats(ctx, affiliateID, rng)
	if err != nil {
		return model.MonthStats{}, err
	}
	return model.MonthStats{Range: rng, Days: days, Totals: model.SumStats(days)}, nil
}

// monthRanges возвращает границы текущего и предыдущего календарного месяца.
func monthRanges(now time.Time) (this, last model.DateRange) {
	y, m, _ := now.Date()
	first := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	this = model.DateRange{From: first, To: first.AddDate(0, 1, -1)}
	last = model.DateRange{From: first.AddDate(0, -1, 0), To: first.AddDate(0, 0, -1)}
	return this, last
}

// Platforms возвращает подключённые площадки, заявки и площадки каталога,
// к которым партнёр ещё не подключён и не подавал ожидающую заявку.
func (s *Service) Platforms(ctx context.Context, userID string) (*model.PlatformsView, error) {
	links, err := s.repo.ListPlatformLinks(ctx, userID, false)
	if err != nil {
		return nil, err
	}
	requests, err := s.repo.ListAffiliationRequests(ctx, model.RequestFilter{AffiliateID: userID})
	if err != nil {
		return nil, err
	}
	catalog, err := s.repo.ListPlatforms(ctx, true)
	if err != nil {
		return nil, err
	}

	taken := make(map[string]struct{}, len(links)+len(requests))
	for _, l := range links {
		taken[strings.ToLower(l.PlatformName)] = struct{}{}
	}
	for _, q := range requests {
		if q.Status == model.ApprovalPending {
			taken[strings.ToLower(q.PlatformName)] = struct{}{}
		}
	}

	available := make([]model.Platform, 0, len(catalog))
	for _, p := range catalog {
		if _, ok := taken[strings.ToLower(p.Name)]; !ok {
			available = append(available, p)
		}
	}

	return &model.PlatformsView{Links: links, Requests: requests, Available: available}, nil
}

// RequestAffiliation подаёт заявку на подключение к площадке каталога.
func (s *Service) RequestAffiliation(ctx context.Context, userID, platformID string) (*model.AffiliationRequest, error) {
	if !validID(platformID) {
		return nil, repository.ErrPlatformNotFound
	}
	if _, err := s.approved(ctx, userID); err != nil {
		return nil, err
	}

	q, err := s.repo.CreateAffiliationRequest(ctx, userID, platformID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("affiliation requested",
		zap.String("affiliate_id", userID), zap.String("platform", q.PlatformName))
	return q, nil
}

// PayoutInput содержит данные заявки на вывод от партнёра.
type PayoutInput struct {
	Amount  model.Amount        `json:"amount"`
	Details model.PayoutDetails `json:"details"`
	LinkID  *string             `json:"link_id,omitempty"`
}

// RequestPayout проверяет реквизиты и атомарно резервирует сумму заявки на вывод.
func (s *Service) RequestPayout(ctx context.Context, userID string, in PayoutInput) (*model.PayoutRequest, error) {
	details, err := validation.ValidatePayout(in.Amount, in.Details)
	if err != nil {
		return nil, err
	}
	if in.LinkID != nil && !validID(*in.LinkID) {
		return nil, repository.ErrLinkNotFound
	}

	p, err := s.repo.CreatePayoutRequest(ctx, model.NewPayout{
		AffiliateID: userID,
		Amount:      in.Amount,
		Details:     details,
		LinkID:      in.LinkID,
	})
	if err != nil {
		if !errors.Is(err, repository.ErrInsufficientBalance) && !errors.Is(err, repository.ErrNotApproved) {
			s.metrics.Failure("create_payout")
		}
		return nil, err
	}

	s.metrics.PayoutCreated(p.Amount)
	s.logger.Info("payout requested",
		zap.String("affiliate_id", userID),
		zap.String("payout_id", p.ID),
		zap.Stringer("amount", p.Amount),
	)
	return p, nil
}

// Payouts возвращает последние limit заявок партнёра.
func (s *Service) Payouts(ctx context.Context, userID string, limit int) ([]model.PayoutRequest, error) {
	rows, err := s.repo.ListPayouts(ctx, model.PayoutFilter{AffiliateID: userID, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("list payouts: %w", err)
	}

	res := make([]model.PayoutRequest, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.PayoutRequest)
	}
	return res, nil
}
