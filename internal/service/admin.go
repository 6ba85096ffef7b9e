package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/affiliate-backoffice/internal/ledger"
	"github.com/mmeshcher/affiliate-backoffice/internal/model"
	"github.com/mmeshcher/affiliate-backoffice/internal/repository"
	"github.com/mmeshcher/affiliate-backoffice/internal/validation"
)

const adminPayoutsLimit = 1000

// Overview возвращает ключевые показатели для администратора.
func (s *Service) Overview(ctx context.Context) (model.AdminOverview, error) {
	return s.repo.Overview(ctx)
}

// Affiliates возвращает партнёров, при необходимости только с указанным статусом модерации.
func (s *Service) Affiliates(ctx context.Context, status *model.ApprovalStatus) ([]model.Affiliate, error) {
	return s.repo.ListAffiliates(ctx, model.AffiliateFilter{Status: status})
}

// SetApproval меняет статус модерации партнёра.
func (s *Service) SetApproval(ctx context.Context, affiliateID string, status model.ApprovalStatus) (*model.Affiliate, error) {
	if !validID(affiliateID) {
		return nil, repository.ErrAffiliateNotFound
	}
	if _, err := model.ParseApprovalStatus(string(status)); err != nil {
		return nil, validation.Field("status", "must be pending, approved or rejected")
	}

	a, err := s.repo.SetApprovalStatus(ctx, affiliateID, status)
	if err != nil {
		return nil, err
	}
	s.logger.Info("affiliate approval changed", zap.String("affiliate_id", affiliateID), zap.String("status", string(status)))
	return a, nil
}

// DeleteAffiliate удаляет партнёра. Владелец не может удалить сам себя.
func (s *Service) DeleteAffiliate(ctx context.Context, actorID, affiliateID string) error {
	if !validID(affiliateID) {
		return repository.ErrAffiliateNotFound
	}
	if actorID == affiliateID {
		return ErrForbidden
	}
	return s.DeleteAccount(ctx, affiliateID)
}

// AllPlatforms возвращает весь каталог площадок.
func (s *Service) AllPlatforms(ctx context.Context) ([]model.Platform, error) {
	return s.repo.ListPlatforms(ctx, false)
}

func normalizePlatform(p model.Platform) (model.Platform, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.Link = strings.TrimSpace(p.Link)
	if err := validation.ValidatePlatform(p); err != nil {
		return p, err
	}
	p.Terms.Model, _ = model.ParseCommissionModel(string(p.Terms.Model))
	return p, nil
}

// CreatePlatform добавляет площадку в каталог.
func (s *Service) CreatePlatform(ctx context.Context, p model.Platform) (*model.Platform, error) {
	p, err := normalizePlatform(p)
	if err != nil {
		return nil, err
	}
	return s.repo.CreatePlatform(ctx, p)
}

// UpdatePlatform изменяет карточку площадки.
func (s *Service) UpdatePlatform(ctx context.Context, p model.Platform) (*model.Platform, error) {
	if !validID(p.ID) {
		return nil, repository.ErrPlatformNotFound
	}
	p, err := normalizePlatform(p)
	if err != nil {
		return nil, err
	}
	return s.repo.UpdatePlatform(ctx, p)
}

// DeletePlatform удаляет площадку вместе с заявками и привязками к ней.
func (s *Service) DeletePlatform(ctx context.Context, id string) error {
	if !validID(id) {
		return repository.ErrPlatformNotFound
	}
	if err := s.repo.DeletePlatform(ctx, id); err != nil {
		return err
	}
	s.logger.Info("platform deleted", zap.String("platform_id", id))
	return nil
}

// AffiliationRequests возвращает заявки на подключение.
func (s *Service) AffiliationRequests(ctx context.Context, status *model.ApprovalStatus) ([]model.AffiliationRequest, error) {
	return s.repo.ListAffiliationRequests(ctx, model.RequestFilter{Status: status})
}

// ApproveAffiliation одобряет заявку и создаёт привязку партнёра к площадке.
func (s *Service) ApproveAffiliation(ctx context.Context, id string, a model.LinkApproval) (*model.PlatformLink, error) {
	if !validID(id) {
		return nil, repository.ErrRequestNotFound
	}
	if a.Available < 0 {
		return nil, validation.Field("available", "must not be negative")
	}
	a.AffiliateLink = strings.TrimSpace(a.AffiliateLink)

	link, err := s.repo.ApproveAffiliationRequest(ctx, id, a)
	if err != nil {
		return nil, err
	}
	s.logger.Info("affiliation approved",
		zap.String("request_id", id), zap.String("affiliate_id", link.AffiliateID), zap.String("link_id", link.ID))
	return link, nil
}

// RejectAffiliation отклоняет заявку на подключение.
func (s *Service) RejectAffiliation(ctx context.Context, id string) (*model.AffiliationRequest, error) {
	if !validID(id) {
		return nil, repository.ErrRequestNotFound
	}
	return s.repo.RejectAffiliationRequest(ctx, id)
}

// DeleteAffiliation удаляет заявку на подключение, а для одобренной также и привязку.
func (s *Service) DeleteAffiliation(ctx context.Context, id string) error {
	if !validID(id) {
		return repository.ErrRequestNotFound
	}
	return s.repo.DeleteAffiliationRequest(ctx, id)
}

// AffiliateLinks возвращает все привязки партнёра.
func (s *Service) AffiliateLinks(ctx context.Context, affiliateID string) ([]model.PlatformLink, error) {
	if !validID(affiliateID) {
		return nil, repository.ErrAffiliateNotFound
	}
	return s.repo.ListPlatformLinks(ctx, affiliateID, false)
}

// UpdateLink изменяет привязку партнёра к площадке.
func (s *Service) UpdateLink(ctx context.Context, id string, u model.LinkUpdate) (*model.PlatformLink, error) {
	if !validID(id) {
		return nil, repository.ErrLinkNotFound
	}
	if err := validation.ValidateLinkUpdate(u); err != nil {
		return nil, err
	}
	if u.Terms != nil {
		u.Terms.Model, _ = model.ParseCommissionModel(string(u.Terms.Model))
	}

	link, err := s.repo.UpdatePlatformLink(ctx, id, u)
	if err != nil {
		return nil, err
	}
	if u.Available != nil {
		s.logger.Info("link available balance set",
			zap.String("link_id", id), zap.Stringer("available", *u.Available))
	}
	return link, nil
}

// DeleteLink удаляет привязку без незакрытых заявок на вывод.
func (s *Service) DeleteLink(ctx context.Context, id string) error {
	if !validID(id) {
		return repository.ErrLinkNotFound
	}
	return s.repo.DeletePlatformLink(ctx, id)
}

// PayoutQuery задаёт условия выборки заявок для администратора.
type PayoutQuery struct {
	Status *model.PayoutStatus
	Search string
}

// AdminPayouts возвращает заявки, подходящие под поиск и статус, и сводку по
// статусам среди всех подходящих под поиск заявок.
func (s *Service) AdminPayouts(ctx context.Context, q PayoutQuery) (*model.PayoutList, error) {
	f := model.PayoutFilter{Status: q.Status, Search: q.Search, Limit: adminPayoutsLimit}

	rows, err := s.repo.ListPayouts(ctx, f)
	if err != nil {
		return nil, err
	}

	summary, err := s.repo.CountPayouts(ctx, f)
	if err != nil {
		return nil, err
	}

	if rows == nil {
		rows = []model.PayoutRow{}
	}
	return &model.PayoutList{Rows: rows, Summary: summary}, nil
}

// ChangePayoutStatus атомарно переводит заявку в новый статус с корректировкой балансов.
func (s *Service) ChangePayoutStatus(ctx context.Context, id string, ch model.PayoutChange) (*model.PayoutRequest, error) {
	if !validID(id) {
		return nil, repository.ErrPayoutNotFound
	}
	if ch.ApprovedAmount != nil && *ch.ApprovedAmount < 0 {
		return nil, validation.Field("approved_amount", "must not be negative")
	}
	if ch.AdminNote != nil {
		note := strings.TrimSpace(*ch.AdminNote)
		ch.AdminNote = &note
	}

	before, err := s.repo.GetPayout(ctx, id)
	if err != nil {
		return nil, err
	}

	p, err := s.repo.FinalizePayout(ctx, id, ch)
	if err != nil {
		s.metrics.Failure("finalize_payout")
		return nil, err
	}

	var paid model.Amount
	if p.Status == model.PayoutPaid {
		paid, _ = ledger.PayAmount(p.Amount, p.ApprovedAmount)
	}
	s.metrics.PayoutTransition(before.Status, p.Status, paid)
	s.logger.Info("payout status changed",
		zap.String("payout_id", id),
		zap.String("from", string(before.Status)),
		zap.String("to", string(p.Status)),
	)

	s.notify(ctx, *p)
	return p, nil
}

func (s *Service) notify(ctx context.Context, p model.PayoutRequest) {
	if s.notifier == nil {
		return
	}
	a, err := s.repo.GetAffiliate(ctx, p.AffiliateID)
	if err != nil {
		s.logger.Warn("load affiliate for notification", zap.String("payout_id", p.ID), zap.Error(err))
		return
	}
	s.notifier.PayoutChanged(a.Email, p)
}

// DeletePayout удаляет заявку, возвращая незакрытый резерв в доступный остаток.
func (s *Service) DeletePayout(ctx context.Context, id string) error {
	if !validID(id) {
		return repository.ErrPayoutNotFound
	}

	p, err := s.repo.DeletePayout(ctx, id)
	if err != nil {
		s.metrics.Failure("delete_payout")
		return err
	}

	s.metrics.PayoutDeleted(p.Status)
	s.logger.Info("payout deleted",
		zap.String("payout_id", id),
		zap.String("status", string(p.Status)),
		zap.Bool("refunded", ledger.RefundsOnDelete(p.Status)),
	)
	return nil
}

// UpsertStats сохраняет дневные метрики партнёра.
func (s *Service) UpsertStats(ctx context.Context, affiliateID string, st model.DailyStats, mode validation.StatsMode) (model.DailyStats, error) {
	if !validID(affiliateID) {
		return model.DailyStats{}, repository.ErrAffiliateNotFound
	}
	if err := validation.ValidateStats(st); err != nil {
		return model.DailyStats{}, err
	}
	return s.repo.UpsertDailyStats(ctx, affiliateID, st, mode == validation.StatsAdd)
}

// Stats возвращает дневные метрики партнёра за период с итогами.
func (s *Service) Stats(ctx context.Context, affiliateID string, rng model.DateRange) (model.MonthStats, error) {
	if !validID(affiliateID) {
		return model.MonthStats{}, repository.ErrAffiliateNotFound
	}
	if rng.To.Before(rng.From) {
		return model.MonthStats{}, validation.Field("to", "must not be before from")
	}
	return s.monthStats(ctx, affiliateID, rng)
}
