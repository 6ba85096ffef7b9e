// Package service реализует бизнес-логику бэк-офиса партнёрской программы.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/affiliate-backoffice/internal/identity"
	"github.com/mmeshcher/affiliate-backoffice/internal/metrics"
	"github.com/mmeshcher/affiliate-backoffice/internal/model"
)

// ErrForbidden возвращается, если у пользователя нет доступа к операции.
var ErrForbidden = errors.New("forbidden")

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	Ping(ctx context.Context) error

	EnsureAffiliate(ctx context.Context, id, email string, role model.Role) (*model.Affiliate, error)
	GetAffiliate(ctx context.Context, id string) (*model.Affiliate, error)
	UpdateAffiliateProfile(ctx context.Context, id string, u model.ProfileUpdate) (*model.Affiliate, error)
	ListAffiliates(ctx context.Context, f model.AffiliateFilter) ([]model.Affiliate, error)
	SetApprovalStatus(ctx context.Context, id string, status model.ApprovalStatus) (*model.Affiliate, error)
	DeleteAffiliate(ctx context.Context, id string) error
	Overview(ctx context.Context) (model.AdminOverview, error)

	CreatePlatform(ctx context.Context, p model.Platform) (*model.Platform, error)
	UpdatePlatform(ctx context.Context, p model.Platform) (*model.Platform, error)
	DeletePlatform(ctx context.Context, id string) error
	ListPlatforms(ctx context.Context, activeOnly bool) ([]model.Platform, error)

	CreateAffiliationRequest(ctx context.Context, affiliateID, platformID string) (*model.AffiliationRequest, error)
	ListAffiliationRequests(ctx context.Context, f model.RequestFilter) ([]model.AffiliationRequest, error)
	ApproveAffiliationRequest(ctx context.Context, id string, a model.LinkApproval) (*model.PlatformLink, error)
	RejectAffiliationRequest(ctx context.Context, id string) (*model.AffiliationRequest, error)
	DeleteAffiliationRequest(ctx context.Context, id string) error

	ListPlatformLinks(ctx context.Context, affiliateID string, activeOnly bool) ([]model.PlatformLink, error)
	UpdatePlatformLink(ctx context.Context, id string, u model.LinkUpdate) (*model.PlatformLink, error)
	DeletePlatformLink(ctx context.Context, id string) error

	CreatePayoutRequest(ctx context.Context, np model.NewPayout) (*model.PayoutRequest, error)
	FinalizePayout(ctx context.Context, id string, ch model.PayoutChange) (*model.PayoutRequest, error)
	DeletePayout(ctx context.Context, id string) (*model.PayoutRequest, error)
	GetPayout(ctx context.Context, id string) (*model.PayoutRequest, error)
	ListPayouts(ctx context.Context, f model.PayoutFilter) ([]model.PayoutRow, error)
	CountPayouts(ctx context.Context, f model.PayoutFilter) (model.PayoutSummary, error)

	UpsertDailyStats(ctx context.Context, affiliateID string, s model.DailyStats, add bool) (model.DailyStats, error)
	ListDailyStats(ctx context.Context, affiliateID string, rng model.DateRange) ([]model.DailyStats, error)

	RecomputeAggregates(ctx context.Context, limit int) ([]string, error)
}

// Notifier уведомляет партнёра об изменении его заявки на вывод.
type Notifier interface {
	PayoutChanged(to string, p model.PayoutRequest)
}

// Service содержит бизнес-логику бэк-офиса.
type Service struct {
	repo     Repository
	provider identity.Provider
	sessions *identity.Sessions
	logger   *zap.Logger

	owners            map[string]struct{}
	metrics           *metrics.Ledger
	notifier          Notifier
	now               func() time.Time
	reconcileInterval time.Duration
}

// Option настраивает Service.
type Option func(*Service)

// WithOwners задаёт email-адреса, получающие роль владельца при создании профиля.
func WithOwners(emails []string) Option {
	return func(s *Service) {
		for _, e := range emails {
			if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
				s.owners[e] = struct{}{}
			}
		}
	}
}

// WithMetrics подключает счётчики операций с балансом.
func WithMetrics(m *metrics.Ledger) Option {
	return func(s *Service) { s.metrics = m }
}

// WithNotifier подключает уведомления о заявках на вывод.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithReconcileInterval задаёт период фоновой сверки балансов.
func WithReconcileInterval(d time.Duration) Option {
	return func(s *Service) { s.reconcileInterval = d }
}

// NewService создаёт новый сервис.
func NewService(repo Repository, provider identity.Provider, sessions *identity.Sessions, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		repo:              repo,
		provider:          provider,
		sessions:          sessions,
		logger:            logger,
		owners:            make(map[string]struct{}),
		now:               time.Now,
		reconcileInterval: time.Minute,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// Ping проверяет доступность хранилища.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// StartReconciliation запускает фоновую сверку кэша балансов партнёров с суммой по их привязкам.
func (s *Service) StartReconciliation(ctx context.Context) {
	if s.reconcileInterval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(s.reconcileInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.Reconcile(ctx); err != nil && ctx.Err() == nil {
					s.logger.Warn("reconcile balances failed", zap.Error(err))
				}
			}
		}
	}()
}

// Reconcile пересчитывает разошедшиеся кэши балансов и возвращает идентификаторы партнёров.
func (s *Service) Reconcile(ctx context.Context) ([]string, error) {
	ids, err := s.repo.RecomputeAggregates(ctx, 500)
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		s.metrics.Reconciled(len(ids))
		s.logger.Warn("affiliate balances drifted and were re-derived", zap.Strings("affiliate_ids", ids))
	}
	return ids, nil
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
