// Package handler содержит HTTP-обработчики API бэк-офиса партнёрской программы.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/affiliate-backoffice/internal/identity"
	"github.com/mmeshcher/affiliate-backoffice/internal/ledger"
	"github.com/mmeshcher/affiliate-backoffice/internal/middleware"
	"github.com/mmeshcher/affiliate-backoffice/internal/model"
	"github.com/mmeshcher/affiliate-backoffice/internal/repository"
	"github.com/mmeshcher/affiliate-backoffice/internal/service"
	"github.com/mmeshcher/affiliate-backoffice/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Ping(ctx context.Context) error

	SignUp(ctx context.Context, email, password string) (*service.AuthResult, error)
	SignIn(ctx context.Context, email, password string) (*service.AuthResult, error)
	Session(ctx context.Context, sess model.Session) (*service.AuthResult, error)

	Profile(ctx context.Context, userID string) (*model.Affiliate, error)
	UpdateProfile(ctx context.Context, userID string, u model.ProfileUpdate) (*model.Affiliate, error)
	DeleteAccount(ctx context.Context, userID string) error
	Dashboard(ctx context.Context, userID string) (*model.Dashboard, error)
	Platforms(ctx context.Context, userID string) (*model.PlatformsView, error)
	RequestAffiliation(ctx context.Context, userID, platformID string) (*model.AffiliationRequest, error)
	RequestPayout(ctx context.Context, userID string, in service.PayoutInput) (*model.PayoutRequest, error)
	Payouts(ctx context.Context, userID string, limit int) ([]model.PayoutRequest, error)

	Overview(ctx context.Context) (model.AdminOverview, error)
	Affiliates(ctx context.Context, status *model.ApprovalStatus) ([]model.Affiliate, error)
	SetApproval(ctx context.Context, affiliateID string, status model.ApprovalStatus) (*model.Affiliate, error)
	DeleteAffiliate(ctx context.Context, actorID, affiliateID string) error
	AllPlatforms(ctx context.Context) ([]model.Platform, error)
	CreatePlatform(ctx context.Context, p model.Platform) (*model.Platform, error)
	UpdatePlatform(ctx context.Context, p model.Platform) (*model.Platform, error)
	DeletePlatform(ctx context.Context, id string) error
	AffiliationRequests(ctx context.Context, status *model.ApprovalStatus) ([]model.AffiliationRequest, error)
	ApproveAffiliation(ctx context.Context, id string, a model.LinkApproval) (*model.PlatformLink, error)
	RejectAffiliation(ctx context.Context, id string) (*model.AffiliationRequest, error)
	DeleteAffiliation(ctx context.Context, id string) error
	AffiliateLinks(ctx context.Context, affiliateID string) ([]model.PlatformLink, error)
	UpdateLink(ctx context.Context, id string, u model.LinkUpdate) (*model.PlatformLink, error)
	DeleteLink(ctx context.Context, id string) error
	AdminPayouts(ctx context.Context, q service.PayoutQuery) (*model.PayoutList, error)
	ChangePayoutStatus(ctx context.Context, id string, ch model.PayoutChange) (*model.PayoutRequest, error)
	DeletePayout(ctx context.Context, id string) error
	UpsertStats(ctx context.Context, affiliateID string, st model.DailyStats, mode validation.StatsMode) (model.DailyStats, error)
	Stats(ctx context.Context, affiliateID string, rng model.DateRange) (model.MonthStats, error)
	Reconcile(ctx context.Context) ([]string, error)
}

// Handler реализует HTTP-обработчики API бэк-офиса.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

// Health сообщает, доступно ли хранилище.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ping(r.Context()); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// maxBodyBytes ограничивает размер тела JSON-запроса.
const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
	case errors.Is(err, model.ErrInvalidAmount):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error()})
	default:
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
	}
	return false
}

func session(w http.ResponseWriter, r *http.Request) (model.Session, bool) {
	sess, ok := middleware.GetSessionFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	}
	return sess, ok
}

// pathID возвращает параметр маршрута, если это корректный UUID.
func pathID(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	id := chi.URLParam(r, name)
	if _, err := uuid.Parse(id); err != nil {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return "", false
	}
	return id, true
}

type errorBody struct {
	Error  string                 `json:"error"`
	Fields []validation.FieldError `json:"fields,omitempty"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, validation.ErrInvalid),
		errors.Is(err, model.ErrUnknownValue),
		errors.Is(err, ledger.ErrInvalidTransition),
		errors.Is(err, ledger.ErrApprovedExceedsRequested),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, model.ErrInvalidAmount):
		return http.StatusUnprocessableEntity
	case errors.Is(err, repository.ErrAffiliateNotFound),
		errors.Is(err, repository.ErrPayoutNotFound),
		errors.Is(err, repository.ErrPlatformNotFound),
		errors.Is(err, repository.ErrRequestNotFound),
		errors.Is(err, repository.ErrLinkNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return http.StatusPaymentRequired
	case errors.Is(err, identity.ErrInvalidCredentials),
		errors.Is(err, identity.ErrInvalidSession):
		return http.StatusUnauthorized
	case errors.Is(err, repository.ErrNotApproved),
		errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, identity.ErrUserExists),
		errors.Is(err, repository.ErrUserExists),
		errors.Is(err, repository.ErrPlatformExists),
		errors.Is(err, repository.ErrAlreadyLinked),
		errors.Is(err, repository.ErrRequestExists),
		errors.Is(err, repository.ErrRequestNotPending),
		errors.Is(err, repository.ErrOpenPayouts):
		return http.StatusConflict
	case errors.Is(err, identity.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError отвечает клиенту кодом, соответствующим ошибке. Ошибки хранилища
// логируются, клиенту уходит только текст статуса.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		h.logger.Error(op, zap.String("uri", r.RequestURI), zap.Error(err))
		http.Error(w, http.StatusText(code), code)
		return
	}

	body := errorBody{Error: err.Error()}
	var fields validation.Errors
	if errors.As(err, &fields) {
		body.Error = validation.ErrInvalid.Error()
		body.Fields = fields
	}
	writeJSON(w, code, body)
}
