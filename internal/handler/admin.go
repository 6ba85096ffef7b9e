package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/mmeshcher/affiliate-backoffice/internal/model"
	"github.com/mmeshcher/affiliate-backoffice/internal/service"
	"github.com/mmeshcher/affiliate-backoffice/internal/validation"
)

const dayLayout = "2006-01-02"

// GetOverview возвращает ключевые показатели для панели администратора.
func (h *Handler) GetOverview(w http.ResponseWriter, r *http.Request) {
	o, err := h.service.Overview(r.Context())
	if err != nil {
		h.writeError(w, r, "overview", err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func approvalStatusParam(r *http.Request) (*model.ApprovalStatus, error) {
	v := strings.TrimSpace(r.URL.Query().Get("status"))
	if v == "" || v == "all" {
		return nil, nil
	}
	st, err := model.ParseApprovalStatus(v)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// ListAffiliates возвращает партнёров, при необходимости по статусу одобрения.
func (h *Handler) ListAffiliates(w http.ResponseWriter, r *http.Request) {
	status, err := approvalStatusParam(r)
	if err != nil {
		h.writeError(w, r, "list affiliates", err)
		return
	}

	list, err := h.service.Affiliates(r.Context(), status)
	if err != nil {
		h.writeError(w, r, "list affiliates", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type approvalRequest struct {
	Status string `json:"status"`
}

// SetApproval меняет статус одобрения партнёра.
func (h *Handler) SetApproval(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req approvalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	status, err := model.ParseApprovalStatus(req.Status)
	if err != nil {
		h.writeError(w, r, "set approval", err)
		return
	}

	a, err := h.service.SetApproval(r.Context(), id, status)
	if err != nil {
		h.writeError(w, r, "set approval", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// DeleteAffiliate удаляет партнёра вместе с его данными.
func (h *Handler) DeleteAffiliate(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteAffiliate(r.Context(), sess.UserID, id); err != nil {
		h.writeError(w, r, "delete affiliate", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListAffiliateLinks возвращает привязки партнёра к площадкам.
func (h *Handler) ListAffiliateLinks(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	links, err := h.service.AffiliateLinks(r.Context(), id)
	if err != nil {
		h.writeError(w, r, "list links", err)
		return
	}
	writeJSON(w, http.StatusOK, links)
}

// UpdateLink изменяет условия, показатели или доступный остаток привязки.
func (h *Handler) UpdateLink(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req model.LinkUpdate
	if !decodeJSON(w, r, &req) {
		return
	}

	l, err := h.service.UpdateLink(r.Context(), id, req)
	if err != nil {
		h.writeError(w, r, "update link", err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// DeleteLink удаляет привязку партнёра к площадке.
func (h *Handler) DeleteLink(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteLink(r.Context(), id); err != nil {
		h.writeError(w, r, "delete link", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListPlatforms возвращает весь каталог площадок, включая неактивные.
func (h *Handler) ListPlatforms(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.AllPlatforms(r.Context())
	if err != nil {
		h.writeError(w, r, "list platforms", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// CreatePlatform добавляет площадку в каталог.
func (h *Handler) CreatePlatform(w http.ResponseWriter, r *http.Request) {
	var req model.Platform
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.service.CreatePlatform(r.Context(), req)
	if err != nil {
		h.writeError(w, r, "create platform", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// UpdatePlatform изменяет карточку площадки каталога.
func (h *Handler) UpdatePlatform(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req model.Platform
	if !decodeJSON(w, r, &req) {
		return
	}
	req.ID = id

	p, err := h.service.UpdatePlatform(r.Context(), req)
	if err != nil {
		h.writeError(w, r, "update platform", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// DeletePlatform удаляет площадку и все привязки к ней.
func (h *Handler) DeletePlatform(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.DeletePlatform(r.Context(), id); err != nil {
		h.writeError(w, r, "delete platform", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListAffiliationRequests возвращает заявки на подключение к площадкам.
func (h *Handler) ListAffiliationRequests(w http.ResponseWriter, r *http.Request) {
	status, err := approvalStatusParam(r)
	if err != nil {
		h.writeError(w, r, "list affiliation requests", err)
		return
	}

	list, err := h.service.AffiliationRequests(r.Context(), status)
	if err != nil {
		h.writeError(w, r, "list affiliation requests", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type approveAffiliationRequest struct {
	AffiliateLink string       `json:"affiliate_link"`
	Available     model.Amount `json:"available"`
}

// ApproveAffiliation одобряет заявку и создаёт привязку партнёра к площадке.
func (h *Handler) ApproveAffiliation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req approveAffiliationRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}

	l, err := h.service.ApproveAffiliation(r.Context(), id, model.LinkApproval{
		AffiliateLink: strings.TrimSpace(req.AffiliateLink),
		Available:     req.Available,
	})
	if err != nil {
		h.writeError(w, r, "approve affiliation", err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

// RejectAffiliation отклоняет заявку на подключение.
func (h *Handler) RejectAffiliation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	req, err := h.service.RejectAffiliation(r.Context(), id)
	if err != nil {
		h.writeError(w, r, "reject affiliation", err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// DeleteAffiliation удаляет заявку на подключение.
func (h *Handler) DeleteAffiliation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteAffiliation(r.Context(), id); err != nil {
		h.writeError(w, r, "delete affiliation", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListPayouts возвращает заявки на вывод со сводкой по статусам.
func (h *Handler) ListPayouts(w http.ResponseWriter, r *http.Request) {
	q := service.PayoutQuery{Search: strings.TrimSpace(r.URL.Query().Get("q"))}
	if v := strings.TrimSpace(r.URL.Query().Get("status")); v != "" && v != "all" {
		st, err := model.ParsePayoutStatus(v)
		if err != nil {
			h.writeError(w, r, "list payouts", err)
			return
		}
		q.Status = &st
	}

	list, err := h.service.AdminPayouts(r.Context(), q)
	if err != nil {
		h.writeError(w, r, "list payouts", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type payoutStatusRequest struct {
	Status         string        `json:"status"`
	ApprovedAmount *model.Amount `json:"approved_amount,omitempty"`
	AdminNote      *string       `json:"admin_note,omitempty"`
}

// ChangePayoutStatus переводит заявку на вывод в новый статус.
func (h *Handler) ChangePayoutStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req payoutStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	status, err := model.ParsePayoutStatus(req.Status)
	if err != nil {
		h.writeError(w, r, "change payout status", err)
		return
	}

	p, err := h.service.ChangePayoutStatus(r.Context(), id, model.PayoutChange{
		Status:         status,
		ApprovedAmount: req.ApprovedAmount,
		AdminNote:      req.AdminNote,
	})
	if err != nil {
		h.writeError(w, r, "change payout status", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// DeletePayout удаляет заявку на вывод, возвращая незакрытый резерв.
func (h *Handler) DeletePayout(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.DeletePayout(r.Context(), id); err != nil {
		h.writeError(w, r, "delete payout", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type statsRequest struct {
	Day            string       `json:"day"`
	Signups        int64        `json:"signups"`
	FTDs           int64        `json:"ftds"`
	FTDAmount      model.Amount `json:"ftd_amount"`
	QFTDsCPA       int64        `json:"qftds_cpa"`
	CPAAmount      model.Amount `json:"cpa_amount"`
	DepositsAmount model.Amount `json:"deposits_amount"`
	RevshareAmount model.Amount `json:"revshare_amount"`
}

func parseDay(field, v string) (time.Time, error) {
	d, err := time.Parse(dayLayout, strings.TrimSpace(v))
	if err != nil {
		return time.Time{}, validation.Field(field, "expected YYYY-MM-DD")
	}
	return d, nil
}

// PutStats сохраняет дневные метрики партнёра; ?mode=set заменяет значения дня.
func (h *Handler) PutStats(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	mode, err := validation.ParseStatsMode(r.URL.Query().Get("mode"))
	if err != nil {
		h.writeError(w, r, "put stats", err)
		return
	}

	var req statsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	day, err := parseDay("day", req.Day)
	if err != nil {
		h.writeError(w, r, "put stats", err)
		return
	}

	st, err := h.service.UpsertStats(r.Context(), id, model.DailyStats{
		Day:            day,
		Signups:        req.Signups,
		FTDs:           req.FTDs,
		FTDAmount:      req.FTDAmount,
		QFTDsCPA:       req.QFTDsCPA,
		CPAAmount:      req.CPAAmount,
		DepositsAmount: req.DepositsAmount,
		RevshareAmount: req.RevshareAmount,
	}, mode)
	if err != nil {
		h.writeError(w, r, "put stats", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// GetStats возвращает метрики партнёра за период ?from=&to=.
// По умолчанию берётся текущий месяц.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	now := time.Now().UTC()
	rng := model.DateRange{
		From: time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(now.Year(), now.Month()+1, 0, 0, 0, 0, 0, time.UTC),
	}

	var err error
	if v := r.URL.Query().Get("from"); v != "" {
		if rng.From, err = parseDay("from", v); err != nil {
			h.writeError(w, r, "get stats", err)
			return
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if rng.To, err = parseDay("to", v); err != nil {
			h.writeError(w, r, "get stats", err)
			return
		}
	}

	st, err := h.service.Stats(r.Context(), id, rng)
	if err != nil {
		h.writeError(w, r, "get stats", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type reconcileResponse struct {
	Fixed []string `json:"fixed"`
}

// Reconcile пересчитывает кэш балансов партнёров по их привязкам.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	ids, err := h.service.Reconcile(r.Context())
	if err != nil {
		h.writeError(w, r, "reconcile", err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, reconcileResponse{Fixed: ids})
}
