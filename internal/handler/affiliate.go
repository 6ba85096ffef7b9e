package handler

import (
	"net/http"
	"strconv"

	"github.com/mmeshcher/affiliate-backoffice/internal/model"
	"github.com/mmeshcher/affiliate-backoffice/internal/service"
)

const defaultPayoutsLimit = 100

// GetProfile возвращает профиль текущего партнёра.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}

	p, err := h.service.Profile(r.Context(), sess.UserID)
	if err != nil {
		h.writeError(w, r, "get profile", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// UpdateProfile изменяет поля профиля текущего партнёра.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}

	var req model.ProfileUpdate
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.service.UpdateProfile(r.Context(), sess.UserID, req)
	if err != nil {
		h.writeError(w, r, "update profile", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// DeleteAccount удаляет учётную запись текущего пользователя и закрывает сессию.
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteAccount(r.Context(), sess.UserID); err != nil {
		h.writeError(w, r, "delete account", err)
		return
	}
	h.authMiddleware.ClearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// GetDashboard возвращает сводку для панели партнёра.
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}

	d, err := h.service.Dashboard(r.Context(), sess.UserID)
	if err != nil {
		h.writeError(w, r, "dashboard", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// GetPlatforms возвращает подключённые площадки, заявки и доступный каталог.
func (h *Handler) GetPlatforms(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}

	v, err := h.service.Platforms(r.Context(), sess.UserID)
	if err != nil {
		h.writeError(w, r, "platforms", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type affiliationRequest struct {
	PlatformID string `json:"platform_id"`
}

// RequestAffiliation создаёт заявку на подключение к площадке каталога.
func (h *Handler) RequestAffiliation(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}

	var req affiliationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.service.RequestAffiliation(r.Context(), sess.UserID, req.PlatformID)
	if err != nil {
		h.writeError(w, r, "request affiliation", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// CreatePayout создаёт заявку на вывод средств.
func (h *Handler) CreatePayout(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}

	var req service.PayoutInput
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.service.RequestPayout(r.Context(), sess.UserID, req)
	if err != nil {
		h.writeError(w, r, "create payout", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// GetPayouts возвращает заявки на вывод текущего партнёра, новые первыми.
func (h *Handler) GetPayouts(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}

	limit := defaultPayoutsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		limit = n
	}

	list, err := h.service.Payouts(r.Context(), sess.UserID, limit)
	if err != nil {
		h.writeError(w, r, "get payouts", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
