package handler

import (
	"context"
	"net/http"

	"github.com/mmeshcher/affiliate-backoffice/internal/service"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignUp регистрирует пользователя и открывает сессию.
func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	h.authenticate(w, r, "sign up", http.StatusCreated, h.service.SignUp)
}

// Login выполняет аутентификацию пользователя и устанавливает cookie сессии.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	h.authenticate(w, r, "sign in", http.StatusOK, h.service.SignIn)
}

type authFunc func(ctx context.Context, email, password string) (*service.AuthResult, error)

func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request, op string, code int, fn authFunc) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := fn(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, op, err)
		return
	}

	h.authMiddleware.SetSessionCookie(w, res.Token, res.Session.ExpiresAt)
	w.Header().Set("Authorization", "Bearer "+res.Token)
	writeJSON(w, code, res)
}

// Logout удаляет cookie сессии.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.authMiddleware.ClearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// Session возвращает текущую сессию и профиль пользователя.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}

	res, err := h.service.Session(r.Context(), sess)
	if err != nil {
		h.writeError(w, r, "session", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
