package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	custommiddleware "github.com/mmeshcher/affiliate-backoffice/internal/middleware"
)

// RouterOptions содержит параметры маршрутизатора, не относящиеся к бизнес-логике.
type RouterOptions struct {
	CORSOrigins []string
	Registry    *prometheus.Registry
}

// SetupRouter настраивает HTTP-маршруты и middleware бэк-офиса.
func (h *Handler) SetupRouter(opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Content-Encoding"},
			ExposedHeaders:   []string{"Authorization"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))
	if opts.Registry != nil {
		r.Use(custommiddleware.HTTPMetrics(opts.Registry))
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{}))
	}

	r.Get("/health", h.Health)

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/signup", h.SignUp)
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)

		r.With(h.authMiddleware.Middleware).Get("/session", h.Session)
	})

	r.Route("/api/affiliate", func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)

		r.Get("/profile", h.GetProfile)
		r.Put("/profile", h.UpdateProfile)
		r.Delete("/profile", h.DeleteAccount)

		r.Get("/dashboard", h.GetDashboard)

		r.Get("/platforms", h.GetPlatforms)
		r.Post("/platforms/requests", h.RequestAffiliation)

		r.Get("/payouts", h.GetPayouts)
		r.Post("/payouts", h.CreatePayout)
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)
		r.Use(custommiddleware.RequireOwner)

		r.Get("/overview", h.GetOverview)

		r.Get("/affiliates", h.ListAffiliates)
		r.Route("/affiliates/{id}", func(r chi.Router) {
			r.Delete("/", h.DeleteAffiliate)
			r.Put("/approval", h.SetApproval)
			r.Get("/links", h.ListAffiliateLinks)
			r.Get("/stats", h.GetStats)
			r.Put("/stats", h.PutStats)
		})

		r.Patch("/links/{id}", h.UpdateLink)
		r.Delete("/links/{id}", h.DeleteLink)

		r.Get("/platforms", h.ListPlatforms)
		r.Post("/platforms", h.CreatePlatform)
		r.Put("/platforms/{id}", h.UpdatePlatform)
		r.Delete("/platforms/{id}", h.DeletePlatform)

		r.Get("/platform-requests", h.ListAffiliationRequests)
		r.Post("/platform-requests/{id}/approve", h.ApproveAffiliation)
		r.Post("/platform-requests/{id}/reject", h.RejectAffiliation)
		r.Delete("/platform-requests/{id}", h.DeleteAffiliation)

		r.Get("/payouts", h.ListPayouts)
		r.Put("/payouts/{id}/status", h.ChangePayoutStatus)
		r.Delete("/payouts/{id}", h.DeletePayout)

		r.Post("/reconcile", h.Reconcile)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
