package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter configures all routes and returns the HTTP handler.
func SetupRouter(deps *Dependencies) http.Handler {
	h := newHandlers(deps)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(prometheusMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if err := deps.DB.Pool.Ping(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("database unhealthy"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(h.blacklistCheck)

		r.Route("/users", func(r chi.Router) {
			r.Post("/", h.createUser)
			r.Get("/", h.listUsers)
			r.Route("/{userID}", func(r chi.Router) {
				r.Get("/", h.getUser)
				r.Put("/", h.updateUser)
				r.Delete("/", h.deleteUser)
				r.Get("/subscriptions", h.listUserSubscriptions)
				r.Get("/charges", h.listUserCharges)
				r.Get("/payments", h.listUserPayments)
				r.Get("/ledger", h.listUserLedger)
				r.Get("/balance", h.getUserBalance)
			})
		})

		r.Route("/plans", func(r chi.Router) {
			r.Post("/", h.createPlan)
			r.Get("/", h.listPlans)
			r.Route("/{planID}", func(r chi.Router) {
				r.Get("/", h.getPlan)
				r.Put("/", h.updatePlan)
				r.Delete("/", h.retirePlan)
			})
		})

		r.Route("/subscriptions", func(r chi.Router) {
			r.Post("/", h.createSubscription)
			r.Route("/{subscriptionID}", func(r chi.Router) {
				r.Get("/", h.getSubscription)
				r.Post("/cancel", h.cancelSubscription)
			})
		})

		r.Post("/payments", h.reconcilePayment)

		r.Route("/dashboard", func(r chi.Router) {
			r.Get("/", h.dashboardSnapshot)
			r.Get("/overview", h.dashboardOverview)
			r.Get("/balances", h.dashboardBalances)
			r.Get("/outstanding", h.dashboardOutstanding)
			r.Post("/invalidate", h.dashboardInvalidate)
		})

		r.Post("/auth/logout", h.logout)
	})

	deps.Logger.Info("router configured")
	return r
}
