// Package subscrypt предоставляет маршруты расчетного сервиса.
package subscrypt

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sonicpay/subscrypt/internal/http/handlers/events/eventlist"
	"github.com/sonicpay/subscrypt/internal/http/handlers/health"
	"github.com/sonicpay/subscrypt/internal/http/handlers/payment/gaslesscheck"
	"github.com/sonicpay/subscrypt/internal/http/handlers/payment/paymentbatch"
	"github.com/sonicpay/subscrypt/internal/http/handlers/payment/paymenthistory"
	"github.com/sonicpay/subscrypt/internal/http/handlers/payment/paymentprocess"
	"github.com/sonicpay/subscrypt/internal/http/handlers/plan/plancreate"
	"github.com/sonicpay/subscrypt/internal/http/handlers/plan/plandeactivate"
	"github.com/sonicpay/subscrypt/internal/http/handlers/plan/planlist"
	"github.com/sonicpay/subscrypt/internal/http/handlers/plan/planread"
	"github.com/sonicpay/subscrypt/internal/http/handlers/stats/globalstats"
	"github.com/sonicpay/subscrypt/internal/http/handlers/stats/merchantstats"
	"github.com/sonicpay/subscrypt/internal/http/handlers/subscription/subcancel"
	"github.com/sonicpay/subscrypt/internal/http/handlers/subscription/subread"
	"github.com/sonicpay/subscrypt/internal/http/handlers/subscription/subscribe"
	"github.com/sonicpay/subscrypt/internal/http/handlers/token/tokenadd"
	"github.com/sonicpay/subscrypt/internal/services/sdk"
	"github.com/sonicpay/subscrypt/internal/storage/repository"
)

// RegisterRoutes регистрирует все маршруты расчетного сервиса.
func RegisterRoutes(r chi.Router, logger *slog.Logger, facade *sdk.SDK, archive *repository.Storage) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/plans", plancreate.New(logger, facade).ServeHTTP)
		r.Get("/plans", planlist.New(logger, facade).ServeHTTP)
		r.Get("/plans/{planID}", planread.New(logger, facade).ServeHTTP)
		r.Post("/plans/{planID}/deactivate", plandeactivate.New(logger, facade).ServeHTTP)

		r.Post("/subscriptions", subscribe.New(logger, facade).ServeHTTP)
		r.Get("/subscriptions/{subscriber}", subread.New(logger, facade).ServeHTTP)
		r.Delete("/subscriptions/{subscriber}", subcancel.New(logger, facade).ServeHTTP)

		r.Post("/payments/process", paymentprocess.New(logger, facade).ServeHTTP)
		r.Post("/payments/batch", paymentbatch.New(logger, facade).ServeHTTP)
		r.Get("/payments/history/{subscriber}", paymenthistory.New(logger, facade).ServeHTTP)
		r.Get("/payments/gasless-check", gaslesscheck.New(logger, facade).ServeHTTP)

		r.Get("/stats/global", globalstats.New(logger, facade).ServeHTTP)
		r.Get("/stats/merchants/{merchant}", merchantstats.New(logger, facade).ServeHTTP)

		r.Post("/tokens", tokenadd.New(logger, facade).ServeHTTP)

		r.Get("/events", eventlist.New(logger, archive).ServeHTTP)
		r.Get("/health", health.New(logger).ServeHTTP)
	})

	r.Handle("/metrics", promhttp.Handler())
}
