// Package merchantstats реализует HTTP-обработчик статистики мерчанта:
// выручка, количество планов и активных подписчиков.
package merchantstats

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/sonicpay/subscrypt/internal/http/response"
	"github.com/sonicpay/subscrypt/internal/models"
)

// Handler обрабатывает запросы статистики мерчанта.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс бизнес-логики статистики мерчанта.
type Service interface {
	GetMerchantStats(ctx context.Context, merchant string) models.MerchantStats
}

// New создает новый Handler с переданным логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.stats.merchant"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	merchant := chi.URLParam(r, "merchant")
	stats := h.service.GetMerchantStats(r.Context(), merchant)
	log.Info("merchant stats read", slog.String("merchant", merchant))
	render.JSON(w, r, response.OKWithData(stats))
}
