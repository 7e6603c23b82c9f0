// Package globalstats реализует HTTP-обработчик глобальных счётчиков
// леджера: количество планов, подписок и совокупная выручка по спискам.
package globalstats

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/sonicpay/subscrypt/internal/http/response"
	"github.com/sonicpay/subscrypt/internal/models"
)

// Handler обрабатывает запросы глобальной статистики.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс бизнес-логики глобальной статистики.
type Service interface {
	GetGlobalStats(ctx context.Context) models.GlobalStats
}

// New создает новый Handler с переданным логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.stats.global"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	stats := h.service.GetGlobalStats(r.Context())
	log.Info("global stats read")
	render.JSON(w, r, response.OKWithData(stats))
}
