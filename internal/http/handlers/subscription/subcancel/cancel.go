// Package subcancel реализует HTTP-обработчик отмены подписки пользователя.
package subcancel

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

// Handler обрабатывает запросы на отмену подписки.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс бизнес-логики отмены подписки.
type Service interface {
	CancelSubscription(ctx context.Context, subscriber string) models.MutationResult
}

// New создает новый Handler с переданным логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.cancel"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	subscriber := chi.URLParam(r, "subscriber")
	result := h.service.CancelSubscription(r.Context(), subscriber)
	if !result.Success {
		log.Error("failed to cancel subscription",
			slog.String("subscriber", subscriber), slog.String("kind", result.Error))
		w.WriteHeader(response.StatusForKind(result.Error))
		render.JSON(w, r, response.ErrorKind(result.Error))
		return
	}

	log.Info("subscription cancelled", slog.String("subscriber", subscriber))
	render.JSON(w, r, response.OKWithData(result))
}
