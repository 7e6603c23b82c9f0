// Package subread реализует HTTP-обработчик чтения активной подписки
// пользователя. Этим эндпоинтом пользуется планировщик для сверки
// локального реестра с авторитетным состоянием, поэтому данные ответа —
// подписка без обёртки.
package subread

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/sonicpay/subscrypt/internal/http/response"
	"github.com/sonicpay/subscrypt/internal/ledger"
	"github.com/sonicpay/subscrypt/internal/lib/sl"
	"github.com/sonicpay/subscrypt/internal/models"
)

// Handler обрабатывает запросы на получение подписки пользователя.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс бизнес-логики чтения подписки.
type Service interface {
	GetUserSubscription(ctx context.Context, subscriber string) (*models.Subscription, error)
}

// New создает новый Handler с переданным логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.read"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	subscriber := chi.URLParam(r, "subscriber")
	sub, err := h.service.GetUserSubscription(r.Context(), subscriber)
	if err != nil {
		kind := ledger.Kind(err)
		log.Error("failed to read subscription", sl.Err(err))
		w.WriteHeader(response.StatusForKind(kind))
		render.JSON(w, r, response.ErrorKind(kind))
		return
	}

	render.JSON(w, r, response.OKWithData(sub))
}
