// Package paymenthistory реализует HTTP-обработчик истории платежей
// подписчика. История производна от архива событий, а не от состояния
// леджера: вернутся и платежи по уже отменённым подпискам.
package paymenthistory

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/sonicpay/subscrypt/internal/http/response"
	"github.com/sonicpay/subscrypt/internal/lib/sl"
	"github.com/sonicpay/subscrypt/internal/models"
)

// Handler обрабатывает запросы истории платежей.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс бизнес-логики чтения истории платежей.
type Service interface {
	GetPaymentHistory(ctx context.Context, subscriber string, limit int) ([]models.PaymentHistoryEntry, error)
}

// New создает новый Handler с переданным логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.history"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	subscriber := chi.URLParam(r, "subscriber")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	history, err := h.service.GetPaymentHistory(r.Context(), subscriber, limit)
	if err != nil {
		log.Error("failed to read payment history", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not read payment history"))
		return
	}

	render.JSON(w, r, response.OKWithData(map[string]any{
		"history": history,
	}))
}
