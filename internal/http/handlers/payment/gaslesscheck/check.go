// Package gaslesscheck реализует HTTP-обработчик проверки возможности
// безгазового платежа: доступен ли релеер и достаточно ли у пользователя
// allowance и баланса относительно цены плана.
package gaslesscheck

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/sonicpay/subscrypt/internal/http/response"
	"github.com/sonicpay/subscrypt/internal/ledger"
	"github.com/sonicpay/subscrypt/internal/lib/sl"
	"github.com/sonicpay/subscrypt/internal/models"
)

// Handler обрабатывает запросы проверки безгазового платежа.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс бизнес-логики проверки безгазового платежа.
type Service interface {
	CanPayGasless(ctx context.Context, subscriber, planID, token string) (models.GaslessCapability, error)
}

// New создает новый Handler с переданным логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.gasless"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	query := r.URL.Query()
	subscriber := query.Get("subscriber")
	planID := query.Get("plan_id")
	token := query.Get("token")
	if subscriber == "" || planID == "" || token == "" {
		log.Error("missing query parameters")
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("subscriber, plan_id and token are required"))
		return
	}

	capability, err := h.service.CanPayGasless(r.Context(), subscriber, planID, token)
	if err != nil {
		kind := ledger.Kind(err)
		log.Error("failed to check gasless capability", sl.Err(err))
		w.WriteHeader(response.StatusForKind(kind))
		render.JSON(w, r, response.ErrorKind(kind))
		return
	}

	render.JSON(w, r, response.OKWithData(capability))
}
