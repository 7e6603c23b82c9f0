// Package paymentprocess реализует HTTP-обработчик проведения очередного
// списания. Эндпоинт вызывается планировщиком, поэтому данные успешного
// ответа — результат мутации без обёртки, а поле ошибки несёт строковый
// вид, по которому клиент восстанавливает классифицированную ошибку.
package paymentprocess

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/sonicpay/subscrypt/internal/http/response"
	"github.com/sonicpay/subscrypt/internal/ledger"
	"github.com/sonicpay/subscrypt/internal/lib/sl"
	"github.com/sonicpay/subscrypt/internal/models"
)

// Handler управляет HTTP-запросами на проведение списаний.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает интерфейс бизнес-логики проведения списания.
type Service interface {
	ProcessPayment(ctx context.Context, req models.DummyCharge) (models.MutationResult, *ledger.ChargeResult)
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.process"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req models.DummyCharge
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	result, charge := h.service.ProcessPayment(r.Context(), req)
	if !result.Success {
		log.Error("payment failed",
			slog.String("subscriber", req.Subscriber), slog.String("kind", result.Error))
		w.WriteHeader(response.StatusForKind(result.Error))
		render.JSON(w, r, response.ErrorKind(result.Error))
		return
	}

	log.Info("payment processed",
		slog.String("subscriber", charge.Subscriber),
		slog.String("reference_id", charge.ReferenceID))
	render.JSON(w, r, response.OKWithData(result))
}
