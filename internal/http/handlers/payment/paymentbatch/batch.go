// Package paymentbatch реализует HTTP-обработчик пакетного списания через
// путь релеера. Пакет не атомарен: ответ содержит результат по каждой
// записи, отказ одной записи не считается отказом запроса.
package paymentbatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/sonicpay/subscrypt/internal/http/response"
	"github.com/sonicpay/subscrypt/internal/lib/sl"
	"github.com/sonicpay/subscrypt/internal/models"
)

// Handler управляет HTTP-запросами релеера на пакетные списания.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает интерфейс бизнес-логики пакетного списания.
type Service interface {
	ProcessBatch(ctx context.Context, req models.DummyBatch) (models.MutationResult, []models.BatchEntryResult)
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
	const op = "handlers.payment.batch"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req models.DummyBatch
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

	result, results := h.service.ProcessBatch(r.Context(), req)
	if !result.Success {
		log.Error("batch rejected",
			slog.String("relayer", req.Relayer), slog.String("kind", result.Error))
		w.WriteHeader(response.StatusForKind(result.Error))
		render.JSON(w, r, response.ErrorKind(result.Error))
		return
	}

	log.Info("batch settled",
		slog.String("relayer", req.Relayer), slog.Int("entries", len(results)))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"results": results,
	}))
}
