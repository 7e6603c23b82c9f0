// Package plandeactivate реализует HTTP-обработчик деактивации плана.
//
// Идентификатор плана приходит в URL, мерчант — в теле запроса: леджер
// проверяет владение планом и отклоняет чужие запросы.
package plandeactivate

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/sonicpay/subscrypt/internal/http/response"
	"github.com/sonicpay/subscrypt/internal/lib/sl"
	"github.com/sonicpay/subscrypt/internal/models"
)

// Handler управляет HTTP-запросами на деактивацию планов.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает интерфейс бизнес-логики деактивации плана.
type Service interface {
	DeactivatePlan(ctx context.Context, merchant, planID string) models.MutationResult
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
	const op = "handlers.plan.deactivate"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req models.DummyDeactivate
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

	planID := chi.URLParam(r, "planID")
	result := h.service.DeactivatePlan(r.Context(), req.Merchant, planID)
	if !result.Success {
		log.Error("failed to deactivate plan",
			slog.String("plan_id", planID), slog.String("kind", result.Error))
		w.WriteHeader(response.StatusForKind(result.Error))
		render.JSON(w, r, response.ErrorKind(result.Error))
		return
	}

	log.Info("plan deactivated", slog.String("plan_id", planID))
	render.JSON(w, r, response.OKWithData(result))
}
