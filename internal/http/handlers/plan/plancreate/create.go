// Package plancreate реализует HTTP-обработчик публикации тарифного плана.
//
// Handler принимает JSON-запрос с параметрами плана, валидирует их,
// вызывает фасад леджера и возвращает созданный план вместе с результатом
// мутации. Цена приходит десятичной строкой и парсится фасадом.
package plancreate

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

// Handler управляет HTTP-запросами на публикацию планов.
type Handler struct {
	log      *slog.Logger        // Логгер для записи информации и ошибок
	service  Service             // Фасад леджера
	validate *validator.Validate // Валидатор структуры входящих данных
}

// Service описывает интерфейс бизнес-логики публикации плана.
type Service interface {
	CreatePlan(ctx context.Context, req models.DummyPlan) (models.MutationResult, *models.Plan)
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP обрабатывает HTTP-запрос на публикацию плана.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.plan.create"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req models.DummyPlan
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	log.Info("request body decoded", slog.Any("request", req))

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	result, plan := h.service.CreatePlan(r.Context(), req)
	if !result.Success {
		log.Error("failed to create plan", slog.String("kind", result.Error))
		w.WriteHeader(response.StatusForKind(result.Error))
		render.JSON(w, r, response.ErrorKind(result.Error))
		return
	}

	log.Info("plan created", slog.String("plan_id", plan.PlanID))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"result": result,
		"plan":   plan,
	}))
}
