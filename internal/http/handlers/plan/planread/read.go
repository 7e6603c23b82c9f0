// Package planread реализует HTTP-обработчик чтения плана по идентификатору.
package planread

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

// Handler обрабатывает запросы на получение плана по идентификатору.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс бизнес-логики чтения плана.
type Service interface {
	GetPlan(ctx context.Context, planID string) (*models.Plan, error)
}

// New создает новый Handler с переданным логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.plan.read"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	planID := chi.URLParam(r, "planID")
	plan, err := h.service.GetPlan(r.Context(), planID)
	if err != nil {
		kind := ledger.Kind(err)
		log.Error("failed to read plan", sl.Err(err))
		w.WriteHeader(response.StatusForKind(kind))
		render.JSON(w, r, response.ErrorKind(kind))
		return
	}

	render.JSON(w, r, response.OKWithData(plan))
}
