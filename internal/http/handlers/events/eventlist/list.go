// Package eventlist реализует HTTP-обработчик выборки недавних событий
// из архива с фильтрацией по подписчику, мерчанту и виду события.
package eventlist

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"strconv"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/sonicpay/subscrypt/internal/http/response"
	"github.com/sonicpay/subscrypt/internal/lib/sl"
	"github.com/sonicpay/subscrypt/internal/models"
)

// Handler обрабатывает запросы выборки недавних событий.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс бизнес-логики выборки событий.
type Service interface {
	ListRecentEvents(ctx context.Context, filter models.EventFilter) ([]models.Event, error)
}

// New создает новый Handler с переданным логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.events.list"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	query := r.URL.Query()
	kind := models.EventKind(query.Get("kind"))
	if kind != "" && !slices.Contains(models.EventKinds, kind) {
		log.Error("unknown event kind", slog.String("kind", string(kind)))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("unknown event kind"))
		return
	}
	limit, _ := strconv.Atoi(query.Get("limit"))

	filter := models.EventFilter{
		Subscriber: query.Get("subscriber"),
		Merchant:   query.Get("merchant"),
		Kind:       kind,
		Limit:      limit,
	}
	events, err := h.service.ListRecentEvents(r.Context(), filter)
	if err != nil {
		log.Error("failed to list events", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not list events"))
		return
	}

	render.JSON(w, r, response.OKWithData(map[string]any{
		"events": events,
	}))
}
