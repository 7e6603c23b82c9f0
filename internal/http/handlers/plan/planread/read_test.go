package planread

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/go-chi/chi"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/sonicpay/subscrypt/internal/ledger"
	"github.com/sonicpay/subscrypt/internal/models"
)

// MockService реализует интерфейс planread.Service
type MockService struct {
	mock.Mock
}

func (m *MockService) GetPlan(ctx context.Context, planID string) (*models.Plan, error) {
	args := m.Called(ctx, planID)
	if res := args.Get(0); res != nil {
		return res.(*models.Plan), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestReadHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	tests := []struct {
		name           string
		planID         string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:   "успешное чтение плана",
			planID: "plan-1",
			setupMock: func(m *MockService) {
				m.On("GetPlan", mock.Anything, "plan-1").Return(&models.Plan{
					PlanID:   "plan-1",
					Merchant: "merchant-1",
					Name:     "basic",
					Price:    decimal.NewFromInt(10),
					Active:   true,
				}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"plan_id":"plan-1"`,
		},
		{
			name:   "план не найден",
			planID: "missing",
			setupMock: func(m *MockService) {
				m.On("GetPlan", mock.Anything, "missing").Return(nil, ledger.ErrPlanNotFound)
			},
			expectedStatus: http.StatusNotFound,
			expectedBody:   `"error":"plan_not_found"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockService)
			tt.setupMock(mockService)

			handler := New(logger, mockService)

			req := httptest.NewRequest(http.MethodGet, "/plans/"+tt.planID, nil)
			rctx := chi.NewRouteContext()
			rctx.URLParams.Add("planID", tt.planID)
			req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.True(t, strings.Contains(w.Body.String(), tt.expectedBody),
				"response body should contain %s, got %s", tt.expectedBody, w.Body.String())

			mockService.AssertExpectations(t)
		})
	}
}
