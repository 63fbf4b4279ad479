package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/vision-gateway/models"
	"github.com/upb/vision-gateway/repositories"
)

// MockInvocationReader is a mock implementation of InvocationReader
type MockInvocationReader struct {
	mock.Mock
}

func (m *MockInvocationReader) GetByID(ctx context.Context, id uuid.UUID) (*models.Invocation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invocation), args.Error(1)
}

func (m *MockInvocationReader) GetByRequestID(ctx context.Context, requestID string) ([]*models.Invocation, error) {
	args := m.Called(ctx, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Invocation), args.Error(1)
}

func (m *MockInvocationReader) ListRecent(ctx context.Context, limit, offset int) ([]*models.Invocation, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Invocation), args.Error(1)
}

func (m *MockInvocationReader) CountByStatus(ctx context.Context, since time.Time) (map[models.InvocationStatus]int, error) {
	args := m.Called(ctx, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[models.InvocationStatus]int), args.Error(1)
}

func TestInvocationHandler_HandleList(t *testing.T) {
	inv := models.NewInvocation("req-1", "bedrock", "m", 4)

	tests := []struct {
		name       string
		query      string
		setupMock  func(*MockInvocationReader)
		wantStatus int
		wantBody   string
	}{
		{
			name: "default page",
			setupMock: func(m *MockInvocationReader) {
				m.On("ListRecent", mock.Anything, 20, 0).Return([]*models.Invocation{inv}, nil)
			},
			wantStatus: http.StatusOK,
			wantBody:   `"limit":20`,
		},
		{
			name:  "explicit page",
			query: "?limit=5&offset=10",
			setupMock: func(m *MockInvocationReader) {
				m.On("ListRecent", mock.Anything, 5, 10).Return(nil, nil)
			},
			wantStatus: http.StatusOK,
			wantBody:   `"invocations":[]`,
		},
		{
			name:  "by request id",
			query: "?requestId=req-1",
			setupMock: func(m *MockInvocationReader) {
				m.On("GetByRequestID", mock.Anything, "req-1").Return([]*models.Invocation{inv}, nil)
			},
			wantStatus: http.StatusOK,
			wantBody:   `"request_id":"req-1"`,
		},
		{
			name:       "limit too large",
			query:      "?limit=500",
			setupMock:  func(m *MockInvocationReader) {},
			wantStatus: http.StatusBadRequest,
			wantBody:   "limit",
		},
		{
			name:       "offset not a number",
			query:      "?offset=first",
			setupMock:  func(m *MockInvocationReader) {},
			wantStatus: http.StatusBadRequest,
			wantBody:   "offset",
		},
		{
			name:  "database error",
			setupMock: func(m *MockInvocationReader) {
				m.On("ListRecent", mock.Anything, 20, 0).Return(nil, errors.New("connection reset"))
			},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockInvocationReader)
			tt.setupMock(repo)
			handler := NewInvocationHandler(repo, zap.NewNop())

			w := httptest.NewRecorder()
			handler.HandleList(w, httptest.NewRequest(http.MethodGet, "/api/v1/vision/invocations"+tt.query, nil))

			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantBody != "" {
				assert.Contains(t, w.Body.String(), tt.wantBody)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestInvocationHandler_HandleGet(t *testing.T) {
	inv := models.NewInvocation("req-1", "bedrock", "m", 4)
	missing := uuid.New()

	repo := new(MockInvocationReader)
	repo.On("GetByID", mock.Anything, inv.ID).Return(inv, nil)
	repo.On("GetByID", mock.Anything, missing).
		Return(nil, fmt.Errorf("invocation %s: %w", missing, repositories.ErrNotFound))

	r := chi.NewRouter()
	r.Get("/invocations/{id}", NewInvocationHandler(repo, zap.NewNop()).HandleGet)

	tests := []struct {
		name       string
		id         string
		wantStatus int
	}{
		{name: "found", id: inv.ID.String(), wantStatus: http.StatusOK},
		{name: "not found", id: missing.String(), wantStatus: http.StatusNotFound},
		{name: "invalid id", id: "not-a-uuid", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/invocations/"+tt.id, nil))
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
		})
	}
}

func TestInvocationHandler_HandleStats(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	repo := new(MockInvocationReader)
	repo.On("CountByStatus", mock.Anything, now.Add(-time.Hour)).
		Return(map[models.InvocationStatus]int{models.InvocationStatusCompleted: 3}, nil)

	handler := NewInvocationHandler(repo, zap.NewNop())
	handler.now = func() time.Time { return now }

	w := httptest.NewRecorder()
	handler.HandleStats(w, httptest.NewRequest(http.MethodGet, "/api/v1/vision/invocations/stats?window=1h", nil))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"data":{"since":"2024-03-01T11:00:00Z","counts":{"completed":3}}}`, w.Body.String())

	w = httptest.NewRecorder()
	handler.HandleStats(w, httptest.NewRequest(http.MethodGet, "/api/v1/vision/invocations/stats?window=-1h", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
