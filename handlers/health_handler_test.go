package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeChecker struct{ err error }

func (f fakeChecker) HealthCheck(context.Context) error { return f.err }

type fakeProviders []string

func (f fakeProviders) Names() []string { return f }

func decodeHealth(t *testing.T, w *httptest.ResponseRecorder) HealthResponse {
	t.Helper()
	var response HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	return response
}

func TestHandleHealth(t *testing.T) {
	handler := NewHealthHandler(nil, nil, zap.NewNop())

	w := httptest.NewRecorder()
	handler.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	response := decodeHealth(t, w)
	assert.Equal(t, "ok", response.Status)
	assert.NotEmpty(t, response.Timestamp)
}

func TestHandleReadiness(t *testing.T) {
	tests := []struct {
		name           string
		db             HealthChecker
		providers      ProviderLister
		expectedStatus int
		expectedChecks map[string]string
	}{
		{
			name:           "ready without database",
			providers:      fakeProviders{"bedrock"},
			expectedStatus: http.StatusOK,
			expectedChecks: map[string]string{"database": "disabled", "providers": "configured"},
		},
		{
			name:           "ready with healthy database",
			db:             fakeChecker{},
			providers:      fakeProviders{"bedrock"},
			expectedStatus: http.StatusOK,
			expectedChecks: map[string]string{"database": "healthy", "providers": "configured"},
		},
		{
			name:           "database down",
			db:             fakeChecker{err: errors.New("connection refused")},
			providers:      fakeProviders{"bedrock"},
			expectedStatus: http.StatusServiceUnavailable,
			expectedChecks: map[string]string{"database": "unhealthy", "providers": "configured"},
		},
		{
			name:           "no providers",
			providers:      fakeProviders{},
			expectedStatus: http.StatusServiceUnavailable,
			expectedChecks: map[string]string{"database": "disabled", "providers": "none_configured"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHealthHandler(tt.db, tt.providers, zap.NewNop())

			w := httptest.NewRecorder()
			handler.HandleReadiness(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, tt.expectedChecks, decodeHealth(t, w).Checks)
		})
	}
}
