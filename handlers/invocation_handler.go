package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/vision-gateway/middleware"
	"github.com/upb/vision-gateway/models"
	"github.com/upb/vision-gateway/repositories"
	"github.com/upb/vision-gateway/utils"
)

const (
	defaultInvocationLimit = 20
	defaultStatsWindow     = 24 * time.Hour
)

// InvocationReader reads the invocation log.
type InvocationReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Invocation, error)
	GetByRequestID(ctx context.Context, requestID string) ([]*models.Invocation, error)
	ListRecent(ctx context.Context, limit, offset int) ([]*models.Invocation, error)
	CountByStatus(ctx context.Context, since time.Time) (map[models.InvocationStatus]int, error)
}

type listInvocationsQuery struct {
	Limit  int `query:"limit" validate:"min=1,max=100"`
	Offset int `query:"offset" validate:"min=0"`
}

// InvocationStats is the per-status count of invocations since a point in time.
type InvocationStats struct {
	Since  time.Time                       `json:"since"`
	Counts map[models.InvocationStatus]int `json:"counts"`
}

// InvocationHandler exposes the invocation log
type InvocationHandler struct {
	repo   InvocationReader
	logger *zap.Logger
	now    func() time.Time
}

// NewInvocationHandler creates a new InvocationHandler
func NewInvocationHandler(repo InvocationReader, logger *zap.Logger) *InvocationHandler {
	return &InvocationHandler{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// HandleList handles GET /api/v1/vision/invocations. With ?requestId= the
// invocations of one HTTP request are returned instead of the newest page.
func (h *InvocationHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if requestID := r.URL.Query().Get("requestId"); requestID != "" {
		invocations, err := h.repo.GetByRequestID(ctx, requestID)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		_ = utils.WriteOK(w, map[string]interface{}{"invocations": nonNil(invocations)})
		return
	}

	q := listInvocationsQuery{Limit: defaultInvocationLimit}
	for name, dst := range map[string]*int{"limit": &q.Limit, "offset": &q.Offset} {
		v := r.URL.Query().Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			HandleValidationError(w, &utils.ValidationError{
				Message: "Validation failed",
				Fields:  map[string]string{name: name + " must be a number"},
			}, h.logger)
			return
		}
		*dst = n
	}
	if err := utils.ValidateStruct(&q); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	invocations, err := h.repo.ListRecent(ctx, q.Limit, q.Offset)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	_ = utils.WriteOK(w, map[string]interface{}{
		"invocations": nonNil(invocations),
		"limit":       q.Limit,
		"offset":      q.Offset,
	})
}

// HandleGet handles GET /api/v1/vision/invocations/{id}
func (h *InvocationHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		_ = utils.WriteBadRequest(w, "Invalid invocation ID", nil)
		return
	}

	inv, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			_ = utils.WriteNotFound(w, "Invocation not found")
			return
		}
		h.fail(w, r, err)
		return
	}

	_ = utils.WriteOK(w, inv)
}

// HandleStats handles GET /api/v1/vision/invocations/stats. ?window= is a Go
// duration and defaults to 24h.
func (h *InvocationHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	window := defaultStatsWindow
	if v := r.URL.Query().Get("window"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			_ = utils.WriteBadRequest(w, "Validation failed", map[string]interface{}{
				"window": "window must be a positive duration",
			})
			return
		}
		window = d
	}

	since := h.now().Add(-window)
	counts, err := h.repo.CountByStatus(r.Context(), since)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	_ = utils.WriteOK(w, InvocationStats{Since: since, Counts: counts})
}

func (h *InvocationHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("invocation log query failed",
		zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
		zap.Error(err))
	_ = utils.WriteInternalServerError(w, "Failed to read invocation log")
}

func nonNil(invocations []*models.Invocation) []*models.Invocation {
	if invocations == nil {
		return []*models.Invocation{}
	}
	return invocations
}
