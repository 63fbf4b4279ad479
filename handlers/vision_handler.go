package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/vision-gateway/internal/observability"
	"github.com/upb/vision-gateway/middleware"
	"github.com/upb/vision-gateway/services/vision"
	"github.com/upb/vision-gateway/utils"
)

// VisionService describes images. *vision.Service satisfies it.
type VisionService interface {
	Describe(ctx context.Context, requestID string, req vision.Request) (*vision.Response, error)
}

// visionBody accepts both a bare request and the resolver envelope
// {"arguments": {...}}.
type visionBody struct {
	vision.Request
	Arguments *vision.Request `json:"arguments,omitempty"`
}

// VisionHandler handles model invocation requests
type VisionHandler struct {
	service VisionService
	logger  *zap.Logger
}

// NewVisionHandler creates a new VisionHandler
func NewVisionHandler(service VisionService, logger *zap.Logger) *VisionHandler {
	return &VisionHandler{
		service: service,
		logger:  logger,
	}
}

// HandleDescribe handles POST /api/v1/vision
func (h *VisionHandler) HandleDescribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)
	logger := observability.ForRequest(ctx, h.logger)

	var body visionBody
	if err := utils.DecodeJSON(w, r, &body); err != nil {
		logger.Warn("failed to parse request body", zap.Error(err))
		if errors.Is(err, utils.ErrBodyTooLarge) {
			_ = utils.WriteError(w, http.StatusRequestEntityTooLarge, err.Error(), nil)
			return
		}
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	req := body.Request
	if body.Arguments != nil {
		req = *body.Arguments
	}

	resp, err := h.service.Describe(ctx, requestID, req)
	if err != nil {
		logger.Warn("model invocation failed", zap.Error(err))
		if ctx.Err() != nil {
			// The timeout middleware answers once the deadline has passed.
			return
		}
		HandleServiceError(w, err, logger)
		return
	}

	_ = utils.WriteJSON(w, http.StatusOK, resp)
}
