package vision

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/upb/vision-gateway/models"
	"github.com/upb/vision-gateway/services/providers"
)

// SoftFailContent is returned as the reply content when the image is not a
// usable data URI. The model is not called in that case.
const SoftFailContent = "ERROR!"

var (
	// ErrMissingPrefix is returned when the data URI has no metadata part.
	ErrMissingPrefix = errors.New("data uri has no prefix")

	// ErrMissingPayload is returned when the data URI has no payload after the comma.
	ErrMissingPayload = errors.New("data uri has no payload")
)

// Request is an image and a prompt. Base64Image is a data URI such as
// "data:image/jpeg;base64,/9j/...".
type Request struct {
	Base64Image string `json:"base64Image"`
	Prompt      string `json:"prompt"`
}

// Response carries the model's reply.
type Response struct {
	Content string `json:"content"`
}

// DataURI is a parsed base64 data URI.
type DataURI struct {
	MediaType string
	Data      string
}

// ParseDataURI splits s on its first comma. The media type is the text
// between "data:" and the first ";" of the prefix.
func ParseDataURI(s string) (DataURI, error) {
	meta, data, _ := strings.Cut(s, ",")
	if meta == "" {
		return DataURI{}, ErrMissingPrefix
	}
	if data == "" {
		return DataURI{}, ErrMissingPayload
	}
	mediaType, _, _ := strings.Cut(meta, ";")
	return DataURI{
		MediaType: strings.TrimPrefix(mediaType, "data:"),
		Data:      data,
	}, nil
}

// InvocationRecorder persists the outcome of an invocation.
type InvocationRecorder interface {
	Create(ctx context.Context, inv *models.Invocation) error
}

// Service describes images with a hosted model.
type Service struct {
	provider providers.Provider
	recorder InvocationRecorder
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates the vision service. recorder may be nil.
func NewService(provider providers.Provider, recorder InvocationRecorder, logger *zap.Logger) *Service {
	return &Service{
		provider: provider,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// Describe sends the image and prompt to the model as one user turn and
// returns the first text segment of the reply. A malformed image yields
// SoftFailContent and no error. Model errors are returned unchanged.
func (s *Service) Describe(ctx context.Context, requestID string, req Request) (*Response, error) {
	inv := models.NewInvocation(requestID, s.provider.Name(), "", len(req.Prompt))

	uri, err := ParseDataURI(req.Base64Image)
	if err != nil {
		s.logger.Info("rejecting malformed image",
			zap.String("request_id", requestID),
			zap.Error(err))
		inv.MarkAsRejected(err.Error())
		s.record(ctx, inv)
		return &Response{Content: SoftFailContent}, nil
	}
	inv.SetImage(uri.MediaType, len(uri.Data))

	start := s.now()
	resp, err := s.provider.Invoke(ctx, &providers.InvokeRequest{
		Image:  providers.Image{MediaType: uri.MediaType, Data: uri.Data},
		Prompt: req.Prompt,
	})
	latency := int(s.now().Sub(start).Milliseconds())
	if err != nil {
		inv.MarkAsFailed(err.Error(), latency)
		s.record(ctx, inv)
		return nil, err
	}

	inv.Model = resp.Model
	inv.MarkAsCompleted(resp.StopReason, resp.Usage.InputTokens, resp.Usage.OutputTokens, latency)
	s.record(ctx, inv)

	return &Response{Content: resp.Content}, nil
}

func (s *Service) record(ctx context.Context, inv *models.Invocation) {
	if s.recorder == nil {
		return
	}
	// Recording must outlive a request context that timed out.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.recorder.Create(ctx, inv); err != nil {
		s.logger.Warn("failed to record invocation",
			zap.String("request_id", inv.RequestID),
			zap.Error(err))
	}
}
