package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/upb/vision-gateway/models"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("record not found")

// InvocationRepository handles invocation log data operations
type InvocationRepository interface {
	// Create inserts a new invocation record
	Create(ctx context.Context, inv *models.Invocation) error

	// GetByID retrieves an invocation by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.Invocation, error)

	// GetByRequestID retrieves the invocations recorded for an HTTP request ID
	GetByRequestID(ctx context.Context, requestID string) ([]*models.Invocation, error)

	// ListRecent retrieves invocations newest first with pagination
	ListRecent(ctx context.Context, limit, offset int) ([]*models.Invocation, error)

	// CountByStatus counts invocations per status created since the given time
	CountByStatus(ctx context.Context, since time.Time) (map[models.InvocationStatus]int, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Invocations InvocationRepository
}
