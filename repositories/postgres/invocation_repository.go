package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/vision-gateway/models"
	"github.com/upb/vision-gateway/repositories"
)

// InvocationRepository implements the repositories.InvocationRepository interface
type InvocationRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewInvocationRepository creates a new invocation repository
func NewInvocationRepository(db *DB, logger *zap.Logger) repositories.InvocationRepository {
	return &InvocationRepository{
		db:     db,
		logger: logger,
	}
}

const invocationColumns = `id, request_id, status, provider, model, media_type, image_bytes,
	prompt_length, input_tokens, output_tokens, stop_reason, latency_ms,
	error_message, created_at, completed_at`

// Create creates a new invocation record
func (r *InvocationRepository) Create(ctx context.Context, inv *models.Invocation) error {
	query := `
		INSERT INTO invocations (` + invocationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := r.db.ExecContext(ctx, query,
		inv.ID,
		inv.RequestID,
		inv.Status,
		inv.Provider,
		inv.Model,
		inv.MediaType,
		inv.ImageBytes,
		inv.PromptLength,
		inv.InputTokens,
		inv.OutputTokens,
		inv.StopReason,
		inv.LatencyMs,
		inv.ErrorMessage,
		inv.CreatedAt,
		inv.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create invocation: %w", err)
	}

	r.logger.Debug("invocation recorded",
		zap.String("id", inv.ID.String()),
		zap.String("request_id", inv.RequestID),
		zap.String("status", string(inv.Status)))
	return nil
}

// GetByID retrieves an invocation by ID
func (r *InvocationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Invocation, error) {
	query := `SELECT ` + invocationColumns + ` FROM invocations WHERE id = $1`

	inv, err := scanInvocation(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("invocation %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get invocation: %w", err)
	}
	return inv, nil
}

// GetByRequestID retrieves the invocations recorded for an HTTP request ID
func (r *InvocationRepository) GetByRequestID(ctx context.Context, requestID string) ([]*models.Invocation, error) {
	query := `SELECT ` + invocationColumns + ` FROM invocations WHERE request_id = $1 ORDER BY created_at`
	return r.list(ctx, query, requestID)
}

// ListRecent retrieves invocations newest first with pagination
func (r *InvocationRepository) ListRecent(ctx context.Context, limit, offset int) ([]*models.Invocation, error) {
	query := `SELECT ` + invocationColumns + ` FROM invocations ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	return r.list(ctx, query, limit, offset)
}

// CountByStatus counts invocations per status created since the given time
func (r *InvocationRepository) CountByStatus(ctx context.Context, since time.Time) (map[models.InvocationStatus]int, error) {
	query := `SELECT status, COUNT(*) FROM invocations WHERE created_at >= $1 GROUP BY status`

	rows, err := r.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count invocations: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.InvocationStatus]int)
	for rows.Next() {
		var status models.InvocationStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan invocation count: %w", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invocation counts: %w", err)
	}
	return counts, nil
}

func (r *InvocationRepository) list(ctx context.Context, query string, args ...any) ([]*models.Invocation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invocations: %w", err)
	}
	defer rows.Close()

	var invocations []*models.Invocation
	for rows.Next() {
		inv, err := scanInvocation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invocation: %w", err)
		}
		invocations = append(invocations, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invocations: %w", err)
	}
	return invocations, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInvocation(row scanner) (*models.Invocation, error) {
	inv := &models.Invocation{}
	err := row.Scan(
		&inv.ID,
		&inv.RequestID,
		&inv.Status,
		&inv.Provider,
		&inv.Model,
		&inv.MediaType,
		&inv.ImageBytes,
		&inv.PromptLength,
		&inv.InputTokens,
		&inv.OutputTokens,
		&inv.StopReason,
		&inv.LatencyMs,
		&inv.ErrorMessage,
		&inv.CreatedAt,
		&inv.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return inv, nil
}
