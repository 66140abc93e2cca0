package postgresrepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/garrymei/minimodules-order/internal/dal/postgres"
	"github.com/garrymei/minimodules-order/internal/service/models/callback"
)

type PostgresCallbackRepository struct {
	conn postgres.Querier
}

func NewPostgresCallbackRepository(conn postgres.Querier) *PostgresCallbackRepository {
	return &PostgresCallbackRepository{
		conn: conn,
	}
}

// Insert persists a raw gateway callback. The (gateway, request_id) unique
// constraint makes replays visible: when the row already exists nothing is
// inserted and inserted=false is returned.
func (r *PostgresCallbackRepository) Insert(ctx context.Context, cb callback.Callback) (int64, bool, error) {
	headers, err := json.Marshal(cb.Headers)
	if err != nil {
		return 0, false, fmt.Errorf("failed to marshal callback headers: %w", err)
	}

	query, args, err := sq.Insert("payment_callbacks").
		Columns(
			"gateway",
			"request_id",
			"payload",
			"headers",
			"signature",
			"status",
			"created_at",
		).
		Values(
			cb.Gateway,
			cb.RequestID,
			cb.Payload,
			headers,
			cb.Signature,
			callback.StatusReceived,
			cb.CreatedAt,
		).
		Suffix("ON CONFLICT (gateway, request_id) DO NOTHING RETURNING id").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return 0, false, fmt.Errorf("failed to build insert query: %w", err)
	}

	var id int64
	err = r.conn.QueryRow(ctx, query, args...).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}

		return 0, false, fmt.Errorf("failed to insert callback: %w", err)
	}

	return id, true, nil
}

// GetByRequestID retrieves a stored callback. Returns nil when absent.
func (r *PostgresCallbackRepository) GetByRequestID(ctx context.Context, gateway, requestID string) (*callback.Callback, error) {
	query, args, err := sq.Select(
		"id",
		"gateway",
		"request_id",
		"payload",
		"headers",
		"signature",
		"status",
		"order_id",
		"processed",
		"last_error",
		"created_at",
		"processed_at",
	).
		From("payment_callbacks").
		Where(sq.Eq{"gateway": gateway, "request_id": requestID}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	var (
		cb      callback.Callback
		headers []byte
		orderID *string
		lastErr *string
	)
	err = r.conn.QueryRow(ctx, query, args...).Scan(
		&cb.ID,
		&cb.Gateway,
		&cb.RequestID,
		&cb.Payload,
		&headers,
		&cb.Signature,
		&cb.Status,
		&orderID,
		&cb.Processed,
		&lastErr,
		&cb.CreatedAt,
		&cb.ProcessedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to query callback: %w", err)
	}

	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &cb.Headers); err != nil {
			return nil, fmt.Errorf("failed to unmarshal callback headers: %w", err)
		}
	}
	if orderID != nil {
		cb.OrderID = *orderID
	}
	if lastErr != nil {
		cb.LastError = *lastErr
	}

	return &cb, nil
}

// UpdateOutcome records the processing result on the stored callback row.
func (r *PostgresCallbackRepository) UpdateOutcome(ctx context.Context, id int64, status, orderID string, processed []byte, lastError string) error {
	builder := sq.Update("payment_callbacks").
		Set("status", status).
		Set("processed_at", time.Now()).
		Where(sq.Eq{"id": id})

	if orderID != "" {
		builder = builder.Set("order_id", orderID)
	}
	if processed != nil {
		builder = builder.Set("processed", processed)
	}
	if lastError != "" {
		builder = builder.Set("last_error", lastError)
	}

	query, args, err := builder.PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}

	if _, err := r.conn.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update callback outcome: %w", err)
	}

	return nil
}
