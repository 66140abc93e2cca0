package postgresrepo

import (
	"context"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/garrymei/minimodules-order/internal/dal/postgres"
	"github.com/garrymei/minimodules-order/internal/service/models/auditlog"
	"github.com/garrymei/minimodules-order/internal/service/models/order"
)

type PostgresAuditRepository struct {
	conn postgres.Querier
}

func NewPostgresAuditRepository(conn postgres.Querier) *PostgresAuditRepository {
	return &PostgresAuditRepository{
		conn: conn,
	}
}

// Insert appends a transition record. Runs on whatever querier it was bound
// to, so inside the transition transaction when created through the uow.
func (r *PostgresAuditRepository) Insert(ctx context.Context, entry auditlog.Entry) error {
	attrs, err := json.Marshal(entry.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal audit context: %w", err)
	}

	query, args, err := sq.Insert("order_audit_log").
		Columns(
			"order_id",
			"tenant_id",
			"from_status",
			"to_status",
			"actor",
			"context",
			"created_at",
		).
		Values(
			entry.OrderID,
			entry.TenantID,
			entry.FromStatus.String(),
			entry.ToStatus.String(),
			entry.Actor,
			attrs,
			entry.CreatedAt,
		).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert query: %w", err)
	}

	if _, err := r.conn.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}

	return nil
}

// ListByOrder retrieves the transition history of an order, oldest first.
func (r *PostgresAuditRepository) ListByOrder(ctx context.Context, orderID string) ([]auditlog.Entry, error) {
	query, args, err := sq.Select(
		"id",
		"order_id",
		"tenant_id",
		"from_status",
		"to_status",
		"actor",
		"context",
		"created_at",
	).
		From("order_audit_log").
		Where(sq.Eq{"order_id": orderID}).
		OrderBy("id ASC").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var result []auditlog.Entry
	for rows.Next() {
		var (
			entry      auditlog.Entry
			fromStatus string
			toStatus   string
			rawContext []byte
		)
		err := rows.Scan(
			&entry.ID,
			&entry.OrderID,
			&entry.TenantID,
			&fromStatus,
			&toStatus,
			&entry.Actor,
			&rawContext,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}

		entry.FromStatus = order.Status(fromStatus)
		entry.ToStatus = order.Status(toStatus)
		if len(rawContext) > 0 {
			if err := json.Unmarshal(rawContext, &entry.Context); err != nil {
				return nil, fmt.Errorf("failed to unmarshal audit context: %w", err)
			}
		}
		result = append(result, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return result, nil
}
