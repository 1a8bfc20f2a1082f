package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sqlproxy/queryplane/internal/domain"
)

// AuditRepo implements domain.AuditRepository for PostgreSQL.
//
// Unlike user_repo.go / audit_event_repo.go, this repository is written
// directly against domain.Querier's generic Exec/Query/QueryRow rather
// than against sqlc-generated code: the sqlc toolchain output
// (internal/infra/postgres/sqlcgen) that those files depend on was never
// part of the example pack (see DESIGN.md), so audit_rows — a table
// this redesign adds — gets hand-written SQL in the idiom
// PoolQuerier/TxQuerier already expose.
type AuditRepo struct{}

// NewAuditRepo creates a new AuditRepo instance.
func NewAuditRepo() *AuditRepo {
	return &AuditRepo{}
}

const createAuditRowSQL = `
INSERT INTO audit_rows (
	id, username, role, client_ip, query_text, query_hash, query_type,
	server_alias, server_group, status, reason, rows, exec_ms, slow,
	started_at, completed_at, distributed_id, request_id
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18
)`

// Create inserts a new (normally pending) AuditRow.
func (r *AuditRepo) Create(ctx context.Context, q domain.Querier, row *domain.AuditRow) error {
	const op = "auditRepo.Create"
	if err := row.Validate(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	_, err := q.Exec(ctx, createAuditRowSQL,
		string(row.ID), row.User, row.Role, row.ClientIP, row.QueryText, row.QueryHash, row.QueryType,
		row.ServerAlias, row.ServerGroup, string(row.Status), nullIfEmpty(row.Reason), row.Rows, row.ExecMs, row.Slow,
		row.StartedAt, nullIfZero(row.CompletedAt), nullIfEmpty(row.DistributedID), nullIfEmpty(row.RequestID),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

const finalizeAuditRowSQL = `
UPDATE audit_rows
SET status = $2, reason = $3, rows = $4, exec_ms = $5, slow = $6, completed_at = $7
WHERE id = $1 AND status = 'pending'`

// Finalize updates a previously created row to its terminal state.
// Returns domain.ErrAuditAlreadyTerminal if the row was already terminal
// (the UPDATE affects zero rows because the WHERE clause's status =
// 'pending' guard no longer matches).
func (r *AuditRepo) Finalize(ctx context.Context, q domain.Querier, row *domain.AuditRow) error {
	const op = "auditRepo.Finalize"
	if !row.IsTerminal() {
		return fmt.Errorf("%s: row status %q is not terminal", op, row.Status)
	}

	raw, err := q.Exec(ctx, finalizeAuditRowSQL,
		string(row.ID), string(row.Status), nullIfEmpty(row.Reason), row.Rows, row.ExecMs, row.Slow, row.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if tag, ok := raw.(interface{ RowsAffected() int64 }); ok && tag.RowsAffected() == 0 {
		return domain.ErrAuditAlreadyTerminal
	}
	return nil
}

const listAuditRowsByUserSQL = `
SELECT id, username, role, client_ip, query_text, query_hash, query_type,
       server_alias, server_group, status, reason, rows, exec_ms, slow,
       started_at, completed_at, distributed_id, request_id
FROM audit_rows
WHERE username = $1
ORDER BY started_at DESC
LIMIT $2 OFFSET $3`

const countAuditRowsByUserSQL = `SELECT count(*) FROM audit_rows WHERE username = $1`

// ListByUser retrieves audit rows for a user, newest first.
func (r *AuditRepo) ListByUser(ctx context.Context, q domain.Querier, user string, params domain.ListParams) ([]domain.AuditRow, int, error) {
	const op = "auditRepo.ListByUser"

	countRow, ok := q.QueryRow(ctx, countAuditRowsByUserSQL, user).(pgx.Row)
	if !ok {
		return nil, 0, fmt.Errorf("%s: unexpected QueryRow type", op)
	}
	var total int
	if err := countRow.Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%s: count: %w", op, err)
	}
	if total == 0 {
		return nil, 0, nil
	}

	raw, err := q.Query(ctx, listAuditRowsByUserSQL, user, params.Limit(), params.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("%s: query: %w", op, err)
	}
	rows, ok := raw.(pgx.Rows)
	if !ok {
		return nil, 0, fmt.Errorf("%s: unexpected row type %T", op, raw)
	}
	defer rows.Close()

	var out []domain.AuditRow
	for rows.Next() {
		var row domain.AuditRow
		var id, status, reason, distributedID, requestID string
		var completedAt *time.Time
		if err := rows.Scan(
			&id, &row.User, &row.Role, &row.ClientIP, &row.QueryText, &row.QueryHash, &row.QueryType,
			&row.ServerAlias, &row.ServerGroup, &status, &reason, &row.Rows, &row.ExecMs, &row.Slow,
			&row.StartedAt, &completedAt, &distributedID, &requestID,
		); err != nil {
			return nil, 0, fmt.Errorf("%s: scan: %w", op, err)
		}
		row.ID = domain.ID(id)
		row.Status = domain.AuditStatus(status)
		row.Reason = reason
		row.DistributedID = distributedID
		row.RequestID = requestID
		if completedAt != nil {
			row.CompletedAt = *completedAt
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}
	return out, total, nil
}

var _ domain.AuditRepository = (*AuditRepo)(nil)

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullIfZero(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
