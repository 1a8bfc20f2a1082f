// Package executor runs a routed request against one backend (local
// execution) or fans it out across a server group (distributed
// execution), per spec.md §4.4.
package executor

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sqlproxy/queryplane/internal/backendpool"
	"github.com/sqlproxy/queryplane/internal/domain"
	domainerrors "github.com/sqlproxy/queryplane/internal/domain/errors"
	"github.com/sqlproxy/queryplane/internal/infra/resilience"
	"github.com/sqlproxy/queryplane/internal/querytext"
	"github.com/sqlproxy/queryplane/internal/timeoutreg"
)

// RoleTimeouts maps role name to its TimeoutRegistry deadline; see
// spec.md §4.5 ("admin > service > analyst").
type RoleTimeouts map[string]time.Duration

// Executor wires the connection pool, timeout registry, circuit breakers,
// and audit sink into the two execution contracts from spec.md §4.4.
type Executor struct {
	registry *backendpool.Registry
	timeouts *timeoutreg.Registry
	audit    domain.AuditSink
	log      *slog.Logger

	cbCfg    resilience.CircuitBreakerConfig
	breakers map[string]resilience.CircuitBreaker

	maxWorkers int
}

// New creates an Executor. maxWorkers bounds the distributed worker pool
// (DISTRIBUTED_MAX_WORKERS).
func New(registry *backendpool.Registry, timeouts *timeoutreg.Registry, audit domain.AuditSink, cbCfg resilience.CircuitBreakerConfig, maxWorkers int, log *slog.Logger) *Executor {
	return &Executor{
		registry:   registry,
		timeouts:   timeouts,
		audit:      audit,
		log:        log,
		cbCfg:      cbCfg,
		breakers:   make(map[string]resilience.CircuitBreaker),
		maxWorkers: maxWorkers,
	}
}

func (e *Executor) breakerFor(alias string) resilience.CircuitBreaker {
	if cb, ok := e.breakers[alias]; ok {
		return cb
	}
	cb := resilience.NewCircuitBreaker("backend:"+alias, e.cbCfg, resilience.WithLogger(e.log))
	e.breakers[alias] = cb
	return cb
}

func queryHash(queryText string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(queryText))))
	return hex.EncodeToString(sum[:])
}

// ExecuteLocal implements spec.md §4.4.1's seven-step contract against a
// single backend server.
func (e *Executor) ExecuteLocal(ctx context.Context, server domain.BackendServer, req domain.Request) (domain.Response, error) {
	qid := uuid.NewString()
	qType := querytext.Classify(req.QueryText)

	// Step 1: register with TimeoutRegistry.
	_, handle := e.timeouts.Register(ctx, qid, req.Principal.Username, req.Principal.Role)
	defer e.timeouts.Unregister(qid)

	startedAt := time.Now()

	// Step 2: write a pending AuditRow.
	row := &domain.AuditRow{
		ID:          domain.ID(qid),
		User:        req.Principal.Username,
		Role:        req.Principal.Role,
		ClientIP:    req.Principal.ClientIP,
		QueryText:   req.QueryText,
		QueryHash:   queryHash(req.QueryText),
		QueryType:   string(qType),
		ServerAlias: server.Alias,
		ServerGroup: req.ServerGroup,
		Status:      domain.AuditStatusPending,
		StartedAt:   startedAt,
		RequestID:   req.TransactionID,
	}
	if e.audit != nil {
		if err := e.audit.WritePending(ctx, row); err != nil && e.log != nil {
			e.log.Warn("audit WritePending failed", "qid", qid, "error", err)
		}
	}

	resp, execErr := e.runOnBackend(handle.Context(), server, req, qType)

	// Steps 5-6: finalize.
	row.CompletedAt = time.Now()
	row.ExecMs = row.CompletedAt.Sub(startedAt).Milliseconds()
	row.Rows = resp.Rowcount
	if execErr != nil {
		row.Status = domain.AuditStatusError
		row.Reason = reasonFor(handle, execErr)
	} else {
		row.Status = domain.AuditStatusSuccess
	}

	if e.audit != nil {
		if err := e.audit.WriteFinal(ctx, row); err != nil && e.log != nil {
			e.log.Warn("audit WriteFinal failed", "qid", qid, "error", err)
		}
	}

	if execErr != nil {
		return domain.Response{}, execErr
	}
	resp.ExecutionTimeMs = row.ExecMs
	resp.QueryType = qType
	return resp, nil
}

func reasonFor(handle timeoutreg.Handle, err error) string {
	if handle.Context().Err() != nil {
		return "timeout"
	}
	return "backend_error"
}

// runOnBackend acquires the connection, runs the statement through the
// per-backend circuit breaker, and updates live statistics (spec.md
// §4.4: "every per-server execution updates active_queries,
// total_queries, total_time, errors, last_error_time").
func (e *Executor) runOnBackend(ctx context.Context, server domain.BackendServer, req domain.Request, qType domain.QueryType) (domain.Response, error) {
	conn, err := e.registry.Acquire(ctx, server.Alias)
	if err != nil {
		return domain.Response{}, domainerrors.NewDomainWithCause(domainerrors.CodePoolUnhealthy, "acquire failed for "+server.Alias, err)
	}

	stats := e.registry.Stats(server.Alias)
	stats.BeginQuery()

	start := time.Now()
	cb := e.breakerFor(server.Alias)
	result, err := cb.Execute(ctx, func() (any, error) {
		return execQuery(ctx, conn.Querier(), req.QueryText, qType, req.Options.MaxRows, req.Params)
	})
	elapsed := time.Since(start).Milliseconds()
	stats.EndQuery(elapsed, err != nil)

	if err != nil {
		return domain.Response{}, domainerrors.NewDomainWithCause(domainerrors.CodeBackendError, "execution failed on "+server.Alias, err)
	}

	resp := result.(domain.Response)
	return resp, nil
}

// execQuery runs req.QueryText and shapes a domain.Response. SELECTs
// collect columns/rows up to maxRows; everything else reports an
// affected-row count via Exec.
func execQuery(ctx context.Context, q domain.Querier, queryText string, qType domain.QueryType, maxRows int, params map[string]any) (domain.Response, error) {
	args := paramsToArgs(params)

	if qType == domain.QuerySelect {
		raw, err := q.Query(ctx, queryText, args...)
		if err != nil {
			return domain.Response{}, err
		}
		rows, ok := raw.(*sql.Rows)
		if !ok {
			return domain.Response{}, domainerrors.NewDomain(domainerrors.CodeBackendError, "querier returned unexpected row type")
		}
		defer rows.Close()

		columns, data, err := scanRows(rows, maxRows)
		if err != nil {
			return domain.Response{}, err
		}
		return domain.Response{Success: true, Columns: columns, Data: data, Rowcount: len(data)}, nil
	}

	raw, err := q.Exec(ctx, queryText, args...)
	if err != nil {
		return domain.Response{}, err
	}
	result, ok := raw.(sql.Result)
	if !ok {
		return domain.Response{Success: true}, nil
	}
	n, _ := result.RowsAffected()
	return domain.Response{Success: true, Rowcount: int(n)}, nil
}

// scanRows reads up to maxRows rows into [][]any, generically across
// column types using sql.RawBytes-free any scanning.
func scanRows(rows *sql.Rows, maxRows int) ([]string, [][]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var data [][]any
	for rows.Next() {
		if maxRows > 0 && len(data) >= maxRows {
			break
		}
		dest := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		data = append(data, normalizeRow(dest))
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return columns, data, nil
}

// normalizeRow converts driver-specific byte slices ([]byte for TEXT/
// VARCHAR columns under database/sql) into plain strings so downstream
// masking/caching/JSON layers see ordinary Go values.
func normalizeRow(row []any) []any {
	out := make([]any, len(row))
	for i, v := range row {
		if b, ok := v.([]byte); ok {
			out[i] = string(b)
			continue
		}
		out[i] = v
	}
	return out
}

func paramsToArgs(params map[string]any) []any {
	if len(params) == 0 {
		return nil
	}
	args := make([]any, 0, len(params))
	for _, v := range params {
		args = append(args, v)
	}
	return args
}
