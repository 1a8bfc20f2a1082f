package domain

import (
	"context"
	"errors"
	"time"
)

// Validation errors for AuditRow, following the same sentinel-error
// pattern as the var blocks in backend.go, policy.go and masking.go.
var (
	ErrInvalidAuditID        = errors.New("audit: id is required")
	ErrInvalidAuditUser      = errors.New("audit: user is required")
	ErrInvalidAuditQueryHash = errors.New("audit: query hash is required")
	ErrInvalidAuditTimestamp = errors.New("audit: timestamp is required")
	ErrInvalidAuditStatus    = errors.New("audit: status is invalid")
	ErrAuditAlreadyTerminal  = errors.New("audit: row already terminal")
)

// AuditStatus is the lifecycle status of an AuditRow. A row transitions
// AuditStatusPending -> {AuditStatusSuccess, AuditStatusError} exactly once.
type AuditStatus string

const (
	AuditStatusPending AuditStatus = "pending"
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditRow is one executed query's audit trail entry. It is written twice:
// once as AuditStatusPending on entry to the executor, and once more, in
// its terminal state, on exit — never more than that (spec invariant 2).
//
// The QueryText field holds the query text as the request supplied it;
// bind parameter values are not persisted. QueryHash is the md5 of the
// trimmed, lower-cased query text.
type AuditRow struct {
	ID ID

	User     string
	Role     string
	ClientIP string

	QueryText string
	QueryHash string
	QueryType string

	ServerAlias string
	ServerGroup string

	Status AuditStatus
	Reason string // set on error: "timeout", "client_cancel", "policy_deny", "backend_error", ...

	Rows    int
	ExecMs  int64
	Slow    bool // persisted with the row; the executor leaves it false

	StartedAt   time.Time
	CompletedAt time.Time

	DistributedID string // DistributedQueryState.qid, empty for local execution

	RequestID string
}

// Validate checks that the AuditRow carries the fields required at its
// current lifecycle stage. A pending row need not yet carry Rows/ExecMs/
// CompletedAt; a terminal row must.
func (r AuditRow) Validate() error {
	if r.ID.IsEmpty() {
		return ErrInvalidAuditID
	}
	if r.User == "" {
		return ErrInvalidAuditUser
	}
	if r.QueryHash == "" {
		return ErrInvalidAuditQueryHash
	}
	if r.StartedAt.IsZero() {
		return ErrInvalidAuditTimestamp
	}
	switch r.Status {
	case AuditStatusPending, AuditStatusSuccess, AuditStatusError:
	default:
		return ErrInvalidAuditStatus
	}
	if r.Status != AuditStatusPending && r.CompletedAt.IsZero() {
		return ErrInvalidAuditTimestamp
	}
	return nil
}

// IsTerminal reports whether the row has reached a final status.
func (r AuditRow) IsTerminal() bool {
	return r.Status == AuditStatusSuccess || r.Status == AuditStatusError
}

// AuditRepository persists AuditRows. All methods accept a Querier so
// the same repository works against a pool or a transaction.
//
//go:generate mockgen -destination=../testutil/mocks/audit_repository_mock.go -package=mocks github.com/sqlproxy/queryplane/internal/domain AuditRepository
type AuditRepository interface {
	// Create inserts a new (normally pending) AuditRow.
	Create(ctx context.Context, q Querier, row *AuditRow) error

	// Finalize updates a previously created row to its terminal state.
	// Returns ErrAuditAlreadyTerminal if the row was already terminal.
	Finalize(ctx context.Context, q Querier, row *AuditRow) error

	// ListByUser retrieves audit rows for a user, newest first. The anomaly
	// detector does not use it: it receives finalized rows from the
	// AuditSink's channel.
	ListByUser(ctx context.Context, q Querier, user string, params ListParams) ([]AuditRow, int, error)
}

// AuditSink is the narrow write-path interface the executor depends on. It
// intentionally exposes only the two calls the request path makes
// (§4.8: "MUST not be on the synchronous critical path beyond the two
// writes"); anything else (listing, reporting) goes through
// AuditRepository directly.
type AuditSink interface {
	// WritePending appends the entry-time AuditRow. Must be fast: a buffered
	// writer is acceptable, a blocking remote call is not.
	WritePending(ctx context.Context, row *AuditRow) error

	// WriteFinal updates the row to its terminal state and hands the
	// finalized row to the anomaly detector asynchronously. Never blocks on
	// anomaly processing.
	WriteFinal(ctx context.Context, row *AuditRow) error
}
