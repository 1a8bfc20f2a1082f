// Package audit implements domain.AuditSink: the two-write (pending,
// final) append-only log every executed query passes through, and the
// one-way handoff into the anomaly detector (spec.md §4.8).
package audit

import (
	"context"
	"log/slog"

	"github.com/sqlproxy/queryplane/internal/domain"
)

// Sink adapts domain.AuditRepository into domain.AuditSink, following the
// teacher's internal/app/audit.AuditService shape (PII-redaction +
// repository delegation) but trimmed to the narrow two-call contract the
// request path needs. The repository calls and the anomaly-detector
// handoff both happen here, never on the executor's goroutine beyond
// this call.
type Sink struct {
	repo domain.AuditRepository
	q    domain.Querier
	out  chan<- domain.AuditRow
	log  *slog.Logger
}

// New creates a Sink. out is the bounded channel feeding the anomaly
// detector (spec.md §9: "break cyclic references with a one-way message
// pipeline"); a full channel drops the row and logs, it never blocks.
func New(repo domain.AuditRepository, q domain.Querier, out chan<- domain.AuditRow, log *slog.Logger) *Sink {
	return &Sink{repo: repo, q: q, out: out, log: log}
}

// WritePending appends the entry-time AuditRow.
func (s *Sink) WritePending(ctx context.Context, row *domain.AuditRow) error {
	return s.repo.Create(ctx, s.q, row)
}

// WriteFinal persists the row's terminal state and hands it to the
// anomaly detector without blocking the caller.
func (s *Sink) WriteFinal(ctx context.Context, row *domain.AuditRow) error {
	if err := s.repo.Finalize(ctx, s.q, row); err != nil {
		return err
	}

	select {
	case s.out <- *row:
	default:
		if s.log != nil {
			s.log.Warn("anomaly queue full, dropping audit row", "qid", row.ID, "user", row.User)
		}
	}
	return nil
}

var _ domain.AuditSink = (*Sink)(nil)
