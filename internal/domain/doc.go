// Package domain contains the core business entities, value objects, and
// port interfaces of the query execution plane.
//
// This package is the innermost layer of the hexagonal architecture: pure
// business logic with no external dependencies. It defines the request and
// response shapes the proxy speaks, the backend/routing/policy/masking
// model, and the audit and anomaly records derived from request handling.
//
// # Layer Boundary Rules
//
// The domain layer has strict import restrictions enforced by depguard:
//
//	| CAN Import     | CANNOT Import                                          |
//	|----------------|---------------------------------------------------------|
//	| stdlib, subpkgs| slog, otel, uuid, http, pgx, backendpool, router, infra |
//
// This keeps the domain pure and testable without any infrastructure
// present: a PolicyRule or MaskingRule can be constructed and validated
// in a unit test without a database, a pool, or a network call.
//
// # Key Implications
//
//   - Entities MUST NOT have JSON tags (the transport layer adds them via DTOs)
//   - Domain MUST NOT log directly (return errors instead)
//   - Domain MUST NOT use external packages (no uuid, no http, no pgx)
//   - Repository/sink interfaces define only the contract, not the implementation
//
// # Core Entities
//
//   - BackendServer / ServerGroup (backend.go): routing targets and their
//     pool sizing, weighting, and role restrictions.
//   - Policy / PolicyRule / AuthorizationContext (policy.go): the
//     allow/deny rule model evaluated by internal/policy.
//   - MaskingRule (masking.go): table/column pattern to masking-strategy
//     mapping evaluated by internal/masking.
//   - Request / Response / DistributedQueryState / CacheEntry (query.go):
//     the logical request-path shapes shared by router, executor, masker,
//     and cache.
//   - AuditRow / AuditSink (audit.go): the two-write (pending, final)
//     audit contract every request passes through.
//   - AnomalyAlert (anomaly.go): derived, non-blocking output of
//     internal/anomaly; never read back on the request path.
//
// Entities include Validate methods that return sentinel or structured
// domain errors rather than panicking:
//
//	if err := rule.Validate(); err != nil {
//	    return err // e.g. domain.ErrMaskingTypeInvalid
//	}
//
// # Repository / Sink Interfaces (Ports)
//
// Interfaces in this package define persistence and side-effect contracts
// implemented by infrastructure:
//
//	type AuditRepository interface {
//	    Create(ctx context.Context, q Querier, row *AuditRow) error
//	    Finalize(ctx context.Context, q Querier, row *AuditRow) error
//	    ListByUser(ctx context.Context, q Querier, user string, params ListParams) ([]AuditRow, int, error)
//	}
//
// The Querier interface enables both direct pool and transaction usage:
//
//	// Use with connection pool
//	rows, total, err := repo.ListByUser(ctx, pool, user, params)
//
//	// Use within a transaction
//	err := txManager.WithTx(ctx, func(q Querier) error {
//	    return repo.Create(ctx, q, row)
//	})
//
// # Domain Errors
//
// Sentinel errors (errors.New, compared with errors.Is) guard structural
// invariants close to the type they belong to — see the var blocks in
// backend.go, policy.go, masking.go, and audit.go. For error kinds that
// cross the wire to a caller (spec.md §7), use the errors subpackage's
// stable-code DomainError instead:
//
//	return errors.NewDomain(errors.CodePolicyDeny, "query denied by policy")
//
// # Value Objects
//
// ID is a value object wrapping identity:
//
//	id := domain.ID("uuid")  // Wraps an existing identifier
//	id.IsEmpty()             // Reports a missing ID
//
// Pagination provides standardized list parameters for audit/history
// queries:
//
//	params := domain.ListParams{Page: 1, PageSize: 20}
//
// # See Also
//
//   - internal/domain/errors: structured error codes and DomainError
package domain
