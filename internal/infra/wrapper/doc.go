// Package wrapper provides context-aware wrapper functions for database
// operations.
//
// This package enforces consistent context propagation across control-plane
// queries by providing wrapper functions that:
//   - Require context as the first parameter
//   - Apply DefaultQueryTimeout when context has no deadline
//   - Return early if context is already done (Query and Exec; QueryRow and
//     QueryRowWithCancel pass a done context on to the pool)
//   - Preserve existing deadlines (never overwrite)
//
// internal/infra/postgres.PoolQuerier calls these instead of the raw
// *pgxpool.Pool methods directly, so a control-plane repository call that
// forgets to set a deadline still gets bounded rather than blocking
// forever.
//
// Usage:
//
//	// Database query with automatic timeout
//	rows, err := wrapper.Query(ctx, pool, "SELECT * FROM users")
package wrapper
