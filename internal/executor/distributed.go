package executor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sqlproxy/queryplane/internal/domain"
	"github.com/sqlproxy/queryplane/internal/infra/resilience"
)

// subResult is one server's outcome within a scatter/gather round.
type subResult struct {
	alias     string
	resp      domain.Response
	err       error
	cancelled bool
}

// ExecuteDistributed implements spec.md §4.4.2: fan a request out across
// an active server group under mode and reduce the results.
//
// read-any tries servers one at a time (best-scored first) until one
// succeeds or the group is exhausted. write-all and broadcast fan out to
// every active member in parallel over a bounded worker pool — the
// teacher's internal/infra/resilience.Bulkhead semaphore idiom, applied
// here to cap concurrent scatter goroutines instead of concurrent HTTP
// requests — and report success once at least quorum servers terminate
// successfully.
func (e *Executor) ExecuteDistributed(ctx context.Context, members []domain.BackendServer, req domain.Request, mode domain.DistributionMode) (domain.Response, error) {
	qid := uuid.NewString()

	if mode == domain.ModeReadAny {
		return e.executeReadAny(ctx, members, req, qid)
	}
	return e.executeFanOut(ctx, members, req, mode, qid)
}

// executeReadAny tries members in order (already scored/ranked by the
// router) until one succeeds.
func (e *Executor) executeReadAny(ctx context.Context, members []domain.BackendServer, req domain.Request, qid string) (domain.Response, error) {
	var lastErr error
	attempted := 0
	for _, server := range members {
		attempted++
		resp, err := e.ExecuteLocal(ctx, server, req)
		if err == nil {
			resp.Distribution = &domain.DistributionInfo{
				Strategy:         domain.ModeReadAny,
				ServersTotal:     len(members),
				ServersSucceeded: 1,
				ServersFailed:    attempted - 1,
				QueryID:          qid,
			}
			return resp, nil
		}
		lastErr = err
	}
	return domain.Response{}, lastErr
}

// executeFanOut runs req on every member in parallel, bounded by
// e.maxWorkers, and reduces the per-server results per the write-all /
// broadcast rules in spec.md §4.4.2.
func (e *Executor) executeFanOut(ctx context.Context, members []domain.BackendServer, req domain.Request, mode domain.DistributionMode, qid string) (domain.Response, error) {
	workers := e.maxWorkers
	if workers <= 0 || workers > len(members) {
		workers = len(members)
	}
	if workers < 1 {
		workers = 1
	}

	bulkhead := resilience.NewBulkhead("distributed:"+qid, resilience.BulkheadConfig{
		MaxConcurrent: workers,
		MaxWaiting:    len(members),
	})

	results := make([]subResult, len(members))
	var wg sync.WaitGroup
	for i, server := range members {
		wg.Add(1)
		go func(i int, server domain.BackendServer) {
			defer wg.Done()
			var r subResult
			r.alias = server.Alias
			err := bulkhead.Do(ctx, func(bctx context.Context) error {
				resp, execErr := e.ExecuteLocal(bctx, server, req)
				r.resp = resp
				r.err = execErr
				return execErr
			})
			if err != nil && r.err == nil {
				r.err = err
			}
			if ctx.Err() != nil && r.err != nil {
				r.cancelled = true
			}
			results[i] = r
		}(i, server)
	}
	wg.Wait()

	return reduceFanOut(results, mode, qid)
}

// reduceFanOut applies spec.md §4.4.2's quorum rule: cancelled
// sub-requests are excluded from N; success requires
// servers_succeeded >= max(1, floor(N/2)) over the remaining, terminal
// members.
func reduceFanOut(results []subResult, mode domain.DistributionMode, qid string) (domain.Response, error) {
	var succeeded, failed, active int
	var execMax int64
	var rowcountSum, rowcountCount int
	var firstErr *domain.ResponseError

	for _, r := range results {
		if r.cancelled {
			continue
		}
		active++
		if r.err == nil {
			succeeded++
			rowcountSum += r.resp.Rowcount
			rowcountCount++
			if r.resp.ExecutionTimeMs > execMax {
				execMax = r.resp.ExecutionTimeMs
			}
		} else {
			failed++
			if firstErr == nil {
				firstErr = &domain.ResponseError{Code: "BACKEND_ERROR", Message: r.err.Error(), ServerAlias: r.alias}
			}
		}
	}

	quorum := writeQuorum(active)
	success := succeeded >= quorum

	resp := domain.Response{
		Success:         success,
		ExecutionTimeMs: execMax,
		Distribution: &domain.DistributionInfo{
			Strategy:         mode,
			ServersTotal:     active,
			ServersSucceeded: succeeded,
			ServersFailed:    failed,
			QueryID:          qid,
		},
	}
	if rowcountCount > 0 {
		resp.Rowcount = rowcountSum / rowcountCount
	}
	if !success {
		resp.Error = firstErr
	}
	return resp, nil
}

// writeQuorum is max(1, floor(N/2)) — the source's literal rule
// (spec.md §4.4.2, §7 S4), not the "majority" language in its comments.
func writeQuorum(n int) int {
	q := n / 2
	if q < 1 {
		q = 1
	}
	return q
}

// DeadlineGroup bounds how long ExecuteDistributed waits overall;
// callers construct ctx with context.WithTimeout using this before
// calling ExecuteDistributed (spec.md §4.4: "the coordinator waits for
// all sub-results or the request deadline").
func DeadlineGroup(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, d)
}
