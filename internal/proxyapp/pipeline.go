// Package proxyapp wires the query-execution plane's components into the
// single request-path use case, following the teacher's
// internal/app/user use-case style: a plain struct holding its
// collaborators, with one public Execute method per use case
// (spec.md §2, §4).
package proxyapp

import (
	"context"
	"log/slog"
	"time"

	"github.com/sqlproxy/queryplane/internal/anomaly"
	"github.com/sqlproxy/queryplane/internal/domain"
	domainerrors "github.com/sqlproxy/queryplane/internal/domain/errors"
	"github.com/sqlproxy/queryplane/internal/executor"
	"github.com/sqlproxy/queryplane/internal/masking"
	"github.com/sqlproxy/queryplane/internal/policy"
	"github.com/sqlproxy/queryplane/internal/querytext"
	"github.com/sqlproxy/queryplane/internal/resultcache"
	"github.com/sqlproxy/queryplane/internal/router"
)

// CacheConfig switches result caching on or off and bounds how long a
// SELECT result may be reused. Which statements are eligible is fixed in
// Execute, not configured here (spec.md §4.7: "never cache error
// results, never cache non-SELECT queries").
type CacheConfig struct {
	TTL     time.Duration
	Enabled bool
}

// requestRouter is the subset of *router.Router the pipeline needs,
// narrowed to a local port so Execute's orchestration logic can be
// tested against a fake without standing up a real backend registry —
// the same "depend on the narrow interface, not the concrete repository"
// discipline the teacher applies to domain.UserRepository.
type requestRouter interface {
	Route(req domain.Request) (router.ExecutionPlan, error)
	SelectBackend(members []domain.BackendServer, role string) ([]domain.BackendServer, error)
}

// policyEvaluator is the subset of *policy.PolicyEngine the pipeline needs.
type policyEvaluator interface {
	Evaluate(authCtx domain.AuthorizationContext) (domain.AuthorizationResult, error)
}

// queryExecutor is the subset of *executor.Executor the pipeline needs.
type queryExecutor interface {
	ExecuteLocal(ctx context.Context, server domain.BackendServer, req domain.Request) (domain.Response, error)
	ExecuteDistributed(ctx context.Context, members []domain.BackendServer, req domain.Request, mode domain.DistributionMode) (domain.Response, error)
}

// resultMasker is the subset of *masking.Masker the pipeline needs.
type resultMasker interface {
	Mask(columns []string, rows [][]any, tableHint map[string]string) ([][]any, []string)
}

// resultCache is the subset of *resultcache.Cache the pipeline needs.
type resultCache interface {
	BuildOrWait(ctx context.Context, fp string, ttl time.Duration, build resultcache.BuildFunc) (domain.CacheEntry, error)
}

// Pipeline is the request-path orchestrator: Router → PolicyEngine →
// Executor → ResultMasker → ResultCache, with the Executor itself
// handling TimeoutRegistry registration and AuditSink writes internally
// (spec.md §4.4.1 steps 1-2, already owned by executor.Executor).
type Pipeline struct {
	router requestRouter
	policy policyEvaluator
	exec   queryExecutor
	masker resultMasker
	cache  resultCache

	cacheCfg CacheConfig
	log      *slog.Logger
}

// New creates a Pipeline over its collaborators.
func New(r *router.Router, p *policy.PolicyEngine, e *executor.Executor, m *masking.Masker, c *resultcache.Cache, cacheCfg CacheConfig, log *slog.Logger) *Pipeline {
	return &Pipeline{router: r, policy: p, exec: e, masker: m, cache: c, cacheCfg: cacheCfg, log: log}
}

// Execute runs one Request through the full plane and returns the
// (possibly masked, possibly cached) Response (spec.md §2's request flow
// diagram).
func (p *Pipeline) Execute(ctx context.Context, req domain.Request) (domain.Response, error) {
	plan, err := p.router.Route(req)
	if err != nil {
		return domain.Response{}, err
	}

	if err := p.authorize(req); err != nil {
		return domain.Response{}, err
	}

	qType := querytext.Classify(req.QueryText)

	if p.cacheCfg.Enabled && qType == domain.QuerySelect && plan.Kind == router.PlanLocal {
		return p.executeCached(ctx, plan, req, qType)
	}

	resp, err := p.executePlan(ctx, plan, req)
	if err != nil {
		return domain.Response{}, err
	}
	p.maskResponse(&resp)
	return resp, nil
}

// authorize builds an AuthorizationContext per table referenced by the
// query (falling back to a single "*" evaluation for table-less
// statements) and denies the request if any table's evaluation denies —
// the conservative reading of spec.md §4.3 when a query spans several
// resource types.
func (p *Pipeline) authorize(req domain.Request) error {
	if p.policy == nil {
		return nil
	}

	tables := querytext.Tables(req.QueryText)
	if len(tables) == 0 {
		tables = []string{"*"}
	}
	qType := querytext.Classify(req.QueryText)

	for _, table := range tables {
		authCtx := domain.AuthorizationContext{
			User:         req.Principal.Username,
			Role:         req.Principal.Role,
			Action:       string(qType),
			ResourceType: table,
			Tables:       tables,
			ClientIP:     req.Principal.ClientIP,
			QueryText:    req.QueryText,
			QueryType:    string(qType),
		}
		result, err := p.policy.Evaluate(authCtx)
		if err != nil {
			return domainerrors.NewDomainWithCause(domainerrors.CodeInternalError, "policy evaluation failed", err)
		}
		if !result.Allowed {
			msg := result.Message
			if msg == "" {
				msg = "denied by policy " + result.PolicyID.String()
			}
			return domainerrors.NewDomain(domainerrors.CodePolicyDeny, msg)
		}
	}
	return nil
}

// executePlan dispatches a routed plan to the executor, ranking group
// members first for read-any distribution (spec.md §4.2's load-balanced
// selection; write-all/broadcast fan out to every active member and so
// need no ranking).
func (p *Pipeline) executePlan(ctx context.Context, plan router.ExecutionPlan, req domain.Request) (domain.Response, error) {
	switch plan.Kind {
	case router.PlanLocal:
		return p.exec.ExecuteLocal(ctx, plan.Server, req)
	case router.PlanDistributed:
		members := plan.Members
		if plan.Mode == domain.ModeReadAny {
			ranked, err := p.router.SelectBackend(plan.Members, req.Principal.Role)
			if err != nil {
				return domain.Response{}, err
			}
			members = ranked
		}
		return p.exec.ExecuteDistributed(ctx, members, req, plan.Mode)
	default:
		return domain.Response{}, domainerrors.NewDomain(domainerrors.CodeRoutingError, "unknown plan kind")
	}
}

// executeCached wraps executePlan in the ResultCache's build_or_wait,
// fingerprinting on query text, params, target server, and max_rows
// (spec.md §4.7). Only called for SELECTs against a single resolved
// server — distributed/group reads are never cached, since the winning
// backend can vary between calls.
func (p *Pipeline) executeCached(ctx context.Context, plan router.ExecutionPlan, req domain.Request, qType domain.QueryType) (domain.Response, error) {
	fp := resultcache.Fingerprint(req.QueryText, req.Params, plan.Server.Alias, req.Options.MaxRows)

	var built domain.Response
	entry, err := p.cache.BuildOrWait(ctx, fp, p.cacheCfg.TTL, func(ctx context.Context) (domain.CacheEntry, error) {
		resp, err := p.exec.ExecuteLocal(ctx, plan.Server, req)
		if err != nil {
			return domain.CacheEntry{}, err
		}
		if !resp.Success && resp.Error != nil {
			return domain.CacheEntry{}, domainerrors.NewDomain(resp.Error.Code, resp.Error.Message)
		}
		built = resp
		return domain.CacheEntry{
			Fingerprint: fp,
			ServerAlias: plan.Server.Alias,
			Columns:     resp.Columns,
			Rows:        resp.Data,
		}, nil
	})
	if err != nil {
		return domain.Response{}, err
	}

	resp := built
	if resp.Columns == nil && resp.Data == nil {
		// Served from an existing cache entry rather than this call's own
		// build closure: reconstruct the Response shape from the entry.
		resp = domain.Response{
			Success:         true,
			Columns:         entry.Columns,
			Data:            entry.Rows,
			Rowcount:        len(entry.Rows),
			QueryType:       qType,
			ExecutionTimeMs: 0,
		}
	}
	p.maskResponse(&resp)
	return resp, nil
}

// maskResponse applies the ResultMasker over the response's columns and
// rows in place (spec.md §4.6). Distributed responses without row data
// (write-all/broadcast results) pass through unchanged.
func (p *Pipeline) maskResponse(resp *domain.Response) {
	if p.masker == nil || len(resp.Columns) == 0 {
		return
	}
	// No per-column table metadata is available from a raw driver result
	// set; masking rules that match on column name alone still apply via
	// ruleMatchesColumn's empty-table-pattern fallback.
	masked, maskedCols := p.masker.Mask(resp.Columns, resp.Data, nil)
	resp.Data = masked
	if len(maskedCols) > 0 {
		resp.Masked = true
		resp.MaskedColumns = maskedCols
	}
}

// AnomalyAlertLogger adapts *slog.Logger to anomaly.AlertSink for
// deployments that only want alerts logged, not persisted (spec.md §4.8's
// minimum viable alert sink).
type AnomalyAlertLogger struct {
	Log *slog.Logger
}

func (a AnomalyAlertLogger) Raise(_ context.Context, alert anomaly.Alert) error {
	a.Log.Warn("anomaly detected",
		"classifier", alert.Classifier,
		"severity", alert.Severity,
		"score", alert.Score,
		"user", alert.User,
		"audit_row_id", alert.AuditRowID,
	)
	return nil
}
