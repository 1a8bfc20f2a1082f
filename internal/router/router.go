package router

import (
	"context"
	"errors"
	"time"

	"github.com/sqlproxy/queryplane/internal/backendpool"
	"github.com/sqlproxy/queryplane/internal/domain"
	domainerrors "github.com/sqlproxy/queryplane/internal/domain/errors"
	"github.com/sqlproxy/queryplane/internal/infra/resilience"
	"github.com/sqlproxy/queryplane/internal/querytext"
)

// MaxIdempotentRetries is K from spec.md §4.2: the router may retry an
// idempotent query on the next best backend up to this many times.
const MaxIdempotentRetries = 2

// PlanKind distinguishes a single-backend plan from a scatter/gather plan.
type PlanKind string

const (
	PlanLocal       PlanKind = "local"
	PlanDistributed PlanKind = "distributed"
)

// ExecutionPlan is the router's decision for one request (spec.md §4.2).
type ExecutionPlan struct {
	Kind PlanKind

	// Populated when Kind == PlanLocal.
	Server domain.BackendServer

	// Populated when Kind == PlanDistributed.
	Group   string
	Mode    domain.DistributionMode
	Members []domain.BackendServer
}

// Router resolves a Request to an ExecutionPlan and ranks group members for
// load-balanced selection.
type Router struct {
	registry *backendpool.Registry
	retrier  resilience.Retrier
}

// New creates a Router over registry. retrier is stored on the Router but
// not called: AcquireWithFailover moves to the next-best backend with its
// own bounded loop.
func New(registry *backendpool.Registry, retrier resilience.Retrier) *Router {
	return &Router{registry: registry, retrier: retrier}
}

var (
	// ErrNoServerAlias supplies the message of the CodeRoutingError that
	// Route returns when a request names neither a server alias nor a
	// server group; Route does not return this value itself.
	ErrNoServerAlias = errors.New("router: request has no server_alias or server_group")
	// ErrRoleNotAllowed names the case of a role outside the target
	// server's allowed_roles set. Route reports that case as a
	// CodeRoutingError and does not return this value.
	ErrRoleNotAllowed = errors.New("router: role not permitted on target server")
	// ErrNoHealthyBackend is returned by SelectBackend when no member is
	// active and permitted for the role. Route reports an empty group as a
	// CodeRoutingError instead.
	ErrNoHealthyBackend = errors.New("router: no active backend available in group")
)

// Route resolves req to an ExecutionPlan (spec.md §4.2 step 1-3).
func (r *Router) Route(req domain.Request) (ExecutionPlan, error) {
	switch {
	case req.ServerAlias != "":
		server, ok := r.registry.Server(req.ServerAlias)
		if !ok {
			return ExecutionPlan{}, domainerrors.NewDomain(domainerrors.CodeRoutingError, "unknown server_alias: "+req.ServerAlias)
		}
		if !server.HasRole(req.Principal.Role) {
			return ExecutionPlan{}, domainerrors.NewDomain(domainerrors.CodeRoutingError, "role not permitted on "+req.ServerAlias)
		}
		return ExecutionPlan{Kind: PlanLocal, Server: server}, nil

	case req.ServerGroup != "":
		members := r.registry.GroupMembers(req.ServerGroup)
		if len(members) == 0 {
			return ExecutionPlan{}, domainerrors.NewDomain(domainerrors.CodeRoutingError, "no active backend in group "+req.ServerGroup)
		}
		qType := querytext.Classify(req.QueryText)
		mode := domain.ModeReadAny
		if qType.IsWrite() {
			mode = domain.ModeWriteAll
		}
		return ExecutionPlan{Kind: PlanDistributed, Group: req.ServerGroup, Mode: mode, Members: members}, nil
	}

	return ExecutionPlan{}, domainerrors.NewDomain(domainerrors.CodeRoutingError, ErrNoServerAlias.Error())
}

// SelectBackend ranks a group's active members by score and returns them
// best-first (spec.md §4.2's "score = 10*in_use + 5*error_rate + recency").
func (r *Router) SelectBackend(members []domain.BackendServer, role string) ([]domain.BackendServer, error) {
	now := time.Now()
	var eligible []candidate
	byAlias := make(map[string]domain.BackendServer, len(members))

	for i, m := range members {
		if !m.IsActive || !m.HasRole(role) {
			continue
		}
		byAlias[m.Alias] = m
		eligible = append(eligible, candidate{
			alias:  m.Alias,
			weight: m.Weight,
			order:  i,
			stats:  r.registry.Stats(m.Alias),
		})
	}
	if len(eligible) == 0 {
		return nil, ErrNoHealthyBackend
	}

	ranked := rank(eligible, now)
	out := make([]domain.BackendServer, len(ranked))
	for i, c := range ranked {
		out[i] = byAlias[c.alias]
	}
	return out, nil
}

// AcquireWithFailover acquires a connection for the best-ranked member of
// members, retrying on the next-best candidate up to MaxIdempotentRetries
// times if idempotent is true and acquire fails (spec.md §4.2's failure
// semantics). Non-idempotent statements fail on the first error.
func (r *Router) AcquireWithFailover(ctx context.Context, members []domain.BackendServer, role string, idempotent bool) (*backendpool.Conn, domain.BackendServer, error) {
	ranked, err := r.SelectBackend(members, role)
	if err != nil {
		return nil, domain.BackendServer{}, err
	}

	maxAttempts := 1
	if idempotent {
		maxAttempts = MaxIdempotentRetries + 1
	}
	if maxAttempts > len(ranked) {
		maxAttempts = len(ranked)
	}

	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		conn, err := r.registry.Acquire(ctx, ranked[i].Alias)
		if err == nil {
			return conn, ranked[i], nil
		}
		lastErr = err
	}
	return nil, domain.BackendServer{}, domainerrors.NewDomainWithCause(domainerrors.CodePoolUnhealthy, "no backend could be acquired", lastErr)
}
