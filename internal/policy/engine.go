// Package policy implements the PolicyEngine: a rule-based evaluator that
// decides allow/deny for each request (spec.md §4.3). Policies are
// reloaded on a timer and swapped atomically so concurrent evaluations
// never observe a half-updated rule set — the same swap-a-package-level
// atomic idiom the teacher uses for its request-scoped problem base URL
// (internal/transport/http/contract/error.go's atomic.Value), generalized
// here to atomic.Pointer over a whole policy slice.
package policy

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sqlproxy/queryplane/internal/domain"
	domainerrors "github.com/sqlproxy/queryplane/internal/domain/errors"
	"github.com/sqlproxy/queryplane/internal/querytext"
)

// EvalContext is the evaluation-time view of a domain.AuthorizationContext,
// plus a fixed Now so time-based conditions (in_time_window, is_weekend,
// is_business_hours) are evaluated consistently within one Evaluate call.
type EvalContext struct {
	domain.AuthorizationContext
	Now time.Time
}

// Loader fetches the current set of policies, e.g. from Postgres. Reload
// calls it on a timer; a Loader failure keeps the previous snapshot.
type Loader func(ctx context.Context) ([]domain.Policy, error)

// PolicyEngine evaluates requests against an atomically-swapped snapshot
// of policies loaded by a Loader.
type PolicyEngine struct {
	load     Loader
	log      *slog.Logger
	snapshot atomic.Pointer[[]domain.Policy]
}

// New creates a PolicyEngine with an empty snapshot; call Reload (or Run)
// to populate it before serving traffic.
func New(load Loader, log *slog.Logger) *PolicyEngine {
	e := &PolicyEngine{load: load, log: log}
	empty := []domain.Policy{}
	e.snapshot.Store(&empty)
	return e
}

// Reload fetches the current policy set and swaps it in atomically. On
// Loader failure, it logs and keeps serving the previous snapshot
// (spec.md §4.3: "A load failure keeps the previous snapshot and logs").
func (e *PolicyEngine) Reload(ctx context.Context) error {
	policies, err := e.load(ctx)
	if err != nil {
		if e.log != nil {
			e.log.Warn("policy reload failed, keeping previous snapshot", "error", err)
		}
		return err
	}
	sorted := make([]domain.Policy, len(policies))
	copy(sorted, policies)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority > sorted[j].Priority })
	for i := range sorted {
		rules := make([]domain.PolicyRule, len(sorted[i].Rules))
		copy(rules, sorted[i].Rules)
		sort.SliceStable(rules, func(a, b int) bool { return rules[a].Priority > rules[b].Priority })
		sorted[i].Rules = rules
	}
	e.snapshot.Store(&sorted)
	return nil
}

// Run reloads on startup and then every interval until ctx is cancelled.
// Mirrors the ticker-driven goroutine in internal/backendpool.Autoscaler.Run.
func (e *PolicyEngine) Run(ctx context.Context, interval time.Duration) {
	if err := e.Reload(ctx); err != nil && e.log != nil {
		e.log.Error("initial policy load failed", "error", err)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = e.Reload(ctx)
		}
	}
}

// Policies returns the current snapshot (for inspection/testing).
func (e *PolicyEngine) Policies() []domain.Policy {
	p := e.snapshot.Load()
	if p == nil {
		return nil
	}
	return *p
}

// Evaluate implements spec.md §4.3's four-step algorithm: filter policies
// applicable to the resource, rank by priority, find the first matching
// rule, and fall back to deny if nothing matches at all.
func (e *PolicyEngine) Evaluate(authCtx domain.AuthorizationContext) (domain.AuthorizationResult, error) {
	evalCtx := EvalContext{AuthorizationContext: authCtx, Now: time.Now()}
	if evalCtx.Tables == nil && evalCtx.QueryText != "" {
		evalCtx.Tables = querytext.Tables(evalCtx.QueryText)
	}

	policies := e.Policies()
	matched := false

	for _, p := range policies {
		if !p.AppliesTo(authCtx.ResourceType) {
			continue
		}
		matched = true

		for _, rule := range p.Rules {
			if rule.Action != "" && rule.Action != authCtx.Action {
				continue
			}
			if !evaluateConditions(evalCtx, rule) {
				continue
			}
			return domain.AuthorizationResult{
				Allowed:  rule.Effect == domain.EffectAllow,
				PolicyID: p.ID,
				RuleID:   rule.ID,
				Reason:   fmt.Sprintf("matched rule %s in policy %s", rule.ID, p.ID),
			}, nil
		}

		// No rule matched within this applicable policy: fall back to its
		// default effect (spec.md §4.3 step 4).
		return domain.AuthorizationResult{
			Allowed:  p.DefaultEffect == domain.EffectAllow,
			PolicyID: p.ID,
			Reason:   fmt.Sprintf("no rule matched, applying default_effect of policy %s", p.ID),
		}, nil
	}

	if !matched {
		return domain.AuthorizationResult{
			Allowed: false,
			Reason:  "no policy applies to resource_type " + authCtx.ResourceType,
		}, domainerrors.NewDomain(domainerrors.CodePolicyDeny, "no policy applies to resource_type "+authCtx.ResourceType)
	}

	// Unreachable: the loop above always returns once an applicable
	// policy is found. Kept as a defensive fallback.
	return domain.AuthorizationResult{Allowed: false, Reason: "deny by default"}, nil
}

func evaluateConditions(ctx EvalContext, rule domain.PolicyRule) bool {
	if len(rule.Conditions) == 0 {
		return true
	}
	if rule.AllConditionsRequired {
		for _, c := range rule.Conditions {
			if !evaluateCondition(ctx, c) {
				return false
			}
		}
		return true
	}
	for _, c := range rule.Conditions {
		if evaluateCondition(ctx, c) {
			return true
		}
	}
	return false
}

func evaluateCondition(ctx EvalContext, c domain.PolicyCondition) bool {
	if c.IsFunction() {
		fn, ok := LookupCondition(c.Function)
		if !ok {
			return false
		}
		return fn(ctx, c.Params)
	}
	return evaluateFieldCondition(ctx, c)
}

func fieldValue(ctx EvalContext, field string) any {
	switch field {
	case "user":
		return ctx.User
	case "role":
		return ctx.Role
	case "action":
		return ctx.Action
	case "resource_type":
		return ctx.ResourceType
	case "client_ip":
		return ctx.ClientIP
	case "query_text":
		return ctx.QueryText
	case "query_type":
		return ctx.QueryType
	case "tables":
		return ctx.Tables
	case "columns":
		return ctx.Columns
	default:
		return nil
	}
}

func evaluateFieldCondition(ctx EvalContext, c domain.PolicyCondition) bool {
	actual := fieldValue(ctx, c.Field)

	switch c.Operator {
	case domain.OpEq:
		return fmt.Sprint(actual) == fmt.Sprint(c.Value)
	case domain.OpNeq:
		return fmt.Sprint(actual) != fmt.Sprint(c.Value)
	case domain.OpIn:
		return inList(c.Value, actual)
	case domain.OpNotIn:
		return !inList(c.Value, actual)
	case domain.OpContains:
		return strings.Contains(fmt.Sprint(actual), fmt.Sprint(c.Value))
	case domain.OpStartsWith:
		return strings.HasPrefix(fmt.Sprint(actual), fmt.Sprint(c.Value))
	case domain.OpEndsWith:
		return strings.HasSuffix(fmt.Sprint(actual), fmt.Sprint(c.Value))
	case domain.OpRegex:
		return condMatchRegex(ctx, map[string]any{"field": c.Field, "pattern": fmt.Sprint(c.Value)})
	case domain.OpGt, domain.OpGte, domain.OpLt, domain.OpLte:
		return compareNumeric(actual, c.Value, c.Operator)
	default:
		return false
	}
}

func inList(list any, needle any) bool {
	s := fmt.Sprint(needle)
	switch v := list.(type) {
	case []string:
		return contains(v, s)
	case []any:
		for _, e := range v {
			if fmt.Sprint(e) == s {
				return true
			}
		}
	}
	return false
}

func compareNumeric(actual, expected any, op domain.ConditionOperator) bool {
	a, aok := toFloat(actual)
	b, bok := toFloat(expected)
	if !aok || !bok {
		return false
	}
	switch op {
	case domain.OpGt:
		return a > b
	case domain.OpGte:
		return a >= b
	case domain.OpLt:
		return a < b
	case domain.OpLte:
		return a <= b
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
