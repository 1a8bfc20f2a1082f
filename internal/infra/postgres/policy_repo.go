package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sqlproxy/queryplane/internal/domain"
)

// PolicyRepo loads the policy table behind policy.Loader. Like AuditRepo,
// it is written directly against domain.Querier rather than sqlc-
// generated code (see audit_repo.go's doc comment for why).
type PolicyRepo struct{}

// NewPolicyRepo creates a new PolicyRepo instance.
func NewPolicyRepo() *PolicyRepo {
	return &PolicyRepo{}
}

const listPoliciesSQL = `
SELECT id, resource_type, priority, default_effect, rules
FROM policies
ORDER BY priority DESC`

// policyRuleRow mirrors domain.PolicyRule's shape for JSON (de)serialisation
// of the rules column.
type policyRuleRow struct {
	ID                    string                   `json:"id"`
	Effect                string                   `json:"effect"`
	Priority              int                      `json:"priority"`
	Action                string                   `json:"action,omitempty"`
	Conditions            []policyConditionRow     `json:"conditions,omitempty"`
	AllConditionsRequired bool                     `json:"all_conditions_required"`
}

type policyConditionRow struct {
	Field    string         `json:"field,omitempty"`
	Operator string         `json:"operator,omitempty"`
	Value    any            `json:"value,omitempty"`
	Function string         `json:"function,omitempty"`
	Params   map[string]any `json:"params,omitempty"`
}

// Load implements policy.Loader: it reads every row of the policies table,
// ordered by descending priority, and unmarshals the jsonb rules column
// into domain.PolicyRule slices (spec.md §4.3's rule evaluation order).
func (r *PolicyRepo) Load(ctx context.Context, q domain.Querier) ([]domain.Policy, error) {
	const op = "policyRepo.Load"

	raw, err := q.Query(ctx, listPoliciesSQL)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", op, err)
	}
	rows, ok := raw.(pgx.Rows)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected row type %T", op, raw)
	}
	defer rows.Close()

	var out []domain.Policy
	for rows.Next() {
		var id, resourceType, defaultEffect string
		var priority int
		var rulesJSON []byte
		if err := rows.Scan(&id, &resourceType, &priority, &defaultEffect, &rulesJSON); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}

		var ruleRows []policyRuleRow
		if len(rulesJSON) > 0 {
			if err := json.Unmarshal(rulesJSON, &ruleRows); err != nil {
				return nil, fmt.Errorf("%s: unmarshal rules for policy %s: %w", op, id, err)
			}
		}

		policy := domain.Policy{
			ID:            domain.ID(id),
			ResourceType:  resourceType,
			Priority:      priority,
			DefaultEffect: domain.Effect(defaultEffect),
			Rules:         make([]domain.PolicyRule, 0, len(ruleRows)),
		}
		for _, rr := range ruleRows {
			conditions := make([]domain.PolicyCondition, 0, len(rr.Conditions))
			for _, c := range rr.Conditions {
				conditions = append(conditions, domain.PolicyCondition{
					Field: c.Field, Operator: domain.ConditionOperator(c.Operator), Value: c.Value,
					Function: c.Function, Params: c.Params,
				})
			}
			policy.Rules = append(policy.Rules, domain.PolicyRule{
				ID: domain.ID(rr.ID), Effect: domain.Effect(rr.Effect), Priority: rr.Priority,
				Action: rr.Action, Conditions: conditions, AllConditionsRequired: rr.AllConditionsRequired,
			})
		}
		out = append(out, policy)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}
