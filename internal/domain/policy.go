package domain

import "errors"

// Effect is the outcome of a matched PolicyRule.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// IsValid reports whether e is a recognised effect.
func (e Effect) IsValid() bool {
	return e == EffectAllow || e == EffectDeny
}

// ConditionOperator enumerates the field-comparison operators a
// PolicyCondition may use. Named-function conditions (has_role,
// in_time_window, ...) don't use an operator — Field/Operator are
// empty and Function is set instead.
type ConditionOperator string

const (
	OpEq         ConditionOperator = "eq"
	OpNeq        ConditionOperator = "neq"
	OpIn         ConditionOperator = "in"
	OpNotIn      ConditionOperator = "not_in"
	OpContains   ConditionOperator = "contains"
	OpStartsWith ConditionOperator = "starts_with"
	OpEndsWith   ConditionOperator = "ends_with"
	OpRegex      ConditionOperator = "regex"
	OpGt         ConditionOperator = "gt"
	OpGte        ConditionOperator = "gte"
	OpLt         ConditionOperator = "lt"
	OpLte        ConditionOperator = "lte"
)

// PolicyCondition is either a field comparison (Operator set) or a named
// function call (Function set) with Params. Exactly one of the two forms
// is used per condition.
type PolicyCondition struct {
	// Field comparison form.
	Field    string
	Operator ConditionOperator
	Value    any

	// Named-function form, e.g. Function="in_time_window",
	// Params={"start":"09:00","end":"17:00"}.
	Function string
	Params   map[string]any
}

// IsFunction reports whether this condition is the named-function form.
func (c PolicyCondition) IsFunction() bool {
	return c.Function != ""
}

// PolicyRule is one allow/deny rule within a Policy.
type PolicyRule struct {
	ID       ID
	Effect   Effect
	Priority int

	// Action, when non-empty, restricts this rule to a specific action
	// (spec.md §4.3 step 3: "check action applicability").
	Action string

	Conditions        []PolicyCondition
	AllConditionsRequired bool
}

// Validate checks structural invariants of a rule.
func (r PolicyRule) Validate() error {
	if !r.Effect.IsValid() {
		return ErrPolicyEffectInvalid
	}
	for _, c := range r.Conditions {
		if c.IsFunction() {
			continue
		}
		if c.Field == "" {
			return ErrPolicyConditionInvalid
		}
	}
	return nil
}

// Policy is an ordered set of PolicyRules for one resource type.
type Policy struct {
	ID           ID
	ResourceType string // table name, "*", or a logical resource category
	Priority     int
	DefaultEffect Effect
	Rules        []PolicyRule
}

// Validate checks structural invariants of a policy and all its rules.
func (p Policy) Validate() error {
	if p.ResourceType == "" {
		return ErrPolicyResourceTypeRequired
	}
	if !p.DefaultEffect.IsValid() {
		return ErrPolicyEffectInvalid
	}
	for _, r := range p.Rules {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// AppliesTo reports whether this policy governs the given resource type.
// A Policy with ResourceType "*" applies to every resource.
func (p Policy) AppliesTo(resourceType string) bool {
	return p.ResourceType == "*" || p.ResourceType == resourceType
}

// AuthorizationContext is the immutable input to one PolicyEngine
// evaluation. It is constructed per request and discarded after the
// decision (spec.md §3).
type AuthorizationContext struct {
	User         string
	Role         string
	Action       string
	ResourceType string
	Tables       []string
	Columns      []string
	ClientIP     string
	QueryText    string
	QueryType    string
}

// AuthorizationResult is the outcome of PolicyEngine.Evaluate.
type AuthorizationResult struct {
	Allowed  bool
	PolicyID ID
	RuleID   ID
	Message  string
	Reason   string
}

// Policy/rule validation errors.
var (
	ErrPolicyEffectInvalid        = errors.New("policy: effect must be allow or deny")
	ErrPolicyConditionInvalid     = errors.New("policy: field condition requires a non-empty field")
	ErrPolicyResourceTypeRequired = errors.New("policy: resource_type is required")
)
