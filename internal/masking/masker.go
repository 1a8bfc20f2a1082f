// Package masking implements the ResultMasker: it transforms result rows
// by applying the highest-priority matching MaskingRule per column, then
// a secondary PII-detector pass over any remaining string cells
// (spec.md §4.6).
package masking

import (
	"regexp"
	"sync"

	"github.com/sqlproxy/queryplane/internal/domain"
)

// Masker holds the current MaskingRule set plus the process-wide state
// strategies need for deterministic tokenize/pseudonymize output.
type Masker struct {
	mu        sync.RWMutex
	rules     []domain.MaskingRule
	compiled  []compiledRule
	detectors []detector
	state     *maskState
}

type compiledRule struct {
	rule   domain.MaskingRule
	table  *regexp.Regexp
	column *regexp.Regexp
}

// New creates a Masker with no rules loaded; call SetRules before use.
func New() *Masker {
	return &Masker{
		detectors: defaultDetectors,
		state:     newMaskState(),
	}
}

// RegisterCustomHandler registers a CUSTOM-strategy handler by name, for
// MaskingRules whose Options["handler"] names it.
func (m *Masker) RegisterCustomHandler(name string, fn CustomHandler) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	m.state.customFuncs[name] = fn
}

// SetRules compiles and swaps in a new rule set, sorted by descending
// priority. Invalid rules (bad regex, failed domain.Validate) are skipped
// and logged by the caller via the returned error slice length check —
// SetRules itself never panics on bad input.
func (m *Masker) SetRules(rules []domain.MaskingRule) []error {
	compiled := make([]compiledRule, 0, len(rules))
	var errs []error

	for _, r := range rules {
		if err := r.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		cr := compiledRule{rule: r}
		if r.TableRegex != "" {
			re, err := regexp.Compile(r.TableRegex)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			cr.table = re
		}
		if r.ColumnRegex != "" {
			re, err := regexp.Compile(r.ColumnRegex)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			cr.column = re
		}
		compiled = append(compiled, cr)
	}

	m.mu.Lock()
	m.rules = rules
	m.compiled = compiled
	m.mu.Unlock()

	return errs
}

// Mask applies masking rules and the PII secondary pass to rows, keyed by
// columns and an optional per-column table hint. It returns the (possibly
// identical, if nothing needed masking) rows and the list of columns that
// were actually masked.
func (m *Masker) Mask(columns []string, rows [][]any, tableHint map[string]string) ([][]any, []string) {
	m.mu.RLock()
	compiled := m.compiled
	m.mu.RUnlock()

	colRule := make([]*compiledRule, len(columns))
	var maskedColumns []string

	for i, col := range columns {
		var best *compiledRule
		for j := range compiled {
			cr := &compiled[j]
			if !ruleMatchesColumn(cr, col, tableHint[col]) {
				continue
			}
			if best == nil || cr.rule.Priority > best.rule.Priority {
				best = cr
			}
		}
		if best != nil {
			colRule[i] = best
			maskedColumns = append(maskedColumns, col)
		}
	}

	if len(maskedColumns) == 0 && !hasStringCells(rows) {
		return rows, nil
	}

	out := make([][]any, len(rows))
	for ri, row := range rows {
		maskedRow := make([]any, len(row))
		for ci, cell := range row {
			if ci >= len(colRule) {
				maskedRow[ci] = cell
				continue
			}
			if colRule[ci] != nil {
				maskedRow[ci] = m.applyStrategy(cell, colRule[ci].rule)
				continue
			}
			if s, ok := cell.(string); ok {
				if masked, found := scanAndMaskPII(s, m.detectors); found {
					maskedRow[ci] = masked
					maskedColumns = appendIfMissing(maskedColumns, columns[ci])
					continue
				}
			}
			maskedRow[ci] = cell
		}
		out[ri] = maskedRow
	}
	return out, maskedColumns
}

func (m *Masker) applyStrategy(cell any, rule domain.MaskingRule) any {
	if rule.MaskingType == domain.MaskCustom {
		name, _ := rule.Options["handler"].(string)
		m.state.mu.Lock()
		fn, ok := m.state.customFuncs[name]
		m.state.mu.Unlock()
		if ok {
			return fn(cell, rule)
		}
		return redactedPlaceholder
	}
	fn, ok := strategyRegistry[rule.MaskingType]
	if !ok {
		return redactedPlaceholder
	}
	return fn(cell, rule, m.state)
}

func ruleMatchesColumn(cr *compiledRule, column, table string) bool {
	if cr.table != nil && table != "" && !cr.table.MatchString(table) {
		return false
	}
	if cr.column != nil && !cr.column.MatchString(column) {
		return false
	}
	// A rule with only a table pattern (no column pattern) matches every
	// column of that table.
	return cr.table != nil || cr.column != nil
}

func hasStringCells(rows [][]any) bool {
	for _, row := range rows {
		for _, cell := range row {
			if _, ok := cell.(string); ok {
				return true
			}
		}
	}
	return false
}

func appendIfMissing(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
