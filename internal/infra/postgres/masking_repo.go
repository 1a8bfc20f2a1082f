package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sqlproxy/queryplane/internal/domain"
)

// MaskingRuleRepo loads the hot-reloadable masking rule set behind
// masking.Masker.SetRules, written directly against domain.Querier for the
// same reason as AuditRepo and PolicyRepo.
type MaskingRuleRepo struct{}

// NewMaskingRuleRepo creates a new MaskingRuleRepo instance.
func NewMaskingRuleRepo() *MaskingRuleRepo {
	return &MaskingRuleRepo{}
}

const listMaskingRulesSQL = `
SELECT id, table_regex, column_regex, masking_type, data_category, priority, options
FROM masking_rules
ORDER BY priority DESC`

// Load reads every masking rule, in the order masking.Masker itself expects
// (descending priority is re-asserted by SetRules, but loading pre-sorted
// keeps a plain table scan cheap to reason about).
func (r *MaskingRuleRepo) Load(ctx context.Context, q domain.Querier) ([]domain.MaskingRule, error) {
	const op = "maskingRuleRepo.Load"

	raw, err := q.Query(ctx, listMaskingRulesSQL)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", op, err)
	}
	rows, ok := raw.(pgx.Rows)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected row type %T", op, raw)
	}
	defer rows.Close()

	var out []domain.MaskingRule
	for rows.Next() {
		var id, tableRegex, columnRegex, maskingType, dataCategory string
		var priority int
		var optionsJSON []byte
		if err := rows.Scan(&id, &tableRegex, &columnRegex, &maskingType, &dataCategory, &priority, &optionsJSON); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}

		var options map[string]any
		if len(optionsJSON) > 0 {
			if err := json.Unmarshal(optionsJSON, &options); err != nil {
				return nil, fmt.Errorf("%s: unmarshal options for rule %s: %w", op, id, err)
			}
		}

		out = append(out, domain.MaskingRule{
			ID: domain.ID(id), TableRegex: tableRegex, ColumnRegex: columnRegex,
			MaskingType: domain.MaskingType(maskingType), DataCategory: domain.DataCategory(dataCategory),
			Priority: priority, Options: options,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}
