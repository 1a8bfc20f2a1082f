// Package querytext provides the single query-classification helper shared
// by the router, the executor (audit row and response) and the request
// pipeline (cache eligibility and policy action) (SPEC_FULL.md §10:
// "a single classification used everywhere" rather than each component
// re-deriving it from the raw SQL text).
package querytext

import (
	"regexp"
	"strings"

	"github.com/sqlproxy/queryplane/internal/domain"
)

// Classify returns the domain.QueryType for queryText by inspecting its
// leading keyword, skipping leading whitespace and SQL comments.
func Classify(queryText string) domain.QueryType {
	q := stripLeadingComments(queryText)
	word := leadingWord(q)

	switch word {
	case "SELECT", "WITH":
		return domain.QuerySelect
	case "INSERT":
		return domain.QueryInsert
	case "UPDATE":
		return domain.QueryUpdate
	case "DELETE":
		return domain.QueryDelete
	case "CREATE", "ALTER", "DROP", "TRUNCATE":
		return domain.QueryDDL
	default:
		return domain.QueryOther
	}
}

func stripLeadingComments(q string) string {
	for {
		q = strings.TrimLeft(q, " \t\r\n")
		switch {
		case strings.HasPrefix(q, "--"):
			if idx := strings.IndexByte(q, '\n'); idx >= 0 {
				q = q[idx+1:]
				continue
			}
			return ""
		case strings.HasPrefix(q, "/*"):
			if idx := strings.Index(q, "*/"); idx >= 0 {
				q = q[idx+2:]
				continue
			}
			return ""
		}
		return q
	}
}

func leadingWord(q string) string {
	i := 0
	for i < len(q) {
		c := q[i]
		isLetter := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
		if !isLetter {
			break
		}
		i++
	}
	return strings.ToUpper(q[:i])
}

var wordRegexp = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// Tables extracts a best-effort list of table names referenced after FROM,
// JOIN, INTO, or UPDATE keywords. It is intentionally conservative — used
// by the policy engine and the request pipeline to scope policy rules, not to parse SQL
// correctly in the general case (no subquery/alias resolution).
func Tables(queryText string) []string {
	tokens := wordRegexp.FindAllString(queryText, -1)
	seen := make(map[string]struct{})
	var out []string
	for i, tok := range tokens {
		upper := strings.ToUpper(tok)
		if upper != "FROM" && upper != "JOIN" && upper != "INTO" && upper != "UPDATE" {
			continue
		}
		if i+1 >= len(tokens) {
			continue
		}
		next := tokens[i+1]
		if strings.EqualFold(next, "SELECT") {
			continue
		}
		name := strings.ToLower(next)
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
