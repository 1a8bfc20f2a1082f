package resultcache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Fingerprint computes the cache key from spec.md §4.7: a hash over
// canonical(query) ∥ canonical(params) ∥ server_alias ∥ max_rows.
func Fingerprint(queryText string, params map[string]any, serverAlias string, maxRows int) string {
	h := sha256.New()
	h.Write([]byte(canonicalQuery(queryText)))
	h.Write([]byte{0})
	h.Write([]byte(canonicalParams(params)))
	h.Write([]byte{0})
	h.Write([]byte(serverAlias))
	h.Write([]byte{0})
	fmt.Fprintf(h, "%d", maxRows)
	return hex.EncodeToString(h.Sum(nil))
}

var whitespaceRegexp = regexp.MustCompile(`\s+`)
var numberLiteralRegexp = regexp.MustCompile(`\b\d+(\.\d+)?\b`)
var stringLiteralRegexp = regexp.MustCompile(`'(?:[^']|'')*'`)

// canonicalQuery lowercases keywords, collapses whitespace, and
// normalises literal placeholders so that two queries differing only by
// literal values or formatting share a fingerprint (spec.md §4.7).
func canonicalQuery(q string) string {
	q = strings.ToLower(strings.TrimSpace(q))
	q = whitespaceRegexp.ReplaceAllString(q, " ")
	q = stringLiteralRegexp.ReplaceAllString(q, "?")
	q = numberLiteralRegexp.ReplaceAllString(q, "?")
	return q
}

// canonicalParams produces a stable, order-independent representation of
// the bound parameter map.
func canonicalParams(params map[string]any) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		fmt.Fprintf(&b, "%v", params[k])
		b.WriteByte(';')
	}
	return b.String()
}
