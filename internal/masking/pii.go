package masking

import "regexp"

// detector is one PII pattern scanned over string cells that had no
// column-level MaskingRule applied (spec.md §4.6 step 4: "a secondary
// pass over string cells runs PII detectors ... even when no column rule
// applied"). This generalizes the teacher's
// internal/shared/redact.PIIRedactor field-name matching
// (internal/shared/redact/redactor.go) from JSON map keys to free-text
// cell values: instead of matching the PII category against a column
// name, each detector's regex matches the category directly inside the
// cell's content.
type detector struct {
	name    string
	pattern *regexp.Regexp
}

// defaultDetectors is the default set named in spec.md §4.6: "credit
// card, SSN, email, phone, IP, date-of-birth, etc.".
var defaultDetectors = []detector{
	{name: "credit_card", pattern: regexp.MustCompile(`\b(?:\d[ -]*?){13,16}\b`)},
	{name: "ssn", pattern: regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{name: "email", pattern: regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
	{name: "phone", pattern: regexp.MustCompile(`\b(?:\+?1[-. ]?)?\(?\d{3}\)?[-. ]?\d{3}[-. ]?\d{4}\b`)},
	{name: "ipv4", pattern: regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)},
	{name: "date_of_birth", pattern: regexp.MustCompile(`\b(?:19|20)\d{2}-\d{2}-\d{2}\b`)},
}

// scanAndMaskPII replaces every detector match in s with [REDACTED],
// returning the (possibly unchanged) string and whether any match was
// found. Detector order matters for overlapping matches (e.g. a date-like
// SSN vs a phone number) — first match wins per position via sequential
// ReplaceAll passes, which is acceptable since detectors target disjoint
// shapes in practice.
func scanAndMaskPII(s string, detectors []detector) (string, bool) {
	matched := false
	out := s
	for _, d := range detectors {
		if d.pattern.MatchString(out) {
			matched = true
			out = d.pattern.ReplaceAllString(out, redactedPlaceholder)
		}
	}
	return out, matched
}
