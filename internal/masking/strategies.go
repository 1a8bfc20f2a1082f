package masking

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"

	"github.com/sqlproxy/queryplane/internal/domain"
)

// StrategyFunc applies one MaskingType to a single cell value. state
// carries the process-wide token/pseudonym maps so TOKENIZE and
// PSEUDONYMIZE stay deterministic within a process (spec.md §4.6's
// determinism requirement) without threading them through every call.
type StrategyFunc func(value any, rule domain.MaskingRule, state *maskState) any

// strategyRegistry mirrors the PolicyEngine's condition-function registry
// (DESIGN.md: "same named-handler pattern") — one named entry per
// domain.MaskingType.
var strategyRegistry = map[domain.MaskingType]StrategyFunc{
	domain.MaskFull:             strategyFull,
	domain.MaskPartial:          strategyPartial,
	domain.MaskHash:             strategyHash,
	domain.MaskTokenize:         strategyTokenize,
	domain.MaskPseudonymize:     strategyPseudonymize,
	domain.MaskGeneralize:       strategyGeneralize,
	domain.MaskFormatPreserving: strategyFormatPreserving,
	domain.MaskNullify:          strategyNullify,
	domain.MaskRedact:           strategyRedact,
}

// CustomHandler is a user-registered function for the CUSTOM strategy,
// looked up by the rule's Options["handler"] name.
type CustomHandler func(value any, rule domain.MaskingRule) any

// maskState holds the process-wide stable maps TOKENIZE and PSEUDONYMIZE
// need for determinism, plus any registered CUSTOM handlers.
type maskState struct {
	mu          sync.Mutex
	tokens      map[string]string
	pseudonyms  map[string]string
	customFuncs map[string]CustomHandler
	rng         *rand.Rand
}

func newMaskState() *maskState {
	return &maskState{
		tokens:      make(map[string]string),
		pseudonyms:  make(map[string]string),
		customFuncs: make(map[string]CustomHandler),
		rng:         rand.New(rand.NewSource(1)),
	}
}

func cellString(value any) (string, bool) {
	s, ok := value.(string)
	return s, ok
}

func strategyFull(value any, rule domain.MaskingRule, _ *maskState) any {
	s, ok := cellString(value)
	if !ok {
		return redactedPlaceholder
	}
	if replacement, ok := rule.Options["replacement"].(string); ok {
		return replacement
	}
	maskChar := "*"
	if c, ok := rule.Options["mask_char"].(string); ok && c != "" {
		maskChar = c
	}
	return strings.Repeat(maskChar, len([]rune(s)))
}

func strategyPartial(value any, rule domain.MaskingRule, _ *maskState) any {
	s, ok := cellString(value)
	if !ok {
		return redactedPlaceholder
	}
	runes := []rune(s)
	start := optInt(rule.Options, "start_chars", 1)
	end := optInt(rule.Options, "end_chars", 1)
	if start+end >= len(runes) {
		return s
	}
	maskChar := "*"
	if c, ok := rule.Options["mask_char"].(string); ok && c != "" {
		maskChar = c
	}
	middle := strings.Repeat(maskChar, len(runes)-start-end)
	return string(runes[:start]) + middle + string(runes[len(runes)-end:])
}

func strategyHash(value any, rule domain.MaskingRule, _ *maskState) any {
	s, ok := cellString(value)
	if !ok {
		s = fmt.Sprint(value)
	}
	salt, _ := rule.Options["salt"].(string)
	sum := sha256.Sum256([]byte(salt + s))
	h := hex.EncodeToString(sum[:])
	if prefix, ok := rule.Options["prefix"].(string); ok && prefix != "" {
		return prefix + h
	}
	return h
}

// strategyTokenize returns a stable token for value from a process-wide
// map (spec.md §4.6: "tokens are not reversible cross-process").
func strategyTokenize(value any, rule domain.MaskingRule, state *maskState) any {
	s, ok := cellString(value)
	if !ok {
		s = fmt.Sprint(value)
	}
	key := string(rule.ID) + ":" + s

	state.mu.Lock()
	defer state.mu.Unlock()
	if tok, ok := state.tokens[key]; ok {
		return tok
	}
	tok := fmt.Sprintf("tok_%08x", len(state.tokens)+1)
	state.tokens[key] = tok
	return tok
}

// strategyPseudonymize produces a category-aware stable replacement per
// spec.md §4.6 ("name -> common name bucket, email -> user<hash>@example.com").
func strategyPseudonymize(value any, rule domain.MaskingRule, state *maskState) any {
	s, ok := cellString(value)
	if !ok {
		s = fmt.Sprint(value)
	}
	key := string(rule.DataCategory) + ":" + s

	state.mu.Lock()
	if cached, ok := state.pseudonyms[key]; ok {
		state.mu.Unlock()
		return cached
	}
	state.mu.Unlock()

	sum := sha256.Sum256([]byte(s))
	hash := hex.EncodeToString(sum[:])[:8]

	var out string
	switch rule.DataCategory {
	case domain.CategoryEmail:
		out = "user" + hash + "@example.com"
	case domain.CategoryName:
		out = "Person " + hash
	case domain.CategoryPhone:
		out = "555" + hash[:7]
	default:
		out = "anon_" + hash
	}

	state.mu.Lock()
	state.pseudonyms[key] = out
	state.mu.Unlock()
	return out
}

// strategyGeneralize buckets numeric categories (age/income) or dates per
// spec.md §4.6's "age/date/zip/income bucketing per options".
func strategyGeneralize(value any, rule domain.MaskingRule, _ *maskState) any {
	bucket := optInt(rule.Options, "bucket_size", 10)
	switch rule.DataCategory {
	case domain.CategoryAge, domain.CategoryIncome:
		n, ok := toInt(value)
		if !ok {
			return redactedPlaceholder
		}
		lo := (n / bucket) * bucket
		return fmt.Sprintf("%d-%d", lo, lo+bucket-1)
	case domain.CategoryZip:
		s, ok := cellString(value)
		if !ok || len(s) < 3 {
			return redactedPlaceholder
		}
		return s[:3] + "XX"
	case domain.CategoryDate:
		s, ok := cellString(value)
		if !ok || len(s) < 4 {
			return redactedPlaceholder
		}
		return s[:4] // year only
	default:
		return redactedPlaceholder
	}
}

// strategyFormatPreserving substitutes per character class (digits ->
// random digit, letters -> mask char preserving case, punctuation kept)
// per spec.md §4.6.
func strategyFormatPreserving(value any, rule domain.MaskingRule, state *maskState) any {
	s, ok := cellString(value)
	if !ok {
		return redactedPlaceholder
	}
	maskChar := byte('X')
	if c, ok := rule.Options["mask_char"].(string); ok && len(c) == 1 {
		maskChar = c[0]
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			out[i] = byte('0' + state.rng.Intn(10))
		case c >= 'a' && c <= 'z':
			out[i] = lowerByte(maskChar)
		case c >= 'A' && c <= 'Z':
			out[i] = upperByte(maskChar)
		default:
			out[i] = c
		}
	}
	return string(out)
}

func lowerByte(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}

func upperByte(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - ('a' - 'A')
	}
	return c
}

func strategyNullify(_ any, _ domain.MaskingRule, _ *maskState) any {
	return nil
}

const redactedPlaceholder = "[REDACTED]"

func strategyRedact(_ any, _ domain.MaskingRule, _ *maskState) any {
	return redactedPlaceholder
}

func optInt(options map[string]any, key string, def int) int {
	switch v := options[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

func toInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	default:
		return 0, false
	}
}
