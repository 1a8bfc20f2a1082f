package policy

import (
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ConditionFunc evaluates a named-function PolicyCondition against an
// AuthorizationContext and its Params. Registered by name in the global
// conditionRegistry (spec.md §9's "named handler registry" redesign,
// grounded on the teacher's closed-enum Role/Action idiom in
// internal/domain/auth/rbac.go: a fixed, named set of behaviors rather
// than open-ended dynamic dispatch).
type ConditionFunc func(ctx EvalContext, params map[string]any) bool

var conditionRegistry = map[string]ConditionFunc{
	"in_time_window":     condInTimeWindow,
	"match_ip_range":     condMatchIPRange,
	"is_weekend":         condIsWeekend,
	"is_business_hours":  condIsBusinessHours,
	"has_role":           condHasRole,
	"table_in_list":      condTableInList,
	"all_tables_in_list": condAllTablesInList,
	"any_table_in_list":  condAnyTableInList,
	"column_in_list":     condColumnInList,
	"has_where_clause":   condHasWhereClause,
	"row_limit_under":    condRowLimitUnder,
	"match_regex":        condMatchRegex,
}

// LookupCondition returns the registered handler for name, or false if no
// such named condition exists.
func LookupCondition(name string) (ConditionFunc, bool) {
	fn, ok := conditionRegistry[name]
	return fn, ok
}

func paramString(params map[string]any, key string) string {
	v, _ := params[key].(string)
	return v
}

func paramStrings(params map[string]any, key string) []string {
	raw, ok := params[key]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func paramInt(params map[string]any, key string, def int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// condInTimeWindow implements `in_time_window(start,end)`, crossing
// midnight correctly when start > end (e.g. 22:00-06:00).
func condInTimeWindow(ctx EvalContext, params map[string]any) bool {
	start, ok1 := parseClock(paramString(params, "start"))
	end, ok2 := parseClock(paramString(params, "end"))
	if !ok1 || !ok2 {
		return false
	}
	now := ctx.Now.Hour()*60 + ctx.Now.Minute()
	if start <= end {
		return now >= start && now <= end
	}
	// crosses midnight
	return now >= start || now <= end
}

func parseClock(s string) (int, bool) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, false
	}
	return h*60 + m, true
}

// condMatchIPRange implements `match_ip_range(ranges[])`: supports "A-B"
// and CIDR notation, comparing as 32-bit integers per spec.md §4.3.
func condMatchIPRange(ctx EvalContext, params map[string]any) bool {
	ip := net.ParseIP(ctx.ClientIP)
	if ip == nil {
		return false
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return false
	}
	target := ipToUint32(ip4)

	for _, r := range paramStrings(params, "ranges") {
		if strings.Contains(r, "/") {
			_, ipnet, err := net.ParseCIDR(r)
			if err == nil && ipnet.Contains(ip) {
				return true
			}
			continue
		}
		bounds := strings.SplitN(r, "-", 2)
		if len(bounds) != 2 {
			continue
		}
		lo := net.ParseIP(strings.TrimSpace(bounds[0]))
		hi := net.ParseIP(strings.TrimSpace(bounds[1]))
		if lo == nil || hi == nil {
			continue
		}
		loU, hiU := ipToUint32(lo.To4()), ipToUint32(hi.To4())
		if target >= loU && target <= hiU {
			return true
		}
	}
	return false
}

func ipToUint32(ip net.IP) uint32 {
	return uint32(ip[0])<<24 | uint32(ip[1])<<16 | uint32(ip[2])<<8 | uint32(ip[3])
}

// condIsWeekend implements `is_weekend()`.
func condIsWeekend(ctx EvalContext, _ map[string]any) bool {
	d := ctx.Now.Weekday()
	return d == time.Saturday || d == time.Sunday
}

// condIsBusinessHours implements
// `is_business_hours(start_hour,end_hour,business_days[])`.
func condIsBusinessHours(ctx EvalContext, params map[string]any) bool {
	startHour := paramInt(params, "start_hour", 9)
	endHour := paramInt(params, "end_hour", 17)

	days := paramStrings(params, "business_days")
	if len(days) == 0 {
		days = []string{"mon", "tue", "wed", "thu", "fri"}
	}
	weekday := strings.ToLower(ctx.Now.Weekday().String()[:3])
	dayOK := false
	for _, d := range days {
		if strings.ToLower(d) == weekday {
			dayOK = true
			break
		}
	}
	if !dayOK {
		return false
	}
	h := ctx.Now.Hour()
	return h >= startHour && h < endHour
}

// condHasRole implements `has_role(roles[])`.
func condHasRole(ctx EvalContext, params map[string]any) bool {
	for _, r := range paramStrings(params, "roles") {
		if strings.EqualFold(r, ctx.Role) {
			return true
		}
	}
	return false
}

func contains(list []string, needle string) bool {
	for _, v := range list {
		if strings.EqualFold(v, needle) {
			return true
		}
	}
	return false
}

// condTableInList implements `table_in_list`: true if any of the
// context's tables is present in the configured list.
func condTableInList(ctx EvalContext, params map[string]any) bool {
	list := paramStrings(params, "tables")
	for _, t := range ctx.Tables {
		if contains(list, t) {
			return true
		}
	}
	return false
}

// condAllTablesInList implements `all_tables_in_list`.
func condAllTablesInList(ctx EvalContext, params map[string]any) bool {
	list := paramStrings(params, "tables")
	if len(ctx.Tables) == 0 {
		return false
	}
	for _, t := range ctx.Tables {
		if !contains(list, t) {
			return false
		}
	}
	return true
}

// condAnyTableInList is an alias of table_in_list kept distinct per
// spec.md §4.3's explicit built-in name (any_table_in_list reads more
// clearly at the policy-authoring layer than reusing table_in_list).
func condAnyTableInList(ctx EvalContext, params map[string]any) bool {
	return condTableInList(ctx, params)
}

// condColumnInList implements `column_in_list`.
func condColumnInList(ctx EvalContext, params map[string]any) bool {
	list := paramStrings(params, "columns")
	for _, c := range ctx.Columns {
		if contains(list, c) {
			return true
		}
	}
	return false
}

var whereClauseRegexp = regexp.MustCompile(`(?i)\bwhere\b`)

// condHasWhereClause implements `has_where_clause(query_text)`
// (SPEC_FULL.md §10 supplement: a precompiled-regex policy condition).
func condHasWhereClause(ctx EvalContext, _ map[string]any) bool {
	return whereClauseRegexp.MatchString(ctx.QueryText)
}

var limitRegexp = regexp.MustCompile(`(?i)\blimit\s+(\d+)`)

// condRowLimitUnder implements `row_limit_under(max)`: true only if the
// query text has an explicit LIMIT clause whose value is under max. A
// query with no LIMIT clause at all does not satisfy this condition —
// policies that want to require a LIMIT should pair this with
// has_where_clause or a deny-by-default rule.
func condRowLimitUnder(ctx EvalContext, params map[string]any) bool {
	max := paramInt(params, "max", 0)
	m := limitRegexp.FindStringSubmatch(ctx.QueryText)
	if m == nil {
		return false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return false
	}
	return n < max
}

// condMatchRegex implements `match_regex(field, pattern)` against the
// field named in params: "query_text" (also the default when field is
// empty), "client_ip" or "user". Any other field name never matches.
func condMatchRegex(ctx EvalContext, params map[string]any) bool {
	field := paramString(params, "field")
	pattern := paramString(params, "pattern")
	if pattern == "" {
		return false
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	switch field {
	case "query_text", "":
		return re.MatchString(ctx.QueryText)
	case "client_ip":
		return re.MatchString(ctx.ClientIP)
	case "user":
		return re.MatchString(ctx.User)
	default:
		return false
	}
}
