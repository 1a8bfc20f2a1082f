package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCondInTimeWindow_SameDay(t *testing.T) {
	ctx := EvalContext{Now: time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)}
	assert.True(t, condInTimeWindow(ctx, map[string]any{"start": "09:00", "end": "17:00"}))
	assert.False(t, condInTimeWindow(ctx, map[string]any{"start": "11:00", "end": "17:00"}))
}

func TestCondInTimeWindow_CrossesMidnight(t *testing.T) {
	ctx := EvalContext{Now: time.Date(2026, 7, 31, 23, 30, 0, 0, time.UTC)}
	assert.True(t, condInTimeWindow(ctx, map[string]any{"start": "22:00", "end": "06:00"}))

	ctx.Now = time.Date(2026, 7, 31, 3, 0, 0, 0, time.UTC)
	assert.True(t, condInTimeWindow(ctx, map[string]any{"start": "22:00", "end": "06:00"}))

	ctx.Now = time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	assert.False(t, condInTimeWindow(ctx, map[string]any{"start": "22:00", "end": "06:00"}))
}

func TestCondMatchIPRange_CIDR(t *testing.T) {
	ctx := EvalContext{}
	ctx.ClientIP = "10.0.0.5"
	assert.True(t, condMatchIPRange(ctx, map[string]any{"ranges": []string{"10.0.0.0/24"}}))
	assert.False(t, condMatchIPRange(ctx, map[string]any{"ranges": []string{"10.1.0.0/24"}}))
}

func TestCondMatchIPRange_Bounds(t *testing.T) {
	ctx := EvalContext{}
	ctx.ClientIP = "192.168.1.50"
	assert.True(t, condMatchIPRange(ctx, map[string]any{"ranges": []string{"192.168.1.10-192.168.1.100"}}))
	assert.False(t, condMatchIPRange(ctx, map[string]any{"ranges": []string{"192.168.2.10-192.168.2.100"}}))
}

func TestCondIsWeekend(t *testing.T) {
	ctx := EvalContext{Now: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)} // Saturday
	assert.True(t, condIsWeekend(ctx, nil))

	ctx.Now = time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC) // Monday
	assert.False(t, condIsWeekend(ctx, nil))
}

func TestCondIsBusinessHours(t *testing.T) {
	ctx := EvalContext{Now: time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC)} // Monday 10:00
	assert.True(t, condIsBusinessHours(ctx, nil))

	ctx.Now = time.Date(2026, 8, 3, 20, 0, 0, 0, time.UTC)
	assert.False(t, condIsBusinessHours(ctx, nil))

	ctx.Now = time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC) // Saturday
	assert.False(t, condIsBusinessHours(ctx, nil))
}

func TestCondHasRole(t *testing.T) {
	ctx := EvalContext{}
	ctx.Role = "analyst"
	assert.True(t, condHasRole(ctx, map[string]any{"roles": []string{"admin", "analyst"}}))
	assert.False(t, condHasRole(ctx, map[string]any{"roles": []string{"admin"}}))
}

func TestCondTableInList(t *testing.T) {
	ctx := EvalContext{}
	ctx.Tables = []string{"users", "orders"}
	assert.True(t, condTableInList(ctx, map[string]any{"tables": []string{"orders"}}))
	assert.False(t, condTableInList(ctx, map[string]any{"tables": []string{"invoices"}}))
}

func TestCondAllTablesInList(t *testing.T) {
	ctx := EvalContext{}
	ctx.Tables = []string{"users", "orders"}
	assert.True(t, condAllTablesInList(ctx, map[string]any{"tables": []string{"users", "orders", "invoices"}}))
	assert.False(t, condAllTablesInList(ctx, map[string]any{"tables": []string{"users"}}))
}

func TestCondHasWhereClause(t *testing.T) {
	ctx := EvalContext{}
	ctx.QueryText = "SELECT * FROM users WHERE id = 1"
	assert.True(t, condHasWhereClause(ctx, nil))

	ctx.QueryText = "SELECT * FROM users"
	assert.False(t, condHasWhereClause(ctx, nil))
}

func TestCondRowLimitUnder(t *testing.T) {
	ctx := EvalContext{}
	ctx.QueryText = "SELECT * FROM users LIMIT 50"
	assert.True(t, condRowLimitUnder(ctx, map[string]any{"max": 100}))
	assert.False(t, condRowLimitUnder(ctx, map[string]any{"max": 10}))

	ctx.QueryText = "SELECT * FROM users"
	assert.False(t, condRowLimitUnder(ctx, map[string]any{"max": 100}))
}

func TestCondMatchRegex(t *testing.T) {
	ctx := EvalContext{}
	ctx.QueryText = "SELECT * FROM secrets"
	assert.True(t, condMatchRegex(ctx, map[string]any{"field": "query_text", "pattern": "(?i)secrets"}))
	assert.False(t, condMatchRegex(ctx, map[string]any{"field": "query_text", "pattern": "(?i)invoices"}))
}
