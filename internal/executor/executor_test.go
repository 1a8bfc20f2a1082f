package executor

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlproxy/queryplane/internal/domain"
)

// fakeQuerier is a Func-field mock of domain.Querier, matching the
// teacher's MockRepository style (internal/usecase/note/usecase_test.go).
type fakeQuerier struct {
	ExecFunc  func(ctx context.Context, query string, args ...any) (any, error)
	QueryFunc func(ctx context.Context, query string, args ...any) (any, error)
}

func (f *fakeQuerier) Exec(ctx context.Context, query string, args ...any) (any, error) {
	if f.ExecFunc != nil {
		return f.ExecFunc(ctx, query, args...)
	}
	return nil, nil
}

func (f *fakeQuerier) Query(ctx context.Context, query string, args ...any) (any, error) {
	if f.QueryFunc != nil {
		return f.QueryFunc(ctx, query, args...)
	}
	return nil, nil
}

func (f *fakeQuerier) QueryRow(ctx context.Context, query string, args ...any) any {
	return nil
}

func TestQueryHash_IsStableAndCaseInsensitive(t *testing.T) {
	a := queryHash("SELECT * FROM users")
	b := queryHash("select * from users")
	c := queryHash("  SELECT * FROM users  ")
	assert.Equal(t, a, b)
	assert.Equal(t, a, c)
	assert.Len(t, a, 32)
}

func TestQueryHash_DiffersByQueryText(t *testing.T) {
	a := queryHash("SELECT 1")
	b := queryHash("SELECT 2")
	assert.NotEqual(t, a, b)
}

func TestExecQuery_NonSelectUsesExec(t *testing.T) {
	q := &fakeQuerier{
		ExecFunc: func(ctx context.Context, query string, args ...any) (any, error) {
			return fakeResult{rowsAffected: 3}, nil
		},
	}
	resp, err := execQuery(context.Background(), q, "UPDATE users SET active = true", domain.QueryUpdate, 0, nil)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, 3, resp.Rowcount)
}

func TestExecQuery_SelectRejectsUnexpectedRowType(t *testing.T) {
	q := &fakeQuerier{
		QueryFunc: func(ctx context.Context, query string, args ...any) (any, error) {
			return "not rows", nil
		},
	}
	_, err := execQuery(context.Background(), q, "SELECT 1", domain.QuerySelect, 0, nil)
	assert.Error(t, err)
}

func TestNormalizeRow_ConvertsByteSlicesToStrings(t *testing.T) {
	row := []any{[]byte("hello"), 42, nil}
	out := normalizeRow(row)
	assert.Equal(t, "hello", out[0])
	assert.Equal(t, 42, out[1])
	assert.Nil(t, out[2])
}

func TestParamsToArgs_EmptyMapIsNil(t *testing.T) {
	assert.Nil(t, paramsToArgs(nil))
	assert.Nil(t, paramsToArgs(map[string]any{}))
}

func TestParamsToArgs_NonEmptyMap(t *testing.T) {
	args := paramsToArgs(map[string]any{"a": 1})
	assert.Len(t, args, 1)
}

// fakeResult implements sql.Result for TestExecQuery_NonSelectUsesExec.
type fakeResult struct {
	rowsAffected int64
}

func (f fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (f fakeResult) RowsAffected() (int64, error) { return f.rowsAffected, nil }

var _ sql.Result = fakeResult{}
