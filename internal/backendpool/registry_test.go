package backendpool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlproxy/queryplane/internal/domain"
)

func testServer(alias string) domain.BackendServer {
	return domain.BackendServer{
		Alias:          alias,
		Host:           "localhost:5432",
		Database:       "app",
		Username:       "app",
		Password:       "app",
		DBType:         domain.DBTypePostgres,
		MaxConnections: 10,
		Weight:         1,
		IsActive:       true,
	}
}

func TestRegistry_UpsertAndServer(t *testing.T) {
	r := NewRegistry(PoolConfig{})

	require.NoError(t, r.Upsert(testServer("db1")))

	got, ok := r.Server("db1")
	require.True(t, ok)
	assert.Equal(t, "db1", got.Alias)
}

func TestRegistry_UpsertRejectsInvalid(t *testing.T) {
	r := NewRegistry(PoolConfig{})
	bad := testServer("")
	assert.ErrorIs(t, r.Upsert(bad), domain.ErrBackendAliasRequired)
}

func TestRegistry_GroupMembersFallsBackToGroupID(t *testing.T) {
	r := NewRegistry(PoolConfig{})
	s := testServer("db1")
	s.GroupID = "group-a"
	require.NoError(t, r.Upsert(s))

	members := r.GroupMembers("group-a")
	require.Len(t, members, 1)
	assert.Equal(t, "db1", members[0].Alias)
}

func TestRegistry_AcquireUnknownAlias(t *testing.T) {
	r := NewRegistry(PoolConfig{})
	_, err := r.Acquire(context.Background(), "missing")
	assert.Error(t, err)
}

func TestRegistry_StatsCreatesOnDemand(t *testing.T) {
	r := NewRegistry(PoolConfig{})
	s := r.Stats("db1")
	require.NotNil(t, s)
	s.BeginQuery()

	all := r.AllStats()
	require.Len(t, all, 1)
	assert.Equal(t, int64(1), all[0].activeQuery)
}
