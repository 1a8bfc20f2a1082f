package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlproxy/queryplane/internal/backendpool"
	"github.com/sqlproxy/queryplane/internal/domain"
)

func server(alias string, weight float64) domain.BackendServer {
	return domain.BackendServer{
		Alias:          alias,
		Host:           "localhost",
		Database:       "app",
		Username:       "app",
		Password:       "app",
		DBType:         domain.DBTypePostgres,
		MaxConnections: 10,
		Weight:         weight,
		IsActive:       true,
	}
}

func TestRouter_Route_ExplicitAlias(t *testing.T) {
	reg := backendpool.NewRegistry(backendpool.PoolConfig{})
	require.NoError(t, reg.Upsert(server("db1", 1)))

	r := New(reg, nil)
	plan, err := r.Route(domain.Request{ServerAlias: "db1", Principal: domain.Principal{Role: "analyst"}})

	require.NoError(t, err)
	assert.Equal(t, PlanLocal, plan.Kind)
	assert.Equal(t, "db1", plan.Server.Alias)
}

func TestRouter_Route_RoleNotAllowed(t *testing.T) {
	reg := backendpool.NewRegistry(backendpool.PoolConfig{})
	s := server("db1", 1)
	s.AllowedRoles = map[string]struct{}{"admin": {}}
	require.NoError(t, reg.Upsert(s))

	r := New(reg, nil)
	_, err := r.Route(domain.Request{ServerAlias: "db1", Principal: domain.Principal{Role: "intern"}})

	assert.Error(t, err)
}

func TestRouter_Route_NoTarget(t *testing.T) {
	reg := backendpool.NewRegistry(backendpool.PoolConfig{})
	r := New(reg, nil)

	_, err := r.Route(domain.Request{})
	assert.Error(t, err)
}

func TestRouter_Route_GroupSelectsDistributionMode(t *testing.T) {
	reg := backendpool.NewRegistry(backendpool.PoolConfig{})
	s1 := server("db1", 1)
	s1.GroupID = "grp"
	s2 := server("db2", 1)
	s2.GroupID = "grp"
	require.NoError(t, reg.Upsert(s1))
	require.NoError(t, reg.Upsert(s2))

	r := New(reg, nil)

	plan, err := r.Route(domain.Request{ServerGroup: "grp", QueryText: "SELECT 1"})
	require.NoError(t, err)
	assert.Equal(t, PlanDistributed, plan.Kind)
	assert.Equal(t, domain.ModeReadAny, plan.Mode)

	plan, err = r.Route(domain.Request{ServerGroup: "grp", QueryText: "UPDATE t SET x=1"})
	require.NoError(t, err)
	assert.Equal(t, domain.ModeWriteAll, plan.Mode)
}

func TestRouter_SelectBackend_LowestScoreWins(t *testing.T) {
	reg := backendpool.NewRegistry(backendpool.PoolConfig{})
	require.NoError(t, reg.Upsert(server("busy", 1)))
	require.NoError(t, reg.Upsert(server("idle", 1)))

	reg.Stats("busy").BeginQuery()
	reg.Stats("busy").BeginQuery()

	r := New(reg, nil)
	ranked, err := r.SelectBackend([]domain.BackendServer{server("busy", 1), server("idle", 1)}, "analyst")

	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, "idle", ranked[0].Alias)
}

func TestRouter_SelectBackend_TieBrokenByWeight(t *testing.T) {
	reg := backendpool.NewRegistry(backendpool.PoolConfig{})

	r := New(reg, nil)
	members := []domain.BackendServer{server("low-weight", 1), server("high-weight", 5)}
	ranked, err := r.SelectBackend(members, "analyst")

	require.NoError(t, err)
	assert.Equal(t, "high-weight", ranked[0].Alias)
}

func TestRouter_SelectBackend_ExcludesInactiveAndRoleDenied(t *testing.T) {
	reg := backendpool.NewRegistry(backendpool.PoolConfig{})
	inactive := server("down", 1)
	inactive.IsActive = false
	restricted := server("restricted", 1)
	restricted.AllowedRoles = map[string]struct{}{"admin": {}}
	ok := server("ok", 1)

	r := New(reg, nil)
	ranked, err := r.SelectBackend([]domain.BackendServer{inactive, restricted, ok}, "analyst")

	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, "ok", ranked[0].Alias)
}

func TestRouter_SelectBackend_NoEligible(t *testing.T) {
	reg := backendpool.NewRegistry(backendpool.PoolConfig{})
	r := New(reg, nil)

	_, err := r.SelectBackend(nil, "analyst")
	assert.ErrorIs(t, err, ErrNoHealthyBackend)
}

func TestRouter_AcquireWithFailover_NonIdempotentFailsFast(t *testing.T) {
	reg := backendpool.NewRegistry(backendpool.PoolConfig{})
	require.NoError(t, reg.Upsert(server("db1", 1)))

	r := New(reg, nil)
	_, _, err := r.AcquireWithFailover(context.Background(), []domain.BackendServer{server("db1", 1)}, "analyst", false)

	// db1's DSN points nowhere reachable in a unit test; acquiring fails.
	assert.Error(t, err)
}
