// Package backendpool manages the registry of backend database servers,
// their per-alias *sql.DB connection pools, health probing, and connection
// pool autoscaling (spec.md §4.1).
package backendpool

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/sqlproxy/queryplane/internal/domain"
)

// Conn is a single backend's connection pool plus the domain.Querier
// adapter used by the rest of the pipeline.
type Conn struct {
	Server domain.BackendServer
	db     *sql.DB
}

// Querier adapts the underlying *sql.DB to domain.Querier.
func (c *Conn) Querier() domain.Querier {
	return sqlQuerier{db: c.db}
}

// DB exposes the underlying pool for health checks and transactions.
func (c *Conn) DB() *sql.DB { return c.db }

// Close shuts down the underlying pool.
func (c *Conn) Close() error { return c.db.Close() }

// sqlQuerier adapts database/sql to domain.Querier. Exec/Query return the
// driver-native sql.Result / *sql.Rows boxed as any; callers that need the
// concrete type assert it back (mirrors the teacher's Querier contract in
// internal/domain/querier.go, generalized from pgx to database/sql).
type sqlQuerier struct {
	db *sql.DB
}

func (q sqlQuerier) Exec(ctx context.Context, query string, args ...any) (any, error) {
	return q.db.ExecContext(ctx, query, args...)
}

func (q sqlQuerier) Query(ctx context.Context, query string, args ...any) (any, error) {
	return q.db.QueryContext(ctx, query, args...)
}

func (q sqlQuerier) QueryRow(ctx context.Context, query string, args ...any) any {
	return q.db.QueryRowContext(ctx, query, args...)
}

// PoolConfig mirrors the teacher's postgres.PoolConfig, generalized to any
// database/sql driver.
type PoolConfig struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// openConn opens a *sql.DB for one backend server and verifies connectivity.
func openConn(ctx context.Context, server domain.BackendServer, cfg PoolConfig) (*Conn, error) {
	const op = "backendpool.openConn"

	driver := "pgx"
	if server.DBType == domain.DBTypeMySQL {
		driver = "mysql"
	}

	db, err := sql.Open(driver, server.DSN())
	if err != nil {
		return nil, fmt.Errorf("%s: open %s: %w", op, server.Alias, err)
	}

	maxConns := cfg.MaxConns
	if server.MaxConnections > 0 {
		maxConns = int32(server.MaxConnections)
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(int(maxConns))
	}
	if cfg.MinConns > 0 {
		db.SetMaxIdleConns(int(cfg.MinConns))
	}
	if cfg.MaxConnLifetime > 0 {
		db.SetConnMaxLifetime(cfg.MaxConnLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: ping %s: %w", op, server.Alias, err)
	}

	return &Conn{Server: server, db: db}, nil
}

// Registry holds every known backend server keyed by alias, grouped by
// server group, with lazily-opened connection pools (double-checked locking,
// grounded on the teacher's ResilientPool.Ping in
// internal/infra/postgres/resilient_pool.go).
type Registry struct {
	cfg PoolConfig

	mu      sync.RWMutex
	servers map[string]domain.BackendServer
	groups  map[string]*domain.ServerGroup
	conns   map[string]*Conn
	stats   map[string]*Stats
}

// NewRegistry creates an empty backend registry.
func NewRegistry(cfg PoolConfig) *Registry {
	return &Registry{
		cfg:     cfg,
		servers: make(map[string]domain.BackendServer),
		groups:  make(map[string]*domain.ServerGroup),
		conns:   make(map[string]*Conn),
		stats:   make(map[string]*Stats),
	}
}

// Upsert registers or replaces a backend server's configuration. If a pool
// is already open for this alias and the DSN-relevant fields changed, the
// old pool is closed so the next Acquire opens a fresh one.
func (r *Registry) Upsert(server domain.BackendServer) error {
	if err := server.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.conns[server.Alias]; ok && old.Server.DSN() != server.DSN() {
		old.Close()
		delete(r.conns, server.Alias)
	}
	r.servers[server.Alias] = server
	if _, ok := r.stats[server.Alias]; !ok {
		r.stats[server.Alias] = &Stats{Alias: server.Alias}
	}
	return nil
}

// UpsertGroup registers or replaces a server group definition.
func (r *Registry) UpsertGroup(group domain.ServerGroup) error {
	if err := group.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	g := group
	r.groups[group.Name] = &g
	return nil
}

// Server returns the registered configuration for alias.
func (r *Registry) Server(alias string) (domain.BackendServer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.servers[alias]
	return s, ok
}

// GroupMembers returns the active backend servers belonging to a group name.
func (r *Registry) GroupMembers(group string) []domain.BackendServer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.groups[group]
	if ok {
		return g.ActiveMembers()
	}
	// Fall back to scanning servers whose GroupID matches (groups seeded
	// independently of the ServerGroup.Members slice).
	var out []domain.BackendServer
	for _, s := range r.servers {
		if s.GroupID == group && s.IsActive {
			out = append(out, s)
		}
	}
	return out
}

// Acquire returns the pooled connection for alias, opening it on first use.
func (r *Registry) Acquire(ctx context.Context, alias string) (*Conn, error) {
	r.mu.RLock()
	conn, ok := r.conns[alias]
	r.mu.RUnlock()
	if ok {
		return conn, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if conn, ok = r.conns[alias]; ok {
		return conn, nil
	}

	server, ok := r.servers[alias]
	if !ok {
		return nil, fmt.Errorf("backendpool: unknown server alias %q", alias)
	}

	conn, err := openConn(ctx, server, r.cfg)
	if err != nil {
		return nil, err
	}
	r.conns[alias] = conn
	return conn, nil
}

// Stats returns the live statistics object for alias, creating one if the
// alias has never been seen (defensive: stats are normally seeded by Upsert).
func (r *Registry) Stats(alias string) *Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stats[alias]
	if !ok {
		s = &Stats{Alias: alias}
		r.stats[alias] = s
	}
	return s
}

// AllStats returns a snapshot of every tracked backend's statistics.
func (r *Registry) AllStats() []Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Stats, 0, len(r.stats))
	for _, s := range r.stats {
		out = append(out, s.snapshot())
	}
	return out
}

// Close shuts down every open connection pool.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for alias, c := range r.conns {
		c.Close()
		delete(r.conns, alias)
	}
}
