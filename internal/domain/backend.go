package domain

import (
	"errors"
	"time"
)

// DBType identifies the wire protocol/driver a BackendServer speaks.
type DBType string

const (
	DBTypePostgres DBType = "postgres"
	DBTypeMySQL    DBType = "mysql"
)

// IsValid reports whether t is a supported backend database type.
func (t DBType) IsValid() bool {
	switch t {
	case DBTypePostgres, DBTypeMySQL:
		return true
	}
	return false
}

// Validation errors for BackendServer/ServerGroup.
var (
	ErrBackendAliasRequired  = errors.New("backend: alias is required")
	ErrBackendMaxConnsLessOne = errors.New("backend: max_connections must be >= 1")
	ErrBackendWeightNotPositive = errors.New("backend: weight must be > 0")
	ErrBackendDBTypeInvalid  = errors.New("backend: db_type is invalid")
	ErrGroupNameRequired     = errors.New("server group: name is required")
)

// BackendServer is one backend database instance behind the proxy,
// identified by a stable alias. Once a server has audit rows referencing
// it, it is never hard-deleted — only logically deactivated
// (IsActive=false).
type BackendServer struct {
	Alias string

	Host     string
	Port     int
	Database string
	Username string
	Password string

	DBType DBType

	MaxConnections int
	Weight         float64

	AllowedRoles map[string]struct{}

	IsActive bool
	GroupID  ID
}

// Validate enforces the invariants from the data model: max_connections
// >= 1, weight > 0, alias non-empty, db_type one of the supported set.
func (b BackendServer) Validate() error {
	if b.Alias == "" {
		return ErrBackendAliasRequired
	}
	if b.MaxConnections < 1 {
		return ErrBackendMaxConnsLessOne
	}
	if b.Weight <= 0 {
		return ErrBackendWeightNotPositive
	}
	if !b.DBType.IsValid() {
		return ErrBackendDBTypeInvalid
	}
	return nil
}

// HasRole reports whether role is present in AllowedRoles. An empty
// AllowedRoles set is treated as "no role restriction" so a freshly
// constructed BackendServer is usable before roles are configured.
func (b BackendServer) HasRole(role string) bool {
	if len(b.AllowedRoles) == 0 {
		return true
	}
	_, ok := b.AllowedRoles[role]
	return ok
}

// DSN builds a driver connection string for the backend's DBType. The
// infra layer (internal/backendpool) is the only consumer; domain keeps
// this here because the shape of a DSN is an invariant of the entity,
// not of any one driver package.
func (b BackendServer) DSN() string {
	switch b.DBType {
	case DBTypeMySQL:
		return b.Username + ":" + b.Password + "@tcp(" + b.Host + ")/" + b.Database
	default: // DBTypePostgres
		return "postgres://" + b.Username + ":" + b.Password + "@" + b.Host + "/" + b.Database
	}
}

// ServerGroup is a named set of equivalent backends routed over for
// reads/writes per spec.md §4.4.
type ServerGroup struct {
	ID      ID
	Name    string
	Members []BackendServer
}

// Validate enforces that a group has a name and every member actually
// belongs to it.
func (g ServerGroup) Validate() error {
	if g.Name == "" {
		return ErrGroupNameRequired
	}
	for _, m := range g.Members {
		if m.GroupID != g.ID {
			return errors.New("server group: member " + m.Alias + " does not belong to this group")
		}
	}
	return nil
}

// ActiveMembers returns the subset of Members with IsActive=true, in the
// same order they were provided.
func (g ServerGroup) ActiveMembers() []BackendServer {
	out := make([]BackendServer, 0, len(g.Members))
	for _, m := range g.Members {
		if m.IsActive {
			out = append(out, m)
		}
	}
	return out
}

// ScalingDirection is the direction an AutoscalingPolicy pushes a pool.
type ScalingDirection string

const (
	ScaleUp   ScalingDirection = "up"
	ScaleDown ScalingDirection = "down"
)

// AutoscalingPolicy describes one trigger the autoscaler evaluates
// against live pool metrics (spec.md §4.1).
type AutoscalingPolicy struct {
	Name      string
	Direction ScalingDirection
	Metric    string // "active_queries" | "active_connections" | "error_rate" (percent) | "avg_time_ms"; any other name, e.g. "query_rate", "cpu" or "memory", reads the active-query count
	Threshold float64
	Step      int
	Min       int
	Max       int
	Cooldown  int64 // seconds
}

// ScalingEvent records one autoscaler action and the metric value that
// triggered it, so an operator can reconstruct why a pool resized
// (SPEC_FULL.md §10).
type ScalingEvent struct {
	ServerAlias  string
	PolicyName   string
	Direction    ScalingDirection
	MetricValue  float64
	PreviousSize int
	NewSize      int
	TriggeredAt  time.Time
}
