package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sqlproxy/queryplane/internal/domain"
)

// BackendServerRepo loads the configured backend servers and server
// groups used to seed backendpool.Registry at startup, written directly
// against domain.Querier for the same reason as AuditRepo.
type BackendServerRepo struct{}

// NewBackendServerRepo creates a new BackendServerRepo instance.
func NewBackendServerRepo() *BackendServerRepo {
	return &BackendServerRepo{}
}

const listServerGroupsSQL = `SELECT id, name FROM server_groups ORDER BY name`

const listBackendServersSQL = `
SELECT alias, host, port, database, username, password, db_type,
       max_connections, weight, allowed_roles, is_active, group_id
FROM backend_servers
ORDER BY alias`

// LoadGroups reads every configured server group (without members —
// Registry.GroupMembers derives membership from each server's GroupID).
func (r *BackendServerRepo) LoadGroups(ctx context.Context, q domain.Querier) ([]domain.ServerGroup, error) {
	const op = "backendServerRepo.LoadGroups"

	raw, err := q.Query(ctx, listServerGroupsSQL)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", op, err)
	}
	rows, ok := raw.(pgx.Rows)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected row type %T", op, raw)
	}
	defer rows.Close()

	var out []domain.ServerGroup
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		out = append(out, domain.ServerGroup{ID: domain.ID(id), Name: name})
	}
	return out, rows.Err()
}

// LoadServers reads every configured backend server.
func (r *BackendServerRepo) LoadServers(ctx context.Context, q domain.Querier) ([]domain.BackendServer, error) {
	const op = "backendServerRepo.LoadServers"

	raw, err := q.Query(ctx, listBackendServersSQL)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", op, err)
	}
	rows, ok := raw.(pgx.Rows)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected row type %T", op, raw)
	}
	defer rows.Close()

	var out []domain.BackendServer
	for rows.Next() {
		var alias, host, database, username, password, dbType, groupID string
		var port, maxConns int
		var weight float64
		var allowedRoles []string
		var isActive bool
		if err := rows.Scan(
			&alias, &host, &port, &database, &username, &password, &dbType,
			&maxConns, &weight, &allowedRoles, &isActive, &groupID,
		); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}

		var roleSet map[string]struct{}
		if len(allowedRoles) > 0 {
			roleSet = make(map[string]struct{}, len(allowedRoles))
			for _, role := range allowedRoles {
				roleSet[role] = struct{}{}
			}
		}

		out = append(out, domain.BackendServer{
			Alias: alias, Host: host, Port: port, Database: database,
			Username: username, Password: password, DBType: domain.DBType(dbType),
			MaxConnections: maxConns, Weight: weight, AllowedRoles: roleSet,
			IsActive: isActive, GroupID: domain.ID(groupID),
		})
	}
	return out, rows.Err()
}
