package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/crm/internal/database"
	"github.com/JonMunkholm/crm/internal/model"
)

// LookupRepository resolves ids owned by other modules into display names.
type LookupRepository interface {
	// Users returns the named users of the organization with their
	// department. An empty ids slice returns every user.
	Users(ctx context.Context, orgID string, ids []string) (map[string]model.UserOption, error)

	// Departments returns department names. An empty ids slice returns all.
	Departments(ctx context.Context, orgID string, ids []string) (map[string]string, error)

	Customers(ctx context.Context, orgID string, ids []string) (map[string]string, error)
	Opportunities(ctx context.Context, orgID string, ids []string) (map[string]string, error)
	Contracts(ctx context.Context, orgID string, ids []string) (map[string]string, error)
}

type lookupRepo struct {
	db database.DBTX
}

// NewLookupRepository creates the lookup repository.
func NewLookupRepository(db database.DBTX) LookupRepository {
	return &lookupRepo{db: db}
}

func (r *lookupRepo) Users(ctx context.Context, orgID string, ids []string) (map[string]model.UserOption, error) {
	query := `
		SELECT u.id, u.name, COALESCE(ou.department_id, ''), COALESCE(d.name, '')
		FROM sys_organization_user ou
		JOIN sys_user u ON u.id = ou.user_id
		LEFT JOIN sys_department d ON d.id = ou.department_id
		WHERE ou.organization_id = $1`
	args := []any{orgID}
	if len(ids) > 0 {
		query += ` AND u.id = ANY($2)`
		args = append(args, ids)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("lookup users: %w", err)
	}
	defer rows.Close()

	users := make(map[string]model.UserOption)
	for rows.Next() {
		var u model.UserOption
		if err := rows.Scan(&u.ID, &u.Name, &u.DepartmentID, &u.DepartmentName); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users[u.ID] = u
	}
	return users, rows.Err()
}

func (r *lookupRepo) Departments(ctx context.Context, orgID string, ids []string) (map[string]string, error) {
	return r.names(ctx, "sys_department", orgID, ids, true)
}

func (r *lookupRepo) Customers(ctx context.Context, orgID string, ids []string) (map[string]string, error) {
	return r.names(ctx, "customer", orgID, ids, false)
}

func (r *lookupRepo) Opportunities(ctx context.Context, orgID string, ids []string) (map[string]string, error) {
	return r.names(ctx, "opportunity", orgID, ids, false)
}

func (r *lookupRepo) Contracts(ctx context.Context, orgID string, ids []string) (map[string]string, error) {
	return r.names(ctx, "contract", orgID, ids, false)
}

// names maps id to name for rows of table. Without ids it returns nothing
// unless all is set.
func (r *lookupRepo) names(ctx context.Context, table, orgID string, ids []string, all bool) (map[string]string, error) {
	out := make(map[string]string)
	if len(ids) == 0 && !all {
		return out, nil
	}

	query := `SELECT id, name FROM ` + table + ` WHERE organization_id = $1`
	args := []any{orgID}
	if len(ids) > 0 {
		query += ` AND id = ANY($2)`
		args = append(args, ids)
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", table, err)
	}
	type pair struct{ ID, Name string }
	pairs, err := pgx.CollectRows(rows, pgx.RowToStructByPos[pair])
	if err != nil {
		return nil, fmt.Errorf("scan %s names: %w", table, err)
	}
	for _, p := range pairs {
		out[p.ID] = p.Name
	}
	return out, nil
}
