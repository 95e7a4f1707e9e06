package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/crm/internal/database"
	"github.com/JonMunkholm/crm/internal/model"
)

// OperationLogRepository appends and reads operation log entries.
type OperationLogRepository interface {
	Insert(ctx context.Context, logs ...*model.OperationLog) error
	ListByResource(ctx context.Context, orgID, resourceID string, limit int) ([]*model.OperationLog, error)
}

type operationLogRepo struct {
	db database.DBTX
}

// NewOperationLogRepository creates the operation log repository.
func NewOperationLogRepository(db database.DBTX) OperationLogRepository {
	return &operationLogRepo{db: db}
}

func (r *operationLogRepo) Insert(ctx context.Context, logs ...*model.OperationLog) error {
	if len(logs) == 0 {
		return nil
	}
	for _, l := range logs {
		_, err := r.db.Exec(ctx, `
			INSERT INTO operation_log (id, organization_id, module, type, resource_id, resource_name,
				operator, ip_address, user_agent, original_value, modified_value, diffs, create_time)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			l.ID, l.OrganizationID, l.Module, l.Type, nullString(l.ResourceID), nullString(l.ResourceName),
			nullString(l.Operator), nullString(l.IPAddress), nullString(l.UserAgent),
			l.OriginalValue, l.ModifiedValue, l.Diffs, l.CreateTime,
		)
		if err != nil {
			return fmt.Errorf("insert operation log: %w", err)
		}
	}
	return nil
}

func (r *operationLogRepo) ListByResource(ctx context.Context, orgID, resourceID string, limit int) ([]*model.OperationLog, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, organization_id, module, type, COALESCE(resource_id, ''), COALESCE(resource_name, ''),
			COALESCE(operator, ''), COALESCE(ip_address, ''), COALESCE(user_agent, ''),
			original_value, modified_value, diffs, create_time
		FROM operation_log
		WHERE organization_id = $1 AND resource_id = $2
		ORDER BY create_time DESC LIMIT $3`, orgID, resourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("list operation logs: %w", err)
	}
	return collect(rows, func(row pgx.Row) (*model.OperationLog, error) {
		l := &model.OperationLog{}
		err := row.Scan(&l.ID, &l.OrganizationID, &l.Module, &l.Type, &l.ResourceID, &l.ResourceName,
			&l.Operator, &l.IPAddress, &l.UserAgent, &l.OriginalValue, &l.ModifiedValue, &l.Diffs, &l.CreateTime)
		return l, err
	})
}
