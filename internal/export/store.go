package export

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/crm/internal/database"
)

type pgTaskStore struct {
	db database.DBTX
}

// NewTaskStore returns a TaskStore over the export_task table.
func NewTaskStore(db database.DBTX) TaskStore {
	return &pgTaskStore{db: db}
}

const taskColumns = `id, organization_id, file_id, file_name, resource_type, status,
	create_user, create_time, COALESCE(update_user, ''), update_time`

func (s *pgTaskStore) Create(ctx context.Context, t Task) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO export_task (id, organization_id, file_id, file_name, resource_type, status,
			create_user, create_time, update_user, update_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		t.ID, t.OrganizationID, t.FileID, t.FileName, t.ResourceType, t.Status,
		t.CreateUser, t.CreateTime, t.UpdateUser, t.UpdateTime,
	)
	if err != nil {
		return fmt.Errorf("insert export task: %w", err)
	}
	return nil
}

func (s *pgTaskStore) Finish(ctx context.Context, id string, status Status, userID string, at int64) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE export_task SET status = $2, update_user = $3, update_time = $4
		WHERE id = $1 AND status = $5`,
		id, status, userID, at, StatusPrepared,
	)
	if err != nil {
		return false, fmt.Errorf("update export task: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *pgTaskStore) CountByUserStatus(ctx context.Context, orgID, userID string, status Status) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `
		SELECT count(*) FROM export_task
		WHERE organization_id = $1 AND create_user = $2 AND status = $3`,
		orgID, userID, status,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count export tasks: %w", err)
	}
	return n, nil
}

func (s *pgTaskStore) Get(ctx context.Context, orgID, id string) (Task, error) {
	row := s.db.QueryRow(ctx, `SELECT `+taskColumns+` FROM export_task WHERE organization_id = $1 AND id = $2`, orgID, id)
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Task{}, ErrTaskNotFound
	}
	if err != nil {
		return Task{}, fmt.Errorf("get export task: %w", err)
	}
	return t, nil
}

func (s *pgTaskStore) ListByUser(ctx context.Context, orgID, userID string, limit int) ([]Task, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+taskColumns+` FROM export_task
		WHERE organization_id = $1 AND create_user = $2
		ORDER BY create_time DESC LIMIT $3`,
		orgID, userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list export tasks: %w", err)
	}
	return collectTasks(rows)
}

func (s *pgTaskStore) Touch(ctx context.Context, id string, at int64) error {
	_, err := s.db.Exec(ctx, `
		UPDATE export_task SET update_time = $2
		WHERE id = $1 AND status = $3`,
		id, at, StatusPrepared,
	)
	if err != nil {
		return fmt.Errorf("touch export task: %w", err)
	}
	return nil
}

func (s *pgTaskStore) ListIdleBefore(ctx context.Context, before int64) ([]Task, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+taskColumns+` FROM export_task
		WHERE status = $1 AND update_time < $2
		ORDER BY update_time`,
		StatusPrepared, before,
	)
	if err != nil {
		return nil, fmt.Errorf("list stale export tasks: %w", err)
	}
	return collectTasks(rows)
}

func collectTasks(rows pgx.Rows) ([]Task, error) {
	defer rows.Close()
	var tasks []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan export task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func scanTask(row pgx.Row) (Task, error) {
	var t Task
	err := row.Scan(&t.ID, &t.OrganizationID, &t.FileID, &t.FileName, &t.ResourceType, &t.Status,
		&t.CreateUser, &t.CreateTime, &t.UpdateUser, &t.UpdateTime)
	return t, err
}
