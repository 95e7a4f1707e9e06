package repository

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/crm/internal/database"
	"github.com/JonMunkholm/crm/internal/model"
)

// SnapshotRepository stores one form snapshot per resource.
type SnapshotRepository interface {
	Insert(ctx context.Context, s *model.Snapshot) error
	Delete(ctx context.Context, resourceIDs ...string) error
	Get(ctx context.Context, resourceID string) (*model.Snapshot, error)
}

type snapshotRepo struct {
	db    database.DBTX
	table string
}

// NewSnapshotRepository creates the snapshot repository of a resource table.
func NewSnapshotRepository(db database.DBTX, resourceTable string) SnapshotRepository {
	return &snapshotRepo{db: db, table: resourceTable + "_snapshot"}
}

func (r *snapshotRepo) Insert(ctx context.Context, s *model.Snapshot) error {
	_, err := r.db.Exec(ctx, `INSERT INTO `+r.table+` (id, resource_id, content, create_time) VALUES ($1, $2, $3, $4)`,
		s.ID, s.ResourceID, s.Content, s.CreateTime)
	if err != nil {
		return fmt.Errorf("insert %s: %w", r.table, err)
	}
	return nil
}

func (r *snapshotRepo) Delete(ctx context.Context, resourceIDs ...string) error {
	if len(resourceIDs) == 0 {
		return nil
	}
	if _, err := r.db.Exec(ctx, `DELETE FROM `+r.table+` WHERE resource_id = ANY($1)`, resourceIDs); err != nil {
		return fmt.Errorf("delete %s: %w", r.table, err)
	}
	return nil
}

func (r *snapshotRepo) Get(ctx context.Context, resourceID string) (*model.Snapshot, error) {
	s := &model.Snapshot{}
	err := r.db.QueryRow(ctx, `SELECT id, resource_id, content, create_time FROM `+r.table+` WHERE resource_id = $1`, resourceID).
		Scan(&s.ID, &s.ResourceID, &s.Content, &s.CreateTime)
	if err != nil {
		return nil, notFound(err, "get "+r.table)
	}
	return s, nil
}
