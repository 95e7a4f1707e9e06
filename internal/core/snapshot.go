package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/JonMunkholm/crm/internal/field"
	"github.com/JonMunkholm/crm/internal/model"
	"github.com/JonMunkholm/crm/internal/repository"
)

// replaceSnapshot keeps exactly one snapshot per resource: the previous one
// is deleted before the new one is inserted.
func replaceSnapshot(ctx context.Context, snapshots repository.SnapshotRepository, resourceID string, content model.SnapshotContent, at int64) error {
	raw, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := snapshots.Delete(ctx, resourceID); err != nil {
		return err
	}
	return snapshots.Insert(ctx, &model.Snapshot{
		ID:         uuid.NewString(),
		ResourceID: resourceID,
		Content:    raw,
		CreateTime: at,
	})
}

// loadSnapshot returns the decoded snapshot of resourceID, or nil when the
// resource has none.
func loadSnapshot(ctx context.Context, snapshots repository.SnapshotRepository, resourceID string) (*model.SnapshotContent, error) {
	s, err := snapshots.Get(ctx, resourceID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var content model.SnapshotContent
	if err := json.Unmarshal(s.Content, &content); err != nil {
		return nil, fmt.Errorf("decode snapshot of %s: %w", resourceID, err)
	}
	return &content, nil
}

// snapshotForm returns the frozen form of resourceID, or live when the
// resource was never snapshotted.
func snapshotForm(ctx context.Context, snapshots repository.SnapshotRepository, resourceID string, live field.FormConfig) (field.FormConfig, error) {
	content, err := loadSnapshot(ctx, snapshots, resourceID)
	if err != nil {
		return field.FormConfig{}, err
	}
	if content == nil {
		return live, nil
	}
	return content.Form, nil
}
