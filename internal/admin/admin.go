// Package admin provides maintenance operations for the CRM database and
// its export tasks.
package admin

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/JonMunkholm/crm/internal/core"
	"github.com/JonMunkholm/crm/internal/database"
	"github.com/JonMunkholm/crm/internal/export"
)

// OpTimeout is the maximum duration of one maintenance operation.
const OpTimeout = 30 * time.Second

// MinSweepAge is the shortest idle age SweepStale accepts. Running exports
// record progress after every page.
const MinSweepAge = 10 * time.Minute

// TaskLister lists the export tasks of a user, newest first.
type TaskLister interface {
	ListByUser(ctx context.Context, orgID, userID string, limit int) ([]export.Task, error)
}

// Ops runs maintenance against one database.
type Ops struct {
	databaseURL string
	sweeper     core.StaleSweeper
	tasks       TaskLister

	up      func(url string) error
	down    func(url string, steps int) error
	version func(url string) (uint, bool, error)
}

// New creates Ops for databaseURL. sweeper and tasks may be nil when only
// migrations are needed.
func New(databaseURL string, sweeper core.StaleSweeper, tasks TaskLister) *Ops {
	return &Ops{
		databaseURL: databaseURL,
		sweeper:     sweeper,
		tasks:       tasks,
		up:          database.Migrate,
		down:        database.MigrateDown,
		version:     database.MigrationVersion,
	}
}

// Migrate applies all pending migrations.
func (o *Ops) Migrate() error {
	return o.timed("migrate up", func() error { return o.up(o.databaseURL) })
}

// Rollback reverts the last steps migrations.
func (o *Ops) Rollback(steps int) error {
	return o.timed("migrate down", func() error { return o.down(o.databaseURL, steps) })
}

// Version returns the schema version and whether it is dirty.
func (o *Ops) Version() (uint, bool, error) {
	return o.version(o.databaseURL)
}

// SweepStale finalizes PREPARED tasks with no recorded progress for
// olderThan as ERROR. Tasks still being written by a server keep moving their
// update time and are skipped.
func (o *Ops) SweepStale(ctx context.Context, olderThan time.Duration) (int, error) {
	if o.sweeper == nil {
		return 0, fmt.Errorf("sweep: no sweeper configured")
	}
	if olderThan < MinSweepAge {
		return 0, fmt.Errorf("sweep: age must be at least %s, got %s", MinSweepAge, olderThan)
	}
	ctx, cancel := context.WithTimeout(ctx, OpTimeout)
	defer cancel()

	var n int
	err := o.timed("sweep export tasks", func() error {
		var err error
		n, err = o.sweeper.SweepStale(ctx, olderThan)
		return err
	})
	return n, err
}

// Tasks lists the newest export tasks of a user.
func (o *Ops) Tasks(ctx context.Context, orgID, userID string, limit int) ([]export.Task, error) {
	if o.tasks == nil {
		return nil, fmt.Errorf("tasks: no task store configured")
	}
	if orgID == "" || userID == "" {
		return nil, fmt.Errorf("tasks: organization and user are required")
	}
	if limit <= 0 {
		limit = 20
	}
	ctx, cancel := context.WithTimeout(ctx, OpTimeout)
	defer cancel()
	return o.tasks.ListByUser(ctx, orgID, userID, limit)
}

func (o *Ops) timed(op string, fn func() error) error {
	start := time.Now()
	if err := fn(); err != nil {
		slog.Error("admin operation failed", "op", op, "error", err)
		return fmt.Errorf("%s: %w", op, err)
	}
	slog.Info("admin operation completed", "op", op, "duration_ms", time.Since(start).Milliseconds())
	return nil
}
