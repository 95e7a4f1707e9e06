package admin

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/crm/internal/export"
)

type stubSweeper struct {
	n     int
	err   error
	age   time.Duration
	calls int
}

func (s *stubSweeper) SweepStale(_ context.Context, olderThan time.Duration) (int, error) {
	s.calls++
	s.age = olderThan
	return s.n, s.err
}

type stubTasks struct {
	limit int
	tasks []export.Task
}

func (s *stubTasks) ListByUser(_ context.Context, _, _ string, limit int) ([]export.Task, error) {
	s.limit = limit
	return s.tasks, nil
}

func TestSweepStale(t *testing.T) {
	tests := []struct {
		name    string
		sweeper *stubSweeper
		age     time.Duration
		want    int
		wantErr string
	}{
		{"sweeps", &stubSweeper{n: 3}, time.Hour, 3, ""},
		{"store error", &stubSweeper{err: errors.New("conn reset")}, time.Hour, 0, "sweep export tasks: conn reset"},
		{"zero age", &stubSweeper{}, 0, 0, "age must be at least 10m0s"},
		{"age shorter than a page of work", &stubSweeper{n: 3}, time.Minute, 0, "age must be at least 10m0s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ops := New("postgres://unused", tt.sweeper, nil)
			got, err := ops.SweepStale(context.Background(), tt.age)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("SweepStale() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("SweepStale() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("SweepStale() = %d, want %d", got, tt.want)
			}
			if tt.sweeper.age != tt.age {
				t.Errorf("olderThan = %s, want %s", tt.sweeper.age, tt.age)
			}
		})
	}
}

func TestSweepStaleWithoutSweeper(t *testing.T) {
	if _, err := New("postgres://unused", nil, nil).SweepStale(context.Background(), time.Hour); err == nil {
		t.Error("SweepStale() error = nil, want error")
	}
}

func TestTasks(t *testing.T) {
	store := &stubTasks{tasks: []export.Task{{ID: "t-1"}, {ID: "t-2"}}}
	ops := New("postgres://unused", nil, store)

	got, err := ops.Tasks(context.Background(), "org-1", "u-1", 0)
	if err != nil {
		t.Fatalf("Tasks() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("len(Tasks()) = %d, want 2", len(got))
	}
	if store.limit != 20 {
		t.Errorf("limit = %d, want 20", store.limit)
	}

	if _, err := ops.Tasks(context.Background(), "", "u-1", 5); err == nil {
		t.Error("Tasks() without org error = nil, want error")
	}
}

func TestMigrations(t *testing.T) {
	var gotURL string
	var gotSteps int
	ops := New("postgres://db/crm", nil, nil)
	ops.up = func(url string) error { gotURL = url; return nil }
	ops.down = func(_ string, steps int) error { gotSteps = steps; return errors.New("dirty") }
	ops.version = func(string) (uint, bool, error) { return 2, false, nil }

	if err := ops.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if gotURL != "postgres://db/crm" {
		t.Errorf("url = %q, want postgres://db/crm", gotURL)
	}

	err := ops.Rollback(1)
	if err == nil || !strings.Contains(err.Error(), "migrate down: dirty") {
		t.Errorf("Rollback() error = %v, want migrate down: dirty", err)
	}
	if gotSteps != 1 {
		t.Errorf("steps = %d, want 1", gotSteps)
	}

	v, dirty, err := ops.Version()
	if err != nil || v != 2 || dirty {
		t.Errorf("Version() = %d, %v, %v, want 2, false, nil", v, dirty, err)
	}
}
