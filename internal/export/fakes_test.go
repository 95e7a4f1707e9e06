package export

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JonMunkholm/crm/internal/field"
	"github.com/JonMunkholm/crm/internal/resourcefield"
)

type memTaskStore struct {
	mu      sync.Mutex
	tasks   map[string]Task
	touches int
}

func newMemTaskStore() *memTaskStore {
	return &memTaskStore{tasks: make(map[string]Task)}
}

func (s *memTaskStore) Create(_ context.Context, t Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = t
	return nil
}

func (s *memTaskStore) Finish(_ context.Context, id string, status Status, userID string, at int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || t.Status != StatusPrepared {
		return false, nil
	}
	t.Status, t.UpdateUser, t.UpdateTime = status, userID, at
	s.tasks[id] = t
	return true, nil
}

func (s *memTaskStore) CountByUserStatus(_ context.Context, orgID, userID string, status Status) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tasks {
		if t.OrganizationID == orgID && t.CreateUser == userID && t.Status == status {
			n++
		}
	}
	return n, nil
}

func (s *memTaskStore) Get(_ context.Context, orgID, id string) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || t.OrganizationID != orgID {
		return Task{}, ErrTaskNotFound
	}
	return t, nil
}

func (s *memTaskStore) ListByUser(_ context.Context, orgID, userID string, limit int) ([]Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Task
	for _, t := range s.tasks {
		if t.OrganizationID == orgID && t.CreateUser == userID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreateTime > out[j].CreateTime })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memTaskStore) Touch(_ context.Context, id string, at int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || t.Status != StatusPrepared {
		return nil
	}
	t.UpdateTime = at
	s.tasks[id] = t
	s.touches++
	return nil
}

func (s *memTaskStore) ListIdleBefore(_ context.Context, before int64) ([]Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Task
	for _, t := range s.tasks {
		if t.Status == StatusPrepared && t.UpdateTime < before {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *memTaskStore) status(id string) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks[id].Status
}

func (s *memTaskStore) touchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touches
}

func (s *memTaskStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// fakeSource serves total generated records.
type fakeSource struct {
	total int
	form  field.FormConfig

	// onPage runs before a page is returned, onBatch before an id batch.
	onPage  func(ctx context.Context, page int)
	onBatch func(ctx context.Context, batch int)
	err     error

	// build overrides the generated record for index i.
	build func(i int) Record

	mu      sync.Mutex
	pages   []int
	batches []int
}

func (s *fakeSource) Form(context.Context) (field.FormConfig, error) {
	return s.form, nil
}

func (s *fakeSource) Page(ctx context.Context, page, size int) ([]Record, error) {
	s.mu.Lock()
	s.pages = append(s.pages, page)
	s.mu.Unlock()

	if s.onPage != nil {
		s.onPage(ctx, page)
	}
	if s.err != nil {
		return nil, s.err
	}
	start := (page - 1) * size
	end := min(start+size, s.total)
	if start >= end {
		return nil, nil
	}
	out := make([]Record, 0, end-start)
	for i := start; i < end; i++ {
		out = append(out, s.record(i))
	}
	return out, nil
}

func (s *fakeSource) ByIDs(ctx context.Context, ids []string) ([]Record, error) {
	s.mu.Lock()
	s.batches = append(s.batches, len(ids))
	n := len(s.batches)
	s.mu.Unlock()

	if s.onBatch != nil {
		s.onBatch(ctx, n)
	}
	out := make([]Record, 0, len(ids))
	for i := range ids {
		out = append(out, s.record(i))
	}
	return out, nil
}

func (s *fakeSource) record(i int) Record {
	if s.build != nil {
		return s.build(i)
	}
	return record(i)
}

func (s *fakeSource) fetches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pages)
}

func record(i int) Record {
	return Record{
		ID:     fmt.Sprintf("r-%d", i),
		System: map[string]any{"name": fmt.Sprintf("record %d", i)},
		Cells:  []resourcefield.Cell{{FieldID: "note", Value: "n"}},
	}
}

// memWriter records everything written to it. onWrite runs before each
// WriteRows call with its 1-based call number.
type memWriter struct {
	onWrite func(call int)

	mu     sync.Mutex
	calls  int
	header []string
	rows   [][]any
	merges [][]int
	closed bool
}

func (w *memWriter) WriteHeader(titles []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.header = titles
	return nil
}

func (w *memWriter) WriteRows(rows [][]any, merge []int) error {
	w.mu.Lock()
	w.calls++
	call := w.calls
	w.mu.Unlock()
	if w.onWrite != nil {
		w.onWrite(call)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.rows = append(w.rows, rows...)
	w.merges = append(w.merges, merge)
	return nil
}

func (w *memWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *memWriter) rowCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.rows)
}

type recordingAuditor struct {
	mu    sync.Mutex
	tasks []Task
}

func (a *recordingAuditor) LogExport(_ context.Context, t Task) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tasks = append(a.tasks, t)
	return nil
}

type staticTranslator map[string]string

func (s staticTranslator) Translate(_ string, key string, _ ...any) string {
	if v, ok := s[key]; ok {
		return v
	}
	return key
}
