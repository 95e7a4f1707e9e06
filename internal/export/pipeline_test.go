package export

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/JonMunkholm/crm/internal/field"
	"github.com/JonMunkholm/crm/internal/resourcefield"
)

func testForm() field.FormConfig {
	return field.FormConfig{
		FormKey: "contract",
		Fields:  []field.Field{{ID: "note", Name: "Note", Type: field.TypeInput}},
	}
}

func testRequest() Request {
	return Request{
		OrganizationID: "org-1",
		UserID:         "u-1",
		FileName:       "contracts",
		Type:           TypeContract,
		Heads:          []Head{{Key: "name", Title: "Name"}, {Key: "note", Title: "Note"}},
	}
}

type harness struct {
	pipeline *Pipeline
	store    *memTaskStore
	writer   *memWriter
	auditor  *recordingAuditor
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	cfg.BaseDir = t.TempDir()
	h := &harness{
		store:   newMemTaskStore(),
		writer:  &memWriter{},
		auditor: &recordingAuditor{},
	}
	h.pipeline = NewPipeline(cfg, h.store, NewSupervisor(), field.DefaultRegistry(),
		staticTranslator{"export.sheet.name": "Export Data"}, h.auditor)
	h.pipeline.newWriter = func(string, string) (Writer, error) { return h.writer, nil }
	return h
}

// waitForStatus polls the store until id reaches want.
func (h *harness) waitForStatus(t *testing.T, id string, want Status) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for h.store.status(id) != want {
		if time.Now().After(deadline) {
			t.Fatalf("status(%s) = %s, want %s", id, h.store.status(id), want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func (h *harness) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.pipeline.Supervisor().WaitForDrain(ctx); err != nil {
		t.Fatalf("WaitForDrain() error = %v", err)
	}
}

func TestExportAll_PagesUntilShortPage(t *testing.T) {
	tests := []struct {
		name        string
		total       int
		wantFetches int
	}{
		{"several pages", 4500, 3},
		{"exact multiple", 4000, 3},
		{"single short page", 10, 1},
		{"empty", 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Config{PageSize: 2000})
			src := &fakeSource{total: tt.total, form: testForm()}

			id, err := h.pipeline.ExportAll(context.Background(), testRequest(), src)
			if err != nil {
				t.Fatalf("ExportAll() error = %v", err)
			}
			h.drain(t)

			if got := h.store.status(id); got != StatusSuccess {
				t.Errorf("status = %s, want %s", got, StatusSuccess)
			}
			if got := src.fetches(); got != tt.wantFetches {
				t.Errorf("fetches = %d, want %d", got, tt.wantFetches)
			}
			if got := h.writer.rowCount(); got != tt.total {
				t.Errorf("rows written = %d, want %d", got, tt.total)
			}
			if !h.writer.closed {
				t.Error("writer was not closed")
			}
		})
	}
}

func TestExportAll_WritesHeaderAndValues(t *testing.T) {
	h := newHarness(t, Config{})
	src := &fakeSource{total: 1, form: testForm()}

	id, err := h.pipeline.ExportAll(context.Background(), testRequest(), src)
	if err != nil {
		t.Fatalf("ExportAll() error = %v", err)
	}
	h.drain(t)

	if len(h.writer.header) != 2 || h.writer.header[0] != "Name" || h.writer.header[1] != "Note" {
		t.Errorf("header = %v, want [Name Note]", h.writer.header)
	}
	if len(h.writer.rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(h.writer.rows))
	}
	row := h.writer.rows[0]
	if row[0] != "record 0" || row[1] != "n" {
		t.Errorf("row = %v, want [record 0 n]", row)
	}

	if len(h.auditor.tasks) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(h.auditor.tasks))
	}
	if got := h.auditor.tasks[0]; got.ID != id || got.Status != StatusSuccess {
		t.Errorf("audited task = %+v, want id %s with SUCCESS", got, id)
	}
}

func TestExportAll_InterruptStops(t *testing.T) {
	h := newHarness(t, Config{PageSize: 2000})

	reached := make(chan struct{})
	src := &fakeSource{total: 10000, form: testForm()}
	src.onPage = func(ctx context.Context, page int) {
		if page == 2 {
			close(reached)
			<-ctx.Done()
		}
	}

	req := testRequest()
	id, err := h.pipeline.ExportAll(context.Background(), req, src)
	if err != nil {
		t.Fatalf("ExportAll() error = %v", err)
	}

	select {
	case <-reached:
	case <-time.After(5 * time.Second):
		t.Fatal("worker never fetched the second page")
	}
	if _, err := h.pipeline.Cancel(context.Background(), req.OrganizationID, req.UserID, id); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	h.drain(t)

	if got := h.store.status(id); got != StatusStop {
		t.Errorf("status = %s, want %s", got, StatusStop)
	}
	if got := src.fetches(); got != 2 {
		t.Errorf("fetches = %d, want 2", got)
	}
	if got := h.writer.rowCount(); got != 2000 {
		t.Errorf("rows written = %d, want 2000", got)
	}
	if h.pipeline.Supervisor().IsRunning(id) {
		t.Error("task still registered after finishing")
	}
}

func TestExportAll_InterruptDuringWriteFinishesBatch(t *testing.T) {
	h := newHarness(t, Config{PageSize: 10})
	h.writer.onWrite = func(call int) {
		if call == 1 {
			h.pipeline.Supervisor().InterruptAll()
		}
	}
	src := &fakeSource{total: 30, form: testForm()}

	id, err := h.pipeline.ExportAll(context.Background(), testRequest(), src)
	if err != nil {
		t.Fatalf("ExportAll() error = %v", err)
	}
	h.drain(t)

	if got := h.store.status(id); got != StatusStop {
		t.Errorf("status = %s, want %s", got, StatusStop)
	}
	if got := h.writer.rowCount(); got != 10 {
		t.Errorf("rows written = %d, want 10", got)
	}
	if got := src.fetches(); got != 2 {
		t.Errorf("fetches = %d, want 2", got)
	}
}

func TestExportAll_TasksRunIndependently(t *testing.T) {
	h := newHarness(t, Config{})

	blocked := make(chan struct{})
	release := make(chan struct{})
	slow := &fakeSource{total: 1, form: testForm()}
	slow.onPage = func(context.Context, int) {
		close(blocked)
		<-release
	}
	slowID, err := h.pipeline.ExportAll(context.Background(), testRequest(), slow)
	if err != nil {
		t.Fatalf("ExportAll(slow) error = %v", err)
	}
	select {
	case <-blocked:
	case <-time.After(5 * time.Second):
		t.Fatal("slow export never fetched")
	}

	req := testRequest()
	req.UserID = "u-2"
	fast := &fakeSource{total: 3, form: testForm()}
	fastID, err := h.pipeline.ExportAll(context.Background(), req, fast)
	if err != nil {
		t.Fatalf("ExportAll(fast) error = %v", err)
	}
	h.waitForStatus(t, fastID, StatusSuccess)
	if got := h.store.status(slowID); got != StatusPrepared {
		t.Errorf("slow status = %s, want %s", got, StatusPrepared)
	}

	close(release)
	h.drain(t)
	if got := h.store.status(slowID); got != StatusSuccess {
		t.Errorf("slow status = %s, want %s", got, StatusSuccess)
	}
}

func TestExportAll_CountsExpandedRows(t *testing.T) {
	h := newHarness(t, Config{})
	src := &fakeSource{total: 3, form: productForm()}
	src.build = func(i int) Record {
		return Record{
			ID:     fmt.Sprintf("c-%d", i),
			System: map[string]any{"name": fmt.Sprintf("contract %d", i)},
			Cells: []resourcefield.Cell{
				{FieldID: "product", Value: "Widget", RowID: "r1", RefSubID: "products"},
				{FieldID: "product", Value: "Gadget", RowID: "r2", RefSubID: "products"},
			},
		}
	}
	req := testRequest()
	req.Heads = []Head{{Key: "name", Title: "Name"}, {Key: "products", Title: "Lines"}}

	counter := rowsTotal.WithLabelValues(string(req.Type))
	before := testutil.ToFloat64(counter)

	if _, err := h.pipeline.ExportAll(context.Background(), req, src); err != nil {
		t.Fatalf("ExportAll() error = %v", err)
	}
	h.drain(t)

	if got := h.writer.rowCount(); got != 6 {
		t.Errorf("rows written = %d, want 6", got)
	}
	if got := testutil.ToFloat64(counter) - before; got != 6 {
		t.Errorf("rows counted = %v, want 6", got)
	}
}

func TestExportAll_RecordsProgressPerPage(t *testing.T) {
	h := newHarness(t, Config{PageSize: 2000})
	src := &fakeSource{total: 4500, form: testForm()}

	if _, err := h.pipeline.ExportAll(context.Background(), testRequest(), src); err != nil {
		t.Fatalf("ExportAll() error = %v", err)
	}
	h.drain(t)

	if got := h.store.touchCount(); got != 3 {
		t.Errorf("progress updates = %d, want 3", got)
	}
}

func TestExportAll_SourceErrorMarksError(t *testing.T) {
	h := newHarness(t, Config{})
	src := &fakeSource{form: testForm(), err: errors.New("connection reset")}

	id, err := h.pipeline.ExportAll(context.Background(), testRequest(), src)
	if err != nil {
		t.Fatalf("ExportAll() error = %v", err)
	}
	h.drain(t)

	if got := h.store.status(id); got != StatusError {
		t.Errorf("status = %s, want %s", got, StatusError)
	}
}

func TestExportAll_PanicMarksError(t *testing.T) {
	h := newHarness(t, Config{})
	src := &fakeSource{total: 5, form: testForm()}
	src.onPage = func(context.Context, int) { panic("boom") }

	id, err := h.pipeline.ExportAll(context.Background(), testRequest(), src)
	if err != nil {
		t.Fatalf("ExportAll() error = %v", err)
	}
	h.drain(t)

	if got := h.store.status(id); got != StatusError {
		t.Errorf("status = %s, want %s", got, StatusError)
	}
}

func TestExportAll_RequestCancellationDoesNotStopWorker(t *testing.T) {
	h := newHarness(t, Config{})
	src := &fakeSource{total: 3, form: testForm()}

	ctx, cancel := context.WithCancel(context.Background())
	id, err := h.pipeline.ExportAll(ctx, testRequest(), src)
	cancel()
	if err != nil {
		t.Fatalf("ExportAll() error = %v", err)
	}
	h.drain(t)

	if got := h.store.status(id); got != StatusSuccess {
		t.Errorf("status = %s, want %s", got, StatusSuccess)
	}
}

func TestSubmit_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(r *Request)
		prepared int
		wantErr  error
	}{
		{"slash in file name", func(r *Request) { r.FileName = "a/b" }, 0, ErrIllegalFileName},
		{"backslash in file name", func(r *Request) { r.FileName = `a\b` }, 0, ErrIllegalFileName},
		{"blank file name", func(r *Request) { r.FileName = " " }, 0, ErrInvalidArgument},
		{"blank organization", func(r *Request) { r.OrganizationID = "" }, 0, ErrInvalidArgument},
		{"quota reached", func(r *Request) {}, 5, ErrTooManyTasks},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Config{MaxPreparedPerUser: 5})
			for i := 0; i < tt.prepared; i++ {
				h.store.Create(context.Background(), Task{
					ID: string(rune('a' + i)), OrganizationID: "org-1", CreateUser: "u-1", Status: StatusPrepared,
				})
			}

			req := testRequest()
			tt.mutate(&req)
			_, err := h.pipeline.ExportAll(context.Background(), req, &fakeSource{form: testForm()})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ExportAll() error = %v, want %v", err, tt.wantErr)
			}
			if got := h.store.len(); got != tt.prepared {
				t.Errorf("tasks = %d, want %d (no task created)", got, tt.prepared)
			}
		})
	}
}

func TestSubmit_QuotaIgnoresFinishedTasks(t *testing.T) {
	h := newHarness(t, Config{MaxPreparedPerUser: 1})
	h.store.Create(context.Background(), Task{ID: "old", OrganizationID: "org-1", CreateUser: "u-1", Status: StatusSuccess})
	h.store.Create(context.Background(), Task{ID: "other", OrganizationID: "org-1", CreateUser: "u-2", Status: StatusPrepared})

	if _, err := h.pipeline.ExportAll(context.Background(), testRequest(), &fakeSource{form: testForm()}); err != nil {
		t.Fatalf("ExportAll() error = %v", err)
	}
	h.drain(t)
}

func TestExportSelected_Batches(t *testing.T) {
	h := newHarness(t, Config{SelectBatchSize: 500})
	src := &fakeSource{form: testForm()}

	req := testRequest()
	for i := 0; i < 1200; i++ {
		req.SelectIDs = append(req.SelectIDs, "id")
	}
	id, err := h.pipeline.ExportSelected(context.Background(), req, src)
	if err != nil {
		t.Fatalf("ExportSelected() error = %v", err)
	}
	h.drain(t)

	if got := h.store.status(id); got != StatusSuccess {
		t.Errorf("status = %s, want %s", got, StatusSuccess)
	}
	want := []int{500, 500, 200}
	if len(src.batches) != len(want) {
		t.Fatalf("batches = %v, want %v", src.batches, want)
	}
	for i := range want {
		if src.batches[i] != want[i] {
			t.Errorf("batches[%d] = %d, want %d", i, src.batches[i], want[i])
		}
	}
	if got := h.writer.rowCount(); got != 1200 {
		t.Errorf("rows written = %d, want 1200", got)
	}
}

func TestExportSelected_RequiresIDs(t *testing.T) {
	h := newHarness(t, Config{})
	if _, err := h.pipeline.ExportSelected(context.Background(), testRequest(), &fakeSource{}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("ExportSelected() error = %v, want %v", err, ErrInvalidArgument)
	}
}

func TestExportSelected_InterruptStops(t *testing.T) {
	h := newHarness(t, Config{SelectBatchSize: 500})
	src := &fakeSource{form: testForm()}
	src.onBatch = func(_ context.Context, batch int) {
		if batch == 2 {
			h.pipeline.Supervisor().InterruptAll()
		}
	}

	req := testRequest()
	for i := 0; i < 1200; i++ {
		req.SelectIDs = append(req.SelectIDs, fmt.Sprintf("id-%d", i))
	}
	id, err := h.pipeline.ExportSelected(context.Background(), req, src)
	if err != nil {
		t.Fatalf("ExportSelected() error = %v", err)
	}
	h.drain(t)

	if got := h.store.status(id); got != StatusStop {
		t.Errorf("status = %s, want %s", got, StatusStop)
	}
	if got := len(src.batches); got != 2 {
		t.Errorf("batches fetched = %d, want 2", got)
	}
	if got := h.writer.rowCount(); got != 500 {
		t.Errorf("rows written = %d, want 500", got)
	}
	if len(h.auditor.tasks) != 1 || h.auditor.tasks[0].Status != StatusStop {
		t.Errorf("audited = %+v, want one STOP entry", h.auditor.tasks)
	}
}

func TestCancel_OrphanedTaskStopsDirectly(t *testing.T) {
	h := newHarness(t, Config{})
	h.store.Create(context.Background(), Task{ID: "t1", OrganizationID: "org-1", CreateUser: "u-1", Status: StatusPrepared})

	task, err := h.pipeline.Cancel(context.Background(), "org-1", "u-1", "t1")
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if task.Status != StatusStop || h.store.status("t1") != StatusStop {
		t.Errorf("status = %s (stored %s), want %s", task.Status, h.store.status("t1"), StatusStop)
	}
}

func TestCancel_OtherUsersTask(t *testing.T) {
	h := newHarness(t, Config{})
	h.store.Create(context.Background(), Task{ID: "t1", OrganizationID: "org-1", CreateUser: "u-1", Status: StatusPrepared})

	if _, err := h.pipeline.Cancel(context.Background(), "org-1", "u-2", "t1"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("Cancel() error = %v, want %v", err, ErrTaskNotFound)
	}
	if got := h.store.status("t1"); got != StatusPrepared {
		t.Errorf("status = %s, want %s", got, StatusPrepared)
	}
}

func TestFile(t *testing.T) {
	h := newHarness(t, Config{})
	h.store.Create(context.Background(), Task{ID: "done", OrganizationID: "org-1", FileID: "f1", FileName: "out", CreateUser: "u-1", Status: StatusSuccess})
	h.store.Create(context.Background(), Task{ID: "busy", OrganizationID: "org-1", FileID: "f2", FileName: "out", CreateUser: "u-1", Status: StatusPrepared})

	_, path, err := h.pipeline.File(context.Background(), "org-1", "u-1", "done")
	if err != nil {
		t.Fatalf("File() error = %v", err)
	}
	if want := filePath(h.pipeline.cfg.BaseDir, Task{OrganizationID: "org-1", FileID: "f1", FileName: "out"}); path != want {
		t.Errorf("File() path = %q, want %q", path, want)
	}

	if _, _, err := h.pipeline.File(context.Background(), "org-1", "u-1", "busy"); !errors.Is(err, ErrFileNotReady) {
		t.Errorf("File() error = %v, want %v", err, ErrFileNotReady)
	}
}

func TestSweepStale(t *testing.T) {
	h := newHarness(t, Config{})
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	h.pipeline.now = func() time.Time { return now }

	old := now.Add(-3 * time.Hour).UnixMilli()
	recent := now.Add(-time.Minute).UnixMilli()
	h.store.Create(context.Background(), Task{ID: "stale", Status: StatusPrepared, CreateTime: old, UpdateTime: old})
	h.store.Create(context.Background(), Task{ID: "running", Status: StatusPrepared, CreateTime: old, UpdateTime: old})
	h.store.Create(context.Background(), Task{ID: "fresh", Status: StatusPrepared, CreateTime: now.UnixMilli(), UpdateTime: now.UnixMilli()})
	h.store.Create(context.Background(), Task{ID: "progressing", Status: StatusPrepared, CreateTime: old, UpdateTime: recent})
	h.store.Create(context.Background(), Task{ID: "done", Status: StatusSuccess, CreateTime: old, UpdateTime: old})

	if _, err := h.pipeline.Supervisor().Register(context.Background(), "running"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	defer h.pipeline.Supervisor().Remove("running")

	n, err := h.pipeline.SweepStale(context.Background(), 2*time.Hour)
	if err != nil {
		t.Fatalf("SweepStale() error = %v", err)
	}
	if n != 1 {
		t.Errorf("SweepStale() = %d, want 1", n)
	}

	want := map[string]Status{
		"stale":       StatusError,
		"running":     StatusPrepared,
		"fresh":       StatusPrepared,
		"progressing": StatusPrepared,
		"done":        StatusSuccess,
	}
	for id, status := range want {
		if got := h.store.status(id); got != status {
			t.Errorf("status(%s) = %s, want %s", id, got, status)
		}
	}
}

func TestClassify(t *testing.T) {
	stopped, cancel := context.WithCancelCause(context.Background())
	cancel(ErrStopped)

	tests := []struct {
		name string
		ctx  context.Context
		err  error
		want Status
	}{
		{"success", context.Background(), nil, StatusSuccess},
		{"failure", context.Background(), errors.New("boom"), StatusError},
		{"stopped error", context.Background(), ErrStopped, StatusStop},
		{"stopped context", stopped, context.Canceled, StatusStop},
	}
	for _, tt := range tests {
		if got := classify(tt.ctx, tt.err); got != tt.want {
			t.Errorf("%s: classify() = %s, want %s", tt.name, got, tt.want)
		}
	}
}
