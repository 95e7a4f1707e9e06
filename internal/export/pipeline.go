package export

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/crm/internal/field"
	"github.com/JonMunkholm/crm/internal/logging"
)

// Default sizes used when Config leaves them zero.
const (
	DefaultPageSize           = 2000
	DefaultSelectBatchSize    = 500
	DefaultMaxPreparedPerUser = 5
)

// Config holds pipeline limits.
type Config struct {
	BaseDir            string
	PageSize           int
	SelectBatchSize    int
	MaxPreparedPerUser int
}

// Source supplies records for one export request. Implementations capture
// the organization, filters and locale of the request that built them.
type Source interface {
	// Form returns the form configuration with display options filled in.
	Form(ctx context.Context) (field.FormConfig, error)

	// Page returns page (1-based) of the filtered records.
	Page(ctx context.Context, page, size int) ([]Record, error)

	// ByIDs returns the records with the given ids.
	ByIDs(ctx context.Context, ids []string) ([]Record, error)
}

// Translator localizes message keys.
type Translator interface {
	Translate(locale, key string, args ...any) string
}

// Auditor records finished exports in the operation log.
type Auditor interface {
	LogExport(ctx context.Context, task Task) error
}

// Request describes an export to run.
type Request struct {
	OrganizationID string
	UserID         string
	Locale         string
	FileName       string
	Type           ResourceType
	Heads          []Head

	// SelectIDs is only used by ExportSelected.
	SelectIDs []string
}

// Pipeline admits export requests and runs them in the background.
type Pipeline struct {
	cfg        Config
	store      TaskStore
	supervisor *Supervisor
	registry   *field.Registry
	translator Translator
	auditor    Auditor

	newWriter WriterFactory
	now       func() time.Time

	admit sync.Mutex
}

// NewPipeline wires a pipeline. auditor may be nil.
func NewPipeline(cfg Config, store TaskStore, supervisor *Supervisor, registry *field.Registry, translator Translator, auditor Auditor) *Pipeline {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.SelectBatchSize <= 0 {
		cfg.SelectBatchSize = DefaultSelectBatchSize
	}
	if cfg.MaxPreparedPerUser <= 0 {
		cfg.MaxPreparedPerUser = DefaultMaxPreparedPerUser
	}
	return &Pipeline{
		cfg:        cfg,
		store:      store,
		supervisor: supervisor,
		registry:   registry,
		translator: translator,
		auditor:    auditor,
		newWriter:  NewXLSXWriter,
		now:        time.Now,
	}
}

// Supervisor returns the supervisor tracking this pipeline's workers.
func (p *Pipeline) Supervisor() *Supervisor {
	return p.supervisor
}

// ExportAll pages through every record of src and returns the task id.
func (p *Pipeline) ExportAll(ctx context.Context, req Request, src Source) (string, error) {
	size := p.cfg.PageSize
	return p.submit(ctx, req, src, func(ctx context.Context, emit func([]Record) error) error {
		for page := 1; ; page++ {
			records, err := src.Page(ctx, page, size)
			if err != nil {
				return fmt.Errorf("fetch page %d: %w", page, err)
			}
			if err := cause(ctx); err != nil {
				return err
			}
			if len(records) == 0 {
				return nil
			}
			if err := emit(records); err != nil {
				return err
			}
			if len(records) < size {
				return nil
			}
		}
	})
}

// ExportSelected exports the records in req.SelectIDs, fetched in batches.
func (p *Pipeline) ExportSelected(ctx context.Context, req Request, src Source) (string, error) {
	if len(req.SelectIDs) == 0 {
		rejectedTotal.WithLabelValues("invalid_argument").Inc()
		return "", ErrInvalidArgument
	}
	ids := append([]string(nil), req.SelectIDs...)
	size := p.cfg.SelectBatchSize
	return p.submit(ctx, req, src, func(ctx context.Context, emit func([]Record) error) error {
		for start := 0; start < len(ids); start += size {
			end := min(start+size, len(ids))
			records, err := src.ByIDs(ctx, ids[start:end])
			if err != nil {
				return fmt.Errorf("fetch batch at %d: %w", start, err)
			}
			if err := cause(ctx); err != nil {
				return err
			}
			if err := emit(records); err != nil {
				return err
			}
		}
		return nil
	})
}

type job func(ctx context.Context, emit func([]Record) error) error

func (p *Pipeline) submit(ctx context.Context, req Request, src Source, run job) (string, error) {
	if err := checkFileName(req.FileName); err != nil {
		rejectedTotal.WithLabelValues("file_name").Inc()
		return "", err
	}
	if isBlank(req.FileName) || isBlank(req.OrganizationID) || isBlank(req.UserID) {
		rejectedTotal.WithLabelValues("invalid_argument").Inc()
		return "", ErrInvalidArgument
	}

	task, err := p.admitTask(ctx, req)
	if err != nil {
		return "", err
	}

	workCtx, err := p.supervisor.Register(context.WithoutCancel(ctx), task.ID)
	if err != nil {
		return "", err
	}
	go p.work(workCtx, task, req, src, run)

	return task.ID, nil
}

// admitTask enforces the per-user PREPARED quota and records the task.
func (p *Pipeline) admitTask(ctx context.Context, req Request) (Task, error) {
	p.admit.Lock()
	defer p.admit.Unlock()

	n, err := p.store.CountByUserStatus(ctx, req.OrganizationID, req.UserID, StatusPrepared)
	if err != nil {
		return Task{}, err
	}
	if n >= p.cfg.MaxPreparedPerUser {
		rejectedTotal.WithLabelValues("quota").Inc()
		return Task{}, ErrTooManyTasks
	}

	now := p.now().UnixMilli()
	task := Task{
		ID:             uuid.NewString(),
		OrganizationID: req.OrganizationID,
		FileID:         uuid.NewString(),
		FileName:       req.FileName,
		ResourceType:   req.Type,
		Status:         StatusPrepared,
		CreateUser:     req.UserID,
		CreateTime:     now,
		UpdateUser:     req.UserID,
		UpdateTime:     now,
	}
	if err := p.store.Create(ctx, task); err != nil {
		return Task{}, err
	}
	return task, nil
}

func (p *Pipeline) work(ctx context.Context, task Task, req Request, src Source, run job) {
	logger := logging.WithFields(ctx, "task_id", task.ID, "export_type", task.ResourceType, "file_id", task.FileID)
	start := time.Now()
	activeTasks.Inc()

	status := StatusError
	var rows int
	defer func() {
		if r := recover(); r != nil {
			logger.Error("export worker panicked", "panic", r, "stack", string(debug.Stack()))
			status = StatusError
		}
		p.finish(context.WithoutCancel(ctx), task, status)
		p.supervisor.Remove(task.ID)
		activeTasks.Dec()

		elapsed := time.Since(start)
		tasksTotal.WithLabelValues(string(task.ResourceType), string(status)).Inc()
		taskDuration.WithLabelValues(string(task.ResourceType), string(status)).Observe(elapsed.Seconds())
		logger.Info("export finished", "status", status, "rows", rows, "duration_ms", elapsed.Milliseconds())
	}()

	n, err := p.write(ctx, task, req, src, run)
	rows = n
	status = classify(ctx, err)
	if status == StatusError {
		logger.Error("export failed", "error", err)
	}
}

// write produces the file and returns the number of spreadsheet rows written.
func (p *Pipeline) write(ctx context.Context, task Task, req Request, src Source, run job) (int, error) {
	path, err := prepareExportFile(p.cfg.BaseDir, task.OrganizationID, task.FileID, task.FileName)
	if err != nil {
		return 0, err
	}
	form, err := src.Form(ctx)
	if err != nil {
		return 0, fmt.Errorf("load form: %w", err)
	}
	cols := buildColumns(req.Heads, form)

	w, err := p.newWriter(path, p.sheetName(req.Locale))
	if err != nil {
		return 0, err
	}
	closed := false
	defer func() {
		if !closed {
			w.Close()
		}
	}()

	if err := w.WriteHeader(titles(cols)); err != nil {
		return 0, err
	}

	// Cancellation is only observed between fetches. A batch that was
	// fetched is written in full.
	written := 0
	err = run(ctx, func(records []Record) error {
		batch := 0
		defer func() {
			written += batch
			rowsTotal.WithLabelValues(string(task.ResourceType)).Add(float64(batch))
		}()
		for _, rec := range records {
			rows, merge, err := buildRows(p.registry, cols, rec)
			if err != nil {
				return fmt.Errorf("record %s: %w", rec.ID, err)
			}
			if err := w.WriteRows(rows, merge); err != nil {
				return err
			}
			batch += len(rows)
		}
		p.touch(ctx, task.ID)
		return nil
	})
	if err != nil {
		return written, err
	}

	closed = true
	return written, w.Close()
}

// touch records worker progress so sweepers in other processes leave the
// task alone.
func (p *Pipeline) touch(ctx context.Context, taskID string) {
	if err := p.store.Touch(context.WithoutCancel(ctx), taskID, p.now().UnixMilli()); err != nil {
		logging.FromContext(ctx).Warn("failed to record export progress", "task_id", taskID, "error", err)
	}
}

func (p *Pipeline) sheetName(locale string) string {
	if p.translator == nil {
		return "Sheet1"
	}
	return p.translator.Translate(locale, "export.sheet.name")
}

func (p *Pipeline) finish(ctx context.Context, task Task, status Status) {
	logger := logging.WithFields(ctx, "task_id", task.ID)

	ok, err := p.store.Finish(ctx, task.ID, status, task.CreateUser, p.now().UnixMilli())
	if err != nil {
		logger.Error("failed to record export status", "status", status, "error", err)
		return
	}
	if !ok {
		logger.Warn("export task was no longer prepared", "status", status)
		return
	}

	if p.auditor == nil {
		return
	}
	task.Status = status
	if err := p.auditor.LogExport(ctx, task); err != nil {
		logger.Warn("failed to write export log", "error", err)
	}
}

// classify maps a worker result to the final task status.
func classify(ctx context.Context, err error) Status {
	switch {
	case errors.Is(err, ErrStopped), errors.Is(context.Cause(ctx), ErrStopped):
		return StatusStop
	case err != nil:
		return StatusError
	default:
		return StatusSuccess
	}
}

// Task returns one of the caller's tasks.
func (p *Pipeline) Task(ctx context.Context, orgID, userID, taskID string) (Task, error) {
	t, err := p.store.Get(ctx, orgID, taskID)
	if err != nil {
		return Task{}, err
	}
	if t.CreateUser != userID {
		return Task{}, ErrTaskNotFound
	}
	return t, nil
}

// Tasks lists the caller's most recent tasks.
func (p *Pipeline) Tasks(ctx context.Context, orgID, userID string, limit int) ([]Task, error) {
	if limit <= 0 {
		limit = 50
	}
	return p.store.ListByUser(ctx, orgID, userID, limit)
}

// Cancel interrupts a running task. A PREPARED task with no live worker is
// stopped directly.
func (p *Pipeline) Cancel(ctx context.Context, orgID, userID, taskID string) (Task, error) {
	t, err := p.Task(ctx, orgID, userID, taskID)
	if err != nil {
		return Task{}, err
	}
	if t.Status.Terminal() || p.supervisor.Interrupt(taskID) {
		return t, nil
	}
	if _, err := p.store.Finish(ctx, taskID, StatusStop, userID, p.now().UnixMilli()); err != nil {
		return Task{}, err
	}
	t.Status = StatusStop
	return t, nil
}

// File returns the path of a finished export.
func (p *Pipeline) File(ctx context.Context, orgID, userID, taskID string) (Task, string, error) {
	t, err := p.Task(ctx, orgID, userID, taskID)
	if err != nil {
		return Task{}, "", err
	}
	if t.Status != StatusSuccess {
		return t, "", ErrFileNotReady
	}
	return t, filePath(p.cfg.BaseDir, t), nil
}

// SweepStale moves PREPARED tasks with no progress for olderThan and no live
// worker in this process to ERROR. It returns how many tasks were moved.
func (p *Pipeline) SweepStale(ctx context.Context, olderThan time.Duration) (int, error) {
	now := p.now()
	tasks, err := p.store.ListIdleBefore(ctx, now.Add(-olderThan).UnixMilli())
	if err != nil {
		return 0, err
	}
	swept := 0
	for _, t := range tasks {
		if p.supervisor.IsRunning(t.ID) {
			continue
		}
		ok, err := p.store.Finish(ctx, t.ID, StatusError, t.CreateUser, now.UnixMilli())
		if err != nil {
			return swept, err
		}
		if ok {
			swept++
			tasksTotal.WithLabelValues(string(t.ResourceType), string(StatusError)).Inc()
		}
	}
	return swept, nil
}

// Shutdown waits for running exports. When ctx ends first, remaining
// workers are interrupted and given a short grace period to record STOP.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	if err := p.supervisor.WaitForDrain(ctx); err == nil {
		return nil
	}
	p.supervisor.InterruptAll()

	grace, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return p.supervisor.WaitForDrain(grace)
}
