package web

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/JonMunkholm/crm/internal/config"
	"github.com/JonMunkholm/crm/internal/core"
	"github.com/JonMunkholm/crm/internal/export"
	"github.com/JonMunkholm/crm/internal/field"
	"github.com/JonMunkholm/crm/internal/i18n"
	"github.com/JonMunkholm/crm/internal/model"
	"github.com/JonMunkholm/crm/internal/web/middleware"
)

const (
	testSecret    = "test-secret"
	testMaxUpload = 64 << 10
)

// fakeResource records calls and answers with canned values.
type fakeResource[Req, Rec, View any] struct {
	rec  Rec
	view View
	form field.FormConfig
	err  error

	requests []Req
	deleted  []string
	queries  []model.ListQuery
	exports  []core.ExportRequest
	caller   core.Identity
}

func (f *fakeResource[Req, Rec, View]) Add(ctx context.Context, req Req) (Rec, error) {
	f.caller, _ = core.IdentityFromContext(ctx)
	f.requests = append(f.requests, req)
	return f.rec, f.err
}

func (f *fakeResource[Req, Rec, View]) Update(_ context.Context, req Req) (Rec, error) {
	f.requests = append(f.requests, req)
	return f.rec, f.err
}

func (f *fakeResource[Req, Rec, View]) Get(context.Context, string) (View, error) {
	return f.view, f.err
}

func (f *fakeResource[Req, Rec, View]) Delete(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return f.err
}

func (f *fakeResource[Req, Rec, View]) List(ctx context.Context, q model.ListQuery) (*model.Page[View], error) {
	f.caller, _ = core.IdentityFromContext(ctx)
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	return &model.Page[View]{List: []View{f.view}, Total: 1, Current: q.Current, PageSize: q.Limit()}, nil
}

func (f *fakeResource[Req, Rec, View]) ExportAll(_ context.Context, req core.ExportRequest) (string, error) {
	f.exports = append(f.exports, req)
	return "task-all", f.err
}

func (f *fakeResource[Req, Rec, View]) ExportSelected(_ context.Context, req core.ExportRequest) (string, error) {
	f.exports = append(f.exports, req)
	return "task-select", f.err
}

func (f *fakeResource[Req, Rec, View]) Form(context.Context) (field.FormConfig, error) {
	return f.form, f.err
}

type fakeContracts struct {
	fakeResource[core.ContractRequest, *model.Contract, *model.ContractView]
	voidReason string
	archived   model.ArchivedStatus
	status     model.ContractStatus
}

func (f *fakeContracts) Void(_ context.Context, _ string, reason string) error {
	f.voidReason = reason
	return f.err
}

func (f *fakeContracts) Archive(_ context.Context, _ string, st model.ArchivedStatus) error {
	f.archived = st
	return f.err
}

func (f *fakeContracts) ChangeStatus(_ context.Context, _ string, st model.ContractStatus) error {
	f.status = st
	return f.err
}

func (f *fakeContracts) Snapshot(context.Context, string) (*model.SnapshotContent, error) {
	return &model.SnapshotContent{}, f.err
}

type fakePlans struct {
	fakeResource[core.PaymentPlanRequest, *model.PaymentPlan, *model.PaymentPlanView]
}

type fakeQuotations struct {
	fakeResource[core.QuotationRequest, *model.Quotation, *model.QuotationView]
	approved map[string]model.ApprovalStatus
	batchErr error
}

func (f *fakeQuotations) Approve(_ context.Context, id string, st model.ApprovalStatus) error {
	if f.approved == nil {
		f.approved = map[string]model.ApprovalStatus{}
	}
	f.approved[id] = st
	return f.err
}

func (f *fakeQuotations) BatchApprove(_ context.Context, ids []string, _ model.ApprovalStatus) (model.BatchResult, error) {
	return model.BatchResult{Success: len(ids)}, f.batchErr
}

func (f *fakeQuotations) Revoke(context.Context, string) error { return f.err }

func (f *fakeQuotations) Void(context.Context, string) error { return f.err }

func (f *fakeQuotations) BatchVoid(_ context.Context, ids []string) (model.BatchResult, error) {
	return model.BatchResult{Success: len(ids)}, f.batchErr
}

func (f *fakeQuotations) Snapshot(context.Context, string) (*model.SnapshotContent, error) {
	return &model.SnapshotContent{}, f.err
}

type fakePrices struct {
	fakeResource[core.PriceRequest, *model.ProductPrice, *model.ProductPriceView]
	batch core.BatchUpdateRequest
	pos   core.PosRequest

	// uploads holds the bytes each import call read, checks flagged.
	uploads []upload
}

type upload struct {
	check bool
	data  string
}

func (f *fakePrices) ImportCheck(_ context.Context, r io.Reader) (*model.ImportResult, error) {
	return f.importFile(true, r)
}

func (f *fakePrices) Import(_ context.Context, r io.Reader) (*model.ImportResult, error) {
	return f.importFile(false, r)
}

func (f *fakePrices) importFile(check bool, r io.Reader) (*model.ImportResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	f.uploads = append(f.uploads, upload{check: check, data: string(data)})
	if f.err != nil {
		return nil, f.err
	}
	return &model.ImportResult{SuccessCount: 1, FailCount: 1, Errors: []model.ImportError{{Row: 3, Message: "Name is required"}}}, nil
}

func (f *fakePrices) BatchUpdate(_ context.Context, req core.BatchUpdateRequest) error {
	f.batch = req
	return f.err
}

func (f *fakePrices) EditPos(_ context.Context, req core.PosRequest) error {
	f.pos = req
	return f.err
}

// fakeTasks holds tasks keyed by id; File serves dir/<id>.xlsx.
type fakeTasks struct {
	tasks map[string]export.Task
	dir   string
}

func (f *fakeTasks) Task(_ context.Context, orgID, userID, taskID string) (export.Task, error) {
	t, ok := f.tasks[taskID]
	if !ok || t.OrganizationID != orgID || t.CreateUser != userID {
		return export.Task{}, export.ErrTaskNotFound
	}
	return t, nil
}

func (f *fakeTasks) Tasks(_ context.Context, orgID, userID string, _ int) ([]export.Task, error) {
	var out []export.Task
	for _, t := range f.tasks {
		if t.OrganizationID == orgID && t.CreateUser == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTasks) Cancel(ctx context.Context, orgID, userID, taskID string) (export.Task, error) {
	t, err := f.Task(ctx, orgID, userID, taskID)
	if err != nil {
		return t, err
	}
	if !t.Status.Terminal() {
		t.Status = export.StatusStop
		f.tasks[taskID] = t
	}
	return t, nil
}

func (f *fakeTasks) File(ctx context.Context, orgID, userID, taskID string) (export.Task, string, error) {
	t, err := f.Task(ctx, orgID, userID, taskID)
	if err != nil {
		return t, "", err
	}
	if t.Status != export.StatusSuccess {
		return t, "", export.ErrFileNotReady
	}
	return t, filepath.Join(f.dir, t.ID+".xlsx"), nil
}

type testServer struct {
	*Server
	contracts  *fakeContracts
	plans      *fakePlans
	quotations *fakeQuotations
	prices     *fakePrices
	tasks      *fakeTasks
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "t-done.xlsx"), []byte("xlsx-bytes"), 0o600); err != nil {
		t.Fatal(err)
	}
	ts := &testServer{
		contracts:  &fakeContracts{},
		plans:      &fakePlans{},
		quotations: &fakeQuotations{},
		prices:     &fakePrices{},
		tasks: &fakeTasks{dir: dir, tasks: map[string]export.Task{
			"t-done":    {ID: "t-done", OrganizationID: "org-1", CreateUser: "u-1", FileName: "contracts", Status: export.StatusSuccess},
			"t-running": {ID: "t-running", OrganizationID: "org-1", CreateUser: "u-1", FileName: "plans", Status: export.StatusPrepared},
			"t-other":   {ID: "t-other", OrganizationID: "org-1", CreateUser: "u-2", FileName: "mine", Status: export.StatusSuccess},
		}},
	}
	cfg := &config.Config{
		Server:   config.ServerConfig{RequestTimeout: 5 * time.Second},
		Security: config.SecurityConfig{RequireAuth: true, JWTSecret: testSecret},
		Import:   config.ImportConfig{MaxFileSize: testMaxUpload},
	}
	api := API{
		Contracts:    ts.contracts,
		PaymentPlans: ts.plans,
		Quotations:   ts.quotations,
		Prices:       ts.prices,
		Tasks:        ts.tasks,
	}
	ts.Server = NewServer(api, i18n.MustBundle(i18n.EnUS), cfg)
	return ts
}

func signToken(t *testing.T, userID, orgID string, ttl time.Duration) string {
	t.Helper()
	claims := middleware.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
		OrgID: orgID,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return token
}
