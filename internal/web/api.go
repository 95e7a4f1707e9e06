package web

import (
	"context"
	"io"

	"github.com/JonMunkholm/crm/internal/core"
	"github.com/JonMunkholm/crm/internal/export"
	"github.com/JonMunkholm/crm/internal/field"
	"github.com/JonMunkholm/crm/internal/model"
)

// resource is the CRUD and export surface shared by every module.
type resource[Req, Rec, View any] interface {
	Add(ctx context.Context, req Req) (Rec, error)
	Update(ctx context.Context, req Req) (Rec, error)
	Get(ctx context.Context, id string) (View, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, q model.ListQuery) (*model.Page[View], error)
	ExportAll(ctx context.Context, req core.ExportRequest) (string, error)
	ExportSelected(ctx context.Context, req core.ExportRequest) (string, error)
	Form(ctx context.Context) (field.FormConfig, error)
}

// Contracts is the contract service used by the handlers.
type Contracts interface {
	resource[core.ContractRequest, *model.Contract, *model.ContractView]
	Void(ctx context.Context, id, reason string) error
	Archive(ctx context.Context, id string, status model.ArchivedStatus) error
	ChangeStatus(ctx context.Context, id string, status model.ContractStatus) error
	Snapshot(ctx context.Context, id string) (*model.SnapshotContent, error)
}

// PaymentPlans is the payment plan service used by the handlers.
type PaymentPlans interface {
	resource[core.PaymentPlanRequest, *model.PaymentPlan, *model.PaymentPlanView]
}

// Quotations is the quotation service used by the handlers.
type Quotations interface {
	resource[core.QuotationRequest, *model.Quotation, *model.QuotationView]
	Approve(ctx context.Context, id string, status model.ApprovalStatus) error
	BatchApprove(ctx context.Context, ids []string, status model.ApprovalStatus) (model.BatchResult, error)
	Revoke(ctx context.Context, id string) error
	Void(ctx context.Context, id string) error
	BatchVoid(ctx context.Context, ids []string) (model.BatchResult, error)
	Snapshot(ctx context.Context, id string) (*model.SnapshotContent, error)
}

// Prices is the product price service used by the handlers.
type Prices interface {
	resource[core.PriceRequest, *model.ProductPrice, *model.ProductPriceView]
	BatchUpdate(ctx context.Context, req core.BatchUpdateRequest) error
	EditPos(ctx context.Context, req core.PosRequest) error
	ImportCheck(ctx context.Context, r io.Reader) (*model.ImportResult, error)
	Import(ctx context.Context, r io.Reader) (*model.ImportResult, error)
}

// ExportTasks queries and controls the caller's export tasks.
type ExportTasks interface {
	Task(ctx context.Context, orgID, userID, taskID string) (export.Task, error)
	Tasks(ctx context.Context, orgID, userID string, limit int) ([]export.Task, error)
	Cancel(ctx context.Context, orgID, userID, taskID string) (export.Task, error)
	File(ctx context.Context, orgID, userID, taskID string) (export.Task, string, error)
}

// API is everything the server serves.
type API struct {
	Contracts    Contracts
	PaymentPlans PaymentPlans
	Quotations   Quotations
	Prices       Prices
	Tasks        ExportTasks

	// Ping reports whether the database is reachable; nil skips the check.
	Ping func(ctx context.Context) error
}

// NewAPI binds the domain services and the export pipeline.
func NewAPI(s *core.Services, p *export.Pipeline, ping func(ctx context.Context) error) API {
	return API{
		Contracts:    s.Contracts,
		PaymentPlans: s.PaymentPlans,
		Quotations:   s.Quotations,
		Prices:       s.Prices,
		Tasks:        p,
		Ping:         ping,
	}
}
