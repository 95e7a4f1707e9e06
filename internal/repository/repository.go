// Package repository is the PostgreSQL data access layer. Every query is
// plain SQL through pgx; repositories are bound to a database.DBTX so a
// service can run several of them inside one transaction.
package repository

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/crm/internal/database"
	"github.com/JonMunkholm/crm/internal/model"
	"github.com/JonMunkholm/crm/internal/resourcefield"
)

// ErrNotFound is returned when a lookup by id matches nothing.
var ErrNotFound = database.ErrNoRows

// Resource tables that own dynamic fields and snapshots.
const (
	TableContract    = "contract"
	TablePaymentPlan = "contract_payment_plan"
	TableQuotation   = "opportunity_quotation"
	TablePrice       = "product_price"
)

// Set groups the repositories bound to one DBTX.
type Set struct {
	Contracts    ContractRepository
	PaymentPlans PaymentPlanRepository
	Quotations   QuotationRepository
	Prices       PriceRepository
	Logs         OperationLogRepository
	Forms        FormRepository
	Lookups      LookupRepository
	Serials      SerialRepository

	// Fields returns the dynamic field store of a resource table.
	Fields func(table string) resourcefield.Repository

	// Snapshots returns the snapshot store of a resource table.
	Snapshots func(table string) SnapshotRepository
}

// New binds every repository to db.
func New(db database.DBTX) *Set {
	return &Set{
		Contracts:    NewContractRepository(db),
		PaymentPlans: NewPaymentPlanRepository(db),
		Quotations:   NewQuotationRepository(db),
		Prices:       NewPriceRepository(db),
		Logs:         NewOperationLogRepository(db),
		Forms:        NewFormRepository(db),
		Lookups:      NewLookupRepository(db),
		Serials:      NewSerialRepository(db),
		Fields: func(table string) resourcefield.Repository {
			return resourcefield.NewRepository(db, resourcefield.TablesFor(table))
		},
		Snapshots: func(table string) SnapshotRepository {
			return NewSnapshotRepository(db, table)
		},
	}
}

// filter builds the WHERE clause shared by list queries.
type filter struct {
	conds []string
	args  []any
}

func newFilter(orgID string) *filter {
	return &filter{conds: []string{"organization_id = $1"}, args: []any{orgID}}
}

func (f *filter) add(cond string, arg any) {
	f.args = append(f.args, arg)
	f.conds = append(f.conds, fmt.Sprintf(cond, len(f.args)))
}

func (f *filter) where() string {
	return "WHERE " + strings.Join(f.conds, " AND ")
}

// page appends LIMIT/OFFSET placeholders and returns the clause with args.
func (f *filter) page(q model.ListQuery) (string, []any) {
	args := append(append([]any(nil), f.args...), q.Limit(), q.Offset())
	return fmt.Sprintf("LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args
}

func keywordFilter(f *filter, q model.ListQuery, column string) {
	if kw := strings.TrimSpace(q.Keyword); kw != "" {
		f.add(column+" ILIKE $%d", "%"+kw+"%")
	}
}

func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", what, err)
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
