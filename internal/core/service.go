package core

import (
	"context"
	"time"

	"github.com/JonMunkholm/crm/internal/database"
	"github.com/JonMunkholm/crm/internal/export"
	"github.com/JonMunkholm/crm/internal/field"
	"github.com/JonMunkholm/crm/internal/model"
	"github.com/JonMunkholm/crm/internal/repository"
	"github.com/JonMunkholm/crm/internal/resourcefield"
)

// Deps are the collaborators shared by the domain services.
type Deps struct {
	// DB serves reads outside transactions.
	DB database.DBTX

	// Tx runs writes in one transaction.
	Tx database.Transactor

	// Repos binds the repositories to a pool or a transaction.
	Repos func(database.DBTX) *repository.Set

	Registry   *field.Registry
	Forms      *FormProvider
	Translator Translator
	Logs       *OperationLogger
	Exports    *export.Pipeline

	// Batches bounds concurrent batch operations; nil means unbounded.
	Batches *BatchLimiter

	// ImportBatchSize is how many imported records share one transaction.
	// Zero means DefaultImportBatchSize.
	ImportBatchSize int
}

// Services groups the domain services.
type Services struct {
	Contracts    *ContractService
	PaymentPlans *PaymentPlanService
	Quotations   *QuotationService
	Prices       *PriceService
}

// NewServices creates every domain service from d.
func NewServices(d Deps) *Services {
	return &Services{
		Contracts:    NewContractService(d),
		PaymentPlans: NewPaymentPlanService(d),
		Quotations:   NewQuotationService(d),
		Prices:       NewPriceService(d),
	}
}

// base holds what every service needs.
type base struct {
	Deps
	now func() time.Time
}

func newBase(d Deps) base {
	return base{Deps: d, now: time.Now}
}

func (b *base) read() *repository.Set {
	return b.Repos(b.DB)
}

func (b *base) fields(set *repository.Set, m Module) *resourcefield.Accessor {
	return resourcefield.NewAccessor(set.Fields(m.Table), b.Registry)
}

func (b *base) stamp() int64 {
	return b.now().UnixMilli()
}

func (b *base) form(ctx context.Context, orgID string, m Module) (field.FormConfig, error) {
	return b.Forms.Get(ctx, orgID, m.FormKey)
}

// callerForm returns m's form for the caller's organization.
func (b *base) callerForm(ctx context.Context, m Module) (field.FormConfig, error) {
	id, err := IdentityFromContext(ctx)
	if err != nil {
		return field.FormConfig{}, err
	}
	return b.form(ctx, id.OrgID, m)
}

// inTx runs fn with repositories bound to one transaction.
func (b *base) inTx(ctx context.Context, fn func(set *repository.Set) error) error {
	return b.Tx.InTx(ctx, func(db database.DBTX) error {
		return fn(b.Repos(db))
	})
}

// names resolves the given user and department ids. Blank and duplicate ids
// are ignored; nothing is queried for an empty list.
func (b *base) names(ctx context.Context, set *repository.Set, orgID string, userIDs, deptIDs []string) (displayNames, error) {
	users := map[string]model.UserOption{}
	depts := map[string]string{}

	if ids := uniq(userIDs); len(ids) > 0 {
		var err error
		if users, err = set.Lookups.Users(ctx, orgID, ids); err != nil {
			return displayNames{}, err
		}
	}
	if ids := uniq(deptIDs); len(ids) > 0 {
		var err error
		if depts, err = set.Lookups.Departments(ctx, orgID, ids); err != nil {
			return displayNames{}, err
		}
	}
	for _, u := range users {
		if u.DepartmentID != "" {
			if _, ok := depts[u.DepartmentID]; !ok {
				depts[u.DepartmentID] = u.DepartmentName
			}
		}
	}
	return newDisplayNames(ctx, b.Translator, users, depts), nil
}

// allNames resolves every user and department of the organization. Exports
// use it to render member and department fields.
func (b *base) allNames(ctx context.Context, set *repository.Set, orgID string) (displayNames, error) {
	users, err := set.Lookups.Users(ctx, orgID, nil)
	if err != nil {
		return displayNames{}, err
	}
	depts, err := set.Lookups.Departments(ctx, orgID, nil)
	if err != nil {
		return displayNames{}, err
	}
	return newDisplayNames(ctx, b.Translator, users, depts), nil
}

// label translates a head key such as "name" into its column label.
func (b *base) label(ctx context.Context, key string) string {
	return b.Translator.T(ctx, "head."+key)
}

// nameOptions turns an id to name map into options for the ids, in order.
func nameOptions(ids []string, names map[string]string, missing string) []field.Option {
	var opts []field.Option
	for _, id := range uniq(ids) {
		label, ok := names[id]
		if !ok {
			label = missing
		}
		opts = append(opts, field.Option{Value: id, Label: label})
	}
	return opts
}

// userOptions renders user ids as options.
func (n displayNames) userOptions(ids []string) []field.Option {
	var opts []field.Option
	for _, id := range uniq(ids) {
		opts = append(opts, field.Option{Value: id, Label: n.user(id)})
	}
	return opts
}

func formatTime(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).Format("2006-01-02 15:04:05")
}

func formatOptionalTime(ms *int64) string {
	if ms == nil {
		return ""
	}
	return formatTime(*ms)
}

func copyValues(values []field.Value) []field.Value {
	return append([]field.Value(nil), values...)
}
