package core

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/crm/internal/export"
	"github.com/JonMunkholm/crm/internal/field"
	"github.com/JonMunkholm/crm/internal/model"
	"github.com/JonMunkholm/crm/internal/repository"
)

// ProductsFieldID is the sub-table field holding contract product lines.
const ProductsFieldID = "products"

// ContractRequest adds or updates a contract. Products are the product
// lines; each line's "amount" adds up to the contract amount.
type ContractRequest struct {
	ID         string           `json:"id,omitempty"`
	Name       string           `json:"name"`
	CustomerID string           `json:"customerId"`
	Owner      string           `json:"owner"`
	StartTime  *int64           `json:"startTime,omitempty"`
	EndTime    *int64           `json:"endTime,omitempty"`
	Products   []map[string]any `json:"products"`
	Fields     []field.Value    `json:"moduleFields"`
}

// ContractService manages contracts.
type ContractService struct {
	base
}

// NewContractService creates the contract service.
func NewContractService(d Deps) *ContractService {
	return &ContractService{base: newBase(d)}
}

// Form returns the caller's contract form.
func (s *ContractService) Form(ctx context.Context) (field.FormConfig, error) {
	return s.callerForm(ctx, ContractModule)
}

// prepare validates req against form and returns the values to store,
// products included.
func (s *ContractService) prepare(ctx context.Context, form field.FormConfig, req ContractRequest) ([]field.Value, error) {
	if err := requireText(req.Name, s.label(ctx, "name")); err != nil {
		return nil, err
	}
	if err := requireText(req.Owner, s.label(ctx, "owner")); err != nil {
		return nil, err
	}
	if len(req.Fields) == 0 {
		return nil, Invalid("contract.field.required")
	}
	if len(req.Products) == 0 {
		return nil, Invalid("contract.products.required")
	}

	values := append(withoutField(req.Fields, ProductsFieldID), field.Value{FieldID: ProductsFieldID, FieldValue: req.Products})
	if err := validateFields(s.Registry, form, values); err != nil {
		return nil, err
	}
	return values, nil
}

// productsAmount adds up the line amounts, rounded half-up to cents.
func productsAmount(products []map[string]any) (decimal.Decimal, error) {
	amount, err := SumAmounts(products, "amount")
	if err != nil {
		return decimal.Zero, Invalid("contract.products.amount.invalid")
	}
	return amount, nil
}

func (s *ContractService) subject(ctx context.Context, c *model.Contract, form field.FormConfig) LogSubject {
	return LogSubject{
		Module:         ContractModule.LogModule,
		ID:             c.ID,
		Name:           c.Name,
		Form:           form,
		SubTableLabels: map[string]string{ProductsFieldID: s.Translator.T(ctx, "products_info")},
	}
}

// contractColumns are the fixed columns compared in operation logs.
func contractColumns(c *model.Contract) map[string]any {
	return map[string]any{
		"name":       c.Name,
		"customerId": c.CustomerID,
		"owner":      c.Owner,
		"amount":     c.Amount.StringFixed(AmountScale),
		"startTime":  c.StartTime,
		"endTime":    c.EndTime,
	}
}

// Add creates a contract in SIGNED, un-archived state with its products,
// generated serial numbers, an ADD log entry and a form snapshot.
func (s *ContractService) Add(ctx context.Context, req ContractRequest) (*model.Contract, error) {
	id, err := IdentityFromContext(ctx)
	if err != nil {
		return nil, err
	}
	form, err := s.form(ctx, id.OrgID, ContractModule)
	if err != nil {
		return nil, err
	}
	values, err := s.prepare(ctx, form, req)
	if err != nil {
		return nil, err
	}
	amount, err := productsAmount(req.Products)
	if err != nil {
		return nil, err
	}

	now := s.now()
	at := now.UnixMilli()
	c := &model.Contract{
		ID:             uuid.NewString(),
		OrganizationID: id.OrgID,
		Name:           strings.TrimSpace(req.Name),
		CustomerID:     req.CustomerID,
		Owner:          req.Owner,
		Amount:         amount,
		Status:         model.ContractSigned,
		ArchivedStatus: model.UnArchived,
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		Audit:          model.Audit{CreateTime: at, CreateUser: id.UserID, UpdateTime: at, UpdateUser: id.UserID},
	}

	err = s.inTx(ctx, func(set *repository.Set) error {
		var number string
		values, number, err = fillSerialNumbers(ctx, set.Serials, id.OrgID, form, values, now)
		if err != nil {
			return err
		}
		c.Number = number
		if c.Number == "" {
			c.Number = c.ID
		}

		if err := set.Contracts.Create(ctx, c); err != nil {
			return err
		}
		if err := s.fields(set, ContractModule).Save(ctx, c.ID, form, values); err != nil {
			return err
		}
		entry := s.Logs.AddLog(ctx, s.subject(ctx, c, form), contractColumns(c), values)
		if err := set.Logs.Insert(ctx, entry); err != nil {
			return err
		}
		return s.snapshot(ctx, set, c, form, values)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// snapshot freezes the form and values of c. Product lines are left out.
func (s *ContractService) snapshot(ctx context.Context, set *repository.Set, c *model.Contract, form field.FormConfig, values []field.Value) error {
	content := model.SnapshotContent{Form: form, Record: c, Fields: withoutField(values, ProductsFieldID)}
	return replaceSnapshot(ctx, set.Snapshots(ContractModule.Table), c.ID, content, c.UpdateTime)
}

// Update replaces the contract's columns and dynamic fields. Archived and
// void contracts are rejected and left unchanged.
func (s *ContractService) Update(ctx context.Context, req ContractRequest) (*model.Contract, error) {
	id, err := IdentityFromContext(ctx)
	if err != nil {
		return nil, err
	}
	form, err := s.form(ctx, id.OrgID, ContractModule)
	if err != nil {
		return nil, err
	}

	var updated *model.Contract
	err = s.inTx(ctx, func(set *repository.Set) error {
		old, err := set.Contracts.Get(ctx, id.OrgID, req.ID)
		if err != nil {
			return notFoundAs(err, ContractModule.NotExistKey)
		}
		if err := checkEditable(old); err != nil {
			return err
		}

		values, err := s.prepare(ctx, form, req)
		if err != nil {
			return err
		}
		amount, err := productsAmount(req.Products)
		if err != nil {
			return err
		}

		fields := s.fields(set, ContractModule)
		stored, err := fields.ListByResourceIDs(ctx, []string{old.ID}, form, true)
		if err != nil {
			return err
		}

		c := *old
		c.Name = strings.TrimSpace(req.Name)
		c.CustomerID = req.CustomerID
		c.Owner = req.Owner
		c.Amount = amount
		c.StartTime = req.StartTime
		c.EndTime = req.EndTime
		c.UpdateTime = s.stamp()
		c.UpdateUser = id.UserID

		if err := set.Contracts.Update(ctx, &c); err != nil {
			return err
		}
		if err := fields.Replace(ctx, c.ID, form, values); err != nil {
			return err
		}
		entry := s.Logs.UpdateLog(ctx, s.subject(ctx, &c, form), contractColumns(old), contractColumns(&c), stored[old.ID], values)
		if err := set.Logs.Insert(ctx, entry); err != nil {
			return err
		}
		if err := s.snapshot(ctx, set, &c, form, values); err != nil {
			return err
		}
		updated = &c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func checkEditable(c *model.Contract) error {
	if c.ArchivedStatus == model.Archived {
		return Reject("contract.archived.cannot.edit")
	}
	if c.Status == model.ContractVoid {
		return Reject("contract.void.cannot.edit")
	}
	return nil
}

// Get returns a contract with names, dynamic fields and the option map,
// rendered with the form snapshot taken at its last save.
func (s *ContractService) Get(ctx context.Context, contractID string) (*model.ContractView, error) {
	id, err := IdentityFromContext(ctx)
	if err != nil {
		return nil, err
	}
	set := s.read()
	c, err := set.Contracts.Get(ctx, id.OrgID, contractID)
	if err != nil {
		return nil, notFoundAs(err, ContractModule.NotExistKey)
	}

	var (
		form      field.FormConfig
		values    []field.Value
		customers map[string]string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		live, err := s.form(gctx, id.OrgID, ContractModule)
		if err != nil {
			return err
		}
		if form, err = snapshotForm(gctx, set.Snapshots(ContractModule.Table), c.ID, live); err != nil {
			return err
		}
		all, err := s.fields(set, ContractModule).ListByResourceIDs(gctx, []string{c.ID}, form, true)
		values = all[c.ID]
		return err
	})
	g.Go(func() error {
		var err error
		customers, err = set.Lookups.Customers(gctx, id.OrgID, []string{c.CustomerID})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	names, err := s.names(ctx, set, id.OrgID,
		append([]string{c.CreateUser, c.UpdateUser, c.Owner}, memberIDs(form, values)...),
		departmentIDs(form, values))
	if err != nil {
		return nil, err
	}

	view := s.view(c, names, customers, values)
	view.OptionMap = names.optionMap(form, values)
	view.OptionMap["owner"] = names.userOptions([]string{c.Owner})
	view.OptionMap["customerId"] = nameOptions([]string{c.CustomerID}, customers, names.missing)
	return view, nil
}

func (s *ContractService) view(c *model.Contract, names displayNames, customers map[string]string, values []field.Value) *model.ContractView {
	v := &model.ContractView{
		Contract:     *c,
		CustomerName: customers[c.CustomerID],
		OwnerName:    names.user(c.Owner),
		Fields:       values,
	}
	if owner, ok := names.users[c.Owner]; ok {
		v.DepartmentID = owner.DepartmentID
		v.DepartmentName = owner.DepartmentName
	}
	names.setAuditNames(v)
	return v
}

// List returns one page of contracts with names and dynamic fields. Blob
// values are not loaded for lists.
func (s *ContractService) List(ctx context.Context, q model.ListQuery) (*model.Page[*model.ContractView], error) {
	id, err := IdentityFromContext(ctx)
	if err != nil {
		return nil, err
	}
	q = q.Capped()
	set := s.read()
	list, total, err := set.Contracts.List(ctx, id.OrgID, q)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(list))
	customerIDs := make([]string, 0, len(list))
	userIDs := make([]string, 0, len(list)*3)
	for _, c := range list {
		ids = append(ids, c.ID)
		customerIDs = append(customerIDs, c.CustomerID)
		userIDs = append(userIDs, c.Owner, c.CreateUser, c.UpdateUser)
	}

	var (
		form      field.FormConfig
		values    map[string][]field.Value
		customers map[string]string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if form, err = s.form(gctx, id.OrgID, ContractModule); err != nil {
			return err
		}
		values, err = s.fields(set, ContractModule).ListByResourceIDs(gctx, ids, form, false)
		return err
	})
	g.Go(func() error {
		var err error
		customers, err = set.Lookups.Customers(gctx, id.OrgID, uniq(customerIDs))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	records := make([][]field.Value, 0, len(list))
	for _, c := range list {
		records = append(records, values[c.ID])
	}
	names, err := s.names(ctx, set, id.OrgID, append(userIDs, memberIDs(form, records...)...), departmentIDs(form, records...))
	if err != nil {
		return nil, err
	}

	page := &model.Page[*model.ContractView]{Total: total, Current: q.Current, PageSize: q.Limit()}
	for _, c := range list {
		page.List = append(page.List, s.view(c, names, customers, values[c.ID]))
	}
	page.OptionMap = names.optionMap(form, records...)
	owners := make([]string, 0, len(list))
	for _, c := range list {
		owners = append(owners, c.Owner)
	}
	page.OptionMap["owner"] = names.userOptions(owners)
	page.OptionMap["customerId"] = nameOptions(customerIDs, customers, names.missing)
	return page, nil
}

// Delete removes a contract with its fields, snapshot and payment plans.
// Archived contracts cannot be deleted.
func (s *ContractService) Delete(ctx context.Context, contractID string) error {
	id, err := IdentityFromContext(ctx)
	if err != nil {
		return err
	}
	return s.inTx(ctx, func(set *repository.Set) error {
		c, err := set.Contracts.Get(ctx, id.OrgID, contractID)
		if err != nil {
			return notFoundAs(err, ContractModule.NotExistKey)
		}
		if c.ArchivedStatus == model.Archived {
			return Reject("contract.archived.cannot.delete")
		}

		planIDs, err := set.PaymentPlans.IDsByContract(ctx, c.ID)
		if err != nil {
			return err
		}
		if len(planIDs) > 0 {
			if err := s.fields(set, PaymentPlanModule).Delete(ctx, planIDs...); err != nil {
				return err
			}
			if err := set.PaymentPlans.Delete(ctx, planIDs...); err != nil {
				return err
			}
		}
		if err := s.fields(set, ContractModule).Delete(ctx, c.ID); err != nil {
			return err
		}
		if err := set.Snapshots(ContractModule.Table).Delete(ctx, c.ID); err != nil {
			return err
		}
		if err := set.Contracts.Delete(ctx, c.ID); err != nil {
			return err
		}
		return set.Logs.Insert(ctx, s.Logs.Entry(ctx, ContractModule.LogModule, model.OpDelete, c.ID, c.Name))
	})
}

// Void marks a contract VOID with a reason. Archived contracts cannot be
// voided and a void contract cannot be voided again.
func (s *ContractService) Void(ctx context.Context, contractID, reason string) error {
	return s.transition(ctx, contractID, func(ctx context.Context, c *model.Contract) (*model.OperationLog, error) {
		if c.ArchivedStatus == model.Archived {
			return nil, Reject("contract.archived.cannot.voided")
		}
		if c.Status == model.ContractVoid {
			return nil, Reject("contract.void.cannot.edit")
		}
		old := c.Status
		c.Status = model.ContractVoid
		c.VoidReason = strings.TrimSpace(reason)
		return s.statusEntry(ctx, model.OpVoid, c, old), nil
	})
}

// Archive sets the archive state.
func (s *ContractService) Archive(ctx context.Context, contractID string, status model.ArchivedStatus) error {
	if !status.Valid() {
		return Invalid("contract.archived_status.invalid")
	}
	return s.transition(ctx, contractID, func(ctx context.Context, c *model.Contract) (*model.OperationLog, error) {
		old := c.ArchivedStatus
		c.ArchivedStatus = status
		return s.Logs.ChangeLog(ctx, ContractModule.LogModule, model.OpArchive, c.ID, c.Name,
			"archivedStatus", old, status, s.archivedLabel(ctx, old), s.archivedLabel(ctx, status)), nil
	})
}

// ChangeStatus moves a contract between business stages. VOID is reached
// through Void only; locked contracts are rejected.
func (s *ContractService) ChangeStatus(ctx context.Context, contractID string, status model.ContractStatus) error {
	if !status.Valid() || status == model.ContractVoid {
		return Invalid("contract.status.invalid")
	}
	return s.transition(ctx, contractID, func(ctx context.Context, c *model.Contract) (*model.OperationLog, error) {
		if err := checkEditable(c); err != nil {
			return nil, err
		}
		old := c.Status
		c.Status = status
		return s.statusEntry(ctx, model.OpUpdate, c, old), nil
	})
}

func (s *ContractService) statusEntry(ctx context.Context, typ model.OperationType, c *model.Contract, old model.ContractStatus) *model.OperationLog {
	return s.Logs.ChangeLog(ctx, ContractModule.LogModule, typ, c.ID, c.Name,
		"status", old, c.Status, s.statusLabel(ctx, old), s.statusLabel(ctx, c.Status))
}

// transition loads a contract, applies change and stores the result with
// its log entry in one transaction.
func (s *ContractService) transition(ctx context.Context, contractID string, change func(context.Context, *model.Contract) (*model.OperationLog, error)) error {
	id, err := IdentityFromContext(ctx)
	if err != nil {
		return err
	}
	return s.inTx(ctx, func(set *repository.Set) error {
		c, err := set.Contracts.Get(ctx, id.OrgID, contractID)
		if err != nil {
			return notFoundAs(err, ContractModule.NotExistKey)
		}
		entry, err := change(ctx, c)
		if err != nil {
			return err
		}
		c.UpdateTime = s.stamp()
		c.UpdateUser = id.UserID
		if err := set.Contracts.Update(ctx, c); err != nil {
			return err
		}
		return set.Logs.Insert(ctx, entry)
	})
}

func (s *ContractService) statusLabel(ctx context.Context, st model.ContractStatus) string {
	return s.Translator.T(ctx, "contract.status."+strings.ToLower(string(st)))
}

func (s *ContractService) archivedLabel(ctx context.Context, st model.ArchivedStatus) string {
	return s.Translator.T(ctx, "contract.archived_status."+strings.ToLower(string(st)))
}

// Snapshot returns the frozen form and values of a contract. Contracts saved
// before snapshots existed fall back to the live form and current values.
func (s *ContractService) Snapshot(ctx context.Context, contractID string) (*model.SnapshotContent, error) {
	id, err := IdentityFromContext(ctx)
	if err != nil {
		return nil, err
	}
	set := s.read()
	c, err := set.Contracts.Get(ctx, id.OrgID, contractID)
	if err != nil {
		return nil, notFoundAs(err, ContractModule.NotExistKey)
	}
	content, err := loadSnapshot(ctx, set.Snapshots(ContractModule.Table), c.ID)
	if err != nil || content != nil {
		return content, err
	}

	form, err := s.form(ctx, id.OrgID, ContractModule)
	if err != nil {
		return nil, err
	}
	values, err := s.fields(set, ContractModule).ListByResourceIDs(ctx, []string{c.ID}, form, true)
	if err != nil {
		return nil, err
	}
	return &model.SnapshotContent{Form: form, Record: c, Fields: withoutField(values[c.ID], ProductsFieldID)}, nil
}

// FormSnapshot returns the form a contract was last saved with.
func (s *ContractService) FormSnapshot(ctx context.Context, contractID string) (field.FormConfig, error) {
	content, err := s.Snapshot(ctx, contractID)
	if err != nil {
		return field.FormConfig{}, err
	}
	return content.Form, nil
}

// ExportAll exports every contract matching req's filters.
func (s *ContractService) ExportAll(ctx context.Context, req ExportRequest) (string, error) {
	return s.submitExport(ctx, ContractModule, req, s.source(ctx), false)
}

// ExportSelected exports the contracts in req.SelectIDs.
func (s *ContractService) ExportSelected(ctx context.Context, req ExportRequest) (string, error) {
	return s.submitExport(ctx, ContractModule, req, s.source(ctx), true)
}

func (s *ContractService) source(ctx context.Context) *recordSource {
	id, _ := IdentityFromContext(ctx)
	return &recordSource{
		list: func(ctx context.Context, q model.ListQuery) ([]export.Record, error) {
			list, _, err := s.read().Contracts.List(ctx, id.OrgID, q)
			if err != nil {
				return nil, err
			}
			return s.records(ctx, id.OrgID, list)
		},
		byIDs: func(ctx context.Context, ids []string) ([]export.Record, error) {
			list, err := s.read().Contracts.ListByIDs(ctx, id.OrgID, ids)
			if err != nil {
				return nil, err
			}
			return s.records(ctx, id.OrgID, list)
		},
	}
}

// records converts contracts into export records with display values.
func (s *ContractService) records(ctx context.Context, orgID string, list []*model.Contract) ([]export.Record, error) {
	if len(list) == 0 {
		return nil, nil
	}
	set := s.read()
	ids := make([]string, 0, len(list))
	customerIDs := make([]string, 0, len(list))
	userIDs := make([]string, 0, len(list)*3)
	for _, c := range list {
		ids = append(ids, c.ID)
		customerIDs = append(customerIDs, c.CustomerID)
		userIDs = append(userIDs, c.Owner, c.CreateUser, c.UpdateUser)
	}

	cells, err := s.fields(set, ContractModule).Cells(ctx, ids)
	if err != nil {
		return nil, err
	}
	customers, err := set.Lookups.Customers(ctx, orgID, uniq(customerIDs))
	if err != nil {
		return nil, err
	}
	names, err := s.names(ctx, set, orgID, userIDs, nil)
	if err != nil {
		return nil, err
	}

	out := make([]export.Record, 0, len(list))
	for _, c := range list {
		dept := ""
		if owner, ok := names.users[c.Owner]; ok {
			dept = owner.DepartmentName
		}
		system := map[string]any{
			"name":           c.Name,
			"number":         c.Number,
			"customerId":     customers[c.CustomerID],
			"owner":          names.user(c.Owner),
			"departmentId":   dept,
			"amount":         c.Amount.StringFixed(AmountScale),
			"status":         s.statusLabel(ctx, c.Status),
			"archivedStatus": s.archivedLabel(ctx, c.ArchivedStatus),
			"voidReason":     c.VoidReason,
			"startTime":      formatOptionalTime(c.StartTime),
			"endTime":        formatOptionalTime(c.EndTime),
		}
		out = append(out, export.Record{ID: c.ID, System: auditColumns(system, c.Audit, names), Cells: cells[c.ID]})
	}
	return out, nil
}
