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

// PaymentPlanRequest adds or updates a payment plan.
type PaymentPlanRequest struct {
	ID          string           `json:"id,omitempty"`
	ContractID  string           `json:"contractId"`
	Owner       string           `json:"owner"`
	PlanStatus  model.PlanStatus `json:"planStatus"`
	PlanAmount  decimal.Decimal  `json:"planAmount"`
	PlanEndTime *int64           `json:"planEndTime,omitempty"`
	Fields      []field.Value    `json:"moduleFields"`
}

// PaymentPlanService manages the payment plans of contracts.
type PaymentPlanService struct {
	base
}

// NewPaymentPlanService creates the payment plan service.
func NewPaymentPlanService(d Deps) *PaymentPlanService {
	return &PaymentPlanService{base: newBase(d)}
}

// Form returns the caller's payment plan form.
func (s *PaymentPlanService) Form(ctx context.Context) (field.FormConfig, error) {
	return s.callerForm(ctx, PaymentPlanModule)
}

func planColumns(p *model.PaymentPlan) map[string]any {
	return map[string]any{
		"contractId":  p.ContractID,
		"owner":       p.Owner,
		"planStatus":  p.PlanStatus,
		"planAmount":  p.PlanAmount.StringFixed(AmountScale),
		"planEndTime": p.PlanEndTime,
	}
}

func (s *PaymentPlanService) subject(p *model.PaymentPlan, contractName string, form field.FormConfig) LogSubject {
	return LogSubject{Module: PaymentPlanModule.LogModule, ID: p.ID, Name: contractName, Form: form}
}

// editableContract loads the contract a plan belongs to and rejects
// archived or void contracts.
func (s *PaymentPlanService) editableContract(ctx context.Context, set *repository.Set, orgID, contractID string) (*model.Contract, error) {
	c, err := set.Contracts.Get(ctx, orgID, contractID)
	if err != nil {
		return nil, notFoundAs(err, ContractModule.NotExistKey)
	}
	if c.Locked() {
		return nil, Reject("contract_payment_plan.contract.locked")
	}
	return c, nil
}

func (s *PaymentPlanService) check(ctx context.Context, form field.FormConfig, req PaymentPlanRequest) error {
	if err := requireText(req.ContractID, s.label(ctx, "contractId")); err != nil {
		return err
	}
	if err := requireText(req.Owner, s.label(ctx, "owner")); err != nil {
		return err
	}
	if !planStatus(req.PlanStatus).Valid() {
		return Invalid("contract_payment_plan.status.invalid")
	}
	return validateFields(s.Registry, form, req.Fields)
}

// planStatus defaults a blank status to PENDING.
func planStatus(st model.PlanStatus) model.PlanStatus {
	if st == "" {
		return model.PlanPending
	}
	return st
}

// Add creates a payment plan for an editable contract.
func (s *PaymentPlanService) Add(ctx context.Context, req PaymentPlanRequest) (*model.PaymentPlan, error) {
	id, err := IdentityFromContext(ctx)
	if err != nil {
		return nil, err
	}
	form, err := s.form(ctx, id.OrgID, PaymentPlanModule)
	if err != nil {
		return nil, err
	}
	if err := s.check(ctx, form, req); err != nil {
		return nil, err
	}

	now := s.now()
	at := now.UnixMilli()
	p := &model.PaymentPlan{
		ID:             uuid.NewString(),
		OrganizationID: id.OrgID,
		ContractID:     req.ContractID,
		Owner:          req.Owner,
		PlanStatus:     planStatus(req.PlanStatus),
		PlanAmount:     RoundAmount(req.PlanAmount),
		PlanEndTime:    req.PlanEndTime,
		Audit:          model.Audit{CreateTime: at, CreateUser: id.UserID, UpdateTime: at, UpdateUser: id.UserID},
	}

	err = s.inTx(ctx, func(set *repository.Set) error {
		c, err := s.editableContract(ctx, set, id.OrgID, req.ContractID)
		if err != nil {
			return err
		}
		values, _, err := fillSerialNumbers(ctx, set.Serials, id.OrgID, form, req.Fields, now)
		if err != nil {
			return err
		}
		if err := set.PaymentPlans.Create(ctx, p); err != nil {
			return err
		}
		if err := s.fields(set, PaymentPlanModule).Save(ctx, p.ID, form, values); err != nil {
			return err
		}
		return set.Logs.Insert(ctx, s.Logs.AddLog(ctx, s.subject(p, c.Name, form), planColumns(p), values))
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Update replaces a plan's columns and dynamic fields. Both the current and
// the requested contract must be editable.
func (s *PaymentPlanService) Update(ctx context.Context, req PaymentPlanRequest) (*model.PaymentPlan, error) {
	id, err := IdentityFromContext(ctx)
	if err != nil {
		return nil, err
	}
	form, err := s.form(ctx, id.OrgID, PaymentPlanModule)
	if err != nil {
		return nil, err
	}
	if err := s.check(ctx, form, req); err != nil {
		return nil, err
	}

	var updated *model.PaymentPlan
	err = s.inTx(ctx, func(set *repository.Set) error {
		old, err := set.PaymentPlans.Get(ctx, id.OrgID, req.ID)
		if err != nil {
			return notFoundAs(err, PaymentPlanModule.NotExistKey)
		}
		if _, err := s.editableContract(ctx, set, id.OrgID, old.ContractID); err != nil {
			return err
		}
		c, err := s.editableContract(ctx, set, id.OrgID, req.ContractID)
		if err != nil {
			return err
		}

		fields := s.fields(set, PaymentPlanModule)
		stored, err := fields.ListByResourceIDs(ctx, []string{old.ID}, form, true)
		if err != nil {
			return err
		}

		p := *old
		p.ContractID = req.ContractID
		p.Owner = req.Owner
		p.PlanStatus = planStatus(req.PlanStatus)
		p.PlanAmount = RoundAmount(req.PlanAmount)
		p.PlanEndTime = req.PlanEndTime
		p.UpdateTime = s.stamp()
		p.UpdateUser = id.UserID

		if err := set.PaymentPlans.Update(ctx, &p); err != nil {
			return err
		}
		if err := fields.Replace(ctx, p.ID, form, req.Fields); err != nil {
			return err
		}
		entry := s.Logs.UpdateLog(ctx, s.subject(&p, c.Name, form), planColumns(old), planColumns(&p), stored[old.ID], req.Fields)
		if err := set.Logs.Insert(ctx, entry); err != nil {
			return err
		}
		updated = &p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a plan of an editable contract.
func (s *PaymentPlanService) Delete(ctx context.Context, planID string) error {
	id, err := IdentityFromContext(ctx)
	if err != nil {
		return err
	}
	return s.inTx(ctx, func(set *repository.Set) error {
		p, err := set.PaymentPlans.Get(ctx, id.OrgID, planID)
		if err != nil {
			return notFoundAs(err, PaymentPlanModule.NotExistKey)
		}
		c, err := s.editableContract(ctx, set, id.OrgID, p.ContractID)
		if err != nil {
			return err
		}
		if err := s.fields(set, PaymentPlanModule).Delete(ctx, p.ID); err != nil {
			return err
		}
		if err := set.PaymentPlans.Delete(ctx, p.ID); err != nil {
			return err
		}
		return set.Logs.Insert(ctx, s.Logs.Entry(ctx, PaymentPlanModule.LogModule, model.OpDelete, p.ID, c.Name))
	})
}

// Get returns a plan with names, dynamic fields and the option map.
func (s *PaymentPlanService) Get(ctx context.Context, planID string) (*model.PaymentPlanView, error) {
	id, err := IdentityFromContext(ctx)
	if err != nil {
		return nil, err
	}
	set := s.read()
	p, err := set.PaymentPlans.Get(ctx, id.OrgID, planID)
	if err != nil {
		return nil, notFoundAs(err, PaymentPlanModule.NotExistKey)
	}
	page, err := s.views(ctx, set, id.OrgID, []*model.PaymentPlan{p}, true)
	if err != nil {
		return nil, err
	}
	view := page.List[0]
	view.OptionMap = page.OptionMap
	return view, nil
}

// List returns one page of plans, narrowed to a contract by q.ParentID.
func (s *PaymentPlanService) List(ctx context.Context, q model.ListQuery) (*model.Page[*model.PaymentPlanView], error) {
	id, err := IdentityFromContext(ctx)
	if err != nil {
		return nil, err
	}
	q = q.Capped()
	set := s.read()
	list, total, err := set.PaymentPlans.List(ctx, id.OrgID, q)
	if err != nil {
		return nil, err
	}
	page, err := s.views(ctx, set, id.OrgID, list, false)
	if err != nil {
		return nil, err
	}
	page.Total = total
	page.Current = q.Current
	page.PageSize = q.Limit()
	return page, nil
}

// views enriches plans with contract, owner and audit names.
func (s *PaymentPlanService) views(ctx context.Context, set *repository.Set, orgID string, list []*model.PaymentPlan, includeBlob bool) (*model.Page[*model.PaymentPlanView], error) {
	ids := make([]string, 0, len(list))
	contractIDs := make([]string, 0, len(list))
	owners := make([]string, 0, len(list))
	userIDs := make([]string, 0, len(list)*3)
	for _, p := range list {
		ids = append(ids, p.ID)
		contractIDs = append(contractIDs, p.ContractID)
		owners = append(owners, p.Owner)
		userIDs = append(userIDs, p.Owner, p.CreateUser, p.UpdateUser)
	}

	var (
		form      field.FormConfig
		values    map[string][]field.Value
		contracts map[string]string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if form, err = s.form(gctx, orgID, PaymentPlanModule); err != nil {
			return err
		}
		values, err = s.fields(set, PaymentPlanModule).ListByResourceIDs(gctx, ids, form, includeBlob)
		return err
	})
	g.Go(func() error {
		var err error
		contracts, err = set.Lookups.Contracts(gctx, orgID, uniq(contractIDs))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	records := make([][]field.Value, 0, len(list))
	for _, p := range list {
		records = append(records, values[p.ID])
	}
	names, err := s.names(ctx, set, orgID, append(userIDs, memberIDs(form, records...)...), departmentIDs(form, records...))
	if err != nil {
		return nil, err
	}

	page := &model.Page[*model.PaymentPlanView]{}
	for _, p := range list {
		v := &model.PaymentPlanView{
			PaymentPlan:  *p,
			ContractName: contracts[p.ContractID],
			OwnerName:    names.user(p.Owner),
			Fields:       values[p.ID],
		}
		if owner, ok := names.users[p.Owner]; ok {
			v.DepartmentID = owner.DepartmentID
			v.DepartmentName = owner.DepartmentName
		}
		names.setAuditNames(v)
		page.List = append(page.List, v)
	}
	page.OptionMap = names.optionMap(form, records...)
	page.OptionMap["owner"] = names.userOptions(owners)
	page.OptionMap["contractId"] = nameOptions(contractIDs, contracts, names.missing)
	return page, nil
}

// ExportAll exports every plan matching req's filters.
func (s *PaymentPlanService) ExportAll(ctx context.Context, req ExportRequest) (string, error) {
	return s.submitExport(ctx, PaymentPlanModule, req, s.source(ctx), false)
}

// ExportSelected exports the plans in req.SelectIDs.
func (s *PaymentPlanService) ExportSelected(ctx context.Context, req ExportRequest) (string, error) {
	return s.submitExport(ctx, PaymentPlanModule, req, s.source(ctx), true)
}

func (s *PaymentPlanService) source(ctx context.Context) *recordSource {
	id, _ := IdentityFromContext(ctx)
	return &recordSource{
		list: func(ctx context.Context, q model.ListQuery) ([]export.Record, error) {
			list, _, err := s.read().PaymentPlans.List(ctx, id.OrgID, q)
			if err != nil {
				return nil, err
			}
			return s.records(ctx, id.OrgID, list)
		},
		byIDs: func(ctx context.Context, ids []string) ([]export.Record, error) {
			list, err := s.read().PaymentPlans.ListByIDs(ctx, id.OrgID, ids)
			if err != nil {
				return nil, err
			}
			return s.records(ctx, id.OrgID, list)
		},
	}
}

func (s *PaymentPlanService) records(ctx context.Context, orgID string, list []*model.PaymentPlan) ([]export.Record, error) {
	if len(list) == 0 {
		return nil, nil
	}
	set := s.read()
	ids := make([]string, 0, len(list))
	contractIDs := make([]string, 0, len(list))
	userIDs := make([]string, 0, len(list)*3)
	for _, p := range list {
		ids = append(ids, p.ID)
		contractIDs = append(contractIDs, p.ContractID)
		userIDs = append(userIDs, p.Owner, p.CreateUser, p.UpdateUser)
	}

	cells, err := s.fields(set, PaymentPlanModule).Cells(ctx, ids)
	if err != nil {
		return nil, err
	}
	contracts, err := set.Lookups.Contracts(ctx, orgID, uniq(contractIDs))
	if err != nil {
		return nil, err
	}
	names, err := s.names(ctx, set, orgID, userIDs, nil)
	if err != nil {
		return nil, err
	}

	out := make([]export.Record, 0, len(list))
	for _, p := range list {
		dept := ""
		if owner, ok := names.users[p.Owner]; ok {
			dept = owner.DepartmentName
		}
		system := map[string]any{
			"contractId":   contracts[p.ContractID],
			"owner":        names.user(p.Owner),
			"departmentId": dept,
			"planStatus":   s.Translator.T(ctx, "contract_payment_plan.status."+strings.ToLower(string(p.PlanStatus))),
			"planAmount":   p.PlanAmount.StringFixed(AmountScale),
			"planEndTime":  formatOptionalTime(p.PlanEndTime),
		}
		out = append(out, export.Record{ID: p.ID, System: auditColumns(system, p.Audit, names), Cells: cells[p.ID]})
	}
	return out, nil
}
