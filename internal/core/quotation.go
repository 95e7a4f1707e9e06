package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/crm/internal/export"
	"github.com/JonMunkholm/crm/internal/field"
	"github.com/JonMunkholm/crm/internal/logging"
	"github.com/JonMunkholm/crm/internal/model"
	"github.com/JonMunkholm/crm/internal/repository"
)

// QuotationRequest adds or updates a quotation.
type QuotationRequest struct {
	ID            string           `json:"id,omitempty"`
	Name          string           `json:"name"`
	OpportunityID string           `json:"opportunityId"`
	Amount        decimal.Decimal  `json:"amount"`
	Products      []map[string]any `json:"products"`
	Fields        []field.Value    `json:"moduleFields"`
}

// QuotationService manages opportunity quotations and their approval.
type QuotationService struct {
	base
}

// NewQuotationService creates the quotation service.
func NewQuotationService(d Deps) *QuotationService {
	return &QuotationService{base: newBase(d)}
}

// Form returns the caller's quotation form.
func (s *QuotationService) Form(ctx context.Context) (field.FormConfig, error) {
	return s.callerForm(ctx, QuotationModule)
}

func quotationColumns(q *model.Quotation) map[string]any {
	return map[string]any{
		"name":          q.Name,
		"opportunityId": q.OpportunityID,
		"amount":        q.Amount.StringFixed(AmountScale),
	}
}

func (s *QuotationService) subject(ctx context.Context, q *model.Quotation, form field.FormConfig) LogSubject {
	return LogSubject{
		Module:         QuotationModule.LogModule,
		ID:             q.ID,
		Name:           q.Name,
		Form:           form,
		SubTableLabels: map[string]string{ProductsFieldID: s.Translator.T(ctx, "products_info")},
	}
}

func (s *QuotationService) prepare(ctx context.Context, form field.FormConfig, req QuotationRequest) ([]field.Value, error) {
	if err := requireText(req.Name, s.label(ctx, "name")); err != nil {
		return nil, err
	}
	if err := requireText(req.OpportunityID, s.label(ctx, "opportunityId")); err != nil {
		return nil, err
	}
	if len(req.Fields) == 0 {
		return nil, Invalid("opportunity.quotation.field.required")
	}
	if len(req.Products) == 0 {
		return nil, Invalid("opportunity.quotation.products.required")
	}
	values := append(withoutField(req.Fields, ProductsFieldID), field.Value{FieldID: ProductsFieldID, FieldValue: req.Products})
	if err := validateFields(s.Registry, form, values); err != nil {
		return nil, err
	}
	return values, nil
}

func (s *QuotationService) snapshot(ctx context.Context, set *repository.Set, q *model.Quotation, form field.FormConfig, values []field.Value) error {
	content := model.SnapshotContent{Form: form, Record: q, Fields: values}
	return replaceSnapshot(ctx, set.Snapshots(QuotationModule.Table), q.ID, content, q.UpdateTime)
}

// Add creates a quotation awaiting approval.
func (s *QuotationService) Add(ctx context.Context, req QuotationRequest) (*model.Quotation, error) {
	id, err := IdentityFromContext(ctx)
	if err != nil {
		return nil, err
	}
	form, err := s.form(ctx, id.OrgID, QuotationModule)
	if err != nil {
		return nil, err
	}
	values, err := s.prepare(ctx, form, req)
	if err != nil {
		return nil, err
	}

	now := s.now()
	at := now.UnixMilli()
	q := &model.Quotation{
		ID:             uuid.NewString(),
		OrganizationID: id.OrgID,
		Name:           strings.TrimSpace(req.Name),
		OpportunityID:  req.OpportunityID,
		Amount:         RoundAmount(req.Amount),
		ApprovalStatus: model.ApprovalApproving,
		Audit:          model.Audit{CreateTime: at, CreateUser: id.UserID, UpdateTime: at, UpdateUser: id.UserID},
	}

	err = s.inTx(ctx, func(set *repository.Set) error {
		values, _, err = fillSerialNumbers(ctx, set.Serials, id.OrgID, form, values, now)
		if err != nil {
			return err
		}
		if err := set.Quotations.Create(ctx, q); err != nil {
			return err
		}
		if err := s.fields(set, QuotationModule).Save(ctx, q.ID, form, values); err != nil {
			return err
		}
		if err := set.Logs.Insert(ctx, s.Logs.AddLog(ctx, s.subject(ctx, q, form), quotationColumns(q), values)); err != nil {
			return err
		}
		return s.snapshot(ctx, set, q, form, values)
	})
	if err != nil {
		return nil, err
	}
	return q, nil
}

// Update replaces a quotation's columns and fields and sends it back to
// approval. Voided and approved quotations cannot be edited.
func (s *QuotationService) Update(ctx context.Context, req QuotationRequest) (*model.Quotation, error) {
	id, err := IdentityFromContext(ctx)
	if err != nil {
		return nil, err
	}
	form, err := s.form(ctx, id.OrgID, QuotationModule)
	if err != nil {
		return nil, err
	}

	var updated *model.Quotation
	err = s.inTx(ctx, func(set *repository.Set) error {
		old, err := set.Quotations.Get(ctx, id.OrgID, req.ID)
		if err != nil {
			return notFoundAs(err, QuotationModule.NotExistKey)
		}
		switch old.ApprovalStatus {
		case model.ApprovalVoided:
			return Reject("opportunity.quotation.voided.cannot.edit")
		case model.ApprovalApproved:
			return Reject("opportunity.quotation.approved.cannot.edit")
		}

		values, err := s.prepare(ctx, form, req)
		if err != nil {
			return err
		}
		fields := s.fields(set, QuotationModule)
		stored, err := fields.ListByResourceIDs(ctx, []string{old.ID}, form, true)
		if err != nil {
			return err
		}

		q := *old
		q.Name = strings.TrimSpace(req.Name)
		q.OpportunityID = req.OpportunityID
		q.Amount = RoundAmount(req.Amount)
		q.ApprovalStatus = model.ApprovalApproving
		q.UpdateTime = s.stamp()
		q.UpdateUser = id.UserID

		if err := set.Quotations.Update(ctx, &q); err != nil {
			return err
		}
		if err := fields.Replace(ctx, q.ID, form, values); err != nil {
			return err
		}
		entry := s.Logs.UpdateLog(ctx, s.subject(ctx, &q, form), quotationColumns(old), quotationColumns(&q), stored[old.ID], values)
		if err := set.Logs.Insert(ctx, entry); err != nil {
			return err
		}
		if err := s.snapshot(ctx, set, &q, form, values); err != nil {
			return err
		}
		updated = &q
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a quotation with its fields and snapshot.
func (s *QuotationService) Delete(ctx context.Context, quotationID string) error {
	id, err := IdentityFromContext(ctx)
	if err != nil {
		return err
	}
	return s.inTx(ctx, func(set *repository.Set) error {
		q, err := set.Quotations.Get(ctx, id.OrgID, quotationID)
		if err != nil {
			return notFoundAs(err, QuotationModule.NotExistKey)
		}
		if err := s.fields(set, QuotationModule).Delete(ctx, q.ID); err != nil {
			return err
		}
		if err := set.Snapshots(QuotationModule.Table).Delete(ctx, q.ID); err != nil {
			return err
		}
		if err := set.Quotations.Delete(ctx, q.ID); err != nil {
			return err
		}
		return set.Logs.Insert(ctx, s.Logs.Entry(ctx, QuotationModule.LogModule, model.OpDelete, q.ID, q.Name))
	})
}

// Get returns a quotation rendered with its form snapshot.
func (s *QuotationService) Get(ctx context.Context, quotationID string) (*model.QuotationView, error) {
	id, err := IdentityFromContext(ctx)
	if err != nil {
		return nil, err
	}
	set := s.read()
	q, err := set.Quotations.Get(ctx, id.OrgID, quotationID)
	if err != nil {
		return nil, notFoundAs(err, QuotationModule.NotExistKey)
	}
	live, err := s.form(ctx, id.OrgID, QuotationModule)
	if err != nil {
		return nil, err
	}
	form, err := snapshotForm(ctx, set.Snapshots(QuotationModule.Table), q.ID, live)
	if err != nil {
		return nil, err
	}
	page, err := s.views(ctx, set, id.OrgID, form, []*model.Quotation{q}, true)
	if err != nil {
		return nil, err
	}
	view := page.List[0]
	view.OptionMap = page.OptionMap
	return view, nil
}

// List returns one page of quotations, narrowed to an opportunity by
// q.ParentID.
func (s *QuotationService) List(ctx context.Context, q model.ListQuery) (*model.Page[*model.QuotationView], error) {
	id, err := IdentityFromContext(ctx)
	if err != nil {
		return nil, err
	}
	q = q.Capped()
	set := s.read()

	var (
		list  []*model.Quotation
		total int64
		form  field.FormConfig
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		list, total, err = set.Quotations.List(gctx, id.OrgID, q)
		return err
	})
	g.Go(func() error {
		var err error
		form, err = s.form(gctx, id.OrgID, QuotationModule)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	page, err := s.views(ctx, set, id.OrgID, form, list, false)
	if err != nil {
		return nil, err
	}
	page.Total = total
	page.Current = q.Current
	page.PageSize = q.Limit()
	return page, nil
}

func (s *QuotationService) views(ctx context.Context, set *repository.Set, orgID string, form field.FormConfig, list []*model.Quotation, includeBlob bool) (*model.Page[*model.QuotationView], error) {
	ids := make([]string, 0, len(list))
	oppIDs := make([]string, 0, len(list))
	userIDs := make([]string, 0, len(list)*2)
	for _, q := range list {
		ids = append(ids, q.ID)
		oppIDs = append(oppIDs, q.OpportunityID)
		userIDs = append(userIDs, q.CreateUser, q.UpdateUser)
	}

	var (
		values        map[string][]field.Value
		opportunities map[string]string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		values, err = s.fields(set, QuotationModule).ListByResourceIDs(gctx, ids, form, includeBlob)
		return err
	})
	g.Go(func() error {
		var err error
		opportunities, err = set.Lookups.Opportunities(gctx, orgID, uniq(oppIDs))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	records := make([][]field.Value, 0, len(list))
	for _, q := range list {
		records = append(records, values[q.ID])
	}
	names, err := s.names(ctx, set, orgID, append(userIDs, memberIDs(form, records...)...), departmentIDs(form, records...))
	if err != nil {
		return nil, err
	}

	page := &model.Page[*model.QuotationView]{}
	for _, q := range list {
		v := &model.QuotationView{
			Quotation:       *q,
			OpportunityName: opportunities[q.OpportunityID],
			Fields:          values[q.ID],
		}
		names.setAuditNames(v)
		page.List = append(page.List, v)
	}
	page.OptionMap = names.optionMap(form, records...)
	page.OptionMap["opportunityId"] = nameOptions(oppIDs, opportunities, names.missing)
	return page, nil
}

// Approve records an approval decision, APPROVED or UNAPPROVED, on a
// quotation under approval.
func (s *QuotationService) Approve(ctx context.Context, quotationID string, status model.ApprovalStatus) error {
	if status != model.ApprovalApproved && status != model.ApprovalUnapproved {
		return Invalid("opportunity.quotation.approval.status.invalid")
	}
	return s.transition(ctx, quotationID, model.OpApprove, status, func(q *model.Quotation) error {
		switch q.ApprovalStatus {
		case model.ApprovalVoided:
			return Reject("opportunity.quotation.voided.cannot.approve")
		case model.ApprovalApproving:
			return nil
		}
		return Reject("opportunity.quotation.not.approving")
	})
}

// BatchApprove approves each quotation on its own; rejected ones are
// skipped and counted.
func (s *QuotationService) BatchApprove(ctx context.Context, ids []string, status model.ApprovalStatus) (model.BatchResult, error) {
	if status != model.ApprovalApproved && status != model.ApprovalUnapproved {
		return model.BatchResult{}, Invalid("opportunity.quotation.approval.status.invalid")
	}
	return s.batch(ctx, ids, func(id string) error { return s.Approve(ctx, id, status) })
}

// Revoke withdraws a quotation from approval.
func (s *QuotationService) Revoke(ctx context.Context, quotationID string) error {
	return s.transition(ctx, quotationID, model.OpRevoke, model.ApprovalRevoked, func(q *model.Quotation) error {
		if q.ApprovalStatus != model.ApprovalApproving {
			return Reject("opportunity.quotation.not.approving")
		}
		return nil
	})
}

// Void voids a quotation. A voided quotation cannot be voided again.
func (s *QuotationService) Void(ctx context.Context, quotationID string) error {
	return s.transition(ctx, quotationID, model.OpVoid, model.ApprovalVoided, func(q *model.Quotation) error {
		if q.ApprovalStatus == model.ApprovalVoided {
			return Reject("opportunity.quotation.already.voided")
		}
		return nil
	})
}

// BatchVoid voids each quotation on its own.
func (s *QuotationService) BatchVoid(ctx context.Context, ids []string) (model.BatchResult, error) {
	return s.batch(ctx, ids, func(id string) error { return s.Void(ctx, id) })
}

// transition moves a quotation to status when allowed returns nil and logs
// the change.
func (s *QuotationService) transition(ctx context.Context, quotationID string, typ model.OperationType, status model.ApprovalStatus, allowed func(*model.Quotation) error) error {
	id, err := IdentityFromContext(ctx)
	if err != nil {
		return err
	}
	return s.inTx(ctx, func(set *repository.Set) error {
		q, err := set.Quotations.Get(ctx, id.OrgID, quotationID)
		if err != nil {
			return notFoundAs(err, QuotationModule.NotExistKey)
		}
		if err := allowed(q); err != nil {
			return err
		}
		if err := set.Quotations.UpdateApproval(ctx, q.ID, status, id.UserID, s.stamp()); err != nil {
			return err
		}
		entry := s.Logs.ChangeLog(ctx, QuotationModule.LogModule, typ, q.ID, q.Name, "approvalStatus",
			q.ApprovalStatus, status, s.approvalLabel(ctx, q.ApprovalStatus), s.approvalLabel(ctx, status))
		return set.Logs.Insert(ctx, entry)
	})
}

// batch runs op per id. Business rejections count as skipped, anything
// else as failed; an interrupted context stops the batch.
func (s *QuotationService) batch(ctx context.Context, ids []string, op func(id string) error) (model.BatchResult, error) {
	var res model.BatchResult
	err := s.Batches.run(ctx, func() error {
		for _, id := range uniq(ids) {
			if err := ctx.Err(); err != nil {
				return err
			}
			s.count(ctx, &res, id, op(id))
		}
		return nil
	})
	return res, err
}

// count records the outcome of one batch item.
func (s *QuotationService) count(ctx context.Context, res *model.BatchResult, id string, err error) {
	var be *BusinessError
	switch {
	case err == nil:
		res.Success++
	case errors.As(err, &be) && be.Code == CodeRule:
		res.Skip++
		res.Errors = append(res.Errors, fmt.Sprintf("%s: %s", id, s.Translator.T(ctx, be.Key, be.Args...)))
	default:
		res.Fail++
		ue := NewUserError(ctx, s.Translator, err)
		if IsUserFacing(ctx, s.Translator, err) {
			logging.FromContext(ctx).Warn("batch item failed", "id", id, "error", ue.Technical)
		} else {
			logging.FromContext(ctx).Error("batch item failed", "id", id, "error", ue.Technical)
		}
		res.Errors = append(res.Errors, fmt.Sprintf("%s: %s", id, ue.Error()))
	}
}

func (s *QuotationService) approvalLabel(ctx context.Context, st model.ApprovalStatus) string {
	return s.Translator.T(ctx, "log.approvalStatus."+string(st))
}

// Snapshot returns the frozen form and values of a quotation, falling back
// to the live form and current values.
func (s *QuotationService) Snapshot(ctx context.Context, quotationID string) (*model.SnapshotContent, error) {
	id, err := IdentityFromContext(ctx)
	if err != nil {
		return nil, err
	}
	set := s.read()
	q, err := set.Quotations.Get(ctx, id.OrgID, quotationID)
	if err != nil {
		return nil, notFoundAs(err, QuotationModule.NotExistKey)
	}
	content, err := loadSnapshot(ctx, set.Snapshots(QuotationModule.Table), q.ID)
	if err != nil || content != nil {
		return content, err
	}
	form, err := s.form(ctx, id.OrgID, QuotationModule)
	if err != nil {
		return nil, err
	}
	values, err := s.fields(set, QuotationModule).ListByResourceIDs(ctx, []string{q.ID}, form, true)
	if err != nil {
		return nil, err
	}
	return &model.SnapshotContent{Form: form, Record: q, Fields: values[q.ID]}, nil
}

// FormSnapshot returns the form a quotation was last saved with.
func (s *QuotationService) FormSnapshot(ctx context.Context, quotationID string) (field.FormConfig, error) {
	content, err := s.Snapshot(ctx, quotationID)
	if err != nil {
		return field.FormConfig{}, err
	}
	return content.Form, nil
}

// ExportAll exports every quotation matching req's filters.
func (s *QuotationService) ExportAll(ctx context.Context, req ExportRequest) (string, error) {
	return s.submitExport(ctx, QuotationModule, req, s.source(ctx), false)
}

// ExportSelected exports the quotations in req.SelectIDs.
func (s *QuotationService) ExportSelected(ctx context.Context, req ExportRequest) (string, error) {
	return s.submitExport(ctx, QuotationModule, req, s.source(ctx), true)
}

func (s *QuotationService) source(ctx context.Context) *recordSource {
	id, _ := IdentityFromContext(ctx)
	return &recordSource{
		list: func(ctx context.Context, q model.ListQuery) ([]export.Record, error) {
			list, _, err := s.read().Quotations.List(ctx, id.OrgID, q)
			if err != nil {
				return nil, err
			}
			return s.records(ctx, id.OrgID, list)
		},
		byIDs: func(ctx context.Context, ids []string) ([]export.Record, error) {
			list, err := s.read().Quotations.ListByIDs(ctx, id.OrgID, ids)
			if err != nil {
				return nil, err
			}
			return s.records(ctx, id.OrgID, list)
		},
	}
}

func (s *QuotationService) records(ctx context.Context, orgID string, list []*model.Quotation) ([]export.Record, error) {
	if len(list) == 0 {
		return nil, nil
	}
	set := s.read()
	ids := make([]string, 0, len(list))
	oppIDs := make([]string, 0, len(list))
	userIDs := make([]string, 0, len(list)*2)
	for _, q := range list {
		ids = append(ids, q.ID)
		oppIDs = append(oppIDs, q.OpportunityID)
		userIDs = append(userIDs, q.CreateUser, q.UpdateUser)
	}
	cells, err := s.fields(set, QuotationModule).Cells(ctx, ids)
	if err != nil {
		return nil, err
	}
	opportunities, err := set.Lookups.Opportunities(ctx, orgID, uniq(oppIDs))
	if err != nil {
		return nil, err
	}
	names, err := s.names(ctx, set, orgID, userIDs, nil)
	if err != nil {
		return nil, err
	}

	out := make([]export.Record, 0, len(list))
	for _, q := range list {
		system := map[string]any{
			"name":           q.Name,
			"opportunityId":  opportunities[q.OpportunityID],
			"amount":         q.Amount.StringFixed(AmountScale),
			"approvalStatus": s.approvalLabel(ctx, q.ApprovalStatus),
		}
		out = append(out, export.Record{ID: q.ID, System: auditColumns(system, q.Audit, names), Cells: cells[q.ID]})
	}
	return out, nil
}
