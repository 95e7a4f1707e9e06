package core

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/JonMunkholm/crm/internal/export"
	"github.com/JonMunkholm/crm/internal/field"
	"github.com/JonMunkholm/crm/internal/model"
	"github.com/JonMunkholm/crm/internal/repository"
)

// PriceRequest adds or updates a price table.
type PriceRequest struct {
	ID     string        `json:"id,omitempty"`
	Name   string        `json:"name"`
	Fields []field.Value `json:"moduleFields"`
}

// BatchUpdateRequest sets one field to the same value on many prices.
type BatchUpdateRequest struct {
	IDs        []string `json:"ids"`
	FieldID    string   `json:"fieldId"`
	FieldValue any      `json:"fieldValue"`
}

// MoveMode places a dragged price before or after its target.
type MoveMode string

const (
	MoveBefore MoveMode = "BEFORE"
	MoveAfter  MoveMode = "AFTER"
)

// PosRequest moves MoveID next to TargetID.
type PosRequest struct {
	MoveID   string   `json:"moveId"`
	TargetID string   `json:"targetId"`
	MoveMode MoveMode `json:"moveMode"`
}

// PriceService manages product price tables.
type PriceService struct {
	base
}

// NewPriceService creates the price service.
func NewPriceService(d Deps) *PriceService {
	return &PriceService{base: newBase(d)}
}

// Form returns the caller's price form.
func (s *PriceService) Form(ctx context.Context) (field.FormConfig, error) {
	return s.callerForm(ctx, PriceModule)
}

func priceColumns(p *model.ProductPrice) map[string]any {
	return map[string]any{"name": p.Name}
}

func (s *PriceService) subject(p *model.ProductPrice, form field.FormConfig) LogSubject {
	return LogSubject{Module: PriceModule.LogModule, ID: p.ID, Name: p.Name, Form: form}
}

// Add creates a price table at the end of the list.
func (s *PriceService) Add(ctx context.Context, req PriceRequest) (*model.ProductPrice, error) {
	id, err := IdentityFromContext(ctx)
	if err != nil {
		return nil, err
	}
	form, err := s.form(ctx, id.OrgID, PriceModule)
	if err != nil {
		return nil, err
	}
	if err := requireText(req.Name, s.label(ctx, "name")); err != nil {
		return nil, err
	}
	if err := validateFields(s.Registry, form, req.Fields); err != nil {
		return nil, err
	}

	now := s.now()
	at := now.UnixMilli()
	p := &model.ProductPrice{
		ID:             uuid.NewString(),
		OrganizationID: id.OrgID,
		Name:           strings.TrimSpace(req.Name),
		Audit:          model.Audit{CreateTime: at, CreateUser: id.UserID, UpdateTime: at, UpdateUser: id.UserID},
	}

	err = s.inTx(ctx, func(set *repository.Set) error {
		last, err := set.Prices.MaxPos(ctx, id.OrgID)
		if err != nil {
			return err
		}
		p.Pos = last + model.PosStep

		values, _, err := fillSerialNumbers(ctx, set.Serials, id.OrgID, form, req.Fields, now)
		if err != nil {
			return err
		}
		if err := set.Prices.Create(ctx, p); err != nil {
			return err
		}
		if err := s.fields(set, PriceModule).Save(ctx, p.ID, form, values); err != nil {
			return err
		}
		return set.Logs.Insert(ctx, s.Logs.AddLog(ctx, s.subject(p, form), priceColumns(p), values))
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Update replaces a price table's name and fields.
func (s *PriceService) Update(ctx context.Context, req PriceRequest) (*model.ProductPrice, error) {
	id, err := IdentityFromContext(ctx)
	if err != nil {
		return nil, err
	}
	form, err := s.form(ctx, id.OrgID, PriceModule)
	if err != nil {
		return nil, err
	}
	if err := requireText(req.Name, s.label(ctx, "name")); err != nil {
		return nil, err
	}
	if err := validateFields(s.Registry, form, req.Fields); err != nil {
		return nil, err
	}

	var updated *model.ProductPrice
	err = s.inTx(ctx, func(set *repository.Set) error {
		old, err := set.Prices.Get(ctx, id.OrgID, req.ID)
		if err != nil {
			return notFoundAs(err, PriceModule.NotExistKey)
		}
		p := *old
		p.Name = strings.TrimSpace(req.Name)
		p.UpdateTime = s.stamp()
		p.UpdateUser = id.UserID
		if err := s.replace(ctx, set, form, old, &p, req.Fields); err != nil {
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

// replace stores p with values and logs the diff against old.
func (s *PriceService) replace(ctx context.Context, set *repository.Set, form field.FormConfig, old, p *model.ProductPrice, values []field.Value) error {
	fields := s.fields(set, PriceModule)
	stored, err := fields.ListByResourceIDs(ctx, []string{old.ID}, form, true)
	if err != nil {
		return err
	}
	if err := set.Prices.Update(ctx, p); err != nil {
		return err
	}
	if err := fields.Replace(ctx, p.ID, form, values); err != nil {
		return err
	}
	return set.Logs.Insert(ctx, s.Logs.UpdateLog(ctx, s.subject(p, form), priceColumns(old), priceColumns(p), stored[old.ID], values))
}

// BatchUpdate sets one field on every listed price, logging each record.
// A field bound to the name column updates the name.
func (s *PriceService) BatchUpdate(ctx context.Context, req BatchUpdateRequest) error {
	id, err := IdentityFromContext(ctx)
	if err != nil {
		return err
	}
	ids := uniq(req.IDs)
	if len(ids) == 0 {
		return Invalid("common.id.required")
	}
	form, err := s.form(ctx, id.OrgID, PriceModule)
	if err != nil {
		return err
	}
	f, ok := form.Field(req.FieldID)
	if !ok {
		return Invalid("product.price.field.not.exist")
	}
	if f.BusinessKey == "" && !field.IsBlank(req.FieldValue) {
		if err := checkValue(s.Registry, f, req.FieldValue); err != nil {
			return err
		}
	}

	return s.Batches.run(ctx, func() error {
		return s.batchUpdate(ctx, id, ids, form, f, req.FieldValue)
	})
}

func (s *PriceService) batchUpdate(ctx context.Context, id Identity, ids []string, form field.FormConfig, f field.Field, value any) error {
	return s.inTx(ctx, func(set *repository.Set) error {
		prices, err := set.Prices.ListByIDs(ctx, id.OrgID, ids)
		if err != nil {
			return err
		}
		current, err := s.fields(set, PriceModule).ListByResourceIDs(ctx, ids, form, true)
		if err != nil {
			return err
		}
		at := s.stamp()
		for _, old := range prices {
			p := *old
			p.UpdateTime = at
			p.UpdateUser = id.UserID
			values := copyValues(current[p.ID])
			if f.BusinessKey == "name" {
				name, _ := value.(string)
				if err := requireText(name, s.label(ctx, "name")); err != nil {
					return err
				}
				p.Name = strings.TrimSpace(name)
			} else {
				values = setValue(values, f.ID, value)
				if field.IsBlank(value) {
					values = withoutField(values, f.ID)
				}
			}
			if err := s.replace(ctx, set, form, old, &p, values); err != nil {
				return err
			}
		}
		return nil
	})
}

// EditPos moves a price before or after a target. The new position is the
// midpoint of its new neighbours; positions are renumbered when no integer
// fits between them.
func (s *PriceService) EditPos(ctx context.Context, req PosRequest) error {
	id, err := IdentityFromContext(ctx)
	if err != nil {
		return err
	}
	if req.MoveMode != MoveBefore && req.MoveMode != MoveAfter {
		return Invalid("common.field.invalid", "moveMode")
	}
	if req.MoveID == req.TargetID {
		return nil
	}
	return s.inTx(ctx, func(set *repository.Set) error {
		move, err := set.Prices.Get(ctx, id.OrgID, req.MoveID)
		if err != nil {
			return notFoundAs(err, PriceModule.NotExistKey)
		}
		pos, ok, err := s.slot(ctx, set, id.OrgID, move.ID, req)
		if err != nil || !ok {
			return err
		}
		return set.Prices.UpdatePos(ctx, move.ID, pos)
	})
}

// slot finds the position for the moved price. ok is false when it already
// sits there.
func (s *PriceService) slot(ctx context.Context, set *repository.Set, orgID, moveID string, req PosRequest) (int64, bool, error) {
	for attempt := 0; attempt < 2; attempt++ {
		target, err := set.Prices.Get(ctx, orgID, req.TargetID)
		if err != nil {
			return 0, false, notFoundAs(err, "product.price.pos.target.not.exist")
		}
		after := req.MoveMode == MoveAfter
		next, err := set.Prices.Neighbour(ctx, orgID, target.Pos, after)
		if err != nil {
			return 0, false, err
		}
		if next != nil && next.ID == moveID {
			return 0, false, nil
		}

		lo, hi := target.Pos, target.Pos+2*model.PosStep
		if next != nil {
			hi = next.Pos
		}
		if !after {
			lo, hi = 0, target.Pos
			if next != nil {
				lo = next.Pos
			}
		}
		if hi-lo >= 2 {
			return lo + (hi-lo)/2, true, nil
		}
		if attempt == 0 {
			if err := set.Prices.Renumber(ctx, orgID, model.PosStep); err != nil {
				return 0, false, err
			}
		}
	}
	return 0, false, Reject("product.price.pos.target.not.exist")
}

// Delete removes a price table and its fields.
func (s *PriceService) Delete(ctx context.Context, priceID string) error {
	id, err := IdentityFromContext(ctx)
	if err != nil {
		return err
	}
	return s.inTx(ctx, func(set *repository.Set) error {
		p, err := set.Prices.Get(ctx, id.OrgID, priceID)
		if err != nil {
			return notFoundAs(err, PriceModule.NotExistKey)
		}
		if err := s.fields(set, PriceModule).Delete(ctx, p.ID); err != nil {
			return err
		}
		if err := set.Prices.Delete(ctx, p.ID); err != nil {
			return err
		}
		return set.Logs.Insert(ctx, s.Logs.Entry(ctx, PriceModule.LogModule, model.OpDelete, p.ID, p.Name))
	})
}

// Get returns a price table with names, fields and options.
func (s *PriceService) Get(ctx context.Context, priceID string) (*model.ProductPriceView, error) {
	id, err := IdentityFromContext(ctx)
	if err != nil {
		return nil, err
	}
	set := s.read()
	p, err := set.Prices.Get(ctx, id.OrgID, priceID)
	if err != nil {
		return nil, notFoundAs(err, PriceModule.NotExistKey)
	}
	page, err := s.views(ctx, set, id.OrgID, []*model.ProductPrice{p}, true)
	if err != nil {
		return nil, err
	}
	view := page.List[0]
	view.OptionMap = page.OptionMap
	return view, nil
}

// List returns one page of price tables in pos order.
func (s *PriceService) List(ctx context.Context, q model.ListQuery) (*model.Page[*model.ProductPriceView], error) {
	id, err := IdentityFromContext(ctx)
	if err != nil {
		return nil, err
	}
	q = q.Capped()
	set := s.read()
	list, total, err := set.Prices.List(ctx, id.OrgID, q)
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

func (s *PriceService) views(ctx context.Context, set *repository.Set, orgID string, list []*model.ProductPrice, includeBlob bool) (*model.Page[*model.ProductPriceView], error) {
	form, err := s.form(ctx, orgID, PriceModule)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(list))
	userIDs := make([]string, 0, len(list)*2)
	for _, p := range list {
		ids = append(ids, p.ID)
		userIDs = append(userIDs, p.CreateUser, p.UpdateUser)
	}
	values, err := s.fields(set, PriceModule).ListByResourceIDs(ctx, ids, form, includeBlob)
	if err != nil {
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

	page := &model.Page[*model.ProductPriceView]{OptionMap: names.optionMap(form, records...)}
	for _, p := range list {
		v := &model.ProductPriceView{ProductPrice: *p, Fields: values[p.ID]}
		names.setAuditNames(v)
		page.List = append(page.List, v)
	}
	return page, nil
}

// ExportAll exports every price table matching req's filters.
func (s *PriceService) ExportAll(ctx context.Context, req ExportRequest) (string, error) {
	return s.submitExport(ctx, PriceModule, req, s.source(ctx), false)
}

// ExportSelected exports the price tables in req.SelectIDs.
func (s *PriceService) ExportSelected(ctx context.Context, req ExportRequest) (string, error) {
	return s.submitExport(ctx, PriceModule, req, s.source(ctx), true)
}

func (s *PriceService) source(ctx context.Context) *recordSource {
	id, _ := IdentityFromContext(ctx)
	return &recordSource{
		list: func(ctx context.Context, q model.ListQuery) ([]export.Record, error) {
			list, _, err := s.read().Prices.List(ctx, id.OrgID, q)
			if err != nil {
				return nil, err
			}
			return s.records(ctx, id.OrgID, list)
		},
		byIDs: func(ctx context.Context, ids []string) ([]export.Record, error) {
			list, err := s.read().Prices.ListByIDs(ctx, id.OrgID, ids)
			if err != nil {
				return nil, err
			}
			return s.records(ctx, id.OrgID, list)
		},
	}
}

func (s *PriceService) records(ctx context.Context, orgID string, list []*model.ProductPrice) ([]export.Record, error) {
	if len(list) == 0 {
		return nil, nil
	}
	set := s.read()
	ids := make([]string, 0, len(list))
	userIDs := make([]string, 0, len(list)*2)
	for _, p := range list {
		ids = append(ids, p.ID)
		userIDs = append(userIDs, p.CreateUser, p.UpdateUser)
	}
	cells, err := s.fields(set, PriceModule).Cells(ctx, ids)
	if err != nil {
		return nil, err
	}
	names, err := s.names(ctx, set, orgID, userIDs, nil)
	if err != nil {
		return nil, err
	}
	out := make([]export.Record, 0, len(list))
	for _, p := range list {
		system := map[string]any{"name": p.Name, "pos": p.Pos}
		out = append(out, export.Record{ID: p.ID, System: auditColumns(system, p.Audit, names), Cells: cells[p.ID]})
	}
	return out, nil
}
