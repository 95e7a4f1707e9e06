package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JonMunkholm/crm/internal/database"
	"github.com/JonMunkholm/crm/internal/field"
	"github.com/JonMunkholm/crm/internal/i18n"
	"github.com/JonMunkholm/crm/internal/model"
	"github.com/JonMunkholm/crm/internal/repository"
	"github.com/JonMunkholm/crm/internal/resourcefield"
)

const (
	testOrg  = "org-1"
	testUser = "u-admin"
)

// memStore is an in-memory stand-in for every repository of a Set.
type memStore struct {
	mu sync.Mutex

	contracts  map[string]*model.Contract
	plans      map[string]*model.PaymentPlan
	quotations map[string]*model.Quotation
	prices     map[string]*model.ProductPrice
	logs       []*model.OperationLog
	forms      map[string]field.FormConfig
	users      map[string]model.UserOption
	depts      map[string]string
	customers  map[string]string
	opps       map[string]string
	serials    map[string]int64
	cells      map[string]map[string][]resourcefield.Cell
	snapshots  map[string]map[string]*model.Snapshot
}

func newMemStore() *memStore {
	return &memStore{
		contracts:  map[string]*model.Contract{},
		plans:      map[string]*model.PaymentPlan{},
		quotations: map[string]*model.Quotation{},
		prices:     map[string]*model.ProductPrice{},
		forms:      map[string]field.FormConfig{},
		users: map[string]model.UserOption{
			testUser: {ID: testUser, Name: "Admin", DepartmentID: "d-1", DepartmentName: "Sales"},
			"u-2":    {ID: "u-2", Name: "Bob", DepartmentID: "d-1", DepartmentName: "Sales"},
		},
		depts:     map[string]string{"d-1": "Sales", "d-2": "Support"},
		customers: map[string]string{"cust-1": "Acme"},
		opps:      map[string]string{"opp-1": "Big deal"},
		serials:   map[string]int64{},
		cells:     map[string]map[string][]resourcefield.Cell{},
		snapshots: map[string]map[string]*model.Snapshot{},
	}
}

func (m *memStore) set() *repository.Set {
	return &repository.Set{
		Contracts:    memContracts{m},
		PaymentPlans: memPlans{m},
		Quotations:   memQuotations{m},
		Prices:       memPrices{m},
		Logs:         memLogs{m},
		Forms:        memForms{m},
		Lookups:      memLookups{m},
		Serials:      memSerials{m},
		Fields: func(table string) resourcefield.Repository {
			return memFields{m, table}
		},
		Snapshots: func(table string) repository.SnapshotRepository {
			return memSnapshots{m, table}
		},
	}
}

func (m *memStore) logsOf(resourceID string) []*model.OperationLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.OperationLog
	for _, l := range m.logs {
		if l.ResourceID == resourceID {
			out = append(out, l)
		}
	}
	return out
}

// fakeTx runs fn without a real transaction.
type fakeTx struct{}

func (fakeTx) InTx(_ context.Context, fn func(db database.DBTX) error) error {
	return fn(nil)
}

func testDeps(m *memStore) Deps {
	reg := field.DefaultRegistry()
	tr := i18n.MustBundle(i18n.EnUS)
	return Deps{
		Tx:         fakeTx{},
		Repos:      func(database.DBTX) *repository.Set { return m.set() },
		Registry:   reg,
		Forms:      NewFormProvider(memForms{m}, 16, time.Minute),
		Translator: tr,
		Logs:       NewOperationLogger(memLogs{m}, reg, tr),
		Batches:    NewBatchLimiter(2, time.Second),
	}
}

func testContext() context.Context {
	ctx := ContextWithIdentity(context.Background(), Identity{UserID: testUser, OrgID: testOrg})
	return i18n.WithLocale(ctx, i18n.EnUS)
}

// productsField is the product sub-table used by contract and quotation forms.
var productsField = field.Field{
	ID:   ProductsFieldID,
	Name: "Products",
	Type: field.TypeSubProduct,
	SubFields: []field.Field{
		{ID: "productId", Name: "Product", Type: field.TypeInput},
		{ID: "amount", Name: "Amount", Type: field.TypeNumber},
	},
}

func contractForm() field.FormConfig {
	return field.FormConfig{FormKey: ContractModule.FormKey, Fields: []field.Field{
		{ID: "f-name", Name: "Name", Type: field.TypeInput, BusinessKey: "name", Required: true},
		{ID: "f-remark", Name: "Remark", Type: field.TypeInput, Required: true},
		{ID: "f-level", Name: "Level", Type: field.TypeSelect, Options: []field.Option{{Value: "A", Label: "Gold"}, {Value: "B", Label: "Silver"}}},
		{ID: "f-sales", Name: "Sales", Type: field.TypeMember},
		{ID: "f-no", Name: "Contract No", Type: field.TypeSerialNumber, SerialRule: &field.SerialRule{Prefix: "HT", SeqLength: 3}},
		productsField,
	}}
}

func simpleForm(formKey string) field.FormConfig {
	return field.FormConfig{FormKey: formKey, Fields: []field.Field{
		{ID: "f-remark", Name: "Remark", Type: field.TypeInput},
		{ID: "f-level", Name: "Level", Type: field.TypeSelect, Options: []field.Option{{Value: "A", Label: "Gold"}, {Value: "B", Label: "Silver"}}},
		{ID: "f-name", Name: "Name", Type: field.TypeInput, BusinessKey: "name"},
	}}
}

func quotationForm() field.FormConfig {
	form := simpleForm(QuotationModule.FormKey)
	form.Fields = append(form.Fields, productsField)
	return form
}

// seedForms stores the forms of every module.
func (m *memStore) seedForms() {
	m.forms[testOrg+":"+ContractModule.FormKey] = contractForm()
	m.forms[testOrg+":"+PaymentPlanModule.FormKey] = simpleForm(PaymentPlanModule.FormKey)
	m.forms[testOrg+":"+QuotationModule.FormKey] = quotationForm()
	m.forms[testOrg+":"+PriceModule.FormKey] = simpleForm(PriceModule.FormKey)
}

type memContracts struct{ m *memStore }

func (r memContracts) Create(_ context.Context, c *model.Contract) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	cp := *c
	r.m.contracts[c.ID] = &cp
	return nil
}

func (r memContracts) Get(_ context.Context, orgID, id string) (*model.Contract, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c, ok := r.m.contracts[id]
	if !ok || c.OrganizationID != orgID {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r memContracts) Update(_ context.Context, c *model.Contract) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.contracts[c.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *c
	r.m.contracts[c.ID] = &cp
	return nil
}

func (r memContracts) Delete(_ context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	delete(r.m.contracts, id)
	return nil
}

func (r memContracts) List(_ context.Context, orgID string, q model.ListQuery) ([]*model.Contract, int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var all []*model.Contract
	for _, c := range r.m.contracts {
		if c.OrganizationID == orgID && strings.Contains(c.Name, q.Keyword) {
			cp := *c
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return page(all, q), int64(len(all)), nil
}

func (r memContracts) ListByIDs(ctx context.Context, orgID string, ids []string) ([]*model.Contract, error) {
	var out []*model.Contract
	for _, id := range ids {
		if c, err := r.Get(ctx, orgID, id); err == nil {
			out = append(out, c)
		}
	}
	return out, nil
}

type memPlans struct{ m *memStore }

func (r memPlans) Create(_ context.Context, p *model.PaymentPlan) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	cp := *p
	r.m.plans[p.ID] = &cp
	return nil
}

func (r memPlans) Get(_ context.Context, orgID, id string) (*model.PaymentPlan, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	p, ok := r.m.plans[id]
	if !ok || p.OrganizationID != orgID {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r memPlans) Update(_ context.Context, p *model.PaymentPlan) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	cp := *p
	r.m.plans[p.ID] = &cp
	return nil
}

func (r memPlans) Delete(_ context.Context, ids ...string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, id := range ids {
		delete(r.m.plans, id)
	}
	return nil
}

func (r memPlans) List(_ context.Context, orgID string, q model.ListQuery) ([]*model.PaymentPlan, int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var all []*model.PaymentPlan
	for _, p := range r.m.plans {
		if p.OrganizationID == orgID && (q.ParentID == "" || p.ContractID == q.ParentID) {
			cp := *p
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return page(all, q), int64(len(all)), nil
}

func (r memPlans) ListByIDs(ctx context.Context, orgID string, ids []string) ([]*model.PaymentPlan, error) {
	var out []*model.PaymentPlan
	for _, id := range ids {
		if p, err := r.Get(ctx, orgID, id); err == nil {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r memPlans) IDsByContract(_ context.Context, contractID string) ([]string, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var ids []string
	for _, p := range r.m.plans {
		if p.ContractID == contractID {
			ids = append(ids, p.ID)
		}
	}
	return ids, nil
}

type memQuotations struct{ m *memStore }

func (r memQuotations) Create(_ context.Context, q *model.Quotation) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	cp := *q
	r.m.quotations[q.ID] = &cp
	return nil
}

func (r memQuotations) Get(_ context.Context, orgID, id string) (*model.Quotation, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	q, ok := r.m.quotations[id]
	if !ok || q.OrganizationID != orgID {
		return nil, repository.ErrNotFound
	}
	cp := *q
	return &cp, nil
}

func (r memQuotations) Update(_ context.Context, q *model.Quotation) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	cp := *q
	r.m.quotations[q.ID] = &cp
	return nil
}

func (r memQuotations) UpdateApproval(_ context.Context, id string, status model.ApprovalStatus, userID string, at int64) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	q, ok := r.m.quotations[id]
	if !ok {
		return repository.ErrNotFound
	}
	q.ApprovalStatus, q.UpdateUser, q.UpdateTime = status, userID, at
	return nil
}

func (r memQuotations) Delete(_ context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	delete(r.m.quotations, id)
	return nil
}

func (r memQuotations) List(_ context.Context, orgID string, q model.ListQuery) ([]*model.Quotation, int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var all []*model.Quotation
	for _, item := range r.m.quotations {
		if item.OrganizationID == orgID && (q.ParentID == "" || item.OpportunityID == q.ParentID) {
			cp := *item
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return page(all, q), int64(len(all)), nil
}

func (r memQuotations) ListByIDs(ctx context.Context, orgID string, ids []string) ([]*model.Quotation, error) {
	var out []*model.Quotation
	for _, id := range ids {
		if q, err := r.Get(ctx, orgID, id); err == nil {
			out = append(out, q)
		}
	}
	return out, nil
}

type memPrices struct{ m *memStore }

func (r memPrices) Create(_ context.Context, p *model.ProductPrice) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	cp := *p
	r.m.prices[p.ID] = &cp
	return nil
}

func (r memPrices) Get(_ context.Context, orgID, id string) (*model.ProductPrice, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	p, ok := r.m.prices[id]
	if !ok || p.OrganizationID != orgID {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r memPrices) Update(_ context.Context, p *model.ProductPrice) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	cp := *p
	r.m.prices[p.ID] = &cp
	return nil
}

func (r memPrices) Delete(_ context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	delete(r.m.prices, id)
	return nil
}

// sorted returns the prices of orgID in pos order. Callers hold the lock.
func (r memPrices) sorted(orgID string) []*model.ProductPrice {
	var all []*model.ProductPrice
	for _, p := range r.m.prices {
		if p.OrganizationID == orgID {
			cp := *p
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Pos < all[j].Pos })
	return all
}

func (r memPrices) List(_ context.Context, orgID string, q model.ListQuery) ([]*model.ProductPrice, int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	all := r.sorted(orgID)
	return page(all, q), int64(len(all)), nil
}

func (r memPrices) ListByIDs(ctx context.Context, orgID string, ids []string) ([]*model.ProductPrice, error) {
	var out []*model.ProductPrice
	for _, id := range ids {
		if p, err := r.Get(ctx, orgID, id); err == nil {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r memPrices) MaxPos(_ context.Context, orgID string) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	all := r.sorted(orgID)
	if len(all) == 0 {
		return 0, nil
	}
	return all[len(all)-1].Pos, nil
}

func (r memPrices) Neighbour(_ context.Context, orgID string, pos int64, after bool) (*model.ProductPrice, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	all := r.sorted(orgID)
	if after {
		for _, p := range all {
			if p.Pos > pos {
				return p, nil
			}
		}
		return nil, nil
	}
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].Pos < pos {
			return all[i], nil
		}
	}
	return nil, nil
}

func (r memPrices) UpdatePos(_ context.Context, id string, pos int64) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.prices[id].Pos = pos
	return nil
}

func (r memPrices) Renumber(_ context.Context, orgID string, step int64) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for i, p := range r.sorted(orgID) {
		r.m.prices[p.ID].Pos = int64(i+1) * step
	}
	return nil
}

func page[T any](all []T, q model.ListQuery) []T {
	start := q.Offset()
	if start >= len(all) {
		return nil
	}
	end := start + q.Limit()
	if end > len(all) {
		end = len(all)
	}
	return all[start:end]
}

type memLogs struct{ m *memStore }

func (r memLogs) Insert(_ context.Context, logs ...*model.OperationLog) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.logs = append(r.m.logs, logs...)
	return nil
}

func (r memLogs) ListByResource(_ context.Context, orgID, resourceID string, limit int) ([]*model.OperationLog, error) {
	return r.m.logsOf(resourceID), nil
}

type memForms struct{ m *memStore }

func (r memForms) Get(_ context.Context, orgID, formKey string) (field.FormConfig, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	f, ok := r.m.forms[orgID+":"+formKey]
	if !ok {
		return field.FormConfig{}, repository.ErrNotFound
	}
	return f, nil
}

func (r memForms) Save(_ context.Context, orgID string, form field.FormConfig, _ string, _ int64) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.forms[orgID+":"+form.FormKey] = form
	return nil
}

type memLookups struct{ m *memStore }

func (r memLookups) Users(_ context.Context, _ string, ids []string) (map[string]model.UserOption, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := map[string]model.UserOption{}
	for id, u := range r.m.users {
		if len(ids) == 0 || contains(ids, id) {
			out[id] = u
		}
	}
	return out, nil
}

func (r memLookups) Departments(_ context.Context, _ string, ids []string) (map[string]string, error) {
	return pick(r.m, r.m.depts, ids, true), nil
}

func (r memLookups) Customers(_ context.Context, _ string, ids []string) (map[string]string, error) {
	return pick(r.m, r.m.customers, ids, false), nil
}

func (r memLookups) Opportunities(_ context.Context, _ string, ids []string) (map[string]string, error) {
	return pick(r.m, r.m.opps, ids, false), nil
}

func (r memLookups) Contracts(_ context.Context, _ string, ids []string) (map[string]string, error) {
	r.m.mu.Lock()
	names := map[string]string{}
	for id, c := range r.m.contracts {
		names[id] = c.Name
	}
	r.m.mu.Unlock()
	return pick(r.m, names, ids, false), nil
}

func pick(m *memStore, src map[string]string, ids []string, all bool) map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]string{}
	for id, name := range src {
		if (all && len(ids) == 0) || contains(ids, id) {
			out[id] = name
		}
	}
	return out
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

type memSerials struct{ m *memStore }

func (r memSerials) Next(_ context.Context, orgID, ruleKey, day string) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	key := orgID + "|" + ruleKey + "|" + day
	r.m.serials[key]++
	return r.m.serials[key], nil
}

type memFields struct {
	m     *memStore
	table string
}

func (r memFields) Insert(_ context.Context, resourceID string, cells []resourcefield.Cell) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.cells[r.table] == nil {
		r.m.cells[r.table] = map[string][]resourcefield.Cell{}
	}
	r.m.cells[r.table][resourceID] = append(r.m.cells[r.table][resourceID], cells...)
	return nil
}

func (r memFields) Delete(_ context.Context, resourceIDs ...string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, id := range resourceIDs {
		delete(r.m.cells[r.table], id)
	}
	return nil
}

func (r memFields) List(_ context.Context, resourceIDs []string, includeBlob bool) (map[string][]resourcefield.Cell, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := map[string][]resourcefield.Cell{}
	for _, id := range resourceIDs {
		for _, c := range r.m.cells[r.table][id] {
			if c.Blob && !includeBlob {
				continue
			}
			out[id] = append(out[id], c)
		}
	}
	return out, nil
}

type memSnapshots struct {
	m     *memStore
	table string
}

func (r memSnapshots) Insert(_ context.Context, s *model.Snapshot) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.snapshots[r.table] == nil {
		r.m.snapshots[r.table] = map[string]*model.Snapshot{}
	}
	if _, ok := r.m.snapshots[r.table][s.ResourceID]; ok {
		return fmt.Errorf("duplicate snapshot for %s", s.ResourceID)
	}
	r.m.snapshots[r.table][s.ResourceID] = s
	return nil
}

func (r memSnapshots) Delete(_ context.Context, resourceIDs ...string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, id := range resourceIDs {
		delete(r.m.snapshots[r.table], id)
	}
	return nil
}

func (r memSnapshots) Get(_ context.Context, resourceID string) (*model.Snapshot, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.snapshots[r.table][resourceID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s, nil
}
