package core

import (
	"context"

	"github.com/JonMunkholm/crm/internal/export"
	"github.com/JonMunkholm/crm/internal/field"
	"github.com/JonMunkholm/crm/internal/i18n"
	"github.com/JonMunkholm/crm/internal/model"
)

// ExportRequest is an export submitted through a domain service.
type ExportRequest struct {
	FileName string        `json:"fileName"`
	Heads    []export.Head `json:"headList"`

	// Keyword and ParentID filter "export all" like the list page does.
	Keyword  string `json:"keyword,omitempty"`
	ParentID string `json:"parentId,omitempty"`

	// SelectIDs lists the records of "export selected".
	SelectIDs []string `json:"selectIds,omitempty"`
}

// recordSource adapts a service's list functions to export.Source.
type recordSource struct {
	query model.ListQuery
	form  func(ctx context.Context) (field.FormConfig, error)
	list  func(ctx context.Context, q model.ListQuery) ([]export.Record, error)
	byIDs func(ctx context.Context, ids []string) ([]export.Record, error)
}

func (s *recordSource) Form(ctx context.Context) (field.FormConfig, error) {
	return s.form(ctx)
}

func (s *recordSource) Page(ctx context.Context, page, size int) ([]export.Record, error) {
	q := s.query
	q.Current = page
	q.PageSize = size
	return s.list(ctx, q)
}

func (s *recordSource) ByIDs(ctx context.Context, ids []string) ([]export.Record, error) {
	return s.byIDs(ctx, ids)
}

// exportForm returns the live form of m with member and department options
// filled with every user and department of the organization.
func (b *base) exportForm(ctx context.Context, orgID string, m Module) (field.FormConfig, error) {
	form, err := b.form(ctx, orgID, m)
	if err != nil {
		return field.FormConfig{}, err
	}
	names, err := b.allNames(ctx, b.read(), orgID)
	if err != nil {
		return field.FormConfig{}, err
	}
	return names.formWithNames(form), nil
}

// submitExport hands src to the export pipeline and returns the task id.
func (b *base) submitExport(ctx context.Context, m Module, req ExportRequest, src *recordSource, selected bool) (string, error) {
	id, err := IdentityFromContext(ctx)
	if err != nil {
		return "", err
	}
	src.query = model.ListQuery{Keyword: req.Keyword, ParentID: req.ParentID}
	if src.form == nil {
		src.form = func(ctx context.Context) (field.FormConfig, error) {
			return b.exportForm(ctx, id.OrgID, m)
		}
	}

	r := export.Request{
		OrganizationID: id.OrgID,
		UserID:         id.UserID,
		Locale:         i18n.Locale(ctx),
		FileName:       req.FileName,
		Type:           m.ExportType,
		Heads:          req.Heads,
		SelectIDs:      req.SelectIDs,
	}
	if selected {
		return b.Exports.ExportSelected(ctx, r, src)
	}
	return b.Exports.ExportAll(ctx, r, src)
}

// auditColumns adds the create and update columns shared by every export.
func auditColumns(system map[string]any, a model.Audit, names displayNames) map[string]any {
	system["createUser"] = names.user(a.CreateUser)
	system["createTime"] = formatTime(a.CreateTime)
	system["updateUser"] = names.user(a.UpdateUser)
	system["updateTime"] = formatTime(a.UpdateTime)
	return system
}
