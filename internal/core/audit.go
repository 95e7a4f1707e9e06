package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/crm/internal/export"
	"github.com/JonMunkholm/crm/internal/field"
	"github.com/JonMunkholm/crm/internal/model"
	"github.com/JonMunkholm/crm/internal/repository"
)

// OperationLogger builds operation log entries. Entries for record changes
// are returned to the caller, which inserts them in its own transaction;
// export entries are written directly.
type OperationLogger struct {
	logs     repository.OperationLogRepository
	registry *field.Registry
	tr       Translator
	now      func() time.Time
}

// NewOperationLogger creates a logger writing export entries to logs.
func NewOperationLogger(logs repository.OperationLogRepository, registry *field.Registry, tr Translator) *OperationLogger {
	return &OperationLogger{logs: logs, registry: registry, tr: tr, now: time.Now}
}

// LogSubject identifies the record an entry is about and how to label its
// dynamic fields.
type LogSubject struct {
	Module string
	ID     string
	Name   string
	Form   field.FormConfig

	// SubTableLabels overrides the column prefix of sub-table fields, keyed
	// by sub-table field id. The field name is used otherwise.
	SubTableLabels map[string]string
}

// Entry returns a bare entry stamped with the caller, address and time.
func (l *OperationLogger) Entry(ctx context.Context, module string, typ model.OperationType, resourceID, resourceName string) *model.OperationLog {
	id, _ := IdentityFromContext(ctx)
	return &model.OperationLog{
		ID:             uuid.NewString(),
		OrganizationID: id.OrgID,
		Module:         module,
		Type:           typ,
		ResourceID:     resourceID,
		ResourceName:   resourceName,
		Operator:       id.UserID,
		IPAddress:      GetIPAddressFromContext(ctx),
		UserAgent:      GetUserAgentFromContext(ctx),
		CreateTime:     l.now().UnixMilli(),
	}
}

// AddLog records the values a record was created with. Sub-table rows are
// flattened into one column per sub-field.
func (l *OperationLogger) AddLog(ctx context.Context, s LogSubject, system map[string]any, values []field.Value) *model.OperationLog {
	entry := l.Entry(ctx, s.Module, model.OpAdd, s.ID, s.Name)
	entry.ModifiedValue = rawValues(l.columns(ctx, s, system, values))
	return entry
}

// UpdateLog records the before and after values of a record with one diff
// per changed column.
func (l *OperationLogger) UpdateLog(ctx context.Context, s LogSubject, oldSystem, newSystem map[string]any, oldValues, newValues []field.Value) *model.OperationLog {
	before := l.columns(ctx, s, oldSystem, oldValues)
	after := l.columns(ctx, s, newSystem, newValues)

	entry := l.Entry(ctx, s.Module, model.OpUpdate, s.ID, s.Name)
	entry.OriginalValue = rawValues(before)
	entry.ModifiedValue = rawValues(after)
	entry.Diffs = diffColumns(before, after)
	return entry
}

// ChangeLog records a single-column transition such as void or archive.
// oldLabel and newLabel are the localized display values.
func (l *OperationLogger) ChangeLog(ctx context.Context, module string, typ model.OperationType, resourceID, resourceName, column string, oldValue, newValue any, oldLabel, newLabel string) *model.OperationLog {
	entry := l.Entry(ctx, module, typ, resourceID, resourceName)
	entry.OriginalValue = map[string]any{column: oldValue}
	entry.ModifiedValue = map[string]any{column: newValue}
	entry.Diffs = []model.Diff{{
		Column:      column,
		ColumnName:  l.tr.T(ctx, "head."+column),
		OldValue:    oldValue,
		NewValue:    newValue,
		OldValueStr: oldLabel,
		NewValueStr: newLabel,
	}}
	return entry
}

// LogExport writes the entry of a finished export task.
func (l *OperationLogger) LogExport(ctx context.Context, task export.Task) error {
	module := string(task.ResourceType)
	if m, ok := ByExportType(task.ResourceType); ok {
		module = m.LogModule
	}
	entry := l.Entry(ctx, module, model.OpExport, task.ID, task.FileName)
	entry.OrganizationID = task.OrganizationID
	entry.Operator = task.CreateUser
	entry.ModifiedValue = map[string]any{"status": task.Status, "fileId": task.FileID}
	return l.logs.Insert(ctx, entry)
}

// logColumn is one comparable value of a record.
type logColumn struct {
	label   string
	raw     any
	stored  string
	display string
}

// columns flattens system columns and dynamic values into log columns.
func (l *OperationLogger) columns(ctx context.Context, s LogSubject, system map[string]any, values []field.Value) map[string]logColumn {
	out := make(map[string]logColumn, len(system)+len(values))
	for key, v := range system {
		text := systemText(v)
		out[key] = logColumn{label: l.tr.T(ctx, "head."+key), raw: v, stored: text, display: text}
	}

	for _, fv := range values {
		f, ok := s.Form.Field(fv.FieldID)
		if !ok {
			continue
		}
		if !f.IsSubTable() {
			stored, display := l.render(f, fv.FieldValue)
			out[f.ID] = logColumn{label: f.Name, raw: fv.FieldValue, stored: stored, display: display}
			continue
		}

		rows, err := field.Rows(fv.FieldValue)
		if err != nil {
			continue
		}
		prefix := f.Name
		if label, ok := s.SubTableLabels[f.ID]; ok {
			prefix = label
		}
		for _, sub := range f.SubFields {
			raws := make([]any, 0, len(rows))
			stored := make([]string, 0, len(rows))
			display := make([]string, 0, len(rows))
			for _, row := range rows {
				st, disp := l.render(sub, row[sub.ID])
				raws = append(raws, row[sub.ID])
				stored = append(stored, st)
				display = append(display, disp)
			}
			out[f.ID+"."+sub.ID] = logColumn{
				label:   prefix + sub.Name,
				raw:     raws,
				stored:  strings.Join(stored, "\x1f"),
				display: strings.Join(display, ","),
			}
		}
	}
	return out
}

// render returns the stored form of v, used for comparison, and its display
// text. Values a resolver rejects fall back to their printed form.
func (l *OperationLogger) render(f field.Field, v any) (string, string) {
	if field.IsBlank(v) {
		return "", ""
	}
	stored, err := l.registry.Encode(f, v)
	if err != nil {
		text := fmt.Sprint(v)
		return text, text
	}
	display, err := l.registry.Transform(f, stored)
	if err != nil || display == nil {
		return stored, stored
	}
	return stored, fmt.Sprint(display)
}

func systemText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case *int64:
		if t == nil {
			return ""
		}
		return fmt.Sprint(*t)
	}
	return fmt.Sprint(v)
}

func rawValues(cols map[string]logColumn) map[string]any {
	out := make(map[string]any, len(cols))
	for k, c := range cols {
		out[k] = c.raw
	}
	return out
}

// diffColumns lists changed columns sorted by key.
func diffColumns(before, after map[string]logColumn) []model.Diff {
	keys := make(map[string]bool, len(before)+len(after))
	for k := range before {
		keys[k] = true
	}
	for k := range after {
		keys[k] = true
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	var diffs []model.Diff
	for _, k := range sorted {
		old, hadOld := before[k]
		cur, hasNew := after[k]
		if old.stored == cur.stored {
			continue
		}
		label := cur.label
		if !hasNew {
			label = old.label
		}
		d := model.Diff{Column: k, ColumnName: label, OldValueStr: old.display, NewValueStr: cur.display}
		if hadOld {
			d.OldValue = old.raw
		}
		if hasNew {
			d.NewValue = cur.raw
		}
		diffs = append(diffs, d)
	}
	return diffs
}
