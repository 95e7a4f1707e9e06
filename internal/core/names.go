package core

import (
	"context"
	"fmt"
	"sort"

	"github.com/JonMunkholm/crm/internal/field"
	"github.com/JonMunkholm/crm/internal/model"
)

// displayNames resolves user and department ids for one response.
type displayNames struct {
	users   map[string]model.UserOption
	depts   map[string]string
	missing string
}

func newDisplayNames(ctx context.Context, tr Translator, users map[string]model.UserOption, depts map[string]string) displayNames {
	return displayNames{users: users, depts: depts, missing: tr.T(ctx, "common.option.not_exist")}
}

// user returns the display name of id. Unknown ids render as the
// "option deleted" label; a blank id stays blank.
func (n displayNames) user(id string) string {
	if id == "" {
		return ""
	}
	if u, ok := n.users[id]; ok {
		return u.Name
	}
	return n.missing
}

func (n displayNames) department(id string) string {
	if id == "" {
		return ""
	}
	if name, ok := n.depts[id]; ok {
		return name
	}
	return n.missing
}

// setAuditNames fills create/update user names on every record.
func (n displayNames) setAuditNames(recs ...model.HasAuditNames) {
	for _, r := range recs {
		c, u := r.AuditUsers()
		r.SetAuditNames(n.user(c), n.user(u))
	}
}

// options builds the option list of f for the referenced ids.
func (n displayNames) options(f field.Field, ids []string) []field.Option {
	var opts []field.Option
	for _, id := range ids {
		label := n.missing
		switch {
		case f.IsMember():
			label = n.user(id)
		case f.IsDepartment():
			label = n.department(id)
		}
		opts = append(opts, field.Option{Value: id, Label: label})
	}
	return opts
}

// optionMap returns, per field id, the options needed to render values:
// configured options for choice fields and resolved names for member and
// department references.
func (n displayNames) optionMap(form field.FormConfig, records ...[]field.Value) map[string][]field.Option {
	out := make(map[string][]field.Option)
	refs := referencedIDs(form, records...)
	for _, f := range allFields(form) {
		switch {
		case f.IsMember() || f.IsDepartment():
			if ids := refs[f.ID]; len(ids) > 0 {
				out[f.ID] = n.options(f, ids)
			}
		case f.IsOptionSource() && len(f.Options) > 0:
			out[f.ID] = f.Options
		}
	}
	return out
}

// formWithNames fills member and department options from the resolved
// names, so resolvers can render ids as labels.
func (n displayNames) formWithNames(form field.FormConfig) field.FormConfig {
	return form.WithOptions(func(f field.Field) []field.Option {
		switch {
		case f.IsMember():
			opts := make([]field.Option, 0, len(n.users))
			for _, u := range n.users {
				opts = append(opts, field.Option{Value: u.ID, Label: u.Name})
			}
			return sortOptions(opts)
		case f.IsDepartment():
			opts := make([]field.Option, 0, len(n.depts))
			for id, name := range n.depts {
				opts = append(opts, field.Option{Value: id, Label: name})
			}
			return sortOptions(opts)
		}
		return nil
	})
}

func sortOptions(opts []field.Option) []field.Option {
	sort.Slice(opts, func(i, j int) bool { return opts[i].Value < opts[j].Value })
	return opts
}

// allFields lists top-level fields followed by their sub-fields.
func allFields(form field.FormConfig) []field.Field {
	var out []field.Field
	for _, f := range form.Fields {
		out = append(out, f)
		out = append(out, f.SubFields...)
	}
	return out
}

// referencedIDs collects member and department ids per field, including
// those inside sub-table rows, in first-seen order.
func referencedIDs(form field.FormConfig, records ...[]field.Value) map[string][]string {
	fields := form.FieldMap()
	out := make(map[string][]string)
	seen := make(map[string]map[string]bool)

	add := func(f field.Field, v any) {
		if !f.IsMember() && !f.IsDepartment() {
			return
		}
		if seen[f.ID] == nil {
			seen[f.ID] = make(map[string]bool)
		}
		for _, id := range idList(v) {
			if id != "" && !seen[f.ID][id] {
				seen[f.ID][id] = true
				out[f.ID] = append(out[f.ID], id)
			}
		}
	}

	for _, values := range records {
		for _, v := range values {
			f, ok := fields[v.FieldID]
			if !ok {
				continue
			}
			if !f.IsSubTable() {
				add(f, v.FieldValue)
				continue
			}
			rows, err := field.Rows(v.FieldValue)
			if err != nil {
				continue
			}
			for _, row := range rows {
				for _, sub := range f.SubFields {
					add(sub, row[sub.ID])
				}
			}
		}
	}
	return out
}

// memberIDs returns every user id referenced by member fields.
func memberIDs(form field.FormConfig, records ...[]field.Value) []string {
	return idsOf(form, records, field.Field.IsMember)
}

// departmentIDs returns every department id referenced by department fields.
func departmentIDs(form field.FormConfig, records ...[]field.Value) []string {
	return idsOf(form, records, field.Field.IsDepartment)
}

func idsOf(form field.FormConfig, records [][]field.Value, match func(field.Field) bool) []string {
	fields := form.FieldMap()
	var out []string
	for id, ids := range referencedIDs(form, records...) {
		if match(fields[id]) {
			out = append(out, ids...)
		}
	}
	return uniq(out)
}

func idList(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return []string{t}
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, fmt.Sprint(item))
		}
		return out
	}
	return []string{fmt.Sprint(v)}
}

// uniq drops blanks and duplicates, keeping first-seen order.
func uniq(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
