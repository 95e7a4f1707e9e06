package core

// validation.go checks dynamic field values against the form before they are
// stored.
//
// Fields bound to a fixed column (BusinessKey set) are carried by the request
// itself and validated by the service. Every other required field must have a
// value; sub-table rows are checked per required sub-field. Values that the
// field's resolver cannot encode are reported with the field name.

import (
	"errors"
	"strings"

	"github.com/JonMunkholm/crm/internal/field"
)

// validateFields returns the first problem found in values, or nil.
func validateFields(reg *field.Registry, form field.FormConfig, values []field.Value) error {
	present := field.ValueMap(values)

	for _, f := range form.Fields {
		if f.BusinessKey != "" {
			continue
		}
		v, ok := present[f.ID]
		if f.Required && (!ok || field.IsBlank(v)) {
			return Invalid("common.field.required", f.Name)
		}
		if !ok || field.IsBlank(v) {
			continue
		}

		if f.IsSubTable() {
			rows, err := field.Rows(v)
			if err != nil {
				return Invalid("common.field.invalid", f.Name)
			}
			for _, row := range rows {
				for _, sub := range f.SubFields {
					if err := checkValue(reg, sub, row[sub.ID]); err != nil {
						return err
					}
				}
			}
			continue
		}
		if _, err := reg.Encode(f, v); err != nil {
			return valueError(f, err)
		}
	}
	return nil
}

func checkValue(reg *field.Registry, f field.Field, v any) error {
	if field.IsBlank(v) {
		if f.Required {
			return Invalid("common.field.required", f.Name)
		}
		return nil
	}
	if _, err := reg.Encode(f, v); err != nil {
		return valueError(f, err)
	}
	return nil
}

// valueError keeps configuration errors technical and reports bad input by
// field name.
func valueError(f field.Field, err error) error {
	if errors.Is(err, field.ErrNoResolver) {
		return err
	}
	return Invalid("common.field.invalid", f.Name)
}

// requireText rejects a blank fixed column value.
func requireText(value, label string) error {
	if strings.TrimSpace(value) == "" {
		return Invalid("common.field.required", label)
	}
	return nil
}
