package core

import (
	"context"
	"fmt"
	"time"

	"github.com/JonMunkholm/crm/internal/field"
	"github.com/JonMunkholm/crm/internal/repository"
)

const defaultSeqLength = 4

// FormatSerial renders prefix + yyyyMMdd + seq left-padded to seqLength.
func FormatSerial(rule field.SerialRule, day time.Time, seq int64) string {
	n := rule.SeqLength
	if n <= 0 {
		n = defaultSeqLength
	}
	return fmt.Sprintf("%s%s%0*d", rule.Prefix, day.Format("20060102"), n, seq)
}

// fillSerialNumbers assigns a generated number to every blank SERIAL_NUMBER
// field of form. It returns the completed values and the first number
// generated, or "" when nothing was generated.
func fillSerialNumbers(ctx context.Context, serials repository.SerialRepository, orgID string, form field.FormConfig, values []field.Value, now time.Time) ([]field.Value, string, error) {
	present := field.ValueMap(values)
	out := values
	var first string
	for _, f := range form.Fields {
		if f.Type != field.TypeSerialNumber || !field.IsBlank(present[f.ID]) {
			continue
		}
		rule := field.SerialRule{}
		if f.SerialRule != nil {
			rule = *f.SerialRule
		}
		day := now.Format("20060102")
		seq, err := serials.Next(ctx, orgID, form.FormKey+":"+f.ID, day)
		if err != nil {
			return nil, "", err
		}
		number := FormatSerial(rule, now, seq)
		if first == "" {
			first = number
		}
		out = setValue(out, f.ID, number)
	}
	return out, first, nil
}

// setValue replaces the value of fieldID or appends it.
func setValue(values []field.Value, fieldID string, v any) []field.Value {
	out := make([]field.Value, 0, len(values)+1)
	found := false
	for _, fv := range values {
		if fv.FieldID == fieldID {
			fv.FieldValue = v
			found = true
		}
		out = append(out, fv)
	}
	if !found {
		out = append(out, field.Value{FieldID: fieldID, FieldValue: v})
	}
	return out
}

// withoutField returns values minus fieldID.
func withoutField(values []field.Value, fieldID string) []field.Value {
	out := make([]field.Value, 0, len(values))
	for _, fv := range values {
		if fv.FieldID != fieldID {
			out = append(out, fv)
		}
	}
	return out
}
