// Package resourcefield stores dynamic field values of business records.
//
// Each value is one row of (resourceId, fieldId, value). Sub-table values are
// flattened to one row per cell: fieldId is the sub-field, refSubId the
// sub-table field and rowId groups the cells of one line. Multi-valued and
// long values go to a parallel blob table as JSON text.
package resourcefield

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/JonMunkholm/crm/internal/field"
)

// Cell is one persisted field value.
type Cell struct {
	FieldID  string
	Value    string
	RowID    string
	RefSubID string
	Blob     bool
}

// Flatten converts API values into cells using the form configuration.
// Values for fields the form does not define are dropped. Sub-table rows get
// a fresh row id each time they are flattened.
func Flatten(form field.FormConfig, reg *field.Registry, values []field.Value) ([]Cell, error) {
	cells := make([]Cell, 0, len(values))
	for _, v := range values {
		f, ok := form.Field(v.FieldID)
		if !ok {
			continue
		}

		if f.IsSubTable() {
			rows, err := field.Rows(v.FieldValue)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", f.ID, err)
			}
			for _, row := range rows {
				rowID := uuid.NewString()
				for _, sub := range f.SubFields {
					cell, err := encodeCell(reg, sub, row[sub.ID])
					if err != nil {
						return nil, fmt.Errorf("field %s.%s: %w", f.ID, sub.ID, err)
					}
					if cell == nil {
						continue
					}
					cell.RowID = rowID
					cell.RefSubID = f.ID
					cells = append(cells, *cell)
				}
			}
			continue
		}

		cell, err := encodeCell(reg, f, v.FieldValue)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.ID, err)
		}
		if cell != nil {
			cells = append(cells, *cell)
		}
	}
	return cells, nil
}

func encodeCell(reg *field.Registry, f field.Field, v any) (*Cell, error) {
	if field.IsBlank(v) {
		return nil, nil
	}
	res, err := reg.Get(f.Type)
	if err != nil {
		return nil, err
	}
	raw, err := res.Encode(f, v)
	if err != nil {
		return nil, err
	}
	return &Cell{FieldID: f.ID, Value: raw, Blob: res.Blob()}, nil
}

// Group converts stored cells back into API values. Values keep the order of
// their first cell; sub-table rows keep the order of their first cell too.
// Cells whose field is missing from the form are skipped.
func Group(form field.FormConfig, reg *field.Registry, cells []Cell) ([]field.Value, error) {
	fields := form.FieldMap()

	type subTable struct {
		index int
		rows  []map[string]any
		byRow map[string]map[string]any
	}

	var values []field.Value
	tables := make(map[string]*subTable)

	for _, c := range cells {
		f, ok := fields[c.FieldID]
		if !ok {
			continue
		}
		decoded, err := reg.Decode(f, c.Value)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.ID, err)
		}

		if c.RefSubID == "" {
			values = append(values, field.Value{FieldID: c.FieldID, FieldValue: decoded})
			continue
		}

		t, ok := tables[c.RefSubID]
		if !ok {
			t = &subTable{index: len(values), byRow: make(map[string]map[string]any)}
			tables[c.RefSubID] = t
			values = append(values, field.Value{FieldID: c.RefSubID})
		}
		row, ok := t.byRow[c.RowID]
		if !ok {
			row = make(map[string]any)
			t.byRow[c.RowID] = row
			t.rows = append(t.rows, row)
		}
		row[c.FieldID] = decoded
	}

	for _, t := range tables {
		values[t.index].FieldValue = t.rows
	}
	return values, nil
}

// RawRows groups the cells of one sub-table into rows of stored strings,
// in first-seen order. Exports transform these per sub-field.
func RawRows(cells []Cell, subTableID string) []map[string]string {
	var rows []map[string]string
	index := make(map[string]int)
	for _, c := range cells {
		if c.RefSubID != subTableID {
			continue
		}
		i, ok := index[c.RowID]
		if !ok {
			i = len(rows)
			index[c.RowID] = i
			rows = append(rows, make(map[string]string))
		}
		rows[i][c.FieldID] = c.Value
	}
	return rows
}

// RawValues indexes top-level cells by field id.
func RawValues(cells []Cell) map[string]string {
	m := make(map[string]string, len(cells))
	for _, c := range cells {
		if c.RefSubID == "" {
			m[c.FieldID] = c.Value
		}
	}
	return m
}
