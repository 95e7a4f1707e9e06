// Package importer reads records from spreadsheets laid out the way exports
// write them: one title row, one column per field, sub-table columns titled
// "<field>-<sub-field>", and multi-line records held together by vertically
// merged cells.
package importer

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/crm/internal/field"
)

var (
	// ErrNoSheet is returned for a workbook without sheets.
	ErrNoSheet = errors.New("workbook has no sheet")

	// ErrNoColumns is returned when no title matches a form field.
	ErrNoColumns = errors.New("no column matches the form")
)

// CellError reports a cell whose text does not fit its column's field.
type CellError struct {
	Column string
	Err    error
}

func (e *CellError) Error() string {
	return e.Column + ": " + e.Err.Error()
}

func (e *CellError) Unwrap() error {
	return e.Err
}

// Record is one record read from the sheet.
type Record struct {
	// Row is the 1-based sheet row of the record's first line.
	Row int

	// System holds the trimmed text of columns bound to a fixed column,
	// keyed by the field's business key.
	System map[string]string

	// Values are the dynamic field values in API form. Sub-table fields carry
	// one map per line.
	Values []field.Value

	// Err is a *CellError for the first cell that could not be converted.
	// Values are incomplete when it is set.
	Err error
}

type column struct {
	index  int
	title  string
	field  field.Field
	parent *field.Field
}

// Read parses the first sheet of the workbook in r against form.
func Read(r io.Reader, form field.FormConfig, reg *field.Registry) ([]Record, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoSheet
	}
	sheet := sheets[0]

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, ErrNoColumns
	}
	cols := mapColumns(rows[0], form)
	if len(cols) == 0 {
		return nil, ErrNoColumns
	}

	merges, err := f.GetMergeCells(sheet)
	if err != nil {
		return nil, fmt.Errorf("read merged cells: %w", err)
	}
	cont, err := continuationRows(merges)
	if err != nil {
		return nil, err
	}

	var (
		out []Record
		cur *builder
	)
	flush := func() {
		if cur != nil {
			out = append(out, cur.record())
			cur = nil
		}
	}
	for i := 1; i < len(rows); i++ {
		line := i + 1
		cells := rows[i]
		if cont[line] && cur != nil {
			cur.addLine(reg, cols, cells)
			continue
		}
		if isEmptyRow(cells) {
			continue
		}
		flush()
		cur = newBuilder(line)
		cur.addFirst(reg, cols, cells)
	}
	flush()
	return out, nil
}

// mapColumns matches titles against field names. Serial number fields are
// generated on import and never read.
func mapColumns(titles []string, form field.FormConfig) []column {
	byTitle := make(map[string]column)
	for _, f := range form.Fields {
		if f.Type == field.TypeSerialNumber {
			continue
		}
		if !f.IsSubTable() {
			byTitle[f.Name] = column{field: f}
			continue
		}
		parent := f
		for _, sub := range f.SubFields {
			byTitle[f.Name+"-"+sub.Name] = column{field: sub, parent: &parent}
		}
	}

	var cols []column
	for i, t := range titles {
		t = strings.TrimSpace(t)
		c, ok := byTitle[t]
		if !ok {
			continue
		}
		c.index = i
		c.title = t
		cols = append(cols, c)
	}
	return cols
}

// continuationRows returns the rows covered by a vertical merge below its
// first row. Those rows continue the record that starts on the merge's
// first row.
func continuationRows(merges []excelize.MergeCell) (map[int]bool, error) {
	cont := make(map[int]bool)
	for _, m := range merges {
		_, top, err := excelize.CellNameToCoordinates(m.GetStartAxis())
		if err != nil {
			return nil, fmt.Errorf("merged cell %s: %w", m.GetStartAxis(), err)
		}
		_, bottom, err := excelize.CellNameToCoordinates(m.GetEndAxis())
		if err != nil {
			return nil, fmt.Errorf("merged cell %s: %w", m.GetEndAxis(), err)
		}
		if top < 2 {
			continue
		}
		for r := top + 1; r <= bottom; r++ {
			cont[r] = true
		}
	}
	return cont, nil
}

type builder struct {
	rec    Record
	order  []string
	values map[string]any
	lines  map[string][]map[string]any
}

func newBuilder(row int) *builder {
	return &builder{
		rec:    Record{Row: row, System: map[string]string{}},
		values: map[string]any{},
		lines:  map[string][]map[string]any{},
	}
}

// addFirst reads every column of the record's first row.
func (b *builder) addFirst(reg *field.Registry, cols []column, cells []string) {
	for _, c := range cols {
		if c.parent != nil {
			continue
		}
		text := cell(cells, c.index)
		if c.field.BusinessKey != "" {
			b.rec.System[c.field.BusinessKey] = strings.TrimSpace(text)
			continue
		}
		v, err := convert(reg, c.field, text)
		if err != nil {
			b.fail(c, err)
			continue
		}
		if v == nil {
			continue
		}
		b.order = append(b.order, c.field.ID)
		b.values[c.field.ID] = v
	}
	b.addLine(reg, cols, cells)
}

// addLine reads the sub-table columns of one row as a new line per sub-table.
// Lines without any value are dropped.
func (b *builder) addLine(reg *field.Registry, cols []column, cells []string) {
	lines := map[string]map[string]any{}
	var parents []string
	for _, c := range cols {
		if c.parent == nil {
			continue
		}
		v, err := convert(reg, c.field, cell(cells, c.index))
		if err != nil {
			b.fail(c, err)
			continue
		}
		if v == nil {
			continue
		}
		line, ok := lines[c.parent.ID]
		if !ok {
			line = map[string]any{}
			lines[c.parent.ID] = line
			parents = append(parents, c.parent.ID)
		}
		line[c.field.ID] = v
	}
	for _, id := range parents {
		if _, seen := b.lines[id]; !seen {
			b.order = append(b.order, id)
		}
		b.lines[id] = append(b.lines[id], lines[id])
	}
}

func (b *builder) fail(c column, err error) {
	if b.rec.Err == nil {
		b.rec.Err = &CellError{Column: c.title, Err: err}
	}
}

func (b *builder) record() Record {
	rec := b.rec
	for _, id := range b.order {
		if lines, ok := b.lines[id]; ok {
			rec.Values = append(rec.Values, field.Value{FieldID: id, FieldValue: lines})
			continue
		}
		rec.Values = append(rec.Values, field.Value{FieldID: id, FieldValue: b.values[id]})
	}
	return rec
}

// convert turns cell text into the field's API value, or nil for a blank.
func convert(reg *field.Registry, f field.Field, text string) (any, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	stored, err := reg.FromText(f, text)
	if err != nil {
		return nil, err
	}
	if stored == "" {
		return nil, nil
	}
	return reg.Decode(f, stored)
}

func cell(cells []string, i int) string {
	if i < len(cells) {
		return cells[i]
	}
	return ""
}

func isEmptyRow(cells []string) bool {
	for _, v := range cells {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
