package export

import (
	"fmt"

	"github.com/JonMunkholm/crm/internal/field"
	"github.com/JonMunkholm/crm/internal/resourcefield"
)

// Head is one requested output column.
type Head struct {
	Key   string `json:"key"`
	Title string `json:"title"`
}

// Record is one business record ready for export. System holds fixed
// attributes already converted to display values, keyed by head key.
type Record struct {
	ID     string
	System map[string]any
	Cells  []resourcefield.Cell
}

type column struct {
	key   string
	title string

	field  field.Field
	parent *field.Field
	custom bool
}

// buildColumns resolves heads against the form. A sub-table head expands
// into one column per sub-field titled "<head>-<sub-field>".
func buildColumns(heads []Head, form field.FormConfig) []column {
	cols := make([]column, 0, len(heads))
	for _, h := range heads {
		f, ok := form.Field(h.Key)
		if !ok {
			cols = append(cols, column{key: h.Key, title: h.Title})
			continue
		}
		if !f.IsSubTable() {
			cols = append(cols, column{key: h.Key, title: h.Title, field: f, custom: true})
			continue
		}
		parent := f
		for _, sub := range f.SubFields {
			cols = append(cols, column{
				key:    sub.ID,
				title:  h.Title + "-" + sub.Name,
				field:  sub,
				parent: &parent,
				custom: true,
			})
		}
	}
	return cols
}

func titles(cols []column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.title
	}
	return out
}

// buildRows converts rec into one row per sub-table line, or a single row
// when no requested sub-table has lines. Non sub-table columns carry their
// value on the first row only and are reported in merge for vertical merging.
func buildRows(reg *field.Registry, cols []column, rec Record) (rows [][]any, merge []int, err error) {
	values := resourcefield.RawValues(rec.Cells)

	lines := make(map[string][]map[string]string)
	height := 1
	for _, c := range cols {
		if c.parent == nil {
			continue
		}
		if _, ok := lines[c.parent.ID]; ok {
			continue
		}
		l := resourcefield.RawRows(rec.Cells, c.parent.ID)
		lines[c.parent.ID] = l
		height = max(height, len(l))
	}

	rows = make([][]any, height)
	for i := range rows {
		rows[i] = make([]any, len(cols))
	}

	for j, c := range cols {
		if c.parent != nil {
			for i, line := range lines[c.parent.ID] {
				raw, ok := line[c.field.ID]
				if !ok {
					continue
				}
				if rows[i][j], err = reg.Transform(c.field, raw); err != nil {
					return nil, nil, fmt.Errorf("column %s row %d: %w", c.title, i+1, err)
				}
			}
			continue
		}

		if height > 1 {
			merge = append(merge, j)
		}
		if v, ok := rec.System[c.key]; ok {
			rows[0][j] = v
			continue
		}
		if !c.custom {
			continue
		}
		raw, ok := values[c.field.ID]
		if !ok {
			continue
		}
		if rows[0][j], err = reg.Transform(c.field, raw); err != nil {
			return nil, nil, fmt.Errorf("column %s: %w", c.title, err)
		}
	}
	return rows, merge, nil
}
