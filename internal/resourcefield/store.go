package resourcefield

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/crm/internal/database"
)

// Tables names the value and blob tables of one resource kind.
type Tables struct {
	Field string
	Blob  string
}

// TablesFor derives table names from a resource table, e.g. "contract" ->
// contract_field and contract_field_blob.
func TablesFor(resourceTable string) Tables {
	return Tables{Field: resourceTable + "_field", Blob: resourceTable + "_field_blob"}
}

// Repository persists cells.
type Repository interface {
	// Insert appends cells for resourceID, preserving slice order.
	Insert(ctx context.Context, resourceID string, cells []Cell) error

	// Delete removes every cell of the given resources.
	Delete(ctx context.Context, resourceIDs ...string) error

	// List returns cells per resource in insertion order. Blob cells are
	// included only when includeBlob is set.
	List(ctx context.Context, resourceIDs []string, includeBlob bool) (map[string][]Cell, error)
}

type pgRepository struct {
	db     database.DBTX
	tables Tables
}

// NewRepository returns a Repository over the given tables.
func NewRepository(db database.DBTX, tables Tables) Repository {
	return &pgRepository{db: db, tables: tables}
}

var cellColumns = []string{"id", "resource_id", "field_id", "field_value", "row_id", "ref_sub_id", "pos"}

func (r *pgRepository) Insert(ctx context.Context, resourceID string, cells []Cell) error {
	var plain, blob [][]any
	for i, c := range cells {
		row := []any{uuid.NewString(), resourceID, c.FieldID, c.Value, nullable(c.RowID), nullable(c.RefSubID), i}
		if c.Blob {
			blob = append(blob, row)
		} else {
			plain = append(plain, row)
		}
	}

	if err := r.copy(ctx, r.tables.Field, plain); err != nil {
		return err
	}
	return r.copy(ctx, r.tables.Blob, blob)
}

func (r *pgRepository) copy(ctx context.Context, table string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	if _, err := r.db.CopyFrom(ctx, pgx.Identifier{table}, cellColumns, pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}

func (r *pgRepository) Delete(ctx context.Context, resourceIDs ...string) error {
	if len(resourceIDs) == 0 {
		return nil
	}
	for _, table := range []string{r.tables.Field, r.tables.Blob} {
		query := fmt.Sprintf(`DELETE FROM %s WHERE resource_id = ANY($1)`, pgx.Identifier{table}.Sanitize())
		if _, err := r.db.Exec(ctx, query, resourceIDs); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	return nil
}

func (r *pgRepository) List(ctx context.Context, resourceIDs []string, includeBlob bool) (map[string][]Cell, error) {
	out := make(map[string][]Cell, len(resourceIDs))
	if len(resourceIDs) == 0 {
		return out, nil
	}

	query := fmt.Sprintf(`
		SELECT resource_id, field_id, COALESCE(field_value, ''), COALESCE(row_id, ''), COALESCE(ref_sub_id, ''), pos, false
		FROM %s WHERE resource_id = ANY($1)`, pgx.Identifier{r.tables.Field}.Sanitize())
	if includeBlob {
		query += fmt.Sprintf(`
		UNION ALL
		SELECT resource_id, field_id, COALESCE(field_value, ''), COALESCE(row_id, ''), COALESCE(ref_sub_id, ''), pos, true
		FROM %s WHERE resource_id = ANY($1)`, pgx.Identifier{r.tables.Blob}.Sanitize())
	}
	query += ` ORDER BY 1, 6`

	rows, err := r.db.Query(ctx, query, resourceIDs)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", r.tables.Field, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			resourceID string
			pos        int
			c          Cell
		)
		if err := rows.Scan(&resourceID, &c.FieldID, &c.Value, &c.RowID, &c.RefSubID, &pos, &c.Blob); err != nil {
			return nil, fmt.Errorf("scan %s: %w", r.tables.Field, err)
		}
		out[resourceID] = append(out[resourceID], c)
	}
	return out, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
