package resourcefield

import (
	"context"
	"testing"

	"github.com/JonMunkholm/crm/internal/database"
	"github.com/JonMunkholm/crm/internal/database/dbtest"
	"github.com/JonMunkholm/crm/internal/field"
)

func TestPGRepository_ReplaceInTransaction(t *testing.T) {
	pool := dbtest.Setup(t)
	ctx := context.Background()
	reg := field.DefaultRegistry()
	form := testForm()
	tables := TablesFor("contract")

	err := database.NewTxRunner(pool).InTx(ctx, func(db database.DBTX) error {
		return NewAccessor(NewRepository(db, tables), reg).Save(ctx, "c1", form, []field.Value{
			{FieldID: "title", FieldValue: "old"},
			{FieldID: "tags", FieldValue: []any{"a", "b"}},
			{FieldID: "products", FieldValue: []any{
				map[string]any{"product": "p1", "amount": 1},
				map[string]any{"product": "p2", "amount": 2},
			}},
		})
	})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	a := NewAccessor(NewRepository(pool, tables), reg)
	got, err := a.Get(ctx, "c1", form)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	rows, _ := got["products"].([]map[string]any)
	if len(rows) != 2 || rows[0]["product"] != "p1" || rows[1]["product"] != "p2" {
		t.Errorf("products = %v, want rows p1, p2 in order", got["products"])
	}

	err = database.NewTxRunner(pool).InTx(ctx, func(db database.DBTX) error {
		return NewAccessor(NewRepository(db, tables), reg).Replace(ctx, "c1", form, []field.Value{
			{FieldID: "title", FieldValue: "new"},
		})
	})
	if err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	got, err = a.Get(ctx, "c1", form)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(got) != 1 || got["title"] != "new" {
		t.Errorf("Get() after Replace = %v, want only title=new", got)
	}
}
