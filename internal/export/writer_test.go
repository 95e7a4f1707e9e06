package export

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestXLSXWriter_WritesAndMerges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")

	w, err := NewXLSXWriter(path, "Export Data")
	if err != nil {
		t.Fatalf("NewXLSXWriter() error = %v", err)
	}
	if err := w.WriteHeader([]string{"Name", "Product"}); err != nil {
		t.Fatalf("WriteHeader() error = %v", err)
	}
	if err := w.WriteRows([][]any{{"Acme", "Widget"}, {nil, "Gadget"}}, []int{0}); err != nil {
		t.Fatalf("WriteRows() error = %v", err)
	}
	if err := w.WriteRows([][]any{{"Solo", nil}}, nil); err != nil {
		t.Fatalf("WriteRows() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Export Data")
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want 4", len(rows))
	}
	if rows[0][0] != "Name" || rows[1][1] != "Widget" || rows[3][0] != "Solo" {
		t.Errorf("unexpected sheet contents: %v", rows)
	}

	merged, err := f.GetMergeCells("Export Data")
	if err != nil {
		t.Fatalf("GetMergeCells() error = %v", err)
	}
	if len(merged) != 1 {
		t.Fatalf("merged ranges = %d, want 1", len(merged))
	}
	if merged[0].GetStartAxis() != "A2" || merged[0].GetEndAxis() != "A3" {
		t.Errorf("merged range = %s:%s, want A2:A3", merged[0].GetStartAxis(), merged[0].GetEndAxis())
	}
}

func TestPrepareExportFile(t *testing.T) {
	base := t.TempDir()

	path, err := prepareExportFile(base, "org-1", "file-1", "contracts")
	if err != nil {
		t.Fatalf("prepareExportFile() error = %v", err)
	}
	if want := filepath.Join(base, "export", "org-1", "file-1", "contracts.xlsx"); path != want {
		t.Errorf("path = %q, want %q", path, want)
	}
	if info, err := os.Stat(filepath.Dir(path)); err != nil || !info.IsDir() {
		t.Errorf("directory not created: %v", err)
	}

	tests := []struct {
		name                  string
		org, fileID, fileName string
		wantErr               error
	}{
		{"blank file id", "org-1", "", "x", ErrInvalidArgument},
		{"blank file name", "org-1", "f", "", ErrInvalidArgument},
		{"blank org", "", "f", "x", ErrInvalidArgument},
		{"separator", "org-1", "f", "../x", ErrIllegalFileName},
	}
	for _, tt := range tests {
		if _, err := prepareExportFile(base, tt.org, tt.fileID, tt.fileName); !errors.Is(err, tt.wantErr) {
			t.Errorf("%s: error = %v, want %v", tt.name, err, tt.wantErr)
		}
	}
}
