package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Writer receives the rows of one export file.
type Writer interface {
	WriteHeader(titles []string) error

	// WriteRows appends the rows of one record. Columns listed in merge are
	// merged vertically across those rows.
	WriteRows(rows [][]any, merge []int) error

	// Close flushes and saves the file.
	Close() error
}

// WriterFactory opens a Writer for path with a single sheet.
type WriterFactory func(path, sheet string) (Writer, error)

type xlsxWriter struct {
	file   *excelize.File
	stream *excelize.StreamWriter
	path   string
	row    int
	closed bool
}

// NewXLSXWriter streams rows into an XLSX workbook saved at path on Close.
func NewXLSXWriter(path, sheet string) (Writer, error) {
	f := excelize.NewFile()
	if sheet == "" {
		sheet = "Sheet1"
	}
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("name sheet: %w", err)
	}
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open stream writer: %w", err)
	}
	return &xlsxWriter{file: f, stream: sw, path: path, row: 1}, nil
}

func (w *xlsxWriter) WriteHeader(titles []string) error {
	style, err := w.file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	values := make([]any, len(titles))
	for i, t := range titles {
		values[i] = t
	}
	cell, _ := excelize.CoordinatesToCellName(1, w.row)
	if err := w.stream.SetRow(cell, values, excelize.RowOpts{StyleID: style}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	w.row++
	return nil
}

func (w *xlsxWriter) WriteRows(rows [][]any, merge []int) error {
	first := w.row
	for _, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, w.row)
		if err := w.stream.SetRow(cell, r); err != nil {
			return fmt.Errorf("write row %d: %w", w.row, err)
		}
		w.row++
	}
	if len(rows) < 2 {
		return nil
	}
	last := w.row - 1
	for _, col := range merge {
		top, _ := excelize.CoordinatesToCellName(col+1, first)
		bottom, _ := excelize.CoordinatesToCellName(col+1, last)
		if err := w.stream.MergeCell(top, bottom); err != nil {
			return fmt.Errorf("merge %s:%s: %w", top, bottom, err)
		}
	}
	return nil
}

func (w *xlsxWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	defer w.file.Close()

	if err := w.stream.Flush(); err != nil {
		return fmt.Errorf("flush workbook: %w", err)
	}
	if err := w.file.SaveAs(w.path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

// checkFileName rejects names that could escape the task directory.
func checkFileName(name string) error {
	if strings.ContainsAny(name, `/\`) {
		return ErrIllegalFileName
	}
	return nil
}

// prepareExportFile creates <baseDir>/export/<org>/<fileID>/ and returns the
// path of <fileName>.xlsx inside it.
func prepareExportFile(baseDir, orgID, fileID, fileName string) (string, error) {
	if isBlank(fileID) || isBlank(fileName) || isBlank(orgID) {
		return "", ErrInvalidArgument
	}
	if err := checkFileName(fileName); err != nil {
		return "", err
	}
	dir := filepath.Join(baseDir, "export", orgID, fileID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}
	return filepath.Join(dir, fileName+".xlsx"), nil
}

// filePath is the location prepareExportFile produces for t.
func filePath(baseDir string, t Task) string {
	return filepath.Join(baseDir, "export", t.OrganizationID, t.FileID, t.FileName+".xlsx")
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
