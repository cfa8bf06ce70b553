// Package workbook reads and writes employee records as xlsx workbooks.
package workbook

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"employee-manager/internal/common"
	"employee-manager/internal/models"
)

// SheetName is the worksheet written by ExportTo.
const SheetName = "Employees"

// Headers are the column titles, in the order of models.Employee.Fields.
var Headers = []string{
	"Employee ID",
	"Name",
	"Role",
	"Employment Type",
	"Status",
	"Check-In",
	"Check-Out",
	"Work Type",
}

type Workbook struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Workbook {
	return &Workbook{logger: logger}
}

// ImportFrom reads the first worksheet of the workbook at path. Columns are
// matched by header title; unknown columns are ignored and blank rows are
// skipped. Every row needs an employee id and no id may repeat.
func (w *Workbook) ImportFrom(path string) ([]models.Employee, error) {
	records, err := readRecords(path)
	if err != nil {
		return nil, err
	}

	for i, r := range records {
		if r.EmployeeID == "" {
			return nil, fmt.Errorf("record %d has no employee id: %w", i+1, common.ErrValidation)
		}
	}

	if dups := common.FindDuplicateIDs(models.EmployeeIDs(records)); len(dups) > 0 {
		return nil, &common.DuplicateIDsError{IDs: dups}
	}

	w.logger.Debug("Workbook imported", zap.String("path", path), zap.Int("records", len(records)))
	return records, nil
}

// ExportTo rewrites the workbook at path with its current rows followed by
// records. Existing columns, including ones it does not know, are kept in
// place; missing employee columns are added at the end. A missing or
// unreadable workbook counts as empty.
func (w *Workbook) ExportTo(path string, records []models.Employee) error {
	header, existing, err := readRows(path)
	if err != nil {
		w.logger.Info("No existing workbook found, creating a new one", zap.String("path", path), zap.Error(err))
		header, existing = nil, nil
	}
	header, columns := exportHeader(header)

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("rename worksheet: %w", err)
	}

	if err := setRow(f, 1, header); err != nil {
		return err
	}
	rowNum := 2
	for _, row := range existing {
		if err := setRow(f, rowNum, row); err != nil {
			return err
		}
		rowNum++
	}
	for _, r := range records {
		row := make([]string, len(header))
		for field, v := range r.Trimmed().Fields() {
			row[columns[field]] = v
		}
		if err := setRow(f, rowNum, row); err != nil {
			return err
		}
		rowNum++
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook %s: %w", path, err)
	}

	w.logger.Info("Workbook written",
		zap.String("path", path),
		zap.Int("existing", len(existing)),
		zap.Int("appended", len(records)))
	return nil
}

// CheckTarget reports whether a workbook can be saved at path. The directory
// holding it must already exist.
func (w *Workbook) CheckTarget(path string) error {
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("directory of workbook %s does not exist: %w", filepath.Base(path), common.ErrValidation)
	case err != nil:
		return fmt.Errorf("workbook directory %s: %w", dir, err)
	case !info.IsDir():
		return fmt.Errorf("directory of workbook %s is not a directory: %w", filepath.Base(path), common.ErrValidation)
	}
	return nil
}

// exportHeader returns the header to write and the column of each employee
// field in it.
func exportHeader(existing []string) ([]string, []int) {
	if len(existing) == 0 {
		columns := make([]int, len(Headers))
		for i := range columns {
			columns[i] = i
		}
		return append([]string(nil), Headers...), columns
	}

	header := append([]string(nil), existing...)
	columns := headerColumns(header)
	for field, col := range columns {
		if col == -1 {
			columns[field] = len(header)
			header = append(header, Headers[field])
		}
	}
	return header, columns
}

func setRow(f *excelize.File, rowNum int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}
	row := make([]interface{}, len(values))
	for i, v := range values {
		row[i] = v
	}
	if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
		return fmt.Errorf("write row %d: %w", rowNum, err)
	}
	return nil
}

func readRecords(path string) ([]models.Employee, error) {
	header, rows, err := readRows(path)
	if err != nil {
		return nil, err
	}

	columns := headerColumns(header)
	records := make([]models.Employee, 0, len(rows))
	for _, row := range rows {
		cells := make([]string, len(Headers))
		for field, col := range columns {
			if col >= 0 && col < len(row) {
				cells[field] = strings.TrimSpace(row[col])
			}
		}
		records = append(records, models.EmployeeFromFields(cells))
	}
	return records, nil
}

// readRows returns the header and the non-blank data rows of the first
// worksheet, cells as stored.
func readRows(path string) ([]string, [][]string, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("workbook %s: %w", path, common.ErrNotFound)
		}
		return nil, nil, fmt.Errorf("workbook %s: %w", path, err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open workbook %s: %v: %w", path, err, common.ErrUnreadable)
	}
	defer func() { _ = f.Close() }()

	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return nil, nil, fmt.Errorf("workbook %s has no worksheet: %w", path, common.ErrUnreadable)
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, nil, fmt.Errorf("read worksheet %s: %v: %w", sheetName, err, common.ErrUnreadable)
	}
	if len(rows) == 0 {
		return nil, nil, nil
	}

	var data [][]string
	for _, row := range rows[1:] {
		if !isBlank(row) {
			data = append(data, row)
		}
	}
	return rows[0], data, nil
}

// headerColumns maps each field position to its column index in header, or
// -1 when the title is absent.
func headerColumns(header []string) []int {
	columns := make([]int, len(Headers))
	for i := range columns {
		columns[i] = -1
	}
	for col, title := range header {
		title = strings.TrimSpace(title)
		for field, want := range Headers {
			if title == want && columns[field] == -1 {
				columns[field] = col
			}
		}
	}
	return columns
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
