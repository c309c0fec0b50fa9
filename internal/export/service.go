// Package export renders stored lab results as XLSX workbooks.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/lab-extractor/internal/entity"
	"github.com/joseph-ayodele/lab-extractor/internal/repository"
	"github.com/joseph-ayodele/lab-extractor/internal/utils"
)

const dateLayout = "2006-01-02"

// ResultReader is the read side of the test result repository.
type ResultReader interface {
	List(ctx context.Context, f repository.ResultFilter) ([]entity.StoredResult, error)
	History(ctx context.Context, code string, from, to *time.Time) ([]entity.HistoryPoint, error)
}

// Service is a tiny façade over the result repository that produces XLSX bytes.
type Service struct {
	results ResultReader
	logger  *slog.Logger
}

func NewService(results ResultReader, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{results: results, logger: logger}
}

// Window normalizes an inclusive date window to UTC days. Only from -> from..today;
// only to -> beginning..to; neither -> everything.
func Window(from, to *time.Time) (*time.Time, *time.Time) {
	var fromDate, toDate *time.Time
	if from != nil {
		f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
		fromDate = &f
	}
	if to != nil {
		t := utils.EndOfDay(*to)
		toDate = &t
	}
	if fromDate != nil && toDate == nil {
		t := utils.EndOfDay(time.Now())
		toDate = &t
	}
	return fromDate, toDate
}

// HistoryXLSX returns one parameter's values over time, oldest first.
func (s *Service) HistoryXLSX(ctx context.Context, code string, from, to *time.Time) ([]byte, error) {
	start := time.Now()
	from, to = Window(from, to)
	points, err := s.results.History(ctx, code, from, to)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}

	sheet := sheetName(code)
	f, err := newWorkbook(sheet, []string{"Test Date", "Test Type", "Value", "Unit", "Abnormal", "Lab"})
	if err != nil {
		return nil, err
	}
	for i, p := range points {
		row := i + 2
		write(f, sheet, 1, row, p.PerformedAt.Format(dateLayout))
		write(f, sheet, 2, row, p.TestTypeCode)
		write(f, sheet, 3, row, cellValue(p.Numeric, p.Text, p.Boolean, p.RawValue))
		write(f, sheet, 4, row, p.Unit)
		write(f, sheet, 5, row, yesNo(p.IsAbnormal))
		write(f, sheet, 6, row, p.LabName)
	}
	_ = f.SetColWidth(sheet, "A", "B", 14)
	_ = f.SetColWidth(sheet, "C", "E", 12)
	_ = f.SetColWidth(sheet, "F", "F", 32)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	s.logger.Info("export.history.ok",
		"code", sheet,
		"rows", len(points),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// ResultsXLSX returns every stored parameter value in the window, one row per value.
func (s *Service) ResultsXLSX(ctx context.Context, testType string, from, to *time.Time) ([]byte, error) {
	start := time.Now()
	from, to = Window(from, to)
	results, err := s.results.List(ctx, repository.ResultFilter{TestType: testType, From: from, To: to})
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}

	const sheet = "Results"
	f, err := newWorkbook(sheet, []string{
		"Test Date", "Test Type", "Parameter", "Name", "Value", "Unit",
		"Reference Range", "Abnormal", "Lab", "Date Estimated", "Result ID",
	})
	if err != nil {
		return nil, err
	}
	row := 2
	for _, r := range results {
		for _, v := range r.Values {
			write(f, sheet, 1, row, r.PerformedAt.Format(dateLayout))
			write(f, sheet, 2, row, r.TestTypeCode)
			write(f, sheet, 3, row, v.ParameterCode)
			write(f, sheet, 4, row, v.Name)
			write(f, sheet, 5, row, cellValue(v.Numeric, v.Text, v.Boolean, v.RawValue))
			write(f, sheet, 6, row, v.Unit)
			write(f, sheet, 7, row, truncate(v.ReferenceRange.String(), 140))
			write(f, sheet, 8, row, yesNo(v.IsAbnormal))
			write(f, sheet, 9, row, r.LabName)
			write(f, sheet, 10, row, yesNo(r.DateDefaulted))
			write(f, sheet, 11, row, r.ID.String())
			row++
		}
	}
	_ = f.SetColWidth(sheet, "A", "C", 14)
	_ = f.SetColWidth(sheet, "D", "D", 28)
	_ = f.SetColWidth(sheet, "G", "G", 36)
	_ = f.SetColWidth(sheet, "I", "I", 32)
	_ = f.SetColWidth(sheet, "K", "K", 38)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	s.logger.Info("export.results.ok",
		"test_type", testType,
		"results", len(results),
		"rows", row-2,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func newWorkbook(sheet string, headers []string) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("xlsx sheet: %w", err)
	}
	idx, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(idx)

	for i, h := range headers {
		write(f, sheet, i+1, 1, h)
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetCellStyle(sheet, "A1", last, style)
	}
	return f, nil
}

// sheetName fits a parameter code into the 31 characters a sheet name allows.
func sheetName(code string) string {
	name := strings.ToUpper(strings.TrimSpace(code))
	if r := []rune(name); len(r) > 31 {
		name = string(r[:31])
	}
	return name
}

func write(f *excelize.File, sheet string, col, row int, v any) {
	cell, _ := excelize.CoordinatesToCellName(col, row)
	_ = f.SetCellValue(sheet, cell, v)
}

// cellValue keeps numbers numeric in the sheet.
func cellValue(n *float64, t *string, b *bool, raw string) any {
	switch {
	case n != nil:
		return *n
	case b != nil:
		return *b
	case t != nil:
		return *t
	}
	return raw
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
