package export

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/sadopc/linecook/internal/stats"
)

const sheetName = "Performance Data"

// Title is the banner written above the export table.
func Title(exp stats.Export) string {
	return fmt.Sprintf("Performance Data: (%s - %s)", exp.From.Format("Jan 02, 2006"), exp.To.Format("Jan 02, 2006"))
}

// ToXLSX writes a single-sheet workbook: a merged title row, a bold header
// row, then one row per cook and period.
func ToXLSX(exp stats.Export, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	titleStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 16},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("title style: %w", err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	if err := f.MergeCell(sheetName, "A1", "F1"); err != nil {
		return fmt.Errorf("merge title: %w", err)
	}
	if err := f.SetCellValue(sheetName, "A1", Title(exp)); err != nil {
		return fmt.Errorf("write title: %w", err)
	}
	if err := f.SetCellStyle(sheetName, "A1", "F1", titleStyle); err != nil {
		return fmt.Errorf("style title: %w", err)
	}

	head := make([]any, len(header))
	for i, h := range header {
		head[i] = h
	}
	if err := f.SetSheetRow(sheetName, "A2", &head); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := f.SetCellStyle(sheetName, "A2", "F2", headerStyle); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for i, r := range exp.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+3)
		if err != nil {
			return err
		}
		row := []any{
			r.Period,
			r.Cook,
			stats.FormatSeconds(r.Fastest),
			stats.FormatSeconds(r.Slowest),
			stats.FormatSeconds(r.Average),
			r.Count,
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	if err := f.SetColWidth(sheetName, "A", "A", 34); err != nil {
		return err
	}
	if err := f.SetColWidth(sheetName, "B", "B", 18); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save xlsx: %w", err)
	}
	return nil
}

// FileName builds Performance_<View>_<Jan08_2024>_to_<Jan15_2024>.<ext>.
func FileName(exp stats.Export, ext string) string {
	return fmt.Sprintf("Performance_%s_%s_to_%s.%s",
		exp.Group.View(),
		exp.From.Format("Jan02_2006"),
		exp.To.Format("Jan02_2006"),
		strings.TrimPrefix(ext, "."),
	)
}

// Formats lists the supported file extensions.
var Formats = []string{"xlsx", "csv", "json"}

// Write saves exp into dir in the given format and returns the file path.
func Write(exp stats.Export, dir, format string) (string, error) {
	path := filepath.Join(dir, FileName(exp, format))
	var err error
	switch format {
	case "xlsx":
		err = ToXLSX(exp, path)
	case "csv":
		err = ToCSV(exp, path)
	case "json":
		err = ToJSON(exp, path)
	default:
		return "", fmt.Errorf("unknown export format %q", format)
	}
	if err != nil {
		return "", err
	}
	return path, nil
}
