package excel

import (
	"fmt"
	"math"

	"gometa/domain/meta"

	"github.com/xuri/excelize/v2"
)

// ExportBundle collects everything one workbook export renders.
type ExportBundle struct {
	Estimator string
	Alpha     float64
	Table     []meta.TableRow
	Het       []meta.Heterogeneity
	Tau2CI    *meta.REStats
	Dataset   *meta.Dataset
}

// ResultsWriter exports analysis results to an xlsx workbook, one sheet
// per section: coefficients, heterogeneity, and the study-level profile.
type ResultsWriter struct{}

// NewResultsWriter creates a new results writer
func NewResultsWriter() *ResultsWriter {
	return &ResultsWriter{}
}

// Write renders the bundle to a workbook at path
func (w *ResultsWriter) Write(path string, b *ExportBundle) error {
	if b == nil {
		return fmt.Errorf("nothing to export")
	}

	f := excelize.NewFile()

	if err := w.writeCoefficients(f, b); err != nil {
		return err
	}
	if len(b.Het) > 0 {
		if err := w.writeHeterogeneity(f, b); err != nil {
			return err
		}
	}
	if b.Dataset != nil {
		if err := w.writeProfile(f, b.Dataset); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

// writeCoefficients renames Sheet1 and fills the flat results table
func (w *ResultsWriter) writeCoefficients(f *excelize.File, b *ExportBundle) error {
	sheet := "Coefficients"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}

	headers := []string{"Name", "Estimate", "SE", "Z", "P"}
	hasPerm := false
	for _, row := range b.Table {
		if row.PPerm != nil {
			hasPerm = true
			break
		}
	}
	if hasPerm {
		headers = append(headers, "P (perm)")
	}
	headers = append(headers,
		fmt.Sprintf("CI %.1f%%", 100*b.Alpha/2),
		fmt.Sprintf("CI %.1f%%", 100*(1-b.Alpha/2)),
	)
	if err := writeRow(f, sheet, 1, toCells(headers)); err != nil {
		return err
	}

	for i, row := range b.Table {
		cells := []interface{}{row.Name, row.Estimate, row.SE, row.Z, row.P}
		if hasPerm {
			if row.PPerm != nil {
				cells = append(cells, *row.PPerm)
			} else {
				cells = append(cells, "")
			}
		}
		cells = append(cells, row.CILower, row.CIUpper)
		if err := writeRow(f, sheet, i+2, cells); err != nil {
			return err
		}
	}

	// Estimator and alpha footer under the table
	footer := len(b.Table) + 3
	if err := writeRow(f, sheet, footer, []interface{}{"Estimator", b.Estimator}); err != nil {
		return err
	}
	return writeRow(f, sheet, footer+1, []interface{}{"Alpha", b.Alpha})
}

// writeHeterogeneity adds the per-dataset dispersion sheet
func (w *ResultsWriter) writeHeterogeneity(f *excelize.File, b *ExportBundle) error {
	sheet := "Heterogeneity"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	headers := []string{"Dataset", "Q", "DF", "P", "I2 (%)", "H2"}
	if b.Tau2CI != nil {
		headers = append(headers, "Tau2", "Tau2 Lower", "Tau2 Upper")
	}
	if err := writeRow(f, sheet, 1, toCells(headers)); err != nil {
		return err
	}

	for i, het := range b.Het {
		cells := []interface{}{i + 1, het.Q, het.DF, het.PValue, het.I2, het.H2}
		if b.Tau2CI != nil && i < len(b.Tau2CI.Tau2) {
			upper := interface{}(b.Tau2CI.CIUpper[i])
			if math.IsInf(b.Tau2CI.CIUpper[i], 1) {
				upper = "Inf"
			}
			cells = append(cells, b.Tau2CI.Tau2[i], b.Tau2CI.CILower[i], upper)
		}
		if err := writeRow(f, sheet, i+2, cells); err != nil {
			return err
		}
	}

	return nil
}

// writeProfile adds the study-level input sheet
func (w *ResultsWriter) writeProfile(f *excelize.File, ds *meta.Dataset) error {
	sheet := "Profile"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	headers := []string{"Study", "Y"}
	if ds.HasV() {
		headers = append(headers, "V")
	}
	if ds.HasN() {
		headers = append(headers, "N")
	}
	headers = append(headers, ds.Names...)
	if err := writeRow(f, sheet, 1, toCells(headers)); err != nil {
		return err
	}

	// Single-column exports flatten; parallel datasets export column 0
	for i := 0; i < ds.NStudies(); i++ {
		cells := []interface{}{i + 1, ds.Y[i][0]}
		if ds.HasV() {
			cells = append(cells, ds.V[i][0])
		}
		if ds.HasN() {
			cells = append(cells, ds.N[i][0])
		}
		for j := 0; j < ds.NPredictors(); j++ {
			cells = append(cells, ds.X[i][j])
		}
		if err := writeRow(f, sheet, i+2, cells); err != nil {
			return err
		}
	}

	return nil
}

// writeRow fills one sheet row starting at column A
func writeRow(f *excelize.File, sheet string, row int, cells []interface{}) error {
	for c, v := range cells {
		cell, _ := excelize.CoordinatesToCellName(c+1, row)
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return err
		}
	}
	return nil
}

func toCells(ss []string) []interface{} {
	cells := make([]interface{}, len(ss))
	for i, s := range ss {
		cells[i] = s
	}
	return cells
}
