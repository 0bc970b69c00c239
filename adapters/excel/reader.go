package excel

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gometa/domain/meta"
	"gometa/ports"

	"github.com/xuri/excelize/v2"
)

// DataReader reads meta-analysis datasets from Excel and CSV files.
type DataReader struct{}

// NewDataReader creates a new data reader that handles both Excel and CSV files
func NewDataReader() ports.TableReader {
	return &DataReader{}
}

// Read loads the file at path and assembles a Dataset from the mapped
// columns. The file type is chosen by extension: .csv is parsed as CSV,
// anything else is opened as an xlsx workbook and read from Sheet1.
func (r *DataReader) Read(ctx context.Context, path string, mapping ports.ColumnMapping) (*meta.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if mapping.Y == "" {
		return nil, fmt.Errorf("column mapping must name the effect-size column")
	}

	data, err := r.load(path)
	if err != nil {
		return nil, err
	}

	y, err := r.numericColumn(data, mapping.Y)
	if err != nil {
		return nil, err
	}

	var v, n []float64
	if mapping.V != "" {
		if v, err = r.numericColumn(data, mapping.V); err != nil {
			return nil, err
		}
	}
	if mapping.N != "" {
		if n, err = r.numericColumn(data, mapping.N); err != nil {
			return nil, err
		}
	}

	var x [][]float64
	if len(mapping.Moderators) > 0 {
		cols := make([][]float64, len(mapping.Moderators))
		for j, name := range mapping.Moderators {
			if cols[j], err = r.numericColumn(data, name); err != nil {
				return nil, err
			}
		}
		x = make([][]float64, len(y))
		for i := range x {
			x[i] = make([]float64, len(cols))
			for j := range cols {
				x[i][j] = cols[j][i]
			}
		}
	}

	return meta.FromColumns(y, v, n, x, mapping.Moderators, mapping.Intercept)
}

// load reads the raw string table from disk
func (r *DataReader) load(path string) (*TableData, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("data file not found: %s", path)
	}

	if strings.ToLower(filepath.Ext(path)) == ".csv" {
		return r.readCSVData(path)
	}
	return r.readExcelData(path)
}

// readExcelData reads workbook data from Sheet1 into structured format
func (r *DataReader) readExcelData(path string) (*TableData, error) {
	startTime := time.Now()
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	// Always use Sheet1
	rows, err := f.GetRows("Sheet1")
	if err != nil {
		return nil, fmt.Errorf("failed to read Sheet1: %w", err)
	}
	log.Printf("[DataReader] Excel file read in %.2fms (%d rows)",
		float64(time.Since(startTime).Nanoseconds())/1e6, len(rows))

	if len(rows) < 2 {
		return nil, fmt.Errorf("Excel file must have at least a header row and one data row")
	}

	return r.processRows(rows), nil
}

// readCSVData reads CSV data into structured format
func (r *DataReader) readCSVData(path string) (*TableData, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	startTime := time.Now()
	reader := csv.NewReader(file)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	log.Printf("[DataReader] CSV file read in %.2fms (%d rows)",
		float64(time.Since(startTime).Nanoseconds())/1e6, len(rows))

	if len(rows) < 2 {
		return nil, fmt.Errorf("CSV file must have at least a header row and one data row")
	}

	return r.processRows(rows), nil
}

// processRows converts raw string rows into TableData format
func (r *DataReader) processRows(rows [][]string) *TableData {
	headerRow := rows[0]
	headers := make([]string, len(headerRow))
	for i, header := range headerRow {
		headers[i] = strings.TrimSpace(header)
	}

	var dataRows []RawRowData
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		rowData := make(RawRowData)

		for j, cell := range row {
			if j < len(headers) {
				rowData[headers[j]] = strings.TrimSpace(cell)
			}
		}

		dataRows = append(dataRows, rowData)
	}

	return &TableData{
		Headers: headers,
		Rows:    dataRows,
	}
}

// numericColumn extracts and parses a mapped column. Blank or non-numeric
// cells reject the whole column; silent NaN propagation corrupts fits.
func (r *DataReader) numericColumn(data *TableData, name string) ([]float64, error) {
	raw, ok := data.Column(name)
	if !ok {
		return nil, fmt.Errorf("column %q not found in header row (have: %s)",
			name, strings.Join(data.Headers, ", "))
	}

	values := make([]float64, len(raw))
	for i, cell := range raw {
		if cell == "" {
			return nil, fmt.Errorf("column %q has a blank cell at data row %d", name, i+1)
		}
		val, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil, fmt.Errorf("column %q has non-numeric value %q at data row %d", name, cell, i+1)
		}
		values[i] = val
	}

	return values, nil
}
