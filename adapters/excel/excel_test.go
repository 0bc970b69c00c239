package excel

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"gometa/domain/meta"
	"gometa/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeTrialsWorkbook(t *testing.T) string {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	rows := [][]interface{}{
		{"y", "v", "dose"},
		{-1.0, 1.0, 1.0},
		{0.5, 1.0, 1.0},
		{0.5, 2.4, 2.0},
		{0.5, 0.5, 2.0},
		{1.0, 1.0, 4.0},
		{1.0, 1.0, 4.0},
		{2.0, 1.2, 2.8},
		{10.0, 1.5, 2.8},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}

	path := filepath.Join(t.TempDir(), "trials.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestReadWorkbook(t *testing.T) {
	path := writeTrialsWorkbook(t)
	reader := NewDataReader()

	ds, err := reader.Read(context.Background(), path, ports.ColumnMapping{
		Y:          "y",
		V:          "v",
		Moderators: []string{"dose"},
		Intercept:  true,
	})
	require.NoError(t, err)

	assert.Equal(t, 8, ds.NStudies())
	assert.Equal(t, 1, ds.NDatasets())
	assert.Equal(t, 2, ds.NPredictors())
	assert.Equal(t, []string{"intercept", "dose"}, ds.Names)
	assert.True(t, ds.HasV())
	assert.False(t, ds.HasN())

	assert.InDelta(t, -1.0, ds.Y[0][0], 1e-12)
	assert.InDelta(t, 2.4, ds.V[2][0], 1e-12)
	assert.InDelta(t, 1.0, ds.X[4][0], 1e-12)
	assert.InDelta(t, 4.0, ds.X[4][1], 1e-12)
}

func TestReadMissingColumn(t *testing.T) {
	path := writeTrialsWorkbook(t)
	reader := NewDataReader()

	_, err := reader.Read(context.Background(), path, ports.ColumnMapping{Y: "effect"})
	assert.ErrorContains(t, err, `column "effect" not found`)

	_, err = reader.Read(context.Background(), path, ports.ColumnMapping{})
	assert.ErrorContains(t, err, "effect-size column")
}

func TestReadRejectsBadCells(t *testing.T) {
	reader := NewDataReader()

	blank := filepath.Join(t.TempDir(), "blank.csv")
	require.NoError(t, os.WriteFile(blank, []byte("y,v\n1,\n2,1\n"), 0o644))
	_, err := reader.Read(context.Background(), blank, ports.ColumnMapping{Y: "y", V: "v", Intercept: true})
	assert.ErrorContains(t, err, "blank cell")

	text := filepath.Join(t.TempDir(), "text.csv")
	require.NoError(t, os.WriteFile(text, []byte("y,v\n1,n/a\n2,1\n"), 0o644))
	_, err = reader.Read(context.Background(), text, ports.ColumnMapping{Y: "y", V: "v", Intercept: true})
	assert.ErrorContains(t, err, "non-numeric value")
}

func TestWriteResultsWorkbook(t *testing.T) {
	ds, err := meta.FromColumns(
		[]float64{-1, 0.5, 0.5, 0.5, 1, 1, 2, 10},
		[]float64{1, 1, 2.4, 0.5, 1, 1, 1.2, 1.5},
		nil,
		[][]float64{{1}, {1}, {2}, {2}, {4}, {4}, {2.8}, {2.8}},
		[]string{"dose"},
		true,
	)
	require.NoError(t, err)

	pperm := 0.125
	bundle := &ExportBundle{
		Estimator: "reml",
		Alpha:     0.05,
		Table: []meta.TableRow{
			{Name: "intercept", Estimate: -0.1066, SE: 2.9937, Z: -0.0356, P: 0.9716, CILower: -5.9741, CIUpper: 5.7610},
			{Name: "dose", Estimate: 0.7700, SE: 1.1133, Z: 0.6916, P: 0.4892, PPerm: &pperm, CILower: -1.4122, CIUpper: 2.9521},
		},
		Het: []meta.Heterogeneity{
			{Q: 53.8052, DF: 6, PValue: 8.075e-10, I2: 88.8487, H2: 8.9675},
		},
		Tau2CI: &meta.REStats{
			Tau2:    []float64{10.9499},
			CILower: []float64{3.8076},
			CIUpper: []float64{math.Inf(1)},
			Alpha:   0.05,
			Method:  "q-profile",
		},
		Dataset: ds,
	}

	path := filepath.Join(t.TempDir(), "results.xlsx")
	require.NoError(t, NewResultsWriter().Write(path, bundle))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.ElementsMatch(t, []string{"Coefficients", "Heterogeneity", "Profile"}, f.GetSheetList())

	assert.Equal(t, "Name", cellString(t, f, "Coefficients", "A1"))
	assert.Equal(t, "P (perm)", cellString(t, f, "Coefficients", "F1"))
	assert.Equal(t, "CI 2.5%", cellString(t, f, "Coefficients", "G1"))
	assert.Equal(t, "CI 97.5%", cellString(t, f, "Coefficients", "H1"))

	assert.Equal(t, "intercept", cellString(t, f, "Coefficients", "A2"))
	assert.Equal(t, "", cellString(t, f, "Coefficients", "F2"))
	assert.InDelta(t, -0.1066, cellFloat(t, f, "Coefficients", "B2"), 1e-9)
	assert.Equal(t, "dose", cellString(t, f, "Coefficients", "A3"))
	assert.InDelta(t, 0.125, cellFloat(t, f, "Coefficients", "F3"), 1e-9)

	// Footer lands below the table
	assert.Equal(t, "Estimator", cellString(t, f, "Coefficients", "A5"))
	assert.Equal(t, "reml", cellString(t, f, "Coefficients", "B5"))
	assert.Equal(t, "Alpha", cellString(t, f, "Coefficients", "A6"))

	assert.Equal(t, "Tau2 Upper", cellString(t, f, "Heterogeneity", "I1"))
	assert.InDelta(t, 53.8052, cellFloat(t, f, "Heterogeneity", "B2"), 1e-9)
	assert.InDelta(t, 10.9499, cellFloat(t, f, "Heterogeneity", "G2"), 1e-9)
	assert.Equal(t, "Inf", cellString(t, f, "Heterogeneity", "I2"))

	assert.Equal(t, "dose", cellString(t, f, "Profile", "E1"))
	assert.InDelta(t, -1.0, cellFloat(t, f, "Profile", "B2"), 1e-9)
	assert.InDelta(t, 2.8, cellFloat(t, f, "Profile", "E9"), 1e-9)
}

// The same values land on the same fingerprint whether they arrive as a
// workbook or as CSV.
func TestFormatsAgreeOnFingerprint(t *testing.T) {
	xlsxPath := writeTrialsWorkbook(t)
	csvPath := filepath.Join(t.TempDir(), "trials.csv")
	csv := "y,v,dose\n-1,1,1\n0.5,1,1\n0.5,2.4,2\n0.5,0.5,2\n1,1,4\n1,1,4\n2,1.2,2.8\n10,1.5,2.8\n"
	require.NoError(t, os.WriteFile(csvPath, []byte(csv), 0o644))

	reader := NewDataReader()
	mapping := ports.ColumnMapping{Y: "y", V: "v", Moderators: []string{"dose"}, Intercept: true}

	fromXLSX, err := reader.Read(context.Background(), xlsxPath, mapping)
	require.NoError(t, err)
	fromCSV, err := reader.Read(context.Background(), csvPath, mapping)
	require.NoError(t, err)

	assert.Equal(t, fromCSV.Y, fromXLSX.Y)
	assert.Equal(t, fromCSV.Fingerprint(), fromXLSX.Fingerprint())
}

func cellString(t *testing.T, f *excelize.File, sheet, cell string) string {
	t.Helper()
	val, err := f.GetCellValue(sheet, cell)
	require.NoError(t, err)
	return val
}

func cellFloat(t *testing.T, f *excelize.File, sheet, cell string) float64 {
	t.Helper()
	raw := cellString(t, f, sheet, cell)
	val, err := strconv.ParseFloat(raw, 64)
	require.NoError(t, err, "cell %s!%s = %q", sheet, cell, raw)
	return val
}
