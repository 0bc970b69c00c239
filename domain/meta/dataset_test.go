package meta

import (
	"math"
	"testing"
)

func TestNewDatasetInterceptHandling(t *testing.T) {
	y := ColumnMatrix([]float64{1, 2, 3})
	x := [][]float64{{5}, {6}, {7}}

	ds, err := NewDataset(y, nil, nil, x, []string{"dose"}, true)
	if err != nil {
		t.Fatalf("NewDataset failed: %v", err)
	}

	if ds.NPredictors() != 2 {
		t.Errorf("Expected 2 predictors (intercept + dose), got %d", ds.NPredictors())
	}
	if ds.Names[0] != "intercept" || ds.Names[1] != "dose" {
		t.Errorf("Expected names [intercept dose], got %v", ds.Names)
	}
	for i := range ds.X {
		if ds.X[i][0] != 1 {
			t.Errorf("Row %d: expected intercept column of ones, got %v", i, ds.X[i][0])
		}
		if ds.X[i][1] != x[i][0] {
			t.Errorf("Row %d: moderator column not preserved", i)
		}
	}
}

func TestNewDatasetInterceptOnly(t *testing.T) {
	y := ColumnMatrix([]float64{1, 2, 3, 4})

	ds, err := NewDataset(y, nil, nil, nil, nil, true)
	if err != nil {
		t.Fatalf("NewDataset failed: %v", err)
	}
	if ds.NPredictors() != 1 {
		t.Errorf("Expected intercept-only design, got %d predictors", ds.NPredictors())
	}
	if ds.HasModerators() {
		t.Error("Intercept-only design should report no moderators")
	}
}

func TestNewDatasetSynthesizedNames(t *testing.T) {
	y := ColumnMatrix([]float64{1, 2})
	x := [][]float64{{1, 10}, {2, 20}}

	ds, err := NewDataset(y, nil, nil, x, nil, false)
	if err != nil {
		t.Fatalf("NewDataset failed: %v", err)
	}
	if ds.Names[0] != "x0" || ds.Names[1] != "x1" {
		t.Errorf("Expected synthesized names [x0 x1], got %v", ds.Names)
	}
}

func TestNewDatasetValidation(t *testing.T) {
	y := ColumnMatrix([]float64{1, 2, 3})

	tests := []struct {
		name  string
		build func() error
	}{
		{
			name: "empty y",
			build: func() error {
				_, err := NewDataset(nil, nil, nil, nil, nil, true)
				return err
			},
		},
		{
			name: "v row count mismatch",
			build: func() error {
				_, err := NewDataset(y, ColumnMatrix([]float64{1, 2}), nil, nil, nil, true)
				return err
			},
		},
		{
			name: "non-positive variance",
			build: func() error {
				_, err := NewDataset(y, ColumnMatrix([]float64{1, 0, 2}), nil, nil, nil, true)
				return err
			},
		},
		{
			name: "non-positive sample size",
			build: func() error {
				_, err := NewDataset(y, nil, ColumnMatrix([]float64{10, -3, 12}), nil, nil, true)
				return err
			},
		},
		{
			name: "no design and no intercept",
			build: func() error {
				_, err := NewDataset(y, nil, nil, nil, nil, false)
				return err
			},
		},
		{
			name: "x row count mismatch",
			build: func() error {
				_, err := NewDataset(y, nil, nil, [][]float64{{1}, {2}}, nil, true)
				return err
			},
		},
		{
			name: "names length mismatch",
			build: func() error {
				_, err := NewDataset(y, nil, nil, [][]float64{{1}, {2}, {3}}, []string{"a", "b"}, true)
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.build(); err == nil {
				t.Error("Expected a validation error, got nil")
			}
		})
	}
}

func TestFromColumns(t *testing.T) {
	ds, err := FromColumns(
		[]float64{-1, 0.5, 1},
		[]float64{1, 1, 2},
		nil,
		[][]float64{{1}, {2}, {4}},
		[]string{"dose"},
		true,
	)
	if err != nil {
		t.Fatalf("FromColumns failed: %v", err)
	}

	if ds.NStudies() != 3 || ds.NDatasets() != 1 {
		t.Errorf("Expected 3 studies x 1 dataset, got %d x %d", ds.NStudies(), ds.NDatasets())
	}
	if !ds.HasV() || ds.HasN() {
		t.Errorf("Expected v present, n absent; got HasV=%v HasN=%v", ds.HasV(), ds.HasN())
	}
	if !ds.HasModerators() {
		t.Error("Design with a varying dose column should report moderators")
	}

	yCol := ds.YColumn(0)
	if len(yCol) != 3 || yCol[0] != -1 || yCol[2] != 1 {
		t.Errorf("YColumn(0) round-trip failed: %v", yCol)
	}
	vCol := ds.VColumn(0)
	if vCol[2] != 2 {
		t.Errorf("VColumn(0) round-trip failed: %v", vCol)
	}
}

func TestDescribeRows(t *testing.T) {
	ds, err := FromColumns(
		[]float64{1, 2, 3, 4},
		[]float64{1, 1, 1, 1},
		[]float64{10, 20, 30, 40},
		[][]float64{{5}, {6}, {7}, {8}},
		[]string{"dose"},
		true,
	)
	if err != nil {
		t.Fatalf("FromColumns failed: %v", err)
	}

	rows := ds.Describe()
	// y, v, n, dose; intercept is skipped
	if len(rows) != 4 {
		t.Fatalf("Expected 4 summary rows, got %d", len(rows))
	}
	byName := map[string]VariableSummary{}
	for _, r := range rows {
		byName[r.Name] = r
	}
	if _, ok := byName["intercept"]; ok {
		t.Error("Intercept should not be profiled")
	}

	yRow, ok := byName["y"]
	if !ok {
		t.Fatal("Expected a summary row named y")
	}
	if yRow.Count != 4 {
		t.Errorf("Expected count 4, got %d", yRow.Count)
	}
	if math.Abs(yRow.Mean-2.5) > 1e-9 {
		t.Errorf("Expected mean 2.5, got %f", yRow.Mean)
	}
	if yRow.Min != 1 || yRow.Max != 4 {
		t.Errorf("Expected min 1 max 4, got %f / %f", yRow.Min, yRow.Max)
	}

	doseRow, ok := byName["dose"]
	if !ok {
		t.Fatal("Expected a summary row named dose")
	}
	if math.Abs(doseRow.Median-6.5) > 1e-9 {
		t.Errorf("Expected dose median 6.5, got %f", doseRow.Median)
	}
}

func TestDescribeMultiColumnNaming(t *testing.T) {
	y := [][]float64{{1, 10}, {2, 20}, {3, 30}}
	ds, err := NewDataset(y, nil, nil, nil, nil, true)
	if err != nil {
		t.Fatalf("NewDataset failed: %v", err)
	}

	rows := ds.Describe()
	if len(rows) != 2 {
		t.Fatalf("Expected 2 summary rows, got %d", len(rows))
	}
	if rows[0].Name != "y[0]" || rows[1].Name != "y[1]" {
		t.Errorf("Expected indexed outcome names, got %q %q", rows[0].Name, rows[1].Name)
	}
}
