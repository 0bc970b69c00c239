package results

import (
	"errors"
	"math"
	"strings"
	"testing"

	"gometa/domain/core"
	"gometa/domain/meta"
	"gometa/internal/estimators"
)

var (
	fixtureY    = []float64{-1, 0.5, 0.5, 0.5, 1, 1, 2, 10}
	fixtureV    = []float64{1, 1, 2.4, 0.5, 1, 1, 1.2, 1.5}
	fixtureMods = [][]float64{{1}, {1}, {2}, {2}, {4}, {4}, {2.8}, {2.8}}
)

func fitFixture(t *testing.T, est Fitter) *Results {
	t.Helper()
	ds, err := meta.FromColumns(fixtureY, fixtureV, nil, fixtureMods, []string{"dose"}, true)
	if err != nil {
		t.Fatalf("fixture dataset: %v", err)
	}
	estimate, err := est.Fit(ds)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	res, err := New(est, ds, estimate)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return res
}

func TestFEStatsCachedPointerIdentity(t *testing.T) {
	res := fitFixture(t, estimators.NewFixedEffect(0))

	first, err := res.FEStats(0.05)
	if err != nil {
		t.Fatalf("FEStats: %v", err)
	}
	second, err := res.FEStats(0.05)
	if err != nil {
		t.Fatalf("FEStats: %v", err)
	}
	if first != second {
		t.Error("Expected the identical cached pointer for repeated alpha")
	}

	other, err := res.FEStats(0.10)
	if err != nil {
		t.Fatalf("FEStats: %v", err)
	}
	if other == first {
		t.Error("Expected a distinct entry per alpha")
	}
}

func TestTableReferenceValues(t *testing.T) {
	res := fitFixture(t, estimators.NewREML(estimators.Options{}))

	rows, err := res.Table(0.05)
	if err != nil {
		t.Fatalf("Table: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(rows))
	}

	want := []meta.TableRow{
		{Name: "intercept", Estimate: -0.1065757576, SE: 2.9937151737, Z: -0.0355998321, P: 0.9716014422, CILower: -5.9741496781, CIUpper: 5.7609981629},
		{Name: "dose", Estimate: 0.7699608851, SE: 1.1133439807, Z: 0.6915750195, P: 0.4892042538, CILower: -1.4121532194, CIUpper: 2.9520749896},
	}
	for i, w := range want {
		got := rows[i]
		if got.Name != w.Name {
			t.Errorf("row %d: expected name %q, got %q", i, w.Name, got.Name)
		}
		checks := []struct {
			label string
			got   float64
			want  float64
		}{
			{"estimate", got.Estimate, w.Estimate},
			{"se", got.SE, w.SE},
			{"z", got.Z, w.Z},
			{"p", got.P, w.P},
			{"ci_lower", got.CILower, w.CILower},
			{"ci_upper", got.CIUpper, w.CIUpper},
		}
		for _, c := range checks {
			if math.Abs(c.got-c.want) > 1e-4 {
				t.Errorf("row %d %s: expected %.10f, got %.10f", i, c.label, c.want, c.got)
			}
		}
		if got.PPerm != nil {
			t.Errorf("row %d: expected no permutation p-value", i)
		}
	}
}

func TestTableRejectsParallelDatasets(t *testing.T) {
	k := len(fixtureY)
	y := make([][]float64, k)
	v := make([][]float64, k)
	for i := 0; i < k; i++ {
		y[i] = []float64{fixtureY[i], fixtureY[i] * 2}
		v[i] = []float64{fixtureV[i], fixtureV[i]}
	}
	ds, err := meta.NewDataset(y, v, nil, fixtureMods, []string{"dose"}, true)
	if err != nil {
		t.Fatalf("dataset: %v", err)
	}
	est := estimators.NewFixedEffect(0)
	estimate, err := est.Fit(ds)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	res, err := New(est, ds, estimate)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := res.Table(0.05); err == nil {
		t.Fatal("Expected an error for a multi-dataset flat table")
	} else if !errors.Is(err, core.ErrShapeMismatch) {
		t.Errorf("Expected a shape error, got %v", err)
	}
}

func TestREStatsQProfileReference(t *testing.T) {
	res := fitFixture(t, estimators.NewDerSimonianLaird())

	stats, err := res.REStats("Q-Profile", 0.05)
	if err != nil {
		t.Fatalf("REStats: %v", err)
	}
	if math.Abs(stats.CILower[0]-3.80759937) > 1e-3 {
		t.Errorf("ci_lower: expected 3.8076, got %.8f", stats.CILower[0])
	}
	if math.Abs(stats.CIUpper[0]-59.61602529) > 1e-3 {
		t.Errorf("ci_upper: expected 59.6160, got %.8f", stats.CIUpper[0])
	}
	if stats.Tau2[0] < stats.CILower[0] || stats.Tau2[0] > stats.CIUpper[0] {
		t.Errorf("tau2 %.6f should sit inside [%.6f, %.6f]", stats.Tau2[0], stats.CILower[0], stats.CIUpper[0])
	}

	// Case-insensitive method names share one cache entry.
	again, err := res.REStats("q-profile", 0.05)
	if err != nil {
		t.Fatalf("REStats: %v", err)
	}
	if again != stats {
		t.Error("Expected the identical cached pointer for repeated (method, alpha)")
	}
}

func TestREStatsRejectsUnknownMethod(t *testing.T) {
	res := fitFixture(t, estimators.NewDerSimonianLaird())

	_, err := res.REStats("bootstrap", 0.05)
	if err == nil {
		t.Fatal("Expected an error for an unsupported CI method")
	}
	if !errors.Is(err, core.ErrUnsupportedMethod) {
		t.Errorf("Expected ErrUnsupportedMethod, got %v", err)
	}
	if !strings.Contains(err.Error(), "bootstrap") {
		t.Errorf("Expected the error to name the method, got %q", err.Error())
	}
}

func TestHeterogeneityReference(t *testing.T) {
	res := fitFixture(t, estimators.NewDerSimonianLaird())

	het, err := res.Heterogeneity()
	if err != nil {
		t.Fatalf("Heterogeneity: %v", err)
	}
	if len(het) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(het))
	}
	h := het[0]
	if math.Abs(h.Q-53.8052216124) > 1e-6 {
		t.Errorf("Q: expected 53.8052216124, got %.10f", h.Q)
	}
	if h.DF != 6 {
		t.Errorf("DF: expected 6, got %d", h.DF)
	}
	if math.Abs(h.I2-88.84866595) > 1e-5 {
		t.Errorf("I2: expected 88.84866595, got %.8f", h.I2)
	}
	if math.Abs(h.H2-8.96753694) > 1e-6 {
		t.Errorf("H2: expected 8.96753694, got %.8f", h.H2)
	}
	if h.PValue > 1e-9 || h.PValue < 1e-10 {
		t.Errorf("p-value: expected ~8.1e-10, got %g", h.PValue)
	}

	again, err := res.Heterogeneity()
	if err != nil {
		t.Fatalf("Heterogeneity: %v", err)
	}
	if &again[0] != &het[0] {
		t.Error("Expected the cached slice on repeat calls")
	}
}

func TestPermutationTableInsertsColumn(t *testing.T) {
	res := fitFixture(t, estimators.NewDerSimonianLaird())

	perm, err := NewPermutation(res, 1000, false, [][]float64{{0.012}, {0.340}}, []float64{0.08})
	if err != nil {
		t.Fatalf("NewPermutation: %v", err)
	}
	rows, err := perm.Table(0.05)
	if err != nil {
		t.Fatalf("Table: %v", err)
	}
	if rows[0].PPerm == nil || *rows[0].PPerm != 0.012 {
		t.Errorf("row 0: expected permutation p 0.012, got %v", rows[0].PPerm)
	}
	if rows[1].PPerm == nil || *rows[1].PPerm != 0.340 {
		t.Errorf("row 1: expected permutation p 0.340, got %v", rows[1].PPerm)
	}
	if rows[0].Name != "intercept" || rows[1].Name != "dose" {
		t.Error("Base columns should be preserved")
	}
}

func TestNewPermutationShapeValidation(t *testing.T) {
	res := fitFixture(t, estimators.NewDerSimonianLaird())

	if _, err := NewPermutation(res, 100, false, [][]float64{{0.5}}, nil); err == nil {
		t.Error("Expected a shape error for too few p-value rows")
	}
	if _, err := NewPermutation(res, 100, false, [][]float64{{0.5}, {0.5}}, []float64{0.1, 0.2}); err == nil {
		t.Error("Expected a shape error for mismatched tau2 p-values")
	}
}

func TestFEStatsRejectsBadAlpha(t *testing.T) {
	res := fitFixture(t, estimators.NewFixedEffect(0))
	for _, alpha := range []float64{0, 1, -0.1, 1.5} {
		if _, err := res.FEStats(alpha); err == nil {
			t.Errorf("alpha %v: expected a validation error", alpha)
		}
	}
}
