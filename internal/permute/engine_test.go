package permute

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"gometa/domain/core"
	"gometa/domain/meta"
	"gometa/internal/estimators"
	"gometa/internal/results"
	"gometa/internal/testkit"
)

func fitResults(t *testing.T, ds *meta.Dataset, est results.Fitter) *results.Results {
	t.Helper()
	estimate, err := est.Fit(ds)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	res, err := results.New(est, ds, estimate)
	if err != nil {
		t.Fatalf("results.New: %v", err)
	}
	return res
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	kit, err := testkit.NewTestKit()
	if err != nil {
		t.Fatalf("testkit: %v", err)
	}
	return NewEngine(kit.RNGAdapter())
}

func TestExactSignFlipPValue(t *testing.T) {
	// Intercept-only, 4 studies: 16 sign patterns, and only the two
	// uniform ones reach |mean| >= 2.5, so p must be exactly 2/16.
	res := fitResults(t, testkit.TinyDataset(), estimators.NewFixedEffect(0))

	perm, err := newTestEngine(t).Run(context.Background(), res, 1000)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !perm.Exact {
		t.Error("Expected exact enumeration for a 16-pattern universe")
	}
	if perm.NPermUsed != 16 {
		t.Errorf("Expected 16 permutations, got %d", perm.NPermUsed)
	}
	if math.Abs(perm.CoefP[0][0]-0.125) > 1e-12 {
		t.Errorf("Expected p=0.125, got %.10f", perm.CoefP[0][0])
	}
	// The pinned tau2 never varies under permutation.
	if perm.Tau2P == nil || perm.Tau2P[0] != 1.0 {
		t.Errorf("Expected tau2 p=1.0 for a pinned variance, got %v", perm.Tau2P)
	}
}

func TestExactLabelEnumeration(t *testing.T) {
	ds, err := meta.FromColumns(
		[]float64{1, 2, 3, 4},
		[]float64{1, 1, 1, 1},
		nil,
		[][]float64{{1}, {2}, {3}, {4}},
		[]string{"dose"},
		true,
	)
	if err != nil {
		t.Fatalf("dataset: %v", err)
	}
	res := fitResults(t, ds, estimators.NewFixedEffect(0))

	perm, err := newTestEngine(t).Run(context.Background(), res, 100)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !perm.Exact {
		t.Error("Expected exact enumeration for a 24-ordering universe")
	}
	if perm.NPermUsed != 24 {
		t.Errorf("Expected 24 permutations, got %d", perm.NPermUsed)
	}
	floor := 1.0 / 24
	for i := range perm.CoefP {
		p := perm.CoefP[i][0]
		if p < floor || p > 1 {
			t.Errorf("coefficient %d: p=%.6f outside [%.6f, 1]", i, p, floor)
		}
	}
}

func TestMonteCarloDeterminism(t *testing.T) {
	ds := testkit.FixtureDataset()
	res := fitResults(t, ds, estimators.NewDerSimonianLaird())

	engine := newTestEngine(t)
	first, err := engine.Run(context.Background(), res, 500)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if first.Exact {
		t.Fatal("Expected Monte Carlo sampling for an 8!-ordering universe")
	}
	if first.NPermUsed != 500 {
		t.Errorf("Expected 500 permutations, got %d", first.NPermUsed)
	}

	second, err := engine.Run(context.Background(), res, 500)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i := range first.CoefP {
		if first.CoefP[i][0] != second.CoefP[i][0] {
			t.Errorf("coefficient %d: reruns with one seed diverged: %.6f vs %.6f",
				i, first.CoefP[i][0], second.CoefP[i][0])
		}
	}
	if first.Tau2P[0] != second.Tau2P[0] {
		t.Errorf("tau2: reruns with one seed diverged: %.6f vs %.6f", first.Tau2P[0], second.Tau2P[0])
	}

	engine.SetSeed(7)
	third, err := engine.Run(context.Background(), res, 500)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	same := first.Tau2P[0] == third.Tau2P[0]
	for i := range first.CoefP {
		if first.CoefP[i][0] != third.CoefP[i][0] {
			same = false
		}
	}
	if same {
		t.Error("Expected a different seed to change the Monte Carlo draws")
	}
}

func TestParallelDatasetsFanOut(t *testing.T) {
	ds := testkit.ParallelDataset(3)
	res := fitResults(t, ds, estimators.NewFixedEffect(0))

	perm, err := newTestEngine(t).Run(context.Background(), res, 200)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(perm.CoefP) != 2 {
		t.Fatalf("Expected 2 coefficient rows, got %d", len(perm.CoefP))
	}
	floor := 1.0 / 200
	for i := range perm.CoefP {
		if len(perm.CoefP[i]) != 3 {
			t.Fatalf("Expected 3 dataset columns, got %d", len(perm.CoefP[i]))
		}
		for j, p := range perm.CoefP[i] {
			if p < floor || p > 1 {
				t.Errorf("coef %d dataset %d: p=%.6f outside [%.6f, 1]", i, j, p, floor)
			}
		}
	}
	if len(perm.Tau2P) != 3 {
		t.Errorf("Expected 3 tau2 p-values, got %d", len(perm.Tau2P))
	}
}

func TestRejectsIterativeEstimators(t *testing.T) {
	res := fitResults(t, testkit.FixtureDataset(), estimators.NewREML(estimators.Options{}))

	_, err := newTestEngine(t).Run(context.Background(), res, 100)
	if err == nil {
		t.Fatal("Expected an error for an iterative estimator")
	}
	if !errors.Is(err, core.ErrUnsupportedMethod) {
		t.Errorf("Expected ErrUnsupportedMethod, got %v", err)
	}
	if !strings.Contains(err.Error(), "reml") {
		t.Errorf("Expected the error to name the estimator, got %q", err.Error())
	}
}

func TestRejectsNonPositiveDraws(t *testing.T) {
	res := fitResults(t, testkit.TinyDataset(), estimators.NewFixedEffect(0))
	if _, err := newTestEngine(t).Run(context.Background(), res, 0); err == nil {
		t.Error("Expected a validation error for zero draws")
	}
}

func TestCancelledContext(t *testing.T) {
	res := fitResults(t, testkit.FixtureDataset(), estimators.NewDerSimonianLaird())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestEngine(t).Run(ctx, res, 500)
	if err == nil {
		t.Fatal("Expected an error from a cancelled context")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestUniverseSize(t *testing.T) {
	tests := []struct {
		k       int
		hasMods bool
		want    int64
		bounded bool
	}{
		{4, false, 16, true},
		{4, true, 24, true},
		{8, true, 40320, true},
		{20, true, 2432902008176640000, true},
		{21, true, 0, false},
		{63, false, 0, false},
	}
	for _, tt := range tests {
		got, ok := universeSize(tt.k, tt.hasMods)
		if ok != tt.bounded {
			t.Errorf("universeSize(%d, %v): bounded=%v, expected %v", tt.k, tt.hasMods, ok, tt.bounded)
			continue
		}
		if ok && got != tt.want {
			t.Errorf("universeSize(%d, %v): expected %d, got %d", tt.k, tt.hasMods, tt.want, got)
		}
	}
}

func TestNextPermutationVisitsAll(t *testing.T) {
	idx := identity(3)
	seen := map[[3]int]bool{}
	for {
		seen[[3]int{idx[0], idx[1], idx[2]}] = true
		if !nextPermutation(idx) {
			break
		}
	}
	if len(seen) != 6 {
		t.Errorf("Expected 6 distinct orderings, got %d", len(seen))
	}
}

func TestValidateConstants(t *testing.T) {
	if err := ValidateConstants(); err != nil {
		t.Errorf("Constants should validate: %v", err)
	}
}
