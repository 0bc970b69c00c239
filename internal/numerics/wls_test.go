package numerics

import (
	"errors"
	"math"
	"testing"

	"gometa/domain/core"
)

// Eight-study fixture with one continuous moderator, used across the
// numeric test suite. Reference values were computed independently.
var (
	fixtureY = []float64{-1, 0.5, 0.5, 0.5, 1, 1, 2, 10}
	fixtureV = []float64{1, 1, 2.4, 0.5, 1, 1, 1.2, 1.5}
	fixtureX = [][]float64{
		{1, 1}, {1, 1}, {1, 2}, {1, 2}, {1, 4}, {1, 4}, {1, 2.8}, {1, 2.8},
	}
)

func TestSolveWLSReference(t *testing.T) {
	w := make([]float64, len(fixtureV))
	for i, v := range fixtureV {
		w[i] = 1 / v
	}

	beta, cov, err := SolveWLS(fixtureY, w, fixtureX)
	if err != nil {
		t.Fatalf("SolveWLS failed: %v", err)
	}

	wantBeta := []float64{-0.2725266429, 0.6934764933}
	for i := range wantBeta {
		if math.Abs(beta[i]-wantBeta[i]) > 1e-8 {
			t.Errorf("beta[%d]: expected %.10f, got %.10f", i, wantBeta[i], beta[i])
		}
	}

	wantCov := [][]float64{
		{0.7242791184, -0.2487150449},
		{-0.2487150449, 0.1034497779},
	}
	for i := range wantCov {
		for j := range wantCov[i] {
			if math.Abs(cov[i][j]-wantCov[i][j]) > 1e-8 {
				t.Errorf("cov[%d][%d]: expected %.10f, got %.10f", i, j, wantCov[i][j], cov[i][j])
			}
		}
	}
}

func TestSolveWLSSingular(t *testing.T) {
	// Two identical design columns make XtWX singular.
	y := []float64{1, 2, 3}
	w := []float64{1, 1, 1}
	x := [][]float64{{1, 1}, {2, 2}, {3, 3}}

	_, _, err := SolveWLS(y, w, x)
	if err == nil {
		t.Fatal("Expected a singularity error, got nil")
	}
	if !errors.Is(err, core.ErrSingularMatrix) {
		t.Errorf("Expected ErrSingularMatrix, got %v", err)
	}
}

func TestSolveWLSBatchSharedWeights(t *testing.T) {
	// Two outcome columns under identical weights must match independent solves.
	y := make([][]float64, len(fixtureY))
	w := make([][]float64, len(fixtureY))
	for i := range fixtureY {
		y[i] = []float64{fixtureY[i], fixtureY[i] * 2}
		w[i] = []float64{1 / fixtureV[i], 1 / fixtureV[i]}
	}

	coefs, covs, err := SolveWLSBatch(y, w, fixtureX)
	if err != nil {
		t.Fatalf("SolveWLSBatch failed: %v", err)
	}
	if len(coefs) != 2 || len(coefs[0]) != 2 {
		t.Fatalf("Expected 2x2 coefficient matrix, got %dx%d", len(coefs), len(coefs[0]))
	}
	if len(covs) != 2 {
		t.Fatalf("Expected 2 covariance matrices, got %d", len(covs))
	}

	for j := 0; j < 2; j++ {
		beta, cov, err := SolveWLS(columnOf(y, j), columnOf(w, j), fixtureX)
		if err != nil {
			t.Fatalf("column %d solve failed: %v", j, err)
		}
		for i := range beta {
			if math.Abs(coefs[i][j]-beta[i]) > 1e-12 {
				t.Errorf("coefs[%d][%d]: batch %.12f vs single %.12f", i, j, coefs[i][j], beta[i])
			}
		}
		for a := range cov {
			for b := range cov[a] {
				if math.Abs(covs[j][a][b]-cov[a][b]) > 1e-12 {
					t.Errorf("covs[%d][%d][%d] mismatch", j, a, b)
				}
			}
		}
	}

	// Doubling y must exactly double the coefficients under shared weights.
	for i := 0; i < 2; i++ {
		if math.Abs(coefs[i][1]-2*coefs[i][0]) > 1e-10 {
			t.Errorf("Expected column 1 = 2x column 0 at row %d, got %.12f vs %.12f", i, coefs[i][1], coefs[i][0])
		}
	}
}

func TestSolveWLSBatchPerColumnWeights(t *testing.T) {
	// Distinct weight columns force the per-column path; results must still
	// match independent solves.
	k := len(fixtureY)
	y := make([][]float64, k)
	w := make([][]float64, k)
	for i := 0; i < k; i++ {
		y[i] = []float64{fixtureY[i], fixtureY[k-1-i]}
		w[i] = []float64{1 / fixtureV[i], 1 / fixtureV[k-1-i]}
	}

	coefs, covs, err := SolveWLSBatch(y, w, fixtureX)
	if err != nil {
		t.Fatalf("SolveWLSBatch failed: %v", err)
	}

	for j := 0; j < 2; j++ {
		beta, cov, err := SolveWLS(columnOf(y, j), columnOf(w, j), fixtureX)
		if err != nil {
			t.Fatalf("column %d solve failed: %v", j, err)
		}
		for i := range beta {
			if math.Abs(coefs[i][j]-beta[i]) > 1e-12 {
				t.Errorf("coefs[%d][%d]: batch %.12f vs single %.12f", i, j, coefs[i][j], beta[i])
			}
		}
		if math.Abs(covs[j][1][1]-cov[1][1]) > 1e-12 {
			t.Errorf("covs[%d] diagonal mismatch", j)
		}
	}
}

func TestProjectionTraceReference(t *testing.T) {
	// With w = 1/v the DL denominator sum(w) - trace must reproduce the
	// reference tau2 via (Q - df) / denominator.
	w := make([]float64, len(fixtureV))
	wSum := 0.0
	for i, v := range fixtureV {
		w[i] = 1 / v
		wSum += w[i]
	}

	tr, err := ProjectionTrace(w, nil, fixtureX)
	if err != nil {
		t.Fatalf("ProjectionTrace failed: %v", err)
	}

	q, err := QStatistic(fixtureY, fixtureV, fixtureX, 0)
	if err != nil {
		t.Fatalf("QStatistic failed: %v", err)
	}
	tau2 := (q - 6) / (wSum - tr)
	if math.Abs(tau2-8.3626637802) > 1e-7 {
		t.Errorf("DL tau2 via trace: expected 8.3626637802, got %.10f", tau2)
	}
}

func TestResiduals(t *testing.T) {
	y := []float64{3, 5, 7}
	x := [][]float64{{1, 1}, {1, 2}, {1, 3}}
	beta := []float64{1, 2}

	r := Residuals(y, beta, x)
	for i, want := range []float64{0, 0, 0} {
		if math.Abs(r[i]-want) > 1e-12 {
			t.Errorf("residual[%d]: expected %f, got %f", i, want, r[i])
		}
	}
}
