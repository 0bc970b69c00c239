package numerics

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/stat/distuv"
)

func TestQStatisticReference(t *testing.T) {
	q, err := QStatistic(fixtureY, fixtureV, fixtureX, 0)
	if err != nil {
		t.Fatalf("QStatistic failed: %v", err)
	}
	if math.Abs(q-53.8052216124) > 1e-7 {
		t.Errorf("Q(0): expected 53.8052216124, got %.10f", q)
	}

	// Q must be non-increasing in tau2.
	prev := q
	for _, tau2 := range []float64{0.5, 1, 5, 10, 50, 100} {
		qt, err := QStatistic(fixtureY, fixtureV, fixtureX, tau2)
		if err != nil {
			t.Fatalf("QStatistic(%v) failed: %v", tau2, err)
		}
		if qt > prev+1e-12 {
			t.Errorf("Q not non-increasing at tau2=%v: %f > %f", tau2, qt, prev)
		}
		prev = qt
	}
}

func TestChiSquaredCriticalValues(t *testing.T) {
	chi := distuv.ChiSquared{K: 6}
	if got := chi.Quantile(0.975); math.Abs(got-14.4493753354) > 1e-6 {
		t.Errorf("chi2 0.975 quantile: expected 14.4493753354, got %.10f", got)
	}
	if got := chi.Quantile(0.025); math.Abs(got-1.2373442458) > 1e-6 {
		t.Errorf("chi2 0.025 quantile: expected 1.2373442458, got %.10f", got)
	}
}

func TestQProfileCIReference(t *testing.T) {
	res, err := QProfileCI(fixtureY, fixtureV, fixtureX, 0.05)
	if err != nil {
		t.Fatalf("QProfileCI failed: %v", err)
	}
	if !res.LowerConverged || !res.UpperConverged {
		t.Fatalf("Expected both bounds converged, got %+v", res)
	}
	if math.Abs(res.Lower-3.80759937) > 1e-3 {
		t.Errorf("Lower bound: expected 3.8076, got %.8f", res.Lower)
	}
	if math.Abs(res.Upper-59.61602529) > 1e-3 {
		t.Errorf("Upper bound: expected 59.6160, got %.8f", res.Upper)
	}

	// The interval must cover the moment estimates of tau2.
	for _, tau2 := range []float64{8.3626637802, 11.3881211180} {
		if tau2 < res.Lower || tau2 > res.Upper {
			t.Errorf("CI [%f, %f] does not cover tau2=%f", res.Lower, res.Upper, tau2)
		}
	}
}

func TestQProfileCIHomogeneousLowerBound(t *testing.T) {
	// Homogeneous data: Q(0) below the upper critical value, so the lower
	// bound collapses to zero.
	y := []float64{1.0, 1.1, 0.9, 1.05, 0.95, 1.02}
	v := []float64{1, 1, 1, 1, 1, 1}
	x := [][]float64{{1}, {1}, {1}, {1}, {1}, {1}}

	res, err := QProfileCI(y, v, x, 0.05)
	if err != nil {
		t.Fatalf("QProfileCI failed: %v", err)
	}
	if res.Lower != 0 {
		t.Errorf("Expected lower bound 0 for homogeneous data, got %f", res.Lower)
	}
	if !res.LowerConverged {
		t.Error("A zero lower bound from a small Q(0) is converged, not degraded")
	}
}

func TestQProfileCIDegenerateDF(t *testing.T) {
	y := []float64{1, 2}
	v := []float64{1, 1}
	x := [][]float64{{1, 1}, {1, 2}}

	if _, err := QProfileCI(y, v, x, 0.05); err == nil {
		t.Error("Expected an error when df <= 0")
	}
}

func TestQProfileCIInvalidAlpha(t *testing.T) {
	for _, alpha := range []float64{0, 1, -0.5, 2} {
		if _, err := QProfileCI(fixtureY, fixtureV, fixtureX, alpha); err == nil {
			t.Errorf("Expected an error for alpha=%v", alpha)
		}
	}
}

func TestHeterogeneityStatsReference(t *testing.T) {
	i2, h2, p := HeterogeneityStats(53.8052216124, 6)
	if math.Abs(i2-88.84866595) > 1e-6 {
		t.Errorf("I2: expected 88.84866595, got %.8f", i2)
	}
	if math.Abs(h2-8.96753694) > 1e-6 {
		t.Errorf("H2: expected 8.96753694, got %.8f", h2)
	}
	if p > 1e-8 {
		t.Errorf("Expected a vanishing heterogeneity p-value, got %g", p)
	}

	// Q below df floors I2 at zero.
	i2, h2, p = HeterogeneityStats(3, 6)
	if i2 != 0 {
		t.Errorf("Expected I2 floored at 0, got %f", i2)
	}
	if h2 != 0.5 {
		t.Errorf("Expected H2 0.5, got %f", h2)
	}
	if p < 0.5 {
		t.Errorf("Expected a large p-value for Q below df, got %f", p)
	}
}
