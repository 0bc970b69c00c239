package numerics

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"gometa/domain/core"
)

// Q-profile search tunables. Q(tau2) is monotonically non-increasing, so each
// bound is a bisection once a bracket is found; the bracket grows by doubling
// and gives up at ProfileBracketCap, at which point the affected bound
// degrades to its open limit (0 below, +Inf above) instead of failing.
const (
	// ProfileBracketCap bounds the doubling search for a tau2 bracket.
	ProfileBracketCap = 1e7
	// ProfileTol is the absolute bisection tolerance on tau2.
	ProfileTol = 1e-8
	// ProfileMaxIter caps bisection iterations per bound.
	ProfileMaxIter = 200
)

// ProfileResult carries the Q-profile confidence bounds for one dataset.
// A false converged flag means the corresponding bracket search exhausted
// ProfileBracketCap and the bound was opened rather than solved.
type ProfileResult struct {
	Lower          float64
	Upper          float64
	LowerConverged bool
	UpperConverged bool
}

// QProfileCI profiles the Q statistic against chi-square critical values with
// n_studies - n_predictors degrees of freedom, returning the tau2 interval at
// coverage 1-alpha.
func QProfileCI(y, v []float64, x [][]float64, alpha float64) (ProfileResult, error) {
	res := ProfileResult{LowerConverged: true, UpperConverged: true}

	k := len(y)
	p := len(x[0])
	df := k - p
	if df <= 0 {
		return res, core.NewValidationError("q-profile", "requires more studies than predictors")
	}
	if alpha <= 0 || alpha >= 1 {
		return res, core.NewValidationError("alpha", "must be in (0, 1)")
	}

	chi := distuv.ChiSquared{K: float64(df)}
	upperCrit := chi.Quantile(1 - alpha/2)
	lowerCrit := chi.Quantile(alpha / 2)

	q0, err := QStatistic(y, v, x, 0)
	if err != nil {
		return res, err
	}

	// Lower bound: the smallest tau2 with Q(tau2) <= upper critical.
	if q0 <= upperCrit {
		res.Lower = 0
	} else if bracket, ok := findBracket(y, v, x, upperCrit); !ok {
		res.Lower = 0
		res.LowerConverged = false
	} else {
		res.Lower = bisectQ(y, v, x, upperCrit, 0, bracket)
	}

	// Upper bound: the largest tau2 with Q(tau2) >= lower critical.
	if q0 <= lowerCrit {
		res.Upper = 0
	} else if bracket, ok := findBracket(y, v, x, lowerCrit); !ok {
		res.Upper = math.Inf(1)
		res.UpperConverged = false
	} else {
		res.Upper = bisectQ(y, v, x, lowerCrit, 0, bracket)
	}

	return res, nil
}

// findBracket doubles an upper bracket until Q drops below target or the cap
// is exhausted.
func findBracket(y, v []float64, x [][]float64, target float64) (float64, bool) {
	b := 1.0
	for b <= ProfileBracketCap {
		q, err := QStatistic(y, v, x, b)
		if err == nil && q <= target {
			return b, true
		}
		b *= 2
	}
	return 0, false
}

// bisectQ solves Q(tau2) = target on [lo, hi] assuming Q(lo) >= target >= Q(hi).
func bisectQ(y, v []float64, x [][]float64, target, lo, hi float64) float64 {
	for iter := 0; iter < ProfileMaxIter && hi-lo > ProfileTol; iter++ {
		mid := (lo + hi) / 2
		q, err := QStatistic(y, v, x, mid)
		if err != nil || q > target {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2
}
