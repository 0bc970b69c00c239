package numerics

import (
	"gonum.org/v1/gonum/stat/distuv"
)

// QStatistic computes the weighted residual sum of squares at the given tau2:
// Q(tau2) = sum_i w_i (y_i - x_i beta)^2 with w_i = 1/(v_i + tau2) and beta
// the WLS solution at those weights.
func QStatistic(y, v []float64, x [][]float64, tau2 float64) (float64, error) {
	w := make([]float64, len(v))
	for i, vi := range v {
		w[i] = 1.0 / (vi + tau2)
	}
	beta, _, err := SolveWLS(y, w, x)
	if err != nil {
		return 0, err
	}
	q := 0.0
	for i, r := range Residuals(y, beta, x) {
		q += w[i] * r * r
	}
	return q, nil
}

// HeterogeneityStats derives I2, H2 and the chi-square p-value from a Q
// statistic with df degrees of freedom. I2 is floored at 0 and reported as a
// percentage; H2 is the observed-to-expected dispersion ratio.
func HeterogeneityStats(q float64, df int) (i2, h2, p float64) {
	if df <= 0 {
		return 0, 0, 1
	}
	fdf := float64(df)
	i2 = 0
	if q > fdf && q > 0 {
		i2 = (q - fdf) / q * 100
	}
	h2 = q / fdf
	p = distuv.ChiSquared{K: fdf}.Survival(q)
	return i2, h2, p
}
