package numerics

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"gometa/domain/core"
)

// SolveWLS computes the weighted least squares solution
// beta = (XᵀWX)⁻¹XᵀWy with cov = (XᵀWX)⁻¹ for one outcome column.
// A singular normal-equation matrix is a hard numerical error.
func SolveWLS(y, w []float64, x [][]float64) ([]float64, [][]float64, error) {
	k := len(y)
	if k == 0 || len(w) != k || len(x) != k {
		return nil, nil, core.NewValidationError("wls", "y, w and x must agree on row count")
	}
	p := len(x[0])

	inv, xtw, err := normalEquations(w, x)
	if err != nil {
		return nil, nil, err
	}

	yVec := mat.NewVecDense(k, append([]float64(nil), y...))
	var xtwy mat.VecDense
	xtwy.MulVec(xtw, yVec)
	var betaVec mat.VecDense
	betaVec.MulVec(inv, &xtwy)

	beta := make([]float64, p)
	for i := 0; i < p; i++ {
		beta[i] = betaVec.AtVec(i)
	}
	return beta, denseToSlice(inv), nil
}

// SolveWLSBatch solves one WLS problem per outcome column. When every weight
// column is identical the normal equations are factored once and every
// column is solved in a single matrix product; otherwise columns are solved
// independently. This is the vectorized path permutation batches rely on.
func SolveWLSBatch(y, w [][]float64, x [][]float64) ([][]float64, [][][]float64, error) {
	k := len(y)
	if k == 0 {
		return nil, nil, core.NewValidationError("wls", "empty outcome matrix")
	}
	m := len(y[0])
	if len(w) != k || len(x) != k {
		return nil, nil, core.NewValidationError("wls", "y, w and x must agree on row count")
	}
	p := len(x[0])

	if sharedWeightColumns(w) {
		inv, xtw, err := normalEquations(columnOf(w, 0), x)
		if err != nil {
			return nil, nil, err
		}
		yDense := sliceToDense(y)
		var xtwy, betaAll mat.Dense
		xtwy.Mul(xtw, yDense)
		betaAll.Mul(inv, &xtwy)

		coefs := make([][]float64, p)
		for i := range coefs {
			coefs[i] = make([]float64, m)
			for j := 0; j < m; j++ {
				coefs[i][j] = betaAll.At(i, j)
			}
		}
		covs := make([][][]float64, m)
		for j := range covs {
			covs[j] = denseToSlice(inv)
		}
		return coefs, covs, nil
	}

	coefs := make([][]float64, p)
	for i := range coefs {
		coefs[i] = make([]float64, m)
	}
	covs := make([][][]float64, m)
	for j := 0; j < m; j++ {
		beta, cov, err := SolveWLS(columnOf(y, j), columnOf(w, j), x)
		if err != nil {
			return nil, nil, fmt.Errorf("column %d: %w", j, err)
		}
		for i := 0; i < p; i++ {
			coefs[i][j] = beta[i]
		}
		covs[j] = cov
	}
	return coefs, covs, nil
}

// ProjectionTrace computes tr((XᵀWX)⁻¹ Xᵀ W diag(g) W X), the design trace
// term of the moment and restricted-likelihood tau2 corrections. A nil g is
// treated as all ones (the plain W² form).
func ProjectionTrace(w, g []float64, x [][]float64) (float64, error) {
	inv, _, err := normalEquations(w, x)
	if err != nil {
		return 0, err
	}
	k := len(x)
	p := len(x[0])

	wgw := make([]float64, k)
	for i := range wgw {
		gi := 1.0
		if g != nil {
			gi = g[i]
		}
		wgw[i] = w[i] * gi * w[i]
	}
	xd := sliceToDense(x)
	scaled := mat.NewDense(k, p, nil)
	for i := 0; i < k; i++ {
		for j := 0; j < p; j++ {
			scaled.Set(i, j, wgw[i]*xd.At(i, j))
		}
	}
	var a mat.Dense
	a.Mul(xd.T(), scaled)
	var prod mat.Dense
	prod.Mul(inv, &a)
	return mat.Trace(&prod), nil
}

// Residuals computes y - X*beta.
func Residuals(y, beta []float64, x [][]float64) []float64 {
	r := make([]float64, len(y))
	for i := range y {
		fitted := 0.0
		for j, b := range beta {
			fitted += x[i][j] * b
		}
		r[i] = y[i] - fitted
	}
	return r
}

// normalEquations factors (XᵀWX)⁻¹ and returns it with XᵀW.
func normalEquations(w []float64, x [][]float64) (*mat.Dense, *mat.Dense, error) {
	k := len(x)
	p := len(x[0])

	xd := sliceToDense(x)
	xtw := mat.NewDense(p, k, nil)
	for i := 0; i < p; i++ {
		for j := 0; j < k; j++ {
			xtw.Set(i, j, xd.At(j, i)*w[j])
		}
	}
	var xtwx mat.Dense
	xtwx.Mul(xtw, xd)

	inv := mat.NewDense(p, p, nil)
	if err := inv.Inverse(&xtwx); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", core.ErrSingularMatrix, err)
	}
	return inv, xtw, nil
}

func sliceToDense(rows [][]float64) *mat.Dense {
	r := len(rows)
	c := len(rows[0])
	d := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			d.Set(i, j, rows[i][j])
		}
	}
	return d
}

func denseToSlice(d *mat.Dense) [][]float64 {
	r, c := d.Dims()
	out := make([][]float64, r)
	for i := 0; i < r; i++ {
		out[i] = make([]float64, c)
		for j := 0; j < c; j++ {
			out[i][j] = d.At(i, j)
		}
	}
	return out
}

func sharedWeightColumns(w [][]float64) bool {
	cols := len(w[0])
	if cols == 1 {
		return true
	}
	for i := range w {
		first := w[i][0]
		for j := 1; j < cols; j++ {
			if w[i][j] != first {
				return false
			}
		}
	}
	return true
}

func columnOf(m [][]float64, j int) []float64 {
	col := make([]float64, len(m))
	for i := range m {
		col[i] = m[i][j]
	}
	return col
}
