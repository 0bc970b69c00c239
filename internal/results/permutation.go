package results

import (
	"gometa/domain/core"
	"gometa/domain/meta"
)

// PermutationResults extends a Results with permutation-test p-values.
// It is fully immutable once constructed.
type PermutationResults struct {
	*Results
	NPermUsed int         // permutations actually evaluated
	Exact     bool        // true when the full permutation universe was enumerated
	CoefP     [][]float64 // n_predictors x n_datasets
	Tau2P     []float64   // per dataset; nil for estimators without tau2
}

// NewPermutation validates p-value shapes against the wrapped results.
func NewPermutation(res *Results, nPermUsed int, exact bool, coefP [][]float64, tau2P []float64) (*PermutationResults, error) {
	if res == nil {
		return nil, core.NewValidationError("results", "wrapped results are required")
	}
	if len(coefP) != res.Estimate.NPredictors() {
		return nil, core.NewShapeError("coefficient p-values", res.Estimate.NPredictors(), len(coefP))
	}
	for _, row := range coefP {
		if len(row) != res.Estimate.NDatasets() {
			return nil, core.NewShapeError("coefficient p-value columns", res.Estimate.NDatasets(), len(row))
		}
	}
	if tau2P != nil && len(tau2P) != res.Estimate.NDatasets() {
		return nil, core.NewShapeError("tau2 p-values", res.Estimate.NDatasets(), len(tau2P))
	}
	return &PermutationResults{
		Results:   res,
		NPermUsed: nPermUsed,
		Exact:     exact,
		CoefP:     coefP,
		Tau2P:     tau2P,
	}, nil
}

// Table produces the flat per-predictor view with the permutation p-value
// column inserted immediately after the parametric one.
func (pr *PermutationResults) Table(alpha float64) ([]meta.TableRow, error) {
	rows, err := pr.Results.Table(alpha)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		p := pr.CoefP[i][0]
		rows[i].PPerm = &p
	}
	return rows, nil
}
