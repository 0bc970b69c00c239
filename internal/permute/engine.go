package permute

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"gometa/domain/core"
	"gometa/domain/meta"
	"gometa/internal/results"
	"gometa/ports"
)

// Engine runs permutation tests against fitted results. Only closed-form
// estimators are supported: each dataset's full permutation batch becomes
// one vectorized refit instead of nPerm sequential fits.
//
// Designs with moderators shuffle study labels, carrying y and its paired
// v (or n) through the same reordering. Intercept-only designs flip signs
// of y. When the full universe of rearrangements is no larger than the
// requested draw count, it is enumerated exactly; otherwise draws are
// Monte Carlo from seeded per-dataset streams.
type Engine struct {
	rng     ports.RNGPort
	workers int
	seed    int64
}

// NewEngine creates a permutation engine with default fan-out and seed.
func NewEngine(rng ports.RNGPort) *Engine {
	return &Engine{rng: rng, workers: DEFAULT_WORKERS, seed: DEFAULT_SEED}
}

// SetWorkers configures how many parallel datasets refit concurrently.
func (e *Engine) SetWorkers(n int) {
	if n < 1 {
		n = 1
	}
	if n > MAX_WORKERS {
		n = MAX_WORKERS
	}
	e.workers = n
}

// SetSeed fixes the base seed for Monte Carlo draws.
func (e *Engine) SetSeed(seed int64) { e.seed = seed }

type datasetOutcome struct {
	index   int
	coefP   []float64
	tau2P   float64
	hasTau2 bool
	err     error
}

// Run permutes the outcomes of every parallel dataset nPerm times and
// reports the fraction of rearrangements producing statistics at least as
// extreme as the observed ones. Each p-value is floored at 1/nPerm.
func (e *Engine) Run(ctx context.Context, res *results.Results, nPerm int) (*results.PermutationResults, error) {
	if res == nil {
		return nil, core.NewValidationError("results", "fitted results are required")
	}
	if nPerm < 1 {
		return nil, core.NewValidationError("n_perm", fmt.Sprintf("must be positive, got %d", nPerm))
	}
	if !res.Estimator.Closed() {
		return nil, fmt.Errorf("%w: %s refits iteratively; permutation tests support closed-form estimators only",
			core.ErrUnsupportedMethod, res.Estimator.Name())
	}

	ds := res.Dataset
	hasMods := ds.HasModerators()
	universe, bounded := universeSize(ds.NStudies(), hasMods)
	exact := bounded && universe <= int64(nPerm)
	nEff := nPerm
	if exact {
		nEff = int(universe)
	}

	m := ds.NDatasets()
	workers := e.workers
	if workers > m {
		workers = m
	}

	workChan := make(chan int, m)
	resultChan := make(chan datasetOutcome, m)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range workChan {
				select {
				case <-ctx.Done():
					return
				default:
				}
				resultChan <- e.testDataset(ctx, res, j, nEff, exact, hasMods)
			}
		}()
	}
	for j := 0; j < m; j++ {
		workChan <- j
	}
	close(workChan)
	go func() {
		wg.Wait()
		close(resultChan)
	}()

	p := ds.NPredictors()
	coefP := make([][]float64, p)
	for i := range coefP {
		coefP[i] = make([]float64, m)
	}
	var tau2P []float64
	seen := 0
	for out := range resultChan {
		if out.err != nil {
			return nil, fmt.Errorf("dataset %d: %w", out.index, out.err)
		}
		for i := 0; i < p; i++ {
			coefP[i][out.index] = out.coefP[i]
		}
		if out.hasTau2 {
			if tau2P == nil {
				tau2P = make([]float64, m)
			}
			tau2P[out.index] = out.tau2P
		}
		seen++
	}
	if seen != m {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("permutation aborted after %d of %d datasets", seen, m)
	}

	return results.NewPermutation(res, nEff, exact, coefP, tau2P)
}

// testDataset builds the permuted outcome batch for one parallel dataset,
// refits it in a single vectorized pass, and counts extreme statistics.
func (e *Engine) testDataset(ctx context.Context, res *results.Results, j, nEff int, exact, hasMods bool) datasetOutcome {
	out := datasetOutcome{index: j}
	ds := res.Dataset
	k := ds.NStudies()

	y := ds.YColumn(j)
	v := ds.VColumn(j)
	n := ds.NColumn(j)

	permY := newMatrix(k, nEff)
	var permV, permN [][]float64
	if v != nil {
		permV = newMatrix(k, nEff)
	}
	if n != nil {
		permN = newMatrix(k, nEff)
	}

	// One column per rearrangement. Label shuffles reorder y together with
	// its paired v/n; sign flips touch y only.
	writeOrdering := func(c int, idx []int) {
		for i := 0; i < k; i++ {
			src := idx[i]
			permY[i][c] = y[src]
			if permV != nil {
				permV[i][c] = v[src]
			}
			if permN != nil {
				permN[i][c] = n[src]
			}
		}
	}
	writeSigns := func(c int, signAt func(i int) float64) {
		for i := 0; i < k; i++ {
			permY[i][c] = y[i] * signAt(i)
			if permV != nil {
				permV[i][c] = v[i]
			}
			if permN != nil {
				permN[i][c] = n[i]
			}
		}
	}

	switch {
	case hasMods && exact:
		idx := identity(k)
		c := 0
		for {
			writeOrdering(c, idx)
			c++
			if !nextPermutation(idx) {
				break
			}
		}
	case hasMods:
		rng, err := e.rng.Stream(ctx, "permutation-test", j, e.seed)
		if err != nil {
			out.err = err
			return out
		}
		idx := identity(k)
		for c := 0; c < nEff; c++ {
			shuffle(idx, rng)
			writeOrdering(c, idx)
		}
	case exact:
		for mask := 0; mask < nEff; mask++ {
			writeSigns(mask, func(i int) float64 {
				if mask>>uint(i)&1 == 1 {
					return 1
				}
				return -1
			})
		}
	default:
		rng, err := e.rng.Stream(ctx, "permutation-test", j, e.seed)
		if err != nil {
			out.err = err
			return out
		}
		for c := 0; c < nEff; c++ {
			writeSigns(c, func(int) float64 {
				if rng.Intn(2) == 1 {
					return 1
				}
				return -1
			})
		}
	}

	batch, err := meta.NewDataset(permY, permV, permN, ds.X, ds.Names, false)
	if err != nil {
		out.err = err
		return out
	}
	fit, err := res.Estimator.Fit(batch)
	if err != nil {
		out.err = err
		return out
	}

	floor := 1.0 / float64(nEff)
	out.coefP = make([]float64, ds.NPredictors())
	for i := range out.coefP {
		obs := math.Abs(res.Estimate.Coefficients[i][j])
		count := 0
		for c := 0; c < nEff; c++ {
			if math.Abs(fit.Coefficients[i][c]) >= obs {
				count++
			}
		}
		out.coefP[i] = math.Max(float64(count)/float64(nEff), floor)
	}
	if len(res.Estimate.Tau2) > 0 && len(fit.Tau2) == nEff {
		obs := res.Estimate.Tau2[j]
		count := 0
		for c := 0; c < nEff; c++ {
			if fit.Tau2[c] >= obs {
				count++
			}
		}
		out.tau2P = math.Max(float64(count)/float64(nEff), floor)
		out.hasTau2 = true
	}
	return out
}

// shuffle applies one Fisher-Yates pass in place.
func shuffle(idx []int, rng *rand.Rand) {
	for i := len(idx) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		idx[i], idx[j] = idx[j], idx[i]
	}
}

func newMatrix(rows, cols int) [][]float64 {
	m := make([][]float64, rows)
	for i := range m {
		m[i] = make([]float64, cols)
	}
	return m
}
