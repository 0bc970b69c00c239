package bayes

import (
	"context"
	"fmt"
	"math"
	"time"

	"gometa/domain/core"
	"gometa/ports"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// MetropolisSampler implements the PosteriorSampler port with a random-walk
// Metropolis chain over (beta, tau2) of the normal-normal model. Studies
// sharing a group share one random effect, so each group contributes a
// marginal block
//
//	y_g ~ MVN(X_g beta, diag(v_g) + tau2 * 11')
//
// which for a study alone in its group reduces to
// y_i ~ Normal(x_i' beta, v_i + tau2). Flat priors on beta and on tau2 >= 0.
// Chains start at the fixed-effect WLS solution and a moment estimate of
// tau2; proposal scales are tuned component-wise during burn-in only, so the
// kept draws come from a fixed kernel.
type MetropolisSampler struct{}

// NewMetropolisSampler creates a new posterior sampler
func NewMetropolisSampler() ports.PosteriorSampler {
	return &MetropolisSampler{}
}

// Sample runs the requested chains and pools their kept draws.
func (s *MetropolisSampler) Sample(ctx context.Context, req ports.SampleRequest) (ports.PosteriorSummary, error) {
	k := len(req.Y)
	if k == 0 {
		return nil, core.NewValidationError("y", "at least one study required")
	}
	if req.V == nil {
		return nil, core.NewInsufficientDataError("v")
	}
	if len(req.V) != k {
		return nil, core.NewShapeError("v", k, len(req.V))
	}
	for i, v := range req.V {
		if v <= 0 {
			return nil, core.NewValidationError("v", fmt.Sprintf("variance at [%d] is %v, must be positive", i, v))
		}
	}
	if len(req.X) != k {
		return nil, core.NewShapeError("x", k, len(req.X))
	}
	p := len(req.X[0])
	if p == 0 {
		return nil, core.NewValidationError("x", "design needs at least one predictor")
	}
	for i, row := range req.X {
		if len(row) != p {
			return nil, core.NewValidationError("x", fmt.Sprintf("row %d has %d columns, expected %d", i, len(row), p))
		}
	}
	if len(req.Names) != p {
		return nil, core.NewValidationError("names", fmt.Sprintf("%d names for %d predictors", len(req.Names), p))
	}
	if len(req.Groups) != 0 && len(req.Groups) != k {
		return nil, core.NewShapeError("groups", k, len(req.Groups))
	}

	draws := req.Draws
	if draws <= 0 {
		draws = DEFAULT_DRAWS
	}
	burn := req.Burn
	if burn <= 0 {
		burn = DEFAULT_BURN
	}
	chains := req.Chains
	if chains <= 0 {
		chains = DEFAULT_CHAINS
	}
	if chains > MAX_CHAINS {
		chains = MAX_CHAINS
	}

	beta0, scale0, err := wlsInit(req.Y, req.V, req.X)
	if err != nil {
		return nil, err
	}
	tau20, tauScale := tau2Init(req.Y, req.V, req.X, beta0)
	groups := buildGroups(req.Groups, req.V)

	seed := req.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	names := make([]string, 0, p+1)
	names = append(names, req.Names...)
	names = append(names, "tau2")

	samples := make([][]float64, p+1)
	for j := range samples {
		samples[j] = make([]float64, 0, chains*draws)
	}

	for chain := 0; chain < chains; chain++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		state := make([]float64, p+1)
		copy(state, beta0)
		state[p] = tau20

		steps := make([]float64, p+1)
		copy(steps, scale0)
		steps[p] = tauScale

		if err := s.runChain(ctx, req, groups, chainSeed(seed, chain), state, steps, burn, draws, samples); err != nil {
			return nil, err
		}
	}

	return &posteriorSummary{names: names, samples: samples}, nil
}

// runChain walks one chain and appends its kept draws to samples.
func (s *MetropolisSampler) runChain(ctx context.Context, req ports.SampleRequest, groups []groupTerm, seed uint64, state, steps []float64, burn, draws int, samples [][]float64) error {
	rng := rand.New(rand.NewSource(seed))
	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: rng}
	uniform := distuv.Uniform{Min: 0, Max: 1, Src: rng}

	d := len(state)
	tau2Idx := d - 1
	logp := logPosterior(req.Y, req.V, req.X, groups, state)
	accepts := make([]int, d)

	total := burn + draws
	for iter := 0; iter < total; iter++ {
		if iter%256 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		for j := 0; j < d; j++ {
			old := state[j]
			prop := old + steps[j]*normal.Rand()
			if j == tau2Idx && prop < 0 {
				// Reflection keeps the proposal symmetric at the boundary
				prop = -prop
			}
			state[j] = prop
			logpProp := logPosterior(req.Y, req.V, req.X, groups, state)
			if math.Log(uniform.Rand()) < logpProp-logp {
				logp = logpProp
				accepts[j]++
			} else {
				state[j] = old
			}
		}

		if iter < burn && (iter+1)%TUNE_INTERVAL == 0 {
			for j := 0; j < d; j++ {
				rate := float64(accepts[j]) / float64(TUNE_INTERVAL)
				if rate < TARGET_ACCEPT_LOW {
					steps[j] *= TUNE_SHRINK
				} else if rate > TARGET_ACCEPT_HIGH {
					steps[j] *= TUNE_GROW
				}
				accepts[j] = 0
			}
		}

		if iter >= burn {
			for j := 0; j < d; j++ {
				samples[j] = append(samples[j], state[j])
			}
		}
	}

	return nil
}

// groupTerm carries the tau2-independent pieces of one group's marginal
// likelihood block.
type groupTerm struct {
	idx     []int
	invSum  float64 // sum of 1/v over members
	logDetD float64 // sum of log v over members
}

// buildGroups buckets studies by group id in order of first appearance.
// An empty id slice puts every study in its own group.
func buildGroups(ids []int, v []float64) []groupTerm {
	at := make(map[int]int, len(v))
	terms := make([]groupTerm, 0, len(v))
	for i := range v {
		id := i
		if len(ids) > 0 {
			id = ids[i]
		}
		g, ok := at[id]
		if !ok {
			g = len(terms)
			at[id] = g
			terms = append(terms, groupTerm{})
		}
		terms[g].idx = append(terms[g].idx, i)
		terms[g].invSum += 1 / v[i]
		terms[g].logDetD += math.Log(v[i])
	}
	return terms
}

// logPosterior evaluates the unnormalized log posterior; tau2 below zero is
// impossible mass. Groups with a shared random effect carry the covariance
// diag(v) + tau2*11'; Sherman-Morrison gives the quadratic form and the
// determinant lemma the log determinant, so no matrix is ever inverted.
func logPosterior(y, v []float64, x [][]float64, groups []groupTerm, state []float64) float64 {
	p := len(state) - 1
	tau2 := state[p]
	if tau2 < 0 {
		return math.Inf(-1)
	}
	lp := 0.0
	for gi := range groups {
		g := &groups[gi]
		if len(g.idx) == 1 {
			i := g.idx[0]
			mu := 0.0
			for j := 0; j < p; j++ {
				mu += x[i][j] * state[j]
			}
			s2 := v[i] + tau2
			r := y[i] - mu
			lp -= 0.5 * (math.Log(2*math.Pi*s2) + r*r/s2)
			continue
		}

		q1, q2 := 0.0, 0.0
		for _, i := range g.idx {
			mu := 0.0
			for j := 0; j < p; j++ {
				mu += x[i][j] * state[j]
			}
			r := y[i] - mu
			q1 += r * r / v[i]
			q2 += r / v[i]
		}
		shrink := tau2 / (1 + tau2*g.invSum)
		quad := q1 - shrink*q2*q2
		logDet := g.logDetD + math.Log1p(tau2*g.invSum)
		lp -= 0.5 * (float64(len(g.idx))*math.Log(2*math.Pi) + logDet + quad)
	}
	return lp
}

// wlsInit solves the fixed-effect WLS problem at tau2=0 for the chain start
// and returns per-coefficient proposal scales from the covariance diagonal.
func wlsInit(y, v []float64, x [][]float64) ([]float64, []float64, error) {
	k := len(y)
	p := len(x[0])

	xtwx := mat.NewDense(p, p, nil)
	xtwy := make([]float64, p)
	for i := 0; i < k; i++ {
		w := 1 / v[i]
		for a := 0; a < p; a++ {
			xtwy[a] += w * x[i][a] * y[i]
			for b := 0; b < p; b++ {
				xtwx.Set(a, b, xtwx.At(a, b)+w*x[i][a]*x[i][b])
			}
		}
	}

	var cov mat.Dense
	if err := cov.Inverse(xtwx); err != nil {
		return nil, nil, fmt.Errorf("%w: weighted design is not invertible", core.ErrSingularMatrix)
	}

	beta := make([]float64, p)
	scales := make([]float64, p)
	for a := 0; a < p; a++ {
		for b := 0; b < p; b++ {
			beta[a] += cov.At(a, b) * xtwy[b]
		}
	}
	for a := 0; a < p; a++ {
		// 2.4 * SE is the classic random-walk scaling
		scales[a] = 2.4 * math.Sqrt(cov.At(a, a))
	}

	return beta, scales, nil
}

// tau2Init moment-estimates tau2 from the WLS residuals and picks a
// proposal scale of the same magnitude.
func tau2Init(y, v []float64, x [][]float64, beta []float64) (float64, float64) {
	k := len(y)
	p := len(beta)

	rss := 0.0
	meanV := 0.0
	for i := 0; i < k; i++ {
		mu := 0.0
		for j := 0; j < p; j++ {
			mu += x[i][j] * beta[j]
		}
		r := y[i] - mu
		rss += r * r
		meanV += v[i]
	}
	meanV /= float64(k)

	tau2 := 0.0
	if k > p {
		tau2 = rss/float64(k-p) - meanV
	}
	if tau2 < 0 {
		tau2 = 0
	}

	scale := tau2
	if scale < meanV {
		scale = meanV
	}
	return tau2, scale
}

// chainSeed derives a distinct stream per chain from the base seed.
func chainSeed(seed int64, chain int) uint64 {
	return uint64(seed) + uint64(chain)*0x9E3779B97F4A7C15
}
