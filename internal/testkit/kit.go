package testkit

import (
	"context"
	"math/rand"
	"sort"
	"sync"

	"gometa/domain/core"
	"gometa/domain/meta"
	"gometa/ports"
)

// TestKit provides testing utilities and fixtures
type TestKit struct {
	datasets *InMemoryDatasetRepository
	analyses *InMemoryAnalysisRepository
}

// NewTestKit creates a new test kit instance with empty in-memory storage
func NewTestKit() (*TestKit, error) {
	return &TestKit{
		datasets: NewInMemoryDatasetRepository(),
		analyses: NewInMemoryAnalysisRepository(),
	}, nil
}

// RNGAdapter returns a deterministic RNG adapter
func (t *TestKit) RNGAdapter() ports.RNGPort {
	return &RNGAdapter{}
}

// DatasetRepository returns the shared in-memory dataset repository
func (t *TestKit) DatasetRepository() ports.DatasetRepository {
	return t.datasets
}

// AnalysisRepository returns the shared in-memory analysis repository
func (t *TestKit) AnalysisRepository() ports.AnalysisRepository {
	return t.analyses
}

// FixtureDataset returns the 8-study regression fixture with one moderator,
// carrying both sampling variances and sample sizes so every estimator can
// run against it.
func FixtureDataset() *meta.Dataset {
	ds, err := meta.FromColumns(
		[]float64{-1, 0.5, 0.5, 0.5, 1, 1, 2, 10},
		[]float64{1, 1, 2.4, 0.5, 1, 1, 1.2, 1.5},
		[]float64{10, 12, 20, 8, 30, 25, 16, 14},
		[][]float64{{1}, {1}, {2}, {2}, {4}, {4}, {2.8}, {2.8}},
		[]string{"dose"},
		true,
	)
	if err != nil {
		panic("testkit: fixture dataset must construct: " + err.Error())
	}
	return ds
}

// TinyDataset returns a 4-study intercept-only dataset with unit variances,
// small enough that exact permutation enumeration kicks in.
func TinyDataset() *meta.Dataset {
	ds, err := meta.FromColumns(
		[]float64{1, 2, 3, 4},
		[]float64{1, 1, 1, 1},
		nil,
		nil,
		nil,
		true,
	)
	if err != nil {
		panic("testkit: tiny dataset must construct: " + err.Error())
	}
	return ds
}

// ParallelDataset returns the fixture outcomes replicated across nCols
// parallel datasets, each shifted by a deterministic offset.
func ParallelDataset(nCols int) *meta.Dataset {
	base := FixtureDataset()
	k := base.NStudies()
	y := make([][]float64, k)
	v := make([][]float64, k)
	n := make([][]float64, k)
	for i := 0; i < k; i++ {
		y[i] = make([]float64, nCols)
		v[i] = make([]float64, nCols)
		n[i] = make([]float64, nCols)
		for c := 0; c < nCols; c++ {
			y[i][c] = base.Y[i][0] + 0.25*float64(c)
			v[i][c] = base.V[i][0]
			n[i][c] = base.N[i][0]
		}
	}
	mods := make([][]float64, k)
	for i := range mods {
		mods[i] = []float64{base.X[i][1]}
	}
	ds, err := meta.NewDataset(y, v, n, mods, []string{"dose"}, true)
	if err != nil {
		panic("testkit: parallel dataset must construct: " + err.Error())
	}
	return ds
}

// RNGAdapter implements the RNGPort interface for testing and local runs
type RNGAdapter struct{}

// SeededStream creates a deterministic random number generator for a named operation
func (r *RNGAdapter) SeededStream(ctx context.Context, name string, seed int64) (*rand.Rand, error) {
	return rand.New(rand.NewSource(seed)), nil
}

// Stream derives a deterministic per-dataset generator so parallel workers
// reproduce identical draws for the same base seed
func (r *RNGAdapter) Stream(ctx context.Context, operation string, dataset int, baseSeed int64) (*rand.Rand, error) {
	seed := baseSeed
	if operation != "" {
		seed = int64(hashString(operation)) + seed
	}
	seed += int64(dataset+1) * 31
	return rand.New(rand.NewSource(seed)), nil
}

// hashString creates a simple hash for deterministic seeding
func hashString(s string) uint32 {
	var hash uint32 = 5381
	for _, c := range s {
		hash = ((hash << 5) + hash) + uint32(c) // djb2 algorithm
	}
	return hash
}

// InMemoryDatasetRepository implements DatasetRepository with in-memory storage
type InMemoryDatasetRepository struct {
	byID   map[core.DatasetID]*meta.StoredDataset
	byName map[string]core.DatasetID
	order  []core.DatasetID
	mu     sync.RWMutex
}

func NewInMemoryDatasetRepository() *InMemoryDatasetRepository {
	return &InMemoryDatasetRepository{
		byID:   make(map[core.DatasetID]*meta.StoredDataset),
		byName: make(map[string]core.DatasetID),
	}
}

func (r *InMemoryDatasetRepository) Create(ctx context.Context, ds *meta.StoredDataset) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[ds.Name]; exists {
		return core.NewValidationError("name", "dataset name already exists: "+ds.Name)
	}
	r.byID[ds.ID] = ds
	r.byName[ds.Name] = ds.ID
	r.order = append(r.order, ds.ID)
	return nil
}

func (r *InMemoryDatasetRepository) GetByID(ctx context.Context, id core.DatasetID) (*meta.StoredDataset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ds, exists := r.byID[id]
	if !exists {
		return nil, core.NewNotFoundError("dataset", id.String())
	}
	return ds, nil
}

func (r *InMemoryDatasetRepository) GetByName(ctx context.Context, name string) (*meta.StoredDataset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.byName[name]
	if !exists {
		return nil, core.NewNotFoundError("dataset", name)
	}
	return r.byID[id], nil
}

func (r *InMemoryDatasetRepository) List(ctx context.Context, limit, offset int) ([]*meta.StoredDataset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if offset >= len(r.order) {
		return []*meta.StoredDataset{}, nil
	}
	end := len(r.order)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]*meta.StoredDataset, 0, end-offset)
	for _, id := range r.order[offset:end] {
		out = append(out, r.byID[id])
	}
	return out, nil
}

func (r *InMemoryDatasetRepository) Delete(ctx context.Context, id core.DatasetID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ds, exists := r.byID[id]
	if !exists {
		return core.NewNotFoundError("dataset", id.String())
	}
	delete(r.byID, id)
	delete(r.byName, ds.Name)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// InMemoryAnalysisRepository implements AnalysisRepository with in-memory storage
type InMemoryAnalysisRepository struct {
	records map[core.AnalysisID]*meta.AnalysisRecord
	order   []core.AnalysisID
	mu      sync.RWMutex
}

func NewInMemoryAnalysisRepository() *InMemoryAnalysisRepository {
	return &InMemoryAnalysisRepository{
		records: make(map[core.AnalysisID]*meta.AnalysisRecord),
	}
}

func (r *InMemoryAnalysisRepository) Create(ctx context.Context, rec *meta.AnalysisRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[rec.ID] = rec
	r.order = append(r.order, rec.ID)
	return nil
}

func (r *InMemoryAnalysisRepository) GetByID(ctx context.Context, id core.AnalysisID) (*meta.AnalysisRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, exists := r.records[id]
	if !exists {
		return nil, core.NewNotFoundError("analysis", id.String())
	}
	return rec, nil
}

func (r *InMemoryAnalysisRepository) ListByDataset(ctx context.Context, datasetID core.DatasetID, limit, offset int) ([]*meta.AnalysisRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*meta.AnalysisRecord
	for _, id := range r.order {
		rec := r.records[id]
		if rec.DatasetID == datasetID {
			matched = append(matched, rec)
		}
	}
	if offset >= len(matched) {
		return []*meta.AnalysisRecord{}, nil
	}
	end := len(matched)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return matched[offset:end], nil
}

func (r *InMemoryAnalysisRepository) ListRecent(ctx context.Context, limit int) ([]*meta.AnalysisRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*meta.AnalysisRecord, len(r.order))
	for i, id := range r.order {
		out[i] = r.records[id]
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Time().After(out[j].CreatedAt.Time())
	})
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *InMemoryAnalysisRepository) Delete(ctx context.Context, id core.AnalysisID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[id]; !exists {
		return core.NewNotFoundError("analysis", id.String())
	}
	delete(r.records, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}
