// Package reranker implements the learnable reranking layer: two dense
// linear transforms scored by dot product, stochastic top-M selection via
// Gumbel perturbation, and a REINFORCE-style weight update driven by which
// selected memories the model actually cited.
package reranker

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrInvalidState is returned when a state fails validation.
var ErrInvalidState = errors.New("invalid reranker state")

// Config holds the reranker's tunables.
type Config struct {
	// TopK is the candidate count requested from retrieval each turn.
	TopK int `json:"top_k"`

	// TopM is the number of candidates sampled and shown to the model.
	// Clamped to the candidate count at selection time.
	TopM int `json:"top_m"`

	// Temperature controls exploration: near zero approaches deterministic
	// top-M by raw score, larger values increase randomness.
	Temperature float64 `json:"temperature"`

	// LearningRate scales the gradient step.
	LearningRate float64 `json:"learning_rate"`

	// Baseline is subtracted from the binary citation reward for variance
	// reduction. Must be in [0, 1].
	Baseline float64 `json:"baseline"`
}

// DefaultConfig returns the configuration used when a user has no persisted
// state yet.
func DefaultConfig() Config {
	return Config{
		TopK:         5,
		TopM:         3,
		Temperature:  1.0,
		LearningRate: 0.01,
		Baseline:     0.2,
	}
}

// Validate checks the config ranges. These are programming/configuration
// errors, so unlike collaborator failures they raise.
func (c Config) Validate() error {
	if c.TopK <= 0 {
		return fmt.Errorf("%w: top_k must be > 0, got %d", ErrInvalidState, c.TopK)
	}
	if c.TopM <= 0 {
		return fmt.Errorf("%w: top_m must be > 0, got %d", ErrInvalidState, c.TopM)
	}
	if !(c.Temperature > 0) {
		return fmt.Errorf("%w: temperature must be > 0, got %v", ErrInvalidState, c.Temperature)
	}
	if !(c.LearningRate > 0) {
		return fmt.Errorf("%w: learning_rate must be > 0, got %v", ErrInvalidState, c.LearningRate)
	}
	if c.Baseline < 0 || c.Baseline > 1 {
		return fmt.Errorf("%w: baseline must be in [0,1], got %v", ErrInvalidState, c.Baseline)
	}
	return nil
}

// Weights holds the two learned linear transforms. Both matrices are square
// of the embedding dimension.
type Weights struct {
	QueryTransform  *mat.Dense
	MemoryTransform *mat.Dense
}

// State is one user's reranker: weights plus config. Loaded at the start of
// every turn, mutated by the citation update, persisted after every
// mutation.
type State struct {
	Weights Weights
	Config  Config
}

// NewState returns a default-initialized state: both transforms start as the
// identity, so an untrained reranker scores by plain dot product of the raw
// embeddings.
func NewState(dim int, cfg Config) *State {
	return &State{
		Weights: Weights{
			QueryTransform:  identity(dim),
			MemoryTransform: identity(dim),
		},
		Config: cfg,
	}
}

// Validate checks that both transforms are exactly dim x dim with only
// finite values and that the config is in range. Mismatched dimensions are
// invalid state, never silently reshaped.
func (s *State) Validate(dim int) error {
	if s == nil {
		return fmt.Errorf("%w: nil state", ErrInvalidState)
	}
	if err := s.Config.Validate(); err != nil {
		return err
	}
	for name, m := range map[string]*mat.Dense{
		"query_transform":  s.Weights.QueryTransform,
		"memory_transform": s.Weights.MemoryTransform,
	} {
		if m == nil {
			return fmt.Errorf("%w: %s missing", ErrInvalidState, name)
		}
		r, c := m.Dims()
		if r != dim || c != dim {
			return fmt.Errorf("%w: %s is %dx%d, want %dx%d", ErrInvalidState, name, r, c, dim, dim)
		}
		raw := m.RawMatrix().Data
		for _, v := range raw {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: %s contains non-finite value", ErrInvalidState, name)
			}
		}
	}
	return nil
}

// Clone deep-copies the state so an update never aliases the loaded weights.
func (s *State) Clone() *State {
	return &State{
		Weights: Weights{
			QueryTransform:  mat.DenseCopyOf(s.Weights.QueryTransform),
			MemoryTransform: mat.DenseCopyOf(s.Weights.MemoryTransform),
		},
		Config: s.Config,
	}
}

// Dim returns the embedding dimension the state was built for.
func (s *State) Dim() int {
	r, _ := s.Weights.QueryTransform.Dims()
	return r
}

// MatrixRows converts a dense matrix to row-major nested slices, the shape
// used by the persisted payload.
func MatrixRows(m *mat.Dense) [][]float64 {
	r, c := m.Dims()
	rows := make([][]float64, r)
	for i := range rows {
		row := make([]float64, c)
		for j := range row {
			row[j] = m.At(i, j)
		}
		rows[i] = row
	}
	return rows
}

// MatrixFromRows builds a dense matrix from row-major nested slices.
// Returns an error for ragged or empty input.
func MatrixFromRows(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: empty matrix", ErrInvalidState)
	}
	cols := len(rows[0])
	if cols == 0 {
		return nil, fmt.Errorf("%w: empty matrix row", ErrInvalidState)
	}
	data := make([]float64, 0, len(rows)*cols)
	for i, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("%w: ragged matrix at row %d", ErrInvalidState, i)
		}
		data = append(data, row...)
	}
	return mat.NewDense(len(rows), cols, data), nil
}

func identity(dim int) *mat.Dense {
	m := mat.NewDense(dim, dim, nil)
	for i := 0; i < dim; i++ {
		m.Set(i, i, 1)
	}
	return m
}
