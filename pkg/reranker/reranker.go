package reranker

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/papercomputeco/remem/pkg/embeddings"
	"github.com/papercomputeco/remem/pkg/memory"
)

// TracedPick records everything the gradient step later needs about one
// sampled candidate.
type TracedPick struct {
	// Index is the candidate's position in the input candidate list.
	Index int

	// Rank is the candidate's position in the selection (0 = first shown).
	Rank int

	// Score is the transformed dot-product score before perturbation.
	Score float64

	// Gumbel is the noise draw added during sampling.
	Gumbel float64

	// Perturbed is score/temperature + gumbel, the value ranked on.
	Perturbed float64

	// QueryVec and MemoryVec are the raw embeddings; TransformedQuery and
	// TransformedMemory are the post-transform vectors. All four feed the
	// REINFORCE outer products.
	QueryVec          []float64
	MemoryVec         []float64
	TransformedQuery  []float64
	TransformedMemory []float64
}

// Selection is the outcome of one sampling pass.
type Selection struct {
	// Selected holds the chosen candidates, highest perturbed score first.
	Selected []memory.Retrieved

	// Trace carries the sampling record for the citation update, aligned
	// with Selected.
	Trace []TracedPick
}

// Reranker scores and samples retrieval candidates using a user's learned
// state.
type Reranker struct {
	embedder embeddings.Embedder
	logger   *zap.Logger
	rng      *rand.Rand
}

// Option configures a Reranker.
type Option func(*Reranker)

// WithRand injects the random source used for Gumbel draws. Tests pass a
// seeded source for reproducible sampling.
func WithRand(rng *rand.Rand) Option {
	return func(r *Reranker) {
		r.rng = rng
	}
}

// NewReranker creates a reranker over the given embedder.
func NewReranker(embedder embeddings.Embedder, logger *zap.Logger, opts ...Option) *Reranker {
	r := &Reranker{
		embedder: embedder,
		logger:   logger,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Select embeds the query and candidates, scores each candidate through the
// state's transforms, and samples top-M via Gumbel perturbation.
//
// With no candidates it returns an empty selection without touching the
// embedder. M is clamped to the candidate count. Embedding failures are
// returned to the caller, who degrades to "no memories this turn".
func (r *Reranker) Select(ctx context.Context, query string, candidates []memory.Retrieved, state *State) (*Selection, error) {
	if len(candidates) == 0 {
		return &Selection{}, nil
	}

	dim := state.Dim()

	queryVec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if err := memory.ValidateVector(queryVec, dim); err != nil {
		return nil, err
	}

	summaries := make([]string, len(candidates))
	for i, c := range candidates {
		summaries[i] = c.TopicSummary
	}
	memVecs, err := r.embedder.EmbedBatch(ctx, summaries)
	if err != nil {
		return nil, fmt.Errorf("embedding candidates: %w", err)
	}
	for i, v := range memVecs {
		if err := memory.ValidateVector(v, dim); err != nil {
			return nil, fmt.Errorf("candidate %d: %w", i, err)
		}
	}

	// q' = Wq q, shared across candidates.
	q := mat.NewVecDense(dim, queryVec)
	var qPrime mat.VecDense
	qPrime.MulVec(state.Weights.QueryTransform, q)

	picks := make([]TracedPick, len(candidates))
	for i, v := range memVecs {
		m := mat.NewVecDense(dim, v)
		var mPrime mat.VecDense
		mPrime.MulVec(state.Weights.MemoryTransform, m)

		score := mat.Dot(&qPrime, &mPrime)
		gumbel := r.gumbel()

		picks[i] = TracedPick{
			Index:             i,
			Score:             score,
			Gumbel:            gumbel,
			Perturbed:         score/state.Config.Temperature + gumbel,
			QueryVec:          queryVec,
			MemoryVec:         v,
			TransformedQuery:  vecSlice(&qPrime),
			TransformedMemory: vecSlice(&mPrime),
		}
	}

	order := make([]int, len(picks))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return picks[order[a]].Perturbed > picks[order[b]].Perturbed
	})

	topM := state.Config.TopM
	if topM > len(candidates) {
		topM = len(candidates)
	}

	selection := &Selection{
		Selected: make([]memory.Retrieved, 0, topM),
		Trace:    make([]TracedPick, 0, topM),
	}
	for rank := 0; rank < topM; rank++ {
		idx := order[rank]
		pick := picks[idx]
		pick.Rank = rank
		selection.Selected = append(selection.Selected, candidates[pick.Index])
		selection.Trace = append(selection.Trace, pick)
	}

	r.logger.Debug("sampled reranker selection",
		zap.Int("candidates", len(candidates)),
		zap.Int("selected", topM),
		zap.Float64("temperature", state.Config.Temperature),
	)

	return selection, nil
}

// gumbel draws standard Gumbel noise: -log(-log(U)), U ~ Uniform(0,1).
func (r *Reranker) gumbel() float64 {
	u := r.rng.Float64()
	// Float64 can return exactly 0; nudge to stay in the open interval.
	if u == 0 {
		u = math.SmallestNonzeroFloat64
	}
	return -math.Log(-math.Log(u))
}

func vecSlice(v *mat.VecDense) []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}
