package reranker

import (
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// Update applies the citation-driven REINFORCE step and returns a new state;
// the input state is not mutated.
//
// For each sampled candidate with observed reward r, the advantage is
// r - baseline and both transforms move along the score gradient:
//
//	Wq += lr * A * (Wm m) qᵀ
//	Wm += lr * A * (Wq q) mᵀ
//
// using the vectors recorded in the sample trace. Only candidates actually
// shown that turn participate. With no parseable citations the step still
// runs with all-zero rewards: a nonzero baseline then nudges weights away
// from sampled-but-uncited memories, which is deliberate variance reduction
// rather than a no-op.
func Update(trace []TracedPick, answer string, state *State, logger *zap.Logger) *State {
	next := state.Clone()
	if len(trace) == 0 {
		return next
	}

	citations := ParseCitations(answer, len(trace))
	rewardByRank := rewards(citations, len(trace))

	lr := next.Config.LearningRate
	baseline := next.Config.Baseline

	var grad mat.Dense
	for rank, pick := range trace {
		advantage := rewardByRank[rank] - baseline
		if advantage == 0 {
			continue
		}

		q := mat.NewVecDense(len(pick.QueryVec), pick.QueryVec)
		m := mat.NewVecDense(len(pick.MemoryVec), pick.MemoryVec)
		qPrime := mat.NewVecDense(len(pick.TransformedQuery), pick.TransformedQuery)
		mPrime := mat.NewVecDense(len(pick.TransformedMemory), pick.TransformedMemory)

		grad.Reset()
		grad.Outer(lr*advantage, mPrime, q)
		next.Weights.QueryTransform.Add(next.Weights.QueryTransform, &grad)

		grad.Reset()
		grad.Outer(lr*advantage, qPrime, m)
		next.Weights.MemoryTransform.Add(next.Weights.MemoryTransform, &grad)
	}

	logger.Debug("applied citation update",
		zap.Int("shown", len(trace)),
		zap.Int("cited", len(citations)),
	)

	return next
}
