package reranker_test

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gonum.org/v1/gonum/mat"

	"github.com/papercomputeco/remem/pkg/reranker"
)

var _ = Describe("Config", func() {
	It("validates the defaults", func() {
		Expect(reranker.DefaultConfig().Validate()).To(Succeed())
	})

	It("rejects out-of-range values", func() {
		cases := []reranker.Config{
			{TopK: 0, TopM: 3, Temperature: 1, LearningRate: 0.01, Baseline: 0.2},
			{TopK: 5, TopM: 0, Temperature: 1, LearningRate: 0.01, Baseline: 0.2},
			{TopK: 5, TopM: 3, Temperature: 0, LearningRate: 0.01, Baseline: 0.2},
			{TopK: 5, TopM: 3, Temperature: 1, LearningRate: 0, Baseline: 0.2},
			{TopK: 5, TopM: 3, Temperature: 1, LearningRate: 0.01, Baseline: 1.5},
			{TopK: 5, TopM: 3, Temperature: 1, LearningRate: 0.01, Baseline: -0.1},
		}
		for _, cfg := range cases {
			Expect(cfg.Validate()).To(MatchError(reranker.ErrInvalidState), "%+v", cfg)
		}
	})
})

var _ = Describe("State", func() {
	Describe("NewState", func() {
		It("initializes both transforms to the identity", func() {
			state := reranker.NewState(3, reranker.DefaultConfig())
			for i := 0; i < 3; i++ {
				for j := 0; j < 3; j++ {
					want := 0.0
					if i == j {
						want = 1.0
					}
					Expect(state.Weights.QueryTransform.At(i, j)).To(Equal(want))
					Expect(state.Weights.MemoryTransform.At(i, j)).To(Equal(want))
				}
			}
		})
	})

	Describe("Validate", func() {
		It("accepts a fresh state", func() {
			Expect(reranker.NewState(4, reranker.DefaultConfig()).Validate(4)).To(Succeed())
		})

		It("rejects dimension mismatches", func() {
			state := reranker.NewState(4, reranker.DefaultConfig())
			Expect(state.Validate(8)).To(MatchError(reranker.ErrInvalidState))
		})

		It("rejects non-finite weights", func() {
			state := reranker.NewState(2, reranker.DefaultConfig())
			state.Weights.MemoryTransform.Set(0, 1, math.NaN())
			Expect(state.Validate(2)).To(MatchError(reranker.ErrInvalidState))
		})

		It("rejects a nil state", func() {
			var state *reranker.State
			Expect(state.Validate(2)).To(MatchError(reranker.ErrInvalidState))
		})
	})

	Describe("Clone", func() {
		It("does not alias the original weights", func() {
			state := reranker.NewState(2, reranker.DefaultConfig())
			clone := state.Clone()
			clone.Weights.QueryTransform.Set(0, 0, 42)
			Expect(state.Weights.QueryTransform.At(0, 0)).To(Equal(1.0))
		})
	})

	Describe("Dim", func() {
		It("reports the construction dimension", func() {
			Expect(reranker.NewState(7, reranker.DefaultConfig()).Dim()).To(Equal(7))
		})
	})
})

var _ = Describe("Matrix round-trip", func() {
	It("converts between dense matrices and nested rows", func() {
		m := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
		rows := reranker.MatrixRows(m)
		Expect(rows).To(Equal([][]float64{{1, 2}, {3, 4}}))

		back, err := reranker.MatrixFromRows(rows)
		Expect(err).NotTo(HaveOccurred())
		Expect(mat.Equal(m, back)).To(BeTrue())
	})

	It("rejects empty input", func() {
		_, err := reranker.MatrixFromRows(nil)
		Expect(err).To(MatchError(reranker.ErrInvalidState))

		_, err = reranker.MatrixFromRows([][]float64{{}})
		Expect(err).To(MatchError(reranker.ErrInvalidState))
	})

	It("rejects ragged rows", func() {
		_, err := reranker.MatrixFromRows([][]float64{{1, 2}, {3}})
		Expect(err).To(MatchError(reranker.ErrInvalidState))
	})
})
