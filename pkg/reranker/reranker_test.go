package reranker_test

import (
	"context"
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	embedmock "github.com/papercomputeco/remem/pkg/embeddings/mock"
	"github.com/papercomputeco/remem/pkg/memory"
	"github.com/papercomputeco/remem/pkg/reranker"
)

var _ = Describe("Reranker Select", func() {
	var (
		embedder *embedmock.Embedder
		rr       *reranker.Reranker
		ctx      context.Context
	)

	candidates := func(summaries ...string) []memory.Retrieved {
		out := make([]memory.Retrieved, len(summaries))
		for i, s := range summaries {
			out[i] = memory.Retrieved{
				Entry:          memory.Entry{ID: s, TopicSummary: s, SessionID: "sess"},
				RelevanceScore: 0.5,
			}
		}
		return out
	}

	BeforeEach(func() {
		ctx = context.Background()
		embedder = embedmock.NewEmbedder(2)
		rr = reranker.NewReranker(embedder, zap.NewNop(), reranker.WithRand(rand.New(rand.NewSource(1))))
	})

	It("returns an empty selection for no candidates", func() {
		state := reranker.NewState(2, reranker.DefaultConfig())
		sel, err := rr.Select(ctx, "anything", nil, state)
		Expect(err).NotTo(HaveOccurred())
		Expect(sel.Selected).To(BeEmpty())
		Expect(sel.Trace).To(BeEmpty())
	})

	It("picks the highest-scoring candidate at near-zero temperature", func() {
		embedder.Embeddings["query"] = []float64{1, 0}
		embedder.Embeddings["aligned"] = []float64{1, 0}
		embedder.Embeddings["orthogonal"] = []float64{0, 1}

		cfg := reranker.DefaultConfig()
		cfg.TopM = 1
		cfg.Temperature = 1e-9
		state := reranker.NewState(2, cfg)

		sel, err := rr.Select(ctx, "query", candidates("orthogonal", "aligned"), state)
		Expect(err).NotTo(HaveOccurred())
		Expect(sel.Selected).To(HaveLen(1))
		Expect(sel.Selected[0].TopicSummary).To(Equal("aligned"))
	})

	It("clamps top-M to the candidate count", func() {
		cfg := reranker.DefaultConfig()
		cfg.TopM = 10
		state := reranker.NewState(2, cfg)

		sel, err := rr.Select(ctx, "query", candidates("a", "b"), state)
		Expect(err).NotTo(HaveOccurred())
		Expect(sel.Selected).To(HaveLen(2))
	})

	It("aligns the trace with the selection", func() {
		cfg := reranker.DefaultConfig()
		cfg.TopM = 2
		state := reranker.NewState(2, cfg)

		cands := candidates("a", "b", "c")
		sel, err := rr.Select(ctx, "query", cands, state)
		Expect(err).NotTo(HaveOccurred())
		Expect(sel.Trace).To(HaveLen(len(sel.Selected)))
		for rank, pick := range sel.Trace {
			Expect(pick.Rank).To(Equal(rank))
			Expect(sel.Selected[rank].TopicSummary).To(Equal(cands[pick.Index].TopicSummary))
			Expect(pick.QueryVec).To(HaveLen(2))
			Expect(pick.TransformedMemory).To(HaveLen(2))
		}
	})

	It("ranks selections by perturbed score, highest first", func() {
		state := reranker.NewState(2, reranker.DefaultConfig())
		sel, err := rr.Select(ctx, "query", candidates("a", "b", "c"), state)
		Expect(err).NotTo(HaveOccurred())
		for i := 1; i < len(sel.Trace); i++ {
			Expect(sel.Trace[i-1].Perturbed).To(BeNumerically(">=", sel.Trace[i].Perturbed))
		}
	})

	It("propagates embedding failures", func() {
		embedder.FailOn = "query"
		state := reranker.NewState(2, reranker.DefaultConfig())

		_, err := rr.Select(ctx, "query", candidates("a"), state)
		Expect(err).To(HaveOccurred())
	})

	It("rejects embeddings with the wrong dimension", func() {
		embedder.Embeddings["query"] = []float64{1, 0, 0}
		state := reranker.NewState(2, reranker.DefaultConfig())

		_, err := rr.Select(ctx, "query", candidates("a"), state)
		Expect(err).To(MatchError(memory.ErrInvalidVector))
	})

	It("is reproducible for a fixed seed", func() {
		state := reranker.NewState(2, reranker.DefaultConfig())
		cands := candidates("a", "b", "c", "d", "e")

		first, err := rr.Select(ctx, "query", cands, state)
		Expect(err).NotTo(HaveOccurred())

		rr2 := reranker.NewReranker(embedder, zap.NewNop(), reranker.WithRand(rand.New(rand.NewSource(1))))
		second, err := rr2.Select(ctx, "query", cands, state)
		Expect(err).NotTo(HaveOccurred())

		Expect(second.Selected).To(Equal(first.Selected))
	})
})
