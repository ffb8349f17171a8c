package session_test

import (
	"context"
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/remem/pkg/bank"
	"github.com/papercomputeco/remem/pkg/bufferstore"
	"github.com/papercomputeco/remem/pkg/consolidation"
	"github.com/papercomputeco/remem/pkg/embeddings/mock"
	"github.com/papercomputeco/remem/pkg/eventstream"
	kvinmemory "github.com/papercomputeco/remem/pkg/kv/inmemory"
	"github.com/papercomputeco/remem/pkg/memory"
	"github.com/papercomputeco/remem/pkg/reflection"
	"github.com/papercomputeco/remem/pkg/reranker"
	"github.com/papercomputeco/remem/pkg/retrieval"
	"github.com/papercomputeco/remem/pkg/session"
	testutils "github.com/papercomputeco/remem/pkg/utils/test"
	"github.com/papercomputeco/remem/pkg/weights"
)

var _ = Describe("Service", func() {
	const query = "what tea do I like?"

	var (
		ctx         context.Context
		mockBank    *testutils.MockBank
		events      *testutils.MockPublisher
		weightStore *weights.Store
		buffers     *bufferstore.Store
		svc         *session.Service
	)

	cfg := reranker.Config{
		TopK:         5,
		TopM:         2,
		Temperature:  1e-9,
		LearningRate: 0.1,
		Baseline:     0.2,
	}

	newService := func(llmResponses ...string) *session.Service {
		embedder := mock.NewEmbedder(2)
		embedder.Embeddings[query] = []float64{1, 0}
		embedder.Embeddings["likes green tea"] = []float64{1, 0}
		embedder.Embeddings["owns a dog"] = []float64{0, 1}

		rr := reranker.NewReranker(embedder, zap.NewNop(),
			reranker.WithRand(rand.New(rand.NewSource(1))))
		retriever := retrieval.NewRetriever(mockBank, zap.NewNop())

		call, _ := testutils.ScriptedLLM(llmResponses...)
		consolidator := consolidation.NewConsolidator(mockBank, retriever, call, events, zap.NewNop())
		worker := reflection.NewWorker(
			reflection.NewExtractor(call, zap.NewNop()),
			consolidator,
			buffers,
			zap.NewNop(),
		)

		return session.NewService(retriever, rr, weightStore, buffers, worker, events, cfg, 2, zap.NewNop())
	}

	BeforeEach(func() {
		ctx = context.Background()
		store := kvinmemory.NewStore()
		weightStore = weights.NewStore(store, "remem", 2, zap.NewNop())
		buffers = bufferstore.NewStore(store, "remem", zap.NewNop())
		events = testutils.NewMockPublisher()
		mockBank = testutils.NewMockBank()
		mockBank.SearchResults = []bank.Match{
			{Content: "likes green tea", Score: 0.9, Metadata: bank.Metadata{ID: "m-1", RawDialogue: "user: I like green tea"}},
			{Content: "owns a dog", Score: 0.4, Metadata: bank.Metadata{ID: "m-2"}},
		}
		svc = newService()
	})

	Describe("BeforeModelCall", func() {
		It("surfaces a numbered memory block ordered by reranker score", func() {
			block, selected := svc.BeforeModelCall(ctx, "alice", query)

			Expect(selected).To(HaveLen(2))
			// The query aligns with "likes green tea" under identity
			// weights, so it outranks "owns a dog" at low temperature.
			Expect(selected[0].TopicSummary).To(Equal("likes green tea"))
			Expect(selected[1].TopicSummary).To(Equal("owns a dog"))

			Expect(block).To(ContainSubstring("Cite a memory as [N]"))
			Expect(block).To(ContainSubstring("[0] likes green tea"))
			Expect(block).To(ContainSubstring("user: I like green tea"))
			Expect(block).To(ContainSubstring("[1] owns a dog"))
		})

		It("returns an empty block when nothing is retrieved", func() {
			mockBank.SearchResults = nil

			block, selected := svc.BeforeModelCall(ctx, "alice", query)
			Expect(block).To(BeEmpty())
			Expect(selected).To(BeNil())
		})

		It("degrades to no memories when the bank is down", func() {
			mockBank.FailSearch = true

			block, selected := svc.BeforeModelCall(ctx, "alice", query)
			Expect(block).To(BeEmpty())
			Expect(selected).To(BeNil())
		})
	})

	Describe("AfterModelCall", func() {
		It("learns from citations and persists the result", func() {
			svc.BeforeModelCall(ctx, "alice", query)
			svc.AfterModelCall(ctx, "alice", "You like green tea [0].")

			state := weightStore.Load(ctx, "alice")
			Expect(state).NotTo(BeNil())
			// Cited pick: advantage 0.8 moved the aligned weight up.
			Expect(state.Weights.QueryTransform.At(0, 0)).To(BeNumerically("~", 1.08, 1e-9))
			// Uncited pick: advantage -0.2 pushed its direction down.
			Expect(state.Weights.QueryTransform.At(1, 0)).To(BeNumerically("~", -0.02, 1e-9))

			Expect(events.EventTypes()).To(ContainElement(eventstream.EventTypeWeightsUpdated))
			last := events.Events[len(events.Events)-1]
			Expect(last.Weights).NotTo(BeNil())
			Expect(last.Weights.ShownCount).To(Equal(2))
			Expect(last.Weights.CitedCount).To(Equal(1))
			Expect(last.Weights.Dimensions).To(Equal(2))
		})

		It("is a no-op without a pending selection", func() {
			svc.AfterModelCall(ctx, "alice", "Some answer [0].")

			Expect(weightStore.Load(ctx, "alice")).To(BeNil())
			Expect(events.Events).To(BeEmpty())
		})

		It("skips the event when persisting fails", func() {
			failing := &testutils.FailingStore{Inner: kvinmemory.NewStore(), FailPut: true}
			weightStore = weights.NewStore(failing, "remem", 2, zap.NewNop())
			svc = newService()

			svc.BeforeModelCall(ctx, "alice", query)
			svc.AfterModelCall(ctx, "alice", "You like green tea [0].")

			Expect(events.EventTypes()).NotTo(ContainElement(eventstream.EventTypeWeightsUpdated))
		})

		It("keeps users' weights apart", func() {
			svc.BeforeModelCall(ctx, "alice", query)
			svc.AfterModelCall(ctx, "alice", "You like green tea [0].")

			Expect(weightStore.Load(ctx, "alice")).NotTo(BeNil())
			Expect(weightStore.Load(ctx, "bob")).To(BeNil())
		})
	})

	Describe("StartTurn", func() {
		It("discards a stale selection so old feedback cannot apply", func() {
			svc.BeforeModelCall(ctx, "alice", query)
			svc.StartTurn(ctx, "alice")
			svc.AfterModelCall(ctx, "alice", "You like green tea [0].")

			Expect(weightStore.Load(ctx, "alice")).To(BeNil())
			Expect(events.Events).To(BeEmpty())
		})
	})

	Describe("EndTurn", func() {
		It("appends the exchange to the persisted buffer", func() {
			svc.EndTurn(ctx, "alice", "I like green tea", "Noted!")
			svc.EndTurn(ctx, "alice", "And biscuits", "Understood.")

			buf := buffers.Load(ctx, "alice")
			Expect(buf.Messages).To(HaveLen(4))
			Expect(buf.HumanMessageCount).To(Equal(2))
			Expect(buf.Messages[0].Role).To(Equal(memory.RoleHuman))
			Expect(buf.Messages[0].Content).To(Equal("I like green tea"))
			Expect(buf.Messages[1].Role).To(Equal(memory.RoleAssistant))
		})
	})

	Describe("EndSession", func() {
		It("reflects the buffer into the bank and clears it", func() {
			mockBank.SearchResults = nil
			svc = newService(
				`{"memories": [{"topic_summary": "likes green tea", "raw_dialogue": "I like green tea", "turn_refs": [0]}]}`,
			)

			svc.EndTurn(ctx, "alice", "I like green tea", "Noted!")
			svc.EndSession(ctx, "alice", "sess-1")

			Expect(mockBank.Inserted).To(HaveLen(1))
			Expect(mockBank.Inserted[0].TopicSummary).To(Equal("likes green tea"))
			Expect(mockBank.Inserted[0].SessionID).To(Equal("sess-1"))
			Expect(buffers.Load(ctx, "alice").Empty()).To(BeTrue())
		})
	})
})
