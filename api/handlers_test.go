package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/remem/pkg/bank"
	"github.com/papercomputeco/remem/pkg/bufferstore"
	"github.com/papercomputeco/remem/pkg/consolidation"
	"github.com/papercomputeco/remem/pkg/embeddings/mock"
	kvinmemory "github.com/papercomputeco/remem/pkg/kv/inmemory"
	"github.com/papercomputeco/remem/pkg/reflection"
	"github.com/papercomputeco/remem/pkg/reranker"
	"github.com/papercomputeco/remem/pkg/retrieval"
	"github.com/papercomputeco/remem/pkg/session"
	testutils "github.com/papercomputeco/remem/pkg/utils/test"
	"github.com/papercomputeco/remem/pkg/weights"
)

var _ = Describe("handlers", func() {
	const query = "what tea do I like?"

	var (
		server      *Server
		mockBank    *testutils.MockBank
		weightStore *weights.Store
		buffers     *bufferstore.Store
		ctx         context.Context
	)

	newServer := func(llmResponses ...string) *Server {
		embedder := mock.NewEmbedder(2)
		embedder.Embeddings[query] = []float64{1, 0}
		embedder.Embeddings["likes green tea"] = []float64{1, 0}
		embedder.Embeddings["owns a dog"] = []float64{0, 1}

		cfg := reranker.Config{
			TopK:         5,
			TopM:         2,
			Temperature:  1e-9,
			LearningRate: 0.1,
			Baseline:     0.2,
		}

		rr := reranker.NewReranker(embedder, zap.NewNop(),
			reranker.WithRand(rand.New(rand.NewSource(1))))
		retriever := retrieval.NewRetriever(mockBank, zap.NewNop())
		events := testutils.NewMockPublisher()

		call, _ := testutils.ScriptedLLM(llmResponses...)
		consolidator := consolidation.NewConsolidator(mockBank, retriever, call, events, zap.NewNop())
		worker := reflection.NewWorker(
			reflection.NewExtractor(call, zap.NewNop()),
			consolidator,
			buffers,
			zap.NewNop(),
		)

		sessions := session.NewService(retriever, rr, weightStore, buffers, worker, events, cfg, 2, zap.NewNop())
		return NewServer(Config{ListenAddr: ":0"}, sessions, zap.NewNop())
	}

	jsonRequest := func(method, path string, body any) *http.Request {
		var buf bytes.Buffer
		if body != nil {
			Expect(json.NewEncoder(&buf).Encode(body)).To(Succeed())
		}
		req, err := http.NewRequest(method, path, &buf)
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set("Content-Type", "application/json")
		return req
	}

	BeforeEach(func() {
		ctx = context.Background()
		store := kvinmemory.NewStore()
		weightStore = weights.NewStore(store, "remem", 2, zap.NewNop())
		buffers = bufferstore.NewStore(store, "remem", zap.NewNop())
		mockBank = testutils.NewMockBank()
		mockBank.SearchResults = []bank.Match{
			{Content: "likes green tea", Score: 0.9, Metadata: bank.Metadata{ID: "m-1", RawDialogue: "user: I like green tea"}},
			{Content: "owns a dog", Score: 0.4, Metadata: bank.Metadata{ID: "m-2"}},
		}
		server = newServer()
	})

	Describe("GET /ping", func() {
		It("responds pong", func() {
			req, err := http.NewRequest(http.MethodGet, "/ping", nil)
			Expect(err).NotTo(HaveOccurred())

			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring("pong"))
		})
	})

	Describe("POST /users/:id/retrieve", func() {
		It("returns the memory block and indexed memories", func() {
			req := jsonRequest(http.MethodPost, "/users/alice/retrieve", RetrieveRequest{Query: query})

			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var out RetrieveResponse
			Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
			Expect(out.MemoryBlock).To(ContainSubstring("[0] likes green tea"))
			Expect(out.Memories).To(HaveLen(2))
			Expect(out.Memories[0].Index).To(Equal(0))
			Expect(out.Memories[0].TopicSummary).To(Equal("likes green tea"))
			Expect(out.Memories[0].RelevanceScore).To(Equal(0.9))
			Expect(out.Memories[1].Index).To(Equal(1))
		})

		It("returns an empty block when nothing is retrieved", func() {
			mockBank.SearchResults = nil
			req := jsonRequest(http.MethodPost, "/users/alice/retrieve", RetrieveRequest{Query: query})

			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var out RetrieveResponse
			Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
			Expect(out.MemoryBlock).To(BeEmpty())
			Expect(out.Memories).To(BeEmpty())
		})

		It("rejects a missing query", func() {
			req := jsonRequest(http.MethodPost, "/users/alice/retrieve", RetrieveRequest{})

			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))

			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring("query required"))
		})

		It("rejects a malformed body", func() {
			req, err := http.NewRequest(http.MethodPost, "/users/alice/retrieve", bytes.NewBufferString("{not json"))
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Content-Type", "application/json")

			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})
	})

	Describe("POST /users/:id/feedback", func() {
		It("applies citation feedback and persists the weights", func() {
			retrieveReq := jsonRequest(http.MethodPost, "/users/alice/retrieve", RetrieveRequest{Query: query})
			_, err := server.app.Test(retrieveReq)
			Expect(err).NotTo(HaveOccurred())

			feedbackReq := jsonRequest(http.MethodPost, "/users/alice/feedback", FeedbackRequest{Answer: "You like green tea [0]."})
			resp, err := server.app.Test(feedbackReq)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			Expect(weightStore.Load(ctx, "alice")).NotTo(BeNil())
		})

		It("accepts feedback with no pending selection", func() {
			req := jsonRequest(http.MethodPost, "/users/alice/feedback", FeedbackRequest{Answer: "No memories here."})

			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			Expect(weightStore.Load(ctx, "alice")).To(BeNil())
		})
	})

	Describe("POST /users/:id/turn/start", func() {
		It("discards the pending selection", func() {
			retrieveReq := jsonRequest(http.MethodPost, "/users/alice/retrieve", RetrieveRequest{Query: query})
			_, err := server.app.Test(retrieveReq)
			Expect(err).NotTo(HaveOccurred())

			startReq := jsonRequest(http.MethodPost, "/users/alice/turn/start", nil)
			resp, err := server.app.Test(startReq)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			feedbackReq := jsonRequest(http.MethodPost, "/users/alice/feedback", FeedbackRequest{Answer: "[0]"})
			_, err = server.app.Test(feedbackReq)
			Expect(err).NotTo(HaveOccurred())
			Expect(weightStore.Load(ctx, "alice")).To(BeNil())
		})
	})

	Describe("POST /users/:id/messages", func() {
		It("appends the exchange to the buffer", func() {
			req := jsonRequest(http.MethodPost, "/users/alice/messages", MessagesRequest{
				HumanMessage:     "I like green tea",
				AssistantMessage: "Noted!",
			})

			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			buf := buffers.Load(ctx, "alice")
			Expect(buf.Messages).To(HaveLen(2))
			Expect(buf.HumanMessageCount).To(Equal(1))
		})

		It("rejects an empty exchange", func() {
			req := jsonRequest(http.MethodPost, "/users/alice/messages", MessagesRequest{})

			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})
	})

	Describe("POST /users/:id/session/end", func() {
		It("echoes the session id and reflects in the background", func() {
			server = newServer(
				`{"memories": [{"topic_summary": "likes green tea", "raw_dialogue": "I like green tea", "turn_refs": [0]}]}`,
			)
			mockBank.SearchResults = nil

			msgReq := jsonRequest(http.MethodPost, "/users/alice/messages", MessagesRequest{
				HumanMessage:     "I like green tea",
				AssistantMessage: "Noted!",
			})
			_, err := server.app.Test(msgReq)
			Expect(err).NotTo(HaveOccurred())

			endReq := jsonRequest(http.MethodPost, "/users/alice/session/end", SessionEndRequest{SessionID: "sess-1"})
			resp, err := server.app.Test(endReq)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var out map[string]string
			Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
			Expect(out["status"]).To(Equal("reflecting"))
			Expect(out["session_id"]).To(Equal("sess-1"))

			Eventually(func() bool {
				return buffers.Load(ctx, "alice").Empty()
			}, time.Second, 10*time.Millisecond).Should(BeTrue())
		})

		It("generates a session id when none is given", func() {
			req := jsonRequest(http.MethodPost, "/users/alice/session/end", nil)

			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var out map[string]string
			Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
			Expect(out["session_id"]).NotTo(BeEmpty())
		})
	})
})
