package reflection_test

import (
	"context"
	"encoding/json"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/remem/pkg/bufferstore"
	"github.com/papercomputeco/remem/pkg/consolidation"
	"github.com/papercomputeco/remem/pkg/kv"
	kvinmemory "github.com/papercomputeco/remem/pkg/kv/inmemory"
	"github.com/papercomputeco/remem/pkg/memory"
	"github.com/papercomputeco/remem/pkg/reflection"
	"github.com/papercomputeco/remem/pkg/retrieval"
	testutils "github.com/papercomputeco/remem/pkg/utils/test"
)

// stagingWriteBlockedStore refuses writes into staging namespaces while
// serving everything else from the wrapped store.
type stagingWriteBlockedStore struct {
	kv.Store
}

func (s *stagingWriteBlockedStore) Put(ctx context.Context, namespace []string, key string, value json.RawMessage) error {
	for _, part := range namespace {
		if part == "staging" {
			return fmt.Errorf("staging write refused: %w", kv.ErrStore)
		}
	}
	return s.Store.Put(ctx, namespace, key, value)
}

var _ = Describe("Worker", func() {
	var (
		ctx     context.Context
		buffers *bufferstore.Store
		mock    *testutils.MockBank
		events  *testutils.MockPublisher
	)

	const extraction = `{"memories": [
		{"topic_summary": "took up pottery", "raw_dialogue": "I started pottery classes", "turn_refs": [0]},
		{"topic_summary": "prefers green tea", "raw_dialogue": "I only drink green tea now", "turn_refs": [2]}
	]}`

	newWorker := func(responses ...string) *reflection.Worker {
		call, _ := testutils.ScriptedLLM(responses...)
		retriever := retrieval.NewRetriever(mock, zap.NewNop())
		consolidator := consolidation.NewConsolidator(mock, retriever, call, events, zap.NewNop())
		return reflection.NewWorker(
			reflection.NewExtractor(call, zap.NewNop()),
			consolidator,
			buffers,
			zap.NewNop(),
		)
	}

	saveBuffer := func(userID string) {
		buf := memory.NewBuffer()
		buf.Append(memory.RoleHuman, "I started pottery classes")
		buf.Append(memory.RoleAssistant, "How are they going?")
		buf.Append(memory.RoleHuman, "I only drink green tea now")
		Expect(buffers.Save(ctx, userID, buf)).To(BeTrue())
	}

	BeforeEach(func() {
		ctx = context.Background()
		buffers = bufferstore.NewStore(kvinmemory.NewStore(), "remem", zap.NewNop())
		mock = testutils.NewMockBank()
		events = testutils.NewMockPublisher()
	})

	It("extracts, consolidates, and clears the buffers on success", func() {
		saveBuffer("alice")
		worker := newWorker(extraction)

		worker.Reflect(ctx, "alice", "sess-1")

		// No neighbors in the bank, so both memories land as direct adds.
		Expect(mock.Inserted).To(HaveLen(2))
		summaries := []string{mock.Inserted[0].TopicSummary, mock.Inserted[1].TopicSummary}
		Expect(summaries).To(ConsistOf("took up pottery", "prefers green tea"))
		Expect(events.EventTypes()).To(ConsistOf("remem.memory.added", "remem.memory.added"))

		done, total := worker.Progress()
		Expect(done).To(Equal(2))
		Expect(total).To(Equal(2))

		Expect(buffers.Load(ctx, "alice").Empty()).To(BeTrue())
		Expect(buffers.LoadStaging(ctx, "alice")).To(BeNil())
	})

	It("does nothing for a user with no buffered messages", func() {
		worker := newWorker()

		worker.Reflect(ctx, "nobody", "sess-1")

		Expect(mock.Inserted).To(BeEmpty())
		Expect(events.Events).To(BeEmpty())
	})

	It("recovers a staged snapshot left over from an earlier run", func() {
		saveBuffer("alice")
		Expect(buffers.Stage(ctx, "alice")).NotTo(BeNil())
		Expect(buffers.Clear(ctx, "alice")).To(BeTrue())

		worker := newWorker(extraction)
		worker.Reflect(ctx, "alice", "sess-1")

		Expect(mock.Inserted).To(HaveLen(2))
		Expect(buffers.LoadStaging(ctx, "alice")).To(BeNil())
	})

	It("keeps unstaged main messages when staging cannot be written", func() {
		inner := kvinmemory.NewStore()
		buffers = bufferstore.NewStore(inner, "remem", zap.NewNop())

		// A snapshot from an earlier run sits in staging.
		saveBuffer("alice")
		Expect(buffers.Stage(ctx, "alice")).NotTo(BeNil())

		// The main buffer has since been replaced with newer messages.
		latest := memory.NewBuffer()
		latest.Append(memory.RoleHuman, "I adopted a cat yesterday")
		Expect(buffers.Save(ctx, "alice", latest)).To(BeTrue())

		// This run cannot stage, so it may only recover the old snapshot.
		buffers = bufferstore.NewStore(&stagingWriteBlockedStore{Store: inner}, "remem", zap.NewNop())
		worker := newWorker(extraction)
		worker.Reflect(ctx, "alice", "sess-1")

		Expect(mock.Inserted).To(HaveLen(2))
		Expect(buffers.LoadStaging(ctx, "alice")).To(BeNil())

		// The never-staged message survives for the next run.
		main := buffers.Load(ctx, "alice")
		Expect(main.Messages).To(HaveLen(1))
		Expect(main.Messages[0].Content).To(Equal("I adopted a cat yesterday"))
	})

	It("keeps the staged snapshot when the context is cancelled", func() {
		saveBuffer("alice")
		worker := newWorker(extraction)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		worker.Reflect(cancelled, "alice", "sess-1")

		Expect(mock.Inserted).To(BeEmpty())
		Expect(buffers.LoadStaging(ctx, "alice")).NotTo(BeNil())
	})

	It("clears the buffers even when extraction yields nothing", func() {
		saveBuffer("alice")
		worker := newWorker(`{"memories": []}`)

		worker.Reflect(ctx, "alice", "sess-1")

		Expect(mock.Inserted).To(BeEmpty())
		Expect(buffers.Load(ctx, "alice").Empty()).To(BeTrue())
		Expect(buffers.LoadStaging(ctx, "alice")).To(BeNil())

		done, total := worker.Progress()
		Expect(done).To(Equal(0))
		Expect(total).To(Equal(0))
	})

	It("still clears staging when some consolidations fail", func() {
		saveBuffer("alice")
		mock.FailInsert = true
		worker := newWorker(extraction)

		worker.Reflect(ctx, "alice", "sess-1")

		Expect(mock.Inserted).To(BeEmpty())
		Expect(buffers.LoadStaging(ctx, "alice")).To(BeNil())
	})
})
