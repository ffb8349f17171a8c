package reflection_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/remem/pkg/memory"
	"github.com/papercomputeco/remem/pkg/reflection"
	testutils "github.com/papercomputeco/remem/pkg/utils/test"
)

var _ = Describe("Extractor", func() {
	var ctx context.Context

	newBuffer := func() *memory.Buffer {
		buf := memory.NewBuffer()
		buf.Append(memory.RoleHuman, "I started pottery classes last month")
		buf.Append(memory.RoleAssistant, "That sounds fun, how is it going?")
		return buf
	}

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("builds entries from the model response", func() {
		call, log := testutils.ScriptedLLM(
			`{"memories": [{"topic_summary": "started pottery classes", "raw_dialogue": "I started pottery classes last month", "turn_refs": [0]}]}`,
		)
		extractor := reflection.NewExtractor(call, zap.NewNop())

		entries := extractor.Extract(ctx, "sess-1", newBuffer())

		Expect(entries).To(HaveLen(1))
		Expect(entries[0].TopicSummary).To(Equal("started pottery classes"))
		Expect(entries[0].SessionID).To(Equal("sess-1"))
		Expect(entries[0].TurnRefs).To(Equal([]int{0}))
		Expect(entries[0].ID).NotTo(BeEmpty())

		// The transcript appears in the prompt with indexed roles.
		prompts := log.Prompts()
		Expect(prompts).To(HaveLen(1))
		Expect(prompts[0]).To(ContainSubstring("[0] human: I started pottery classes last month"))
		Expect(prompts[0]).To(ContainSubstring("[1] assistant:"))
	})

	It("accepts responses wrapped in markdown fences", func() {
		call, _ := testutils.ScriptedLLM(
			"```json\n{\"memories\": [{\"topic_summary\": \"pottery\", \"raw_dialogue\": \"\"}]}\n```",
		)
		extractor := reflection.NewExtractor(call, zap.NewNop())

		Expect(extractor.Extract(ctx, "sess-1", newBuffer())).To(HaveLen(1))
	})

	It("drops memories with a blank topic summary", func() {
		call, _ := testutils.ScriptedLLM(
			`{"memories": [{"topic_summary": "  ", "raw_dialogue": "x"}, {"topic_summary": "kept", "raw_dialogue": "y"}]}`,
		)
		extractor := reflection.NewExtractor(call, zap.NewNop())

		entries := extractor.Extract(ctx, "sess-1", newBuffer())
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].TopicSummary).To(Equal("kept"))
	})

	It("returns nothing for a nil or empty buffer", func() {
		call, log := testutils.ScriptedLLM()
		extractor := reflection.NewExtractor(call, zap.NewNop())

		Expect(extractor.Extract(ctx, "sess-1", nil)).To(BeEmpty())
		Expect(extractor.Extract(ctx, "sess-1", memory.NewBuffer())).To(BeEmpty())
		Expect(log.Prompts()).To(BeEmpty())
	})

	It("returns nothing when the model call fails", func() {
		extractor := reflection.NewExtractor(testutils.FailingLLM(), zap.NewNop())
		Expect(extractor.Extract(ctx, "sess-1", newBuffer())).To(BeEmpty())
	})

	It("returns nothing for an unparseable response", func() {
		call, _ := testutils.ScriptedLLM("just prose, no JSON")
		extractor := reflection.NewExtractor(call, zap.NewNop())
		Expect(extractor.Extract(ctx, "sess-1", newBuffer())).To(BeEmpty())
	})

	It("returns nothing for an empty memories array", func() {
		call, _ := testutils.ScriptedLLM(`{"memories": []}`)
		extractor := reflection.NewExtractor(call, zap.NewNop())
		Expect(extractor.Extract(ctx, "sess-1", newBuffer())).To(BeEmpty())
	})
})
