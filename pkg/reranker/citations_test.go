package reranker_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/remem/pkg/reranker"
)

var _ = Describe("ParseCitations", func() {
	It("finds explicit markers", func() {
		citations := reranker.ParseCitations("As you mentioned before [0], and also [2].", 3)
		Expect(citations).To(Equal([]reranker.Citation{
			{Index: 0, Reward: 1},
			{Index: 2, Reward: 1},
		}))
	})

	It("collapses duplicate markers", func() {
		citations := reranker.ParseCitations("[1] and again [1]", 3)
		Expect(citations).To(HaveLen(1))
		Expect(citations[0].Index).To(Equal(1))
	})

	It("ignores out-of-range markers", func() {
		Expect(reranker.ParseCitations("[5]", 3)).To(BeEmpty())
	})

	It("returns nothing for an answer without markers", func() {
		Expect(reranker.ParseCitations("no references here", 3)).To(BeEmpty())
	})

	It("returns nothing for an empty answer or empty selection", func() {
		Expect(reranker.ParseCitations("", 3)).To(BeEmpty())
		Expect(reranker.ParseCitations("[0]", 0)).To(BeEmpty())
	})

	It("ignores non-numeric bracket text", func() {
		Expect(reranker.ParseCitations("[citation needed]", 3)).To(BeEmpty())
	})
})
