package memory_test

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/remem/pkg/memory"
)

var _ = Describe("Entry", func() {
	Describe("NewEntry", func() {
		It("assigns a fresh id and timestamp", func() {
			entry := memory.NewEntry("likes hiking", "user: I hike every weekend", "sess-1", []int{0, 1})
			Expect(entry.ID).NotTo(BeEmpty())
			Expect(entry.CreatedAt).NotTo(BeZero())
			Expect(entry.TopicSummary).To(Equal("likes hiking"))
			Expect(entry.SessionID).To(Equal("sess-1"))
			Expect(entry.TurnRefs).To(Equal([]int{0, 1}))
		})

		It("gives distinct entries distinct ids", func() {
			a := memory.NewEntry("a", "", "s", nil)
			b := memory.NewEntry("b", "", "s", nil)
			Expect(a.ID).NotTo(Equal(b.ID))
		})
	})

	Describe("Validate", func() {
		It("accepts a complete entry", func() {
			entry := memory.NewEntry("topic", "dialogue", "sess", nil)
			Expect(entry.Validate()).To(Succeed())
		})

		It("rejects a nil entry", func() {
			var entry *memory.Entry
			Expect(entry.Validate()).To(MatchError(memory.ErrInvalidEntry))
		})

		It("rejects a missing id", func() {
			entry := &memory.Entry{TopicSummary: "topic"}
			Expect(entry.Validate()).To(MatchError(memory.ErrInvalidEntry))
		})

		It("rejects a missing topic summary", func() {
			entry := memory.NewEntry("", "dialogue", "sess", nil)
			Expect(entry.Validate()).To(MatchError(memory.ErrInvalidEntry))
		})

		It("rejects a non-finite embedding", func() {
			entry := memory.NewEntry("topic", "", "sess", nil)
			entry.Embedding = []float64{1, math.NaN()}
			Expect(entry.Validate()).To(MatchError(memory.ErrInvalidVector))
		})
	})
})

var _ = Describe("ValidateVector", func() {
	It("accepts finite vectors", func() {
		Expect(memory.ValidateVector([]float64{0.1, -0.5, 2}, 3)).To(Succeed())
	})

	It("rejects dimension mismatches", func() {
		err := memory.ValidateVector([]float64{1, 2}, 3)
		Expect(err).To(MatchError(memory.ErrInvalidVector))
	})

	It("skips the dimension check when dim is zero", func() {
		Expect(memory.ValidateVector([]float64{1, 2}, 0)).To(Succeed())
	})

	It("rejects NaN and Inf values", func() {
		Expect(memory.ValidateVector([]float64{math.NaN()}, 0)).To(MatchError(memory.ErrInvalidVector))
		Expect(memory.ValidateVector([]float64{math.Inf(1)}, 0)).To(MatchError(memory.ErrInvalidVector))
	})
})
