package memory_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/remem/pkg/memory"
)

var _ = Describe("Buffer", func() {
	It("starts empty", func() {
		buf := memory.NewBuffer()
		Expect(buf.Empty()).To(BeTrue())
		Expect(buf.CreatedAt).NotTo(BeZero())
	})

	Describe("Append", func() {
		It("records messages in order", func() {
			buf := memory.NewBuffer()
			buf.Append(memory.RoleHuman, "hello")
			buf.Append(memory.RoleAssistant, "hi there")

			Expect(buf.Messages).To(HaveLen(2))
			Expect(buf.Messages[0].Role).To(Equal(memory.RoleHuman))
			Expect(buf.Messages[0].Content).To(Equal("hello"))
			Expect(buf.Messages[1].Role).To(Equal(memory.RoleAssistant))
			Expect(buf.Empty()).To(BeFalse())
		})

		It("counts only human messages", func() {
			buf := memory.NewBuffer()
			buf.Append(memory.RoleHuman, "one")
			buf.Append(memory.RoleAssistant, "two")
			buf.Append(memory.RoleHuman, "three")

			Expect(buf.HumanMessageCount).To(Equal(2))
		})

		It("advances the last message timestamp", func() {
			buf := memory.NewBuffer()
			buf.Append(memory.RoleHuman, "hello")
			Expect(buf.LastMessageTimestamp).NotTo(BeZero())
		})
	})

	Describe("Clone", func() {
		It("copies messages and counters", func() {
			buf := memory.NewBuffer()
			buf.Append(memory.RoleHuman, "hello")

			clone := buf.Clone()
			Expect(clone.Messages).To(Equal(buf.Messages))
			Expect(clone.HumanMessageCount).To(Equal(buf.HumanMessageCount))
		})

		It("isolates the clone from later appends", func() {
			buf := memory.NewBuffer()
			buf.Append(memory.RoleHuman, "hello")

			clone := buf.Clone()
			buf.Append(memory.RoleAssistant, "hi")

			Expect(clone.Messages).To(HaveLen(1))
			Expect(buf.Messages).To(HaveLen(2))
		})
	})
})
