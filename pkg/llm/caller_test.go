package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/remem/pkg/llm"
)

var _ = Describe("NewCaller", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
		GinkgoT().Setenv("OPENAI_API_KEY", "")
		GinkgoT().Setenv("ANTHROPIC_API_KEY", "")
	})

	It("rejects an unsupported provider", func() {
		GinkgoT().Setenv("OPENAI_API_KEY", "sk-test")
		_, err := llm.NewCaller(llm.CallerConfig{Provider: "grok", APIKey: "k"})
		Expect(err).To(MatchError(ContainSubstring("unsupported provider")))
	})

	Context("against an openai-compatible endpoint", func() {
		It("sends the prompt and returns the completion", func() {
			var gotPath, gotAuth string
			var gotBody map[string]any
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				gotAuth = r.Header.Get("Authorization")
				Expect(json.NewDecoder(r.Body).Decode(&gotBody)).To(Succeed())
				_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "hello back"}}]}`))
			}))
			DeferCleanup(server.Close)

			call, err := llm.NewCaller(llm.CallerConfig{
				Provider: "openai",
				Model:    "gpt-4o-mini",
				APIKey:   "sk-test",
				BaseURL:  server.URL,
			})
			Expect(err).NotTo(HaveOccurred())

			out, err := call(ctx, "hello there")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(Equal("hello back"))
			Expect(gotPath).To(Equal("/v1/chat/completions"))
			Expect(gotAuth).To(Equal("Bearer sk-test"))
			Expect(gotBody["model"]).To(Equal("gpt-4o-mini"))
		})

		It("surfaces API errors", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error": {"message": "bad key"}}`))
			}))
			DeferCleanup(server.Close)

			call, err := llm.NewCaller(llm.CallerConfig{Provider: "openai", APIKey: "sk-bad", BaseURL: server.URL})
			Expect(err).NotTo(HaveOccurred())

			_, err = call(ctx, "hello")
			Expect(err).To(HaveOccurred())
		})
	})

	Context("against an anthropic-compatible endpoint", func() {
		It("returns the first text content block", func() {
			var gotKey, gotVersion string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotKey = r.Header.Get("x-api-key")
				gotVersion = r.Header.Get("anthropic-version")
				_, _ = w.Write([]byte(`{"content": [{"type": "text", "text": "claude says hi"}]}`))
			}))
			DeferCleanup(server.Close)

			call, err := llm.NewCaller(llm.CallerConfig{
				Provider: "anthropic",
				APIKey:   "sk-ant",
				BaseURL:  server.URL,
			})
			Expect(err).NotTo(HaveOccurred())

			out, err := call(ctx, "hello")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(Equal("claude says hi"))
			Expect(gotKey).To(Equal("sk-ant"))
			Expect(gotVersion).NotTo(BeEmpty())
		})

		It("errors when no text block is returned", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"content": [{"type": "tool_use", "text": ""}]}`))
			}))
			DeferCleanup(server.Close)

			call, err := llm.NewCaller(llm.CallerConfig{Provider: "anthropic", APIKey: "sk-ant", BaseURL: server.URL})
			Expect(err).NotTo(HaveOccurred())

			_, err = call(ctx, "hello")
			Expect(err).To(MatchError(ContainSubstring("no text content")))
		})
	})

	Context("against an ollama endpoint", func() {
		It("returns the chat message content", func() {
			var gotPath string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				_, _ = w.Write([]byte(`{"message": {"role": "assistant", "content": "local model reply"}, "done": true}`))
			}))
			DeferCleanup(server.Close)

			call, err := llm.NewCaller(llm.CallerConfig{Provider: "ollama", BaseURL: server.URL})
			Expect(err).NotTo(HaveOccurred())

			out, err := call(ctx, "hello")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(Equal("local model reply"))
			Expect(gotPath).To(Equal("/api/chat"))
		})

		It("surfaces ollama errors", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"error": "model not found"}`))
			}))
			DeferCleanup(server.Close)

			call, err := llm.NewCaller(llm.CallerConfig{Provider: "ollama", BaseURL: server.URL})
			Expect(err).NotTo(HaveOccurred())

			_, err = call(ctx, "hello")
			Expect(err).To(MatchError(ContainSubstring("model not found")))
		})
	})

	Context("credential fallback", func() {
		It("falls back to ollama when a keyed provider has no key", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.URL.Path).To(Equal("/api/chat"))
				_, _ = w.Write([]byte(`{"message": {"content": "fallback reply"}, "done": true}`))
			}))
			DeferCleanup(server.Close)

			call, err := llm.NewCaller(llm.CallerConfig{Provider: "openai", BaseURL: server.URL})
			Expect(err).NotTo(HaveOccurred())

			out, err := call(ctx, "hello")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(Equal("fallback reply"))
		})

		It("uses the environment key when no explicit key is set", func() {
			GinkgoT().Setenv("OPENAI_API_KEY", "sk-env")

			var gotAuth string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotAuth = r.Header.Get("Authorization")
				_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "ok"}}]}`))
			}))
			DeferCleanup(server.Close)

			call, err := llm.NewCaller(llm.CallerConfig{Provider: "openai", BaseURL: server.URL})
			Expect(err).NotTo(HaveOccurred())

			_, err = call(ctx, "hello")
			Expect(err).NotTo(HaveOccurred())
			Expect(gotAuth).To(Equal("Bearer sk-env"))
		})
	})
})
