package dotdir_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/remem/pkg/dotdir"
)

var _ = Describe("dotdir.Manager session", func() {
	var tmpDir string
	var m *dotdir.Manager

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "dotdir-test-*")
		Expect(err).NotTo(HaveOccurred())
		m = dotdir.NewManager()
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	Describe("LoadSessionState", func() {
		It("returns nil when no session file exists", func() {
			state, err := m.LoadSessionState(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(state).To(BeNil())
		})

		It("loads a valid session state", func() {
			data := `{"user_id":"alice","session_id":"sess-1","started_at":"2026-08-01T10:00:00Z"}`
			err := os.WriteFile(filepath.Join(tmpDir, "session.json"), []byte(data), 0o600)
			Expect(err).NotTo(HaveOccurred())

			state, err := m.LoadSessionState(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(state).NotTo(BeNil())
			Expect(state.UserID).To(Equal("alice"))
			Expect(state.SessionID).To(Equal("sess-1"))
		})

		It("errors on malformed JSON", func() {
			err := os.WriteFile(filepath.Join(tmpDir, "session.json"), []byte("{not json"), 0o600)
			Expect(err).NotTo(HaveOccurred())

			_, err = m.LoadSessionState(tmpDir)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("SaveSession", func() {
		It("round-trips a session state", func() {
			state := &dotdir.SessionState{
				UserID:    "alice",
				SessionID: "sess-2",
				StartedAt: time.Now().UTC(),
			}
			Expect(m.SaveSession(state, tmpDir)).To(Succeed())

			loaded, err := m.LoadSessionState(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.UserID).To(Equal("alice"))
			Expect(loaded.SessionID).To(Equal("sess-2"))
		})

		It("rejects a nil state", func() {
			Expect(m.SaveSession(nil, tmpDir)).NotTo(Succeed())
		})
	})

	Describe("ClearSession", func() {
		It("removes an existing session file", func() {
			state := &dotdir.SessionState{UserID: "alice", SessionID: "sess-3"}
			Expect(m.SaveSession(state, tmpDir)).To(Succeed())

			Expect(m.ClearSession(tmpDir)).To(Succeed())

			loaded, err := m.LoadSessionState(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(BeNil())
		})

		It("is a no-op when nothing is saved", func() {
			Expect(m.ClearSession(tmpDir)).To(Succeed())
		})
	})
})
