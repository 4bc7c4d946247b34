package user

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
)

type mockVerifier struct {
	accept string
}

func (m *mockVerifier) VerifyPassword(password string) bool { return password == m.accept }

var _ = ginkgo.Describe("Handler", func() {
	var (
		store    *Store
		handler  *Handler
		verifier *mockVerifier
	)

	ginkgo.BeforeEach(func() {
		dir := ginkgo.GinkgoT().TempDir()
		var err error
		store, err = NewStore(filepath.Join(dir, "users.json"), filepath.Join(dir, "blocked_users.json"), testLogger)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		verifier = &mockVerifier{accept: "hunter22hunter22"}
		handler = NewHandler(store, verifier)
	})

	post := func(fn http.HandlerFunc, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		rec := httptest.NewRecorder()
		fn(rec, req)
		return rec
	}

	ginkgo.Describe("AddUser", func() {
		ginkgo.It("should create the user", func() {
			rec := post(handler.AddUser, `{"card_number":"12345678","id":"7","name":"Alice","ref_id":"emp-7"}`)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(rec.Body.String()).To(gomega.ContainSubstring(`"status":"success"`))

			u, ok := store.Get("12345678")
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(u.Name).To(gomega.Equal("Alice"))
		})

		ginkgo.It("should reject invalid input with the error envelope", func() {
			rec := post(handler.AddUser, `{"card_number":"not-a-card","id":"7","name":"Alice"}`)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusBadRequest))
			gomega.Expect(rec.Body.String()).To(gomega.ContainSubstring(`"status":"error"`))
		})
	})

	ginkgo.Describe("GetUsers", func() {
		ginkgo.It("should return the bare array", func() {
			gomega.Expect(store.Add(User{CardNumber: "12345678", ID: "7", Name: "Alice"})).To(gomega.Succeed())

			req := httptest.NewRequest(http.MethodGet, "/get_users", nil)
			rec := httptest.NewRecorder()
			handler.GetUsers(rec, req)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
			body := strings.TrimSpace(rec.Body.String())
			gomega.Expect(strings.HasPrefix(body, "[")).To(gomega.BeTrue())
			gomega.Expect(body).To(gomega.ContainSubstring(`"card_number":"12345678"`))
		})
	})

	ginkgo.Describe("Block and unblock", func() {
		ginkgo.It("should round-trip", func() {
			rec := post(handler.BlockUser, `{"card_number":"99999999"}`)
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(store.IsBlocked("99999999")).To(gomega.BeTrue())

			rec = post(handler.UnblockUser, `{"card_number":"99999999"}`)
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(store.IsBlocked("99999999")).To(gomega.BeFalse())
		})
	})

	ginkgo.Describe("TogglePrivacy", func() {
		ginkgo.BeforeEach(func() {
			gomega.Expect(store.Add(User{CardNumber: "12345678", ID: "7", Name: "Alice"})).To(gomega.Succeed())
		})

		ginkgo.It("should require the admin password", func() {
			rec := post(handler.TogglePrivacy, `{"card_number":"12345678","password":"wrong"}`)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusUnauthorized))
			gomega.Expect(rec.Body.String()).To(gomega.ContainSubstring("Invalid password"))

			u, _ := store.Get("12345678")
			gomega.Expect(u.PrivacyProtected).To(gomega.BeFalse())
		})

		ginkgo.It("should enable by default with a valid password", func() {
			rec := post(handler.TogglePrivacy, `{"card_number":"12345678","password":"hunter22hunter22"}`)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(rec.Body.String()).To(gomega.ContainSubstring("Privacy protection enabled for Alice"))

			u, _ := store.Get("12345678")
			gomega.Expect(u.PrivacyProtected).To(gomega.BeTrue())
		})

		ginkgo.It("should disable when asked explicitly", func() {
			gomega.Expect(store.SetPrivacy("12345678", true)).To(gomega.Succeed())

			rec := post(handler.TogglePrivacy, `{"card_number":"12345678","password":"hunter22hunter22","enable":false}`)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
			u, _ := store.Get("12345678")
			gomega.Expect(u.PrivacyProtected).To(gomega.BeFalse())
		})
	})
})
