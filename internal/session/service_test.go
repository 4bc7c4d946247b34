package session

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"

	"github.com/maxpark/access-controller/internal"
)

func TestSession(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Session Module Suite")
}

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func sha256hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

var _ = ginkgo.Describe("Service", func() {
	var (
		service      *Service
		basicEnabled bool
		clock        time.Time
	)

	const (
		username = "admin"
		password = "correct_password"
		apiKey   = "0123456789abcdef"
	)

	ginkgo.BeforeEach(func() {
		basicEnabled = false
		clock = time.Date(2026, 8, 24, 8, 0, 0, 0, time.UTC)

		service = NewService(username, sha256hex(password), apiKey, false, 24*time.Hour,
			func() bool { return basicEnabled }, testLogger)
		service.now = func() time.Time { return clock }
	})

	ginkgo.Describe("Login", func() {
		ginkgo.It("should issue a token for valid credentials", func() {
			token, err := service.Login(username, password)

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(token).ToNot(gomega.BeEmpty())

			sess, ok := service.Validate(token)
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(sess.Username).To(gomega.Equal(username))
		})

		ginkgo.It("should return the same error for a wrong password and a wrong username", func() {
			_, errPassword := service.Login(username, "wrong")
			_, errUsername := service.Login("root", password)

			gomega.Expect(errPassword).To(gomega.Equal(internal.ErrInvalidCredentials))
			gomega.Expect(errUsername).To(gomega.Equal(internal.ErrInvalidCredentials))
		})

		ginkgo.It("should issue distinct tokens per login", func() {
			t1, err1 := service.Login(username, password)
			t2, err2 := service.Login(username, password)

			gomega.Expect(err1).ToNot(gomega.HaveOccurred())
			gomega.Expect(err2).ToNot(gomega.HaveOccurred())
			gomega.Expect(t1).ToNot(gomega.Equal(t2))
		})
	})

	ginkgo.Describe("Validate", func() {
		ginkgo.It("should reject an unknown token", func() {
			_, ok := service.Validate("nope")

			gomega.Expect(ok).To(gomega.BeFalse())
		})

		ginkgo.It("should expire tokens after the TTL", func() {
			token, _ := service.Login(username, password)

			clock = clock.Add(25 * time.Hour)

			_, ok := service.Validate(token)
			gomega.Expect(ok).To(gomega.BeFalse())
			// Removed on discovery.
			gomega.Expect(service.ActiveCount()).To(gomega.BeZero())
		})
	})

	ginkgo.Describe("Logout", func() {
		ginkgo.It("should invalidate the token", func() {
			token, _ := service.Login(username, password)

			service.Logout(token)

			_, ok := service.Validate(token)
			gomega.Expect(ok).To(gomega.BeFalse())
		})

		ginkgo.It("should ignore unknown tokens", func() {
			service.Logout("nope")
		})
	})

	ginkgo.Describe("Sweep", func() {
		ginkgo.It("should remove only expired sessions", func() {
			expired, _ := service.Login(username, password)
			clock = clock.Add(23 * time.Hour)
			fresh, _ := service.Login(username, password)
			clock = clock.Add(2 * time.Hour)

			removed := service.Sweep()

			gomega.Expect(removed).To(gomega.Equal(1))
			_, ok := service.Validate(expired)
			gomega.Expect(ok).To(gomega.BeFalse())
			_, ok = service.Validate(fresh)
			gomega.Expect(ok).To(gomega.BeTrue())
		})
	})

	ginkgo.Describe("VerifyPassword", func() {
		ginkgo.It("should verify a bcrypt digest by its prefix", func() {
			digest, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			svc := NewService(username, string(digest), "", false, time.Hour, nil, testLogger)

			gomega.Expect(svc.VerifyPassword(password)).To(gomega.BeTrue())
			gomega.Expect(svc.VerifyPassword("wrong")).To(gomega.BeFalse())
		})

		ginkgo.It("should verify the legacy digest", func() {
			gomega.Expect(service.VerifyPassword(password)).To(gomega.BeTrue())
			gomega.Expect(service.VerifyPassword("wrong")).To(gomega.BeFalse())
		})
	})

	ginkgo.Describe("VerifyBasic", func() {
		ginkgo.It("should reject when disabled in the runtime config", func() {
			gomega.Expect(service.VerifyBasic(username, password)).To(gomega.BeFalse())
		})

		ginkgo.It("should verify the admin credentials when enabled", func() {
			basicEnabled = true

			gomega.Expect(service.VerifyBasic(username, password)).To(gomega.BeTrue())
			gomega.Expect(service.VerifyBasic(username, "wrong")).To(gomega.BeFalse())
			gomega.Expect(service.VerifyBasic("Admin", password)).To(gomega.BeFalse())
		})
	})

	ginkgo.Describe("API key", func() {
		ginkgo.It("should verify the configured key", func() {
			gomega.Expect(service.VerifyAPIKey(apiKey)).To(gomega.BeTrue())
			gomega.Expect(service.VerifyAPIKey("wrong")).To(gomega.BeFalse())
		})

		ginkgo.It("should reject everything when no key is configured", func() {
			svc := NewService(username, sha256hex(password), "", false, time.Hour, nil, testLogger)

			gomega.Expect(svc.VerifyAPIKey("")).To(gomega.BeFalse())
		})

		ginkgo.It("should rotate with SetAPIKey", func() {
			service.SetAPIKey("fedcba9876543210")

			gomega.Expect(service.VerifyAPIKey(apiKey)).To(gomega.BeFalse())
			gomega.Expect(service.VerifyAPIKey("fedcba9876543210")).To(gomega.BeTrue())
		})
	})

	ginkgo.Describe("SetPassword", func() {
		ginkgo.It("should take effect immediately without invalidating sessions", func() {
			token, _ := service.Login(username, password)

			service.SetPassword("new_password_123")

			gomega.Expect(service.VerifyPassword(password)).To(gomega.BeFalse())
			gomega.Expect(service.VerifyPassword("new_password_123")).To(gomega.BeTrue())
			_, ok := service.Validate(token)
			gomega.Expect(ok).To(gomega.BeTrue())
		})
	})
})
