package translog

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"github.com/maxpark/access-controller/internal/core/datamodel/transaction"
)

func TestTranslog(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Translog Module Suite")
}

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func tx(card string, at time.Time) transaction.Transaction {
	return transaction.Transaction{
		Name:      "Alice",
		Card:      card,
		Reader:    1,
		Status:    transaction.StatusGranted,
		Timestamp: at.Unix(),
	}
}

var _ = ginkgo.Describe("Store", func() {
	var (
		dir   string
		store *Store
		now   time.Time
	)

	ginkgo.BeforeEach(func() {
		dir = ginkgo.GinkgoT().TempDir()
		now = time.Now().UTC()

		var err error
		store, err = NewStore(filepath.Join(dir, "transactions"), testLogger)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
	})

	ginkgo.Describe("Append and Tail", func() {
		ginkgo.It("should read back newest first across day files", func() {
			gomega.Expect(store.Append(tx("1", now.Add(-48*time.Hour)))).To(gomega.Succeed())
			gomega.Expect(store.Append(tx("2", now.Add(-24*time.Hour)))).To(gomega.Succeed())
			gomega.Expect(store.Append(tx("3", now))).To(gomega.Succeed())

			out := store.Tail(10)

			gomega.Expect(out).To(gomega.HaveLen(3))
			gomega.Expect(out[0].Card).To(gomega.Equal("3"))
			gomega.Expect(out[1].Card).To(gomega.Equal("2"))
			gomega.Expect(out[2].Card).To(gomega.Equal("1"))
		})

		ginkgo.It("should honor the limit", func() {
			for i := 0; i < 5; i++ {
				gomega.Expect(store.Append(tx("1", now.Add(time.Duration(i)*time.Minute)))).To(gomega.Succeed())
			}

			gomega.Expect(store.Tail(3)).To(gomega.HaveLen(3))
		})

		ginkgo.It("should survive a restart", func() {
			gomega.Expect(store.Append(tx("1", now))).To(gomega.Succeed())

			reopened, err := NewStore(filepath.Join(dir, "transactions"), testLogger)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(reopened.Tail(10)).To(gomega.HaveLen(1))
		})

		ginkgo.It("should skip a torn line without losing the rest", func() {
			gomega.Expect(store.Append(tx("1", now))).To(gomega.Succeed())

			f, err := os.OpenFile(store.TodayFile(), os.O_APPEND|os.O_WRONLY, 0o644)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			_, err = f.WriteString(`{"name":"Ali`)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			f.Close()

			gomega.Expect(store.Append(tx("2", now))).To(gomega.Succeed())

			// Torn line merges with the next append on the same line; both
			// become unparseable but earlier entries stay readable.
			out := store.Tail(10)
			gomega.Expect(len(out)).To(gomega.BeNumerically(">=", 1))
			gomega.Expect(out[len(out)-1].Card).To(gomega.Equal("1"))
		})
	})

	ginkgo.Describe("Evict", func() {
		ginkgo.It("should delete oldest files first and preserve today", func() {
			gomega.Expect(store.Append(tx("1", now.Add(-72*time.Hour)))).To(gomega.Succeed())
			gomega.Expect(store.Append(tx("2", now.Add(-48*time.Hour)))).To(gomega.Succeed())
			gomega.Expect(store.Append(tx("3", now))).To(gomega.Succeed())

			freed := store.Evict(1 << 30)

			gomega.Expect(freed).To(gomega.BeNumerically(">", 0))
			out := store.Tail(10)
			gomega.Expect(out).To(gomega.HaveLen(1))
			gomega.Expect(out[0].Card).To(gomega.Equal("3"))
		})

		ginkgo.It("should stop once the target is met", func() {
			gomega.Expect(store.Append(tx("1", now.Add(-72*time.Hour)))).To(gomega.Succeed())
			gomega.Expect(store.Append(tx("2", now.Add(-48*time.Hour)))).To(gomega.Succeed())

			freed := store.Evict(1)

			gomega.Expect(freed).To(gomega.BeNumerically(">", 0))
			gomega.Expect(store.Tail(10)).To(gomega.HaveLen(1))
		})
	})

	ginkgo.Describe("DirSize", func() {
		ginkgo.It("should grow with appends", func() {
			before := store.DirSize()
			gomega.Expect(store.Append(tx("1", now))).To(gomega.Succeed())

			gomega.Expect(store.DirSize()).To(gomega.BeNumerically(">", before))
		})
	})
})
