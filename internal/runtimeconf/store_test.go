package runtimeconf

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
)

func TestRuntimeconf(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Runtimeconf Module Suite")
}

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type mockRestarter struct {
	calls   int
	bits    []int
	timeout time.Duration
	err     error
}

func (m *mockRestarter) Restart(bitsPerReader []int, timeout time.Duration) error {
	m.calls++
	m.bits = bitsPerReader
	m.timeout = timeout
	return m.err
}

type mockTuner struct {
	scanDelay  time.Duration
	trackingOn bool
	minGap     time.Duration
}

func (m *mockTuner) SetScanDelay(d time.Duration) { m.scanDelay = d }
func (m *mockTuner) ConfigureTracking(enabled bool, minGap time.Duration) {
	m.trackingOn = enabled
	m.minGap = minGap
}

var _ = ginkgo.Describe("Store", func() {
	var (
		path      string
		store     *Store
		restarter *mockRestarter
		tuner     *mockTuner
	)

	defaults := Defaults([3]int{26, 26, 26}, 25, 60, "site-a")

	newStore := func() *Store {
		s := NewStore(path, defaults, testLogger)
		s.Bind(restarter, tuner)
		return s
	}

	ginkgo.BeforeEach(func() {
		path = filepath.Join(ginkgo.GinkgoT().TempDir(), "config.json")
		restarter = &mockRestarter{}
		tuner = &mockTuner{}
		store = newStore()
	})

	ginkgo.Describe("NewStore", func() {
		ginkgo.It("should serve the defaults when no file exists", func() {
			rc := store.Get()

			gomega.Expect(rc.WiegandBits["reader_1"]).To(gomega.Equal(26))
			gomega.Expect(rc.ScanDelaySeconds).To(gomega.Equal(60))
			gomega.Expect(rc.EntityID).To(gomega.Equal("site-a"))
			gomega.Expect(rc.EntryExit.Enabled).To(gomega.BeFalse())
		})

		ginkgo.It("should load a persisted config on restart", func() {
			_, err := store.Update(json.RawMessage(`{"scan_delay_seconds":120}`))
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			gomega.Expect(newStore().Get().ScanDelaySeconds).To(gomega.Equal(120))
		})

		ginkgo.It("should fall back to defaults on a corrupt file", func() {
			gomega.Expect(os.WriteFile(path, []byte("not-json"), 0o644)).To(gomega.Succeed())

			gomega.Expect(newStore().Get().ScanDelaySeconds).To(gomega.Equal(60))
		})
	})

	ginkgo.Describe("Update", func() {
		ginkgo.It("should merge partial updates over the current config", func() {
			warning, err := store.Update(json.RawMessage(`{"entry_exit_tracking":{"enabled":true,"min_gap_seconds":120}}`))

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(warning).To(gomega.BeEmpty())

			rc := store.Get()
			gomega.Expect(rc.EntryExit.Enabled).To(gomega.BeTrue())
			gomega.Expect(rc.EntityID).To(gomega.Equal("site-a"))
			gomega.Expect(tuner.trackingOn).To(gomega.BeTrue())
			gomega.Expect(tuner.minGap).To(gomega.Equal(2 * time.Minute))
		})

		ginkgo.It("should persist atomically", func() {
			_, err := store.Update(json.RawMessage(`{"wiegand_timeout_ms":50}`))
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			raw, err := os.ReadFile(path)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			var onDisk Runtime
			gomega.Expect(json.Unmarshal(raw, &onDisk)).To(gomega.Succeed())
			gomega.Expect(onDisk.WiegandTimeoutMS).To(gomega.Equal(50))
		})

		ginkgo.It("should restart the decoders only when wiegand settings change", func() {
			_, err := store.Update(json.RawMessage(`{"scan_delay_seconds":30}`))
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(restarter.calls).To(gomega.BeZero())

			_, err = store.Update(json.RawMessage(`{"wiegand_bits":{"reader_1":34,"reader_2":26,"reader_3":26}}`))
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(restarter.calls).To(gomega.Equal(1))
			gomega.Expect(restarter.bits).To(gomega.Equal([]int{34, 26, 26}))
		})

		ginkgo.It("should keep the persisted config and warn when the restart fails", func() {
			restarter.err = errors.New("lines busy")

			warning, err := store.Update(json.RawMessage(`{"wiegand_timeout_ms":80}`))

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(warning).To(gomega.ContainSubstring("reinit failed"))
			gomega.Expect(store.Get().WiegandTimeoutMS).To(gomega.Equal(80))
			gomega.Expect(newStore().Get().WiegandTimeoutMS).To(gomega.Equal(80))
		})

		ginkgo.Context("validation", func() {
			ginkgo.It("should reject an unsupported width", func() {
				_, err := store.Update(json.RawMessage(`{"wiegand_bits":{"reader_1":32,"reader_2":26,"reader_3":26}}`))

				gomega.Expect(err).To(gomega.HaveOccurred())
				gomega.Expect(store.Get().WiegandBits["reader_1"]).To(gomega.Equal(26))
			})

			ginkgo.It("should reject an out-of-range timeout", func() {
				_, err := store.Update(json.RawMessage(`{"wiegand_timeout_ms":5}`))
				gomega.Expect(err).To(gomega.HaveOccurred())

				_, err = store.Update(json.RawMessage(`{"wiegand_timeout_ms":500}`))
				gomega.Expect(err).To(gomega.HaveOccurred())
			})

			ginkgo.It("should reject an out-of-range scan delay", func() {
				_, err := store.Update(json.RawMessage(`{"scan_delay_seconds":0}`))
				gomega.Expect(err).To(gomega.HaveOccurred())

				_, err = store.Update(json.RawMessage(`{"scan_delay_seconds":301}`))
				gomega.Expect(err).To(gomega.HaveOccurred())
			})

			ginkgo.It("should reject an empty entity id", func() {
				_, err := store.Update(json.RawMessage(`{"entity_id":""}`))
				gomega.Expect(err).To(gomega.HaveOccurred())
			})

			ginkgo.It("should reject malformed JSON without persisting", func() {
				_, err := store.Update(json.RawMessage(`{`))

				gomega.Expect(err).To(gomega.HaveOccurred())
				_, statErr := os.Stat(path)
				gomega.Expect(os.IsNotExist(statErr)).To(gomega.BeTrue())
			})
		})
	})

	ginkgo.Describe("suppliers", func() {
		ginkgo.It("should reflect entity and basic-auth changes live", func() {
			gomega.Expect(store.EntityID()).To(gomega.Equal("site-a"))
			gomega.Expect(store.BasicAuthEnabled()).To(gomega.BeFalse())

			_, err := store.Update(json.RawMessage(`{"entity_id":"site-b","basic_auth_enabled":true}`))
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			gomega.Expect(store.EntityID()).To(gomega.Equal("site-b"))
			gomega.Expect(store.BasicAuthEnabled()).To(gomega.BeTrue())
		})
	})
})
