package wiegand

import (
	"io"
	"log/slog"
	"math/bits"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"github.com/maxpark/access-controller/internal/hw"
)

func TestWiegand(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Wiegand Module Suite")
}

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// buildFrame wraps data bits in valid parity for the given width.
func buildFrame(width int, data uint64) uint64 {
	half := (width - 2) / 2
	firstHalf := data >> half
	secondHalf := data & ((1 << half) - 1)
	leading := uint64(bits.OnesCount64(firstHalf)) % 2
	trailing := (uint64(bits.OnesCount64(secondHalf)) + 1) % 2
	return leading<<(width-1) | data<<1 | trailing
}

// scanRecorder collects decoded scans.
type scanRecorder struct {
	mu    sync.Mutex
	cards []string
}

func (s *scanRecorder) record(card string, reader int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cards = append(s.cards, card)
}

func (s *scanRecorder) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.cards...)
}

var _ = ginkgo.Describe("ExtractCard", func() {
	ginkgo.Context("with valid frames", func() {
		ginkgo.It("should decode a 26-bit frame", func() {
			frame := buildFrame(26, 12345678)

			card, err := ExtractCard(26, frame)

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(card).To(gomega.Equal("12345678"))
		})

		ginkgo.It("should decode a 34-bit frame", func() {
			frame := buildFrame(34, 4123456789)

			card, err := ExtractCard(34, frame)

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(card).To(gomega.Equal("4123456789"))
		})

		ginkgo.It("should decode the all-zero card", func() {
			// 24 zero data bits: even parity 0, odd parity 1.
			card, err := ExtractCard(26, buildFrame(26, 0))

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(card).To(gomega.Equal("0"))
		})
	})

	ginkgo.Context("with corrupted frames", func() {
		ginkgo.It("should reject a flipped leading parity bit", func() {
			frame := buildFrame(26, 12345678) ^ (1 << 25)

			_, err := ExtractCard(26, frame)

			gomega.Expect(err).To(gomega.HaveOccurred())
		})

		ginkgo.It("should reject a flipped trailing parity bit", func() {
			frame := buildFrame(26, 12345678) ^ 1

			_, err := ExtractCard(26, frame)

			gomega.Expect(err).To(gomega.HaveOccurred())
		})

		ginkgo.It("should reject a flipped data bit", func() {
			frame := buildFrame(26, 12345678) ^ (1 << 5)

			_, err := ExtractCard(26, frame)

			gomega.Expect(err).To(gomega.HaveOccurred())
		})

		ginkgo.It("should reject unsupported widths", func() {
			_, err := ExtractCard(32, 0)

			gomega.Expect(err).To(gomega.HaveOccurred())
		})
	})
})

var _ = ginkgo.Describe("Decoder", func() {
	var (
		chip     *hw.MemoryChip
		recorder *scanRecorder
		decoder  *Decoder
		base     time.Time
	)

	const (
		d0Pin = 18
		d1Pin = 23
	)

	fireFrame := func(width int, frame uint64, start time.Time, gap time.Duration) {
		for pos := 0; pos < width; pos++ {
			bit := (frame >> (width - 1 - pos)) & 1
			pin := d0Pin
			if bit == 1 {
				pin = d1Pin
			}
			chip.Fire(pin, start.Add(time.Duration(pos)*gap))
		}
	}

	ginkgo.BeforeEach(func() {
		chip = hw.NewMemoryChip()
		recorder = &scanRecorder{}
		base = time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)

		var err error
		decoder, err = NewDecoder(chip, 1, d0Pin, d1Pin, 26, 25*time.Millisecond, recorder.record, testLogger)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
	})

	ginkgo.AfterEach(func() {
		decoder.Close()
	})

	ginkgo.It("should emit the card once the frame completes", func() {
		fireFrame(26, buildFrame(26, 12345678), base, time.Millisecond)

		gomega.Expect(recorder.all()).To(gomega.Equal([]string{"12345678"}))
	})

	ginkgo.It("should discard a stale partial frame after the timeout", func() {
		// Five orphan pulses, then a complete frame well past the timeout.
		for i := 0; i < 5; i++ {
			chip.Fire(d1Pin, base.Add(time.Duration(i)*time.Millisecond))
		}
		fireFrame(26, buildFrame(26, 12345678), base.Add(time.Second), time.Millisecond)

		gomega.Expect(recorder.all()).To(gomega.Equal([]string{"12345678"}))
	})

	ginkgo.It("should drop a frame with broken parity", func() {
		fireFrame(26, buildFrame(26, 12345678)^(1<<5), base, time.Millisecond)

		gomega.Expect(recorder.all()).To(gomega.BeEmpty())
	})

	ginkgo.It("should reject unsupported frame widths at construction", func() {
		_, err := NewDecoder(chip, 2, 19, 24, 32, 25*time.Millisecond, recorder.record, testLogger)

		gomega.Expect(err).To(gomega.HaveOccurred())
	})
})

var _ = ginkgo.Describe("Manager", func() {
	var (
		chip     *hw.MemoryChip
		recorder *scanRecorder
		manager  *Manager
	)

	ginkgo.BeforeEach(func() {
		chip = hw.NewMemoryChip()
		recorder = &scanRecorder{}
		manager = NewManager(chip, []ReaderPins{{D0: 18, D1: 23}, {D0: 19, D1: 24}}, recorder.record, testLogger)
	})

	ginkgo.AfterEach(func() {
		manager.Stop()
	})

	ginkgo.It("should start decoders for every reader", func() {
		err := manager.Start([]int{26, 26}, 25*time.Millisecond)

		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(manager.Running()).To(gomega.BeTrue())
	})

	ginkgo.It("should release the lines on stop", func() {
		gomega.Expect(manager.Start([]int{26, 26}, 25*time.Millisecond)).To(gomega.Succeed())

		manager.Stop()

		gomega.Expect(manager.Running()).To(gomega.BeFalse())
		// Lines are free again for a fresh start.
		gomega.Expect(manager.Start([]int{34, 34}, 25*time.Millisecond)).To(gomega.Succeed())
	})

	ginkgo.It("should apply new widths on restart", func() {
		gomega.Expect(manager.Start([]int{26, 26}, 25*time.Millisecond)).To(gomega.Succeed())

		err := manager.Restart([]int{34, 26}, 50*time.Millisecond)

		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(manager.Running()).To(gomega.BeTrue())

		// The first reader now needs 34 bits; a full 34-bit frame decodes.
		frame := buildFrame(34, 4123456789)
		base := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
		for pos := 0; pos < 34; pos++ {
			bit := (frame >> (34 - 1 - pos)) & 1
			pin := 18
			if bit == 1 {
				pin = 23
			}
			chip.Fire(pin, base.Add(time.Duration(pos)*time.Millisecond))
		}
		gomega.Expect(recorder.all()).To(gomega.ContainElement(strconv.FormatUint(4123456789, 10)))
	})

	ginkgo.It("should reject an invalid width without leaving lines claimed", func() {
		err := manager.Start([]int{26, 19}, 25*time.Millisecond)

		gomega.Expect(err).To(gomega.HaveOccurred())
		gomega.Expect(manager.Running()).To(gomega.BeFalse())
		gomega.Expect(manager.Start([]int{26, 26}, 25*time.Millisecond)).To(gomega.Succeed())
	})
})
