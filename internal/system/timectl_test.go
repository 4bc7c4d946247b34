package system

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"github.com/maxpark/access-controller/internal"
)

func TestSystem(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "System Module Suite")
}

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type execCall struct {
	name string
	args []string
}

var _ = ginkgo.Describe("TimeControl", func() {
	var (
		tc       *TimeControl
		calls    []execCall
		tools    map[string]bool
		failWith map[string]error
	)

	ginkgo.BeforeEach(func() {
		calls = nil
		tools = map[string]bool{"timedatectl": true, "date": true}
		failWith = map[string]error{}

		tc = NewTimeControl(testLogger)
		tc.lookPath = func(name string) (string, error) {
			if tools[name] {
				return "/usr/bin/" + name, nil
			}
			return "", errors.New("not found")
		}
		tc.runner = func(ctx context.Context, name string, args ...string) ([]byte, error) {
			calls = append(calls, execCall{name: name, args: args})
			if err := failWith[name]; err != nil {
				return []byte("simulated failure"), err
			}
			return nil, nil
		}
	})

	ginkgo.Describe("SetSystemTime", func() {
		ginkgo.It("should prefer timedatectl", func() {
			applied, err := tc.SetSystemTime(time.Date(2026, 8, 24, 15, 4, 5, 0, time.Local).Unix())

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(applied).To(gomega.Equal("2026-08-24 15:04:05"))
			gomega.Expect(calls).To(gomega.HaveLen(1))
			gomega.Expect(calls[0].name).To(gomega.Equal("timedatectl"))
			gomega.Expect(calls[0].args).To(gomega.Equal([]string{"set-time", "2026-08-24 15:04:05"}))
		})

		ginkgo.It("should fall back to date when timedatectl fails", func() {
			failWith["timedatectl"] = errors.New("exit status 1")

			_, err := tc.SetSystemTime(time.Now().Unix())

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(calls).To(gomega.HaveLen(2))
			gomega.Expect(calls[1].name).To(gomega.Equal("date"))
			gomega.Expect(calls[1].args[0]).To(gomega.Equal("-s"))
		})

		ginkgo.It("should report the feature unavailable without either tool", func() {
			tools["timedatectl"] = false
			tools["date"] = false

			_, err := tc.SetSystemTime(time.Now().Unix())

			appErr, ok := internal.IsAppError(err)
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(appErr.StatusCode).To(gomega.Equal(501))
		})

		ginkgo.It("should surface a failure from both tools", func() {
			failWith["timedatectl"] = errors.New("exit status 1")
			failWith["date"] = errors.New("exit status 1")

			_, err := tc.SetSystemTime(time.Now().Unix())

			gomega.Expect(err).To(gomega.HaveOccurred())
			appErr, ok := internal.IsAppError(err)
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(appErr.StatusCode).To(gomega.Equal(500))
		})
	})

	ginkgo.Describe("EnableNTP", func() {
		ginkgo.It("should toggle ntp on and off", func() {
			gomega.Expect(tc.EnableNTP(true)).To(gomega.Succeed())
			gomega.Expect(tc.EnableNTP(false)).To(gomega.Succeed())

			gomega.Expect(calls[0].args).To(gomega.Equal([]string{"set-ntp", "true"}))
			gomega.Expect(calls[1].args).To(gomega.Equal([]string{"set-ntp", "false"}))
		})

		ginkgo.It("should report unavailable without timedatectl", func() {
			tools["timedatectl"] = false

			err := tc.EnableNTP(true)

			appErr, ok := internal.IsAppError(err)
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(appErr.StatusCode).To(gomega.Equal(501))
		})
	})
})

var _ = ginkgo.Describe("Monitor", func() {
	ginkgo.It("should report the remote down when no check is configured", func() {
		m := NewMonitor(nil, testLogger)

		gomega.Expect(m.RemoteOK()).To(gomega.BeFalse())
	})

	ginkgo.It("should cache the remote probe result", func() {
		probes := 0
		m := NewMonitor(func(ctx context.Context) error {
			probes++
			return nil
		}, testLogger)

		gomega.Expect(m.RemoteOK()).To(gomega.BeTrue())
		gomega.Expect(m.RemoteOK()).To(gomega.BeTrue())
		gomega.Expect(probes).To(gomega.Equal(1))
	})

	ginkgo.It("should report a failing remote check", func() {
		m := NewMonitor(func(ctx context.Context) error {
			return errors.New("connection refused")
		}, testLogger)

		gomega.Expect(m.RemoteOK()).To(gomega.BeFalse())
	})
})
