package metrics_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angeloszaimis/querygate/internal/guard"
	"github.com/angeloszaimis/querygate/internal/metrics"
)

var _ = Describe("Collector", func() {
	var (
		collector *metrics.Collector
		ctx       context.Context
		cancel    context.CancelFunc
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		collector = metrics.NewCollector(100, slog.New(slog.DiscardHandler))
		collector.Start(ctx)
	})

	AfterEach(func() {
		cancel()
	})

	It("should count guard events observed from a guard", func() {
		g := guard.New(guard.WithObserver(collector))
		for range 3 {
			g.RecordFailure("report")
		}

		Eventually(func() map[string]int64 {
			return collector.Snapshot().Events
		}).Should(And(
			HaveKeyWithValue(string(guard.EventFailureRecorded), int64(3)),
			HaveKeyWithValue(string(guard.EventTripped), int64(1)),
		))
	})

	It("should record upstream responses", func() {
		collector.RecordResponse(`["GET","/orders"]`, 20*time.Millisecond, 200)
		collector.RecordResponse(`["GET","/orders"]`, 40*time.Millisecond, 503)

		Eventually(func() int64 {
			return collector.Snapshot().Upstream.Responses
		}).Should(Equal(int64(2)))
		Expect(collector.Snapshot().Upstream.StatusCodes).To(HaveKeyWithValue(503, int64(1)))
	})

	It("should drop events instead of blocking when the buffer is full", func() {
		idle := metrics.NewCollector(1, slog.New(slog.DiscardHandler))
		idle.Emit(metrics.MetricEvent{Type: "tripped"})
		idle.Emit(metrics.MetricEvent{Type: "tripped"})
		idle.Emit(metrics.MetricEvent{Type: "tripped"})

		Expect(idle.Snapshot().DroppedEvents).To(Equal(int64(2)))
	})

	It("should drain pending events on shutdown", func() {
		idle := metrics.NewCollector(10, slog.New(slog.DiscardHandler))
		for range 5 {
			idle.Emit(metrics.MetricEvent{Type: "rejected"})
		}

		stopped, stop := context.WithCancel(context.Background())
		stop()
		idle.Start(stopped)

		Eventually(func() map[string]int64 {
			return idle.Snapshot().Events
		}).Should(HaveKeyWithValue("rejected", int64(5)))
	})

	It("should serve the snapshot as JSON", func() {
		collector.Emit(metrics.MetricEvent{Type: "tripped"})
		Eventually(func() int {
			return len(collector.Snapshot().Events)
		}).Should(Equal(1))

		rec := httptest.NewRecorder()
		collector.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Header().Get("Content-Type")).To(Equal("application/json"))

		var body map[string]any
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		Expect(body).To(HaveKey("events"))
		Expect(body).To(HaveKey("upstream"))
	})
})

var _ = Describe("RegisterTableSize", func() {
	It("should expose the tracked key count and tolerate re-registration", func() {
		reg := prometheus.NewRegistry()
		size := 0

		Expect(metrics.RegisterTableSize(reg, func() int { return size })).To(Succeed())
		Expect(metrics.RegisterTableSize(reg, func() int { return size })).To(Succeed())

		size = 7
		families, err := reg.Gather()
		Expect(err).NotTo(HaveOccurred())
		Expect(families).To(HaveLen(1))
		Expect(families[0].GetName()).To(Equal("querygate_guard_tracked_keys"))
		Expect(families[0].GetMetric()[0].GetGauge().GetValue()).To(Equal(7.0))
	})
})
