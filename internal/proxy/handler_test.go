package proxy_test

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/querygate/internal/guard"
	"github.com/angeloszaimis/querygate/internal/proxy"
	"github.com/angeloszaimis/querygate/internal/query"
)

type responseLog struct {
	mutex    sync.Mutex
	statuses []int
}

func (l *responseLog) RecordResponse(key string, duration time.Duration, statusCode int) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.statuses = append(l.statuses, statusCode)
}

func (l *responseLog) Statuses() []int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return append([]int(nil), l.statuses...)
}

var _ = Describe("Handler", func() {
	var (
		status   atomic.Int32
		hits     atomic.Int32
		server   *httptest.Server
		upstream *proxy.Upstream
		clock    *guard.ManualClock
		g        *guard.Guard
		recorder *responseLog
		h        *proxy.Handler
	)

	serve := func(target string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		return rec
	}

	BeforeEach(func() {
		status.Store(http.StatusOK)
		hits.Store(0)

		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.Header().Set("X-Seen-Request-ID", r.Header.Get(proxy.RequestIDHeader))
			w.WriteHeader(int(status.Load()))
			_, _ = w.Write([]byte("upstream"))
		}))

		log := slog.New(slog.DiscardHandler)
		clock = guard.NewManualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
		g = guard.New(guard.WithClock(clock))
		upstream = proxy.NewUpstream(mustParseURL(server.URL), log)
		recorder = &responseLog{}
		h = proxy.NewHandler(log, upstream, query.NewExecutor(g), recorder)
	})

	AfterEach(func() {
		server.Close()
	})

	It("should forward requests to the upstream", func() {
		rec := serve("/reports")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(Equal("upstream"))
		Expect(recorder.Statuses()).To(Equal([]int{http.StatusOK}))
		Expect(upstream.EWMATime()).To(BeNumerically(">", 0))
	})

	Describe("request IDs", func() {
		It("should generate one when missing and pass it upstream", func() {
			rec := serve("/reports")

			id := rec.Header().Get(proxy.RequestIDHeader)
			Expect(id).To(HaveLen(36))
			Expect(rec.Header().Get("X-Seen-Request-ID")).To(Equal(id))
		})

		It("should keep a caller supplied ID", func() {
			req := httptest.NewRequest(http.MethodGet, "/reports", nil)
			req.Header.Set(proxy.RequestIDHeader, "abc-123")
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, req)

			Expect(rec.Header().Get(proxy.RequestIDHeader)).To(Equal("abc-123"))
		})
	})

	Describe("failure accounting", func() {
		It("should count 5xx responses as failures", func() {
			status.Store(http.StatusInternalServerError)
			serve("/reports")

			Expect(g.Inspect(proxy.RequestKey(httptest.NewRequest(http.MethodGet, "/reports", nil))).ConsecutiveFailures).To(Equal(1))
		})

		It("should count 4xx responses as successes", func() {
			status.Store(http.StatusInternalServerError)
			serve("/reports")
			status.Store(http.StatusNotFound)
			rec := serve("/reports")

			Expect(rec.Code).To(Equal(http.StatusNotFound))
			Expect(g.Len()).To(BeZero())
		})

		It("should count transport errors as failures", func() {
			server.Close()
			rec := serve("/reports")

			Expect(rec.Code).To(Equal(http.StatusBadGateway))
			Expect(g.Len()).To(Equal(1))
		})
	})

	Describe("blocked queries", func() {
		BeforeEach(func() {
			status.Store(http.StatusInternalServerError)
			for range 3 {
				serve("/reports?region=eu")
			}
			hits.Store(0)
		})

		It("should answer 503 without contacting the upstream", func() {
			rec := serve("/reports?region=eu")

			Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
			Expect(rec.Header().Get("Retry-After")).To(Equal("30"))
			Expect(hits.Load()).To(BeZero())

			var body map[string]any
			Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
			Expect(body).To(HaveKeyWithValue("error", "temporarily_unavailable"))
			Expect(body).To(HaveKeyWithValue("message", "too many recent failures, try again in 30 seconds"))
			Expect(body).To(HaveKeyWithValue("retry_after_seconds", 30.0))
		})

		It("should return the same answer for every call in the window", func() {
			first := serve("/reports?region=eu")
			second := serve("/reports?region=eu")

			Expect(second.Code).To(Equal(first.Code))
			Expect(second.Body.String()).To(Equal(first.Body.String()))
		})

		It("should count the remaining window down", func() {
			clock.Advance(20 * time.Second)
			rec := serve("/reports?region=eu")

			Expect(rec.Header().Get("Retry-After")).To(Equal("10"))
		})

		It("should not affect other queries", func() {
			status.Store(http.StatusOK)
			rec := serve("/reports?region=us")

			Expect(rec.Code).To(Equal(http.StatusOK))
		})

		It("should retry the upstream once the window elapses", func() {
			clock.Advance(31 * time.Second)
			status.Store(http.StatusOK)

			rec := serve("/reports?region=eu")

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(hits.Load()).To(Equal(int32(1)))
			Expect(g.Len()).To(BeZero())
		})
	})

	Context("with an unhealthy upstream", func() {
		It("should return 503 without recording a failure", func() {
			upstream.SetHealthy(false)
			rec := serve("/reports")

			Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
			Expect(hits.Load()).To(BeZero())
			Expect(g.Len()).To(BeZero())
		})
	})
})
