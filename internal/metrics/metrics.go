package metrics

import (
	"sort"
	"sync"
	"time"
)

const maxResponseSamples = 1000

type Metrics struct {
	mutex         sync.RWMutex
	events        map[string]int64
	responseTimes []time.Duration
	statusCodes   map[int]int64
	responses     int64
	startTime     time.Time
}

type Snapshot struct {
	Uptime        time.Duration    `json:"uptime"`
	Events        map[string]int64 `json:"events"`
	DroppedEvents int64            `json:"dropped_events"`
	Upstream      UpstreamMetrics  `json:"upstream"`
}

type UpstreamMetrics struct {
	Responses   int64         `json:"responses"`
	AvgResponse time.Duration `json:"avg_response"`
	P50Response time.Duration `json:"p50_response"`
	P95Response time.Duration `json:"p95_response"`
	P99Response time.Duration `json:"p99_response"`
	StatusCodes map[int]int64 `json:"status_codes"`
}

func NewMetrics() *Metrics {
	return &Metrics{
		events:      make(map[string]int64),
		statusCodes: make(map[int]int64),
		startTime:   time.Now(),
	}
}

func (m *Metrics) IncrementEvent(eventType string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.events[eventType]++
}

func (m *Metrics) RecordResponse(duration time.Duration, statusCode int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.responses++
	m.statusCodes[statusCode]++

	m.responseTimes = append(m.responseTimes, duration)
	if len(m.responseTimes) > maxResponseSamples {
		m.responseTimes = m.responseTimes[1:]
	}
}

func (m *Metrics) Snapshot() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Uptime: time.Since(m.startTime),
		Events: make(map[string]int64, len(m.events)),
		Upstream: UpstreamMetrics{
			Responses:   m.responses,
			StatusCodes: make(map[int]int64, len(m.statusCodes)),
		},
	}

	for k, v := range m.events {
		snap.Events[k] = v
	}
	for k, v := range m.statusCodes {
		snap.Upstream.StatusCodes[k] = v
	}

	if len(m.responseTimes) > 0 {
		sorted := make([]time.Duration, len(m.responseTimes))
		copy(sorted, m.responseTimes)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i] < sorted[j]
		})

		snap.Upstream.AvgResponse = average(sorted)
		snap.Upstream.P50Response = percentile(sorted, 0.50)
		snap.Upstream.P95Response = percentile(sorted, 0.95)
		snap.Upstream.P99Response = percentile(sorted, 0.99)
	}

	return snap
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
