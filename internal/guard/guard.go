package guard

import (
	"container/list"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Guard is a keyed failure table. All methods are safe for concurrent use;
// every read-modify-write of an entry happens under one mutex, so concurrent
// RecordFailure calls never lose increments.
type Guard struct {
	mutex   sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front is the most recently updated entry
	opts    options
}

func New(opts ...Option) *Guard {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &Guard{
		entries: make(map[string]*list.Element),
		order:   list.New(),
		opts:    o,
	}
}

func (g *Guard) FailureThreshold() int {
	return g.opts.failureThreshold
}

func (g *Guard) BlockDuration() time.Duration {
	return g.opts.blockDuration
}

// Classify reports whether key is currently blocked. It never mutates state:
// once the block window elapses it returns false regardless of the stored
// failure count.
func (g *Guard) Classify(key any) bool {
	k := mustCanonicalize(key)

	g.mutex.Lock()
	defer g.mutex.Unlock()

	return g.lookup(k).state(g.opts.clock.Now(), g.opts.failureThreshold) == StateOpen
}

// Admit is the gate used by callers that are about to attempt the operation.
// Without half-open probing it is the negation of Classify. With probing, a
// reopened key admits exactly one caller and refuses the rest until that
// caller reports an outcome or its lease runs out.
func (g *Guard) Admit(key any) bool {
	k := mustCanonicalize(key)

	g.mutex.Lock()
	now := g.opts.clock.Now()
	e := g.lookup(k)

	var (
		allowed bool
		ev      *Event
	)

	switch e.state(now, g.opts.failureThreshold) {
	case StateOpen, StateProbing:
		ev = &Event{Type: EventRejected, Key: k, Failures: e.failures, BlockedUntil: e.blockedUntil, At: now}
	case StateReopened:
		allowed = true
		if g.opts.halfOpenProbe {
			e.probeUntil = now.Add(g.opts.blockDuration)
			ev = &Event{Type: EventProbeAdmitted, Key: k, Failures: e.failures, At: now}
		}
	default:
		allowed = true
	}
	g.mutex.Unlock()

	if ev != nil {
		g.emit(*ev)
	}

	return allowed
}

// RecordFailure counts one more consecutive failure for key. Reaching the
// threshold, or failing again past it, blocks the key for a full window
// starting now.
func (g *Guard) RecordFailure(key any) {
	k := mustCanonicalize(key)

	g.mutex.Lock()
	now := g.opts.clock.Now()

	el, exists := g.entries[k]
	var evicted []Event
	if exists {
		g.order.MoveToFront(el)
	} else {
		el = g.order.PushFront(&entry{key: k})
		g.entries[k] = el
		evicted = g.evictLocked(now)
	}

	e := el.Value.(*entry)
	e.failures++
	e.probeUntil = time.Time{}
	e.updatedAt = now

	tripped := e.failures >= g.opts.failureThreshold
	if tripped {
		e.blockedUntil = now.Add(g.opts.blockDuration)
	}

	failures, blockedUntil := e.failures, e.blockedUntil
	g.mutex.Unlock()

	for _, ev := range evicted {
		g.emit(ev)
	}

	g.emit(Event{Type: EventFailureRecorded, Key: k, Failures: failures, BlockedUntil: blockedUntil, At: now})

	if tripped {
		g.opts.logger.Warn("query key blocked",
			slog.String("key", k),
			slog.Int("consecutive_failures", failures),
			slog.Time("blocked_until", blockedUntil))
		g.emit(Event{Type: EventTripped, Key: k, Failures: failures, BlockedUntil: blockedUntil, At: now})
	}
}

// RecordSuccess clears all history for key, whatever state it was in.
func (g *Guard) RecordSuccess(key any) {
	k := mustCanonicalize(key)

	g.mutex.Lock()
	now := g.opts.clock.Now()
	prior := 0
	if el, exists := g.entries[k]; exists {
		prior = el.Value.(*entry).failures
		g.removeLocked(el)
	}
	g.mutex.Unlock()

	if prior >= g.opts.failureThreshold {
		g.opts.logger.Info("query key recovered",
			slog.String("key", k),
			slog.Int("previous_failures", prior))
	}

	g.emit(Event{Type: EventSuccessRecorded, Key: k, Failures: prior, At: now})
}

func (g *Guard) State(key any) State {
	return g.Inspect(key).State
}

func (g *Guard) Inspect(key any) Status {
	k := mustCanonicalize(key)

	g.mutex.Lock()
	defer g.mutex.Unlock()

	return g.lookup(k).status(k, g.opts.clock.Now(), g.opts.failureThreshold)
}

// RetryAfter returns how long key stays blocked, or 0 when it is not blocked.
func (g *Guard) RetryAfter(key any) time.Duration {
	return g.Inspect(key).RetryAfter
}

// Stats returns the status of every tracked key, sorted by key.
func (g *Guard) Stats() []Status {
	g.mutex.Lock()
	now := g.opts.clock.Now()
	stats := make([]Status, 0, len(g.entries))
	for k, el := range g.entries {
		stats = append(stats, el.Value.(*entry).status(k, now, g.opts.failureThreshold))
	}
	g.mutex.Unlock()

	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Key < stats[j].Key
	})

	return stats
}

// Lookup returns the status of an already canonicalized key.
func (g *Guard) Lookup(canonical string) (Status, bool) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	el, exists := g.entries[canonical]
	if !exists {
		return Status{}, false
	}
	return el.Value.(*entry).status(canonical, g.opts.clock.Now(), g.opts.failureThreshold), true
}

func (g *Guard) Len() int {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return len(g.entries)
}

func (g *Guard) Reset() {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	g.entries = make(map[string]*list.Element)
	g.order.Init()
}

// Forget drops the entry for an already canonicalized key, with the same
// effect as a recorded success.
func (g *Guard) Forget(canonical string) bool {
	g.mutex.Lock()
	now := g.opts.clock.Now()
	el, exists := g.entries[canonical]
	failures := 0
	if exists {
		failures = el.Value.(*entry).failures
		g.removeLocked(el)
	}
	g.mutex.Unlock()

	if exists {
		g.emit(Event{Type: EventForgotten, Key: canonical, Failures: failures, At: now})
	}

	return exists
}

// Sweep removes entries that carry no information: zero failures, or, when an
// idle TTL is configured, entries that are not blocked or probing and have not
// been updated within the TTL. It returns the number of entries removed.
func (g *Guard) Sweep() int {
	g.mutex.Lock()
	now := g.opts.clock.Now()

	var swept []Event
	for el := g.order.Back(); el != nil; {
		prev := el.Prev()
		e := el.Value.(*entry)

		if e.failures == 0 || g.idleLocked(e, now) {
			swept = append(swept, Event{Type: EventSwept, Key: e.key, Failures: e.failures, At: now})
			g.removeLocked(el)
		}

		el = prev
	}
	g.mutex.Unlock()

	for _, ev := range swept {
		g.emit(ev)
	}

	return len(swept)
}

func (g *Guard) idleLocked(e *entry, now time.Time) bool {
	if g.opts.idleTTL <= 0 {
		return false
	}

	switch e.state(now, g.opts.failureThreshold) {
	case StateOpen, StateProbing:
		return false
	}

	return now.Sub(e.updatedAt) >= g.opts.idleTTL
}

func (g *Guard) lookup(k string) *entry {
	if el, exists := g.entries[k]; exists {
		return el.Value.(*entry)
	}
	return nil
}

func (g *Guard) removeLocked(el *list.Element) {
	e := g.order.Remove(el).(*entry)
	delete(g.entries, e.key)
}

// evictLocked trims the table to maxEntries, dropping the least recently
// updated entry that is not blocked. Blocked entries go only when nothing else
// is left. The front entry is the one being inserted and is never chosen.
func (g *Guard) evictLocked(now time.Time) []Event {
	if g.opts.maxEntries <= 0 {
		return nil
	}

	var evicted []Event
	for g.order.Len() > g.opts.maxEntries {
		var victim *list.Element
		for el := g.order.Back(); el != nil && el != g.order.Front(); el = el.Prev() {
			if el.Value.(*entry).state(now, g.opts.failureThreshold) != StateOpen {
				victim = el
				break
			}
		}
		if victim == nil {
			victim = g.order.Back()
		}

		e := victim.Value.(*entry)
		evicted = append(evicted, Event{Type: EventEvicted, Key: e.key, Failures: e.failures, BlockedUntil: e.blockedUntil, At: now})
		g.removeLocked(victim)
	}

	return evicted
}

func (g *Guard) emit(ev Event) {
	if g.opts.observer != nil {
		g.opts.observer.Observe(ev)
	}
}
