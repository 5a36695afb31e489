package guard

import (
	"fmt"
	"time"
)

type State int

const (
	StateClosed   State = iota // Below the failure threshold
	StateOpen                  // Blocked until the window elapses
	StateReopened              // Threshold reached, window elapsed
	StateProbing               // Reopened with a probe in flight
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateReopened:
		return "REOPENED"
	case StateProbing:
		return "PROBING"
	default:
		return "UNKNOWN"
	}
}

func (s State) MarshalText() ([]byte, error) {
	if s < StateClosed || s > StateProbing {
		return nil, fmt.Errorf("guard: unknown state %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for candidate := StateClosed; candidate <= StateProbing; candidate++ {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("guard: unknown state %q", text)
}

// entry is the per-key record. An absent entry is the zero state.
type entry struct {
	key          string
	failures     int
	blockedUntil time.Time
	probeUntil   time.Time
	updatedAt    time.Time
}

func (e *entry) state(now time.Time, threshold int) State {
	if e == nil {
		return StateClosed
	}

	if !e.blockedUntil.IsZero() && now.Before(e.blockedUntil) {
		return StateOpen
	}

	if e.failures < threshold {
		return StateClosed
	}

	if !e.probeUntil.IsZero() && now.Before(e.probeUntil) {
		return StateProbing
	}

	return StateReopened
}

func (e *entry) retryAfter(now time.Time) time.Duration {
	if e == nil || e.blockedUntil.IsZero() || !now.Before(e.blockedUntil) {
		return 0
	}
	return e.blockedUntil.Sub(now)
}

// Status is a point-in-time view of one key.
type Status struct {
	Key                 string        `json:"key"`
	State               State         `json:"state"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	BlockedUntil        time.Time     `json:"blocked_until"`
	RetryAfter          time.Duration `json:"retry_after"`
}

func (e *entry) status(key string, now time.Time, threshold int) Status {
	st := Status{
		Key:        key,
		State:      e.state(now, threshold),
		RetryAfter: e.retryAfter(now),
	}

	if e != nil {
		st.ConsecutiveFailures = e.failures
		st.BlockedUntil = e.blockedUntil
	}

	return st
}
