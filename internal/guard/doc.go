// Package guard tracks consecutive failures per logical query key and blocks
// a key for a fixed window once it fails too often in a row.
//
// The guard never performs the guarded operation. Callers ask it whether an
// attempt is allowed and report the outcome back:
//
//	g := guard.New(guard.WithFailureThreshold(3), guard.WithBlockDuration(30*time.Second))
//	key := guard.Key{"games", "search", map[string]any{"q": "zelda"}}
//	if g.Classify(key) {
//	    // blocked: fail fast, do not call the backend
//	}
//	if err := fetch(); err != nil {
//	    g.RecordFailure(key)
//	} else {
//	    g.RecordSuccess(key)
//	}
//
// A key moves through three states:
//
//   - CLOSED: fewer consecutive failures than the threshold
//   - OPEN: threshold reached and the block window has not elapsed
//   - REOPENED: threshold reached but the window elapsed; calls are let through
//     again and the next failure re-opens the block for a full window
//
// With WithHalfOpenProbe enabled a REOPENED key admits a single caller through
// Admit and reports PROBING to everyone else until that caller reports back.
package guard
