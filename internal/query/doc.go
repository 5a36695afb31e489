// Package query runs guarded operations on behalf of callers.
//
// It owns the consumer side of the guard contract: ask the guard before the
// attempt, skip the attempt when the key is blocked, and report exactly one
// outcome for every attempt that actually ran.
package query
