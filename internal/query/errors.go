package query

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrTemporarilyUnavailable marks an operation that was not attempted because
// its key failed too often recently.
var ErrTemporarilyUnavailable = errors.New("temporarily unavailable")

// UnavailableError is returned instead of calling a blocked operation.
type UnavailableError struct {
	Key        string
	RetryAfter time.Duration
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("too many recent failures, try again in %d seconds", e.RetrySeconds())
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrTemporarilyUnavailable
}

// RetrySeconds rounds RetryAfter up to whole seconds, never below one.
func (e *UnavailableError) RetrySeconds() int {
	secs := int(math.Ceil(e.RetryAfter.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// IsUnavailable reports whether err was produced by a blocked key.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrTemporarilyUnavailable)
}
