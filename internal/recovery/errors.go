package recovery

import (
	"context"
	"errors"
)

// Error kinds reported for fatal recovery failures.
const (
	KindCancelled = "cancelled"
	KindUnknown   = "unknown"
)

// ErrorKind buckets a fatal recovery error for user-facing reporting. Typed
// errors (device gone, state violations) carry their own kind; cancellation
// is recognized directly.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	var kinder interface{ ErrorKind() string }
	if errors.As(err, &kinder) {
		return kinder.ErrorKind()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	return KindUnknown
}
