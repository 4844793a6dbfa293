package device

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// ErrReadTimeout marks a device read that exceeded the configured timeout.
// It is absorbed as a read failure at the stalled sector, never surfaced as
// a run-fatal error.
var ErrReadTimeout = errors.New("device read timed out")

// ErrDeviceGone marks a medium that stopped responding entirely. It is fatal
// to the run; the repair map stays persisted for resumption.
var ErrDeviceGone = errors.New("device no longer available")

// GoneError wraps the underlying errno when a device disappears mid-run.
type GoneError struct {
	Path string
	Err  error
}

func (e *GoneError) Error() string {
	return fmt.Sprintf("device %s no longer available: %v", e.Path, e.Err)
}

func (e *GoneError) Unwrap() error { return e.Err }

func (e *GoneError) Is(target error) bool { return target == ErrDeviceGone }

// ErrorKind classifies the error for failure reporting.
func (e *GoneError) ErrorKind() string { return "device" }

// isFatalReadError distinguishes a vanished device from an ordinary bad
// sector. EIO is the medium telling us a sector is unreadable; the errnos
// below mean there is no medium to talk to anymore.
func isFatalReadError(err error) bool {
	return errors.Is(err, unix.ENODEV) ||
		errors.Is(err, unix.ENXIO) ||
		errors.Is(err, unix.ENOMEDIUM) ||
		errors.Is(err, unix.EBADF)
}
