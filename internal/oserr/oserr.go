package oserr

import (
	"errors"
	"fmt"
)

// Status codes produced by the transports. Negative values follow the
// classic OS status convention.
const (
	CodeIOError          = -36
	CodeProcNotFound     = -600
	CodeDescNotFound     = -1701
	CodeEventNotHandled  = -1708
	CodeTimeout          = -1712
	CodeConnectionFailed = -609
)

// OSError is a raw, untranslated status returned by a transport call.
type OSError struct {
	Op   string
	Code int
	Err  error
}

func New(op string, code int, err error) *OSError {
	return &OSError{Op: op, Code: code, Err: err}
}

func (e *OSError) Error() string {
	msg := fmt.Sprintf("OS error %d", e.Code)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *OSError) Unwrap() error { return e.Err }

// CodeOf extracts the status code from err, if it carries one.
func CodeOf(err error) (int, bool) {
	var oe *OSError
	if errors.As(err, &oe) {
		return oe.Code, true
	}
	var ce *CantLaunchApplicationError
	if errors.As(err, &ce) {
		return ce.Code, true
	}
	return 0, false
}

// IsProcNotFound reports whether err is the "no such process" status.
func IsProcNotFound(err error) bool {
	var oe *OSError
	return errors.As(err, &oe) && oe.Code == CodeProcNotFound
}
