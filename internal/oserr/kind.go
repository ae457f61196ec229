package oserr

import "errors"

// Kinds classify errors carried across the HTTP API.
const (
	KindNotRunning = "not_running"
	KindCantLaunch = "cant_launch"
	KindOSError    = "os_error"
)

// KindOf reports the API kind and status code of err. ok is false for
// errors that carry no status code.
func KindOf(err error) (kind string, code int, ok bool) {
	var ce *CantLaunchApplicationError
	if errors.As(err, &ce) {
		return KindCantLaunch, ce.Code, true
	}
	var oe *OSError
	if errors.As(err, &oe) {
		if oe.Code == CodeProcNotFound {
			return KindNotRunning, oe.Code, true
		}
		return KindOSError, oe.Code, true
	}
	return "", 0, false
}

// FromKind rebuilds the typed error described by an API error body.
// It returns nil for unknown kinds.
func FromKind(kind string, code int, msg string) error {
	switch kind {
	case KindCantLaunch:
		return Translate(code)
	case KindNotRunning:
		return New("remote", CodeProcNotFound, errors.New(msg))
	case KindOSError:
		return New("remote", code, errors.New(msg))
	}
	return nil
}
