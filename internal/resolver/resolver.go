package resolver

import (
	"errors"

	"github.com/loykin/appconnect/internal/address"
	"github.com/loykin/appconnect/internal/oserr"
)

// ErrNotRunning is returned when no process runs the application.
var ErrNotRunning = errors.New("application is not running")

// Querier is the part of the transport the resolver needs.
type Querier interface {
	QueryProcessByPath(path string) (address.ProcessHandle, error)
}

// Resolver answers "is this application running, and as which process".
// Answers are true only as of the call; nothing is cached.
type Resolver struct {
	q Querier
}

func New(q Querier) *Resolver { return &Resolver{q: q} }

// FindProcessHandle returns the handle of the running process. The
// procNotFound status becomes ErrNotRunning; every other failure is
// returned exactly as the querier reported it.
func (r *Resolver) FindProcessHandle(path string) (address.ProcessHandle, error) {
	h, err := r.q.QueryProcessByPath(path)
	if err == nil {
		return h, nil
	}
	var oe *oserr.OSError
	if errors.As(err, &oe) && oe.Code == oserr.CodeProcNotFound {
		return address.ProcessHandle{}, ErrNotRunning
	}
	return address.ProcessHandle{}, err
}

// IsRunning reports false only for ErrNotRunning.
func (r *Resolver) IsRunning(path string) (bool, error) {
	_, err := r.FindProcessHandle(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotRunning):
		return false, nil
	default:
		return false, err
	}
}
