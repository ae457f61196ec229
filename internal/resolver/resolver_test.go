package resolver

import (
	"errors"
	"testing"

	"github.com/loykin/appconnect/internal/address"
	"github.com/loykin/appconnect/internal/oserr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubQuerier struct {
	h     address.ProcessHandle
	err   error
	calls []string
}

func (s *stubQuerier) QueryProcessByPath(path string) (address.ProcessHandle, error) {
	s.calls = append(s.calls, path)
	return s.h, s.err
}

func TestFindProcessHandleRunning(t *testing.T) {
	q := &stubQuerier{h: address.ProcessHandle{High: 10, Low: 20}}
	r := New(q)
	h, err := r.FindProcessHandle("/apps/Editor.app")
	require.NoError(t, err)
	assert.Equal(t, address.ProcessHandle{High: 10, Low: 20}, h)
	assert.Equal(t, []string{"/apps/Editor.app"}, q.calls)

	ok, err := r.IsRunning("/apps/Editor.app")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFindProcessHandleNotRunning(t *testing.T) {
	r := New(&stubQuerier{err: oserr.New("query", oserr.CodeProcNotFound, nil)})
	_, err := r.FindProcessHandle("/apps/Editor.app")
	assert.ErrorIs(t, err, ErrNotRunning)

	ok, err := r.IsRunning("/apps/Editor.app")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOtherOSErrorPropagatesUnchanged(t *testing.T) {
	orig := oserr.New("query", -43, nil)
	r := New(&stubQuerier{err: orig})

	_, err := r.FindProcessHandle("/apps/Editor.app")
	assert.Same(t, orig, err)
	assert.False(t, errors.Is(err, ErrNotRunning))

	ok, err := r.IsRunning("/apps/Editor.app")
	assert.False(t, ok)
	assert.Same(t, orig, err)
}

func TestNonOSErrorPropagates(t *testing.T) {
	orig := errors.New("transport closed")
	r := New(&stubQuerier{err: orig})
	_, err := r.IsRunning("/x")
	assert.Same(t, orig, err)
}
