//go:build !windows

package bundle

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/loykin/appconnect/internal/oserr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeExe(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755))
}

func requireCode(t *testing.T, err error, code int) {
	t.Helper()
	c, ok := oserr.CodeOf(err)
	require.True(t, ok, "expected status code in %v", err)
	assert.Equal(t, code, c)
}

func TestOpenExecutableFile(t *testing.T) {
	dir := t.TempDir()
	exe := filepath.Join(dir, "worker.sh")
	writeExe(t, exe)

	b, err := Open(exe)
	require.NoError(t, err)
	assert.Equal(t, exe, b.Executable)
	assert.Equal(t, "worker", b.Name)
}

func TestOpenBundleDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "Editor.app")
	writeExe(t, filepath.Join(dir, "bin", "editor"))
	manifest := `
name: Editor
executable: bin/editor
args: ["--ipc"]
env: ["MODE=ipc"]
workdir: data
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestName), []byte(manifest), 0o644))

	b, err := Open(dir)
	require.NoError(t, err)
	assert.Equal(t, "Editor", b.Name)
	assert.Equal(t, filepath.Join(dir, "bin", "editor"), b.Executable)
	assert.Equal(t, []string{"--ipc"}, b.Args)
	assert.Equal(t, []string{"MODE=ipc"}, b.Env)
	assert.Equal(t, filepath.Join(dir, "data"), b.WorkDir)
}

func TestOpenDefaultsNameFromDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "Viewer.app")
	writeExe(t, filepath.Join(dir, "viewer"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestName), []byte("executable: viewer\n"), 0o644))

	b, err := Open(dir)
	require.NoError(t, err)
	assert.Equal(t, "Viewer", b.Name)
}

func TestOpenFailures(t *testing.T) {
	root := t.TempDir()

	_, err := Open(filepath.Join(root, "missing.app"))
	requireCode(t, err, oserr.CodeApplicationNotFound)

	_, err = Open("")
	requireCode(t, err, oserr.CodeApplicationNotFound)

	plain := filepath.Join(root, "plain")
	require.NoError(t, os.MkdirAll(plain, 0o755))
	_, err = Open(plain)
	requireCode(t, err, oserr.CodeNotAnApplication)

	bad := filepath.Join(root, "Bad.app")
	require.NoError(t, os.MkdirAll(bad, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(bad, ManifestName), []byte("executable: [unterminated\n"), 0o644))
	_, err = Open(bad)
	requireCode(t, err, oserr.CodeDataErr)

	noExe := filepath.Join(root, "NoExe.app")
	require.NoError(t, os.MkdirAll(noExe, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(noExe, ManifestName), []byte("executable: bin/missing\n"), 0o644))
	_, err = Open(noExe)
	requireCode(t, err, oserr.CodeNoExecutable)

	notExec := filepath.Join(root, "data.txt")
	require.NoError(t, os.WriteFile(notExec, []byte("x"), 0o644))
	_, err = Open(notExec)
	requireCode(t, err, oserr.CodeNoExecutable)

	trashed := filepath.Join(root, ".Trash", "Old.app")
	writeExe(t, filepath.Join(trashed, "old"))
	_, err = Open(trashed)
	requireCode(t, err, oserr.CodeAppInTrash)
}

func TestInTrash(t *testing.T) {
	assert.True(t, InTrash("/home/u/.local/share/Trash/files/App"))
	assert.True(t, InTrash("/Users/u/.Trash/App.app"))
	assert.True(t, InTrash("/Volumes/x/.Trashes/501/App.app"))
	assert.False(t, InTrash("/opt/apps/Trash.app"))
}
