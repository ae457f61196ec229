//go:build !windows

package server

import "path/filepath"

func absAppPath() string {
	return filepath.Join(string(filepath.Separator), "Applications", "Editor.app")
}
