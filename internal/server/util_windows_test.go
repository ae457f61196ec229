//go:build windows

package server

import "path/filepath"

func absAppPath() string {
	return filepath.Join("C:\\", "Program Files", "Editor.app")
}
