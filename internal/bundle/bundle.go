package bundle

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/loykin/appconnect/internal/oserr"
	"gopkg.in/yaml.v3"
)

// ManifestName is the manifest file inside a bundle directory.
const ManifestName = "app.yaml"

// Manifest is the on-disk description of a bundle.
type Manifest struct {
	Name       string   `yaml:"name"`
	Executable string   `yaml:"executable"`
	Args       []string `yaml:"args"`
	Env        []string `yaml:"env"`
	WorkDir    string   `yaml:"workdir"`
}

// Bundle is an application resolved from a path: either a plain
// executable or a directory holding app.yaml.
type Bundle struct {
	Path       string
	Name       string
	Executable string // absolute, cleaned; the process table is matched against it
	Args       []string
	Env        []string
	WorkDir    string
}

var trashMarkers = []string{
	"/.Trash/",
	"/.Trashes/",
	"/.local/share/Trash/",
}

// InTrash reports whether path lives inside a trash folder.
func InTrash(path string) bool {
	p := filepath.ToSlash(filepath.Clean(path)) + "/"
	for _, m := range trashMarkers {
		if strings.Contains(p, m) {
			return true
		}
	}
	return false
}

// Open resolves path into a Bundle. Failures are *oserr.OSError values
// with the launch status code describing what is wrong.
func Open(path string) (Bundle, error) {
	if strings.TrimSpace(path) == "" {
		return Bundle{}, oserr.New("bundle", oserr.CodeApplicationNotFound, errors.New("empty path"))
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return Bundle{}, oserr.New("bundle", oserr.CodeApplicationNotFound, err)
	}
	if InTrash(abs) {
		return Bundle{}, oserr.New("bundle", oserr.CodeAppInTrash, nil)
	}
	st, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Bundle{}, oserr.New("bundle", oserr.CodeApplicationNotFound, err)
		}
		if errors.Is(err, fs.ErrPermission) {
			return Bundle{}, oserr.New("bundle", oserr.CodeNoLaunchPermission, err)
		}
		return Bundle{}, oserr.New("bundle", oserr.CodeUnknown, err)
	}
	if !st.IsDir() {
		if err := checkExecutable(abs); err != nil {
			return Bundle{}, err
		}
		return Bundle{
			Path:       abs,
			Name:       strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs)),
			Executable: abs,
		}, nil
	}
	return openDir(abs)
}

func openDir(dir string) (Bundle, error) {
	b, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Bundle{}, oserr.New("bundle", oserr.CodeNotAnApplication, fmt.Errorf("%s has no %s", dir, ManifestName))
		}
		return Bundle{}, oserr.New("bundle", oserr.CodeDataUnavailable, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(b, &m); err != nil {
		return Bundle{}, oserr.New("bundle", oserr.CodeDataErr, err)
	}
	if strings.TrimSpace(m.Executable) == "" {
		return Bundle{}, oserr.New("bundle", oserr.CodeDataErr, errors.New("manifest has no executable"))
	}
	exe := m.Executable
	if !filepath.IsAbs(exe) {
		exe = filepath.Join(dir, exe)
	}
	exe = filepath.Clean(exe)
	if err := checkExecutable(exe); err != nil {
		return Bundle{}, err
	}
	name := m.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(dir), filepath.Ext(dir))
	}
	wd := m.WorkDir
	if wd != "" && !filepath.IsAbs(wd) {
		wd = filepath.Join(dir, wd)
	}
	return Bundle{
		Path:       dir,
		Name:       name,
		Executable: exe,
		Args:       m.Args,
		Env:        m.Env,
		WorkDir:    wd,
	}, nil
}
