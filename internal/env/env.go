package env

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Var maps variable names to values.
type Var map[string]string

// Env composes the environment handed to launched applications.
// Precedence, lowest first: OS environment (when enabled), env files,
// global variables, bundle variables, then launch-time variables.
type Env struct {
	Var      Var  // global variables
	UseOSEnv bool // start from the current process environment
	base     Var
}

func New(useOS bool) *Env {
	return &Env{Var: make(Var), UseOSEnv: useOS}
}

// Set sets a global variable.
func (e *Env) Set(k, v string) {
	if e.Var == nil {
		e.Var = make(Var)
	}
	e.Var[k] = v
}

// SetPairs sets every "K=V" entry; malformed entries are skipped.
func (e *Env) SetPairs(kvs []string) {
	for _, kv := range kvs {
		if k, v, ok := split(kv); ok {
			e.Set(k, v)
		}
	}
}

// LoadFile reads a .env style file (KEY=VALUE, # comments) into the
// global variables.
func (e *Env) LoadFile(path string) error {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return err
	}
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if k, v, ok := split(line); ok {
			e.Set(strings.TrimSpace(k), strings.TrimSpace(v))
		}
	}
	return nil
}

func (e *Env) osBase() Var {
	if e.base != nil {
		return e.base
	}
	base := make(Var)
	for _, kv := range os.Environ() {
		if k, v, ok := split(kv); ok {
			base[k] = v
		}
	}
	e.base = base
	return base
}

// Merge returns the final "K=V" list for one launch, sorted by key, with
// ${VAR} references expanded against the composed map.
func (e *Env) Merge(layers ...[]string) []string {
	m := make(Var)
	if e.UseOSEnv {
		for k, v := range e.osBase() {
			m[k] = v
		}
	}
	for k, v := range e.Var {
		if k != "" {
			m[k] = v
		}
	}
	for _, layer := range layers {
		for _, kv := range layer {
			if k, v, ok := split(kv); ok {
				m[k] = v
			}
		}
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+expand(m[k], m))
	}
	return out
}

func split(kv string) (string, string, bool) {
	i := strings.IndexByte(kv, '=')
	if i <= 0 {
		return "", "", false
	}
	return kv[:i], kv[i+1:], true
}

// expand does one pass of ${VAR} substitution; no recursion.
func expand(s string, m Var) string {
	if !strings.Contains(s, "${") {
		return s
	}
	res := s
	for k, v := range m {
		res = strings.ReplaceAll(res, "${"+k+"}", v)
	}
	return res
}
