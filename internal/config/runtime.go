package config

import (
	"fmt"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
	"gopkg.in/yaml.v3"
)

const (
	DefaultUmask = "0077"
	DefaultPath  = "/usr/local/bin:/usr/bin:/bin"
)

// Runtime is process-wide state applied once before any request is
// handled.
type Runtime struct {
	Umask    string   `yaml:"umask"`
	Path     string   `yaml:"path"`
	UnsetEnv []string `yaml:"unset_env"`
}

func DefaultRuntime() Runtime {
	return Runtime{
		Umask: DefaultUmask,
		Path:  DefaultPath,
	}
}

// ReadRuntime loads a runtime file over the defaults. An empty path
// returns the defaults.
func ReadRuntime(path string) (Runtime, error) {
	rt := DefaultRuntime()
	if path == "" {
		return rt, nil
	}
	bs, err := os.ReadFile(path)
	if err != nil {
		return rt, err
	}
	if err := yaml.Unmarshal(bs, &rt); err != nil {
		return rt, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if _, err := rt.umask(); err != nil {
		return rt, err
	}
	return rt, nil
}

func (r Runtime) umask() (int, error) {
	if r.Umask == "" {
		return 0, fmt.Errorf("invalid umask: empty")
	}
	m, err := strconv.ParseUint(r.Umask, 8, 32)
	if err != nil || m > 0o777 {
		return 0, fmt.Errorf("invalid umask: %q", r.Umask)
	}
	return int(m), nil
}

// Apply sets the file mode creation mask, PATH and unsets variables. It
// returns the previous umask.
func (r Runtime) Apply() (int, error) {
	mask, err := r.umask()
	if err != nil {
		return 0, err
	}
	old := unix.Umask(mask)
	if r.Path != "" {
		if err := os.Setenv("PATH", r.Path); err != nil {
			return old, fmt.Errorf("failed to set PATH: %w", err)
		}
	}
	for _, k := range r.UnsetEnv {
		if err := os.Unsetenv(k); err != nil {
			return old, fmt.Errorf("failed to unset %s: %w", k, err)
		}
	}
	return old, nil
}
