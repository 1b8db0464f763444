package vcs

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Options tune a backend. Zero values select backend defaults.
type Options struct {
	Binary       string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Driver opens the repository containing path with the given options.
type Driver func(path string, opts Options) (Repository, error)

// Opener opens the repository containing path.
type Opener func(path string) (Repository, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Driver)
)

// Register makes a backend available by name. Registering the same name
// twice panics.
func Register(name string, driver Driver) {
	registryMu.Lock()
	defer registryMu.Unlock()

	name = strings.TrimSpace(name)
	if driver == nil {
		panic("vcs: Register driver is nil")
	}
	if _, dup := registry[name]; dup {
		panic("vcs: Register called twice for backend " + name)
	}
	registry[name] = driver
}

// NewOpener binds the named backend to opts.
func NewOpener(name string, opts Options) (Opener, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	driver, ok := registry[strings.TrimSpace(name)]
	if !ok {
		return nil, fmt.Errorf("vcs: unknown backend %q (available: %s)", name, strings.Join(backendsLocked(), ", "))
	}
	return func(path string) (Repository, error) {
		return driver(path, opts)
	}, nil
}

// Backends lists registered backend names in sorted order.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return backendsLocked()
}

func backendsLocked() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FormatCommandFailure joins stderr, exit code and error text into one
// diagnostic line.
func FormatCommandFailure(stderr string, exitCode int, err error) string {
	parts := make([]string, 0, 3)

	trimmedStderr := strings.TrimSpace(stderr)
	if trimmedStderr != "" {
		parts = append(parts, trimmedStderr)
	}
	if exitCode != 0 {
		parts = append(parts, fmt.Sprintf("exit_code=%d", exitCode))
	}
	if err != nil && strings.TrimSpace(err.Error()) != "" {
		parts = append(parts, err.Error())
	}

	return strings.Join(parts, " | ")
}
