package jobman

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// TempDirs manages scratch directories scoped to a single runnable
// instance. The instance that created it is its only user, so TempDirs
// is not safe for concurrent use and doesn't need to be.
type TempDirs struct {
	base  string
	dirs  []string
	named map[string]string
}

// NewTempDirs creates a TempDirs rooted at the system temp directory.
func NewTempDirs() *TempDirs {
	return &TempDirs{
		base:  os.TempDir(),
		named: make(map[string]string),
	}
}

// Acquire creates a fresh, uniquely named scratch directory and records
// it for release. An empty prefix gets a default one.
func (m *TempDirs) Acquire(prefix string) (string, error) {
	if prefix == "" {
		prefix = "jobman"
	}
	d, err := os.MkdirTemp(m.base, prefix+"-")
	if err != nil {
		return "", fmt.Errorf("acquire temp dir: %w", err)
	}
	m.dirs = append(m.dirs, d)
	return d, nil
}

// AcquireNamed idempotently creates and returns a stable scratch
// directory for the given name, for re-entrant access to the same path.
func (m *TempDirs) AcquireNamed(name string) (string, error) {
	if name == "" || strings.ContainsRune(name, os.PathSeparator) {
		return "", fmt.Errorf("invalid temp dir name: %q", name)
	}
	if d, ok := m.named[name]; ok {
		return d, nil
	}
	d := filepath.Join(m.base, name)
	err := os.MkdirAll(d, 0o755)
	if err != nil {
		return "", fmt.Errorf("acquire temp dir %v: %w", name, err)
	}
	m.named[name] = d
	m.dirs = append(m.dirs, d)
	return d, nil
}

// ReleaseAll removes every directory this instance acquired and clears
// the recorded set. Removal is best-effort: a failure for one directory
// is logged and the rest are still attempted. It never escalates, so it
// cannot mask the outcome of the run that owns it.
func (m *TempDirs) ReleaseAll() {
	for _, d := range m.dirs {
		err := os.RemoveAll(d)
		if err != nil {
			log.Printf("release temp dir %v: %v", d, err)
		}
	}
	m.dirs = nil
	m.named = make(map[string]string)
}
