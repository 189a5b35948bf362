// Package workspace owns the per-run working directories and fetching the
// repository into them.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"k8s.io/utils/clock"
)

// Workspace hands out uniquely named run directories under Root.
type Workspace struct {
	Root  string
	clock clock.PassiveClock
}

// New returns a workspace rooted at root using the wall clock.
func New(root string) *Workspace {
	return NewWithClock(root, clock.RealClock{})
}

// NewWithClock is New with an injectable clock.
func NewWithClock(root string, c clock.PassiveClock) *Workspace {
	return &Workspace{Root: root, clock: c}
}

// DirName is the run directory name for repoName created at t:
// <repo-name>-<YYYYMMDD-HHMMSS-nnnnnnnnn> in UTC.
func DirName(repoName string, t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s-%s-%09d", repoName, t.Format("20060102-150405"), t.Nanosecond())
}

// Create makes a fresh run directory for repoName. It fails rather than
// reuse a directory that already exists.
func (w *Workspace) Create(repoName string) (string, error) {
	if strings.TrimSpace(repoName) == "" {
		return "", errors.New("repository name is required")
	}
	if err := os.MkdirAll(w.Root, 0o755); err != nil {
		return "", fmt.Errorf("create workspace %s: %w", w.Root, err)
	}
	dir := filepath.Join(w.Root, DirName(repoName, w.clock.Now()))
	if err := os.Mkdir(dir, 0o755); err != nil {
		return "", fmt.Errorf("create run directory: %w", err)
	}
	return dir, nil
}

// Remove deletes a run directory recursively. It refuses paths that are not
// strictly inside a directory, such as "" or "/".
func Remove(dir string) error {
	clean := filepath.Clean(dir)
	if dir == "" || clean == string(filepath.Separator) || clean == "." || filepath.Dir(clean) == clean {
		return fmt.Errorf("refusing to remove %q", dir)
	}
	return os.RemoveAll(clean)
}

var projectInvalid = regexp.MustCompile(`[^a-z0-9_-]+`)

// ProjectName derives an orchestration project name from a run directory.
func ProjectName(dir string) string {
	name := strings.ToLower(filepath.Base(dir))
	name = projectInvalid.ReplaceAllString(name, "-")
	return strings.TrimLeft(name, "-_")
}
