// Package excludes owns the build-exclusion list written next to every
// generated build spec and the matcher the detector uses to skip the same
// paths while scanning sources.
package excludes

import (
	"path/filepath"
	"strings"

	"github.com/moby/patternmatcher"
	"github.com/moby/patternmatcher/ignorefile"
)

// FileName is the build-exclusion list the container engine reads from each
// build context.
const FileName = ".dockerignore"

// Patterns is identical for every stack.
var Patterns = []string{
	"node_modules",
	"npm-debug.log*",
	"yarn-debug.log*",
	"yarn-error.log*",
	"*.log",
	".env",
	".env.*",
	"build",
	"dist",
	"coverage",
	"__pycache__",
	"*.pyc",
	"venv",
	".venv",
	".git",
	".gitignore",
	".DS_Store",
}

// Render returns the exclusion list in .dockerignore syntax.
func Render() string {
	return strings.Join(Patterns, "\n") + "\n"
}

// Matcher reports whether a slash-separated path relative to a build context
// is excluded.
type Matcher struct {
	pm *patternmatcher.PatternMatcher
}

// NewMatcher compiles Patterns.
func NewMatcher() (*Matcher, error) {
	return Parse(Render())
}

// Parse compiles an exclusion list in .dockerignore syntax.
func Parse(text string) (*Matcher, error) {
	patterns, err := ignorefile.ReadAll(strings.NewReader(text))
	if err != nil {
		return nil, err
	}
	pm, err := patternmatcher.New(patterns)
	if err != nil {
		return nil, err
	}
	return &Matcher{pm: pm}, nil
}

// Excluded reports whether rel (or one of its parents) matches the list.
func (m *Matcher) Excluded(rel string) bool {
	if m == nil || m.pm == nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	if rel == "" || rel == "." {
		return false
	}
	ok, err := m.pm.MatchesOrParentMatches(rel)
	return err == nil && ok
}
