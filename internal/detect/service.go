package detect

import (
	"io/fs"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/example/repodeploy/internal/excludes"
)

// Service classifies the runtime of the service tier in dir.
func Service(dir string) (ServiceTech, error) {
	if fileExists(filepath.Join(dir, packageManifest)) {
		return Node, nil
	}
	text, ok, err := readTextOptional(filepath.Join(dir, requirementsList))
	if err != nil || !ok {
		return ServiceUnknown, err
	}
	if strings.Contains(strings.ToLower(text), "flask") {
		return PythonFlask, nil
	}
	return ServiceUnknown, nil
}

// Conventional node entry files, tried in order when package.json has no
// usable "main" field. Paths the build-exclusion list drops from the image
// are never usable.
var nodeEntryFallbacks = []string{"server.js", "index.js", "app.js"}

const pythonEntry = "app.py"

var scriptGuard = regexp.MustCompile(`__name__\s*==\s*["']__main__["']`)

// EntryFile returns the service entry point relative to dir, or "" when the
// runtime has none that can be identified.
func EntryFile(dir string, tech ServiceTech) (string, error) {
	switch tech {
	case Node:
		return nodeEntryFile(dir)
	case PythonFlask:
		return pythonEntryFile(dir)
	case ServiceUnknown:
		return "", nil
	}
	return "", nil
}

func nodeEntryFile(dir string) (string, error) {
	pkg, err := readManifest(dir)
	if err != nil {
		return "", err
	}
	matcher, err := excludes.NewMatcher()
	if err != nil {
		return "", err
	}
	usable := func(rel string) bool {
		return !matcher.Excluded(rel) && fileExists(filepath.Join(dir, filepath.FromSlash(rel)))
	}
	if pkg != nil {
		if main := filepath.ToSlash(filepath.Clean(strings.TrimSpace(pkg.Main))); pkg.Main != "" && !strings.HasPrefix(main, "../") {
			if usable(main) {
				return main, nil
			}
		}
	}
	for _, name := range nodeEntryFallbacks {
		if usable(name) {
			return name, nil
		}
	}
	return "", nil
}

func pythonEntryFile(dir string) (string, error) {
	if fileExists(filepath.Join(dir, pythonEntry)) {
		return pythonEntry, nil
	}
	matcher, err := excludes.NewMatcher()
	if err != nil {
		return "", err
	}
	var found string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			return relErr
		}
		if matcher.Excluded(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".py") {
			return nil
		}
		text, _, err := readTextOptional(path)
		if err != nil {
			return err
		}
		if scriptGuard.MatchString(text) {
			found = filepath.ToSlash(rel)
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return found, nil
}
