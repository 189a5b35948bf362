package detect

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/example/repodeploy/internal/textenc"
)

const (
	packageManifest  = "package.json"
	requirementsList = "requirements.txt"
	envFile          = ".env"
)

// packageJSON carries the fields of a node manifest the detectors consult.
type packageJSON struct {
	Main            string            `json:"main"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

func (p *packageJSON) has(name string) bool {
	if p == nil {
		return false
	}
	if _, ok := p.Dependencies[name]; ok {
		return true
	}
	_, ok := p.DevDependencies[name]
	return ok
}

// readManifest returns nil without error when dir has no package.json.
func readManifest(dir string) (*packageJSON, error) {
	data, ok, err := readOptional(filepath.Join(dir, packageManifest))
	if err != nil || !ok {
		return nil, err
	}
	var pkg packageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Join(dir, packageManifest), err)
	}
	return &pkg, nil
}

// readOptional reads path, reporting ok=false when it does not exist.
func readOptional(path string) ([]byte, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// readTextOptional is readOptional plus encoding detection.
func readTextOptional(path string) (string, bool, error) {
	text, err := textenc.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, err
	}
	return text, true, nil
}

func fileExists(path string) bool {
	if strings.TrimSpace(path) == "" {
		return false
	}
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}

// requirementNames extracts lower-cased package names from a pip
// requirements list, ignoring comments, options, and version specifiers.
func requirementNames(text string) []string {
	var names []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		if line == "" || strings.HasPrefix(line, "-") {
			continue
		}
		end := strings.IndexAny(line, "=<>~!;[ @")
		if end >= 0 {
			line = line[:end]
		}
		if line != "" {
			names = append(names, strings.ToLower(line))
		}
	}
	return names
}
