// Package layout locates the presentation, service, and data tiers inside an
// unpacked repository.
package layout

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Role is one of the three logical tiers a deployable repository must carry.
type Role string

const (
	Presentation Role = "presentation"
	Service      Role = "service"
	Data         Role = "data"
)

// Roles lists every role in resolution and reporting order.
var Roles = []Role{Presentation, Service, Data}

// Aliases holds the accepted directory names per role, highest priority first.
// Names are compared case-insensitively.
var Aliases = map[Role][]string{
	Presentation: {"frontend", "client", "web", "ui", "front"},
	Service:      {"backend", "server", "api", "back"},
	Data:         {"database", "db", "data"},
}

// RepoLayout maps each role to the directory name found under Root.
type RepoLayout struct {
	Root string
	dirs map[Role]string
}

// Dir returns the directory name resolved for role.
func (l RepoLayout) Dir(role Role) string {
	return l.dirs[role]
}

// Path returns the absolute path of the directory resolved for role.
func (l RepoLayout) Path(role Role) string {
	name := l.dirs[role]
	if name == "" {
		return ""
	}
	return filepath.Join(l.Root, name)
}

// StructureError lists the roles that could not be resolved.
type StructureError struct {
	Root    string
	Missing []Role
}

func (e *StructureError) Error() string {
	names := make([]string, 0, len(e.Missing))
	for _, role := range e.Missing {
		names = append(names, fmt.Sprintf("%s (%s)", role, strings.Join(Aliases[role], "|")))
	}
	return fmt.Sprintf("repository is missing required directories: %s", strings.Join(names, ", "))
}

// Resolve inspects the immediate children of root and assigns one distinct
// directory to every role.
func Resolve(root string) (RepoLayout, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return RepoLayout{}, fmt.Errorf("read repository root: %w", err)
	}
	children := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			children = append(children, entry.Name())
		}
	}
	sort.Strings(children)

	out := RepoLayout{Root: root, dirs: make(map[Role]string, len(Roles))}
	claimed := make(map[string]bool, len(Roles))
	var missing []Role
	for _, role := range Roles {
		name := match(children, Aliases[role], claimed)
		if name == "" {
			missing = append(missing, role)
			continue
		}
		claimed[name] = true
		out.dirs[role] = name
	}
	if len(missing) > 0 {
		return RepoLayout{}, &StructureError{Root: root, Missing: missing}
	}
	return out, nil
}

// New builds a layout from explicit directory names (used by tests and tools
// that already know the tier locations).
func New(root string, dirs map[Role]string) RepoLayout {
	copied := make(map[Role]string, len(dirs))
	for role, name := range dirs {
		copied[role] = name
	}
	return RepoLayout{Root: root, dirs: copied}
}

func match(children []string, aliases []string, claimed map[string]bool) string {
	for _, alias := range aliases {
		for _, child := range children {
			if claimed[child] {
				continue
			}
			if strings.EqualFold(child, alias) {
				return child
			}
		}
	}
	return ""
}
