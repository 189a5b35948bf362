package engine

import "strings"

// FailureClass is the best-effort category of a failed build-and-launch.
type FailureClass string

const (
	PortConflict             FailureClass = "PortConflict"
	EngineNotRunning         FailureClass = "EngineNotRunning"
	MissingRuntimeDependency FailureClass = "MissingRuntimeDependency"
	Generic                  FailureClass = "Generic"
)

type marker struct {
	class   FailureClass
	needles []string
}

// markers is checked in order against the lower-cased engine output.
var markers = []marker{
	{PortConflict, []string{"port is already allocated", "address already in use", "ports are not available"}},
	{EngineNotRunning, []string{"cannot connect to the docker daemon", "is the docker daemon running", "error during connect", "docker daemon is not running"}},
	{MissingRuntimeDependency, []string{"executable file not found", "command not found", ": not found"}},
}

// Classify maps captured engine output onto a FailureClass.
func Classify(output string) FailureClass {
	msg := strings.ToLower(output)
	for _, m := range markers {
		for _, needle := range m.needles {
			if strings.Contains(msg, needle) {
				return m.class
			}
		}
	}
	return Generic
}

// Hint is a short operator-facing suggestion for class.
func (c FailureClass) Hint() string {
	switch c {
	case PortConflict:
		return "another process is using the published port; stop it or choose a different --proxy-port"
	case EngineNotRunning:
		return "start the container engine (for example Docker Desktop or dockerd) and retry"
	case MissingRuntimeDependency:
		return "the service start command references an executable missing from its image; check the entry file and dependencies"
	case Generic:
	}
	return ""
}
