package detect

import (
	"path/filepath"
	"regexp"
	"strconv"
)

// envExactPortPattern matches a bare PORT key, which wins over prefixed keys
// such as DB_PORT that name some other service's port.
var envExactPortPattern = regexp.MustCompile(`(?m)^\s*(?:export\s+)?PORT\s*=\s*["']?(\d+)`)

// envPortPattern matches PORT assignments such as PORT=5000, API_PORT = "8080",
// or export SERVER_PORT=3000. The key suffix is case sensitive.
var envPortPattern = regexp.MustCompile(`(?m)^\s*(?:export\s+)?[A-Z0-9_]*PORT\s*=\s*["']?(\d+)`)

// entryPortPatterns are applied to the entry file in order; the first
// capture that parses as a valid port wins.
var entryPortPatterns = map[ServiceTech][]*regexp.Regexp{
	Node: {
		regexp.MustCompile(`\.listen\(\s*(\d{1,5})\b`),
		regexp.MustCompile(`\.listen\(\s*process\.env\.PORT\s*(?:\|\||\?\?)\s*(\d{1,5})\b`),
		regexp.MustCompile(`\b(?:const|let|var)\s+(?i:port)\s*=\s*(?:process\.env\.PORT\s*(?:\|\||\?\?)\s*)?(\d{1,5})\b`),
		regexp.MustCompile(`process\.env\.PORT\s*(?:\|\||\?\?)\s*(\d{1,5})\b`),
	},
	PythonFlask: {
		regexp.MustCompile(`\.run\([^)]*?\bport\s*=\s*(\d{1,5})\b`),
		regexp.MustCompile(`(?:environ\.get|getenv)\(\s*["']PORT["']\s*,\s*["']?(\d{1,5})`),
	},
}

// Port finds the port the service listens on: the tier's env file first,
// then the runtime-specific patterns against the entry file. It returns
// PortNotFound when neither source declares one.
func Port(dir string, tech ServiceTech, entryFile string) (int, error) {
	text, ok, err := readTextOptional(filepath.Join(dir, envFile))
	if err != nil {
		return PortNotFound, err
	}
	if ok {
		if port := firstPort(text, envExactPortPattern, envPortPattern); port != PortNotFound {
			return port, nil
		}
	}
	if entryFile == "" {
		return PortNotFound, nil
	}
	text, ok, err = readTextOptional(filepath.Join(dir, filepath.FromSlash(entryFile)))
	if err != nil || !ok {
		return PortNotFound, err
	}
	return firstPort(text, entryPortPatterns[tech]...), nil
}

func firstPort(text string, patterns ...*regexp.Regexp) int {
	for _, re := range patterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if port, ok := validPort(m[1]); ok {
				return port
			}
		}
	}
	return PortNotFound
}

func validPort(raw string) (int, bool) {
	port, err := strconv.Atoi(raw)
	if err != nil || port < 1 || port > 65535 {
		return 0, false
	}
	return port, true
}
