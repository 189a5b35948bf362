// Package admission guards the pipeline entry point: it rejects malformed
// repository URLs, hosts outside the supported providers, and hostnames that
// point at loopback or private address space.
package admission

import (
	"fmt"
	"net/netip"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// AllowedHosts lists the hosting providers a repository may be fetched from.
// Subdomains of an entry are accepted.
var AllowedHosts = []string{
	"github.com",
	"gitlab.com",
	"bitbucket.org",
	"codeberg.org",
}

// InvalidURLError reports input that is empty or not a well-formed URL.
type InvalidURLError struct {
	Input  string
	Reason string
}

func (e *InvalidURLError) Error() string {
	if e.Input == "" {
		return "invalid repository URL: " + e.Reason
	}
	return fmt.Sprintf("invalid repository URL %q: %s", e.Input, e.Reason)
}

// UnsafeURLError reports a well-formed URL that must not be fetched.
type UnsafeURLError struct {
	Host   string
	Reason string
}

func (e *UnsafeURLError) Error() string {
	return fmt.Sprintf("refusing repository host %q: %s", e.Host, e.Reason)
}

var validate = validator.New()

// Check validates raw and returns the parsed URL when it may be fetched.
func Check(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, &InvalidURLError{Reason: "repository URL is required"}
	}
	if err := validate.Var(raw, "url"); err != nil {
		return nil, &InvalidURLError{Input: raw, Reason: "not a well-formed URL"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, &InvalidURLError{Input: raw, Reason: err.Error()}
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return nil, &InvalidURLError{Input: raw, Reason: fmt.Sprintf("unsupported scheme %q", u.Scheme)}
	}
	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if host == "" {
		return nil, &InvalidURLError{Input: raw, Reason: "missing host"}
	}
	if reason := unsafeHostReason(host); reason != "" {
		return nil, &UnsafeURLError{Host: host, Reason: reason}
	}
	if !allowedHost(host) {
		return nil, &UnsafeURLError{Host: host, Reason: "host is not an allowed repository provider"}
	}
	if RepoName(u) == "" {
		return nil, &InvalidURLError{Input: raw, Reason: "URL does not name a repository"}
	}
	return u, nil
}

func unsafeHostReason(host string) string {
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return "loopback hostname"
	}
	addr, err := netip.ParseAddr(strings.Trim(host, "[]"))
	if err != nil {
		return ""
	}
	addr = addr.Unmap()
	switch {
	case addr.IsLoopback():
		return "loopback address"
	case addr.IsPrivate():
		return "private address"
	case addr.IsLinkLocalUnicast(), addr.IsLinkLocalMulticast():
		return "link-local address"
	case addr.IsUnspecified():
		return "unspecified address"
	}
	return ""
}

func allowedHost(host string) bool {
	for _, allowed := range AllowedHosts {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}

var repoNameUnsafe = regexp.MustCompile(`[^a-z0-9-]+`)

// RepoName derives a filesystem-safe repository name from the last path segment.
func RepoName(u *url.URL) string {
	if u == nil {
		return ""
	}
	base := path.Base(strings.TrimRight(u.Path, "/"))
	if base == "." || base == "/" {
		return ""
	}
	base = strings.TrimSuffix(strings.ToLower(base), ".git")
	base = repoNameUnsafe.ReplaceAllString(base, "-")
	return strings.Trim(base, "-")
}
