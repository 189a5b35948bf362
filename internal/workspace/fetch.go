package workspace

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Fetcher places a copy of the repository at dest.
type Fetcher interface {
	Fetch(ctx context.Context, repoURL, dest string) error
}

// FetchError reports a failed clone together with the tool's output.
type FetchError struct {
	URL    string
	Output string
	Err    error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + lastLine(out)
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Err }

// GitFetcher shallow-clones with the git executable.
type GitFetcher struct {
	// Binary defaults to "git".
	Binary string
}

// Fetch runs git clone --depth 1 repoURL dest.
func (g GitFetcher) Fetch(ctx context.Context, repoURL, dest string) error {
	bin := g.Binary
	if bin == "" {
		bin = "git"
	}
	cmd := exec.CommandContext(ctx, bin, "clone", "--depth", "1", "--", repoURL, dest)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return &FetchError{URL: repoURL, Output: out.String(), Err: err}
	}
	return nil
}

func lastLine(s string) string {
	if idx := strings.LastIndex(s, "\n"); idx >= 0 {
		return strings.TrimSpace(s[idx+1:])
	}
	return s
}
