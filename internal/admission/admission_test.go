package admission

import (
	"errors"
	"net/url"
	"testing"
)

func TestCheckRejectsUnsafeHosts(t *testing.T) {
	cases := []string{
		"http://localhost/x",
		"http://192.168.1.5/x",
		"http://127.0.0.1/owner/repo",
		"http://10.0.0.8/owner/repo",
		"http://[::1]/owner/repo",
		"http://api.localhost/owner/repo",
		"https://example.com/owner/repo",
	}
	for _, raw := range cases {
		_, err := Check(raw)
		var unsafe *UnsafeURLError
		if !errors.As(err, &unsafe) {
			t.Fatalf("Check(%q) err=%v, want UnsafeURLError", raw, err)
		}
	}
}

func TestCheckRejectsMalformedInput(t *testing.T) {
	cases := []string{
		"",
		"   ",
		"not a url",
		"github.com/owner/repo",
		"ftp://github.com/owner/repo",
		"https://github.com/",
	}
	for _, raw := range cases {
		_, err := Check(raw)
		var invalid *InvalidURLError
		if !errors.As(err, &invalid) {
			t.Fatalf("Check(%q) err=%v, want InvalidURLError", raw, err)
		}
	}
}

func TestCheckAcceptsAllowListedHosts(t *testing.T) {
	cases := []string{
		"https://github.com/drawliin/shop.git",
		"https://gitlab.com/group/sub/project",
		"http://www.github.com/owner/repo",
	}
	for _, raw := range cases {
		u, err := Check(raw)
		if err != nil {
			t.Fatalf("Check(%q): %v", raw, err)
		}
		if u == nil || u.Host == "" {
			t.Fatalf("Check(%q) returned empty URL", raw)
		}
	}
}

func TestRepoName(t *testing.T) {
	cases := map[string]string{
		"https://github.com/owner/My_Shop.git": "my-shop",
		"https://github.com/owner/repo/":       "repo",
		"https://gitlab.com/a/b/c":             "c",
	}
	for raw, want := range cases {
		u, err := url.Parse(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if got := RepoName(u); got != want {
			t.Fatalf("RepoName(%q)=%q want %q", raw, got, want)
		}
	}
}
