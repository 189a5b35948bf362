// Package probe polls the deployed endpoint until it answers or the attempt
// budget runs out.
package probe

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"
)

// Checker performs one reachability check. A nil error means ready.
type Checker interface {
	Check(ctx context.Context, url string) error
}

// Clock is the part of a clock the prober waits on.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

// ReadinessTimeoutError is returned once every attempt has failed.
type ReadinessTimeoutError struct {
	URL      string
	Attempts int
	LastErr  error
}

func (e *ReadinessTimeoutError) Error() string {
	msg := fmt.Sprintf("%s not ready after %d attempts", e.URL, e.Attempts)
	if e.LastErr != nil {
		msg += ": " + e.LastErr.Error()
	}
	return msg
}

func (e *ReadinessTimeoutError) Unwrap() error { return e.LastErr }

// Prober retries Checker with a fixed delay between attempts.
type Prober struct {
	Attempts int
	Interval time.Duration
	Checker  Checker
	Clock    Clock
	Log      logr.Logger
	// OnAttempt, when set, observes every attempt and its result.
	OnAttempt func(attempt int, err error)
}

// New returns a Prober backed by an HTTP checker and the wall clock.
func New(attempts int, interval, requestTimeout time.Duration, log logr.Logger) *Prober {
	return &Prober{
		Attempts: attempts,
		Interval: interval,
		Checker:  NewHTTPChecker(requestTimeout),
		Clock:    clock.RealClock{},
		Log:      log,
	}
}

// Wait returns the number of attempts used once url answers successfully.
// Attempts are sequential and separated by Interval; network failures only
// mean "not yet". Exhausting the budget returns *ReadinessTimeoutError.
func (p *Prober) Wait(ctx context.Context, url string) (int, error) {
	if p.Attempts < 1 {
		return 0, fmt.Errorf("probe attempts must be positive, got %d", p.Attempts)
	}
	var lastErr error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		lastErr = p.Checker.Check(ctx, url)
		if p.OnAttempt != nil {
			p.OnAttempt(attempt, lastErr)
		}
		if lastErr == nil {
			p.Log.V(1).Info("endpoint ready", "url", url, "attempt", attempt)
			return attempt, nil
		}
		p.Log.V(1).Info("endpoint not ready", "url", url, "attempt", attempt, "error", lastErr.Error())
		if attempt == p.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return attempt, ctx.Err()
		case <-p.Clock.After(p.Interval):
		}
	}
	return p.Attempts, &ReadinessTimeoutError{URL: url, Attempts: p.Attempts, LastErr: lastErr}
}

// HTTPChecker issues GET requests and accepts any 2xx status.
type HTTPChecker struct {
	Client *http.Client
}

// NewHTTPChecker returns a checker whose requests are bounded by timeout.
func NewHTTPChecker(timeout time.Duration) HTTPChecker {
	return HTTPChecker{Client: &http.Client{Timeout: timeout}}
}

// StatusError reports a non-2xx response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.Code, http.StatusText(e.Code))
}

func (c HTTPChecker) Check(ctx context.Context, url string) error {
	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}
