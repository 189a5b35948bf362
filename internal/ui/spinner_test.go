package ui

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSpinnerStatusIsLastWrite(t *testing.T) {
	prev := spinnerInterval
	spinnerInterval = time.Millisecond
	t.Cleanup(func() { spinnerInterval = prev })

	for _, success := range []bool{true, false} {
		var out lockedBuffer
		stop := StartSpinner(&out, "Deploying")
		time.Sleep(20 * time.Millisecond)
		stop(success)
		want := "\rDeploying [done]\n"
		if !success {
			want = "\rDeploying [fail]\n"
		}
		got := out.String()
		if !strings.HasSuffix(got, want) {
			t.Fatalf("output %q does not end with %q", got, want)
		}
		stop(success)
		time.Sleep(5 * time.Millisecond)
		if again := out.String(); again != got {
			t.Fatalf("output changed after stop: %q", again)
		}
	}
}
