// spinner.go implements the CLI spinner shown next to the active pipeline state.
package ui

import (
	"fmt"
	"io"
	"sync"
	"time"
)

var spinnerFrames = []rune{'|', '/', '-', '\\'}

var spinnerInterval = 120 * time.Millisecond

// StartSpinner animates message on w until the returned stop function is
// called. Stop waits for the animation to exit before printing "[done]" or
// "[fail]", so the status is always the last thing written. Calling stop more
// than once prints nothing further.
func StartSpinner(w io.Writer, message string) func(success bool) {
	quit := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		ticker := time.NewTicker(spinnerInterval)
		defer ticker.Stop()
		for idx := 0; ; idx = (idx + 1) % len(spinnerFrames) {
			select {
			case <-quit:
				fmt.Fprintf(w, "\r%s    \r", message)
				return
			case <-ticker.C:
				fmt.Fprintf(w, "\r%s %c", message, spinnerFrames[idx])
			}
		}
	}()
	var once sync.Once
	return func(success bool) {
		once.Do(func() {
			close(quit)
			<-exited
			status := "[done]"
			if !success {
				status = "[fail]"
			}
			fmt.Fprintf(w, "\r%s %s\n", message, status)
		})
	}
}
