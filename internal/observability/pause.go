package observability

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/rahul/navcheck/internal/verify"
)

// PauseObserver blocks after every step until a line is read from in, so an
// operator can inspect the headed browser. It stops pausing once in is
// exhausted or the run's context ends.
func PauseObserver(in io.Reader, out io.Writer) verify.Observer {
	lines := make(chan struct{})
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- struct{}{}
		}
	}()

	return func(ctx context.Context, rec verify.StepRecord) {
		status := "ok"
		if rec.Err != nil {
			status = string(rec.Err.Kind)
		}
		termMu.Lock()
		fmt.Fprintf(out, "step %d %s: %s. Press Enter to continue...", rec.Index, rec.Step, status)
		termMu.Unlock()

		select {
		case <-ctx.Done():
		case <-lines:
		}
	}
}
