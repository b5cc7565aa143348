// Package debug holds hooks used by end-to-end tests.
package debug

import (
	"context"
	"fmt"
	"io"
	"os"
)

// EnvStop names the step a test wants the run to pause at.
const EnvStop = "SITEDEPLOY_TEST_STOP"

// StopIf blocks until ctx is done if EnvStop equals label. It prints a marker
// line to stderr first so tests know the exact stop point was reached before
// sending a signal.
func StopIf(ctx context.Context, label string) {
	stopIf(ctx, label, os.Getenv(EnvStop), os.Stderr)
}

func stopIf(ctx context.Context, label, want string, w io.Writer) {
	if want == "" || want != label {
		return
	}
	fmt.Fprintf(w, "TEST_stop_point_%s\n", label)
	<-ctx.Done()
}
