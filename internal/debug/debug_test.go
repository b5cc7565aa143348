package debug

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStopIfOtherLabelReturns(t *testing.T) {
	var buf bytes.Buffer
	stopIf(context.Background(), "after-backup", "before-restore", &buf)
	stopIf(context.Background(), "after-backup", "", &buf)
	require.Empty(t, buf.String())
}

func TestStopIfBlocksUntilCancel(t *testing.T) {
	var buf bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		stopIf(ctx, "after-backup", "after-backup", &buf)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("returned before cancel")
	case <-time.After(50 * time.Millisecond):
	}
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("did not return after cancel")
	}
	require.Equal(t, "TEST_stop_point_after-backup\n", buf.String())
}
