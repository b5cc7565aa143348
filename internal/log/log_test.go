package log

import (
	"bytes"
	"log/slog"
	"testing"
)

func TestLevel(t *testing.T) {
	cases := []struct {
		debug, verbose bool
		want           slog.Level
	}{
		{false, false, slog.LevelWarn},
		{false, true, slog.LevelInfo},
		{true, false, slog.LevelDebug},
		{true, true, slog.LevelDebug},
	}
	for _, c := range cases {
		if got := Level(c.debug, c.verbose); got != c.want {
			t.Fatalf("Level(%v,%v)=%v want %v", c.debug, c.verbose, got, c.want)
		}
	}
}

func TestSetupFiltersBelowLevel(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	Setup(&buf, false, true)
	slog.Debug("hidden")
	slog.Info("shown", "step", "backup")

	out := buf.String()
	if bytes.Contains([]byte(out), []byte("hidden")) {
		t.Fatalf("debug line leaked at info level: %q", out)
	}
	if !bytes.Contains([]byte(out), []byte("step=backup")) {
		t.Fatalf("info line missing: %q", out)
	}
}
