package transport

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// newLimiter returns a byte-rate limiter for kibps KiB/s, or nil when the
// rate is unlimited. The burst is one second worth of data.
func newLimiter(kibps int) *rate.Limiter {
	if kibps <= 0 {
		return nil
	}
	bps := kibps * 1024
	return rate.NewLimiter(rate.Limit(bps), bps)
}

// throttledWriter waits on lim before each chunk it forwards to w. Chunks
// never exceed the burst so WaitN cannot fail on size.
type throttledWriter struct {
	ctx context.Context
	w   io.Writer
	lim *rate.Limiter
}

func (t *throttledWriter) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		n := min(len(p), t.lim.Burst())
		if err := t.lim.WaitN(t.ctx, n); err != nil {
			return written, err
		}
		m, err := t.w.Write(p[:n])
		written += m
		if err != nil {
			return written, err
		}
		p = p[n:]
	}
	return written, nil
}
