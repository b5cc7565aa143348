package rsync

import (
	"fmt"
	"io"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// Bar renders transfer progress for a single sync.
type Bar struct {
	p   *mpb.Progress
	bar *mpb.Bar
}

// NewBar starts a byte-based bar on w. total is the expected payload; it is
// only an estimate since rsync skips unchanged files.
func NewBar(w io.Writer, name string, total int64) *Bar {
	if total <= 0 {
		total = 1
	}
	p := mpb.New(mpb.WithOutput(w), mpb.WithWidth(40), mpb.WithRefreshRate(100*time.Millisecond))
	prefix := name + " "
	bar := p.New(total, mpb.BarStyle().Lbound("|").Rbound("|"),
		mpb.PrependDecorators(decor.Name(prefix, decor.WC{W: len(prefix), C: decor.DSyncWidth}), decor.Percentage()),
		mpb.AppendDecorators(decor.Any(func(s decor.Statistics) string {
			return fmt.Sprintf("%s / %s", formatBytes(s.Current), formatBytes(s.Total))
		})))
	return &Bar{p: p, bar: bar}
}

// Entry is an EntryFunc feeding the bar.
func (b *Bar) Entry(size int64, _ string, _ bool) {
	if size > 0 {
		b.bar.IncrInt64(size)
	}
}

// Finish completes the bar (ok) or drops it, then waits for the last render.
func (b *Bar) Finish(ok bool) {
	if ok {
		b.bar.SetTotal(-1, true)
	} else {
		b.bar.Abort(false)
	}
	b.p.Wait()
}
