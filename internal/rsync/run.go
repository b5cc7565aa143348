package rsync

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/renzodupont/renzodupont/internal/process"
)

// EntryFunc is called for every entry rsync reports, with the size from the
// out-format. Deletions arrive with deleted=true and size 0.
type EntryFunc func(size int64, name string, deleted bool)

// Run executes req and returns the parsed --stats. Every output line is
// copied to transcript when it is non-nil.
func (c Config) Run(ctx context.Context, req Request, onEntry EntryFunc, transcript io.Writer) (Stats, error) {
	cmd := c.BuildCmd(ctx, req)

	var (
		mu    sync.Mutex
		stats Stats
	)
	res := process.Run(ctx, cmd, func(s process.Stream, line []byte) {
		mu.Lock()
		defer mu.Unlock()
		if transcript != nil {
			prefix := "out"
			if s == process.Stderr {
				prefix = "err"
			}
			fmt.Fprintf(transcript, "%s: %s\n", prefix, line)
		}
		if s == process.Stderr {
			slog.Debug("rsync stderr", "line", string(line))
			return
		}
		if stats.ParseLine(string(line)) {
			return
		}
		if onEntry != nil {
			handleEntry(line, onEntry)
		}
	})
	if res.Err != nil {
		if ctx.Err() != nil {
			return stats, res.Err
		}
		msg := strings.TrimSpace(string(lastLine(res.Stderr)))
		return stats, fmt.Errorf("rsync exited with code %d (%s): %s", res.ExitCode, ExitReason(res.ExitCode), msg)
	}
	return stats, nil
}

func handleEntry(line []byte, onEntry EntryFunc) {
	if name, ok := bytes.CutPrefix(line, []byte("deleting ")); ok {
		onEntry(0, string(name), true)
		return
	}
	n, ok := parseSizeBytes(line)
	if !ok {
		return
	}
	i := bytes.IndexByte(line, ' ')
	if i < 0 {
		return
	}
	name := string(line[i+1:])
	if strings.HasSuffix(name, "/") {
		n = 0 // directories carry inode size, not payload
	}
	onEntry(n, name, false)
}

// parseSizeBytes parses leading decimal digits from a byte slice and returns the integer value.
// It avoids allocations by not converting the slice to string.
func parseSizeBytes(b []byte) (int64, bool) {
	var n int64
	parsed := false
	for _, c := range b {
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int64(c-'0')
		parsed = true
	}
	return n, parsed
}

func lastLine(b []byte) []byte {
	var last []byte
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		if l := bytes.TrimSpace(sc.Bytes()); len(l) > 0 {
			last = append(last[:0], l...)
		}
	}
	return last
}

// ExitReason maps common rsync exit codes to a short description.
func ExitReason(code int) string {
	switch code {
	case 1:
		return "syntax or usage error"
	case 3:
		return "errors selecting input/output files"
	case 5:
		return "error starting client-server protocol"
	case 10:
		return "error in socket I/O"
	case 11:
		return "error in file I/O"
	case 12:
		return "error in rsync protocol data stream"
	case 20:
		return "interrupted"
	case 23:
		return "partial transfer due to error"
	case 24:
		return "partial transfer due to vanished source files"
	case 30:
		return "timeout in data send/receive"
	case 127:
		return "rsync not found"
	case 255:
		return "ssh connection failed"
	}
	return "unknown error"
}
