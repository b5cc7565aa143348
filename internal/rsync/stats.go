package rsync

import (
	"bufio"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Stats is the subset of rsync --stats output reported after a deploy.
type Stats struct {
	Files           int64 // Number of files
	Created         int64 // Number of created files
	Deleted         int64 // Number of deleted files
	Transferred     int64 // Number of regular files transferred
	TotalSize       int64 // Total file size, bytes
	TransferredSize int64 // Total transferred file size, bytes
	BytesSent       int64
	BytesReceived   int64
}

var reStatLine = regexp.MustCompile(`^\s*([A-Za-z ]+):\s+([0-9.,]+\s*[A-Za-z]*)`)

// ParseStats parses rsync --stats output from scanner. Lines that are not
// stats (file names, progress) are ignored, so the whole stdout can be fed.
func ParseStats(sc *bufio.Scanner) (Stats, error) {
	var s Stats
	for sc.Scan() {
		s.ParseLine(sc.Text())
	}
	return s, sc.Err()
}

// ParseLine updates s from a single stats line and reports whether it was one.
func (s *Stats) ParseLine(line string) bool {
	m := reStatLine.FindStringSubmatch(line)
	if m == nil {
		return false
	}
	val := strings.TrimSpace(m[2])
	switch strings.TrimSpace(m[1]) {
	case "Number of files":
		s.Files = toInt(firstField(val))
	case "Number of created files":
		s.Created = toInt(firstField(val))
	case "Number of deleted files":
		s.Deleted = toInt(firstField(val))
	case "Number of regular files transferred":
		s.Transferred = toInt(val)
	case "Total file size":
		s.TotalSize = toBytes(val)
	case "Total transferred file size":
		s.TransferredSize = toBytes(val)
	case "Total bytes sent":
		s.BytesSent = toBytes(val)
	case "Total bytes received":
		s.BytesReceived = toBytes(val)
	default:
		return false
	}
	return true
}

// Summary is a one-line human readable digest.
func (s Stats) Summary() string {
	return fmt.Sprintf("%d files, %d transferred (%s), %d created, %d deleted",
		s.Files, s.Transferred, formatBytes(s.TransferredSize), s.Created, s.Deleted)
}

func firstField(s string) string {
	if f := strings.Fields(s); len(f) > 0 {
		return f[0]
	}
	return s
}

func toInt(s string) int64 {
	v, _ := strconv.ParseInt(cleanNum(s), 10, 64)
	return v
}

// toBytes converts "5,120 bytes", "2.00K", "1.2M" to bytes.
func toBytes(s string) int64 {
	s = strings.TrimSuffix(strings.TrimSpace(s), "bytes")
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	i := 0
	for i < len(s) && (s[i] >= '0' && s[i] <= '9' || s[i] == '.') {
		i++
	}
	f, err := strconv.ParseFloat(s[:i], 64)
	if err != nil {
		return 0
	}
	unit := strings.ToUpper(strings.TrimSpace(s[i:]))
	mult := float64(1)
	switch {
	case strings.HasPrefix(unit, "K"):
		mult = 1 << 10
	case strings.HasPrefix(unit, "M"):
		mult = 1 << 20
	case strings.HasPrefix(unit, "G"):
		mult = 1 << 30
	case strings.HasPrefix(unit, "T"):
		mult = 1 << 40
	}
	return int64(f * mult)
}

func cleanNum(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			out = append(out, s[i])
		}
	}
	return string(out)
}

// formatBytes converts byte count to human-readable string (KB, MB, etc.).
func formatBytes(n int64) string {
	const unit = 1000
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	exp, value := 0, float64(n)
	for value >= unit && exp < 5 {
		value /= unit
		exp++
	}
	return fmt.Sprintf("%.2f %s", value, []string{"KB", "MB", "GB", "TB", "PB"}[exp-1])
}
