package runctx

import (
	"os"
	"path/filepath"
)

// RunCtx manages a per-run temporary directory. It holds the raw sync
// transcript so a failed deploy can be inspected with --keep-run-tmp.
type RunCtx struct {
	Dir        string
	keepOnExit bool
}

// New creates directory under system temp with prefix.
func New(prefix string, keep bool) (*RunCtx, error) {
	dir, err := os.MkdirTemp("", prefix)
	if err != nil {
		return nil, err
	}
	return &RunCtx{Dir: dir, keepOnExit: keep}, nil
}

// Keep reports whether Cleanup leaves the directory in place.
func (r *RunCtx) Keep() bool { return r.keepOnExit }

// Create opens a new file inside the run dir.
func (r *RunCtx) Create(name string) (*os.File, error) {
	return os.Create(r.Path(name))
}

// Cleanup removes directory unless keepOnExit=true.
func (r *RunCtx) Cleanup() error {
	if r.keepOnExit {
		return nil
	}
	return os.RemoveAll(r.Dir)
}

// Path joins run dir with subpath.
func (r *RunCtx) Path(elem ...string) string {
	return filepath.Join(append([]string{r.Dir}, elem...)...)
}
