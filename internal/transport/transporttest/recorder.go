// Package transporttest provides a recording Transport for tests.
package transporttest

import (
	"context"
	"sync"

	"github.com/renzodupont/renzodupont/internal/rsync"
	"github.com/renzodupont/renzodupont/internal/transport"
)

// Op names a Transport method.
type Op string

const (
	OpRun         Op = "run"
	OpMakeDir     Op = "mkdir"
	OpCopyTree    Op = "copy"
	OpRemoveTree  Op = "remove"
	OpRename      Op = "rename"
	OpExists      Op = "exists"
	OpListEntries Op = "list"
	OpSync        Op = "sync"
)

// Call is one recorded invocation.
type Call struct {
	Op     Op
	Args   []string
	DryRun bool // OpSync only
}

// Recorder logs every call and forwards it to Inner. With a nil Inner every
// call succeeds with zero values. Fail injects an error for an Op instead
// of forwarding.
type Recorder struct {
	Inner transport.Transport
	Fail  map[Op]error

	mu    sync.Mutex
	calls []Call
}

// Calls returns a copy of the log.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Ops returns just the op names, in order.
func (r *Recorder) Ops() []Op {
	var ops []Op
	for _, c := range r.Calls() {
		ops = append(ops, c.Op)
	}
	return ops
}

// Has reports whether op was called at least once.
func (r *Recorder) Has(op Op) bool {
	for _, c := range r.Calls() {
		if c.Op == op {
			return true
		}
	}
	return false
}

func (r *Recorder) record(c Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
	return r.Fail[c.Op]
}

func (r *Recorder) Run(ctx context.Context, command string) ([]byte, error) {
	if err := r.record(Call{Op: OpRun, Args: []string{command}}); err != nil {
		return nil, err
	}
	if r.Inner == nil {
		return nil, nil
	}
	return r.Inner.Run(ctx, command)
}

func (r *Recorder) MakeDir(ctx context.Context, dir string) error {
	if err := r.record(Call{Op: OpMakeDir, Args: []string{dir}}); err != nil {
		return err
	}
	if r.Inner == nil {
		return nil
	}
	return r.Inner.MakeDir(ctx, dir)
}

func (r *Recorder) CopyTree(ctx context.Context, src, dst string) error {
	if err := r.record(Call{Op: OpCopyTree, Args: []string{src, dst}}); err != nil {
		return err
	}
	if r.Inner == nil {
		return nil
	}
	return r.Inner.CopyTree(ctx, src, dst)
}

func (r *Recorder) RemoveTree(ctx context.Context, path string) error {
	if err := r.record(Call{Op: OpRemoveTree, Args: []string{path}}); err != nil {
		return err
	}
	if r.Inner == nil {
		return nil
	}
	return r.Inner.RemoveTree(ctx, path)
}

func (r *Recorder) Rename(ctx context.Context, from, to string) error {
	if err := r.record(Call{Op: OpRename, Args: []string{from, to}}); err != nil {
		return err
	}
	if r.Inner == nil {
		return nil
	}
	return r.Inner.Rename(ctx, from, to)
}

func (r *Recorder) Exists(ctx context.Context, path string) (bool, error) {
	if err := r.record(Call{Op: OpExists, Args: []string{path}}); err != nil {
		return false, err
	}
	if r.Inner == nil {
		return false, nil
	}
	return r.Inner.Exists(ctx, path)
}

func (r *Recorder) ListEntries(ctx context.Context, dir string) ([]string, error) {
	if err := r.record(Call{Op: OpListEntries, Args: []string{dir}}); err != nil {
		return nil, err
	}
	if r.Inner == nil {
		return nil, nil
	}
	return r.Inner.ListEntries(ctx, dir)
}

func (r *Recorder) Sync(ctx context.Context, req transport.SyncRequest) (rsync.Stats, error) {
	if err := r.record(Call{Op: OpSync, Args: []string{req.Source, req.Target}, DryRun: req.DryRun}); err != nil {
		return rsync.Stats{}, err
	}
	if r.Inner == nil {
		return rsync.Stats{}, nil
	}
	return r.Inner.Sync(ctx, req)
}

func (r *Recorder) Close() error {
	if r.Inner == nil {
		return nil
	}
	return r.Inner.Close()
}

var _ transport.Transport = (*Recorder)(nil)
