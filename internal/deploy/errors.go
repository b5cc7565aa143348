package deploy

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies why an operation failed.
type Kind string

const (
	KindConfig       Kind = "config"       // not configured, invalid values, local source missing
	KindConnectivity Kind = "connectivity" // reachability check failed
	KindBackup       Kind = "backup"       // snapshot before sync failed
	KindSync         Kind = "sync"         // file transfer failed
	KindRollback     Kind = "rollback"     // nothing to restore or restore failed
	KindCancelled    Kind = "cancelled"    // confirmation declined or interrupted
	KindLocked       Kind = "locked"       // another run holds the target
)

// Error is returned by every operation of this package.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s failed", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// fail wraps err; an interrupted step is reported as cancelled whatever
// stage it was in.
func fail(kind Kind, op string, err error) *Error {
	if errors.Is(err, context.Canceled) {
		kind = KindCancelled
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind carried by err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
