package lock

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// FileLock serialises deploys and rollbacks against one target from this
// machine. It does not protect against runs started on other hosts.
type FileLock struct {
	fl   *flock.Flock
	path string
}

// New returns a lock named after target and dir, e.g.
// $TMPDIR/sitedeploy_<hash>.lock.
func New(target, dir string) *FileLock {
	sum := sha256.Sum256([]byte(target + "\x00" + filepath.Clean(dir)))
	name := filepath.Join(os.TempDir(), fmt.Sprintf("sitedeploy_%s.lock", hex.EncodeToString(sum[:8])))
	return &FileLock{fl: flock.New(name), path: name}
}

// Path of the lock file.
func (l *FileLock) Path() string { return l.path }

// TryLock attempts non-blocking lock.
func (l *FileLock) TryLock() (bool, error) {
	return l.fl.TryLock()
}

// Unlock releases.
func (l *FileLock) Unlock() error {
	if err := l.fl.Unlock(); err != nil {
		return err
	}
	// the file is only a name for the OS lock; another process may already have removed it
	_ = os.Remove(l.path)
	return nil
}
