package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renzodupont/renzodupont/internal/config"
	"github.com/renzodupont/renzodupont/internal/transport"
	"github.com/renzodupont/renzodupont/internal/transport/transporttest"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	root string
	site string
	rec  *transporttest.Recorder
	m    *Manager
	tick int
}

func newFixture(t *testing.T, maxBackups int) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		root: root,
		site: filepath.Join(root, "html"),
		rec:  &transporttest.Recorder{Inner: transport.NewLocal()},
	}
	cfg := config.Config{
		RemotePath: f.site,
		BackupPath: filepath.Join(root, "backups"),
		MaxBackups: maxBackups,
	}
	f.m = New(f.rec, cfg)
	f.m.Now = func() time.Time { return f.at(f.tick) }
	return f
}

func (f *fixture) at(i int) time.Time { return t0.Add(time.Duration(i) * time.Minute) }

func (f *fixture) publish(t *testing.T, sentinel string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(f.site, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(f.site, "sentinel.txt"), []byte(sentinel), 0o644))
}

func (f *fixture) sentinel(t *testing.T) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(f.site, "sentinel.txt"))
	require.NoError(t, err)
	return string(b)
}

// deploy snapshots the current site at the next tick and publishes a new version.
func (f *fixture) deploy(t *testing.T, version string) Result {
	t.Helper()
	f.tick++
	res, err := f.m.Create(context.Background())
	require.NoError(t, err)
	f.publish(t, version)
	return res
}

func TestName(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "backup-2024-01-01T00-00-00-000Z", Name(ts))

	local := time.Date(2024, 3, 9, 14, 5, 7, 123_000_000, time.FixedZone("CET", 3600))
	assert.Equal(t, "backup-2024-03-09T13-05-07-123Z", Name(local))
}

func TestRetentionThreeDeploysKeepTwo(t *testing.T) {
	f := newFixture(t, 2)
	f.publish(t, "v0")
	f.deploy(t, "v1")
	f.deploy(t, "v2")
	res := f.deploy(t, "v3")

	names, err := f.m.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{Name(f.at(3)), Name(f.at(2))}, names)
	assert.Equal(t, []string{Name(f.at(1))}, res.Removed)
	assert.NoError(t, res.CleanupErr)
}

func TestRetentionKeepsNewestN(t *testing.T) {
	for n := 0; n <= 3; n++ {
		for k := 0; k <= 3; k++ {
			t.Run(fmt.Sprintf("N=%d/k=%d", n, k), func(t *testing.T) {
				f := newFixture(t, n)
				f.publish(t, "v0")
				total := n + k
				for i := 1; i <= total; i++ {
					f.deploy(t, fmt.Sprintf("v%d", i))
				}
				names, err := f.m.List(context.Background())
				require.NoError(t, err)

				var want []string
				for i := total; i > total-n && i >= 1; i-- {
					want = append(want, Name(f.at(i)))
				}
				assert.Equal(t, want, namesOrNil(names))
			})
		}
	}
}

func namesOrNil(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}

func TestListIgnoresForeignEntries(t *testing.T) {
	f := newFixture(t, 5)
	require.NoError(t, os.MkdirAll(filepath.Join(f.root, "backups", "lost+found"), 0o755))
	f.publish(t, "v0")
	f.deploy(t, "v1")

	names, err := f.m.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{Name(f.at(1))}, names)
}

func TestCreateWithoutLiveSite(t *testing.T) {
	f := newFixture(t, 5)
	res, err := f.m.Create(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Name)
	assert.False(t, f.rec.Has(transporttest.OpCopyTree))
}

func TestCreateCopyFailureIsFatal(t *testing.T) {
	f := newFixture(t, 5)
	f.publish(t, "v0")
	f.rec.Fail = map[transporttest.Op]error{transporttest.OpCopyTree: errors.New("disk full")}

	_, err := f.m.Create(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.False(t, f.rec.Has(transporttest.OpListEntries), "no cleanup after a failed copy")
}

// partialCopy copies the tree, loses one file and then reports failure, as
// a remote cp -a does when it hits an unreadable file.
type partialCopy struct {
	transport.Transport
}

func (p partialCopy) CopyTree(ctx context.Context, src, dst string) error {
	if err := p.Transport.CopyTree(ctx, src, dst); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(dst, "sentinel.txt")); err != nil {
		return err
	}
	return fmt.Errorf("cp: cannot open %s: Permission denied", filepath.Join(src, "sentinel.txt"))
}

func TestCreatePartialCopyLeavesNoBackup(t *testing.T) {
	f := newFixture(t, 5)
	f.rec.Inner = partialCopy{Transport: transport.NewLocal()}
	f.publish(t, "v0")

	_, err := f.m.Create(context.Background())
	require.ErrorContains(t, err, "Permission denied")

	names, err := f.m.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names)

	_, err = f.m.Rollback(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoBackups)
	assert.Equal(t, "v0", f.sentinel(t))
}

func TestCreateCancelledDuringCopyLeavesNoBackup(t *testing.T) {
	f := newFixture(t, 5)
	f.publish(t, "v0")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.m.Create(ctx)
	require.ErrorIs(t, err, context.Canceled)
	names, err := f.m.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestCleanupFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, 1)
	f.publish(t, "v0")
	f.deploy(t, "v1")
	f.rec.Fail = map[transporttest.Op]error{transporttest.OpRemoveTree: errors.New("permission denied")}

	f.tick++
	res, err := f.m.Create(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Name(f.at(2)), res.Name)
	require.Error(t, res.CleanupErr)
	assert.Empty(t, res.Removed)
}

func TestRollbackNewest(t *testing.T) {
	f := newFixture(t, 5)
	f.publish(t, "v0")
	f.deploy(t, "v1")
	f.deploy(t, "v2") // backups hold v0, v1; live is v2

	f.tick++
	got, err := f.m.Rollback(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, Name(f.at(2)), got)
	assert.Equal(t, "v1", f.sentinel(t))
}

func TestRollbackNamedRestoresSnapshot(t *testing.T) {
	f := newFixture(t, 5)
	f.publish(t, "v0")
	first := f.deploy(t, "v1")
	f.deploy(t, "v2")

	f.tick++
	got, err := f.m.Rollback(context.Background(), first.Name)
	require.NoError(t, err)
	assert.Equal(t, "backup-2024-01-01T00-01-00-000Z", got)

	snap, err := os.ReadFile(filepath.Join(f.root, "backups", first.Name, "sentinel.txt"))
	require.NoError(t, err)
	assert.Equal(t, string(snap), f.sentinel(t))

	// no temporary or displaced trees are left next to the site
	entries, err := os.ReadDir(f.root)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"html", "backups"}, names)
}

func TestRollbackWithoutBackups(t *testing.T) {
	f := newFixture(t, 5)
	f.publish(t, "v0")

	_, err := f.m.Rollback(context.Background(), "")
	require.ErrorIs(t, err, ErrNoBackups)
	assert.Equal(t, "no backups available", err.Error())
	assert.Equal(t, []transporttest.Op{transporttest.OpListEntries}, f.rec.Ops())
}

func TestRollbackUnknownNameDoesNotMutate(t *testing.T) {
	f := newFixture(t, 5)
	f.publish(t, "v0")
	res := f.deploy(t, "v1")

	before := len(f.rec.Calls())
	_, err := f.m.Rollback(context.Background(), "backup-1999-01-01T00-00-00-000Z")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, []string{res.Name}, nf.Available)
	assert.Contains(t, err.Error(), res.Name)

	assert.Equal(t, []transporttest.Op{transporttest.OpListEntries}, f.rec.Ops()[before:])
	assert.Equal(t, "v1", f.sentinel(t))
}

func TestRollbackCopyFailureKeepsLiveSite(t *testing.T) {
	f := newFixture(t, 5)
	f.publish(t, "v0")
	f.deploy(t, "v1")
	f.rec.Fail = map[transporttest.Op]error{transporttest.OpCopyTree: errors.New("no space left")}

	_, err := f.m.Rollback(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, "v1", f.sentinel(t))
	assert.False(t, f.rec.Has(transporttest.OpRename))
}

func TestRollbackRenameFailureKeepsLiveSite(t *testing.T) {
	f := newFixture(t, 5)
	f.publish(t, "v0")
	f.deploy(t, "v1")
	f.rec.Fail = map[transporttest.Op]error{transporttest.OpRename: errors.New("busy")}

	f.tick++
	_, err := f.m.Rollback(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, "v1", f.sentinel(t))

	entries, err := os.ReadDir(f.root)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "temporary copy is discarded")
}
