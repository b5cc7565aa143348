package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renzodupont/renzodupont/internal/config"
	"github.com/renzodupont/renzodupont/internal/ssh"
)

type fakeRemote struct {
	cmds   []string
	out    map[string]string
	err    error
	closed bool
}

func (f *fakeRemote) Output(_ context.Context, cmd string) ([]byte, error) {
	f.cmds = append(f.cmds, cmd)
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.out[cmd]), nil
}

func (f *fakeRemote) Close() error { f.closed = true; return nil }

func newFakeSSH(r *fakeRemote) (*SSH, *int) {
	dials := 0
	t := NewSSH(ssh.Config{User: "deploy", Host: "blog.example.org"})
	t.dial = func(context.Context, ssh.Config) (remote, error) {
		dials++
		return r, nil
	}
	return t, &dials
}

func TestSSHCommands(t *testing.T) {
	ctx := context.Background()
	r := &fakeRemote{out: map[string]string{}}
	tr, dials := newFakeSSH(r)

	require.NoError(t, tr.MakeDir(ctx, "/var/www/backups"))
	require.NoError(t, tr.CopyTree(ctx, "/var/www/html", "/var/www/backups/backup-1"))
	require.NoError(t, tr.Rename(ctx, "/var/www/html", "/var/www/html.old"))
	require.NoError(t, tr.RemoveTree(ctx, "/var/www/my site"))

	assert.Equal(t, []string{
		"mkdir -p -- /var/www/backups",
		"cp -a -- /var/www/html /var/www/backups/backup-1 && touch -- /var/www/backups/backup-1",
		"mv -- /var/www/html /var/www/html.old",
		"rm -rf -- '/var/www/my site'",
	}, r.cmds)
	assert.Equal(t, 1, *dials, "connection is reused")

	require.NoError(t, tr.Close())
	assert.True(t, r.closed)
	require.NoError(t, tr.Close())
}

func TestSSHListEntries(t *testing.T) {
	cmd := "if [ -d /var/www/backups ]; then ls -1t -- /var/www/backups; fi"
	r := &fakeRemote{out: map[string]string{cmd: "backup-3\nbackup-2\n\nbackup-1\n"}}
	tr, _ := newFakeSSH(r)

	names, err := tr.ListEntries(context.Background(), "/var/www/backups")
	require.NoError(t, err)
	assert.Equal(t, []string{"backup-3", "backup-2", "backup-1"}, names)
}

func TestSSHExists(t *testing.T) {
	yes := "if [ -e /srv/a ]; then echo yes; else echo no; fi"
	no := "if [ -e /srv/b ]; then echo yes; else echo no; fi"
	r := &fakeRemote{out: map[string]string{yes: "yes\n", no: "no\n"}}
	tr, _ := newFakeSSH(r)

	ok, err := tr.Exists(context.Background(), "/srv/a")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = tr.Exists(context.Background(), "/srv/b")
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = tr.Exists(context.Background(), "/srv/c")
	require.Error(t, err)
}

func TestSSHRunWrapsError(t *testing.T) {
	r := &fakeRemote{err: errors.New("connection reset")}
	tr, _ := newFakeSSH(r)
	_, err := tr.Run(context.Background(), "echo ok")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"echo ok"`)
	assert.ErrorIs(t, err, r.err)
}

func TestSSHDialFailure(t *testing.T) {
	tr := NewSSH(ssh.Config{User: "deploy", Host: "blog.example.org"})
	boom := errors.New("no route to host")
	tr.dial = func(context.Context, ssh.Config) (remote, error) { return nil, boom }
	_, err := tr.Run(context.Background(), "echo ok")
	assert.ErrorIs(t, err, boom)
	require.NoError(t, tr.Close())
}

func TestNewPicksTransport(t *testing.T) {
	_, ok := New(config.Config{Host: config.LocalHost}).(*Local)
	assert.True(t, ok)
	s, ok := New(config.Config{Host: "blog.example.org", User: "deploy", Port: 2222}).(*SSH)
	require.True(t, ok)
	assert.Equal(t, "blog.example.org:2222", s.cfg.Addr())
}
