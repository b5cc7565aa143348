// Package ssh opens the control connection to the web server. File
// transfer goes through rsync and the ssh binary; this client only runs the
// short commands behind backup, rollback and the connectivity check.
package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Config describes connection parameters for an SSH session.
type Config struct {
	User           string        // remote user (required)
	Host           string        // remote host (required)
	Port           int           // remote port; 22 when zero
	KeyPath        string        // private key; empty tries defaultKeyPaths, the agent is always offered
	Insecure       bool          // skip host key verification
	KnownHostsPath string        // empty means ~/.ssh/known_hosts
	Timeout        time.Duration // dial and handshake timeout; if 0, DefaultTimeout
}

// DefaultTimeout used when Config.Timeout==0. It bounds the dial only;
// commands run for as long as the remote side needs.
const DefaultTimeout = 10 * time.Second

// Client wraps ssh.Client for one-shot commands.
// Close must be called when no longer needed.
type Client struct {
	cfg    Config
	client *ssh.Client
	agent  io.Closer // agent socket, nil when no agent was used
}

// Addr returns host:port for cfg.
func (cfg Config) Addr() string {
	port := cfg.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(cfg.Host, strconv.Itoa(port))
}

// Dial connects and authenticates. ctx cancels the TCP dial; the handshake
// is bounded by cfg.Timeout.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.User == "" || cfg.Host == "" {
		return nil, fmt.Errorf("ssh: user and host required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	hostKey, err := hostKeyCallback(cfg.Insecure, cfg.KnownHostsPath)
	if err != nil {
		return nil, err
	}
	auth, agentConn, err := authMethodsForKey(cfg.KeyPath)
	if err != nil {
		return nil, err
	}
	closeAgent := func() {
		if agentConn != nil {
			_ = agentConn.Close()
		}
	}

	addr := cfg.Addr()
	slog.Debug("ssh dial", "addr", addr, "user", cfg.User)

	d := net.Dialer{Timeout: cfg.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		closeAgent()
		return nil, fmt.Errorf("ssh: dial %s: %w", addr, err)
	}
	_ = conn.SetDeadline(time.Now().Add(cfg.Timeout))
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         cfg.Timeout,
	})
	if err != nil {
		_ = conn.Close()
		closeAgent()
		return nil, fmt.Errorf("ssh: handshake with %s: %w", addr, err)
	}
	_ = conn.SetDeadline(time.Time{})
	return &Client{cfg: cfg, client: ssh.NewClient(c, chans, reqs), agent: agentConn}, nil
}

// Close the connection and the agent socket.
func (c *Client) Close() error {
	err := c.client.Close()
	if c.agent != nil {
		err = errors.Join(err, c.agent.Close())
	}
	return err
}

// Run executes cmd on the remote host. Nil writers discard the stream. A
// cancelled ctx sends TERM to the remote command and closes the session.
func (c *Client) Run(ctx context.Context, cmd string, stdout, stderr io.Writer) error {
	session, err := c.client.NewSession()
	if err != nil {
		return err
	}
	defer func() {
		if err := session.Close(); err != nil && !errors.Is(err, io.EOF) {
			slog.Debug("ssh session close", "err", err)
		}
	}()
	session.Stdout = stdout
	session.Stderr = stderr

	slog.Debug("ssh run", "cmd", cmd, "host", c.cfg.Host)
	if err := session.Start(cmd); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGTERM)
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// Output runs cmd and returns stdout. On failure the returned error carries
// stderr so callers can surface it verbatim.
func (c *Client) Output(ctx context.Context, cmd string) ([]byte, error) {
	out := &limitedBuffer{N: 1 << 20}
	errBuf := &limitedBuffer{N: 64 << 10}
	if err := c.Run(ctx, cmd, out, errBuf); err != nil {
		if msg := bytes.TrimSpace(errBuf.Bytes()); len(msg) > 0 {
			return out.Bytes(), fmt.Errorf("%w: %s", err, msg)
		}
		return out.Bytes(), err
	}
	return out.Bytes(), nil
}

// ExitStatus extracts the remote exit code from err. ok is false when err
// is not a remote non-zero exit (e.g. a broken connection).
func ExitStatus(err error) (code int, ok bool) {
	var ee *ssh.ExitError
	if errors.As(err, &ee) {
		return ee.ExitStatus(), true
	}
	return 0, false
}

func hostKeyCallback(insecure bool, knownPath string) (ssh.HostKeyCallback, error) {
	if insecure {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	if knownPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("ssh: locate known_hosts: %w", err)
		}
		knownPath = filepath.Join(home, ".ssh", "known_hosts")
	}
	cb, err := knownhosts.New(knownPath)
	if err != nil {
		return nil, fmt.Errorf("ssh: load %s (connect once with ssh, or set insecureHostKey): %w", knownPath, err)
	}
	return cb, nil
}

func defaultKeyPaths() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	var paths []string
	for _, name := range []string{"id_ed25519", "id_rsa", "id_ecdsa"} {
		paths = append(paths, filepath.Join(home, ".ssh", name))
	}
	return paths
}

// authMethodsForKey returns the auth methods and, when the agent was
// offered, its socket; the caller owns closing it.
func authMethodsForKey(keyPath string) ([]ssh.AuthMethod, io.Closer, error) {
	var methods []ssh.AuthMethod

	if keyPath != "" {
		signer, err := loadSigner(keyPath)
		if err != nil {
			return nil, nil, err
		}
		methods = append(methods, ssh.PublicKeys(signer))
	} else {
		for _, p := range defaultKeyPaths() {
			if signer, err := loadSigner(p); err == nil {
				methods = append(methods, ssh.PublicKeys(signer))
			}
		}
	}

	var agentConn io.Closer
	if conn, err := agentSocket(); err == nil {
		agentConn = conn
		methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
	}

	if len(methods) == 0 {
		return nil, nil, fmt.Errorf("ssh: no usable key (set keyPath or start ssh-agent)")
	}
	return methods, agentConn, nil
}

func loadSigner(path string) (ssh.Signer, error) {
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ssh: read key %s: %w", path, err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err == nil {
		return signer, nil
	}
	var pm *ssh.PassphraseMissingError
	if errors.As(err, &pm) {
		return nil, fmt.Errorf("ssh: key %s is passphrase protected; add it to ssh-agent", path)
	}
	return nil, fmt.Errorf("ssh: parse key %s: %w", path, err)
}

// agentSocket connects to the agent named by SSH_AUTH_SOCK.
func agentSocket() (net.Conn, error) {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil, fmt.Errorf("SSH_AUTH_SOCK not set")
	}
	return net.Dial("unix", sock)
}

// limitedBuffer prevents unbounded memory when capturing command output.
type limitedBuffer struct {
	buf bytes.Buffer
	N   int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if b.N > 0 && b.buf.Len()+len(p) > b.N {
		return 0, fmt.Errorf("ssh output exceeds %d bytes", b.N)
	}
	return b.buf.Write(p)
}

func (b *limitedBuffer) Bytes() []byte { return b.buf.Bytes() }
