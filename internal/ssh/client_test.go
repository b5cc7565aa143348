package ssh

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

func TestConfigAddr(t *testing.T) {
	cases := []struct {
		cfg  Config
		want string
	}{
		{Config{Host: "blog.example.org"}, "blog.example.org:22"},
		{Config{Host: "blog.example.org", Port: 2222}, "blog.example.org:2222"},
		{Config{Host: "::1", Port: 22}, "[::1]:22"},
	}
	for _, c := range cases {
		if got := c.cfg.Addr(); got != c.want {
			t.Fatalf("Addr(%+v)=%q want %q", c.cfg, got, c.want)
		}
	}
}

func TestDialRequiresUserAndHost(t *testing.T) {
	if _, err := Dial(context.Background(), Config{Host: "h"}); err == nil {
		t.Fatalf("expected error without user")
	}
	if _, err := Dial(context.Background(), Config{User: "u"}); err == nil {
		t.Fatalf("expected error without host")
	}
}

func TestAuthMethodsMissingKey(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")
	_, _, err := authMethodsForKey(filepath.Join(t.TempDir(), "id_missing"))
	if err == nil {
		t.Fatalf("expected error for missing key file")
	}
}

func TestAuthMethodsGarbageKey(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")
	p := filepath.Join(t.TempDir(), "id_rsa")
	if err := os.WriteFile(p, []byte("not a key"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, _, err := authMethodsForKey(p); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestExitStatusNonSSHError(t *testing.T) {
	if _, ok := ExitStatus(errors.New("connection reset")); ok {
		t.Fatalf("plain error must not be treated as remote exit")
	}
}

func TestLimitedBuffer(t *testing.T) {
	b := &limitedBuffer{N: 4}
	if _, err := b.Write([]byte("abc")); err != nil {
		t.Fatalf("write within limit: %v", err)
	}
	if _, err := b.Write([]byte("de")); err == nil {
		t.Fatalf("expected overflow error")
	}
	if string(b.Bytes()) != "abc" {
		t.Fatalf("unexpected content %q", b.Bytes())
	}
}

func TestAuthMethodsPassphraseKey(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	block, err := ssh.MarshalPrivateKeyWithPassphrase(priv, "", []byte("secret"))
	if err != nil {
		t.Fatal(err)
	}
	p := filepath.Join(t.TempDir(), "id_ed25519")
	if err := os.WriteFile(p, pem.EncodeToMemory(block), 0o600); err != nil {
		t.Fatal(err)
	}
	_, _, err = authMethodsForKey(p)
	if err == nil || !strings.Contains(err.Error(), "ssh-agent") {
		t.Fatalf("expected agent hint, got %v", err)
	}
}

func TestAuthMethodsValidKey(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	block, err := ssh.MarshalPrivateKey(priv, "")
	if err != nil {
		t.Fatal(err)
	}
	p := filepath.Join(t.TempDir(), "id_ed25519")
	if err := os.WriteFile(p, pem.EncodeToMemory(block), 0o600); err != nil {
		t.Fatal(err)
	}
	methods, agentConn, err := authMethodsForKey(p)
	if err != nil {
		t.Fatalf("authMethodsForKey: %v", err)
	}
	if len(methods) != 1 {
		t.Fatalf("expected one method, got %d", len(methods))
	}
	if agentConn != nil {
		t.Fatalf("no agent socket expected without SSH_AUTH_SOCK")
	}
}

func TestHostKeyCallback(t *testing.T) {
	if _, err := hostKeyCallback(true, ""); err != nil {
		t.Fatalf("insecure: %v", err)
	}

	dir := t.TempDir()
	if _, err := hostKeyCallback(false, filepath.Join(dir, "missing")); err == nil {
		t.Fatalf("expected error for missing known_hosts")
	}

	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	key, err := ssh.NewPublicKey(pub)
	if err != nil {
		t.Fatal(err)
	}
	known := filepath.Join(dir, "known_hosts")
	line := knownhosts.Line([]string{knownhosts.Normalize("blog.example.org:22"), "192.0.2.10"}, key)
	if err := os.WriteFile(known, []byte(line+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cb, err := hostKeyCallback(false, known)
	if err != nil {
		t.Fatalf("hostKeyCallback: %v", err)
	}
	addr := &net.TCPAddr{IP: net.ParseIP("192.0.2.10"), Port: 22}
	if err := cb("blog.example.org:22", addr, key); err != nil {
		t.Fatalf("known key rejected: %v", err)
	}
	other, _, _ := ed25519.GenerateKey(rand.Reader)
	otherKey, _ := ssh.NewPublicKey(other)
	if err := cb("blog.example.org:22", addr, otherKey); err == nil {
		t.Fatalf("changed host key accepted")
	}
}

// fakeAgent serves an empty keyring on a unix socket and reports on the
// returned channel when a client connection has been closed.
func fakeAgent(t *testing.T) <-chan struct{} {
	t.Helper()
	dir, err := os.MkdirTemp("", "agent")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	sock := filepath.Join(dir, "s")
	l, err := net.Listen("unix", sock)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = l.Close() })
	t.Setenv("SSH_AUTH_SOCK", sock)
	t.Setenv("HOME", t.TempDir())

	closed := make(chan struct{}, 4)
	go func() {
		for {
			c, err := l.Accept()
			if err != nil {
				return
			}
			go func() {
				_ = agent.ServeAgent(agent.NewKeyring(), c)
				_ = c.Close()
				closed <- struct{}{}
			}()
		}
	}()
	return closed
}

func TestAuthMethodsReturnsAgentSocket(t *testing.T) {
	closed := fakeAgent(t)

	methods, agentConn, err := authMethodsForKey("")
	if err != nil {
		t.Fatalf("authMethodsForKey: %v", err)
	}
	if len(methods) != 1 || agentConn == nil {
		t.Fatalf("expected the agent as only method, got %d methods, conn %v", len(methods), agentConn)
	}
	if err := agentConn.Close(); err != nil {
		t.Fatal(err)
	}
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatalf("agent connection still open")
	}
}

func TestDialFailureClosesAgentSocket(t *testing.T) {
	closed := fakeAgent(t)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	_ = l.Close()

	_, err = Dial(context.Background(), Config{User: "u", Host: "127.0.0.1", Port: port, Insecure: true, Timeout: 2 * time.Second})
	if err == nil {
		t.Fatalf("expected dial error")
	}
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatalf("agent connection leaked after failed dial")
	}
}
