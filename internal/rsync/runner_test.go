package rsync_test

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/renzodupont/renzodupont/internal/rsync"
)

func TestBuildCmd(t *testing.T) {
	cfg := rsync.Config{
		Host:    "blog.example.org",
		User:    "deploy",
		Port:    2222,
		KeyPath: "/home/me/.ssh/id deploy",
	}
	cmd := cfg.BuildCmd(context.Background(), rsync.Request{
		Source:   "/home/me/blog/public",
		Target:   "/var/www/html/",
		Excludes: []string{"*.log", ".git"},
	})
	wantArgs := []string{
		"-avz", "--delete", "--stats", "--out-format=%l %n",
		"--exclude", "*.log",
		"--exclude", ".git",
		"-e", "ssh -p 2222 -i '/home/me/.ssh/id deploy' -o BatchMode=yes",
		"/home/me/blog/public/",
		"deploy@blog.example.org:/var/www/html/",
	}
	if !reflect.DeepEqual(cmd.Args[1:], wantArgs) { // Args[0] = rsync binary path
		t.Fatalf("args mismatch\nwant %v\n got %v", wantArgs, cmd.Args[1:])
	}
}

func TestArgsDryRunAndInsecure(t *testing.T) {
	cfg := rsync.Config{Host: "10.0.0.5", User: "root", Insecure: true}
	args := cfg.Args(rsync.Request{Source: "public", Target: "/srv/site", DryRun: true})
	wantArgs := []string{
		"-avz", "--delete", "--stats", "--out-format=%l %n",
		"--dry-run",
		"-e", "ssh -p 22 -o BatchMode=yes -o StrictHostKeyChecking=no -o UserKnownHostsFile=/dev/null",
		"public/",
		"root@10.0.0.5:/srv/site/",
	}
	if !reflect.DeepEqual(args, wantArgs) {
		t.Fatalf("args mismatch\nwant %v\n got %v", wantArgs, args)
	}
}

func TestDestinationIPv6(t *testing.T) {
	cfg := rsync.Config{Host: "::1", User: "u"}
	if got := cfg.Destination("/srv"); got != "u@[::1]:/srv/" {
		t.Fatalf("unexpected destination %q", got)
	}
}

func TestArgsBandwidthLimit(t *testing.T) {
	cfg := rsync.Config{Host: "blog.example.org", User: "deploy", Port: 22}
	args := cfg.Args(rsync.Request{Source: "public", Target: "/srv/site", BwLimit: 512})
	if args[4] != "--bwlimit=512" {
		t.Fatalf("expected --bwlimit after the fixed flags, got %v", args)
	}
	args = cfg.Args(rsync.Request{Source: "public", Target: "/srv/site"})
	for _, a := range args {
		if strings.HasPrefix(a, "--bwlimit") {
			t.Fatalf("unexpected %s without a limit", a)
		}
	}
}
