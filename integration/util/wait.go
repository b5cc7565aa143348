//go:build integration
// +build integration

package util

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"time"
)

// WaitSSHReady polls addr until the server sends an SSH identification line.
func WaitSSHReady(ctx context.Context, addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if bannerOK(addr) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%s did not become ready", addr)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(1 * time.Second):
		}
	}
}

func bannerOK(addr string) bool {
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		return false
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(conn).ReadString('\n')
	return err == nil && strings.HasPrefix(line, "SSH-")
}
