//go:build integration
// +build integration

package util

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// StartCompose brings up docker-compose stack and returns a teardown func.
// composeFile is path to compose.yml, projectName becomes docker compose -p <name>;
// env entries (KEY=value) are added to the compose process environment for
// variable substitution.
func StartCompose(ctx context.Context, composeFile, projectName string, env ...string) (func() error, error) {
	absCompose, errAbs := filepath.Abs(composeFile)
	if errAbs != nil {
		return nil, fmt.Errorf("abs path: %w", errAbs)
	}
	environ := append(os.Environ(), env...)

	up := exec.CommandContext(ctx, "docker", "compose", "-f", absCompose, "-p", projectName, "up", "-d", "--build")
	up.Env = environ
	out, err := up.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("docker compose up: %w\n%s", err, string(out))
	}

	teardown := func() error {
		downCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		down := exec.CommandContext(downCtx, "docker", "compose", "-f", absCompose, "-p", projectName, "down", "-v")
		down.Env = environ
		return down.Run()
	}
	return teardown, nil
}

// Exec runs a command inside a compose service container and returns its
// combined output.
func Exec(ctx context.Context, container string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "docker", append([]string{"exec", container}, args...)...)
	out, err := cmd.CombinedOutput()
	return string(out), err
}
