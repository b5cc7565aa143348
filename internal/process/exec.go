package process

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Grace is how long a cancelled child gets between SIGTERM and SIGKILL.
const Grace = 5 * time.Second

// Result содержит данные о выполненной команде.
type Result struct {
	Cmd      string
	Args     []string
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
	Err      error
}

// Stream names which pipe a line came from.
type Stream int

const (
	Stdout Stream = iota
	Stderr
)

// LineFunc receives every output line (without the trailing newline).
// Calls for stdout and stderr may run concurrently.
type LineFunc func(s Stream, line []byte)

// RunLogged выполняет внешний процесс, логируя начало/конец и собирая вывод.
func RunLogged(ctx context.Context, bin string, args ...string) Result {
	return Run(ctx, exec.CommandContext(ctx, bin, args...), nil)
}

// Run executes cmd, feeding each line to fn while also collecting both
// streams into the Result. On ctx cancellation the child receives SIGTERM
// and, after Grace, SIGKILL.
func Run(ctx context.Context, cmd *exec.Cmd, fn LineFunc) Result {
	terminateOnCancel(cmd)

	var outBuf, errBuf bytes.Buffer
	var wg sync.WaitGroup
	collect := func(s Stream, buf *bytes.Buffer) *io.PipeWriter {
		pr, pw := io.Pipe()
		wg.Add(1)
		go func() {
			defer wg.Done()
			br := bufio.NewReaderSize(pr, 64*1024)
			for {
				line, err := br.ReadBytes('\n')
				if len(line) > 0 {
					buf.Write(line)
					if fn != nil {
						fn(s, bytes.TrimRight(line, "\r\n"))
					}
				}
				if err != nil {
					_ = pr.CloseWithError(err)
					return
				}
			}
		}()
		return pw
	}
	stdout := collect(Stdout, &outBuf)
	stderr := collect(Stderr, &errBuf)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	slog.Info("exec start", "cmd", cmd.Path, "args", cmd.Args[1:])
	start := time.Now()

	err := cmd.Run()
	_ = stdout.Close()
	_ = stderr.Close()
	wg.Wait()
	duration := time.Since(start)

	exitCode := 0
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}
	if ctx.Err() != nil && err != nil {
		err = errors.Join(ctx.Err(), err)
	}

	slog.Info("exec done", "cmd", cmd.Path, "code", exitCode, "dur", duration, "err", err)

	return Result{
		Cmd:      cmd.Path,
		Args:     cmd.Args[1:],
		Stdout:   outBuf.Bytes(),
		Stderr:   errBuf.Bytes(),
		ExitCode: exitCode,
		Duration: duration,
		Err:      err,
	}
}

// terminateOnCancel replaces the default SIGKILL-on-cancel with SIGTERM so
// rsync can clean up its temp files, escalating after Grace.
func terminateOnCancel(cmd *exec.Cmd) {
	if cmd.Cancel == nil {
		return // not created with CommandContext
	}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		slog.Warn("context canceled, terminating child", "pid", cmd.Process.Pid)
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = Grace
}
