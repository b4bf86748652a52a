package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync/atomic"
	"syscall"
	"time"
)

// boundedBuffer caps how many bytes of subprocess output are retained,
// marking truncation rather than growing without limit (§4.E, agent output
// can be large transcripts).
type boundedBuffer struct {
	buf       bytes.Buffer
	limit     int64
	truncated bool
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	if b.limit <= 0 || int64(b.buf.Len()) < b.limit {
		remaining := b.limit - int64(b.buf.Len())
		if b.limit <= 0 || remaining >= int64(len(p)) {
			b.buf.Write(p)
		} else {
			b.buf.Write(p[:remaining])
			b.truncated = true
		}
	} else {
		b.truncated = true
	}
	return len(p), nil
}

// runSubprocess starts bin with args, feeds stdin, and enforces opts.Timeout
// by sending SIGTERM to the process group and escalating to SIGKILL after
// opts.KillGrace if the process has not exited (§4.E teardown contract;
// grounded on the teacher's exec.CommandContext + ExitError handling in
// kcli.go, extended with a process-group grace period rather than the
// stdlib's immediate SIGKILL-on-cancel).
func runSubprocess(ctx context.Context, bin string, args []string, stdin, workDir string, opts Options) (stdout string, exitCode int, truncated bool, err error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := exec.Command(bin, args...)
	cmd.Dir = workDir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if stdin != "" {
		cmd.Stdin = bytes.NewReader([]byte(stdin))
	}

	out := &boundedBuffer{limit: opts.MaxOutputBytes}
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Start(); err != nil {
		return "", -1, false, fmt.Errorf("start %s: %w", bin, err)
	}

	var timedOut atomic.Bool
	var timer *time.Timer
	if opts.Timeout > 0 {
		timer = time.AfterFunc(opts.Timeout, func() {
			timedOut.Store(true)
			terminateProcessGroup(cmd, opts.KillGrace)
		})
	}

	waitDone := make(chan error, 1)
	go func() { waitDone <- cmd.Wait() }()

	select {
	case <-runCtx.Done():
		terminateProcessGroup(cmd, opts.KillGrace)
		waitErr := <-waitDone
		if timer != nil {
			timer.Stop()
		}
		return out.buf.String(), exitCodeOf(waitErr), out.truncated, ctx.Err()
	case waitErr := <-waitDone:
		if timer != nil {
			timer.Stop()
		}
		if timedOut.Load() {
			return out.buf.String(), exitCodeOf(waitErr), out.truncated, context.DeadlineExceeded
		}
		return out.buf.String(), exitCodeOf(waitErr), out.truncated, classifyExit(waitErr)
	}
}

// classifyExit reports only failures to run the process at all (resolve,
// start, wait) as a Go error. A non-zero exit is not one of those — it is
// reported via exitCode, leaving the caller (internal/pipeline) to decide
// whether the transcript it got anyway is good enough: a parseable verdict
// despite the bad exit code is not a failure, and one that isn't parseable
// becomes errkind.KindAgentCrash.
func classifyExit(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func exitCodeOf(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	if err != nil {
		return -1
	}
	return 0
}

// terminateProcessGroup sends SIGTERM to the whole process group, then
// SIGKILL after grace if it has not exited (§4.E, §5 cooperative
// cancellation: "subprocess group kill").
func terminateProcessGroup(cmd *exec.Cmd, grace time.Duration) {
	if cmd.Process == nil {
		return
	}
	pgid := cmd.Process.Pid
	_ = syscall.Kill(-pgid, syscall.SIGTERM)
	if grace <= 0 {
		grace = 5 * time.Second
	}
	time.AfterFunc(grace, func() {
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
	})
}
