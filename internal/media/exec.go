package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"time"
)

const maxStderrBytes = 8 * 1024

// RunResult is the structured outcome of one toolchain invocation.
type RunResult struct {
	ExitCode   int
	StderrTail string
	Duration   time.Duration
}

// IsSuccess returns true when the process exited cleanly.
func (r RunResult) IsSuccess() bool { return r.ExitCode == 0 }

// ExecError reports a failed toolchain invocation with the tail of its stderr.
type ExecError struct {
	Op         string
	ExitCode   int
	StderrTail string
	Err        error
}

func (e *ExecError) Error() string {
	if e.StderrTail != "" {
		return fmt.Sprintf("%s failed (exit %d): %s", e.Op, e.ExitCode, truncate(e.StderrTail, 512))
	}
	if e.Err != nil {
		return fmt.Sprintf("%s failed (exit %d): %v", e.Op, e.ExitCode, e.Err)
	}
	return fmt.Sprintf("%s failed (exit %d)", e.Op, e.ExitCode)
}

func (e *ExecError) Unwrap() error { return e.Err }

// run executes bin with args under the configured timeout. stdout is captured
// only when the caller passes a non-nil buffer.
func (f *FFmpeg) run(ctx context.Context, op, bin string, stdout *bytes.Buffer, args ...string) (RunResult, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.WaitDelay = 2 * time.Second

	var stderrBuf bytes.Buffer
	cmd.Stderr = &limitedWriter{w: &stderrBuf, limit: maxStderrBytes}
	if stdout != nil {
		cmd.Stdout = stdout
	} else {
		cmd.Stdout = io.Discard
	}

	f.logger.Debug("executing media command", "op", op, "bin", bin, "args", args)

	err := cmd.Run()
	result := RunResult{StderrTail: stderrBuf.String(), Duration: time.Since(start)}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
		}
		if ctx.Err() == context.DeadlineExceeded {
			err = fmt.Errorf("timed out after %s: %w", f.cfg.Timeout, ctx.Err())
		}
		f.logger.Warn("media command failed",
			"op", op,
			"exit_code", result.ExitCode,
			"duration_ms", result.Duration.Milliseconds(),
			"stderr_tail", truncate(result.StderrTail, 512),
		)
		return result, &ExecError{Op: op, ExitCode: result.ExitCode, StderrTail: result.StderrTail, Err: err}
	}

	f.logger.Debug("media command succeeded", "op", op, "duration_ms", result.Duration.Milliseconds())
	return result, nil
}

// limitedWriter keeps only the last limit bytes written to it.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		b := lw.w.Bytes()
		tail := make([]byte, lw.limit)
		copy(tail, b[len(b)-lw.limit:])
		lw.w.Reset()
		lw.w.Write(tail)
	}
	return n, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}
