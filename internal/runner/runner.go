// Package runner executes external tools as bounded-time subprocesses.
// Commands are always built from explicit argument slices; nothing is
// passed through a shell.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mediagrab/internal/media"
)

const (
	// DefaultTimeout bounds a media fetch.
	DefaultTimeout = 180 * time.Second

	// ProbeTimeout bounds a metadata-only probe.
	ProbeTimeout = 45 * time.Second

	defaultMaxOutput = 8 << 20
	stderrTail       = 2048
)

// Command describes one tool invocation.
type Command struct {
	Path string
	Args []string
	Dir  string
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

// Result holds the captured output of a finished command.
type Result struct {
	Stdout  []byte
	Stderr  []byte
	Elapsed time.Duration
}

// Runner runs a command and waits at most timeout for it.
type Runner interface {
	Run(ctx context.Context, cmd Command, timeout time.Duration) (Result, error)
}

// TimeoutError is returned when the process was killed on timer expiry.
type TimeoutError struct {
	Command string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s killed after %s", e.Command, e.Timeout)
}

func (e *TimeoutError) Unwrap() error { return media.ErrUpstreamTimeout }

// ExitError is returned when the process exited with a non-zero status.
type ExitError struct {
	Command string
	Code    int
	Stderr  string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with status %d", e.Command, e.Code)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// Exec runs commands with os/exec.
type Exec struct {
	// MaxOutput caps how much of stdout and stderr is retained each.
	MaxOutput int
	log       zerolog.Logger
}

// New creates an Exec runner.
func New(log zerolog.Logger) *Exec {
	return &Exec{
		MaxOutput: defaultMaxOutput,
		log:       log.With().Str("component", "runner").Logger(),
	}
}

// Run starts cmd and blocks until it exits or timeout elapses. A
// non-positive timeout means DefaultTimeout.
func (e *Exec) Run(ctx context.Context, cmd Command, timeout time.Duration) (Result, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	name := cmd.Path

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c := exec.CommandContext(ctx, cmd.Path, cmd.Args...)
	c.Dir = cmd.Dir
	// Grandchildren can hold the pipes open after the kill.
	c.WaitDelay = 5 * time.Second

	stdout := &boundedBuffer{max: e.maxOutput()}
	stderr := &boundedBuffer{max: e.maxOutput()}
	c.Stdout = stdout
	c.Stderr = stderr

	e.log.Debug().Str("cmd", cmd.String()).Dur("timeout", timeout).Msg("starting process")

	start := time.Now()
	err := c.Run()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes(), Elapsed: time.Since(start)}

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			e.log.Warn().Str("cmd", name).Dur("elapsed", res.Elapsed).Msg("process timed out")
			return res, &TimeoutError{Command: name, Timeout: timeout}
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return res, &ExitError{Command: name, Code: exitErr.ExitCode(), Stderr: tail(stderr.String())}
		}
		return res, fmt.Errorf("running %s: %w", name, err)
	}

	e.log.Debug().Str("cmd", name).Dur("elapsed", res.Elapsed).Msg("process finished")
	return res, nil
}

func (e *Exec) maxOutput() int {
	if e.MaxOutput <= 0 {
		return defaultMaxOutput
	}
	return e.MaxOutput
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > stderrTail {
		s = s[len(s)-stderrTail:]
	}
	return s
}

// boundedBuffer keeps the first max bytes written and discards the rest
// while still reporting success to the writer.
type boundedBuffer struct {
	buf []byte
	max int
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	if room := b.max - len(b.buf); room > 0 {
		if len(p) > room {
			b.buf = append(b.buf, p[:room]...)
		} else {
			b.buf = append(b.buf, p...)
		}
	}
	return len(p), nil
}

func (b *boundedBuffer) Bytes() []byte  { return b.buf }
func (b *boundedBuffer) String() string { return string(b.buf) }
