package runner

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"mediagrab/internal/media"
)

func requireShell(t *testing.T) string {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	return sh
}

func TestRunCapturesOutput(t *testing.T) {
	sh := requireShell(t)
	r := New(zerolog.Nop())

	res, err := r.Run(context.Background(), Command{Path: sh, Args: []string{"-c", "echo out; echo err >&2"}}, time.Second*5)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if string(res.Stdout) != "out\n" {
		t.Errorf("stdout = %q, want %q", res.Stdout, "out\n")
	}
	if string(res.Stderr) != "err\n" {
		t.Errorf("stderr = %q, want %q", res.Stderr, "err\n")
	}
}

func TestRunNonZeroExit(t *testing.T) {
	sh := requireShell(t)
	r := New(zerolog.Nop())

	_, err := r.Run(context.Background(), Command{Path: sh, Args: []string{"-c", "echo boom >&2; exit 3"}}, time.Second*5)
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected ExitError, got %v", err)
	}
	if exitErr.Code != 3 {
		t.Errorf("exit code = %d, want 3", exitErr.Code)
	}
	if exitErr.Stderr != "boom" {
		t.Errorf("stderr = %q, want boom", exitErr.Stderr)
	}
}

func TestRunTimeoutKillsProcess(t *testing.T) {
	sh := requireShell(t)
	r := New(zerolog.Nop())

	start := time.Now()
	_, err := r.Run(context.Background(), Command{Path: sh, Args: []string{"-c", "exec sleep 10"}}, 100*time.Millisecond)
	if time.Since(start) > 5*time.Second {
		t.Fatal("process was not killed on timeout")
	}

	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if !errors.Is(err, media.ErrUpstreamTimeout) {
		t.Error("timeout should match media.ErrUpstreamTimeout")
	}
}

func TestRunMissingBinary(t *testing.T) {
	r := New(zerolog.Nop())
	_, err := r.Run(context.Background(), Command{Path: "/nonexistent/tool"}, time.Second)
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		t.Error("missing binary should not be reported as an exit status")
	}
}

func TestBoundedBuffer(t *testing.T) {
	b := &boundedBuffer{max: 4}
	n, err := b.Write([]byte("abcdef"))
	if err != nil || n != 6 {
		t.Fatalf("Write() = %d, %v", n, err)
	}
	b.Write([]byte("gh"))
	if b.String() != "abcd" {
		t.Errorf("buffer = %q, want abcd", b.String())
	}
}
