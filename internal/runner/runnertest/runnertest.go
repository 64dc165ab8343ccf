// Package runnertest provides fake process runners for tests.
package runnertest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"mediagrab/internal/quality"
	"mediagrab/internal/runner"
)

// Fake records every command and answers with Handler.
type Fake struct {
	Handler func(cmd runner.Command) (runner.Result, error)

	mu    sync.Mutex
	calls []runner.Command
}

func (f *Fake) Run(ctx context.Context, cmd runner.Command, timeout time.Duration) (runner.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return runner.Result{}, err
	}
	if f.Handler == nil {
		return runner.Result{}, nil
	}
	return f.Handler(cmd)
}

// Calls returns a copy of the recorded commands.
func (f *Fake) Calls() []runner.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]runner.Command(nil), f.calls...)
}

// CallCount returns the number of recorded commands.
func (f *Fake) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// Minimal container signatures so MIME sniffing recognizes the output.
var (
	mp4Header = []byte("\x00\x00\x00\x18ftypmp42\x00\x00\x00\x00mp42isom")
	mp3Header = []byte("ID3\x04\x00\x00\x00\x00\x00\x00")
)

// YTDLP simulates the extraction tool: probes return Formats, fetches
// write a Size byte file at the -o template.
type YTDLP struct {
	ID      string
	Title   string
	Formats []quality.Format
	Size    int

	// RejectNegotiated makes every fetch fail unless it asks for the
	// lowest-common-denominator fallback expression.
	RejectNegotiated bool
	ProbeErr         error
	FetchErr         error
	// Delay is slept before answering a fetch.
	Delay time.Duration
}

// Handle implements Fake.Handler.
func (y *YTDLP) Handle(cmd runner.Command) (runner.Result, error) {
	if has(cmd.Args, "--dump-single-json") {
		if y.ProbeErr != nil {
			return runner.Result{}, y.ProbeErr
		}
		data, _ := json.Marshal(map[string]any{
			"id":      y.ID,
			"title":   y.Title,
			"formats": y.Formats,
		})
		return runner.Result{Stdout: data}, nil
	}

	if y.Delay > 0 {
		time.Sleep(y.Delay)
	}
	if y.FetchErr != nil {
		return runner.Result{}, y.FetchErr
	}
	if y.RejectNegotiated && value(cmd.Args, "-f") != quality.Fallback {
		return runner.Result{}, &runner.ExitError{Command: cmd.Path, Code: 1, Stderr: "requested format is not available"}
	}

	tpl := value(cmd.Args, "-o")
	if tpl == "" {
		return runner.Result{}, errors.New("no output template")
	}
	ext, header := "mp4", mp4Header
	if has(cmd.Args, "-x") {
		ext, header = "mp3", mp3Header
	}
	size := y.Size
	if size < len(header) {
		size = len(header) + 16
	}
	body := append(append([]byte(nil), header...), bytes.Repeat([]byte{0}, size-len(header))...)
	if err := os.WriteFile(strings.Replace(tpl, "%(ext)s", ext, 1), body, 0644); err != nil {
		return runner.Result{}, err
	}
	return runner.Result{}, nil
}

func has(args []string, flag string) bool {
	for _, a := range args {
		if a == flag {
			return true
		}
	}
	return false
}

func value(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}
