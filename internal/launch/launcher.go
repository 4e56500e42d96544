// Package launch runs a single external command and forwards its merged
// stdout/stderr line stream to an output listener and an optional echo
// writer, with cooperative cancellation through the context.
package launch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"

	"avrbridge/internal/domain"
)

var (
	// ErrNotStarted marks a command that could not be spawned at all
	// (missing binary, not executable, permission denied).
	ErrNotStarted = errors.New("command could not be started")

	// ErrCancelled marks a launch that was terminated because the context
	// was cancelled while the process was running.
	ErrCancelled = errors.New("launch cancelled")
)

// lineBuffer bounds the channel between the stream readers and the line
// consumer. Readers block once the consumer falls this many lines behind,
// so the whole output is never buffered ahead of classification.
const lineBuffer = 16

type outputLine struct {
	text   string
	source domain.StreamSource
}

// Launcher runs exactly one external command per Launch call.
type Launcher struct {
	command  string
	args     []string
	dir      string
	listener domain.OutputListener
	echo     io.Writer
	logger   *slog.Logger

	mu    sync.Mutex
	lines []string
}

type Option func(*Launcher)

// WithWorkingDir runs the command in dir instead of the process default.
func WithWorkingDir(dir string) Option {
	return func(l *Launcher) { l.dir = dir }
}

// WithListener forwards every output line to the given listener.
func WithListener(listener domain.OutputListener) Option {
	return func(l *Launcher) { l.listener = listener }
}

// WithEcho mirrors every output line verbatim to w. Write errors on w are
// logged and ignored; mirroring must never fail the invocation.
func WithEcho(w io.Writer) Option {
	return func(l *Launcher) { l.echo = w }
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Launcher) { l.logger = logger }
}

func New(command string, args []string, opts ...Option) *Launcher {
	l := &Launcher{
		command: command,
		args:    args,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lines returns all output lines captured so far, stdout and stderr merged
// in arrival order.
func (l *Launcher) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.lines))
	copy(out, l.lines)
	return out
}

// Launch starts the command and blocks until it exits. It returns the
// process exit code on normal termination (non-zero exit is not an error
// here; interpreting the exit code is the caller's business).
//
// A spawn failure is reported as an error wrapping ErrNotStarted. If ctx is
// cancelled while the process runs, the process is killed and an error
// wrapping ErrCancelled is returned instead of the process's own status.
func (l *Launcher) Launch(ctx context.Context) (int, error) {
	cmd := exec.Command(l.command, l.args...)
	if l.dir != "" {
		cmd.Dir = l.dir
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return -1, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return -1, fmt.Errorf("stderr pipe: %w", err)
	}

	if l.listener != nil {
		l.listener.Init(ctx)
	}

	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("%w: %s: %v", ErrNotStarted, l.command, err)
	}
	l.logger.Debug("process started", "command", l.command, "pid", cmd.Process.Pid)

	out := make(chan outputLine, lineBuffer)
	var readers sync.WaitGroup
	readers.Add(2)
	go l.readStream(stdout, domain.Stdout, out, &readers)
	go l.readStream(stderr, domain.Stderr, out, &readers)

	// The pipes reach EOF when the process exits (or is killed), which ends
	// both readers; only then is Wait allowed to reap the process.
	waitErr := make(chan error, 1)
	go func() {
		readers.Wait()
		close(out)
		waitErr <- cmd.Wait()
	}()

	consumed := make(chan struct{})
	go func() {
		defer close(consumed)
		for line := range out {
			l.dispatch(line)
		}
	}()

	select {
	case <-ctx.Done():
		if err := cmd.Process.Kill(); err != nil {
			l.logger.Debug("kill after cancellation", "err", err)
		}
		<-waitErr
		<-consumed
		return -1, fmt.Errorf("%w: %s", ErrCancelled, l.command)

	case err := <-waitErr:
		<-consumed
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				return exitErr.ExitCode(), nil
			}
			return -1, fmt.Errorf("waiting for %s: %w", l.command, err)
		}
		return 0, nil
	}
}

func (l *Launcher) readStream(r io.Reader, source domain.StreamSource, out chan<- outputLine, readers *sync.WaitGroup) {
	defer readers.Done()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		out <- outputLine{text: scanner.Text(), source: source}
	}
	if err := scanner.Err(); err != nil {
		// Expected when the process is killed mid-output.
		l.logger.Debug("stream closed", "source", source.String(), "err", err)
	}
}

// dispatch records one line and pushes it to the echo writer and the
// listener, in that order, synchronously.
func (l *Launcher) dispatch(line outputLine) {
	l.mu.Lock()
	l.lines = append(l.lines, line.text)
	l.mu.Unlock()

	if l.echo != nil {
		if _, err := fmt.Fprintln(l.echo, line.text); err != nil {
			l.logger.Debug("echo write failed", "err", err)
		}
	}
	if l.listener != nil {
		l.listener.HandleLine(line.text, line.source)
	}
}
