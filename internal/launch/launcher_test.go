package launch

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"avrbridge/internal/domain"
)

// recordingListener captures every delivered line with its stream source.
type recordingListener struct {
	mu      sync.Mutex
	lines   []string
	sources []domain.StreamSource
}

func (r *recordingListener) Init(ctx context.Context) {}

func (r *recordingListener) HandleLine(line string, source domain.StreamSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
	r.sources = append(r.sources, source)
}

func (r *recordingListener) AbortReason() string { return "" }
func (r *recordingListener) AbortLine() string   { return "" }

func TestLaunch_SimpleEcho(t *testing.T) {
	l := New("echo", []string{"test1"})
	code, err := l.Launch(context.Background())
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if code != 0 {
		t.Errorf("exit code: got %d, want 0", code)
	}
	lines := l.Lines()
	if len(lines) != 1 || lines[0] != "test1" {
		t.Errorf("lines: got %q, want [test1]", lines)
	}
}

func TestLaunch_ListenerReceivesLines(t *testing.T) {
	listener := &recordingListener{}
	l := New("echo", []string{"test2"}, WithListener(listener))
	if _, err := l.Launch(context.Background()); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if len(listener.lines) != 1 || listener.lines[0] != "test2" {
		t.Fatalf("listener lines: got %q, want [test2]", listener.lines)
	}
	if listener.sources[0] != domain.Stdout {
		t.Errorf("stream source: got %v, want stdout", listener.sources[0])
	}
}

func TestLaunch_MergesStderr(t *testing.T) {
	listener := &recordingListener{}
	l := New("sh", []string{"-c", "echo out; echo err 1>&2"}, WithListener(listener))
	if _, err := l.Launch(context.Background()); err != nil {
		t.Fatalf("Launch: %v", err)
	}

	lines := l.Lines()
	if len(lines) != 2 {
		t.Fatalf("expected 2 merged lines, got %q", lines)
	}

	var sawStderr bool
	for i, line := range listener.lines {
		if line == "err" && listener.sources[i] == domain.Stderr {
			sawStderr = true
		}
	}
	if !sawStderr {
		t.Error("stderr line was not tagged with the stderr source")
	}
}

func TestLaunch_NonZeroExitCode(t *testing.T) {
	l := New("sh", []string{"-c", "exit 3"})
	code, err := l.Launch(context.Background())
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if code != 3 {
		t.Errorf("exit code: got %d, want 3", code)
	}
}

func TestLaunch_CommandNotFound(t *testing.T) {
	l := New("no-such-binary-avrbridge-test", nil)
	_, err := l.Launch(context.Background())
	if !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
}

func TestLaunch_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	l := New("sleep", []string{"10"})
	start := time.Now()
	_, err := l.Launch(ctx)
	elapsed := time.Since(start)

	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if elapsed > 2*time.Second {
		t.Errorf("cancellation took %v, the process was not killed promptly", elapsed)
	}
}

func TestLaunch_EchoWriterMirrorsOutput(t *testing.T) {
	var buf bytes.Buffer
	l := New("echo", []string{"mirrored"}, WithEcho(&buf))
	if _, err := l.Launch(context.Background()); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if got := buf.String(); !strings.Contains(got, "mirrored") {
		t.Errorf("echo writer content: got %q", got)
	}
}

func TestLaunch_OrderPreserved(t *testing.T) {
	l := New("sh", []string{"-c", "echo one; echo two; echo three"})
	if _, err := l.Launch(context.Background()); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	lines := l.Lines()
	want := []string{"one", "two", "three"}
	if len(lines) != len(want) {
		t.Fatalf("lines: got %q, want %q", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d: got %q, want %q", i, lines[i], want[i])
		}
	}
}
