package domain

import "context"

// StreamSource identifies which process stream an output line arrived on.
type StreamSource int

const (
	Stdout StreamSource = iota
	Stderr
)

func (s StreamSource) String() string {
	if s == Stderr {
		return "stderr"
	}
	return "stdout"
}

// OutputListener consumes the merged output stream of a running tool, one
// line at a time in arrival order. Lines are delivered synchronously from
// the launcher's read loop, so HandleLine must not block for long: while a
// line is being handled, output capture is stalled.
type OutputListener interface {
	// Init is called once per invocation, before any line is delivered. The
	// context is the invocation context, so a listener can observe
	// cooperative cancellation if it needs to.
	Init(ctx context.Context)

	HandleLine(line string, source StreamSource)

	// AbortReason returns a non-empty reason when the listener recognized a
	// failure signature in the tool's own output. The process may still be
	// running or exit with code 0; a non-empty reason wins over the exit
	// code. The first detected signature is kept.
	AbortReason() string

	// AbortLine returns the output line that triggered the abort reason, or
	// the empty string when no abort was detected.
	AbortLine() string
}
