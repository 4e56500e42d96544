package invoke

import (
	"errors"
	"fmt"
)

// Reason classifies why a tool invocation failed.
type Reason int

const (
	// InvalidWorkingDirectory: the supplied working directory does not name
	// an existing directory.
	InvalidWorkingDirectory Reason = iota + 1

	// ToolNotFound: the executable could not be spawned (missing, not
	// executable, permission denied).
	ToolNotFound

	// ToolAbort: the running tool's own output matched a known failure
	// signature, independent of the exit code.
	ToolAbort

	// UserCancelled: cancellation was observed during the invocation delay
	// or while the process was running.
	UserCancelled

	// ConfigurationError: a configuration value required for the operation
	// is present but malformed.
	ConfigurationError
)

func (r Reason) String() string {
	switch r {
	case InvalidWorkingDirectory:
		return "invalid working directory"
	case ToolNotFound:
		return "tool not found"
	case ToolAbort:
		return "tool aborted"
	case UserCancelled:
		return "cancelled by user"
	case ConfigurationError:
		return "configuration error"
	default:
		return "unknown failure"
	}
}

// ToolError is the typed failure surfaced for every failed invocation.
type ToolError struct {
	Reason Reason
	Tool   string // human-readable tool name
	Detail string
	Line   string // offending output line, when the failure came from the tool's output
	Err    error  // underlying cause, may be nil
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Tool, e.Reason)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Line != "" {
		msg += fmt.Sprintf(" (%q)", e.Line)
	}
	return msg
}

func (e *ToolError) Unwrap() error { return e.Err }

// ReasonOf returns the failure reason carried by err, or 0 when err is not
// a ToolError.
func ReasonOf(err error) Reason {
	var te *ToolError
	if errors.As(err, &te) {
		return te.Reason
	}
	return 0
}
