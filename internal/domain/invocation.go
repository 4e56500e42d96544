package domain

import "time"

// Invocation is the record of one completed launch-to-exit cycle of a tool,
// as kept by the history store.
type Invocation struct {
	ID        string
	ToolID    string
	Command   string
	Args      []string
	ExitCode  int
	Outcome   string // "ok" or the failure reason
	Duration  time.Duration
	CreatedAt time.Time
}
