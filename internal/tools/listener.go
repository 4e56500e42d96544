package tools

import (
	"context"
	"strings"
	"sync"

	"avrbridge/internal/domain"
)

// abortSignature maps a substring of a tool's output to the failure it
// signals.
type abortSignature struct {
	match  string
	reason string
}

// signatureListener scans output lines for known failure signatures. The
// first detected signature is kept; later lines cannot overwrite it.
// Matching is case-insensitive because tools are not consistent about
// capitalization across versions.
type signatureListener struct {
	signatures []abortSignature

	mu     sync.Mutex
	reason string
	line   string
}

func newSignatureListener(signatures []abortSignature) *signatureListener {
	return &signatureListener{signatures: signatures}
}

func (l *signatureListener) Init(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reason = ""
	l.line = ""
}

func (l *signatureListener) HandleLine(line string, source domain.StreamSource) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.reason != "" {
		return
	}
	lower := strings.ToLower(line)
	for _, sig := range l.signatures {
		if strings.Contains(lower, sig.match) {
			l.reason = sig.reason
			l.line = line
			return
		}
	}
}

func (l *signatureListener) AbortReason() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reason
}

func (l *signatureListener) AbortLine() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.line
}
