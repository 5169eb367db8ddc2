// Package command provides the session manager's pre-dispatch interception
// hook: a narrow point where a reserved control string can be recognized
// on Send before it reaches a provider, plus a post-hoc summary over a
// session's message buffer.
//
// This intentionally stops well short of the teacher's full command
// executor (template commands loaded from config or markdown files,
// per-command agent/model overrides): slash-command parsing is out of
// scope here, so only the hook point and its one concrete interceptor
// exist.
package command

import (
	"github.com/happyclaw/supervisor/internal/types"
)

// AbortCommand is the reserved control string recognized by Intercept. A
// manager that intercepts it cancels the session's in-flight turn instead
// of forwarding the text to the provider.
const AbortCommand = "/abort"

// Interceptor decides whether text should be handled by the manager
// itself rather than forwarded to the session's provider. A future
// slash-command layer would register additional interceptors behind this
// same hook rather than growing Send's own logic.
type Interceptor func(text string) bool

// DefaultInterceptor recognizes AbortCommand and nothing else.
func DefaultInterceptor(text string) bool {
	return text == AbortCommand
}

// Stats summarizes a session's message buffer: how many messages of each
// kind it holds and their total content size.
type Stats struct {
	ByKind     map[types.MessageKind]int `json:"byKind"`
	Count      int                       `json:"count"`
	TotalBytes int                       `json:"totalBytes"`
}

// Summarize computes Stats over messages. It never mutates messages.
func Summarize(messages []types.SessionMessage) Stats {
	stats := Stats{ByKind: make(map[types.MessageKind]int)}
	for _, m := range messages {
		stats.ByKind[m.Kind]++
		stats.TotalBytes += len(m.Content)
		stats.Count++
	}
	return stats
}
