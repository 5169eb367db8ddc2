// Package ptyparser recovers structured messages and events from the raw
// line stream of a PTY-driven child, and filters input bound for it.
//
// Structure recovery is necessarily heuristic: a generic CLI was never
// designed to be machine-read, so these rules classify by prefix and
// keyword the same way the permission package's bash_parser/wildcard rule
// tables classify shell commands — an ordered list of cheap checks, first
// match wins.
package ptyparser

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/happyclaw/supervisor/internal/types"
)

// RuleSet is a stateful line classifier: the code-fence state lives across
// calls to Parse, so one RuleSet must be used per session.
type RuleSet struct {
	inFence  bool
	fenceLang string
	fenceBuf []string
}

// NewRuleSet creates a RuleSet with no open code fence.
func NewRuleSet() *RuleSet {
	return &RuleSet{}
}

const fenceMarker = "```"

// Parse classifies one clean (ANSI-stripped) line. Precedence: code-fence
// state machine first, then prefix/keyword rules. Returns (message, true)
// if the line produced a message, (zero, false) if it produced nothing
// (e.g. a blank line, or a line consumed into an open fence).
func (r *RuleSet) Parse(line string) (types.SessionMessage, bool) {
	if r.inFence {
		if strings.HasPrefix(strings.TrimSpace(line), fenceMarker) {
			msg := types.SessionMessage{
				Kind:      types.KindCode,
				Content:   strings.Join(r.fenceBuf, "\n"),
				Timestamp: time.Now(),
				Metadata:  map[string]string{types.MetaLanguage: r.fenceLang},
			}
			r.inFence = false
			r.fenceLang = ""
			r.fenceBuf = nil
			return msg, true
		}
		r.fenceBuf = append(r.fenceBuf, line)
		return types.SessionMessage{}, false
	}

	trimmed := strings.TrimSpace(line)

	if strings.HasPrefix(trimmed, fenceMarker) {
		r.inFence = true
		r.fenceLang = strings.TrimSpace(strings.TrimPrefix(trimmed, fenceMarker))
		r.fenceBuf = nil
		return types.SessionMessage{}, false
	}

	if trimmed == "" {
		return types.SessionMessage{}, false
	}

	kind := classify(trimmed)
	return types.SessionMessage{
		Kind:      kind,
		Content:   line,
		Timestamp: time.Now(),
	}, true
}

func classify(trimmed string) types.MessageKind {
	switch {
	case strings.HasPrefix(trimmed, "Using tool:"), strings.HasPrefix(trimmed, "Running:"):
		return types.KindToolUse
	case strings.HasPrefix(trimmed, "Tool result:"):
		return types.KindToolResult
	case hasPrefixFold(trimmed, "Error:"), hasPrefixFold(trimmed, "Failed:"):
		return types.KindError
	case strings.HasSuffix(trimmed, "Thinking…"), strings.HasSuffix(trimmed, "Analyzing…"),
		strings.HasSuffix(trimmed, "Thinking..."), strings.HasSuffix(trimmed, "Analyzing..."):
		return types.KindThinking
	default:
		return types.KindText
	}
}

func hasPrefixFold(s, prefix string) bool {
	if len(s) < len(prefix) {
		return false
	}
	return strings.EqualFold(s[:len(prefix)], prefix)
}

var permissionMarkers = []string{"Allow?", "[Y/n]", "[yes/no]", "[y/N]"}

// DetectEvent scans line for permission prompts, error markers, and
// input-ready markers, returning the corresponding SessionEvent.
// Permission events carry a freshly generated request id.
func (r *RuleSet) DetectEvent(line, sessionID string) (types.SessionEvent, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return types.SessionEvent{}, false
	}

	for _, marker := range permissionMarkers {
		if strings.Contains(trimmed, marker) {
			return types.SessionEvent{
				Kind:      types.EventPermissionRequest,
				Severity:  types.SeverityWarning,
				SessionID: sessionID,
				Timestamp: time.Now(),
				Summary:   trimmed,
				Permission: &types.PermissionDetail{
					RequestID: uuid.NewString(),
				},
			}, true
		}
	}

	if hasPrefixFold(trimmed, "Error:") || hasPrefixFold(trimmed, "Failed:") {
		return types.SessionEvent{
			Kind:      types.EventError,
			Severity:  types.SeverityWarning,
			SessionID: sessionID,
			Timestamp: time.Now(),
			Summary:   trimmed,
		}, true
	}

	if strings.HasSuffix(line, "> ") || strings.HasSuffix(line, ">>> ") {
		return types.SessionEvent{
			Kind:      types.EventWaitingForInput,
			Severity:  types.SeverityInfo,
			SessionID: sessionID,
			Timestamp: time.Now(),
			Summary:   "input prompt detected",
		}, true
	}

	return types.SessionEvent{}, false
}

// blockedBytes are control characters that must never reach the child:
// ETX (Ctrl-C), EOT (Ctrl-D), SUB (Ctrl-Z), and ESC (which introduces CSI
// sequences an unsuspecting terminal emulator would otherwise act on).
var blockedBytes = map[byte]struct{}{
	0x03: {}, // Ctrl-C
	0x04: {}, // Ctrl-D
	0x1A: {}, // Ctrl-Z
	0x1B: {}, // ESC / CSI
}

// FilterInput rejects s if it contains any blocked control byte, returning
// ("", false). Otherwise returns (s, true).
func FilterInput(s string) (string, bool) {
	for i := 0; i < len(s); i++ {
		if _, blocked := blockedBytes[s[i]]; blocked {
			return "", false
		}
	}
	return s, true
}
