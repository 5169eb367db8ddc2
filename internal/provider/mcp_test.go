package provider

import (
	"encoding/json"
	"testing"

	"github.com/happyclaw/supervisor/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests exercise mcpSession's notification routing directly,
// without starting a real child process — the same separation of
// "frame routing" from "process plumbing" that mcpbridge's own tests use.

func newBareMCPSession() *mcpSession {
	return &mcpSession{id: "s1", mode: types.ModeLocal}
}

func TestHandleNotificationMessage(t *testing.T) {
	s := newBareMCPSession()
	var got types.SessionMessage
	s.OnMessage(func(m types.SessionMessage) { got = m })

	params, _ := json.Marshal(map[string]string{"text": "hello from child"})
	s.handleNotification("notifications/message", params)

	assert.Equal(t, types.KindText, got.Kind)
	assert.Equal(t, "hello from child", got.Content)
}

func TestHandleNotificationToolCallProgress(t *testing.T) {
	s := newBareMCPSession()
	var got types.SessionMessage
	s.OnMessage(func(m types.SessionMessage) { got = m })

	params, _ := json.Marshal(map[string]any{"toolName": "grep", "status": "running"})
	s.handleNotification("notifications/tools/call_progress", params)

	assert.Equal(t, types.KindToolUse, got.Kind)
	assert.Equal(t, "grep", got.Metadata[types.MetaTool])
}

func TestHandleNotificationPermissionRequest(t *testing.T) {
	s := newBareMCPSession()
	var got types.SessionEvent
	s.OnEvent(func(e types.SessionEvent) { got = e })

	params, _ := json.Marshal(map[string]any{"requestId": "req-9", "toolName": "bash"})
	s.handleNotification("notifications/permission_request", params)

	require.Equal(t, types.EventPermissionRequest, got.Kind)
	assert.Equal(t, "req-9", got.Permission.RequestID)
}

func TestHandleNotificationError(t *testing.T) {
	s := newBareMCPSession()
	var got types.SessionEvent
	s.OnEvent(func(e types.SessionEvent) { got = e })

	params, _ := json.Marshal(map[string]any{"message": "tool crashed"})
	s.handleNotification("notifications/error", params)

	require.Equal(t, types.EventError, got.Kind)
	assert.Equal(t, types.SeverityWarning, got.Severity)
	assert.Equal(t, "tool crashed", got.Summary)
}

func TestHandleNotificationUnknownMethodIsDropped(t *testing.T) {
	s := newBareMCPSession()
	called := false
	s.OnMessage(func(m types.SessionMessage) { called = true })
	s.OnEvent(func(e types.SessionEvent) { called = true })

	s.handleNotification("notifications/unknown", json.RawMessage(`{}`))
	assert.False(t, called)
}

func TestHandleExitReportsChildEnded(t *testing.T) {
	s := newBareMCPSession()
	var got types.SessionEvent
	s.OnEvent(func(e types.SessionEvent) { got = e })

	s.handleExit(nil)
	assert.Equal(t, types.EventError, got.Kind)
	assert.Equal(t, types.SeverityInfo, got.Severity)
	assert.Equal(t, "mcp session ended", got.Summary)
}
