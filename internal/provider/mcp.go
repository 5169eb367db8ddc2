package provider

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/happyclaw/supervisor/internal/mcpbridge"
	"github.com/happyclaw/supervisor/internal/types"
)

// mcpSession drives a child MCP server over stdio, translating its
// notifications into SessionMessage/SessionEvent callbacks.
type mcpSession struct {
	id      string
	cwd     string
	ownerID string

	bridge *mcpbridge.Bridge

	mode   types.SessionMode
	modeMu sync.Mutex

	cbMu  sync.Mutex
	onMsg func(types.SessionMessage)
	onEv  func(types.SessionEvent)
}

type mcpToolCallProgress struct {
	ToolName string         `json:"toolName"`
	Status   string         `json:"status"`
	Input    map[string]any `json:"input,omitempty"`
}

type mcpPermissionRequest struct {
	RequestID string         `json:"requestId"`
	ToolName  string         `json:"toolName"`
	Input     map[string]any `json:"input,omitempty"`
}

type mcpMessageNotification struct {
	Text string `json:"text"`
}

type mcpErrorNotification struct {
	Message string `json:"message"`
}

// NewMCPFactory returns a Factory that starts req.Command as an MCP
// server and performs the initialize handshake before returning.
func NewMCPFactory() Factory {
	return func(ctx context.Context, req SpawnRequest) (Session, error) {
		bridge, err := mcpbridge.Start(ctx, req.Command, req.Env)
		if err != nil {
			return nil, err
		}

		s := &mcpSession{
			id:      req.SessionID,
			cwd:     req.Cwd,
			ownerID: req.OwnerID,
			bridge:  bridge,
			mode:    types.ModeLocal,
		}
		bridge.OnNotification = s.handleNotification
		bridge.OnExit = s.handleExit

		initCtx, cancel := context.WithTimeout(ctx, mcpbridge.DefaultTimeout)
		defer cancel()
		if _, err := bridge.Request(initCtx, "initialize", map[string]any{
			"protocolVersion": "2024-11-05",
			"clientInfo":      map[string]string{"name": "happyclawd", "version": "1"},
		}); err != nil {
			bridge.Close()
			return nil, err
		}
		if err := bridge.Notify("notifications/initialized", nil); err != nil {
			bridge.Close()
			return nil, err
		}

		return s, nil
	}
}

func (s *mcpSession) ID() string              { return s.id }
func (s *mcpSession) Provider() Kind          { return KindMCP }
func (s *mcpSession) Cwd() string             { return s.cwd }
func (s *mcpSession) PID() int                { return s.bridge.PID() }
func (s *mcpSession) Mode() types.SessionMode {
	s.modeMu.Lock()
	defer s.modeMu.Unlock()
	return s.mode
}

func (s *mcpSession) OnMessage(f func(types.SessionMessage)) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.onMsg = f
}

func (s *mcpSession) OnEvent(f func(types.SessionEvent)) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.onEv = f
}

func (s *mcpSession) emitMessage(m types.SessionMessage) {
	s.cbMu.Lock()
	cb := s.onMsg
	s.cbMu.Unlock()
	if cb != nil {
		cb(m)
	}
}

func (s *mcpSession) emitEvent(e types.SessionEvent) {
	s.cbMu.Lock()
	cb := s.onEv
	s.cbMu.Unlock()
	if cb != nil {
		cb(e)
	}
}

// handleNotification routes the notification methods this supervisor
// understands; anything else is dropped, matching Bridge's own
// drop-on-malformed-frame behavior.
func (s *mcpSession) handleNotification(method string, params json.RawMessage) {
	switch method {
	case "notifications/message":
		var n mcpMessageNotification
		if json.Unmarshal(params, &n) == nil {
			s.emitMessage(types.SessionMessage{Kind: types.KindText, Content: n.Text, Timestamp: time.Now()})
		}
	case "notifications/tools/call_progress":
		var p mcpToolCallProgress
		if json.Unmarshal(params, &p) == nil {
			s.emitMessage(types.SessionMessage{
				Kind:      types.KindToolUse,
				Content:   p.Status,
				Timestamp: time.Now(),
				Metadata:  map[string]string{types.MetaTool: p.ToolName},
			})
		}
	case "notifications/permission_request":
		var p mcpPermissionRequest
		if json.Unmarshal(params, &p) == nil {
			s.emitEvent(types.SessionEvent{
				Kind:      types.EventPermissionRequest,
				Severity:  types.SeverityWarning,
				SessionID: s.id,
				Timestamp: time.Now(),
				Summary:   "tool call requires authorization: " + p.ToolName,
				Permission: &types.PermissionDetail{
					RequestID: p.RequestID,
					ToolName:  p.ToolName,
					Input:     p.Input,
				},
			})
		}
	case "notifications/error":
		var e mcpErrorNotification
		if json.Unmarshal(params, &e) == nil {
			s.emitEvent(types.SessionEvent{
				Kind:      types.EventError,
				Severity:  types.SeverityWarning,
				SessionID: s.id,
				Timestamp: time.Now(),
				Summary:   e.Message,
			})
		}
	}
}

func (s *mcpSession) handleExit(err error) {
	summary := "mcp session ended"
	if err != nil {
		summary = "mcp session ended: " + err.Error()
	}
	s.emitEvent(types.SessionEvent{
		Kind:      types.EventError,
		Severity:  types.SeverityInfo,
		SessionID: s.id,
		Timestamp: time.Now(),
		Summary:   summary,
	})
}

func (s *mcpSession) Send(ctx context.Context, text string) error {
	result, err := s.bridge.Request(ctx, "tools/call", map[string]any{
		"name": "send_message",
		"arguments": map[string]any{
			"text": text,
		},
	})
	if err != nil {
		return err
	}

	var content struct {
		Content string `json:"content"`
	}
	if json.Unmarshal(result, &content) == nil && content.Content != "" {
		s.emitMessage(types.SessionMessage{Kind: types.KindText, Content: content.Content, Timestamp: time.Now()})
	}
	return nil
}

func (s *mcpSession) RespondToPermission(ctx context.Context, requestID string, allow bool) error {
	_, err := s.bridge.Request(ctx, "permission/respond", map[string]any{
		"requestId": requestID,
		"allow":     allow,
	})
	return err
}

func (s *mcpSession) SwitchMode(ctx context.Context, mode types.SessionMode) error {
	s.modeMu.Lock()
	defer s.modeMu.Unlock()
	if mode == s.mode {
		return nil
	}
	s.mode = mode
	return nil
}

func (s *mcpSession) Stop(ctx context.Context) error {
	return s.bridge.Terminate(ctx)
}
