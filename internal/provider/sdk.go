package provider

import (
	"context"
	"sync"
	"time"

	"github.com/happyclaw/supervisor/internal/types"
)

// AgentChunk is one unit of a streamed agent turn. Exactly one of the
// optional fields is meaningful, selected by Kind.
type AgentChunk struct {
	Kind types.MessageKind
	// Text is the content for Text/Thinking/ToolResult/Error chunks.
	Text string
	// ToolName/ToolInput describe a ToolUse chunk.
	ToolName  string
	ToolInput map[string]any
	ToolUseID string
}

// PermissionAsk is raised by an AgentStream mid-turn when a tool call
// requires authorization before it can proceed.
type PermissionAsk struct {
	RequestID string
	ToolName  string
	Input     map[string]any
}

// PermissionResponse resolves a PermissionAsk.
type PermissionResponse struct {
	Allow bool
}

// AgentStream is the streaming engine a SDK-backed session turn is driven
// by. Implementations translate a single user turn into a sequence of
// AgentChunks, optionally pausing on a PermissionAsk, which the caller
// resolves by sending on the returned response channel.
type AgentStream interface {
	// Run starts one turn for input and returns a channel of chunks,
	// closed when the turn finishes (successfully or otherwise).
	Run(ctx context.Context, input string) (<-chan AgentChunk, error)
	// CanUseTool is invoked by the engine when a tool call needs
	// authorization; askCh receives exactly one PermissionAsk, and the
	// engine blocks on respond(requestID) until RespondToPermission
	// delivers a PermissionResponse.
	CanUseTool(askCh chan<- PermissionAsk)
}

// sdkSession drives one AgentStream, translating its chunks into
// SessionMessage/SessionEvent callbacks and serializing turns so at most
// one is active at a time.
type sdkSession struct {
	id      string
	cwd     string
	ownerID string
	engine  AgentStream

	mode   types.SessionMode
	modeMu sync.Mutex

	cbMu  sync.Mutex
	onMsg func(types.SessionMessage)
	onEv  func(types.SessionEvent)

	turnMu   sync.Mutex
	inTurn   bool
	nextTurn chan string // one-slot buffer: Send during an active turn queues here

	pendingMu sync.Mutex
	pending   map[string]chan PermissionResponse

	askCh chan PermissionAsk

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewSDKFactory returns a Factory that drives sessions through engine.
// engine is shared across sessions created by this factory; callers that
// need per-session isolation should wrap NewSDKFactory per engine instance.
func NewSDKFactory(engine AgentStream) Factory {
	return func(ctx context.Context, req SpawnRequest) (Session, error) {
		s := &sdkSession{
			id:       req.SessionID,
			cwd:      req.Cwd,
			ownerID:  req.OwnerID,
			engine:   engine,
			mode:     types.ModeRemote,
			nextTurn: make(chan string, 1),
			pending:  make(map[string]chan PermissionResponse),
			askCh:    make(chan PermissionAsk, 1),
			stopCh:   make(chan struct{}),
		}
		engine.CanUseTool(s.askCh)
		go s.askLoop()
		return s, nil
	}
}

func (s *sdkSession) ID() string              { return s.id }
func (s *sdkSession) Provider() Kind          { return KindSDK }
func (s *sdkSession) Cwd() string             { return s.cwd }
func (s *sdkSession) PID() int                { return 0 }
func (s *sdkSession) Mode() types.SessionMode {
	s.modeMu.Lock()
	defer s.modeMu.Unlock()
	return s.mode
}

func (s *sdkSession) OnMessage(f func(types.SessionMessage)) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.onMsg = f
}

func (s *sdkSession) OnEvent(f func(types.SessionEvent)) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.onEv = f
}

func (s *sdkSession) emitMessage(m types.SessionMessage) {
	s.cbMu.Lock()
	cb := s.onMsg
	s.cbMu.Unlock()
	if cb != nil {
		cb(m)
	}
}

func (s *sdkSession) emitEvent(e types.SessionEvent) {
	s.cbMu.Lock()
	cb := s.onEv
	s.cbMu.Unlock()
	if cb != nil {
		cb(e)
	}
}

// askLoop waits for permission asks raised by the engine and surfaces each
// as a permission_request event, parking a response channel in pending
// keyed by request id, exactly as permission.Checker.Ask parks its
// response channel before publishing PermissionRequired.
func (s *sdkSession) askLoop() {
	for {
		select {
		case <-s.stopCh:
			return
		case ask := <-s.askCh:
			respCh := make(chan PermissionResponse, 1)
			s.pendingMu.Lock()
			s.pending[ask.RequestID] = respCh
			s.pendingMu.Unlock()

			s.emitEvent(types.SessionEvent{
				Kind:      types.EventPermissionRequest,
				Severity:  types.SeverityWarning,
				SessionID: s.id,
				Timestamp: time.Now(),
				Summary:   "tool call requires authorization: " + ask.ToolName,
				Permission: &types.PermissionDetail{
					RequestID: ask.RequestID,
					ToolName:  ask.ToolName,
					Input:     ask.Input,
				},
			})
		}
	}
}

func (s *sdkSession) Send(ctx context.Context, text string) error {
	s.turnMu.Lock()
	if s.inTurn {
		s.turnMu.Unlock()
		select {
		case s.nextTurn <- text:
		default:
			// drop the previously queued turn; only the latest matters
			select {
			case <-s.nextTurn:
			default:
			}
			s.nextTurn <- text
		}
		return nil
	}
	s.inTurn = true
	s.turnMu.Unlock()

	go s.runTurn(ctx, text)
	return nil
}

func (s *sdkSession) runTurn(ctx context.Context, input string) {
	defer func() {
		s.turnMu.Lock()
		select {
		case queued := <-s.nextTurn:
			s.turnMu.Unlock()
			s.runTurn(ctx, queued)
			return
		default:
			s.inTurn = false
			s.turnMu.Unlock()
		}
	}()

	chunks, err := s.engine.Run(ctx, input)
	if err != nil {
		s.emitEvent(types.SessionEvent{
			Kind:      types.EventError,
			Severity:  types.SeverityWarning,
			SessionID: s.id,
			Timestamp: time.Now(),
			Summary:   err.Error(),
		})
		return
	}

	for chunk := range chunks {
		s.emitMessage(types.SessionMessage{
			Kind:      chunk.Kind,
			Content:   textFor(chunk),
			Timestamp: time.Now(),
			Metadata:  metadataFor(chunk),
		})
	}

	s.emitEvent(types.SessionEvent{
		Kind:      types.EventTaskComplete,
		Severity:  types.SeverityInfo,
		SessionID: s.id,
		Timestamp: time.Now(),
		Summary:   "turn finished",
	})
}

func textFor(c AgentChunk) string {
	if c.Kind == types.KindToolUse && c.Text == "" {
		return c.ToolName
	}
	return c.Text
}

func metadataFor(c AgentChunk) map[string]string {
	if c.Kind != types.KindToolUse {
		return nil
	}
	md := map[string]string{types.MetaTool: c.ToolName}
	if c.ToolUseID != "" {
		md[types.MetaToolUseID] = c.ToolUseID
	}
	return md
}

func (s *sdkSession) RespondToPermission(ctx context.Context, requestID string, allow bool) error {
	s.pendingMu.Lock()
	ch, ok := s.pending[requestID]
	if ok {
		delete(s.pending, requestID)
	}
	s.pendingMu.Unlock()

	if !ok {
		return errString("permission request " + requestID + " is unknown or already resolved")
	}
	ch <- PermissionResponse{Allow: allow}
	return nil
}

// SwitchMode only ever accepts remote: an SDK session has no real child
// stdio to hand to a human terminal, so there is no local variant for it
// to switch into (only "SDK", never "SDK-local", in the provider variant
// list).
func (s *sdkSession) SwitchMode(ctx context.Context, mode types.SessionMode) error {
	s.modeMu.Lock()
	defer s.modeMu.Unlock()
	if mode == types.ModeLocal {
		return &types.NotSupportedError{Op: "switch to local", Mode: s.mode}
	}
	s.mode = mode
	return nil
}

func (s *sdkSession) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	return nil
}
