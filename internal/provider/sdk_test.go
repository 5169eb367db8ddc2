package provider

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/happyclaw/supervisor/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEngine is a minimal AgentStream used to drive sdkSession without a
// real completion backend, matching how the teacher's own stream tests
// drive a Processor with canned schema.Message chunks.
type fakeEngine struct {
	mu      sync.Mutex
	chunks  []AgentChunk
	askCh   chan<- PermissionAsk
	runErr  error
	runArgs []string
}

func (f *fakeEngine) Run(ctx context.Context, input string) (<-chan AgentChunk, error) {
	f.mu.Lock()
	f.runArgs = append(f.runArgs, input)
	f.mu.Unlock()

	if f.runErr != nil {
		return nil, f.runErr
	}

	out := make(chan AgentChunk, len(f.chunks))
	for _, c := range f.chunks {
		out <- c
	}
	close(out)
	return out, nil
}

func (f *fakeEngine) CanUseTool(askCh chan<- PermissionAsk) {
	f.askCh = askCh
}

func TestSDKSessionTranslatesChunksToMessages(t *testing.T) {
	engine := &fakeEngine{chunks: []AgentChunk{
		{Kind: types.KindText, Text: "hello"},
		{Kind: types.KindToolUse, ToolName: "grep", ToolUseID: "tu1"},
	}}
	factory := NewSDKFactory(engine)
	sess, err := factory(context.Background(), SpawnRequest{SessionID: "s1"})
	require.NoError(t, err)

	var mu sync.Mutex
	var msgs []types.SessionMessage
	done := make(chan struct{})
	sess.OnEvent(func(e types.SessionEvent) {
		if e.Kind == types.EventTaskComplete {
			close(done)
		}
	})
	sess.OnMessage(func(m types.SessionMessage) {
		mu.Lock()
		defer mu.Unlock()
		msgs = append(msgs, m)
	})

	require.NoError(t, sess.Send(context.Background(), "hi"))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected turn to complete")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, types.KindToolUse, msgs[1].Kind)
	assert.Equal(t, "grep", msgs[1].Metadata[types.MetaTool])
	assert.Equal(t, "tu1", msgs[1].Metadata[types.MetaToolUseID])
}

func TestSDKSessionPermissionAskRoundTrip(t *testing.T) {
	engine := &fakeEngine{}
	factory := NewSDKFactory(engine)
	sess, err := factory(context.Background(), SpawnRequest{SessionID: "s1"})
	require.NoError(t, err)

	evCh := make(chan types.SessionEvent, 1)
	sess.OnEvent(func(e types.SessionEvent) { evCh <- e })

	engine.askCh <- PermissionAsk{RequestID: "req-1", ToolName: "bash", Input: map[string]any{"cmd": "ls"}}

	var ev types.SessionEvent
	select {
	case ev = <-evCh:
	case <-time.After(time.Second):
		t.Fatal("expected permission_request event")
	}
	require.Equal(t, types.EventPermissionRequest, ev.Kind)
	assert.Equal(t, "req-1", ev.Permission.RequestID)

	require.NoError(t, sess.RespondToPermission(context.Background(), "req-1", true))

	// A second resolution of the same request id must fail: it was
	// already removed from pending.
	err = sess.RespondToPermission(context.Background(), "req-1", true)
	require.Error(t, err)
}

func TestSDKSessionQueuesSendDuringActiveTurn(t *testing.T) {
	started := make(chan string, 2)
	release := make(chan struct{})
	engine := &blockingEngine{started: started, release: release}

	factory := NewSDKFactory(engine)
	sess, err := factory(context.Background(), SpawnRequest{SessionID: "s1"})
	require.NoError(t, err)

	completions := make(chan struct{}, 2)
	sess.OnEvent(func(e types.SessionEvent) {
		if e.Kind == types.EventTaskComplete {
			completions <- struct{}{}
		}
	})

	require.NoError(t, sess.Send(context.Background(), "first"))
	<-started // first turn has begun

	require.NoError(t, sess.Send(context.Background(), "second"))

	close(release)

	for i := 0; i < 2; i++ {
		select {
		case <-completions:
		case <-time.After(time.Second):
			t.Fatal("expected both turns to complete")
		}
	}

	select {
	case in := <-started:
		assert.Equal(t, "second", in)
	case <-time.After(time.Second):
		t.Fatal("expected second turn to have started")
	}
}

type blockingEngine struct {
	started chan string
	release chan struct{}
}

func (e *blockingEngine) Run(ctx context.Context, input string) (<-chan AgentChunk, error) {
	e.started <- input
	out := make(chan AgentChunk)
	go func() {
		<-e.release
		close(out)
	}()
	return out, nil
}

func (e *blockingEngine) CanUseTool(askCh chan<- PermissionAsk) {}
