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

// These tests spawn a real PTY-attached child (sh), the same way
// wingedpig-trellis' terminal handler drives tmux/ssh processes under
// pty.Start, rather than faking the transport.

func TestPTYSessionEchoesOutputAsMessages(t *testing.T) {
	factory := NewPTYFactory()
	sess, err := factory(context.Background(), SpawnRequest{
		SessionID: "s1",
		Cwd:       "/tmp",
		Command:   []string{"/bin/sh", "-c", "echo Error: boom"},
	})
	require.NoError(t, err)
	defer sess.Stop(context.Background())

	var mu sync.Mutex
	var msgs []types.SessionMessage
	done := make(chan struct{})
	var once sync.Once
	sess.OnMessage(func(m types.SessionMessage) {
		mu.Lock()
		msgs = append(msgs, m)
		mu.Unlock()
		if m.Kind == types.KindError {
			once.Do(func() { close(done) })
		}
	})

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("expected an error-classified line from the child's output")
	}

	mu.Lock()
	defer mu.Unlock()
	found := false
	for _, m := range msgs {
		if m.Kind == types.KindError {
			found = true
		}
	}
	assert.True(t, found)
}

func TestPTYSessionSendWritesToChild(t *testing.T) {
	factory := NewPTYFactory()
	sess, err := factory(context.Background(), SpawnRequest{
		SessionID: "s1",
		Cwd:       "/tmp",
		Command:   []string{"/bin/cat"},
	})
	require.NoError(t, err)
	defer sess.Stop(context.Background())

	var mu sync.Mutex
	var got string
	done := make(chan struct{})
	var once sync.Once
	sess.OnMessage(func(m types.SessionMessage) {
		mu.Lock()
		got += m.Content
		mu.Unlock()
		once.Do(func() { close(done) })
	})

	require.NoError(t, sess.Send(context.Background(), "hello-pty\n"))

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("expected cat to echo the written input back")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, got, "hello-pty")
}

func TestPTYSessionSendRejectsControlBytes(t *testing.T) {
	factory := NewPTYFactory()
	sess, err := factory(context.Background(), SpawnRequest{
		SessionID: "s1",
		Cwd:       "/tmp",
		Command:   []string{"/bin/cat"},
	})
	require.NoError(t, err)
	defer sess.Stop(context.Background())

	err = sess.Send(context.Background(), "\x03")
	require.Error(t, err)
	var blocked *types.InputBlockedError
	assert.ErrorAs(t, err, &blocked)
}

func TestPTYSessionStopIsIdempotent(t *testing.T) {
	factory := NewPTYFactory()
	sess, err := factory(context.Background(), SpawnRequest{
		SessionID: "s1",
		Cwd:       "/tmp",
		Command:   []string{"/bin/sleep", "30"},
	})
	require.NoError(t, err)

	require.NoError(t, sess.Stop(context.Background()))
	require.NoError(t, sess.Stop(context.Background()))
}

func TestPTYFactoryRejectsEmptyCommand(t *testing.T) {
	factory := NewPTYFactory()
	_, err := factory(context.Background(), SpawnRequest{SessionID: "s1", Cwd: "/tmp"})
	require.Error(t, err)
	var spawnErr *types.SpawnFailedError
	assert.ErrorAs(t, err, &spawnErr)
}
