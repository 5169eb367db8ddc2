package ptyparser

import (
	"testing"

	"github.com/happyclaw/supervisor/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeFenceAccumulatesAndEmitsOnClose(t *testing.T) {
	r := NewRuleSet()
	lines := []string{"```typescript", "const x = 1;", "console.log(x);", "```"}

	for i := 0; i < 3; i++ {
		_, ok := r.Parse(lines[i])
		assert.False(t, ok, "line %d should not emit a message", i)
	}

	msg, ok := r.Parse(lines[3])
	require.True(t, ok)
	assert.Equal(t, types.KindCode, msg.Kind)
	assert.Equal(t, "const x = 1;\nconsole.log(x);", msg.Content)
	assert.Equal(t, "typescript", msg.Metadata[types.MetaLanguage])
}

func TestFenceWithoutLanguage(t *testing.T) {
	r := NewRuleSet()
	r.Parse("```")
	r.Parse("plain text")
	msg, ok := r.Parse("```")
	require.True(t, ok)
	assert.Equal(t, "", msg.Metadata[types.MetaLanguage])
	assert.Equal(t, "plain text", msg.Content)
}

func TestBlankLineEmitsNothing(t *testing.T) {
	r := NewRuleSet()
	_, ok := r.Parse("   ")
	assert.False(t, ok)
}

func TestPrefixClassification(t *testing.T) {
	cases := []struct {
		line string
		kind types.MessageKind
	}{
		{"Using tool: grep", types.KindToolUse},
		{"Running: go test ./...", types.KindToolUse},
		{"Tool result: ok", types.KindToolResult},
		{"Error: file not found", types.KindError},
		{"error: lowercase too", types.KindError},
		{"Failed: build step", types.KindError},
		{"Thinking…", types.KindThinking},
		{"Analyzing…", types.KindThinking},
		{"just some text", types.KindText},
	}

	for _, c := range cases {
		r := NewRuleSet()
		msg, ok := r.Parse(c.line)
		require.True(t, ok, c.line)
		assert.Equal(t, c.kind, msg.Kind, c.line)
	}
}

func TestDetectEventPermissionPrompt(t *testing.T) {
	r := NewRuleSet()
	ev, ok := r.DetectEvent("Allow this action? [Y/n]", "sess1")
	require.True(t, ok)
	assert.Equal(t, types.EventPermissionRequest, ev.Kind)
	require.NotNil(t, ev.Permission)
	assert.NotEmpty(t, ev.Permission.RequestID)
}

func TestDetectEventInputReady(t *testing.T) {
	r := NewRuleSet()
	ev, ok := r.DetectEvent("> ", "sess1")
	require.True(t, ok)
	assert.Equal(t, types.EventWaitingForInput, ev.Kind)
}

func TestDetectEventNoMatch(t *testing.T) {
	r := NewRuleSet()
	_, ok := r.DetectEvent("just chatting", "sess1")
	assert.False(t, ok)
}

func TestFilterInputRejectsControlBytes(t *testing.T) {
	cases := []string{
		"\x03",     // Ctrl-C
		"\x04",     // Ctrl-D
		"\x1A",     // Ctrl-Z
		"\x1B[2J",  // ESC / CSI
		"hello\x03world",
	}
	for _, s := range cases {
		_, ok := FilterInput(s)
		assert.False(t, ok, "%q should be blocked", s)
	}
}

func TestFilterInputAllowsPlainText(t *testing.T) {
	out, ok := FilterInput("hello world\n")
	assert.True(t, ok)
	assert.Equal(t, "hello world\n", out)
}
