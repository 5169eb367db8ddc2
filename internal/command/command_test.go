package command

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/happyclaw/supervisor/internal/types"
)

func TestDefaultInterceptorRecognizesAbort(t *testing.T) {
	assert.True(t, DefaultInterceptor("/abort"))
	assert.False(t, DefaultInterceptor("/Abort"))
	assert.False(t, DefaultInterceptor("hello"))
	assert.False(t, DefaultInterceptor(""))
}

func TestSummarizeCountsByKindAndBytes(t *testing.T) {
	messages := []types.SessionMessage{
		{Kind: types.KindText, Content: "hello", Timestamp: time.Now()},
		{Kind: types.KindText, Content: "world!", Timestamp: time.Now()},
		{Kind: types.KindToolUse, Content: "grep", Timestamp: time.Now()},
	}

	stats := Summarize(messages)
	assert.Equal(t, 3, stats.Count)
	assert.Equal(t, 2, stats.ByKind[types.KindText])
	assert.Equal(t, 1, stats.ByKind[types.KindToolUse])
	assert.Equal(t, len("hello")+len("world!")+len("grep"), stats.TotalBytes)
}

func TestSummarizeEmptyBuffer(t *testing.T) {
	stats := Summarize(nil)
	assert.Equal(t, 0, stats.Count)
	assert.Equal(t, 0, stats.TotalBytes)
	assert.Empty(t, stats.ByKind)
}
