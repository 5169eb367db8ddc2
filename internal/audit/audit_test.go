package audit

import (
	"testing"
	"time"

	"github.com/happyclaw/supervisor/internal/types"
	"github.com/stretchr/testify/require"
)

func TestLogAndReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir)
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Log(types.AuditEntry{
		Timestamp: time.Now(),
		UserID:    "alice",
		Action:    "session.spawn",
		SessionID: "sess1",
	}))
	require.NoError(t, l.Log(types.AuditEntry{
		Timestamp: time.Now(),
		UserID:    "alice",
		Action:    "session.stop",
		SessionID: "sess1",
	}))

	entries, err := l.Read(0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	// Newest-first.
	require.Equal(t, "session.stop", entries[0].Action)
	require.Equal(t, "session.spawn", entries[1].Action)
}

func TestReadLimit(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir)
	require.NoError(t, err)
	defer l.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Log(types.AuditEntry{Timestamp: time.Now(), Action: "a"}))
	}

	entries, err := l.Read(0, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestReadSkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir)
	require.NoError(t, err)

	require.NoError(t, l.Log(types.AuditEntry{Timestamp: time.Now(), Action: "good"}))

	_, err = l.file.WriteString("not-json\n")
	require.NoError(t, err)
	require.NoError(t, l.file.Sync())

	entries, err := l.Read(0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "good", entries[0].Action)
}
