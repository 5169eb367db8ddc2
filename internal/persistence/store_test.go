package persistence

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/happyclaw/supervisor/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	in := []types.PersistedSession{
		{ID: "a", Provider: "sdk"},
		{ID: "b", Provider: "mcp"},
	}
	require.NoError(t, s.Save(in))

	out, err := s.Load()
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ID)
	assert.Equal(t, "b", out[1].ID)
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	out, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestLoadNonArrayTopLevelIsEmpty(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "sessions.json"), []byte(`"not-an-array"`), 0o644))

	out, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestLoadCorruptJSONFails(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "sessions.json"), []byte(`{broken json!!!`), 0o644))

	_, err := s.Load()
	require.Error(t, err)
	var corrupt *types.CorruptStoreError
	require.ErrorAs(t, err, &corrupt)
}

func TestSaveLeavesNoTmpFile(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	require.NoError(t, s.Save([]types.PersistedSession{{ID: "a"}}))

	_, err := os.Stat(filepath.Join(dir, "sessions.json.tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestAddUpdateRemoveCompose(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	require.NoError(t, s.Add(types.PersistedSession{ID: "a", PID: 1}))
	require.NoError(t, s.Add(types.PersistedSession{ID: "b", PID: 2}))

	require.NoError(t, s.Update(types.PersistedSession{ID: "a", PID: 99}))
	// Unknown id is a silent no-op.
	require.NoError(t, s.Update(types.PersistedSession{ID: "nope", PID: 1}))

	out, err := s.Load()
	require.NoError(t, err)
	require.Len(t, out, 2)
	for _, rec := range out {
		if rec.ID == "a" {
			assert.Equal(t, 99, rec.PID)
		}
	}

	require.NoError(t, s.Remove("a"))
	out, err = s.Load()
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "b", out[0].ID)

	// Unknown id removal is a silent no-op.
	require.NoError(t, s.Remove("nope"))
}

func TestRemoveMany(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	require.NoError(t, s.Save([]types.PersistedSession{{ID: "a"}, {ID: "b"}, {ID: "c"}}))
	require.NoError(t, s.RemoveMany([]string{"a", "c"}))

	out, err := s.Load()
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "b", out[0].ID)
}
