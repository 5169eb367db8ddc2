package cwdwhitelist

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyWhitelistAllowsEverything(t *testing.T) {
	w := New()
	assert.True(t, w.Check("/anything/at/all"))
}

func TestCheckAllowsExactAndNestedPaths(t *testing.T) {
	dir := t.TempDir()
	w := New(dir)

	assert.True(t, w.Check(dir))
	assert.True(t, w.Check(filepath.Join(dir, "sub", "dir")))
	assert.False(t, w.Check(filepath.Join(dir, "..", "escaped")))
}

func TestCheckRejectsDotDotEscape(t *testing.T) {
	dir := t.TempDir()
	allowedSub := filepath.Join(dir, "allowed")
	w := New(allowedSub)

	// /allowed/../etc resolves outside the whitelist once ".." is collapsed.
	escaped := filepath.Join(allowedSub, "..", "etc")
	assert.False(t, w.Check(escaped))
}

func TestAssertReturnsPathDenied(t *testing.T) {
	dir := t.TempDir()
	w := New(dir)

	err := w.Assert("/definitely/not/allowed")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path denied")
}

func TestSiblingPrefixIsNotAllowed(t *testing.T) {
	dir := t.TempDir()
	w := New(filepath.Join(dir, "allowed"))

	// "/allowed-evil" must not be treated as nested under "/allowed".
	assert.False(t, w.Check(filepath.Join(dir, "allowed-evil")))
}
