package acl

import (
	"testing"

	"github.com/happyclaw/supervisor/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAndCanAccess(t *testing.T) {
	a := New()
	a.Record("sess1", "alice")

	assert.True(t, a.CanAccess("alice", "sess1"))
	assert.False(t, a.CanAccess("bob", "sess1"))
}

func TestAssertOwnerUnknownSession(t *testing.T) {
	a := New()
	err := a.AssertOwner("alice", "missing")
	require.Error(t, err)
	assert.True(t, isUnknownSession(err))
}

func TestAssertOwnerNotOwner(t *testing.T) {
	a := New()
	a.Record("sess1", "alice")

	err := a.AssertOwner("bob", "sess1")
	require.Error(t, err)
	assert.True(t, types.IsNotOwner(err))
}

func TestClearRemovesOwnership(t *testing.T) {
	a := New()
	a.Record("sess1", "alice")
	a.Clear("sess1")

	assert.False(t, a.CanAccess("alice", "sess1"))
	_, ok := a.Owner("sess1")
	assert.False(t, ok)
}

func isUnknownSession(err error) bool {
	_, ok := err.(*types.UnknownSessionError)
	return ok
}
