package provider

import (
	"context"
	"testing"

	"github.com/happyclaw/supervisor/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistrySpawnsRegisteredKind(t *testing.T) {
	r := NewRegistry()
	called := false
	r.Register(KindPTY, func(ctx context.Context, req SpawnRequest) (Session, error) {
		called = true
		return nil, nil
	})

	_, err := r.Spawn(context.Background(), KindPTY, SpawnRequest{SessionID: "s1"})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestRegistrySpawnUnknownKind(t *testing.T) {
	r := NewRegistry()
	_, err := r.Spawn(context.Background(), KindMCP, SpawnRequest{})
	require.Error(t, err)
	var notSupported *types.NotSupportedError
	assert.ErrorAs(t, err, &notSupported)
}

func TestDefaultRegistryWithoutEngineSkipsSDK(t *testing.T) {
	r := NewDefaultRegistry(nil)
	_, err := r.Spawn(context.Background(), KindSDK, SpawnRequest{})
	require.Error(t, err)
}
