package security_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/workstream-im/chat-service/internal/config"
	"github.com/workstream-im/chat-service/internal/model"
	"github.com/workstream-im/chat-service/internal/security"
)

func TestAPIKeyResolution(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.APIKeys = map[string]string{
		"key-a":     "alice@a",
		"key-b":     "bob@b",
		"malformed": "no-region",
		"bad":       "eve@mars",
	}
	resolver := security.NewTokenResolver(&cfg)
	ctx := context.Background()

	p, err := resolver.Resolve(ctx, "", "key-a", "", "")
	require.NoError(t, err)
	assert.Equal(t, "alice", p.ID)
	assert.Equal(t, model.RegionA, p.Region)

	p, err = resolver.Resolve(ctx, "", "key-b", "", "")
	require.NoError(t, err)
	assert.Equal(t, model.RegionB, p.Region)

	// Malformed and unknown-region keys are dropped at parse time.
	_, err = resolver.Resolve(ctx, "", "malformed", "", "")
	require.Error(t, err)
	_, err = resolver.Resolve(ctx, "", "bad", "", "")
	require.Error(t, err)

	_, err = resolver.Resolve(ctx, "", "unknown-key", "", "")
	require.Error(t, err)
}

func TestTestingModeHeaders(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Mode = config.ModeTesting
	resolver := security.NewTokenResolver(&cfg)
	ctx := context.Background()

	p, err := resolver.Resolve(ctx, "", "", "alice", "a")
	require.NoError(t, err)
	assert.Equal(t, "alice", p.ID)
	assert.Equal(t, model.RegionA, p.Region)

	// Uppercase region spellings normalize.
	p, err = resolver.Resolve(ctx, "", "", "bob", "B")
	require.NoError(t, err)
	assert.Equal(t, model.RegionB, p.Region)

	// An unknown region never falls back to a default backend.
	_, err = resolver.Resolve(ctx, "", "", "alice", "eu")
	require.Error(t, err)

	_, err = resolver.Resolve(ctx, "", "", "", "a")
	require.Error(t, err)
}

func TestProdModeIgnoresIdentityHeaders(t *testing.T) {
	cfg := config.DefaultConfig()
	resolver := security.NewTokenResolver(&cfg)

	_, err := resolver.Resolve(context.Background(), "", "", "alice", "a")
	require.Error(t, err)
}

func TestParseRegion(t *testing.T) {
	for raw, want := range map[string]model.Region{
		"a": model.RegionA, "A": model.RegionA,
		"b": model.RegionB, "B": model.RegionB,
	} {
		got, ok := model.ParseRegion(raw)
		require.True(t, ok, raw)
		assert.Equal(t, want, got)
	}
	_, ok := model.ParseRegion("")
	assert.False(t, ok)
	_, ok = model.ParseRegion("ab")
	assert.False(t, ok)
}
