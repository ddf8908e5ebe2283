package profile_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/workstream-im/chat-service/internal/model"
	"github.com/workstream-im/chat-service/internal/profile"
	"github.com/workstream-im/chat-service/internal/storetest"
)

func TestResolveReturnsKnownProfilesOnly(t *testing.T) {
	st := storetest.New()
	st.AddProfile(model.UserProfile{ID: "alice", DisplayName: "Alice"})
	st.AddProfile(model.UserProfile{ID: "bob", DisplayName: "Bob"})

	r, err := profile.NewResolver(100, time.Minute)
	require.NoError(t, err)
	defer r.Close()

	// Duplicate and unknown IDs are tolerated.
	resolved, err := r.Resolve(context.Background(), st, []string{"alice", "alice", "bob", "ghost"})
	require.NoError(t, err)
	require.Len(t, resolved, 2)
	assert.Equal(t, "Alice", resolved["alice"].DisplayName)
	_, ok := resolved["ghost"]
	assert.False(t, ok)
}

func TestResolveEmptyInput(t *testing.T) {
	r, err := profile.NewResolver(100, time.Minute)
	require.NoError(t, err)
	defer r.Close()

	resolved, err := r.Resolve(context.Background(), storetest.New(), nil)
	require.NoError(t, err)
	assert.Empty(t, resolved)
}
