package region

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/workstream-im/chat-service/internal/model"
	"github.com/workstream-im/chat-service/internal/security"
	"github.com/workstream-im/chat-service/internal/storetest"
)

func TestResolveDispatchesByRegion(t *testing.T) {
	a := storetest.New()
	b := storetest.New()

	r := NewRouter()
	r.Mount(model.RegionA, a)
	r.Mount(model.RegionB, b)

	got, err := r.Resolve(security.Principal{ID: "alice", Region: model.RegionA})
	require.NoError(t, err)
	assert.Same(t, a, got)

	got, err = r.Resolve(security.Principal{ID: "bob", Region: model.RegionB})
	require.NoError(t, err)
	assert.Same(t, b, got)
}

func TestResolveUnknownRegionNeverGuesses(t *testing.T) {
	r := NewRouter()
	r.Mount(model.RegionA, storetest.New())

	_, err := r.Resolve(security.Principal{ID: "bob", Region: model.RegionB})
	require.ErrorIs(t, err, ErrUnknownRegion)

	_, err = r.Resolve(security.Principal{ID: "eve", Region: "eu"})
	require.ErrorIs(t, err, ErrUnknownRegion)
}
