package conversations_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/workstream-im/chat-service/internal/config"
	"github.com/workstream-im/chat-service/internal/directory"
	"github.com/workstream-im/chat-service/internal/model"
	"github.com/workstream-im/chat-service/internal/plugin/cache/noop"
	routeconversations "github.com/workstream-im/chat-service/internal/plugin/route/conversations"
	"github.com/workstream-im/chat-service/internal/profile"
	"github.com/workstream-im/chat-service/internal/region"
	"github.com/workstream-im/chat-service/internal/security"
	"github.com/workstream-im/chat-service/internal/storetest"
	"github.com/workstream-im/chat-service/internal/unread"
)

func setupRouter(t *testing.T) (*gin.Engine, *storetest.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := storetest.New()
	router := region.NewRouter()
	router.Mount(model.RegionA, st)

	profiles, err := profile.NewResolver(1000, time.Minute)
	require.NoError(t, err)
	t.Cleanup(profiles.Close)

	svc := &directory.Service{
		Router:   router,
		Unread:   unread.New(noop.Cache{}, time.Minute),
		Profiles: profiles,
	}

	cfg := config.DefaultConfig()
	cfg.Mode = config.ModeTesting
	auth := security.AuthMiddleware(security.NewTokenResolver(&cfg))

	engine := gin.New()
	routeconversations.MountRoutes(engine, svc, auth)
	return engine, st
}

func doRequest(engine *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "alice")
	req.Header.Set("X-User-Region", "a")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestListRequiresAuth(t *testing.T) {
	engine, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/conversations", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUnknownRegionIsUnauthorized(t *testing.T) {
	engine, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/conversations", nil)
	req.Header.Set("X-User-ID", "alice")
	req.Header.Set("X-User-Region", "zz")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListEmpty(t *testing.T) {
	engine, _ := setupRouter(t)

	w := doRequest(engine, http.MethodGet, "/v1/conversations", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []directory.ConversationSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotNil(t, resp.Data)
	assert.Empty(t, resp.Data)
}

func TestCreateConversation(t *testing.T) {
	engine, st := setupRouter(t)
	st.AddProfile(model.UserProfile{ID: "alice", DisplayName: "Alice"})
	st.AddProfile(model.UserProfile{ID: "bob", DisplayName: "Bob"})

	w := doRequest(engine, http.MethodPost, "/v1/conversations",
		`{"type":"group","name":"Planning","memberIds":["bob"]}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var summary directory.ConversationSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, model.ConversationGroup, summary.Type)
	assert.Len(t, summary.Members, 2)
}

func TestCreateConversationValidation(t *testing.T) {
	engine, _ := setupRouter(t)

	w := doRequest(engine, http.MethodPost, "/v1/conversations", `{"type":"broadcast"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// A direct conversation takes at most one other member.
	w = doRequest(engine, http.MethodPost, "/v1/conversations",
		`{"type":"direct","memberIds":["bob","carol"]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	longName := strings.Repeat("x", 501)
	w = doRequest(engine, http.MethodPost, "/v1/conversations",
		`{"type":"group","name":"`+longName+`"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPinLifecycle(t *testing.T) {
	engine, st := setupRouter(t)
	ctx := context.Background()

	conv := model.Conversation{ID: uuid.New(), Type: model.ConversationGroup, CreatedBy: "alice", CreatedAt: time.Now()}
	require.NoError(t, st.CreateConversation(ctx, &conv))
	require.NoError(t, st.CreateMembership(ctx, &model.Membership{
		ConversationID: conv.ID, UserID: "alice", Role: model.RoleOwner, CreatedAt: time.Now(),
	}))

	w := doRequest(engine, http.MethodPut, "/v1/conversations/"+conv.ID.String()+"/pin", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	m, err := st.GetMembership(ctx, conv.ID, "alice")
	require.NoError(t, err)
	assert.True(t, m.IsPinned)

	w = doRequest(engine, http.MethodDelete, "/v1/conversations/"+conv.ID.String()+"/pin", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestPinUnknownConversation(t *testing.T) {
	engine, _ := setupRouter(t)

	w := doRequest(engine, http.MethodPut, "/v1/conversations/"+uuid.NewString()+"/pin", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Malformed IDs look the same as missing ones.
	w = doRequest(engine, http.MethodPut, "/v1/conversations/not-a-uuid/pin", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLeaveThenOperate(t *testing.T) {
	engine, st := setupRouter(t)
	ctx := context.Background()

	conv := model.Conversation{ID: uuid.New(), Type: model.ConversationGroup, CreatedBy: "alice", CreatedAt: time.Now()}
	require.NoError(t, st.CreateConversation(ctx, &conv))
	require.NoError(t, st.CreateMembership(ctx, &model.Membership{
		ConversationID: conv.ID, UserID: "alice", Role: model.RoleOwner, CreatedAt: time.Now(),
	}))

	w := doRequest(engine, http.MethodDelete, "/v1/conversations/"+conv.ID.String()+"/membership", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	// Every membership operation on a left conversation is a 404.
	w = doRequest(engine, http.MethodPut, "/v1/conversations/"+conv.ID.String()+"/read", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = doRequest(engine, http.MethodPut, "/v1/conversations/"+conv.ID.String()+"/hide", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
