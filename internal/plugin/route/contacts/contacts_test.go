package contacts_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/workstream-im/chat-service/internal/config"
	"github.com/workstream-im/chat-service/internal/model"
	routecontacts "github.com/workstream-im/chat-service/internal/plugin/route/contacts"
	"github.com/workstream-im/chat-service/internal/region"
	"github.com/workstream-im/chat-service/internal/security"
	"github.com/workstream-im/chat-service/internal/storetest"
)

func setupRouter(t *testing.T) (*gin.Engine, *storetest.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := storetest.New()
	router := region.NewRouter()
	router.Mount(model.RegionA, st)

	cfg := config.DefaultConfig()
	cfg.Mode = config.ModeTesting
	auth := security.AuthMiddleware(security.NewTokenResolver(&cfg))

	engine := gin.New()
	routecontacts.MountRoutes(engine, router, auth)
	return engine, st
}

func doRequest(engine *gin.Engine, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("X-User-ID", "alice")
	req.Header.Set("X-User-Region", "a")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestContactLifecycle(t *testing.T) {
	engine, _ := setupRouter(t)

	// Empty list marshals as [], not null.
	w := doRequest(engine, http.MethodGet, "/v1/contacts")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":[]}`, w.Body.String())

	w = doRequest(engine, http.MethodPut, "/v1/contacts/bob")
	assert.Equal(t, http.StatusNoContent, w.Code)
	// Adding twice is idempotent.
	w = doRequest(engine, http.MethodPut, "/v1/contacts/bob")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doRequest(engine, http.MethodGet, "/v1/contacts")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data []string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []string{"bob"}, resp.Data)

	w = doRequest(engine, http.MethodDelete, "/v1/contacts/bob")
	assert.Equal(t, http.StatusNoContent, w.Code)
	// Removing an absent edge is a no-op success.
	w = doRequest(engine, http.MethodDelete, "/v1/contacts/bob")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestAddSelfAsContactRejected(t *testing.T) {
	engine, _ := setupRouter(t)

	w := doRequest(engine, http.MethodPut, "/v1/contacts/alice")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestContactEdgeIsDirectional(t *testing.T) {
	engine, st := setupRouter(t)

	w := doRequest(engine, http.MethodPut, "/v1/contacts/bob")
	require.Equal(t, http.StatusNoContent, w.Code)

	// alice -> bob does not imply bob -> alice.
	ids, err := st.ListContactIDs(context.Background(), "bob")
	require.NoError(t, err)
	assert.Empty(t, ids)
}
