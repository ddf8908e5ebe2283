package serve

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func corsTestRouter(originsCSV string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(corsMiddleware(originsCSV))
	r.GET("/v1/contacts", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"data": []string{}})
	})
	return r
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	r := corsTestRouter("https://app.example.com")

	req := httptest.NewRequest(http.MethodGet, "/v1/contacts", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "X-User-Region")
}

func TestCORSIgnoresUnknownOrigin(t *testing.T) {
	r := corsTestRouter("https://app.example.com")

	req := httptest.NewRequest(http.MethodGet, "/v1/contacts", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSEmptyListAllowsAnyOrigin(t *testing.T) {
	r := corsTestRouter("")

	req := httptest.NewRequest(http.MethodGet, "/v1/contacts", nil)
	req.Header.Set("Origin", "https://anywhere.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://anywhere.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflightShortCircuits(t *testing.T) {
	r := corsTestRouter("https://app.example.com")

	req := httptest.NewRequest(http.MethodOptions, "/v1/contacts", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, corsMethods, w.Header().Get("Access-Control-Allow-Methods"))
}
