package serve

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// corsHeaders and corsMethods cover everything the chat API accepts,
// including the testing-mode identity headers.
const (
	corsHeaders = "Authorization, Content-Type, X-API-Key, X-User-ID, X-User-Region"
	corsMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
)

// corsMiddleware stamps CORS headers for allowed origins and answers
// preflight requests. An empty origin list allows any origin.
func corsMiddleware(originsCSV string) gin.HandlerFunc {
	allowed := map[string]bool{}
	for _, part := range strings.Split(originsCSV, ",") {
		if origin := strings.TrimSpace(part); origin != "" {
			allowed[origin] = true
		}
	}
	return func(c *gin.Context) {
		origin := strings.TrimSpace(c.GetHeader("Origin"))
		if origin != "" && (len(allowed) == 0 || allowed[origin]) {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Headers", corsHeaders)
			h.Set("Access-Control-Allow-Methods", corsMethods)
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
