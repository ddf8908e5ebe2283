// Package system serves the operational endpoints: liveness, readiness, and
// Prometheus metrics. These mount on the management listener when one is
// configured, and on the main listener otherwise.
package system

import (
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	registryroute "github.com/workstream-im/chat-service/internal/registry/route"
)

var ready atomic.Bool

// MarkReady flips /ready to 200. Called once the regional backends are
// mounted and the listener is bound.
func MarkReady() {
	ready.Store(true)
}

func init() {
	registryroute.Register(registryroute.Plugin{Order: 0, Loader: mountSystemRoutes})
}

func mountSystemRoutes(r *gin.Engine) error {
	r.GET("/health", health)
	r.GET("/ready", readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return nil
}

// health reports process liveness only; it stays 200 even while starting.
func health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// readiness reports whether startup finished, so load balancers hold traffic
// until the backends are reachable.
func readiness(c *gin.Context) {
	if !ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
