// Package route registers operational route plugins: endpoints like health,
// readiness, and metrics that have no dependency on the regional backends.
// The chat API routes are mounted explicitly by the serve command once the
// stores and services exist, so they never go through this registry.
package route

import (
	"sort"

	"github.com/gin-gonic/gin"
)

// Loader mounts one plugin's routes on a gin engine. The same loader may run
// against the main engine or a dedicated management engine, depending on
// whether a management port is configured.
type Loader func(r *gin.Engine) error

// Plugin is a self-registering set of operational routes.
type Plugin struct {
	// Order fixes the mount sequence when several plugins register.
	Order  int
	Loader Loader
}

var plugins []Plugin

// Register adds a plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Loaders returns every registered loader in mount order.
func Loaders() []Loader {
	sorted := make([]Plugin, len(plugins))
	copy(sorted, plugins)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })
	loaders := make([]Loader, len(sorted))
	for i, p := range sorted {
		loaders[i] = p.Loader
	}
	return loaders
}
