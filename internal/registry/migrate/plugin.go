package migrate

import (
	"context"
	"sort"
)

// Migrator prepares one backend's schema or indexes.
type Migrator interface {
	Name() string
	Migrate(ctx context.Context) error
}

// Plugin represents a migration plugin. Lower Order runs first.
type Plugin struct {
	Order    int
	Migrator Migrator
}

var plugins []Plugin

// Register adds a migration plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// RunAll runs all registered migrators in order.
func RunAll(ctx context.Context) error {
	sorted := append([]Plugin(nil), plugins...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })
	for _, p := range sorted {
		if err := p.Migrator.Migrate(ctx); err != nil {
			return err
		}
	}
	return nil
}
