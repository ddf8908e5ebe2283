package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UnreadCache caches per-user unread count maps so the conversation
// directory does not recount on every listing. Cached values are a hint; a
// miss or error always falls through to the backend count.
type UnreadCache interface {
	Available() bool
	Get(ctx context.Context, userID string) (map[uuid.UUID]int64, bool, error)
	Set(ctx context.Context, userID string, counts map[uuid.UUID]int64, ttl time.Duration) error
	Remove(ctx context.Context, userID string) error
}

// Loader creates an UnreadCache from config.
type Loader func(ctx context.Context) (UnreadCache, error)

// Plugin represents a cache plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a cache plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered cache plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named cache plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown cache %q; valid: %v", name, Names())
}
