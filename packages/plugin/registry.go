package plugin

import (
	"fmt"
	"sync"

	"github.com/mariocesar/tavern/packages/core/document"
)

var registry = struct {
	mu      sync.RWMutex
	plugins []Plugin
}{}

// Register adds a plugin to the dispatch order. Typically called from a
// plugin package's init.
func Register(p Plugin) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	for _, existing := range registry.plugins {
		if existing.Name() == p.Name() {
			panic(fmt.Sprintf("plugin %q registered twice", p.Name()))
		}
	}
	registry.plugins = append(registry.plugins, p)
}

// All returns the registered plugins in registration order.
func All() []Plugin {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	out := make([]Plugin, len(registry.plugins))
	copy(out, registry.plugins)
	return out
}

// ForStage dispatches a stage to the plugin that recognises its blocks.
// No match is a dispatch failure.
func ForStage(stage *document.Stage) (Plugin, error) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	for _, p := range registry.plugins {
		if p.Matches(stage) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no request type matches stage %q", stage.Name)
}
