// Package lifecycle tracks one-time loading of the vector indices and
// embedding providers and refuses work until all of them are ready.
package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"sync"

	interrors "github.com/streed/snapnotes/internal/errors"
	"github.com/streed/snapnotes/internal/logger"
)

// Loader is anything that must be loaded once before use.
type Loader interface {
	Load(ctx context.Context) error
}

type component struct {
	name   string
	loader Loader
	loaded bool
}

// Gate loads registered components in registration order.
type Gate struct {
	mu         sync.RWMutex
	components []*component
	ready      bool
}

func NewGate() *Gate {
	return &Gate{}
}

// Register adds a component. Registering after the gate opened closes it
// again until the next Load.
func (g *Gate) Register(name string, l Loader) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.components = append(g.components, &component{name: name, loader: l})
	g.ready = false
}

// Load loads every component that is not loaded yet. It stops at the first
// failure; a later call resumes from there.
func (g *Gate) Load(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, c := range g.components {
		if c.loaded {
			continue
		}
		if err := c.loader.Load(ctx); err != nil {
			return fmt.Errorf("load %s: %w", c.name, err)
		}
		c.loaded = true
		logger.Debug("Loaded %s", c.name)
	}
	g.ready = true
	return nil
}

func (g *Gate) Ready() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.ready
}

// Check returns an error wrapping ErrNotReady naming the components that are
// still unloaded.
func (g *Gate) Check() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.ready {
		return nil
	}
	var pending []string
	for _, c := range g.components {
		if !c.loaded {
			pending = append(pending, c.name)
		}
	}
	if len(pending) == 0 {
		return interrors.ErrNotReady
	}
	return fmt.Errorf("%w: pending %s", interrors.ErrNotReady, strings.Join(pending, ", "))
}
