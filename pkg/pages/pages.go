// Package pages tracks which pages an experiment runs on. The experiment
// service only ever erases bindings (on termination or deletion); binding
// pages is the page-targeting surface's job.
package pages

import (
	"context"
	"sync"

	"github.com/cohorta/cohorta/pkg/experiment"
)

// Binder is an in-memory (application, experiment) -> pages map.
type Binder struct {
	mu    sync.RWMutex
	byApp map[string]map[string][]string
}

// NewBinder creates an empty binder.
func NewBinder() *Binder {
	return &Binder{byApp: make(map[string]map[string][]string)}
}

// Bind associates an experiment with a set of pages, replacing any previous
// binding.
func (b *Binder) Bind(appName, experimentID string, pageNames []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	byExp := b.byApp[appName]
	if byExp == nil {
		byExp = make(map[string][]string)
		b.byApp[appName] = byExp
	}
	byExp[experimentID] = append([]string(nil), pageNames...)
}

// Pages returns a snapshot of an experiment's bound pages.
func (b *Binder) Pages(appName, experimentID string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.byApp[appName][experimentID]...)
}

// ErasePageData drops every page binding of an experiment. Erasing an
// unbound experiment is a no-op.
func (b *Binder) ErasePageData(_ context.Context, appName, experimentID string, _ experiment.UserInfo) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	byExp := b.byApp[appName]
	delete(byExp, experimentID)
	if len(byExp) == 0 {
		delete(b.byApp, appName)
	}
	return nil
}
