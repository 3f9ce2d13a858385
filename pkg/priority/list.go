// Package priority keeps the per-application experiment ordering.
//
// When several experiments on the same application could match the same
// user, the list decides which one wins: earlier entries take precedence.
// The list holds exactly the non-terminated, non-deleted experiments of an
// application, each at most once; the experiment service maintains that
// invariant across creates, app moves and terminations.
package priority

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrUnknownID is returned by Reorder when the new order names an id
	// that is not on the list.
	ErrUnknownID = errors.New("unknown experiment id")
	// ErrIncompleteOrder is returned by Reorder when the new order is not a
	// permutation of the current list.
	ErrIncompleteOrder = errors.New("new order must contain every listed experiment exactly once")
)

// List is an in-memory per-application priority list. Mutations on the same
// application are serialized; reads return a copied snapshot.
type List struct {
	mu    sync.Mutex
	byApp map[string][]string
}

// NewList creates an empty priority list.
func NewList() *List {
	return &List{byApp: make(map[string][]string)}
}

// Append adds an experiment at the lowest priority of its application.
// Appending an id that is already present is a no-op.
func (l *List) Append(_ context.Context, appName, experimentID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, id := range l.byApp[appName] {
		if id == experimentID {
			return nil
		}
	}
	l.byApp[appName] = append(l.byApp[appName], experimentID)
	return nil
}

// Remove drops an experiment from its application's list. Removing an
// absent id is a no-op.
func (l *List) Remove(_ context.Context, appName, experimentID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ids := l.byApp[appName]
	for i, id := range ids {
		if id == experimentID {
			l.byApp[appName] = append(ids[:i], ids[i+1:]...)
			if len(l.byApp[appName]) == 0 {
				delete(l.byApp, appName)
			}
			return nil
		}
	}
	return nil
}

// Reorder replaces an application's ordering. newOrder must be a
// permutation of the ids currently listed.
func (l *List) Reorder(_ context.Context, appName string, newOrder []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	current := l.byApp[appName]
	if len(newOrder) != len(current) {
		return fmt.Errorf("%w: have %d, got %d", ErrIncompleteOrder, len(current), len(newOrder))
	}

	listed := make(map[string]struct{}, len(current))
	for _, id := range current {
		listed[id] = struct{}{}
	}
	seen := make(map[string]struct{}, len(newOrder))
	for _, id := range newOrder {
		if _, ok := listed[id]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownID, id)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: %q listed twice", ErrIncompleteOrder, id)
		}
		seen[id] = struct{}{}
	}

	l.byApp[appName] = append([]string(nil), newOrder...)
	return nil
}

// IDs returns a snapshot of an application's ordering, highest priority
// first.
func (l *List) IDs(appName string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.byApp[appName]...)
}

// Contains reports whether an experiment is on an application's list.
func (l *List) Contains(appName, experimentID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range l.byApp[appName] {
		if id == experimentID {
			return true
		}
	}
	return false
}
