// Package arena implements a hierarchical ownership tree for deterministic
// resource release. Every resource that needs cleanup is attached to exactly
// one arena node; freeing a node releases its descendants first, then its
// own hooks, in reverse registration order.
//
// Arenas are not safe for concurrent use. An arena tree is exclusively
// owned by the caller holding its root; concurrent access requires external
// locking.
package arena

import (
	"errors"
	"fmt"
)

// ErrFreed is returned when an operation targets an already-freed arena.
var ErrFreed = errors.New("arena: already freed")

// Arena is one node of the ownership tree.
type Arena struct {
	name     string
	parent   *Arena
	children []*Arena
	releases []func() error
	freed    bool
}

// New creates a root arena.
func New(name string) *Arena {
	return &Arena{name: name}
}

// Name returns the arena's name, used in release error messages.
func (a *Arena) Name() string {
	return a.name
}

// Child creates a sub-arena owned by a. Freeing a frees the child.
func (a *Arena) Child(name string) (*Arena, error) {
	if a.freed {
		return nil, fmt.Errorf("%w: %s", ErrFreed, a.name)
	}
	c := &Arena{name: name, parent: a}
	a.children = append(a.children, c)
	return c, nil
}

// Defer registers a release hook run when the arena is freed. Hooks run in
// reverse registration order, after all children have been freed.
func (a *Arena) Defer(fn func() error) {
	if a.freed || fn == nil {
		return
	}
	a.releases = append(a.releases, fn)
}

// Freed reports whether the arena has been released.
func (a *Arena) Freed() bool {
	return a.freed
}

// Free releases the arena: children first (most recent first), then the
// arena's own hooks in reverse registration order. Free is idempotent and
// detaches the arena from its parent. All release errors are collected.
func (a *Arena) Free() error {
	if a == nil || a.freed {
		return nil
	}
	a.freed = true

	var errs []error
	for i := len(a.children) - 1; i >= 0; i-- {
		if err := a.children[i].free(); err != nil {
			errs = append(errs, err)
		}
	}
	a.children = nil

	for i := len(a.releases) - 1; i >= 0; i-- {
		if err := a.releases[i](); err != nil {
			errs = append(errs, fmt.Errorf("arena %s: %w", a.name, err))
		}
	}
	a.releases = nil

	if a.parent != nil {
		a.parent.detach(a)
		a.parent = nil
	}

	return errors.Join(errs...)
}

// free releases a child without touching the parent's child list; the
// parent is iterating it.
func (a *Arena) free() error {
	if a.freed {
		return nil
	}
	a.parent = nil
	return a.Free()
}

func (a *Arena) detach(child *Arena) {
	if a.freed {
		return
	}
	for i, c := range a.children {
		if c == child {
			a.children = append(a.children[:i], a.children[i+1:]...)
			return
		}
	}
}
