/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package identitystore

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/suparena/identitystore/datastore"
	"github.com/suparena/identitystore/descriptor"
	storeerrors "github.com/suparena/identitystore/errors"
)

// repositories caches one datastore.Repository per entity type.
type repositories struct {
	mu     sync.RWMutex
	byType map[reflect.Type]any
}

func newRepositories() *repositories {
	return &repositories{byType: make(map[reflect.Type]any)}
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Repository returns the repository for T, creating an engine-backed one
// on first use.
func Repository[T any](e *Engine) datastore.Repository[T] {
	typ := typeOf[T]()

	e.repos.mu.RLock()
	repo, exists := e.repos.byType[typ]
	e.repos.mu.RUnlock()
	if exists {
		return repo.(datastore.Repository[T])
	}

	e.repos.mu.Lock()
	defer e.repos.mu.Unlock()
	if repo, exists := e.repos.byType[typ]; exists {
		return repo.(datastore.Repository[T])
	}
	created := datastore.New[T](e.builder, e.manager)
	e.repos.byType[typ] = datastore.Repository[T](created)
	return created
}

// RegisterRepository installs repo as the repository for T, for example
// an in-memory one in tests. It fails when T already has a repository.
func RegisterRepository[T any](e *Engine, repo datastore.Repository[T]) error {
	if repo == nil {
		return storeerrors.NewValidationError("repository", "repository is required")
	}
	typ := typeOf[T]()

	e.repos.mu.Lock()
	defer e.repos.mu.Unlock()
	if _, exists := e.repos.byType[typ]; exists {
		return fmt.Errorf("repository for %q already registered", descriptor.TypeName(typ))
	}
	e.repos.byType[typ] = repo
	return nil
}

// RemoveRepository drops the cached repository for T.
func RemoveRepository[T any](e *Engine) error {
	typ := typeOf[T]()

	e.repos.mu.Lock()
	defer e.repos.mu.Unlock()
	if _, exists := e.repos.byType[typ]; !exists {
		return fmt.Errorf("repository for %q not found", descriptor.TypeName(typ))
	}
	delete(e.repos.byType, typ)
	return nil
}

// Repositories lists the entity types with a cached repository.
func (e *Engine) Repositories() []string {
	e.repos.mu.RLock()
	defer e.repos.mu.RUnlock()

	names := make([]string, 0, len(e.repos.byType))
	for t := range e.repos.byType {
		names = append(names, descriptor.TypeName(t))
	}
	sort.Strings(names)
	return names
}
