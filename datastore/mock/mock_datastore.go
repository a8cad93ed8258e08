/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package mock provides an in-memory datastore.Repository for testing
package mock

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/suparena/identitystore/descriptor"
	"github.com/suparena/identitystore/dialect"
	"github.com/suparena/identitystore/errors"
	"github.com/suparena/identitystore/statement"
)

// Repository is an in-memory datastore.Repository[T]. Entities are keyed by
// the printed value of their identity and listed in key order.
type Repository[T any] struct {
	mu          sync.RWMutex
	data        map[string]T
	desc        *descriptor.EntityDescriptor
	descErr     error
	nextID      int64
	putError    error
	deleteError error
	updateError error
}

// New creates an empty Repository. Types without an identity fail every
// call with the describe error.
func New[T any]() *Repository[T] {
	m := &Repository[T]{data: make(map[string]T)}
	m.desc, m.descErr = descriptor.Of[T]()
	if m.descErr == nil && m.desc.Identity == nil {
		_, m.descErr = m.desc.RequireIdentity("mock")
	}
	return m
}

// WithPutError makes Put operations return an error
func (m *Repository[T]) WithPutError(err error) *Repository[T] {
	m.putError = err
	return m
}

// WithDeleteError makes Delete operations return an error
func (m *Repository[T]) WithDeleteError(err error) *Repository[T] {
	m.deleteError = err
	return m
}

// WithUpdateError makes Update and Replace operations return an error
func (m *Repository[T]) WithUpdateError(err error) *Repository[T] {
	m.updateError = err
	return m
}

func (m *Repository[T]) keyOf(entity *T) string {
	return fmt.Sprint(m.desc.Value(reflect.ValueOf(entity).Elem(), *m.desc.Identity).Interface())
}

// GetOne retrieves an entity by identity
func (m *Repository[T]) GetOne(ctx context.Context, key any) (*T, error) {
	if m.descErr != nil {
		return nil, m.descErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if entity, exists := m.data[fmt.Sprint(key)]; exists {
		return &entity, nil
	}
	return nil, errors.NewNotFoundError(m.desc.Name, fmt.Sprint(key))
}

// Find returns the entities matching the non-zero members of filter
func (m *Repository[T]) Find(ctx context.Context, filter *T, opts ...statement.SelectOption) ([]T, error) {
	if m.descErr != nil {
		return nil, m.descErr
	}
	f, err := dialect.FilterOf(m.desc, filter)
	if err != nil {
		return nil, err
	}
	return m.find(f, opts), nil
}

// FindWhere returns the entities matching explicit field values
func (m *Repository[T]) FindWhere(ctx context.Context, where map[string]any, opts ...statement.SelectOption) ([]T, error) {
	if m.descErr != nil {
		return nil, m.descErr
	}
	f, err := dialect.FilterFromMap(m.desc, where)
	if err != nil {
		return nil, err
	}
	return m.find(f, opts), nil
}

func (m *Repository[T]) find(f dialect.Filter, opts []statement.SelectOption) []T {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []T
	for _, k := range m.sortedKeys() {
		entity := m.data[k]
		if m.matches(&entity, f) {
			out = append(out, entity)
		}
	}
	page := statement.PageOf(opts...)
	if page.Offset > 0 {
		if page.Offset >= len(out) {
			return nil
		}
		out = out[page.Offset:]
	}
	if page.Limit > 0 && page.Limit < len(out) {
		out = out[:page.Limit]
	}
	return out
}

func (m *Repository[T]) sortedKeys() []string {
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *Repository[T]) matches(entity *T, f dialect.Filter) bool {
	v := reflect.ValueOf(entity).Elem()
	for _, c := range f {
		fv := m.desc.Value(v, c.Field)
		if c.Value == nil {
			if !fv.IsZero() {
				return false
			}
			continue
		}
		want := reflect.ValueOf(c.Value)
		if want.Type() != fv.Type() && want.Type().ConvertibleTo(fv.Type()) {
			want = want.Convert(fv.Type())
		}
		if !reflect.DeepEqual(fv.Interface(), want.Interface()) {
			return false
		}
	}
	return true
}

// Put stores an entity. An empty string identity gets a new UUID.
func (m *Repository[T]) Put(ctx context.Context, entity *T) error {
	if m.putError != nil {
		return m.putError
	}
	if m.descErr != nil {
		return m.descErr
	}
	if entity == nil {
		return errors.NewValidationError("", "nil "+m.desc.Name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	idv := m.desc.Value(reflect.ValueOf(entity).Elem(), *m.desc.Identity)
	if idv.IsZero() {
		switch {
		case idv.Kind() == reflect.String:
			idv.SetString(uuid.NewString())
		case idv.CanInt():
			m.nextID++
			idv.SetInt(m.nextID)
		default:
			return errors.NewValidationError(m.desc.Identity.Name, "unable to generate key")
		}
	}
	key := m.keyOf(entity)
	if _, exists := m.data[key]; exists {
		return errors.NewAlreadyExistsError(m.desc.Name, key)
	}
	m.data[key] = *entity
	return nil
}

// Update sets the fields in patch on the entity with identity key
func (m *Repository[T]) Update(ctx context.Context, key any, patch map[string]any) error {
	if m.updateError != nil {
		return m.updateError
	}
	if m.descErr != nil {
		return m.descErr
	}
	set, err := dialect.FilterFromMap(m.desc, patch)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entity, exists := m.data[fmt.Sprint(key)]
	if !exists {
		return errors.NewNotFoundError(m.desc.Name, fmt.Sprint(key))
	}
	v := reflect.ValueOf(&entity).Elem()
	for _, c := range set {
		if c.Field.Identity {
			return errors.NewSchemaError(m.desc.Name, "update", "identity cannot be updated")
		}
		fv := m.desc.Value(v, c.Field)
		if c.Value == nil {
			fv.SetZero()
			continue
		}
		nv := reflect.ValueOf(c.Value)
		if !nv.Type().AssignableTo(fv.Type()) {
			if !nv.Type().ConvertibleTo(fv.Type()) {
				return errors.NewValidationError(c.Field.Name, fmt.Sprintf("cannot assign %T", c.Value))
			}
			nv = nv.Convert(fv.Type())
		}
		fv.Set(nv)
	}
	m.data[fmt.Sprint(key)] = entity
	return nil
}

// Replace overwrites the stored entity sharing entity's identity
func (m *Repository[T]) Replace(ctx context.Context, entity *T) error {
	if m.updateError != nil {
		return m.updateError
	}
	if m.descErr != nil {
		return m.descErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := m.keyOf(entity)
	if _, exists := m.data[key]; !exists {
		return errors.NewNotFoundError(m.desc.Name, key)
	}
	m.data[key] = *entity
	return nil
}

// Delete removes an entity by identity
func (m *Repository[T]) Delete(ctx context.Context, key any) error {
	if m.deleteError != nil {
		return m.deleteError
	}
	if m.descErr != nil {
		return m.descErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	k := fmt.Sprint(key)
	if _, exists := m.data[k]; !exists {
		return errors.NewNotFoundError(m.desc.Name, k)
	}
	delete(m.data, k)
	return nil
}

// DeleteWhere removes the entities matching explicit field values
func (m *Repository[T]) DeleteWhere(ctx context.Context, where map[string]any) (int64, error) {
	if m.deleteError != nil {
		return 0, m.deleteError
	}
	if m.descErr != nil {
		return 0, m.descErr
	}
	f, err := dialect.FilterFromMap(m.desc, where)
	if err != nil {
		return 0, err
	}
	if len(f) == 0 {
		return 0, errors.NewAmbiguousOperationError(m.desc.Name, "delete")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for k, entity := range m.data {
		if m.matches(&entity, f) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

// Helper methods for testing

// GetData returns a copy of the internal data map (for testing)
func (m *Repository[T]) GetData() map[string]T {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]T, len(m.data))
	for k, v := range m.data {
		result[k] = v
	}
	return result
}

// Count returns the number of stored entities
func (m *Repository[T]) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// Clear removes all data
func (m *Repository[T]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string]T)
}
