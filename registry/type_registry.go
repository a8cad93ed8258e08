/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package registry

import (
	"context"
	"reflect"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/suparena/identitystore/descriptor"
	storeerrors "github.com/suparena/identitystore/errors"
)

// Binder validates a freshly described type against the backend, for
// example by checking that its table or collection exists. A type whose
// binder fails is not registered.
type Binder func(ctx context.Context, d *descriptor.EntityDescriptor) error

// DescribeFunc derives a descriptor from a type.
type DescribeFunc func(t reflect.Type) (*descriptor.EntityDescriptor, error)

// Registration records that an entity type has been bound to its storage.
type Registration struct {
	Descriptor   *descriptor.EntityDescriptor
	StorageName  string
	RegisteredAt time.Time
}

// TypeRegistry holds the registrations of one engine instance. It is safe for
// concurrent use; the first registration of a type wins and concurrent
// callers share its result.
type TypeRegistry struct {
	mu       sync.RWMutex
	entries  map[reflect.Type]*Registration
	group    singleflight.Group
	describe DescribeFunc
	binder   Binder
}

// Option configures a TypeRegistry.
type Option func(*TypeRegistry)

// WithBinder sets the backend binder run once per type.
func WithBinder(b Binder) Option {
	return func(r *TypeRegistry) {
		r.binder = b
	}
}

// WithDescriber replaces descriptor.Describe.
func WithDescriber(fn DescribeFunc) Option {
	return func(r *TypeRegistry) {
		r.describe = fn
	}
}

// New creates an empty TypeRegistry.
func New(opts ...Option) *TypeRegistry {
	r := &TypeRegistry{
		entries:  make(map[reflect.Type]*Registration),
		describe: descriptor.Describe,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register registers the entity type T.
func Register[T any](ctx context.Context, r *TypeRegistry) (*Registration, error) {
	return r.RegisterIfNotRegistered(ctx, reflect.TypeOf((*T)(nil)).Elem())
}

// RegisterIfNotRegistered describes and binds t on first use. Later calls
// return the existing registration without describing or binding again.
func (r *TypeRegistry) RegisterIfNotRegistered(ctx context.Context, t reflect.Type) (*Registration, error) {
	t = normalize(t)
	if reg, ok := r.lookup(t); ok {
		return reg, nil
	}
	if err := storeerrors.FromContext(ctx, typeName(t), "register"); err != nil {
		return nil, err
	}

	// The shared flight ignores caller cancellation; each caller stops
	// waiting on its own ctx below.
	flightCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(typeKey(t), func() (any, error) {
		// A previous flight may have finished between lookup and DoChan.
		if reg, ok := r.lookup(t); ok {
			return reg, nil
		}
		d, err := r.describe(t)
		if err != nil {
			return nil, err
		}
		if r.binder != nil {
			if err := r.binder(flightCtx, d); err != nil {
				return nil, storeerrors.Wrap(err, d.Name, "register")
			}
		}

		reg := &Registration{
			Descriptor:   d,
			StorageName:  d.StorageName,
			RegisteredAt: time.Now(),
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		if existing, ok := r.entries[t]; ok {
			return existing, nil
		}
		r.entries[t] = reg
		return reg, nil
	})

	select {
	case <-ctx.Done():
		return nil, storeerrors.NewCancelledError(typeName(t), "register", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Registration), nil
	}
}

// Descriptor returns the descriptor of a registered type.
func (r *TypeRegistry) Descriptor(t reflect.Type) (*descriptor.EntityDescriptor, error) {
	t = normalize(t)
	reg, ok := r.lookup(t)
	if !ok {
		return nil, storeerrors.NewNotRegisteredError(typeName(t))
	}
	return reg.Descriptor, nil
}

// Registration returns the registration of t, if any.
func (r *TypeRegistry) Registration(t reflect.Type) (*Registration, bool) {
	return r.lookup(normalize(t))
}

// IsRegistered reports whether t has been registered.
func (r *TypeRegistry) IsRegistered(t reflect.Type) bool {
	_, ok := r.lookup(normalize(t))
	return ok
}

// Types returns the registered types ordered by name.
func (r *TypeRegistry) Types() []reflect.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]reflect.Type, 0, len(r.entries))
	for t := range r.entries {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return typeKey(types[i]) < typeKey(types[j]) })
	return types
}

func (r *TypeRegistry) lookup(t reflect.Type) (*Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.entries[t]
	return reg, ok
}

func normalize(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

func typeKey(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.PkgPath() + "." + t.String()
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return descriptor.TypeName(t)
}
