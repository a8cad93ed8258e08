/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package statement

import (
	"context"
	"reflect"

	"github.com/suparena/identitystore/descriptor"
	"github.com/suparena/identitystore/dialect"
	storeerrors "github.com/suparena/identitystore/errors"
	"github.com/suparena/identitystore/registry"
)

// Builder turns typed requests into statement plans for one dialect. It
// registers entity types on first use and never touches a connection.
type Builder struct {
	registry *registry.TypeRegistry
	dialect  dialect.Dialect
}

// New creates a Builder over r rendering with d.
func New(r *registry.TypeRegistry, d dialect.Dialect) *Builder {
	return &Builder{registry: r, dialect: d}
}

// Registry returns the registry the builder registers types in.
func (b *Builder) Registry() *registry.TypeRegistry { return b.registry }

// Dialect returns the active dialect.
func (b *Builder) Dialect() dialect.Dialect { return b.dialect }

// Resolve registers t if needed and returns its descriptor.
func (b *Builder) Resolve(ctx context.Context, t reflect.Type) (*descriptor.EntityDescriptor, error) {
	reg, err := b.registry.RegisterIfNotRegistered(ctx, t)
	if err != nil {
		return nil, err
	}
	return reg.Descriptor, nil
}

// IdentityBinder returns a registry binder that rejects entity types
// without identity when d addresses entities by identity, and types that
// fail the dialect's own Bind check. Chain it in front of backend binders
// with Chain.
func IdentityBinder(d dialect.Dialect) registry.Binder {
	return func(ctx context.Context, desc *descriptor.EntityDescriptor) error {
		if d.RequiresIdentity() {
			if _, err := desc.RequireIdentity("bind " + d.Name()); err != nil {
				return err
			}
		}
		if b, ok := d.(dialect.Binder); ok {
			return b.Bind(desc)
		}
		return nil
	}
}

// Chain runs binders in order, stopping at the first failure. Nil binders
// are skipped.
func Chain(binders ...registry.Binder) registry.Binder {
	return func(ctx context.Context, desc *descriptor.EntityDescriptor) error {
		for _, bind := range binders {
			if bind == nil {
				continue
			}
			if err := bind(ctx, desc); err != nil {
				return err
			}
		}
		return nil
	}
}

// SelectOption narrows a select.
type SelectOption func(*selectOptions)

type selectOptions struct {
	page dialect.Page
}

// WithPage limits a select to limit rows after skipping offset rows.
func WithPage(limit, offset int) SelectOption {
	return func(o *selectOptions) {
		o.page = dialect.Page{Limit: limit, Offset: offset}
	}
}

// PageOf returns the page selected by opts.
func PageOf(opts ...SelectOption) dialect.Page {
	var o selectOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o.page
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

func resolve[T any](ctx context.Context, b *Builder) (*descriptor.EntityDescriptor, error) {
	return b.Resolve(ctx, typeOf[T]())
}

// Insert plans the insertion of entity. Passing a pointer lets dialects that
// generate identities write them back.
func Insert[T any](ctx context.Context, b *Builder, entity *T) (dialect.StatementPlan, error) {
	d, err := resolve[T](ctx, b)
	if err != nil {
		return dialect.StatementPlan{}, err
	}
	if entity == nil {
		return dialect.StatementPlan{}, storeerrors.NewValidationError("", "nil "+d.Name)
	}
	return b.dialect.Insert(d, reflect.ValueOf(entity).Elem())
}

// Select plans a read constrained by the non-zero members of filter. A nil
// filter selects every entity of the type.
func Select[T any](ctx context.Context, b *Builder, filter *T, opts ...SelectOption) (dialect.StatementPlan, error) {
	d, err := resolve[T](ctx, b)
	if err != nil {
		return dialect.StatementPlan{}, err
	}
	f, err := dialect.FilterOf(d, filter)
	if err != nil {
		return dialect.StatementPlan{}, err
	}
	return b.selectPlan(d, f, opts)
}

// SelectWhere plans a read constrained by explicit field values, which may
// be zero values.
func SelectWhere[T any](ctx context.Context, b *Builder, where map[string]any, opts ...SelectOption) (dialect.StatementPlan, error) {
	d, err := resolve[T](ctx, b)
	if err != nil {
		return dialect.StatementPlan{}, err
	}
	f, err := dialect.FilterFromMap(d, where)
	if err != nil {
		return dialect.StatementPlan{}, err
	}
	return b.selectPlan(d, f, opts)
}

func (b *Builder) selectPlan(d *descriptor.EntityDescriptor, f dialect.Filter, opts []SelectOption) (dialect.StatementPlan, error) {
	return b.dialect.Select(d, f, PageOf(opts...))
}

// Delete plans the removal of entities matching the non-zero members of
// filter.
func Delete[T any](ctx context.Context, b *Builder, filter *T) (dialect.StatementPlan, error) {
	d, err := resolve[T](ctx, b)
	if err != nil {
		return dialect.StatementPlan{}, err
	}
	f, err := dialect.FilterOf(d, filter)
	if err != nil {
		return dialect.StatementPlan{}, err
	}
	return b.dialect.Delete(d, f)
}

// DeleteWhere plans the removal of entities matching explicit field values.
func DeleteWhere[T any](ctx context.Context, b *Builder, where map[string]any) (dialect.StatementPlan, error) {
	d, err := resolve[T](ctx, b)
	if err != nil {
		return dialect.StatementPlan{}, err
	}
	f, err := dialect.FilterFromMap(d, where)
	if err != nil {
		return dialect.StatementPlan{}, err
	}
	return b.dialect.Delete(d, f)
}

// Update plans setting the fields in patch on entities matching the
// non-zero members of filter.
func Update[T any](ctx context.Context, b *Builder, filter *T, patch map[string]any) (dialect.StatementPlan, error) {
	d, err := resolve[T](ctx, b)
	if err != nil {
		return dialect.StatementPlan{}, err
	}
	f, err := dialect.FilterOf(d, filter)
	if err != nil {
		return dialect.StatementPlan{}, err
	}
	set, err := dialect.FilterFromMap(d, patch)
	if err != nil {
		return dialect.StatementPlan{}, err
	}
	return b.dialect.Update(d, f, set)
}

// UpdateWhere plans setting the fields in patch on entities matching
// explicit field values.
func UpdateWhere[T any](ctx context.Context, b *Builder, where, patch map[string]any) (dialect.StatementPlan, error) {
	d, err := resolve[T](ctx, b)
	if err != nil {
		return dialect.StatementPlan{}, err
	}
	f, err := dialect.FilterFromMap(d, where)
	if err != nil {
		return dialect.StatementPlan{}, err
	}
	set, err := dialect.FilterFromMap(d, patch)
	if err != nil {
		return dialect.StatementPlan{}, err
	}
	return b.dialect.Update(d, f, set)
}

// Replace plans overwriting every non-identity field of the stored entity
// that shares entity's identity.
func Replace[T any](ctx context.Context, b *Builder, entity *T) (dialect.StatementPlan, error) {
	d, err := resolve[T](ctx, b)
	if err != nil {
		return dialect.StatementPlan{}, err
	}
	id, err := d.RequireIdentity(string(dialect.OpUpdate))
	if err != nil {
		return dialect.StatementPlan{}, err
	}
	v, err := d.Indirect(entity)
	if err != nil {
		return dialect.StatementPlan{}, err
	}

	idv := d.Value(v, id)
	if idv.IsZero() {
		return dialect.StatementPlan{}, storeerrors.NewValidationError(id.Name, "identity of "+d.Name+" is empty")
	}
	filter := dialect.Filter{{Field: id, Value: idv.Interface()}}
	set := make(dialect.Filter, 0, len(d.Fields)-1)
	for _, f := range d.Fields {
		if f.Identity {
			continue
		}
		fv := d.Value(v, f)
		var value any
		if !isNil(fv) {
			value = fv.Interface()
		}
		set = append(set, dialect.Condition{Field: f, Value: value})
	}
	return b.dialect.Update(d, filter, set)
}

func isNil(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice:
		return v.IsNil()
	}
	return false
}
