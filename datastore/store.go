/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package datastore

import (
	"context"
	"fmt"
	"reflect"

	"github.com/suparena/identitystore/connection"
	"github.com/suparena/identitystore/descriptor"
	"github.com/suparena/identitystore/dialect"
	storeerrors "github.com/suparena/identitystore/errors"
	"github.com/suparena/identitystore/statement"
)

// Store is the Repository that runs statement plans through a connection
// manager.
type Store[T any] struct {
	b *statement.Builder
	m *connection.Manager
	t reflect.Type
}

// New creates a Store for T.
func New[T any](b *statement.Builder, m *connection.Manager) *Store[T] {
	return &Store[T]{b: b, m: m, t: reflect.TypeOf((*T)(nil)).Elem()}
}

func (s *Store[T]) descriptor(ctx context.Context) (*descriptor.EntityDescriptor, error) {
	return s.b.Resolve(ctx, s.t)
}

func (s *Store[T]) exec(ctx context.Context, plan dialect.StatementPlan) (connection.Result, error) {
	lease, err := s.m.Acquire(ctx, s.t)
	if err != nil {
		return connection.Result{}, err
	}
	defer lease.Release()
	return lease.Exec(ctx, plan)
}

// query reads every row before returning any of them. A failure part way
// through yields no entities.
func (s *Store[T]) query(ctx context.Context, plan dialect.StatementPlan) ([]T, error) {
	lease, err := s.m.Acquire(ctx, s.t)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	var out []T
	err = lease.Query(ctx, plan, func(row connection.Row) error {
		var entity T
		if err := row.Decode(&entity); err != nil {
			return err
		}
		out = append(out, entity)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := storeerrors.FromContext(ctx, descriptor.TypeName(s.t), string(dialect.OpSelect)); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store[T]) keyFilter(ctx context.Context, op dialect.Op, key any) (map[string]any, *descriptor.EntityDescriptor, error) {
	d, err := s.descriptor(ctx)
	if err != nil {
		return nil, nil, err
	}
	id, err := d.RequireIdentity(string(op))
	if err != nil {
		return nil, nil, err
	}
	if key == nil {
		return nil, nil, storeerrors.NewValidationError(id.Name, "key is required")
	}
	return map[string]any{id.Name: key}, d, nil
}

// GetOne implements Repository.
func (s *Store[T]) GetOne(ctx context.Context, key any) (*T, error) {
	where, d, err := s.keyFilter(ctx, dialect.OpSelect, key)
	if err != nil {
		return nil, err
	}
	found, err := s.FindWhere(ctx, where, statement.WithPage(1, 0))
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, storeerrors.NewNotFoundError(d.Name, fmt.Sprint(key))
	}
	return &found[0], nil
}

// Find implements Repository.
func (s *Store[T]) Find(ctx context.Context, filter *T, opts ...statement.SelectOption) ([]T, error) {
	plan, err := statement.Select(ctx, s.b, filter, opts...)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, plan)
}

// FindWhere implements Repository.
func (s *Store[T]) FindWhere(ctx context.Context, where map[string]any, opts ...statement.SelectOption) ([]T, error) {
	plan, err := statement.SelectWhere[T](ctx, s.b, where, opts...)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, plan)
}

// Put implements Repository. Identities generated by the database are set
// on entity when the driver reports them.
func (s *Store[T]) Put(ctx context.Context, entity *T) error {
	plan, err := statement.Insert(ctx, s.b, entity)
	if err != nil {
		return err
	}
	res, err := s.exec(ctx, plan)
	if err != nil {
		return err
	}
	if plan.Returning == "" || res.LastInsertID == nil {
		return nil
	}
	d, err := s.descriptor(ctx)
	if err != nil {
		return err
	}
	idv := d.Value(reflect.ValueOf(entity).Elem(), *d.Identity)
	generated := reflect.ValueOf(res.LastInsertID)
	if idv.IsZero() && generated.Type().ConvertibleTo(idv.Type()) {
		idv.Set(generated.Convert(idv.Type()))
	}
	return nil
}

// Update implements Repository.
func (s *Store[T]) Update(ctx context.Context, key any, patch map[string]any) error {
	where, d, err := s.keyFilter(ctx, dialect.OpUpdate, key)
	if err != nil {
		return err
	}
	plan, err := statement.UpdateWhere[T](ctx, s.b, where, patch)
	if err != nil {
		return err
	}
	res, err := s.exec(ctx, plan)
	if err != nil {
		return err
	}
	if res.RowsAffected == 0 {
		return storeerrors.NewNotFoundError(d.Name, fmt.Sprint(key))
	}
	return nil
}

// Replace implements Repository.
func (s *Store[T]) Replace(ctx context.Context, entity *T) error {
	plan, err := statement.Replace(ctx, s.b, entity)
	if err != nil {
		return err
	}
	res, err := s.exec(ctx, plan)
	if err != nil {
		return err
	}
	if res.RowsAffected == 0 {
		d, err := s.descriptor(ctx)
		if err != nil {
			return err
		}
		key := d.Value(reflect.ValueOf(entity).Elem(), *d.Identity).Interface()
		return storeerrors.NewNotFoundError(d.Name, fmt.Sprint(key))
	}
	return nil
}

// Delete implements Repository.
func (s *Store[T]) Delete(ctx context.Context, key any) error {
	where, d, err := s.keyFilter(ctx, dialect.OpDelete, key)
	if err != nil {
		return err
	}
	n, err := s.DeleteWhere(ctx, where)
	if err != nil {
		return err
	}
	if n == 0 {
		return storeerrors.NewNotFoundError(d.Name, fmt.Sprint(key))
	}
	return nil
}

// DeleteWhere implements Repository.
func (s *Store[T]) DeleteWhere(ctx context.Context, where map[string]any) (int64, error) {
	plan, err := statement.DeleteWhere[T](ctx, s.b, where)
	if err != nil {
		return 0, err
	}
	res, err := s.exec(ctx, plan)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected, nil
}

var _ Repository[struct{ ID string }] = (*Store[struct{ ID string }])(nil)
