/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package datastore

import (
	"context"

	"github.com/suparena/identitystore/statement"
)

// Repository is typed CRUD over one entity type. Keys are identity
// values.
type Repository[T any] interface {
	// GetOne returns the entity with identity key, or a NotFoundError.
	GetOne(ctx context.Context, key any) (*T, error)

	// Find returns the entities matching the non-zero members of filter.
	// A nil filter matches every entity.
	Find(ctx context.Context, filter *T, opts ...statement.SelectOption) ([]T, error)

	// FindWhere returns the entities matching explicit field values.
	FindWhere(ctx context.Context, where map[string]any, opts ...statement.SelectOption) ([]T, error)

	// Put inserts entity. Generated identities are written back once the
	// write succeeds.
	Put(ctx context.Context, entity *T) error

	// Update sets the fields in patch on the entity with identity key.
	Update(ctx context.Context, key any, patch map[string]any) error

	// Replace overwrites the stored entity sharing entity's identity.
	Replace(ctx context.Context, entity *T) error

	// Delete removes the entity with identity key.
	Delete(ctx context.Context, key any) error

	// DeleteWhere removes the entities matching explicit field values and
	// reports how many were removed.
	DeleteWhere(ctx context.Context, where map[string]any) (int64, error)
}
