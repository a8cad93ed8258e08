/*
Package datastore defines typed repositories over registered entity types.

The main interface is Repository[T], which provides generic CRUD operations
keyed by identity value:

	type Repository[T any] interface {
	    GetOne(ctx context.Context, key any) (*T, error)
	    Find(ctx context.Context, filter *T, opts ...statement.SelectOption) ([]T, error)
	    FindWhere(ctx context.Context, where map[string]any, opts ...statement.SelectOption) ([]T, error)
	    Put(ctx context.Context, entity *T) error
	    Update(ctx context.Context, key any, patch map[string]any) error
	    Replace(ctx context.Context, entity *T) error
	    Delete(ctx context.Context, key any) error
	    DeleteWhere(ctx context.Context, where map[string]any) (int64, error)
	}

Implementations:
  - Store: runs statement plans through a connection.Manager, so it works
    against every backend the engine can open
  - mock: In-memory implementation for testing

Update, Replace and Delete report a NotFoundError when no row matched the
key.
*/
package datastore
