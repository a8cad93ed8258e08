/*
Package errors provides the semantic error taxonomy for identitystore.

Every failure the engine returns belongs to one of the sentinel classes below
and can be checked with errors.Is() or the provided helper functions:

	var (
	    ErrNotFound           = errors.New("entity not found")
	    ErrAlreadyExists      = errors.New("entity already exists")
	    ErrInvalidInput       = errors.New("invalid input")
	    ErrSchema             = errors.New("schema error")
	    ErrAmbiguousOperation = errors.New("ambiguous operation")
	    ErrNotRegistered      = errors.New("type not registered")
	    ErrConnection         = errors.New("connection error")
	    ErrMigration          = errors.New("migration failed")
	    ErrCancelled          = errors.New("operation cancelled")
	    ErrStorage            = errors.New("storage error")
	)

Schema, ambiguous-operation and not-registered errors are programming or
configuration defects and are never retried. Connection errors may be
transient; retry policy belongs to the caller. Cancellation is kept distinct
from connection failures so callers can tell a user abort from a real fault.

Usage:

	plan, err := statement.Delete[Role](ctx, builder, &Role{})
	if errors.IsAmbiguousOperation(err) {
	    // supply a more specific filter
	}

	rows, err := repo.Find(ctx, filter)
	if errors.IsCancelled(err) {
	    // the request was aborted, nothing partial was returned
	}

The engine does not log. Typed errors carry the entity type and operation
so callers can log them meaningfully.
*/
package errors
