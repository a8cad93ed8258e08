/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package connection

import (
	"context"
	"reflect"

	"github.com/suparena/identitystore/descriptor"
	"github.com/suparena/identitystore/dialect"
)

// Capabilities are fixed when a native connection is created.
type Capabilities struct {
	// RoutingMetadata is set by backends that route commands by metadata
	// rather than statement text.
	RoutingMetadata bool
	// ConcurrentCommands is set by backends whose connections accept
	// concurrent commands. Otherwise commands on a held connection are
	// serialized.
	ConcurrentCommands bool
}

// Metadata is the routing information stamped onto a command.
type Metadata struct {
	IdentityField string
	EntityType    string
	RuntimeType   reflect.Type
	StorageName   string
	Collection    string
	// Stamped reports whether the enricher filled the fields above.
	Stamped bool
}

// Command is a plan ready to execute on a native connection.
type Command struct {
	Plan       dialect.StatementPlan
	Descriptor *descriptor.EntityDescriptor
	Metadata   Metadata
}

// Result reports the effect of a command that returns no rows.
type Result struct {
	RowsAffected int64
	// LastInsertID holds a generated identity, if the backend reported one.
	LastInsertID any
}

// Row is one result row or document.
type Row interface {
	// Decode copies the row into dst, a pointer to the described entity.
	Decode(dst any) error
}

// Tx is a backend-native transaction. Commands issued on the connection
// while it is open run inside it.
type Tx interface {
	Commit() error
	Rollback() error
}

// Conn is a native connection.
type Conn interface {
	Capabilities() Capabilities
	Exec(ctx context.Context, cmd *Command) (Result, error)
	// Query calls fn for every row. Iteration stops at the first error.
	Query(ctx context.Context, cmd *Command, fn func(Row) error) error
	Begin(ctx context.Context) (Tx, error)
	Close() error
}

// Factory opens native connections.
type Factory interface {
	Open(ctx context.Context) (Conn, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context) (Conn, error)

// Open implements Factory.
func (f FactoryFunc) Open(ctx context.Context) (Conn, error) { return f(ctx) }
