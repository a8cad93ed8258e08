/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package identitystore

import (
	"context"
	"log/slog"
	"strings"

	"github.com/suparena/identitystore/backend/dynamo"
	"github.com/suparena/identitystore/backend/sqlconn"
	"github.com/suparena/identitystore/config"
	"github.com/suparena/identitystore/dialect"
	"github.com/suparena/identitystore/dialect/docdialect"
	"github.com/suparena/identitystore/migrate"
)

// MigrationSource returns the migrations for an opened backend. native is
// the backend handle: *sqlconn.DB for relational backends, *dynamo.Store
// for DynamoDB.
type MigrationSource func(backend string, native any) ([]migrate.Migration, error)

// Open builds an Engine from options. It connects to the configured
// backend and prepares the migration runner but does not run Startup.
// With CreateIfNotExists a missing relational database is created before
// the first connection.
func Open(ctx context.Context, o config.Options, source MigrationSource, opts ...Option) (*Engine, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	backend := strings.ToLower(o.Backend)
	logger := slog.Default()

	base := []Option{
		WithScope(o.Scope),
		WithStartup(o.CreateIfNotExists, o.MigrateOnStartup),
		WithSuperUser(o.SuperUser),
		WithLogger(logger),
		withBackend(backend),
	}

	if o.IsDocument() {
		api, err := dynamo.NewClient(ctx, dynamo.ClientOptions{
			Region:    o.DynamoDB.Region,
			AccessKey: o.DynamoDB.AccessKey,
			SecretKey: o.DynamoDB.SecretKey,
			Endpoint:  o.DynamoDB.Endpoint,
		})
		if err != nil {
			return nil, err
		}
		store := dynamo.New(api, o.Collection,
			dynamo.WithPageSize(o.DynamoDB.PageSize),
			dynamo.WithRetry(o.DynamoDB.MaxRetries, o.DynamoDB.RetryBackoff))
		return openDocument(store, source, logger, append(base, opts...)...)
	}

	if o.CreateIfNotExists {
		if err := sqlconn.EnsureDatabase(ctx, backend, o.ConnectionString); err != nil {
			return nil, err
		}
	}
	db, err := sqlconn.Open(ctx, backend, o.ConnectionString)
	if err != nil {
		return nil, err
	}
	e, err := openRelational(db, backend, o.ConnectionString, source, logger, append(base, opts...)...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return e, nil
}

func openRelational(db *sqlconn.DB, backend, dsn string, source MigrationSource, logger *slog.Logger, opts ...Option) (*Engine, error) {
	runner, err := newRunner(backend, db, sqlconn.NewLedger(db), sqlconn.Creator{Driver: backend, DSN: dsn}, source, logger)
	if err != nil {
		return nil, err
	}
	return New(db.Flavor(), db, append(opts,
		WithRunner(runner),
		WithBinder(sqlconn.TableBinder(db)),
		WithCloser(db))...)
}

func openDocument(store *dynamo.Store, source MigrationSource, logger *slog.Logger, opts ...Option) (*Engine, error) {
	runner, err := newRunner(dialect.DynamoDB, store, dynamo.NewLedger(store), store, source, logger)
	if err != nil {
		return nil, err
	}
	return New(docdialect.New(store.Table()), store, append(opts, WithRunner(runner))...)
}

func newRunner(backend string, native any, target migrate.Target, creator migrate.DatabaseCreator, source MigrationSource, logger *slog.Logger) (*migrate.Runner, error) {
	var migrations []migrate.Migration
	if source != nil {
		var err error
		if migrations, err = source(backend, native); err != nil {
			return nil, err
		}
	}
	return migrate.NewRunner(target, migrations,
		migrate.WithCreator(creator),
		migrate.WithLogger(logger.With("backend", backend)))
}
