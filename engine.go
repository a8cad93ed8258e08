/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package identitystore

import (
	"context"
	"io"
	"log/slog"
	"reflect"
	"sync"

	"github.com/suparena/identitystore/connection"
	"github.com/suparena/identitystore/dialect"
	storeerrors "github.com/suparena/identitystore/errors"
	"github.com/suparena/identitystore/migrate"
	"github.com/suparena/identitystore/registry"
	"github.com/suparena/identitystore/statement"
)

// Engine ties a dialect, a type registry and a connection manager
// together. It is safe for concurrent use once Startup has returned.
type Engine struct {
	dialect  dialect.Dialect
	registry *registry.TypeRegistry
	builder  *statement.Builder
	manager  *connection.Manager
	runner   *migrate.Runner
	logger   *slog.Logger

	createIfNotExists bool
	migrateOnStartup  bool
	superUser         string

	ready     chan struct{}
	readyOnce sync.Once
	readyErr  error

	repos   *repositories
	closers []io.Closer
}

// Option configures an Engine.
type Option func(*engineConfig)

type engineConfig struct {
	scope             connection.Scope
	binders           []registry.Binder
	runner            *migrate.Runner
	logger            *slog.Logger
	backend           string
	createIfNotExists bool
	migrateOnStartup  bool
	superUser         string
	closers           []io.Closer
}

// WithScope sets the connection scope. The default is PerOperation.
func WithScope(s connection.Scope) Option {
	return func(c *engineConfig) {
		c.scope = s
	}
}

// WithBinder adds a registry binder run after the identity check.
func WithBinder(b registry.Binder) Option {
	return func(c *engineConfig) {
		c.binders = append(c.binders, b)
	}
}

// WithRunner sets the migration runner used by EnsureDatabaseExists,
// MigrateUp and Startup.
func WithRunner(r *migrate.Runner) Option {
	return func(c *engineConfig) {
		c.runner = r
	}
}

// WithLogger sets the startup logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *engineConfig) {
		c.logger = l
	}
}

// WithStartup selects the steps Startup runs.
func WithStartup(createIfNotExists, migrateOnStartup bool) Option {
	return func(c *engineConfig) {
		c.createIfNotExists = createIfNotExists
		c.migrateOnStartup = migrateOnStartup
	}
}

// WithSuperUser names the user that holds every role.
func WithSuperUser(name string) Option {
	return func(c *engineConfig) {
		c.superUser = name
	}
}

// WithCloser registers a resource closed by Engine.Close, after the
// connection manager.
func WithCloser(cl io.Closer) Option {
	return func(c *engineConfig) {
		c.closers = append(c.closers, cl)
	}
}

func withBackend(name string) Option {
	return func(c *engineConfig) {
		c.backend = name
	}
}

// New creates an Engine over d, opening connections with factory.
func New(d dialect.Dialect, factory connection.Factory, opts ...Option) (*Engine, error) {
	if d == nil {
		return nil, storeerrors.NewValidationError("dialect", "dialect is required")
	}
	if factory == nil {
		return nil, storeerrors.NewValidationError("factory", "connection factory is required")
	}
	cfg := engineConfig{scope: connection.PerOperation, backend: d.Name()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	binders := append([]registry.Binder{statement.IdentityBinder(d)}, cfg.binders...)
	r := registry.New(registry.WithBinder(statement.Chain(binders...)))
	e := &Engine{
		dialect:  d,
		registry: r,
		builder:  statement.New(r, d),
		manager: connection.NewManager(factory,
			connection.WithScope(cfg.scope),
			connection.WithEnricher(&connection.RegistryEnricher{Registry: r}),
			connection.WithBackend(cfg.backend)),
		runner:            cfg.runner,
		logger:            cfg.logger,
		createIfNotExists: cfg.createIfNotExists,
		migrateOnStartup:  cfg.migrateOnStartup,
		superUser:         cfg.superUser,
		ready:             make(chan struct{}),
		repos:             newRepositories(),
		closers:           cfg.closers,
	}
	return e, nil
}

// Dialect returns the engine's dialect.
func (e *Engine) Dialect() dialect.Dialect { return e.dialect }

// Registry returns the engine's type registry.
func (e *Engine) Registry() *registry.TypeRegistry { return e.registry }

// Builder returns the statement builder.
func (e *Engine) Builder() *statement.Builder { return e.builder }

// Manager returns the connection manager.
func (e *Engine) Manager() *connection.Manager { return e.manager }

// SuperUser returns the configured super user name, or "".
func (e *Engine) SuperUser() string { return e.superUser }

// Register registers T with the engine's registry.
func Register[T any](ctx context.Context, e *Engine) (*registry.Registration, error) {
	return registry.Register[T](ctx, e.registry)
}

// Startup runs the configured startup steps and then marks the engine
// ready. Later calls return the first outcome.
func (e *Engine) Startup(ctx context.Context) error {
	e.readyOnce.Do(func() {
		e.readyErr = e.startup(ctx)
		close(e.ready)
	})
	return e.readyErr
}

func (e *Engine) startup(ctx context.Context) error {
	if e.createIfNotExists {
		res, err := e.EnsureDatabaseExists(ctx)
		if err != nil {
			e.logger.Error("ensure database failed", "error", err)
			return err
		}
		e.logger.Info("database ensured", "version", res.Version)
	}
	if e.migrateOnStartup {
		res, err := e.MigrateUp(ctx)
		if err != nil {
			e.logger.Error("migration failed", "version", res.Version, "error", err)
			return err
		}
		e.logger.Info("migrations applied", "version", res.Version, "applied", len(res.Applied))
	}
	return nil
}

// Ready is closed once Startup has finished, successfully or not.
func (e *Engine) Ready() <-chan struct{} { return e.ready }

// WaitReady blocks until Startup has finished and returns its error.
func (e *Engine) WaitReady(ctx context.Context) error {
	select {
	case <-e.ready:
		return e.readyErr
	case <-ctx.Done():
		return storeerrors.NewCancelledError("", "wait ready", ctx.Err())
	}
}

// EnsureDatabaseExists creates the database and its migration ledger when
// missing.
func (e *Engine) EnsureDatabaseExists(ctx context.Context) (migrate.Result, error) {
	if e.runner == nil {
		return migrate.Result{}, storeerrors.NewValidationError("runner", "engine has no migration runner")
	}
	return e.runner.EnsureDatabaseExists(ctx)
}

// MigrateUp applies every pending migration.
func (e *Engine) MigrateUp(ctx context.Context) (migrate.Result, error) {
	if e.runner == nil {
		return migrate.Result{}, storeerrors.NewValidationError("runner", "engine has no migration runner")
	}
	return e.runner.MigrateUp(ctx)
}

// Current returns the connection held by the active scope.
func (e *Engine) Current(ctx context.Context) (connection.Conn, error) {
	return e.manager.Current(ctx)
}

// Begin starts a request scope. Commands issued with the returned context
// share one connection until the handle is ended.
func (e *Engine) Begin(ctx context.Context) (context.Context, *connection.Handle) {
	return e.manager.Begin(ctx)
}

// Acquire leases a connection for commands on entity type t.
func (e *Engine) Acquire(ctx context.Context, t reflect.Type) (*connection.Lease, error) {
	return e.manager.Acquire(ctx, t)
}

// BuildInsert plans the insertion of entity.
func BuildInsert[T any](ctx context.Context, e *Engine, entity *T) (dialect.StatementPlan, error) {
	return statement.Insert(ctx, e.builder, entity)
}

// BuildSelect plans a select of entities matching the non-zero members of
// filter.
func BuildSelect[T any](ctx context.Context, e *Engine, filter *T, opts ...statement.SelectOption) (dialect.StatementPlan, error) {
	return statement.Select(ctx, e.builder, filter, opts...)
}

// BuildDelete plans the removal of entities matching filter.
func BuildDelete[T any](ctx context.Context, e *Engine, filter *T) (dialect.StatementPlan, error) {
	return statement.Delete(ctx, e.builder, filter)
}

// BuildUpdate plans setting patch on entities matching filter.
func BuildUpdate[T any](ctx context.Context, e *Engine, filter *T, patch map[string]any) (dialect.StatementPlan, error) {
	return statement.Update(ctx, e.builder, filter, patch)
}

// Close releases held connections and the resources registered with
// WithCloser. The first error is returned.
func (e *Engine) Close() error {
	err := e.manager.Close()
	for i := len(e.closers) - 1; i >= 0; i-- {
		if cerr := e.closers[i].Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
