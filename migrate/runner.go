/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package migrate

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	storeerrors "github.com/suparena/identitystore/errors"
)

// State is the position of a Runner in its lifecycle.
type State int

const (
	NotChecked State = iota
	DatabaseEnsured
	Migrating
	UpToDate
	Failed
)

func (s State) String() string {
	switch s {
	case NotChecked:
		return "not-checked"
	case DatabaseEnsured:
		return "database-ensured"
	case Migrating:
		return "migrating"
	case UpToDate:
		return "up-to-date"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Target is a database with a migration ledger.
type Target interface {
	// EnsureLedger creates the ledger if it does not exist.
	EnsureLedger(ctx context.Context) error
	// Version returns the highest committed version, or 0.
	Version(ctx context.Context) (int64, error)
	// Apply runs m and records its version. A step whose version is
	// recorded must have run to completion.
	Apply(ctx context.Context, m Migration) error
}

// DatabaseCreator creates the target database. It must succeed without
// changes when the database already exists.
type DatabaseCreator interface {
	EnsureDatabaseExists(ctx context.Context) error
}

// Result reports the outcome of a Runner call.
type Result struct {
	// Version is the ledger version after the call.
	Version int64
	// Applied lists the versions applied by the call, in order.
	Applied []int64
	State   State
}

// Runner brings a Target up to the latest migration. Calls are serialized.
type Runner struct {
	target     Target
	creator    DatabaseCreator
	migrations []Migration
	logger     *slog.Logger

	mu    sync.Mutex
	state State
}

// Option configures a Runner.
type Option func(*Runner)

// WithCreator sets the database creator used by EnsureDatabaseExists.
func WithCreator(c DatabaseCreator) Option {
	return func(r *Runner) {
		r.creator = c
	}
}

// WithLogger sets the progress logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRunner validates and orders migrations. Versions must be positive and
// unique.
func NewRunner(target Target, migrations []Migration, opts ...Option) (*Runner, error) {
	if target == nil {
		return nil, storeerrors.NewValidationError("target", "migration target is required")
	}
	ordered := append([]Migration(nil), migrations...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Version < ordered[j].Version })
	for i, m := range ordered {
		if m.Version <= 0 {
			return nil, storeerrors.NewValidationError("version", fmt.Sprintf("migration %q has version %d", m.Name, m.Version))
		}
		if i > 0 && ordered[i-1].Version == m.Version {
			return nil, storeerrors.NewValidationError("version", fmt.Sprintf("duplicate migration version %d", m.Version))
		}
		if m.Script == "" && m.Func == nil {
			return nil, storeerrors.NewValidationError("script", fmt.Sprintf("migration %s is empty", m))
		}
	}

	r := &Runner{
		target:     target,
		migrations: ordered,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// State returns the current state.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Latest returns the highest known migration version.
func (r *Runner) Latest() int64 {
	if len(r.migrations) == 0 {
		return 0
	}
	return r.migrations[len(r.migrations)-1].Version
}

// EnsureDatabaseExists creates the database when a creator is configured,
// then makes sure the ledger exists and reports its version.
func (r *Runner) EnsureDatabaseExists(ctx context.Context) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := storeerrors.FromContext(ctx, "", "ensure database"); err != nil {
		return Result{State: r.state}, err
	}
	if r.creator != nil {
		if err := r.creator.EnsureDatabaseExists(ctx); err != nil {
			return Result{State: r.state}, wrapStep(ctx, "create database", err)
		}
	}
	if err := r.target.EnsureLedger(ctx); err != nil {
		return Result{State: r.state}, wrapStep(ctx, "ledger", err)
	}
	version, err := r.target.Version(ctx)
	if err != nil {
		return Result{State: r.state}, wrapStep(ctx, "ledger", err)
	}
	if r.state == NotChecked {
		r.state = DatabaseEnsured
	}
	r.logger.InfoContext(ctx, "database ensured", "version", version)
	return Result{Version: version, State: r.state}, nil
}

// MigrateUp applies every migration above the ledger version in ascending
// order. It stops at the first failing step with a MigrationError naming
// it; steps committed before it stay committed.
func (r *Runner) MigrateUp(ctx context.Context) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := storeerrors.FromContext(ctx, "", "migrate"); err != nil {
		return Result{State: r.state}, err
	}
	if err := r.target.EnsureLedger(ctx); err != nil {
		return r.fail(ctx, Result{}, wrapStep(ctx, "ledger", err))
	}
	current, err := r.target.Version(ctx)
	if err != nil {
		return r.fail(ctx, Result{}, wrapStep(ctx, "ledger", err))
	}

	r.state = Migrating
	res := Result{Version: current}
	for _, m := range r.migrations {
		if m.Version <= current {
			continue
		}
		if err := storeerrors.FromContext(ctx, "", "migrate"); err != nil {
			return r.fail(ctx, res, err)
		}
		r.logger.InfoContext(ctx, "applying migration", "version", m.Version, "name", m.Name)
		if err := r.target.Apply(ctx, m); err != nil {
			if ctx.Err() != nil {
				err = storeerrors.NewCancelledError("", "migrate", ctx.Err())
			} else {
				err = storeerrors.NewMigrationError(m.Version, m.Name, err)
			}
			return r.fail(ctx, res, err)
		}
		res.Version = m.Version
		res.Applied = append(res.Applied, m.Version)
	}

	r.state = UpToDate
	res.State = r.state
	r.logger.InfoContext(ctx, "migrations up to date", "version", res.Version, "applied", len(res.Applied))
	return res, nil
}

func (r *Runner) fail(ctx context.Context, res Result, err error) (Result, error) {
	r.state = Failed
	res.State = Failed
	r.logger.ErrorContext(ctx, "migration failed", "version", res.Version, "error", err)
	return res, err
}

func wrapStep(ctx context.Context, name string, err error) error {
	switch {
	case ctx.Err() != nil:
		return storeerrors.NewCancelledError("", "migrate", ctx.Err())
	case storeerrors.IsCancelled(err), storeerrors.IsConnectionError(err), storeerrors.IsMigrationError(err):
		return err
	}
	return storeerrors.NewMigrationError(0, name, err)
}
