/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package connection

import (
	"context"
	"errors"
	"reflect"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/suparena/identitystore/dialect"
	storeerrors "github.com/suparena/identitystore/errors"
)

var (
	// ErrNoScope is returned by Current when no connection is held for the
	// caller.
	ErrNoScope = errors.New("connection: no active scope")
	// ErrClosed is returned when a released holder or manager is used.
	ErrClosed = errors.New("connection: closed")
)

// Manager hands out native connections according to its Scope. It is safe
// for concurrent use.
type Manager struct {
	factory  Factory
	scope    Scope
	enricher Enricher
	backend  string

	singleton *holder
	key       *scopeKey
}

type scopeKey struct{ m *Manager }

// Option configures a Manager.
type Option func(*Manager)

// WithScope sets the connection lifetime policy. The default is PerOperation.
func WithScope(s Scope) Option {
	return func(m *Manager) {
		m.scope = s
	}
}

// WithEnricher sets the hook run on every command creation.
func WithEnricher(e Enricher) Option {
	return func(m *Manager) {
		m.enricher = e
	}
}

// WithBackend names the backend in connection errors.
func WithBackend(name string) Option {
	return func(m *Manager) {
		m.backend = name
	}
}

// NewManager creates a Manager opening connections with factory.
func NewManager(factory Factory, opts ...Option) *Manager {
	m := &Manager{
		factory: factory,
		scope:   PerOperation,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.key = &scopeKey{m: m}
	if m.scope == Singleton {
		m.singleton = m.newHolder()
	}
	return m
}

// Scope returns the configured lifetime policy.
func (m *Manager) Scope() Scope { return m.scope }

// holder owns at most one native connection. Commands on it are serialized
// unless the connection accepts concurrent commands.
type holder struct {
	m      *Manager
	sem    *semaphore.Weighted
	mu     sync.Mutex
	conn   Conn
	closed bool
}

func (m *Manager) newHolder() *holder {
	return &holder{m: m, sem: semaphore.NewWeighted(1)}
}

// acquire waits for the holder, opens its connection on first use and
// returns it with the function releasing the hold.
func (h *holder) acquire(ctx context.Context) (Conn, func(), error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return nil, nil, storeerrors.NewCancelledError("", "acquire", err)
	}
	release := func() { h.sem.Release(1) }

	conn, err := h.connect(ctx)
	if err != nil {
		release()
		return nil, nil, err
	}
	if conn.Capabilities().ConcurrentCommands {
		release()
		release = func() {}
	}
	return conn, release, nil
}

func (h *holder) connect(ctx context.Context) (Conn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, storeerrors.NewConnectionError(h.m.backend, "open", ErrClosed)
	}
	if h.conn == nil {
		conn, err := h.m.open(ctx)
		if err != nil {
			return nil, err
		}
		h.conn = conn
	}
	return h.conn, nil
}

// close waits for the in-flight command, if any, then closes the
// connection. Only the first call closes.
func (h *holder) close() error {
	_ = h.sem.Acquire(context.Background(), 1)
	defer h.sem.Release(1)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	if h.conn == nil {
		return nil
	}
	err := h.conn.Close()
	h.conn = nil
	if err != nil {
		return storeerrors.NewConnectionError(h.m.backend, "close", err)
	}
	return nil
}

func (m *Manager) open(ctx context.Context) (Conn, error) {
	if err := storeerrors.FromContext(ctx, "", "open"); err != nil {
		return nil, err
	}
	conn, err := m.factory.Open(ctx)
	if err != nil {
		if storeerrors.IsCancelled(err) || storeerrors.IsConnectionError(err) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, storeerrors.NewCancelledError("", "open", ctx.Err())
		}
		return nil, storeerrors.NewConnectionError(m.backend, "open", err)
	}
	return conn, nil
}

// Handle is a logical unit of work started with Begin.
type Handle struct {
	holder *holder
	once   sync.Once
	err    error
}

// End releases the scope's connection. It is safe to call more than once;
// only the first call releases.
func (h *Handle) End() error {
	if h == nil || h.holder == nil {
		return nil
	}
	h.once.Do(func() {
		h.err = h.holder.close()
	})
	return h.err
}

// Begin starts a logical scope. Under PerRequest, connections acquired with
// the returned context share one lazily opened connection until End. Under
// other policies, and inside an enclosing scope, the handle is a no-op.
func (m *Manager) Begin(ctx context.Context) (context.Context, *Handle) {
	if m.scope != PerRequest || m.holderFrom(ctx) != nil {
		return ctx, &Handle{}
	}
	h := m.newHolder()
	return context.WithValue(ctx, m.key, h), &Handle{holder: h}
}

func (m *Manager) holderFrom(ctx context.Context) *holder {
	h, _ := ctx.Value(m.key).(*holder)
	return h
}

func (m *Manager) scopeHolder(ctx context.Context) *holder {
	switch m.scope {
	case Singleton:
		return m.singleton
	case PerRequest:
		return m.holderFrom(ctx)
	}
	return nil
}

// Current returns the connection held for ctx, opening it on first access.
// Repeated calls within one scope return the same connection. It fails with
// ErrNoScope when no connection is held, which is always the case under
// PerOperation.
//
// Current waits for outstanding leases but holds none itself: commands
// issued directly on the returned connection are not serialized with
// leased commands. Use Acquire for serialized access.
func (m *Manager) Current(ctx context.Context) (Conn, error) {
	h := m.scopeHolder(ctx)
	if h == nil {
		return nil, ErrNoScope
	}
	conn, release, err := h.acquire(ctx)
	if err != nil {
		return nil, err
	}
	release()
	return conn, nil
}

// Acquire returns a lease on a connection for commands on entity type t.
// Under PerRequest without an active scope, and under PerOperation, a fresh
// connection is opened and closed again on Release.
func (m *Manager) Acquire(ctx context.Context, t reflect.Type) (*Lease, error) {
	if err := storeerrors.FromContext(ctx, typeName(t), "acquire"); err != nil {
		return nil, err
	}
	if h := m.scopeHolder(ctx); h != nil {
		conn, release, err := h.acquire(ctx)
		if err != nil {
			return nil, err
		}
		return &Lease{m: m, t: t, conn: conn, release: release}, nil
	}

	conn, err := m.open(ctx)
	if err != nil {
		return nil, err
	}
	return &Lease{m: m, t: t, conn: conn, release: func() { _ = conn.Close() }}, nil
}

// Close releases the Singleton connection. Leases acquired afterwards fail.
func (m *Manager) Close() error {
	if m.singleton == nil {
		return nil
	}
	return m.singleton.close()
}

// Lease is exclusive use of a connection for one entity type. It must be
// released exactly once.
type Lease struct {
	m       *Manager
	t       reflect.Type
	conn    Conn
	release func()
	once    sync.Once
}

// Conn returns the leased native connection.
func (l *Lease) Conn() Conn { return l.conn }

// Command wraps plan in a command and runs the enricher on it.
func (l *Lease) Command(ctx context.Context, plan dialect.StatementPlan) (*Command, error) {
	cmd := &Command{Plan: plan}
	if l.m.enricher != nil {
		if err := l.m.enricher.Enrich(ctx, l.conn.Capabilities(), l.t, cmd); err != nil {
			return nil, err
		}
	}
	return cmd, nil
}

// Exec enriches plan and executes it.
func (l *Lease) Exec(ctx context.Context, plan dialect.StatementPlan) (Result, error) {
	cmd, err := l.Command(ctx, plan)
	if err != nil {
		return Result{}, err
	}
	if err := storeerrors.FromContext(ctx, typeName(l.t), string(plan.Op)); err != nil {
		return Result{}, err
	}
	res, err := l.conn.Exec(ctx, cmd)
	return res, storeerrors.Wrap(err, typeName(l.t), string(plan.Op))
}

// Query enriches plan and streams its rows to fn.
func (l *Lease) Query(ctx context.Context, plan dialect.StatementPlan, fn func(Row) error) error {
	cmd, err := l.Command(ctx, plan)
	if err != nil {
		return err
	}
	if err := storeerrors.FromContext(ctx, typeName(l.t), string(plan.Op)); err != nil {
		return err
	}
	return storeerrors.Wrap(l.conn.Query(ctx, cmd, fn), typeName(l.t), string(plan.Op))
}

// Release gives the connection back to its scope, or closes it under
// PerOperation.
func (l *Lease) Release() {
	l.once.Do(l.release)
}
