/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package sqlconn

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/suparena/identitystore/connection"
	"github.com/suparena/identitystore/dialect"
	"github.com/suparena/identitystore/dialect/sqldialect"
	storeerrors "github.com/suparena/identitystore/errors"
)

// DriverName maps a dialect name to the registered database/sql driver.
func DriverName(name string) (string, error) {
	switch strings.ToLower(name) {
	case dialect.Postgres, "pgx":
		return "postgres", nil
	case dialect.MySQL:
		return "mysql", nil
	case dialect.SQLite, "sqlite3":
		return "sqlite", nil
	}
	return "", fmt.Errorf("sqlconn: unsupported driver %q", name)
}

// DB is a pooled relational database. It implements connection.Factory by
// handing out dedicated pool connections.
type DB struct {
	db     *sql.DB
	flavor *sqldialect.Flavor
}

// Open opens and pings the database named by dsn.
func Open(ctx context.Context, name, dsn string) (*DB, error) {
	flavor, err := sqldialect.ForName(name)
	if err != nil {
		return nil, storeerrors.NewValidationError("driver", err.Error())
	}
	driver, err := DriverName(name)
	if err != nil {
		return nil, storeerrors.NewValidationError("driver", err.Error())
	}
	if flavor == sqldialect.MySQL {
		if dsn, err = foundRowsDSN(dsn); err != nil {
			return nil, storeerrors.NewValidationError("connection_string", err.Error())
		}
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, storeerrors.NewConnectionError(flavor.Name(), "open", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		if ctx.Err() != nil {
			return nil, storeerrors.NewCancelledError("", "open", ctx.Err())
		}
		return nil, storeerrors.NewConnectionError(flavor.Name(), "ping", err)
	}
	return New(db, flavor), nil
}

// foundRowsDSN makes MySQL report matched rather than changed rows, so an
// update that rewrites equal values still counts its row.
func foundRowsDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", err
	}
	cfg.ClientFoundRows = true
	return cfg.FormatDSN(), nil
}

// New wraps an open *sql.DB.
func New(db *sql.DB, flavor *sqldialect.Flavor) *DB {
	return &DB{db: db, flavor: flavor}
}

// SQL returns the underlying pool.
func (d *DB) SQL() *sql.DB { return d.db }

// Flavor returns the dialect flavor of the database.
func (d *DB) Flavor() *sqldialect.Flavor { return d.flavor }

// Close closes the pool.
func (d *DB) Close() error { return d.db.Close() }

// Open implements connection.Factory.
func (d *DB) Open(ctx context.Context) (connection.Conn, error) {
	c, err := d.db.Conn(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, storeerrors.NewCancelledError("", "open", ctx.Err())
		}
		return nil, storeerrors.NewConnectionError(d.flavor.Name(), "open", err)
	}
	return &Conn{conn: c, flavor: d.flavor}, nil
}

// execer is implemented by *sql.Conn and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Conn is one dedicated relational connection. Statements route by text,
// so it carries no routing capability, and it runs one command at a time.
type Conn struct {
	conn   *sql.Conn
	flavor *sqldialect.Flavor

	mu sync.Mutex
	tx *sql.Tx
}

// Capabilities implements connection.Conn.
func (c *Conn) Capabilities() connection.Capabilities {
	return connection.Capabilities{}
}

func (c *Conn) target() execer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tx != nil {
		return c.tx
	}
	return c.conn
}

// Exec implements connection.Conn. Inserts that leave the identity to the
// database report it in LastInsertID.
func (c *Conn) Exec(ctx context.Context, cmd *connection.Command) (connection.Result, error) {
	entity, op := entityOf(cmd), string(cmd.Plan.Op)
	args := cmd.Plan.Params.Values()

	if cmd.Plan.Returning != "" && c.flavor.SupportsReturning() {
		var id int64
		if err := c.target().QueryRowContext(ctx, cmd.Plan.Text, args...).Scan(&id); err != nil {
			return connection.Result{}, mapError(ctx, err, c.flavor.Name(), entity, op)
		}
		return connection.Result{RowsAffected: 1, LastInsertID: id}, nil
	}

	res, err := c.target().ExecContext(ctx, cmd.Plan.Text, args...)
	if err != nil {
		return connection.Result{}, mapError(ctx, err, c.flavor.Name(), entity, op)
	}
	out := connection.Result{}
	if n, err := res.RowsAffected(); err == nil {
		out.RowsAffected = n
	}
	if cmd.Plan.Returning != "" {
		if id, err := res.LastInsertId(); err == nil {
			out.LastInsertID = id
		}
	}
	return out, nil
}

// Query implements connection.Conn.
func (c *Conn) Query(ctx context.Context, cmd *connection.Command, fn func(connection.Row) error) error {
	entity, op := entityOf(cmd), string(cmd.Plan.Op)
	rows, err := c.target().QueryContext(ctx, cmd.Plan.Text, cmd.Plan.Params.Values()...)
	if err != nil {
		return mapError(ctx, err, c.flavor.Name(), entity, op)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return mapError(ctx, err, c.flavor.Name(), entity, op)
	}
	row := &row{rows: rows, cols: cols, cmd: cmd}
	for rows.Next() {
		if err := fn(row); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return mapError(ctx, err, c.flavor.Name(), entity, op)
	}
	return nil
}

// Begin implements connection.Conn. Commands issued on c run inside the
// transaction until it is committed or rolled back.
func (c *Conn) Begin(ctx context.Context) (connection.Tx, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tx != nil {
		return nil, storeerrors.NewValidationError("", "transaction already open on connection")
	}
	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, mapError(ctx, err, c.flavor.Name(), "", "begin")
	}
	c.tx = tx
	return &Tx{conn: c, tx: tx}, nil
}

// Close implements connection.Conn. An open transaction is rolled back.
func (c *Conn) Close() error {
	c.mu.Lock()
	tx := c.tx
	c.tx = nil
	c.mu.Unlock()
	if tx != nil {
		_ = tx.Rollback()
	}
	return c.conn.Close()
}

// Tx is a transaction bound to a Conn.
type Tx struct {
	conn *Conn
	tx   *sql.Tx
}

// Commit implements connection.Tx.
func (t *Tx) Commit() error {
	defer t.detach()
	return t.tx.Commit()
}

// Rollback implements connection.Tx.
func (t *Tx) Rollback() error {
	defer t.detach()
	return t.tx.Rollback()
}

func (t *Tx) detach() {
	t.conn.mu.Lock()
	defer t.conn.mu.Unlock()
	if t.conn.tx == t.tx {
		t.conn.tx = nil
	}
}

func entityOf(cmd *connection.Command) string {
	if cmd.Descriptor != nil {
		return cmd.Descriptor.Name
	}
	return cmd.Plan.Routing.EntityType
}

var (
	_ connection.Factory = (*DB)(nil)
	_ connection.Conn    = (*Conn)(nil)
)
