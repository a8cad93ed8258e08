/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package sqlconn

import (
	"context"
	"fmt"
	"time"

	"github.com/suparena/identitystore/migrate"
)

// LedgerTable stores applied migration versions.
const LedgerTable = "schema_migrations"

// Ledger is a migrate.Target over a relational database.
type Ledger struct {
	db *DB
}

// NewLedger creates a ledger in db.
func NewLedger(db *DB) *Ledger {
	return &Ledger{db: db}
}

// EnsureLedger implements migrate.Target.
func (l *Ledger) EnsureLedger(ctx context.Context) error {
	q := l.db.flavor.Quote
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    %s BIGINT PRIMARY KEY,
    %s VARCHAR(255) NOT NULL,
    %s TIMESTAMP NOT NULL
)`, q(LedgerTable), q("version"), q("name"), q("applied_at"))
	if _, err := l.db.db.ExecContext(ctx, stmt); err != nil {
		return mapError(ctx, err, l.db.flavor.Name(), "", "ensure ledger")
	}
	return nil
}

// Version implements migrate.Target.
func (l *Ledger) Version(ctx context.Context) (int64, error) {
	q := l.db.flavor.Quote
	var v int64
	stmt := fmt.Sprintf("SELECT COALESCE(MAX(%s), 0) FROM %s", q("version"), q(LedgerTable))
	if err := l.db.db.QueryRowContext(ctx, stmt).Scan(&v); err != nil {
		return 0, mapError(ctx, err, l.db.flavor.Name(), "", "read ledger")
	}
	return v, nil
}

// Apply implements migrate.Target. The script and the ledger row commit in
// one transaction. MySQL commits DDL implicitly, so a failing MySQL step
// may leave earlier statements of the same script applied.
func (l *Ledger) Apply(ctx context.Context, m migrate.Migration) error {
	tx, err := l.db.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range migrate.SplitStatements(m.Script) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec migration %s: %w", m, err)
		}
	}
	if m.Func != nil {
		if err := m.Func(ctx); err != nil {
			return err
		}
	}

	q := l.db.flavor.Quote
	record := fmt.Sprintf("INSERT INTO %s (%s, %s, %s) VALUES (%s, %s, %s)",
		q(LedgerTable), q("version"), q("name"), q("applied_at"),
		l.db.flavor.Placeholder(1), l.db.flavor.Placeholder(2), l.db.flavor.Placeholder(3))
	if _, err := tx.ExecContext(ctx, record, m.Version, m.Name, time.Now().UTC()); err != nil {
		return fmt.Errorf("record migration %s: %w", m, err)
	}
	return tx.Commit()
}

var _ migrate.Target = (*Ledger)(nil)
