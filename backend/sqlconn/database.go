/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package sqlconn

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	"github.com/suparena/identitystore/dialect"
	"github.com/suparena/identitystore/dialect/sqldialect"
	storeerrors "github.com/suparena/identitystore/errors"
)

// Creator creates the database named by a DSN when it is missing. It
// implements migrate.DatabaseCreator.
type Creator struct {
	Driver string
	DSN    string
}

// EnsureDatabaseExists implements migrate.DatabaseCreator.
func (c Creator) EnsureDatabaseExists(ctx context.Context) error {
	return EnsureDatabase(ctx, c.Driver, c.DSN)
}

// EnsureDatabase creates the database named by dsn if it does not exist.
// Existing databases are left untouched.
func EnsureDatabase(ctx context.Context, name, dsn string) error {
	flavor, err := sqldialect.ForName(name)
	if err != nil {
		return storeerrors.NewValidationError("driver", err.Error())
	}
	switch flavor.Name() {
	case dialect.Postgres:
		return ensurePostgres(ctx, dsn)
	case dialect.MySQL:
		return ensureMySQL(ctx, dsn)
	default:
		return ensureSQLite(ctx, dsn)
	}
}

func ensurePostgres(ctx context.Context, dsn string) error {
	kv := dsn
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		var err error
		if kv, err = pq.ParseURL(dsn); err != nil {
			return storeerrors.NewValidationError("dsn", err.Error())
		}
	}
	params := parseKeyValues(kv)
	name := params["dbname"]
	if name == "" {
		return storeerrors.NewValidationError("dsn", "postgres connection string names no database")
	}
	params["dbname"] = "postgres"

	db, err := sql.Open("postgres", formatKeyValues(params))
	if err != nil {
		return storeerrors.NewConnectionError(dialect.Postgres, "ensure database", err)
	}
	defer db.Close()

	var exists int
	err = db.QueryRowContext(ctx, "SELECT 1 FROM pg_database WHERE datname = $1", name).Scan(&exists)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, sql.ErrNoRows):
		return mapConnError(ctx, dialect.Postgres, err)
	}
	if _, err := db.ExecContext(ctx, "CREATE DATABASE "+pq.QuoteIdentifier(name)); err != nil {
		// Lost a race with another creator.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "42P04" {
			return nil
		}
		return mapConnError(ctx, dialect.Postgres, err)
	}
	return nil
}

func ensureMySQL(ctx context.Context, dsn string) error {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return storeerrors.NewValidationError("dsn", err.Error())
	}
	name := cfg.DBName
	if name == "" {
		return storeerrors.NewValidationError("dsn", "mysql connection string names no database")
	}
	cfg.DBName = ""

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return storeerrors.NewConnectionError(dialect.MySQL, "ensure database", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, "CREATE DATABASE IF NOT EXISTS "+sqldialect.MySQL.Quote(name)); err != nil {
		return mapConnError(ctx, dialect.MySQL, err)
	}
	return nil
}

func ensureSQLite(ctx context.Context, dsn string) error {
	path := SQLitePath(dsn)
	if path == "" {
		return nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return storeerrors.NewConnectionError(dialect.SQLite, "ensure database", err)
		}
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return storeerrors.NewConnectionError(dialect.SQLite, "ensure database", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return mapConnError(ctx, dialect.SQLite, err)
	}
	return nil
}

// SQLitePath returns the file path of a SQLite DSN, or "" for in-memory
// databases.
func SQLitePath(dsn string) string {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return ""
	}
	if unescaped, err := url.PathUnescape(path); err == nil {
		path = unescaped
	}
	return path
}

func mapConnError(ctx context.Context, backend string, err error) error {
	if ctx.Err() != nil {
		return storeerrors.NewCancelledError("", "ensure database", ctx.Err())
	}
	return storeerrors.NewConnectionError(backend, "ensure database", err)
}

// parseKeyValues parses a libpq key=value connection string. Values may be
// single-quoted with backslash escapes.
func parseKeyValues(s string) map[string]string {
	out := make(map[string]string)
	for s = strings.TrimSpace(s); s != ""; s = strings.TrimSpace(s) {
		eq := strings.IndexByte(s, '=')
		if eq < 0 {
			break
		}
		key := strings.TrimSpace(s[:eq])
		s = strings.TrimLeft(s[eq+1:], " ")

		var b strings.Builder
		if strings.HasPrefix(s, "'") {
			i := 1
			for ; i < len(s) && s[i] != '\''; i++ {
				if s[i] == '\\' && i+1 < len(s) {
					i++
				}
				b.WriteByte(s[i])
			}
			s = s[min(i+1, len(s)):]
		} else {
			end := strings.IndexByte(s, ' ')
			if end < 0 {
				end = len(s)
			}
			b.WriteString(s[:end])
			s = s[end:]
		}
		out[key] = b.String()
	}
	return out
}

func formatKeyValues(params map[string]string) string {
	parts := make([]string, 0, len(params))
	for k, v := range params {
		v = strings.ReplaceAll(v, `\`, `\\`)
		v = strings.ReplaceAll(v, `'`, `\'`)
		parts = append(parts, fmt.Sprintf("%s='%s'", k, v))
	}
	return strings.Join(parts, " ")
}
