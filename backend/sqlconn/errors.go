/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package sqlconn

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	storeerrors "github.com/suparena/identitystore/errors"
)

const (
	pgUniqueViolation    = "23505"
	mysqlDuplicateEntry  = 1062
	sqliteUniqueFailed   = "UNIQUE constraint failed"
	sqlitePrimaryKeyFail = "PRIMARY KEY constraint failed"
)

// mapError classifies a driver error.
func mapError(ctx context.Context, err error, backend, entity, op string) error {
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return storeerrors.NewCancelledError(entity, op, ctx.Err())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return storeerrors.NewCancelledError(entity, op, err)
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone):
		return storeerrors.NewConnectionError(backend, op, err)
	case IsUniqueViolation(err):
		return storeerrors.NewAlreadyExistsError(entity, "")
	}
	return storeerrors.NewStorageError(entity, op, err)
}

// IsUniqueViolation reports whether err is a unique or primary key
// violation from one of the supported drivers.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pgUniqueViolation
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}
	msg := err.Error()
	return strings.Contains(msg, sqliteUniqueFailed) || strings.Contains(msg, sqlitePrimaryKeyFail)
}
