/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package identity

import (
	"context"
	"embed"
	"path"
	"strings"

	"github.com/suparena/identitystore/backend/dynamo"
	"github.com/suparena/identitystore/dialect"
	"github.com/suparena/identitystore/dialect/sqldialect"
	storeerrors "github.com/suparena/identitystore/errors"
	"github.com/suparena/identitystore/migrate"
)

//go:embed migrations
var migrationFiles embed.FS

// Migrations returns the schema steps for backend. native is the backend
// handle opened by the engine; the document backend needs its
// *dynamo.Store.
func Migrations(backend string, native any) ([]migrate.Migration, error) {
	if strings.EqualFold(backend, dialect.DynamoDB) {
		store, ok := native.(*dynamo.Store)
		if !ok {
			return nil, storeerrors.NewValidationError("backend", "dynamodb migrations need a *dynamo.Store")
		}
		return DocumentMigrations(store), nil
	}
	flavor, err := sqldialect.ForName(backend)
	if err != nil {
		return nil, err
	}
	return migrate.FromFS(migrationFiles, path.Join("migrations", flavor.Name()))
}

// DocumentMigrations returns the steps for the single DynamoDB table.
func DocumentMigrations(s *dynamo.Store) []migrate.Migration {
	return []migrate.Migration{
		{Version: 1, Name: "identity_table", Func: func(ctx context.Context) error {
			return dynamo.EnsureTable(ctx, s.API(), s.Table())
		}},
	}
}
