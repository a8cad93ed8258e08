/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package datastore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suparena/identitystore/backend/sqlconn"
	"github.com/suparena/identitystore/connection"
	"github.com/suparena/identitystore/datastore"
	storeerrors "github.com/suparena/identitystore/errors"
	"github.com/suparena/identitystore/migrate"
	"github.com/suparena/identitystore/registry"
	"github.com/suparena/identitystore/statement"
)

type Role struct {
	Id             int64
	Name           string
	NormalizedName string
	Description    *string
}

var _ datastore.Repository[Role] = (*datastore.Store[Role])(nil)

func newStore(t *testing.T) *datastore.Store[Role] {
	t.Helper()
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "store.db")
	require.NoError(t, sqlconn.EnsureDatabase(ctx, "sqlite", dsn))
	db, err := sqlconn.Open(ctx, "sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	runner, err := migrate.NewRunner(sqlconn.NewLedger(db), []migrate.Migration{{Version: 1, Name: "roles", Script: `
CREATE TABLE "Roles" (
  "Id" INTEGER PRIMARY KEY AUTOINCREMENT,
  "Name" TEXT NOT NULL,
  "NormalizedName" TEXT NOT NULL UNIQUE,
  "Description" TEXT
);`}})
	require.NoError(t, err)
	_, err = runner.MigrateUp(ctx)
	require.NoError(t, err)

	r := registry.New(registry.WithBinder(sqlconn.TableBinder(db)))
	m := connection.NewManager(db, connection.WithEnricher(&connection.RegistryEnricher{Registry: r}))
	t.Cleanup(func() { _ = m.Close() })
	return datastore.New[Role](statement.New(r, db.Flavor()), m)
}

func TestStoreCRUD(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	admin := Role{Name: "Admin", NormalizedName: "ADMIN"}
	require.NoError(t, s.Put(ctx, &admin))
	assert.Equal(t, int64(1), admin.Id, "generated identity written back")
	require.NoError(t, s.Put(ctx, &Role{Name: "Ops", NormalizedName: "OPS"}))

	dup := Role{Name: "admin", NormalizedName: "ADMIN"}
	assert.True(t, storeerrors.IsAlreadyExists(s.Put(ctx, &dup)))

	got, err := s.GetOne(ctx, int64(1))
	require.NoError(t, err)
	assert.Equal(t, admin, *got)

	_, err = s.GetOne(ctx, int64(99))
	assert.True(t, storeerrors.IsNotFound(err))
	_, err = s.GetOne(ctx, nil)
	assert.True(t, storeerrors.IsValidationError(err))

	found, err := s.Find(ctx, &Role{NormalizedName: "OPS"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Ops", found[0].Name)

	all, err := s.Find(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	page, err := s.Find(ctx, nil, statement.WithPage(1, 1))
	require.NoError(t, err)
	require.Len(t, page, 1)

	desc := "operators"
	require.NoError(t, s.Update(ctx, int64(2), map[string]any{"Description": desc}))
	ops, err := s.GetOne(ctx, int64(2))
	require.NoError(t, err)
	require.NotNil(t, ops.Description)
	assert.Equal(t, desc, *ops.Description)
	assert.True(t, storeerrors.IsNotFound(s.Update(ctx, int64(42), map[string]any{"Name": "x"})))

	ops.Name = "Operations"
	require.NoError(t, s.Replace(ctx, ops))
	byName, err := s.FindWhere(ctx, map[string]any{"Name": "Operations"})
	require.NoError(t, err)
	assert.Len(t, byName, 1)
	assert.True(t, storeerrors.IsNotFound(s.Replace(ctx, &Role{Id: 77, Name: "n", NormalizedName: "N"})))

	require.NoError(t, s.Delete(ctx, int64(1)))
	assert.True(t, storeerrors.IsNotFound(s.Delete(ctx, int64(1))))

	n, err := s.DeleteWhere(ctx, map[string]any{"NormalizedName": "OPS"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_, err = s.DeleteWhere(ctx, nil)
	assert.True(t, storeerrors.IsAmbiguousOperation(err))
}

func TestStoreCancelled(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Put(context.Background(), &Role{Name: "A", NormalizedName: "A"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	found, err := s.Find(ctx, nil)
	assert.Nil(t, found)
	assert.True(t, storeerrors.IsCancelled(err))
}
