/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package identity_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suparena/identitystore"
	"github.com/suparena/identitystore/backend/dynamo"
	"github.com/suparena/identitystore/config"
	"github.com/suparena/identitystore/connection"
	storeerrors "github.com/suparena/identitystore/errors"
	"github.com/suparena/identitystore/identity"
)

func openEngine(t *testing.T, scope connection.Scope) *identitystore.Engine {
	t.Helper()
	ctx := context.Background()
	o := config.Defaults()
	o.ConnectionString = filepath.Join(t.TempDir(), "identity.db")
	o.Scope = scope
	o.CreateIfNotExists = true
	o.MigrateOnStartup = true
	o.SuperUser = "root"

	e, err := identitystore.Open(ctx, o, identity.Migrations)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	require.NoError(t, e.Startup(ctx))
	return e
}

func TestMigrationsPerBackend(t *testing.T) {
	for _, backend := range []string{"sqlite", "postgres", "mysql"} {
		steps, err := identity.Migrations(backend, nil)
		require.NoError(t, err, backend)
		require.Len(t, steps, 2, backend)
		assert.Equal(t, "identity_schema", steps[0].Name)
		assert.Contains(t, steps[0].Script, "AspNetUserRoles")
		assert.NotContains(t, steps[0].Script, "DROP TABLE", "down section is dropped")
	}

	_, err := identity.Migrations("oracle", nil)
	assert.Error(t, err)
	_, err = identity.Migrations("dynamodb", nil)
	assert.True(t, storeerrors.IsValidationError(err))

	steps, err := identity.Migrations("dynamodb", dynamo.New(nil, "Identity"))
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.NotNil(t, steps[0].Func)
}

func TestSQLiteIdentityStore(t *testing.T) {
	ctx := context.Background()
	e := openEngine(t, connection.PerOperation)
	s := identity.ForEngine(e)

	alice := &identity.User{UserName: "alice", Email: "alice@example.com", TenantId: 7}
	require.NoError(t, s.CreateUser(ctx, alice))
	assert.True(t, storeerrors.IsAlreadyExists(s.CreateUser(ctx, &identity.User{UserName: "Alice"})))

	got, err := s.FindByEmail(ctx, "ALICE@EXAMPLE.COM")
	require.NoError(t, err)
	assert.Equal(t, alice.Id, got.Id)
	assert.Equal(t, 7, got.TenantId)
	assert.Nil(t, got.LockoutEnd)

	_, err = s.CreateRole(ctx, "admin")
	require.NoError(t, err)
	_, err = s.CreateRole(ctx, "auditor")
	require.NoError(t, err)
	require.NoError(t, s.AddToRole(ctx, alice, "Admin"))
	require.NoError(t, s.AddToRole(ctx, alice, "nobody"))

	roles, err := s.GetRoles(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []string{"admin"}, roles)

	members, err := s.GetUsersInRole(ctx, "ADMIN")
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "alice", members[0].UserName)

	root := &identity.User{UserName: "root"}
	require.NoError(t, s.CreateUser(ctx, root))
	roles, err = s.GetRoles(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "auditor"}, roles)

	alice.PhoneNumber = "+15550100"
	alice.PhoneNumberConfirmed = true
	require.NoError(t, s.UpdateUser(ctx, alice))
	byPhone, err := s.FindByPhoneNumber(ctx, "+15550100")
	require.NoError(t, err)
	assert.True(t, byPhone.PhoneNumberConfirmed)

	require.NoError(t, s.RemoveFromRole(ctx, alice, "admin"))
	in, err := s.IsInRole(ctx, alice, "admin")
	require.NoError(t, err)
	assert.False(t, in)

	require.NoError(t, s.DeleteUser(ctx, alice.Id))
	_, err = s.FindByID(ctx, alice.Id)
	assert.True(t, storeerrors.IsNotFound(err))
}

func TestSQLiteRequestScopeRollback(t *testing.T) {
	ctx := context.Background()
	e := openEngine(t, connection.PerRequest)
	s := identity.ForEngine(e)

	sctx, h := e.Begin(ctx)
	conn, err := e.Current(sctx)
	require.NoError(t, err)
	tx, err := conn.Begin(sctx)
	require.NoError(t, err)
	require.NoError(t, s.CreateUser(sctx, &identity.User{UserName: "temp"}))
	_, err = s.FindByName(sctx, "temp")
	require.NoError(t, err, "visible inside the scope")
	require.NoError(t, tx.Rollback())
	require.NoError(t, h.End())

	_, err = s.FindByName(ctx, "temp")
	assert.True(t, storeerrors.IsNotFound(err))
}
