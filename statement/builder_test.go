/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package statement

import (
	"context"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suparena/identitystore/dialect"
	"github.com/suparena/identitystore/dialect/docdialect"
	"github.com/suparena/identitystore/dialect/sqldialect"
	storeerrors "github.com/suparena/identitystore/errors"
	"github.com/suparena/identitystore/registry"
)

type Role struct {
	Id             int
	Name           string
	NormalizedName string
}

type Profile struct {
	Id      string
	Display string
	Bio     *string
}

type Tag struct {
	Label string
}

func TestBuildSelectRegistersRole(t *testing.T) {
	ctx := context.Background()
	r := registry.New()
	b := New(r, sqldialect.Postgres)
	require.False(t, r.IsRegistered(reflect.TypeOf(Role{})))

	plan, err := Select(ctx, b, &Role{NormalizedName: "ADMIN"})
	require.NoError(t, err)

	v, ok := plan.Params.Get("NormalizedName")
	require.True(t, ok)
	assert.Equal(t, "ADMIN", v)
	assert.Contains(t, plan.Text, `"Roles"`)
	assert.Contains(t, plan.Text, `"NormalizedName"`)
	assert.NotContains(t, plan.Text, "ADMIN")
	assert.True(t, r.IsRegistered(reflect.TypeOf(Role{})))
}

func TestSelectVariants(t *testing.T) {
	ctx := context.Background()
	b := New(registry.New(), sqldialect.SQLite)

	all, err := Select[Role](ctx, b, nil)
	require.NoError(t, err)
	assert.Equal(t, `SELECT "Id", "Name", "NormalizedName" FROM "Roles"`, all.Text)

	paged, err := Select(ctx, b, &Role{Name: "a"}, WithPage(10, 0))
	require.NoError(t, err)
	assert.Equal(t, dialect.Page{Limit: 10}, paged.Page)
	assert.Equal(t, []any{"a", 10}, paged.Params.Values())

	// Zero values are kept when named explicitly.
	where, err := SelectWhere[Role](ctx, b, map[string]any{"Name": ""})
	require.NoError(t, err)
	assert.Equal(t, []any{""}, where.Params.Values())

	_, err = SelectWhere[Role](ctx, b, map[string]any{"Missing": 1})
	assert.True(t, storeerrors.IsSchemaError(err))
}

func TestInsert(t *testing.T) {
	ctx := context.Background()
	b := New(registry.New(), docdialect.New("identity", docdialect.WithIDGenerator(func() string { return "p-1" })))

	p := &Profile{Display: "Alice"}
	plan, err := Insert(ctx, b, p)
	require.NoError(t, err)
	assert.Equal(t, "p-1", p.Id)
	assert.Equal(t, dialect.OpInsert, plan.Op)

	_, err = Insert[Profile](ctx, b, nil)
	assert.True(t, storeerrors.IsValidationError(err))
}

func TestDeleteAndUpdate(t *testing.T) {
	ctx := context.Background()
	b := New(registry.New(), sqldialect.MySQL)

	plan, err := Delete(ctx, b, &Role{Id: 2})
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM `Roles` WHERE `Id` = ?", plan.Text)

	plan, err = DeleteWhere[Role](ctx, b, map[string]any{"NormalizedName": "OPS"})
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM `Roles` WHERE `NormalizedName` = ?", plan.Text)

	plan, err = Update(ctx, b, &Role{Id: 2}, map[string]any{"Name": "Ops"})
	require.NoError(t, err)
	assert.Equal(t, "UPDATE `Roles` SET `Name` = ? WHERE `Id` = ?", plan.Text)
	assert.Equal(t, []any{"Ops", 2}, plan.Params.Values())

	plan, err = UpdateWhere[Role](ctx, b, map[string]any{"Name": "Ops"}, map[string]any{"NormalizedName": "OPS"})
	require.NoError(t, err)
	assert.Equal(t, []string{"NormalizedName", "where_Name"}, plan.Params.Names())
}

func TestEmptyFilterFailsBeforeIO(t *testing.T) {
	ctx := context.Background()
	b := New(registry.New(), sqldialect.Postgres)

	_, err := Delete(ctx, b, &Role{})
	assert.True(t, storeerrors.IsAmbiguousOperation(err))
	_, err = Delete[Role](ctx, b, nil)
	assert.True(t, storeerrors.IsAmbiguousOperation(err))
	_, err = Update(ctx, b, &Role{}, map[string]any{"Name": "x"})
	assert.True(t, storeerrors.IsAmbiguousOperation(err))
}

func TestReplace(t *testing.T) {
	ctx := context.Background()
	b := New(registry.New(), sqldialect.Postgres)

	plan, err := Replace(ctx, b, &Profile{Id: "p-1", Display: "Alice"})
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "Profiles" SET "Display" = $1, "Bio" = $2 WHERE "Id" = $3`, plan.Text)
	assert.Equal(t, []any{"Alice", nil, "p-1"}, plan.Params.Values())

	_, err = Replace(ctx, b, &Profile{Display: "x"})
	assert.True(t, storeerrors.IsValidationError(err))

	_, err = Replace(ctx, b, &Tag{Label: "x"})
	assert.True(t, storeerrors.IsSchemaError(err))
}

func TestIdentityBinder(t *testing.T) {
	ctx := context.Background()
	doc := docdialect.New("identity")
	r := registry.New(registry.WithBinder(Chain(IdentityBinder(doc), nil)))
	b := New(r, doc)

	_, err := Select(ctx, b, &Tag{Label: "x"})
	assert.True(t, storeerrors.IsSchemaError(err))
	assert.False(t, r.IsRegistered(reflect.TypeOf(Tag{})))

	type Café struct {
		Id   string
		Menü string
	}
	_, err = Select(ctx, b, &Café{Id: "c-1"})
	assert.True(t, storeerrors.IsSchemaError(err))
	assert.False(t, r.IsRegistered(reflect.TypeOf(Café{})))

	// Relational dialects accept entities without identity.
	sql := registry.New(registry.WithBinder(IdentityBinder(sqldialect.Postgres)))
	_, err = Select(ctx, New(sql, sqldialect.Postgres), &Tag{Label: "x"})
	assert.NoError(t, err)
}

func TestCancelledBeforeRegistration(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Select(ctx, New(registry.New(), sqldialect.Postgres), &Role{Id: 1})
	assert.True(t, storeerrors.IsCancelled(err))
}
