/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package sqldialect

import (
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suparena/identitystore/descriptor"
	"github.com/suparena/identitystore/dialect"
	storeerrors "github.com/suparena/identitystore/errors"
)

type Role struct {
	Id             int
	Name           string
	NormalizedName string
}

type Account struct {
	Key   string `store:"account_key,identity"`
	Owner string `store:"owner"`
	Note  *string
}

func describe[T any](t *testing.T) *descriptor.EntityDescriptor {
	t.Helper()
	d, err := descriptor.Of[T]()
	require.NoError(t, err)
	return d
}

func TestSelectRoleByNormalizedName(t *testing.T) {
	d := describe[Role](t)
	filter, err := dialect.FilterOf(d, &Role{NormalizedName: "ADMIN"})
	require.NoError(t, err)

	plan, err := Postgres.Select(d, filter, dialect.Page{})
	require.NoError(t, err)

	assert.Equal(t, `SELECT "Id", "Name", "NormalizedName" FROM "Roles" WHERE "NormalizedName" = $1`, plan.Text)
	assert.Equal(t, []string{"NormalizedName"}, plan.Params.Names())
	v, ok := plan.Params.Get("NormalizedName")
	require.True(t, ok)
	assert.Equal(t, "ADMIN", v)
	assert.Equal(t, []string{"Id", "Name", "NormalizedName"}, plan.Projection)
	assert.False(t, plan.Routing.Keyed)
	assert.Equal(t, "Roles", plan.Routing.Collection)
}

func TestSelectFlavors(t *testing.T) {
	d := describe[Role](t)
	filter, err := dialect.FilterOf(d, &Role{Id: 7, Name: "admin"})
	require.NoError(t, err)

	tests := []struct {
		flavor *Flavor
		want   string
	}{
		{Postgres, `SELECT "Id", "Name", "NormalizedName" FROM "Roles" WHERE "Id" = $1 AND "Name" = $2`},
		{MySQL, "SELECT `Id`, `Name`, `NormalizedName` FROM `Roles` WHERE `Id` = ? AND `Name` = ?"},
		{SQLite, `SELECT "Id", "Name", "NormalizedName" FROM "Roles" WHERE "Id" = ? AND "Name" = ?`},
	}
	for _, tt := range tests {
		t.Run(tt.flavor.Name(), func(t *testing.T) {
			plan, err := tt.flavor.Select(d, filter, dialect.Page{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, plan.Text)
			assert.Equal(t, []any{7, "admin"}, plan.Params.Values())
			assert.True(t, plan.Routing.Keyed)
		})
	}
}

func TestSelectWithoutFilter(t *testing.T) {
	plan, err := MySQL.Select(describe[Role](t), nil, dialect.Page{})
	require.NoError(t, err)
	assert.Equal(t, "SELECT `Id`, `Name`, `NormalizedName` FROM `Roles`", plan.Text)
	assert.Empty(t, plan.Params)
}

func TestSelectNullFilter(t *testing.T) {
	d := describe[Account](t)
	filter, err := dialect.FilterFromMap(d, map[string]any{"owner": "bob", "Note": nil})
	require.NoError(t, err)

	plan, err := Postgres.Select(d, filter, dialect.Page{})
	require.NoError(t, err)
	assert.Equal(t, `SELECT "account_key", "owner", "Note" FROM "Accounts" WHERE "owner" = $1 AND "Note" IS NULL`, plan.Text)
	assert.Equal(t, []string{"Owner"}, plan.Params.Names())
}

func TestPaging(t *testing.T) {
	d := describe[Role](t)

	tests := []struct {
		name   string
		flavor *Flavor
		page   dialect.Page
		suffix string
		values []any
	}{
		{"PostgresLimitOffset", Postgres, dialect.Page{Limit: 10, Offset: 20}, ` ORDER BY "Id" LIMIT $1 OFFSET $2`, []any{10, 20}},
		{"PostgresOffsetOnly", Postgres, dialect.Page{Offset: 5}, ` ORDER BY "Id" OFFSET $1`, []any{5}},
		{"MySQLOffsetOnly", MySQL, dialect.Page{Offset: 5}, " ORDER BY `Id` LIMIT ? OFFSET ?", []any{int(^uint32(0)), 5}},
		{"SQLiteOffsetOnly", SQLite, dialect.Page{Offset: 5}, ` ORDER BY "Id" LIMIT ? OFFSET ?`, []any{-1, 5}},
		{"SQLiteLimitOnly", SQLite, dialect.Page{Limit: 3}, ` ORDER BY "Id" LIMIT ?`, []any{3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := tt.flavor.Select(d, nil, tt.page)
			require.NoError(t, err)
			assert.True(t, strings.HasSuffix(plan.Text, tt.suffix), plan.Text)
			assert.Equal(t, tt.values, plan.Params.Values())
			assert.Equal(t, tt.page, plan.Page)
		})
	}
}

func TestInsert(t *testing.T) {
	d := describe[Role](t)

	t.Run("GeneratedIdentity", func(t *testing.T) {
		plan, err := Postgres.Insert(d, reflect.ValueOf(Role{Name: "Admin", NormalizedName: "ADMIN"}))
		require.NoError(t, err)
		assert.Equal(t, `INSERT INTO "Roles" ("Name", "NormalizedName") VALUES ($1, $2) RETURNING "Id"`, plan.Text)
		assert.Equal(t, "Id", plan.Returning)
		assert.Equal(t, []string{"Name", "NormalizedName"}, plan.Params.Names())
	})

	t.Run("MySQLHasNoReturning", func(t *testing.T) {
		plan, err := MySQL.Insert(d, reflect.ValueOf(Role{Name: "Admin"}))
		require.NoError(t, err)
		assert.Equal(t, "INSERT INTO `Roles` (`Name`, `NormalizedName`) VALUES (?, ?)", plan.Text)
		assert.Equal(t, "Id", plan.Returning)
	})

	t.Run("ExplicitIdentity", func(t *testing.T) {
		plan, err := SQLite.Insert(d, reflect.ValueOf(Role{Id: 4, Name: "Admin"}))
		require.NoError(t, err)
		assert.Equal(t, `INSERT INTO "Roles" ("Id", "Name", "NormalizedName") VALUES (?, ?, ?)`, plan.Text)
		assert.Empty(t, plan.Returning)
		assert.Equal(t, []any{4, "Admin", ""}, plan.Params.Values())
	})

	t.Run("StringIdentityIsKept", func(t *testing.T) {
		ad := describe[Account](t)
		plan, err := Postgres.Insert(ad, reflect.ValueOf(Account{Owner: "bob"}))
		require.NoError(t, err)
		assert.Equal(t, `INSERT INTO "Accounts" ("account_key", "owner", "Note") VALUES ($1, $2, $3)`, plan.Text)
	})
}

func TestDeleteAndUpdate(t *testing.T) {
	d := describe[Role](t)

	t.Run("Delete", func(t *testing.T) {
		filter, err := dialect.FilterOf(d, Role{Id: 3})
		require.NoError(t, err)
		plan, err := Postgres.Delete(d, filter)
		require.NoError(t, err)
		assert.Equal(t, `DELETE FROM "Roles" WHERE "Id" = $1`, plan.Text)
		assert.Equal(t, []any{3}, plan.Params.Values())
	})

	t.Run("Update", func(t *testing.T) {
		filter, err := dialect.FilterOf(d, Role{Id: 3})
		require.NoError(t, err)
		set, err := dialect.FilterFromMap(d, map[string]any{"Name": "Ops", "NormalizedName": "OPS"})
		require.NoError(t, err)

		plan, err := Postgres.Update(d, filter, set)
		require.NoError(t, err)
		assert.Equal(t, `UPDATE "Roles" SET "Name" = $1, "NormalizedName" = $2 WHERE "Id" = $3`, plan.Text)
		assert.Equal(t, []string{"Name", "NormalizedName", "where_Id"}, plan.Params.Names())
	})

	t.Run("EmptyFilterIsAmbiguous", func(t *testing.T) {
		_, err := Postgres.Delete(d, nil)
		assert.True(t, storeerrors.IsAmbiguousOperation(err))

		set, err := dialect.FilterFromMap(d, map[string]any{"Name": "x"})
		require.NoError(t, err)
		_, err = MySQL.Update(d, dialect.Filter{}, set)
		assert.True(t, storeerrors.IsAmbiguousOperation(err))
	})

	t.Run("EmptySet", func(t *testing.T) {
		filter, err := dialect.FilterOf(d, Role{Id: 3})
		require.NoError(t, err)
		_, err = SQLite.Update(d, filter, nil)
		assert.True(t, storeerrors.IsValidationError(err))
	})
}

func TestCallerValuesNeverReachText(t *testing.T) {
	d := describe[Role](t)
	hostile := `x'; DROP TABLE "Roles"; --`
	filter, err := dialect.FilterOf(d, Role{Name: hostile})
	require.NoError(t, err)

	for _, f := range []*Flavor{Postgres, MySQL, SQLite} {
		plan, err := f.Select(d, filter, dialect.Page{})
		require.NoError(t, err)
		assert.NotContains(t, plan.Text, "DROP")
		v, _ := plan.Params.Get("Name")
		assert.Equal(t, hostile, v)

		ins, err := f.Insert(d, reflect.ValueOf(Role{Name: hostile}))
		require.NoError(t, err)
		assert.NotContains(t, ins.Text, "DROP")
	}
}

func TestQuote(t *testing.T) {
	assert.Equal(t, `"Roles"`, Postgres.Quote("Roles"))
	assert.Equal(t, `"we""ird"`, SQLite.Quote(`we"ird`))
	assert.Equal(t, "`we``ird`", MySQL.Quote("we`ird"))
	assert.Equal(t, `"public"."Roles"`, Postgres.Quote("public.Roles"))
}

func TestForName(t *testing.T) {
	for name, want := range map[string]*Flavor{
		"postgres": Postgres, "pgx": Postgres, "MySQL": MySQL, "sqlite": SQLite, "sqlite3": SQLite,
	} {
		got, err := ForName(name)
		require.NoError(t, err, name)
		assert.Same(t, want, got, name)
	}
	_, err := ForName("oracle")
	assert.Error(t, err)
}
