/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package descriptor

import (
	"database/sql"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	storeerrors "github.com/suparena/identitystore/errors"
)

type Role struct {
	Id             int
	Name           string
	NormalizedName string
}

type Audit struct {
	CreatedAt time.Time
	UpdatedAt sql.NullTime
}

type Account struct {
	Key      string `store:"account_key,identity"`
	ID       string
	Email    string `store:"email_address"`
	Nickname *string
	Secret   string `store:"-"`
	internal int
	Audit
}

func (Account) StorageName() string { return "accounts" }

type UserRole struct {
	UserId string
	RoleId string
}

type Doubled struct {
	A string `store:",identity"`
	B string `store:",identity"`
}

type WithChannel struct {
	ID      string
	Updates chan string
}

type Keyed struct {
	ID string
}

func (Keyed) IndexMap() map[string]string {
	return map[string]string{"PK": "K#{ID}", "SK": "META"}
}

func TestDescribeConvention(t *testing.T) {
	d, err := Of[Role]()
	require.NoError(t, err)

	assert.Equal(t, "Role", d.Name)
	assert.Equal(t, "Roles", d.StorageName)
	require.NotNil(t, d.Identity)
	assert.Equal(t, "Id", d.Identity.Name)
	assert.Equal(t, reflect.TypeOf(0), d.Identity.Type)
	assert.Equal(t, []string{"Id", "Name", "NormalizedName"}, d.Columns())

	f, ok := d.Field("NormalizedName")
	require.True(t, ok)
	assert.False(t, f.Nullable)
}

func TestDescribeTagsAndEmbedding(t *testing.T) {
	d, err := Of[*Account]()
	require.NoError(t, err)

	assert.Equal(t, "accounts", d.StorageName)
	require.NotNil(t, d.Identity)
	assert.Equal(t, "Key", d.Identity.Name, "explicit identity wins over the ID convention")
	assert.Equal(t, "account_key", d.Identity.Column)
	assert.Equal(t,
		[]string{"account_key", "ID", "email_address", "Nickname", "CreatedAt", "UpdatedAt"},
		d.Columns())

	nick, _ := d.Field("Nickname")
	assert.True(t, nick.Nullable)
	updated, _ := d.Field("UpdatedAt")
	assert.True(t, updated.Nullable)
	assert.Equal(t, []int{6, 1}, updated.Index)

	byColumn, ok := d.Field("email_address")
	require.True(t, ok)
	assert.Equal(t, "Email", byColumn.Name)

	_, ok = d.Field("Secret")
	assert.False(t, ok)
}

func TestDescribeWithoutIdentity(t *testing.T) {
	d, err := Of[UserRole]()
	require.NoError(t, err)
	assert.Nil(t, d.Identity)

	_, err = d.RequireIdentity("insert")
	assert.True(t, storeerrors.IsSchemaError(err))
	assert.Equal(t, map[string]string{"PK1": "UserRole"}, d.IndexMap)
}

func TestDescribeRejectsMalformedTypes(t *testing.T) {
	tests := []struct {
		name string
		typ  reflect.Type
	}{
		{"not a struct", reflect.TypeOf("")},
		{"two identities", reflect.TypeOf(Doubled{})},
		{"unsupported kind", reflect.TypeOf(WithChannel{})},
		{"nil", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Describe(tt.typ)
			assert.True(t, storeerrors.IsSchemaError(err), "got %v", err)
		})
	}
}

func TestDescribeIsDeterministic(t *testing.T) {
	first, err := Of[Account]()
	require.NoError(t, err)
	second, err := Of[Account]()
	require.NoError(t, err)
	assert.True(t, reflect.DeepEqual(first, second))
}

func TestIndexMap(t *testing.T) {
	d, err := Of[Role]()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"PK":  "Role#{Id}",
		"SK":  "Role#{Id}",
		"PK1": "Role",
		"SK1": "Role#{Id}",
	}, d.IndexMap)

	k, err := Of[Keyed]()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"PK": "K#{ID}", "SK": "META"}, k.IndexMap)
}

func TestIndirect(t *testing.T) {
	d, err := Of[Role]()
	require.NoError(t, err)

	v, err := d.Indirect(&Role{Id: 7})
	require.NoError(t, err)
	assert.Equal(t, 7, d.Value(v, *d.Identity).Interface())

	_, err = d.Indirect((*Role)(nil))
	assert.True(t, storeerrors.IsValidationError(err))

	_, err = d.Indirect(UserRole{})
	assert.True(t, storeerrors.IsSchemaError(err))
}
