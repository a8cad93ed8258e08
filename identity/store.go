/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package identity

import (
	"context"
	"sort"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"

	"github.com/suparena/identitystore/datastore"
	storeerrors "github.com/suparena/identitystore/errors"
	"github.com/suparena/identitystore/statement"
)

const (
	userEntity = "User"
	roleEntity = "Role"
)

// Store manages users, roles and memberships.
type Store struct {
	users datastore.Repository[User]
	roles datastore.Repository[Role]
	links datastore.Repository[UserRole]

	superUser string
	newID     func() string
}

// Option configures a Store.
type Option func(*Store)

// WithSuperUser names a user who holds every role.
func WithSuperUser(name string) Option {
	return func(s *Store) {
		s.superUser = Normalize(name)
	}
}

// WithIDGenerator replaces the UUID generator used for new identities and
// stamps.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// NewStore creates a Store over the three repositories.
func NewStore(users datastore.Repository[User], roles datastore.Repository[Role], links datastore.Repository[UserRole], opts ...Option) *Store {
	s := &Store{
		users: users,
		roles: roles,
		links: links,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) prepareUser(u *User) error {
	if u == nil {
		return storeerrors.NewValidationError("user", "user is required")
	}
	if Normalize(u.UserName) == "" {
		return storeerrors.NewValidationError("UserName", "user name is required")
	}
	if u.Email != "" && !strfmt.IsEmail(u.Email) {
		return storeerrors.NewValidationError("Email", "invalid email address")
	}
	u.NormalizedUserName = Normalize(u.UserName)
	u.NormalizedEmail = Normalize(u.Email)
	u.ConcurrencyStamp = s.newID()
	return nil
}

// CreateUser validates and inserts u. Id and SecurityStamp are generated
// when empty. User names must be unique.
func (s *Store) CreateUser(ctx context.Context, u *User) error {
	if err := s.prepareUser(u); err != nil {
		return err
	}
	if _, err := s.FindByName(ctx, u.UserName); err == nil {
		return storeerrors.NewAlreadyExistsError(userEntity, u.NormalizedUserName)
	} else if !storeerrors.IsNotFound(err) {
		return err
	}
	if u.Id == "" {
		u.Id = s.newID()
	}
	if u.SecurityStamp == "" {
		u.SecurityStamp = s.newID()
	}
	return s.users.Put(ctx, u)
}

// FindByID returns the user with identity id.
func (s *Store) FindByID(ctx context.Context, id string) (*User, error) {
	return s.users.GetOne(ctx, id)
}

// FindByName returns the user whose normalized name matches name.
func (s *Store) FindByName(ctx context.Context, name string) (*User, error) {
	return s.findUser(ctx, "NormalizedUserName", Normalize(name))
}

// FindByEmail returns the first user whose normalized email matches email.
func (s *Store) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.findUser(ctx, "NormalizedEmail", Normalize(email))
}

// FindByPhoneNumber returns the first user with phone number phone.
func (s *Store) FindByPhoneNumber(ctx context.Context, phone string) (*User, error) {
	return s.findUser(ctx, "PhoneNumber", phone)
}

func (s *Store) findUser(ctx context.Context, field, value string) (*User, error) {
	if value == "" {
		return nil, storeerrors.NewValidationError(field, "value is required")
	}
	found, err := s.users.FindWhere(ctx, map[string]any{field: value}, statement.WithPage(1, 0))
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, storeerrors.NewNotFoundError(userEntity, value)
	}
	return &found[0], nil
}

// Users streams every user in pages.
func (s *Store) Users(ctx context.Context, opts ...datastore.StreamOption) <-chan datastore.StreamResult[User] {
	return datastore.Stream[User](ctx, s.users, nil, opts...)
}

// UpdateUser writes every field of u and refreshes its normalized names
// and concurrency stamp.
func (s *Store) UpdateUser(ctx context.Context, u *User) error {
	if err := s.prepareUser(u); err != nil {
		return err
	}
	return s.users.Replace(ctx, u)
}

// DeleteUser removes the user and its role memberships.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	if _, err := s.links.DeleteWhere(ctx, map[string]any{"UserId": id}); err != nil {
		return err
	}
	return s.users.Delete(ctx, id)
}

// CreateRole inserts a role named name. Role names must be unique.
func (s *Store) CreateRole(ctx context.Context, name string) (*Role, error) {
	normalized := Normalize(name)
	if normalized == "" {
		return nil, storeerrors.NewValidationError("Name", "role name is required")
	}
	if _, err := s.FindRoleByName(ctx, name); err == nil {
		return nil, storeerrors.NewAlreadyExistsError(roleEntity, normalized)
	} else if !storeerrors.IsNotFound(err) {
		return nil, err
	}
	role := &Role{
		Id:               s.newID(),
		Name:             name,
		NormalizedName:   normalized,
		ConcurrencyStamp: s.newID(),
	}
	if err := s.roles.Put(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// FindRoleByName returns the role whose normalized name matches name.
func (s *Store) FindRoleByName(ctx context.Context, name string) (*Role, error) {
	normalized := Normalize(name)
	if normalized == "" {
		return nil, storeerrors.NewValidationError("Name", "role name is required")
	}
	found, err := s.roles.FindWhere(ctx, map[string]any{"NormalizedName": normalized}, statement.WithPage(1, 0))
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, storeerrors.NewNotFoundError(roleEntity, normalized)
	}
	return &found[0], nil
}

// DeleteRole removes the role and its memberships. Unknown roles are
// ignored.
func (s *Store) DeleteRole(ctx context.Context, name string) error {
	role, err := s.roleOrNil(ctx, name)
	if err != nil || role == nil {
		return err
	}
	if _, err := s.links.DeleteWhere(ctx, map[string]any{"RoleId": role.Id}); err != nil {
		return err
	}
	return s.roles.Delete(ctx, role.Id)
}

func (s *Store) roleOrNil(ctx context.Context, name string) (*Role, error) {
	role, err := s.FindRoleByName(ctx, name)
	if storeerrors.IsNotFound(err) {
		return nil, nil
	}
	return role, err
}

// AddToRole makes u a member of the role named roleName. Unknown roles
// and existing memberships are ignored.
func (s *Store) AddToRole(ctx context.Context, u *User, roleName string) error {
	if u == nil {
		return storeerrors.NewValidationError("user", "user is required")
	}
	role, err := s.roleOrNil(ctx, roleName)
	if err != nil || role == nil {
		return err
	}
	existing, err := s.links.FindWhere(ctx, map[string]any{"UserId": u.Id, "RoleId": role.Id}, statement.WithPage(1, 0))
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	return s.links.Put(ctx, &UserRole{
		Id:           s.newID(),
		UserId:       u.Id,
		RoleId:       role.Id,
		DocumentType: UserRoleDocumentType,
	})
}

// RemoveFromRole ends u's membership of the role named roleName. Unknown
// roles are ignored.
func (s *Store) RemoveFromRole(ctx context.Context, u *User, roleName string) error {
	if u == nil {
		return storeerrors.NewValidationError("user", "user is required")
	}
	role, err := s.roleOrNil(ctx, roleName)
	if err != nil || role == nil {
		return err
	}
	_, err = s.links.DeleteWhere(ctx, map[string]any{"UserId": u.Id, "RoleId": role.Id})
	return err
}

// GetRoles returns the sorted names of u's roles. The super user holds
// every role.
func (s *Store) GetRoles(ctx context.Context, u *User) ([]string, error) {
	if u == nil {
		return nil, storeerrors.NewValidationError("user", "user is required")
	}
	names := []string{}
	if s.superUser != "" && Normalize(u.UserName) == s.superUser {
		all, err := s.roles.Find(ctx, nil)
		if err != nil {
			return nil, err
		}
		for _, r := range all {
			names = append(names, r.Name)
		}
		sort.Strings(names)
		return names, nil
	}

	links, err := s.links.FindWhere(ctx, map[string]any{"UserId": u.Id, "DocumentType": UserRoleDocumentType})
	if err != nil {
		return nil, err
	}
	for _, l := range links {
		role, err := s.roles.GetOne(ctx, l.RoleId)
		if storeerrors.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		names = append(names, role.Name)
	}
	sort.Strings(names)
	return names, nil
}

// IsInRole reports whether u holds the role named roleName.
func (s *Store) IsInRole(ctx context.Context, u *User, roleName string) (bool, error) {
	names, err := s.GetRoles(ctx, u)
	if err != nil {
		return false, err
	}
	want := Normalize(roleName)
	for _, n := range names {
		if Normalize(n) == want {
			return true, nil
		}
	}
	return false, nil
}

// GetUsersInRole returns the members of the role named roleName, or none
// for an unknown role.
func (s *Store) GetUsersInRole(ctx context.Context, roleName string) ([]User, error) {
	role, err := s.roleOrNil(ctx, roleName)
	if err != nil {
		return nil, err
	}
	users := []User{}
	if role == nil {
		return users, nil
	}
	links, err := s.links.FindWhere(ctx, map[string]any{"RoleId": role.Id})
	if err != nil {
		return nil, err
	}
	for _, l := range links {
		u, err := s.users.GetOne(ctx, l.UserId)
		if storeerrors.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].NormalizedUserName < users[j].NormalizedUserName })
	return users, nil
}
