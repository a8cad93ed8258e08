/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package identity

import "time"

// UserRoleDocumentType marks membership rows written by this package.
const UserRoleDocumentType = "UserRole"

// User is an account.
type User struct {
	Id                   string `store:",identity"`
	UserName             string
	NormalizedUserName   string
	Email                string
	NormalizedEmail      string
	EmailConfirmed       bool
	PasswordHash         string
	SecurityStamp        string
	ConcurrencyStamp     string
	PhoneNumber          string
	PhoneNumberConfirmed bool
	TwoFactorEnabled     bool
	LockoutEnd           *time.Time
	LockoutEnabled       bool
	AccessFailedCount    int
	TenantId             int
}

func (User) StorageName() string { return "AspNetUsers" }

// Role is a named group of users.
type Role struct {
	Id               string `store:",identity"`
	Name             string
	NormalizedName   string
	ConcurrencyStamp string
}

func (Role) StorageName() string { return "AspNetRoles" }

// UserRole links a user to a role.
type UserRole struct {
	Id           string `store:",identity"`
	UserId       string
	RoleId       string
	DocumentType string
}

func (UserRole) StorageName() string { return "AspNetUserRoles" }
