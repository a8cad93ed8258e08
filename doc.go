/*
Package identitystore provides a typed persistence layer for identity data
(users, roles and their memberships) over relational and document backends.

Entities are plain structs described by `store` tags. The Engine binds a
dialect to a type registry and a connection manager, runs database
creation and migrations at startup and hands out typed repositories:

  - Relational: PostgreSQL, MySQL and SQLite through database/sql
  - Document: DynamoDB, one table holding every entity type
  - Migrations: versioned steps recorded in a per-database ledger
  - Connection scopes: per operation, per request or singleton
  - Semantic error types shared by every backend

Basic Usage:

	o, _ := config.Load("identitystore.yaml")
	e, err := identitystore.Open(ctx, o, identity.Migrations)
	if err != nil {
		return err
	}
	defer e.Close()
	if err := e.Startup(ctx); err != nil {
		return err
	}

	users := identity.ForEngine(e)
	u := &identity.User{UserName: "alice", Email: "alice@example.com"}
	err = users.CreateUser(ctx, u)

Lower-level access is available through Repository, BuildSelect and the
other statement builders.
*/
package identitystore
