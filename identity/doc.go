/*
Package identity stores users, roles and their memberships on top of
identitystore repositories.

Entities map to the AspNetUsers, AspNetRoles and AspNetUserRoles tables on
relational backends and to item types in the single DynamoDB table on the
document backend. User and role names are compared in normalized form:

	store := identity.ForEngine(engine)
	user := &identity.User{UserName: "alice", Email: "alice@example.com"}
	if err := store.CreateUser(ctx, user); err != nil {
	    return err
	}
	err := store.AddToRole(ctx, user, "admin")

Migrations returns the schema steps for a backend and plugs into
identitystore.Open as its MigrationSource.
*/
package identity
