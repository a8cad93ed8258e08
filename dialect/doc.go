/*
Package dialect defines how an operation request on a described entity is
rendered into a backend statement.

A Dialect never sees a connection. It takes an EntityDescriptor plus a
Filter (built with FilterOf from the non-zero members of an entity, or with
FilterFromMap) and produces a StatementPlan:

	filter, _ := dialect.FilterOf(d, &Role{NormalizedName: "ADMIN"})
	plan, err := sqldialect.Postgres.Select(d, filter, dialect.Page{})
	// plan.Text:   SELECT "Id", "Name", "NormalizedName" FROM "Roles" WHERE "NormalizedName" = $1
	// plan.Params: NormalizedName=ADMIN

Every caller value is carried in Params. Identifiers are quoted by the
dialect. Deletes and updates without a filter are rejected with an
AmbiguousOperationError.

Two families are provided: sqldialect for relational flavors and docdialect
for the DynamoDB expression language.
*/
package dialect
