/*
Package statement is the caller-facing translation layer: typed requests in,
dialect.StatementPlan out.

	b := statement.New(registry.New(), sqldialect.Postgres)
	plan, err := statement.Select(ctx, b, &Role{NormalizedName: "ADMIN"})

Each function registers the entity type on first use, resolves its
descriptor and delegates to the active dialect. Nothing here opens a
connection.
*/
package statement
