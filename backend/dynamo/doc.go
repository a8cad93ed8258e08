/*
Package dynamo binds the engine to a single DynamoDB table.

Items are addressed by PK and SK; every entity type also writes PK1 and
SK1 so that the GSI1 index holds one partition per type. Keyed plans become
item calls, type-scoped plans become GSI1 queries, and type-scoped deletes
and updates fan out over the matching keys.

A Store is a connection.Factory. Its connections report routing metadata
and concurrent commands, so the connection manager stamps every command and
does not serialize them. Commands without stamped metadata are rejected.

	client, err := dynamo.NewClient(ctx, dynamo.ClientOptions{Region: "us-west-2"})
	store := dynamo.New(client, "Identity")
	err = store.EnsureDatabaseExists(ctx)

Throttled calls are retried with a linear backoff. There are no
transactions.
*/
package dynamo
