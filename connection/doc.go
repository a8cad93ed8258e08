/*
Package connection manages native connection lifetimes and enriches
commands before they reach a backend.

A Manager opens connections through a Factory and applies a Scope:

	m := connection.NewManager(db,
		connection.WithScope(connection.PerRequest),
		connection.WithEnricher(&connection.RegistryEnricher{Registry: r}))

	ctx, h := m.Begin(ctx)
	defer h.End()

	lease, err := m.Acquire(ctx, reflect.TypeOf(Role{}))
	if err != nil {
		return err
	}
	defer lease.Release()
	res, err := lease.Exec(ctx, plan)

Within one scope every lease and every Current call resolves to the same
native connection. Commands on it run one at a time unless the connection
reports ConcurrentCommands. Capabilities are read from the connection,
never inferred from its concrete type.

Transactions are the backend's: call Begin on the Conn returned by Current
and commit or roll back through the returned Tx.
*/
package connection
