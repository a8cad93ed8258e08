/*
Package registry tracks which entity types have been bound to a backend.

A TypeRegistry belongs to one engine instance. Each entity type is described
and bound at most once; the registration is kept for the lifetime of the
registry:

	r := registry.New(registry.WithBinder(sqlconn.TableBinder(db)))

	reg, err := registry.Register[Role](ctx, r)
	// reg.Descriptor, reg.StorageName

	d, err := r.Descriptor(reflect.TypeOf(Role{}))
	// fails with a NotRegisteredError before registration

Concurrent first use of a type is collapsed into a single describe/bind
flight, so every caller observes the same Registration. Second and later
calls are a map lookup and never touch the backend.
*/
package registry
