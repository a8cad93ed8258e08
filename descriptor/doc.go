/*
Package descriptor derives the persisted shape of an entity type.

A descriptor lists the entity's fields in declaration order, its identity
field and its storage (table or collection) name:

	type Role struct {
	    Id             int
	    Name           string
	    NormalizedName string
	}

	d, _ := descriptor.Of[Role]()
	// d.StorageName == "Roles", d.Identity.Name == "Id"

Struct tags use the "store" key:

	Key   string `store:"account_key,identity"` // column name + explicit identity
	Cache string `store:"-"`                    // not persisted

An explicit identity tag takes precedence over the ID/Id naming convention.
Types without an identity are described successfully; operations that need
one fail with a SchemaError. Entities may implement StorageName() to pick
their table name and IndexMap() to override the document key templates.
*/
package descriptor
