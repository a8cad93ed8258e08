/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package dialect

import (
	"fmt"
	"reflect"

	"github.com/suparena/identitystore/descriptor"
	storeerrors "github.com/suparena/identitystore/errors"
)

// Op is the kind of statement a plan performs.
type Op string

const (
	OpInsert Op = "insert"
	OpSelect Op = "select"
	OpDelete Op = "delete"
	OpUpdate Op = "update"
)

// Dialect names.
const (
	Postgres = "postgres"
	MySQL    = "mysql"
	SQLite   = "sqlite"
	DynamoDB = "dynamodb"
)

// Dialect renders backend-specific statements from an entity descriptor and
// an operation request. Implementations must bind every caller value through
// the plan parameters and quote every identifier they emit.
type Dialect interface {
	// Name returns the dialect name, e.g. "postgres" or "dynamodb".
	Name() string
	// Quote quotes a table, column or collection identifier.
	Quote(ident string) string
	// RequiresIdentity reports whether every entity needs an identity field.
	RequiresIdentity() bool

	Insert(d *descriptor.EntityDescriptor, entity reflect.Value) (StatementPlan, error)
	Select(d *descriptor.EntityDescriptor, filter Filter, page Page) (StatementPlan, error)
	Delete(d *descriptor.EntityDescriptor, filter Filter) (StatementPlan, error)
	Update(d *descriptor.EntityDescriptor, filter Filter, set Filter) (StatementPlan, error)
}

// Binder is implemented by dialects that accept only some entity shapes.
// Bind runs once, when a type is registered.
type Binder interface {
	Bind(d *descriptor.EntityDescriptor) error
}

// Page narrows a select to a window of rows. Zero values mean unbounded.
type Page struct {
	Limit  int
	Offset int
}

// IsZero reports whether the page is unbounded.
func (p Page) IsZero() bool { return p.Limit <= 0 && p.Offset <= 0 }

// Routing is the addressing metadata of a plan. Document backends route by
// it; relational backends carry it only for diagnostics.
type Routing struct {
	// Collection is the table or collection the plan targets.
	Collection string
	// EntityType is the type discriminator stored alongside documents.
	EntityType string
	// Identity is the storage name of the identity field, if any.
	Identity string
	// Index names the secondary index used by type-scoped document plans.
	Index string
	// Keyed reports whether the plan addresses a single item by identity.
	Keyed bool
}

// StatementPlan is the rendered form of one operation.
type StatementPlan struct {
	Op Op
	// Text is the statement. Document dialects put the key condition here.
	Text string
	// Condition is the residual filter of a document plan.
	Condition string
	// Update is the update expression of a document plan.
	Update string
	// Projection lists the storage names a select returns.
	Projection []string
	Params     Params
	// Names maps quoted identifier placeholders to storage names.
	Names map[string]string
	Page  Page
	// Returning names the generated identity column read back after insert.
	Returning string
	Routing   Routing
}

// Param is one bound statement parameter.
type Param struct {
	Name  string
	Value any
}

// Params is an ordered name to value mapping.
type Params []Param

// Add appends a parameter.
func (p *Params) Add(name string, value any) {
	*p = append(*p, Param{Name: name, Value: value})
}

// Get returns the value bound to name.
func (p Params) Get(name string) (any, bool) {
	for _, param := range p {
		if param.Name == name {
			return param.Value, true
		}
	}
	return nil, false
}

// Names returns parameter names in binding order.
func (p Params) Names() []string {
	names := make([]string, len(p))
	for i, param := range p {
		names[i] = param.Name
	}
	return names
}

// Values returns parameter values in binding order.
func (p Params) Values() []any {
	values := make([]any, len(p))
	for i, param := range p {
		values[i] = param.Value
	}
	return values
}

// Map returns the parameters as a map.
func (p Params) Map() map[string]any {
	m := make(map[string]any, len(p))
	for _, param := range p {
		m[param.Name] = param.Value
	}
	return m
}

// Condition constrains one field to equal a value.
type Condition struct {
	Field descriptor.Field
	Value any
}

// Filter is a conjunction of equality conditions in field declaration order.
type Filter []Condition

// Has reports whether the filter constrains the named field.
func (f Filter) Has(name string) bool {
	_, ok := f.Get(name)
	return ok
}

// Get returns the condition on the named field.
func (f Filter) Get(name string) (Condition, bool) {
	for _, c := range f {
		if c.Field.Name == name {
			return c, true
		}
	}
	return Condition{}, false
}

// Without returns the filter minus the named field.
func (f Filter) Without(name string) Filter {
	out := make(Filter, 0, len(f))
	for _, c := range f {
		if c.Field.Name != name {
			out = append(out, c)
		}
	}
	return out
}

// FilterOf builds a filter from the non-zero members of entity. A nil
// entity yields an empty filter.
func FilterOf(d *descriptor.EntityDescriptor, entity any) (Filter, error) {
	if entity == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(entity)
	if rv.Kind() == reflect.Pointer && rv.IsNil() {
		return nil, nil
	}
	v, err := d.Indirect(entity)
	if err != nil {
		return nil, err
	}
	var f Filter
	for _, field := range d.Fields {
		fv := d.Value(v, field)
		if fv.IsZero() {
			continue
		}
		f = append(f, Condition{Field: field, Value: fv.Interface()})
	}
	return f, nil
}

// FilterFromMap builds a filter from explicit field values, keyed by Go
// field name or storage name. Zero values are kept. Unknown names fail with a
// SchemaError.
func FilterFromMap(d *descriptor.EntityDescriptor, values map[string]any) (Filter, error) {
	var f Filter
	for _, field := range d.Fields {
		value, ok := values[field.Name]
		if !ok {
			value, ok = values[field.Column]
		}
		if ok {
			f = append(f, Condition{Field: field, Value: value})
		}
	}
	if len(f) != len(values) {
		for name := range values {
			if _, ok := d.Field(name); !ok {
				return nil, storeerrors.NewSchemaError(d.Name, "filter", fmt.Sprintf("unknown field %q", name))
			}
		}
		return nil, storeerrors.NewSchemaError(d.Name, "filter", "field named twice")
	}
	return f, nil
}
