/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package sqldialect

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/suparena/identitystore/descriptor"
	"github.com/suparena/identitystore/dialect"
	storeerrors "github.com/suparena/identitystore/errors"
)

// wherePrefix names filter parameters of updates, which share the statement
// with the patch parameters.
const wherePrefix = "where_"

// Flavor captures the syntax differences between relational backends.
type Flavor struct {
	name      string
	quote     string
	numbered  bool
	returning bool
}

var (
	// Postgres quotes with double quotes and binds $1, $2, ...
	Postgres = &Flavor{name: "postgres", quote: `"`, numbered: true, returning: true}
	// MySQL quotes with backticks and binds ?.
	MySQL = &Flavor{name: "mysql", quote: "`"}
	// SQLite quotes with double quotes and binds ?.
	SQLite = &Flavor{name: "sqlite", quote: `"`, returning: true}
)

// ForName returns the flavor registered under name.
func ForName(name string) (*Flavor, error) {
	switch strings.ToLower(name) {
	case dialect.Postgres, "pgx":
		return Postgres, nil
	case dialect.MySQL:
		return MySQL, nil
	case dialect.SQLite, "sqlite3":
		return SQLite, nil
	}
	return nil, fmt.Errorf("sqldialect: unknown flavor %q", name)
}

// Name implements dialect.Dialect.
func (f *Flavor) Name() string { return f.name }

// RequiresIdentity implements dialect.Dialect. Relational tables may use
// composite keys, so entities without identity are accepted.
func (f *Flavor) RequiresIdentity() bool { return false }

// Quote implements dialect.Dialect by wrapping ident in the flavor's quote
// character and doubling embedded quotes. Dotted names are quoted per part.
func (f *Flavor) Quote(ident string) string {
	parts := strings.Split(ident, ".")
	for i, p := range parts {
		parts[i] = f.quote + strings.ReplaceAll(p, f.quote, f.quote+f.quote) + f.quote
	}
	return strings.Join(parts, ".")
}

// SupportsReturning reports whether inserts can read generated identities
// back with RETURNING.
func (f *Flavor) SupportsReturning() bool { return f.returning }

// Placeholder returns the bind marker for the n-th (1-based) parameter.
func (f *Flavor) Placeholder(n int) string {
	if f.numbered {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// Paging renders the LIMIT/OFFSET clause for page, binding both values.
func (f *Flavor) Paging(page dialect.Page, params *dialect.Params) string {
	if page.IsZero() {
		return ""
	}
	var b strings.Builder
	limit := page.Limit
	switch {
	case limit > 0:
	case f.numbered:
		// Postgres accepts OFFSET alone.
		limit = 0
	case f == MySQL:
		limit = int(^uint32(0))
	default:
		limit = -1
	}
	if limit != 0 {
		params.Add("limit", limit)
		b.WriteString(" LIMIT ")
		b.WriteString(f.Placeholder(len(*params)))
	}
	if page.Offset > 0 {
		params.Add("offset", page.Offset)
		b.WriteString(" OFFSET ")
		b.WriteString(f.Placeholder(len(*params)))
	}
	return b.String()
}

func (f *Flavor) routing(d *descriptor.EntityDescriptor, keyed bool) dialect.Routing {
	r := dialect.Routing{
		Collection: d.StorageName,
		EntityType: d.Name,
		Keyed:      keyed,
	}
	if d.Identity != nil {
		r.Identity = d.Identity.Column
	}
	return r
}

// Insert implements dialect.Dialect. A zero integer identity is left to the
// database and read back through RETURNING where the flavor supports it.
func (f *Flavor) Insert(d *descriptor.EntityDescriptor, entity reflect.Value) (dialect.StatementPlan, error) {
	plan := dialect.StatementPlan{Op: dialect.OpInsert, Routing: f.routing(d, true)}

	cols := make([]string, 0, len(d.Fields))
	marks := make([]string, 0, len(d.Fields))
	for _, field := range d.Fields {
		v := d.Value(entity, field)
		if field.Identity && v.IsZero() && isInteger(field.Type) {
			plan.Returning = field.Column
			continue
		}
		plan.Params.Add(field.Name, v.Interface())
		cols = append(cols, f.Quote(field.Column))
		marks = append(marks, f.Placeholder(len(plan.Params)))
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(f.Quote(d.StorageName))
	if len(cols) == 0 {
		b.WriteString(" DEFAULT VALUES")
	} else {
		b.WriteString(" (")
		b.WriteString(strings.Join(cols, ", "))
		b.WriteString(") VALUES (")
		b.WriteString(strings.Join(marks, ", "))
		b.WriteString(")")
	}
	if plan.Returning != "" && f.returning {
		b.WriteString(" RETURNING ")
		b.WriteString(f.Quote(plan.Returning))
	}
	plan.Text = b.String()
	return plan, nil
}

// Select implements dialect.Dialect. All declared fields are projected.
func (f *Flavor) Select(d *descriptor.EntityDescriptor, filter dialect.Filter, page dialect.Page) (dialect.StatementPlan, error) {
	plan := dialect.StatementPlan{
		Op:         dialect.OpSelect,
		Projection: d.Columns(),
		Page:       page,
		Routing:    f.routing(d, d.Identity != nil && filter.Has(d.Identity.Name)),
	}

	cols := make([]string, len(plan.Projection))
	for i, c := range plan.Projection {
		cols[i] = f.Quote(c)
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(" FROM ")
	b.WriteString(f.Quote(d.StorageName))
	b.WriteString(f.where(filter, "", &plan.Params))
	if !page.IsZero() {
		// Paging without an order is nondeterministic.
		b.WriteString(" ORDER BY ")
		if d.Identity != nil {
			b.WriteString(f.Quote(d.Identity.Column))
		} else {
			b.WriteString(cols[0])
		}
	}
	b.WriteString(f.Paging(page, &plan.Params))
	plan.Text = b.String()
	return plan, nil
}

// Delete implements dialect.Dialect.
func (f *Flavor) Delete(d *descriptor.EntityDescriptor, filter dialect.Filter) (dialect.StatementPlan, error) {
	if len(filter) == 0 {
		return dialect.StatementPlan{}, storeerrors.NewAmbiguousOperationError(d.Name, string(dialect.OpDelete))
	}
	plan := dialect.StatementPlan{
		Op:      dialect.OpDelete,
		Routing: f.routing(d, d.Identity != nil && filter.Has(d.Identity.Name)),
	}
	plan.Text = "DELETE FROM " + f.Quote(d.StorageName) + f.where(filter, "", &plan.Params)
	return plan, nil
}

// Update implements dialect.Dialect. Patch parameters are named after their
// field; filter parameters carry the where_ prefix.
func (f *Flavor) Update(d *descriptor.EntityDescriptor, filter dialect.Filter, set dialect.Filter) (dialect.StatementPlan, error) {
	if len(filter) == 0 {
		return dialect.StatementPlan{}, storeerrors.NewAmbiguousOperationError(d.Name, string(dialect.OpUpdate))
	}
	if len(set) == 0 {
		return dialect.StatementPlan{}, storeerrors.NewValidationError("", "update of "+d.Name+" sets no fields")
	}
	plan := dialect.StatementPlan{
		Op:      dialect.OpUpdate,
		Routing: f.routing(d, d.Identity != nil && filter.Has(d.Identity.Name)),
	}

	assignments := make([]string, len(set))
	for i, c := range set {
		plan.Params.Add(c.Field.Name, c.Value)
		assignments[i] = f.Quote(c.Field.Column) + " = " + f.Placeholder(len(plan.Params))
	}
	plan.Text = "UPDATE " + f.Quote(d.StorageName) + " SET " + strings.Join(assignments, ", ") +
		f.where(filter, wherePrefix, &plan.Params)
	return plan, nil
}

func (f *Flavor) where(filter dialect.Filter, prefix string, params *dialect.Params) string {
	if len(filter) == 0 {
		return ""
	}
	clauses := make([]string, len(filter))
	for i, c := range filter {
		col := f.Quote(c.Field.Column)
		if c.Value == nil {
			clauses[i] = col + " IS NULL"
			continue
		}
		params.Add(prefix+c.Field.Name, c.Value)
		clauses[i] = col + " = " + f.Placeholder(len(*params))
	}
	return " WHERE " + strings.Join(clauses, " AND ")
}

func isInteger(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

var _ dialect.Dialect = (*Flavor)(nil)
