/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package docdialect

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/suparena/identitystore/descriptor"
	"github.com/suparena/identitystore/dialect"
	storeerrors "github.com/suparena/identitystore/errors"
)

// Key attribute names of the single-table layout. Items are addressed by
// PK/SK; the type partition PK1/SK1 backs the GSI1 index used by
// type-scoped plans. EntityType carries the type discriminator.
const (
	AttrPK         = "PK"
	AttrSK         = "SK"
	AttrPK1        = "PK1"
	AttrSK1        = "SK1"
	AttrEntityType = "EntityType"
	TypeIndex      = "GSI1"
)

// Parameter names of the routing values. Field parameters are named after
// exported Go fields, which start upper case, so these never collide.
const (
	ParamPK         = "pk"
	ParamSK         = "sk"
	ParamPK1        = "pk1"
	ParamSK1        = "sk1"
	ParamEntityType = "etype"
	setPrefix       = "set"
)

var macroPattern = regexp.MustCompile(`{([^}]+)}`)

// Dialect renders DynamoDB expressions. Identifiers are quoted as
// expression attribute names (#Name) and values are bound as expression
// attribute values (:Name); the collection and index travel in Routing.
type Dialect struct {
	collection string
	newID      func() string
}

// Option configures a Dialect.
type Option func(*Dialect)

// WithIDGenerator replaces the UUID generator used for empty string
// identities.
func WithIDGenerator(fn func() string) Option {
	return func(d *Dialect) {
		d.newID = fn
	}
}

// New creates a document dialect targeting collection.
func New(collection string, opts ...Option) *Dialect {
	d := &Dialect{
		collection: collection,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name implements dialect.Dialect.
func (d *Dialect) Name() string { return dialect.DynamoDB }

// Collection returns the target collection (table) name.
func (d *Dialect) Collection() string { return d.collection }

// RequiresIdentity implements dialect.Dialect; documents are addressed by
// identity.
func (d *Dialect) RequiresIdentity() bool { return true }

// Quote implements dialect.Dialect. Expression attribute name placeholders
// may only contain alphanumerics and underscores; anything else is dropped.
func (d *Dialect) Quote(ident string) string {
	var b strings.Builder
	b.WriteByte('#')
	for _, r := range ident {
		if placeholderRune(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func placeholderRune(r rune) bool {
	return r == '_' || ('0' <= r && r <= '9') || ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z')
}

// Bind implements dialect.Binder. Field names become placeholders
// verbatim, so each must consist of placeholder runes only.
func (d *Dialect) Bind(desc *descriptor.EntityDescriptor) error {
	for _, f := range desc.Fields {
		for _, r := range f.Name {
			if !placeholderRune(r) {
				return storeerrors.NewSchemaError(desc.Name, "bind "+dialect.DynamoDB,
					fmt.Sprintf("field %s: %q is not allowed in an attribute name placeholder", f.Name, r))
			}
		}
	}
	return nil
}

// plan accumulates names and values while rendering.
type plan struct {
	dialect.StatementPlan
	d *Dialect
}

func (d *Dialect) newPlan(op dialect.Op, desc *descriptor.EntityDescriptor) *plan {
	p := &plan{
		StatementPlan: dialect.StatementPlan{
			Op:    op,
			Names: make(map[string]string),
			Routing: dialect.Routing{
				Collection: d.collection,
				EntityType: desc.Name,
			},
		},
		d: d,
	}
	if desc.Identity != nil {
		p.Routing.Identity = desc.Identity.Column
	}
	return p
}

// name registers an attribute under placeholder key and returns the
// quoted placeholder.
func (p *plan) name(key, attr string) string {
	q := p.d.Quote(key)
	p.Names[q] = attr
	return q
}

// bind registers a value and returns its placeholder.
func (p *plan) bind(key string, value any) string {
	p.Params.Add(key, value)
	return ":" + key
}

func (p *plan) eq(key, attr string, value any) string {
	return p.name(key, attr) + " = " + p.bind(key, value)
}

// address renders the key condition: keyed on PK/SK when the filter holds
// the identity, otherwise scoped to the type partition of GSI1. It returns
// the residual filter.
func (p *plan) address(desc *descriptor.EntityDescriptor, filter dialect.Filter) (dialect.Filter, error) {
	if desc.Identity != nil {
		if c, ok := filter.Get(desc.Identity.Name); ok {
			values := map[string]any{desc.Identity.Name: c.Value}
			pk, err := expand(desc, AttrPK, values)
			if err != nil {
				return nil, err
			}
			sk, err := expand(desc, AttrSK, values)
			if err != nil {
				return nil, err
			}
			p.Text = p.eq(ParamPK, AttrPK, pk) + " AND " + p.eq(ParamSK, AttrSK, sk)
			p.Routing.Keyed = true
			return filter.Without(desc.Identity.Name), nil
		}
	}
	pk1, err := expand(desc, AttrPK1, nil)
	if err != nil {
		return nil, err
	}
	p.Text = p.eq(ParamPK1, AttrPK1, pk1)
	p.Routing.Index = TypeIndex
	return filter, nil
}

func (p *plan) condition(filter dialect.Filter) {
	if len(filter) == 0 {
		return
	}
	clauses := make([]string, len(filter))
	for i, c := range filter {
		if c.Value == nil {
			clauses[i] = "attribute_not_exists(" + p.name(c.Field.Name, c.Field.Column) + ")"
			continue
		}
		clauses[i] = p.eq(c.Field.Name, c.Field.Column, c.Value)
	}
	p.Condition = strings.Join(clauses, " AND ")
}

// Insert implements dialect.Dialect. An empty string identity is bound to
// a new UUID and named in Returning; the entity itself is left untouched.
// The condition rejects overwriting an existing item.
func (d *Dialect) Insert(desc *descriptor.EntityDescriptor, entity reflect.Value) (dialect.StatementPlan, error) {
	id, err := desc.RequireIdentity(string(dialect.OpInsert))
	if err != nil {
		return dialect.StatementPlan{}, err
	}
	idv := desc.Value(entity, id)
	var generated any
	if idv.IsZero() {
		if idv.Kind() != reflect.String {
			return dialect.StatementPlan{}, storeerrors.NewSchemaError(desc.Name, string(dialect.OpInsert),
				"identity "+id.Name+" is empty and cannot be generated")
		}
		generated = reflect.ValueOf(d.newID()).Convert(idv.Type()).Interface()
	}

	p := d.newPlan(dialect.OpInsert, desc)
	values := make(map[string]any, len(desc.Fields))
	for _, f := range desc.Fields {
		v := desc.Value(entity, f).Interface()
		if generated != nil && f.Name == id.Name {
			v = generated
		}
		values[f.Name] = v
		p.name(f.Name, f.Column)
		p.Params.Add(f.Name, v)
	}

	keys := []struct{ attr, param string }{
		{AttrPK, ParamPK}, {AttrSK, ParamSK}, {AttrPK1, ParamPK1}, {AttrSK1, ParamSK1},
	}
	for _, k := range keys {
		if _, ok := desc.IndexMap[k.attr]; !ok {
			continue
		}
		v, err := expand(desc, k.attr, values)
		if err != nil {
			return dialect.StatementPlan{}, err
		}
		p.name(k.param, k.attr)
		p.Params.Add(k.param, v)
	}
	p.name(ParamEntityType, AttrEntityType)
	p.Params.Add(ParamEntityType, desc.Name)

	p.Text = p.eq(ParamPK, AttrPK, mustGet(p.Params, ParamPK)) + " AND " + p.eq(ParamSK, AttrSK, mustGet(p.Params, ParamSK))
	p.Params = dedupe(p.Params)
	p.Condition = "attribute_not_exists(" + p.d.Quote(ParamPK) + ")"
	p.Routing.Keyed = true
	if generated != nil {
		p.Returning = id.Column
	}
	return p.StatementPlan, nil
}

// Select implements dialect.Dialect. Page limit and offset are applied by
// the backend while reading pages.
func (d *Dialect) Select(desc *descriptor.EntityDescriptor, filter dialect.Filter, page dialect.Page) (dialect.StatementPlan, error) {
	p := d.newPlan(dialect.OpSelect, desc)
	residual, err := p.address(desc, filter)
	if err != nil {
		return dialect.StatementPlan{}, err
	}
	p.condition(residual)
	p.Projection = desc.Columns()
	for _, f := range desc.Fields {
		p.name(f.Name, f.Column)
	}
	p.Page = page
	return p.StatementPlan, nil
}

// Delete implements dialect.Dialect.
func (d *Dialect) Delete(desc *descriptor.EntityDescriptor, filter dialect.Filter) (dialect.StatementPlan, error) {
	if len(filter) == 0 {
		return dialect.StatementPlan{}, storeerrors.NewAmbiguousOperationError(desc.Name, string(dialect.OpDelete))
	}
	p := d.newPlan(dialect.OpDelete, desc)
	residual, err := p.address(desc, filter)
	if err != nil {
		return dialect.StatementPlan{}, err
	}
	p.condition(residual)
	return p.StatementPlan, nil
}

// Update implements dialect.Dialect. Patch values bind as :set<Field>.
func (d *Dialect) Update(desc *descriptor.EntityDescriptor, filter dialect.Filter, set dialect.Filter) (dialect.StatementPlan, error) {
	if len(filter) == 0 {
		return dialect.StatementPlan{}, storeerrors.NewAmbiguousOperationError(desc.Name, string(dialect.OpUpdate))
	}
	if len(set) == 0 {
		return dialect.StatementPlan{}, storeerrors.NewValidationError("", "update of "+desc.Name+" sets no fields")
	}
	if desc.Identity != nil && set.Has(desc.Identity.Name) {
		return dialect.StatementPlan{}, storeerrors.NewSchemaError(desc.Name, string(dialect.OpUpdate),
			"identity of a document cannot be updated")
	}

	p := d.newPlan(dialect.OpUpdate, desc)
	residual, err := p.address(desc, filter)
	if err != nil {
		return dialect.StatementPlan{}, err
	}
	p.condition(residual)

	assignments := make([]string, 0, len(set))
	var removals []string
	for _, c := range set {
		n := p.name(c.Field.Name, c.Field.Column)
		if c.Value == nil {
			removals = append(removals, n)
			continue
		}
		assignments = append(assignments, n+" = "+p.bind(setPrefix+c.Field.Name, c.Value))
	}
	var parts []string
	if len(assignments) > 0 {
		parts = append(parts, "SET "+strings.Join(assignments, ", "))
	}
	if len(removals) > 0 {
		parts = append(parts, "REMOVE "+strings.Join(removals, ", "))
	}
	p.Update = strings.Join(parts, " ")
	return p.StatementPlan, nil
}

// expand renders the key template of attr with the given field values.
func expand(desc *descriptor.EntityDescriptor, attr string, values map[string]any) (string, error) {
	template, ok := desc.IndexMap[attr]
	if !ok {
		return "", storeerrors.NewSchemaError(desc.Name, "route", "index map has no "+attr+" template")
	}
	var missing string
	out := macroPattern.ReplaceAllStringFunc(template, func(macro string) string {
		key := strings.Trim(macro, "{}")
		v, ok := values[key]
		if !ok || v == nil {
			missing = key
			return ""
		}
		return fmt.Sprint(v)
	})
	if missing != "" {
		return "", storeerrors.NewSchemaError(desc.Name, "route", fmt.Sprintf("key %s needs field %s", attr, missing))
	}
	return out, nil
}

func mustGet(p dialect.Params, name string) any {
	v, _ := p.Get(name)
	return v
}

// dedupe keeps the first binding of every parameter name.
func dedupe(params dialect.Params) dialect.Params {
	seen := make(map[string]bool, len(params))
	out := params[:0]
	for _, p := range params {
		if seen[p.Name] {
			continue
		}
		seen[p.Name] = true
		out = append(out, p)
	}
	return out
}

var _ dialect.Dialect = (*Dialect)(nil)
