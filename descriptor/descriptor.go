/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package descriptor

import (
	"database/sql/driver"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-openapi/inflect"
	storeerrors "github.com/suparena/identitystore/errors"
)

// TagKey is the struct tag consulted for column names and identity markers.
const TagKey = "store"

// Namer lets an entity choose its table or collection name.
type Namer interface {
	StorageName() string
}

// IndexMapper lets an entity override the document key templates.
type IndexMapper interface {
	IndexMap() map[string]string
}

// Field describes one persisted member of an entity.
type Field struct {
	// Name is the Go field name.
	Name string
	// Column is the storage name of the field.
	Column string
	// Type is the runtime type of the field.
	Type reflect.Type
	// Nullable reports whether the field can hold a null.
	Nullable bool
	// Identity marks the primary identity field.
	Identity bool
	// Index is the reflect index path used with FieldByIndex.
	Index []int
}

// EntityDescriptor is the derived schema shape of an entity type.
// It is computed once per type and must be treated as immutable.
type EntityDescriptor struct {
	Type        reflect.Type
	Name        string
	StorageName string
	Identity    *Field
	Fields      []Field
	IndexMap    map[string]string
}

var (
	valuerType = reflect.TypeOf((*driver.Valuer)(nil)).Elem()
	timeType   = reflect.TypeOf(time.Time{})
)

// Of describes the entity type T.
func Of[T any]() (*EntityDescriptor, error) {
	return Describe(reflect.TypeOf((*T)(nil)).Elem())
}

// Describe derives the descriptor for an entity type. Pointer types are
// dereferenced. It fails with a SchemaError for non-struct types, unsupported
// field kinds, or more than one explicit identity.
func Describe(t reflect.Type) (*EntityDescriptor, error) {
	if t == nil {
		return nil, storeerrors.NewSchemaError("<nil>", "describe", "nil type")
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	name := TypeName(t)
	if t.Kind() != reflect.Struct {
		return nil, storeerrors.NewSchemaError(name, "describe", fmt.Sprintf("kind %s is not a struct", t.Kind()))
	}

	d := &EntityDescriptor{
		Type: t,
		Name: name,
	}

	var explicit []int
	if err := collectFields(d, t, nil, &explicit); err != nil {
		return nil, err
	}
	if len(d.Fields) == 0 {
		return nil, storeerrors.NewSchemaError(name, "describe", "no persisted fields")
	}

	switch len(explicit) {
	case 0:
		if i := conventionIdentity(d); i >= 0 {
			d.Fields[i].Identity = true
			d.Identity = &d.Fields[i]
		}
	case 1:
		d.Identity = &d.Fields[explicit[0]]
	default:
		return nil, storeerrors.NewSchemaError(name, "describe", "more than one identity field")
	}

	d.StorageName = storageName(t, name)
	d.IndexMap = indexMap(t, d)
	return d, nil
}

func collectFields(d *EntityDescriptor, t reflect.Type, parent []int, explicit *[]int) error {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		column, opts, skip := parseTag(sf.Tag.Get(TagKey))
		if skip {
			continue
		}

		index := append(append([]int(nil), parent...), i)
		ft := sf.Type

		if sf.Anonymous && sf.IsExported() {
			et := ft
			if et.Kind() == reflect.Pointer {
				et = et.Elem()
			}
			if et.Kind() == reflect.Struct && !isScalarStruct(et) && column == "" {
				if ft.Kind() == reflect.Pointer {
					return storeerrors.NewSchemaError(d.Name, "describe",
						fmt.Sprintf("embedded pointer %s is not supported", sf.Name))
				}
				if err := collectFields(d, et, index, explicit); err != nil {
					return err
				}
				continue
			}
		}
		if !sf.IsExported() {
			continue
		}
		if err := checkKind(ft); err != nil {
			return storeerrors.NewSchemaError(d.Name, "describe",
				fmt.Sprintf("field %s: %v", sf.Name, err))
		}

		if column == "" {
			column = sf.Name
		}
		f := Field{
			Name:     sf.Name,
			Column:   column,
			Type:     ft,
			Nullable: isNullable(ft),
			Identity: opts["identity"],
			Index:    index,
		}
		if f.Identity {
			*explicit = append(*explicit, len(d.Fields))
		}
		d.Fields = append(d.Fields, f)
	}
	return nil
}

func parseTag(tag string) (column string, opts map[string]bool, skip bool) {
	if tag == "-" {
		return "", nil, true
	}
	parts := strings.Split(tag, ",")
	opts = make(map[string]bool, len(parts))
	for _, p := range parts[1:] {
		opts[strings.TrimSpace(p)] = true
	}
	return strings.TrimSpace(parts[0]), opts, false
}

func checkKind(t reflect.Type) error {
	base := t
	if base.Kind() == reflect.Pointer {
		base = base.Elem()
	}
	switch base.Kind() {
	case reflect.Chan, reflect.Func, reflect.Complex64, reflect.Complex128,
		reflect.Interface, reflect.UnsafePointer, reflect.Pointer:
		return fmt.Errorf("unsupported kind %s", t.Kind())
	}
	return nil
}

func isScalarStruct(t reflect.Type) bool {
	return t == timeType || t.Implements(valuerType) || reflect.PointerTo(t).Implements(valuerType)
}

func isNullable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice:
		return true
	case reflect.Struct:
		return t.Implements(valuerType) && t != timeType
	}
	return false
}

func conventionIdentity(d *EntityDescriptor) int {
	candidates := []string{"ID", "Id", d.Name + "ID", d.Name + "Id"}
	for _, c := range candidates {
		for i, f := range d.Fields {
			if f.Name == c {
				return i
			}
		}
	}
	return -1
}

func storageName(t reflect.Type, name string) string {
	if n, ok := reflect.New(t).Interface().(Namer); ok {
		if s := n.StorageName(); s != "" {
			return s
		}
	}
	return inflect.Pluralize(name)
}

func indexMap(t reflect.Type, d *EntityDescriptor) map[string]string {
	if m, ok := reflect.New(t).Interface().(IndexMapper); ok {
		if im := m.IndexMap(); len(im) > 0 {
			out := make(map[string]string, len(im))
			for k, v := range im {
				out[k] = v
			}
			return out
		}
	}
	if d.Identity == nil {
		return map[string]string{"PK1": d.Name}
	}
	item := d.Name + "#{" + d.Identity.Name + "}"
	return map[string]string{
		"PK":  item,
		"SK":  item,
		"PK1": d.Name,
		"SK1": item,
	}
}

// TypeName returns the display name of t, without generic instantiation
// arguments.
func TypeName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	name := t.Name()
	if i := strings.IndexByte(name, '['); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		return t.String()
	}
	return name
}

// Field looks up a field by Go name or storage name.
func (d *EntityDescriptor) Field(name string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	for _, f := range d.Fields {
		if f.Column == name {
			return f, true
		}
	}
	return Field{}, false
}

// Columns returns the storage names of all fields in declaration order.
func (d *EntityDescriptor) Columns() []string {
	cols := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		cols[i] = f.Column
	}
	return cols
}

// RequireIdentity returns the identity field or a SchemaError naming op.
func (d *EntityDescriptor) RequireIdentity(op string) (Field, error) {
	if d.Identity == nil {
		return Field{}, storeerrors.NewSchemaError(d.Name, op, "entity has no identity field")
	}
	return *d.Identity, nil
}

// Value returns the field of v addressed by f. v must be a struct value of
// the described type.
func (d *EntityDescriptor) Value(v reflect.Value, f Field) reflect.Value {
	return v.FieldByIndex(f.Index)
}

// Indirect returns the struct value behind entity, which may be a struct or
// a pointer to one, and checks that it matches the described type.
func (d *EntityDescriptor) Indirect(entity any) (reflect.Value, error) {
	v := reflect.ValueOf(entity)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return reflect.Value{}, storeerrors.NewValidationError("", fmt.Sprintf("nil %s", d.Name))
		}
		v = v.Elem()
	}
	if v.Type() != d.Type {
		return reflect.Value{}, storeerrors.NewSchemaError(d.Name, "bind",
			fmt.Sprintf("value of type %s does not match", v.Type()))
	}
	return v, nil
}
