/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package dynamo

import (
	"database/sql"
	"fmt"
	"reflect"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/suparena/identitystore/descriptor"
	storeerrors "github.com/suparena/identitystore/errors"
)

// row decodes one item by attribute name. Key and discriminator attributes
// have no field and are ignored.
type row struct {
	item map[string]types.AttributeValue
	desc *descriptor.EntityDescriptor
}

func (r *row) Decode(dst any) error {
	d := r.desc
	if d == nil {
		var err error
		if d, err = descriptor.Describe(reflect.TypeOf(dst)); err != nil {
			return err
		}
	}
	v, err := d.Indirect(dst)
	if err != nil {
		return err
	}
	if !v.CanAddr() {
		return storeerrors.NewValidationError("", fmt.Sprintf("decode %s needs a pointer", d.Name))
	}
	for _, f := range d.Fields {
		av, ok := r.item[f.Column]
		if !ok {
			continue
		}
		fv := d.Value(v, f)
		if err := decodeField(av, fv); err != nil {
			return storeerrors.NewStorageError(d.Name, "decode", fmt.Errorf("%s: %w", f.Column, err))
		}
	}
	return nil
}

func decodeField(av types.AttributeValue, fv reflect.Value) error {
	if isNull(av) {
		fv.SetZero()
		return nil
	}
	if scanner, ok := fv.Addr().Interface().(sql.Scanner); ok {
		var raw any
		if err := attributevalue.Unmarshal(av, &raw); err != nil {
			return err
		}
		return scanner.Scan(raw)
	}
	return attributevalue.Unmarshal(av, fv.Addr().Interface())
}
