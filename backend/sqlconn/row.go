/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package sqlconn

import (
	"database/sql"
	"fmt"
	"reflect"

	"github.com/suparena/identitystore/connection"
	"github.com/suparena/identitystore/descriptor"
	storeerrors "github.com/suparena/identitystore/errors"
)

// row scans the current result row by column name. Columns with no matching
// field are discarded.
type row struct {
	rows *sql.Rows
	cols []string
	cmd  *connection.Command
}

func (r *row) Decode(dst any) error {
	d := r.cmd.Descriptor
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

	dests := make([]any, len(r.cols))
	for i, col := range r.cols {
		f, ok := d.Field(col)
		if !ok {
			dests[i] = new(any)
			continue
		}
		dests[i] = d.Value(v, f).Addr().Interface()
	}
	if err := r.rows.Scan(dests...); err != nil {
		return storeerrors.NewStorageError(d.Name, "decode", err)
	}
	return nil
}
