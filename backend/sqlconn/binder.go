/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package sqlconn

import (
	"context"

	"github.com/suparena/identitystore/descriptor"
	storeerrors "github.com/suparena/identitystore/errors"
	"github.com/suparena/identitystore/registry"
)

// TableBinder returns a registry binder that checks the entity's table
// exists and exposes every described column.
func TableBinder(db *DB) registry.Binder {
	return func(ctx context.Context, d *descriptor.EntityDescriptor) error {
		q := db.flavor.Quote
		cols := ""
		for i, c := range d.Columns() {
			if i > 0 {
				cols += ", "
			}
			cols += q(c)
		}
		rows, err := db.db.QueryContext(ctx, "SELECT "+cols+" FROM "+q(d.StorageName)+" WHERE 1 = 0")
		if err != nil {
			if ctx.Err() != nil {
				return storeerrors.NewCancelledError(d.Name, "bind", ctx.Err())
			}
			return storeerrors.NewSchemaError(d.Name, "bind", "table "+d.StorageName+": "+err.Error())
		}
		return rows.Close()
	}
}
