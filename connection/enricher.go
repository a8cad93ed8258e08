/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package connection

import (
	"context"
	"reflect"

	"github.com/suparena/identitystore/descriptor"
	storeerrors "github.com/suparena/identitystore/errors"
	"github.com/suparena/identitystore/registry"
)

// Enricher runs on every command creation, before any I/O.
type Enricher interface {
	Enrich(ctx context.Context, caps Capabilities, t reflect.Type, cmd *Command) error
}

// EnricherFunc adapts a function to Enricher.
type EnricherFunc func(ctx context.Context, caps Capabilities, t reflect.Type, cmd *Command) error

// Enrich implements Enricher.
func (f EnricherFunc) Enrich(ctx context.Context, caps Capabilities, t reflect.Type, cmd *Command) error {
	return f(ctx, caps, t, cmd)
}

// RegistryEnricher makes sure the entity type is registered and, for
// connections that route by metadata, stamps the routing fields.
type RegistryEnricher struct {
	Registry *registry.TypeRegistry
	// Collection overrides the plan's collection when set.
	Collection string
}

// Enrich implements Enricher. Registration failures other than
// cancellation are reported as SchemaError.
func (e *RegistryEnricher) Enrich(ctx context.Context, caps Capabilities, t reflect.Type, cmd *Command) error {
	reg, err := e.Registry.RegisterIfNotRegistered(ctx, t)
	if err != nil {
		if storeerrors.IsCancelled(err) || storeerrors.IsSchemaError(err) {
			return err
		}
		return storeerrors.NewSchemaError(typeName(t), "enrich", err.Error())
	}
	d := reg.Descriptor
	cmd.Descriptor = d
	if !caps.RoutingMetadata {
		return nil
	}

	md := Metadata{
		EntityType:  d.Name,
		RuntimeType: d.Type,
		StorageName: reg.StorageName,
		Collection:  cmd.Plan.Routing.Collection,
		Stamped:     true,
	}
	if d.Identity != nil {
		md.IdentityField = d.Identity.Column
	}
	if e.Collection != "" {
		md.Collection = e.Collection
	}
	if md.Collection == "" {
		md.Collection = reg.StorageName
	}
	cmd.Metadata = md
	return nil
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return descriptor.TypeName(t)
}
