/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/suparena/identitystore/dialect/docdialect"
	storeerrors "github.com/suparena/identitystore/errors"
)

// Table creation waits up to tableWaitTimeout, polling every
// tablePollInterval.
var (
	tableWaitTimeout  = 2 * time.Minute
	tablePollInterval = time.Second
)

// EnsureDatabaseExists implements migrate.DatabaseCreator.
func (s *Store) EnsureDatabaseExists(ctx context.Context) error {
	return EnsureTable(ctx, s.api, s.table)
}

// EnsureTable creates the single table with its GSI1 type index unless it
// exists, then waits for it to become active.
func EnsureTable(ctx context.Context, api API, table string) error {
	out, err := api.DescribeTable(ctx, &sdk.DescribeTableInput{TableName: aws.String(table)})
	if err == nil {
		if out.Table != nil && out.Table.TableStatus == types.TableStatusActive {
			return nil
		}
		return waitActive(ctx, api, table)
	}
	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return tableError(ctx, err, "describe table")
	}

	_, err = api.CreateTable(ctx, tableDefinition(table))
	var inUse *types.ResourceInUseException
	if err != nil && !errors.As(err, &inUse) {
		return tableError(ctx, err, "create table")
	}
	return waitActive(ctx, api, table)
}

func tableDefinition(table string) *sdk.CreateTableInput {
	attr := func(name string) types.AttributeDefinition {
		return types.AttributeDefinition{AttributeName: aws.String(name), AttributeType: types.ScalarAttributeTypeS}
	}
	key := func(hash, rng string) []types.KeySchemaElement {
		return []types.KeySchemaElement{
			{AttributeName: aws.String(hash), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(rng), KeyType: types.KeyTypeRange},
		}
	}
	return &sdk.CreateTableInput{
		TableName: aws.String(table),
		AttributeDefinitions: []types.AttributeDefinition{
			attr(docdialect.AttrPK), attr(docdialect.AttrSK), attr(docdialect.AttrPK1), attr(docdialect.AttrSK1),
		},
		KeySchema: key(docdialect.AttrPK, docdialect.AttrSK),
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{{
			IndexName:  aws.String(docdialect.TypeIndex),
			KeySchema:  key(docdialect.AttrPK1, docdialect.AttrSK1),
			Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
		}},
		BillingMode: types.BillingModePayPerRequest,
	}
}

func waitActive(ctx context.Context, api API, table string) error {
	ctx, cancel := context.WithTimeout(ctx, tableWaitTimeout)
	defer cancel()
	ticker := time.NewTicker(tablePollInterval)
	defer ticker.Stop()
	for {
		out, err := api.DescribeTable(ctx, &sdk.DescribeTableInput{TableName: aws.String(table)})
		var notFound *types.ResourceNotFoundException
		switch {
		case err != nil && !errors.As(err, &notFound):
			return tableError(ctx, err, "describe table")
		case err == nil && out.Table != nil && out.Table.TableStatus == types.TableStatusActive:
			return nil
		}
		select {
		case <-ctx.Done():
			return tableError(ctx, fmt.Errorf("table %s not active: %w", table, ctx.Err()), "wait table")
		case <-ticker.C:
		}
	}
}

func tableError(ctx context.Context, err error, op string) error {
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return storeerrors.NewCancelledError("", op, err)
	}
	return storeerrors.NewConnectionError(backendName, op, err)
}
