/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package dynamo

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"golang.org/x/sync/errgroup"

	"github.com/suparena/identitystore/connection"
	"github.com/suparena/identitystore/descriptor"
	"github.com/suparena/identitystore/dialect"
	"github.com/suparena/identitystore/dialect/docdialect"
	storeerrors "github.com/suparena/identitystore/errors"
)

// Store is a single-table DynamoDB backend. It implements
// connection.Factory; every connection it opens shares the client.
type Store struct {
	api         API
	table       string
	pageSize    int32
	maxRetries  int
	backoff     time.Duration
	concurrency int
}

// Option configures a Store.
type Option func(*Store)

// WithPageSize sets the number of items read per Query page.
func WithPageSize(n int32) Option {
	return func(s *Store) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithRetry sets the retry attempts and base backoff for throttled calls.
func WithRetry(max int, backoff time.Duration) Option {
	return func(s *Store) {
		s.maxRetries = max
		s.backoff = backoff
	}
}

// WithConcurrency bounds the parallel item writes of type-scoped deletes
// and updates.
func WithConcurrency(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// New creates a Store over table.
func New(api API, table string, opts ...Option) *Store {
	s := &Store{
		api:         api,
		table:       table,
		pageSize:    100,
		maxRetries:  3,
		backoff:     time.Second,
		concurrency: 8,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// API returns the client.
func (s *Store) API() API { return s.api }

// Table returns the table name.
func (s *Store) Table() string { return s.table }

// Open implements connection.Factory.
func (s *Store) Open(ctx context.Context) (connection.Conn, error) {
	if err := storeerrors.FromContext(ctx, "", "open"); err != nil {
		return nil, err
	}
	return &Conn{s: s}, nil
}

// Conn routes commands by their stamped metadata. It accepts concurrent
// commands.
type Conn struct {
	s *Store
}

// Capabilities implements connection.Conn.
func (c *Conn) Capabilities() connection.Capabilities {
	return connection.Capabilities{RoutingMetadata: true, ConcurrentCommands: true}
}

// Begin implements connection.Conn.
func (c *Conn) Begin(context.Context) (connection.Tx, error) {
	return nil, ErrTransactionsUnsupported
}

// Close implements connection.Conn. The shared client stays open.
func (c *Conn) Close() error { return nil }

func routing(cmd *connection.Command) (connection.Metadata, error) {
	md := cmd.Metadata
	if !md.Stamped {
		return md, storeerrors.NewSchemaError(cmd.Plan.Routing.EntityType, string(cmd.Plan.Op),
			"command carries no routing metadata")
	}
	if md.Collection == "" {
		return md, storeerrors.NewSchemaError(md.EntityType, string(cmd.Plan.Op), "command names no collection")
	}
	return md, nil
}

// Exec implements connection.Conn.
func (c *Conn) Exec(ctx context.Context, cmd *connection.Command) (connection.Result, error) {
	md, err := routing(cmd)
	if err != nil {
		return connection.Result{}, err
	}
	plan := cmd.Plan
	switch {
	case plan.Op == dialect.OpInsert:
		return c.put(ctx, md, cmd)
	case plan.Op == dialect.OpDelete && plan.Routing.Keyed:
		return c.delete(ctx, md, plan, nil)
	case plan.Op == dialect.OpUpdate && plan.Routing.Keyed:
		return c.update(ctx, md, plan, nil)
	case plan.Op == dialect.OpDelete, plan.Op == dialect.OpUpdate:
		return c.fanOut(ctx, md, plan)
	}
	return connection.Result{}, storeerrors.NewValidationError("", "cannot execute "+string(plan.Op)+" plan")
}

func (c *Conn) put(ctx context.Context, md connection.Metadata, cmd *connection.Command) (connection.Result, error) {
	plan := cmd.Plan
	item, err := itemOf(plan)
	if err != nil {
		return connection.Result{}, storeerrors.NewStorageError(md.EntityType, "insert", err)
	}
	names, values, err := expression(plan, nil, plan.Condition)
	if err != nil {
		return connection.Result{}, storeerrors.NewStorageError(md.EntityType, "insert", err)
	}
	in := &sdk.PutItemInput{
		TableName:                 aws.String(md.Collection),
		Item:                      item,
		ConditionExpression:       aws.String(plan.Condition),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	}
	_, err = withRetry(ctx, c.s, func() (*sdk.PutItemOutput, error) { return c.s.api.PutItem(ctx, in) })
	if isConditionFailed(err) {
		return connection.Result{}, storeerrors.NewAlreadyExistsError(md.EntityType, keyString(item))
	}
	if err != nil {
		return connection.Result{}, mapError(ctx, err, md.EntityType, "insert")
	}

	res := connection.Result{RowsAffected: 1}
	if d := cmd.Descriptor; d != nil && d.Identity != nil {
		res.LastInsertID, _ = plan.Params.Get(d.Identity.Name)
	}
	return res, nil
}

// delete removes one item. A nil key deletes the item the plan addresses.
func (c *Conn) delete(ctx context.Context, md connection.Metadata, plan dialect.StatementPlan, key map[string]types.AttributeValue) (connection.Result, error) {
	var err error
	if key == nil {
		if key, err = keyOf(plan); err != nil {
			return connection.Result{}, storeerrors.NewStorageError(md.EntityType, "delete", err)
		}
	}
	in := &sdk.DeleteItemInput{
		TableName:    aws.String(md.Collection),
		Key:          key,
		ReturnValues: types.ReturnValueAllOld,
	}
	if plan.Routing.Keyed && plan.Condition != "" {
		names, values, err := expression(plan, nil, plan.Condition)
		if err != nil {
			return connection.Result{}, storeerrors.NewStorageError(md.EntityType, "delete", err)
		}
		in.ConditionExpression = aws.String(plan.Condition)
		in.ExpressionAttributeNames = names
		in.ExpressionAttributeValues = values
	}
	out, err := withRetry(ctx, c.s, func() (*sdk.DeleteItemOutput, error) { return c.s.api.DeleteItem(ctx, in) })
	if isConditionFailed(err) {
		return connection.Result{}, nil
	}
	if err != nil {
		return connection.Result{}, mapError(ctx, err, md.EntityType, "delete")
	}
	if len(out.Attributes) == 0 {
		return connection.Result{}, nil
	}
	return connection.Result{RowsAffected: 1}, nil
}

var keyNames = map[string]string{"#pk": docdialect.AttrPK, "#sk": docdialect.AttrSK}

// update patches one existing item. A nil key updates the item the plan
// addresses; the residual condition then applies too.
func (c *Conn) update(ctx context.Context, md connection.Metadata, plan dialect.StatementPlan, key map[string]types.AttributeValue) (connection.Result, error) {
	var err error
	cond := "attribute_exists(#pk)"
	if key == nil {
		if key, err = keyOf(plan); err != nil {
			return connection.Result{}, storeerrors.NewStorageError(md.EntityType, "update", err)
		}
		if plan.Condition != "" {
			cond += " AND " + plan.Condition
		}
	}
	names, values, err := expression(plan, keyNames, plan.Update, cond)
	if err != nil {
		return connection.Result{}, storeerrors.NewStorageError(md.EntityType, "update", err)
	}
	in := &sdk.UpdateItemInput{
		TableName:                 aws.String(md.Collection),
		Key:                       key,
		UpdateExpression:          aws.String(plan.Update),
		ConditionExpression:       aws.String(cond),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	}
	_, err = withRetry(ctx, c.s, func() (*sdk.UpdateItemOutput, error) { return c.s.api.UpdateItem(ctx, in) })
	if isConditionFailed(err) {
		return connection.Result{}, nil
	}
	if err != nil {
		return connection.Result{}, mapError(ctx, err, md.EntityType, "update")
	}
	return connection.Result{RowsAffected: 1}, nil
}

// fanOut applies a type-scoped delete or update to every matching item,
// a bounded number at a time. The first failure cancels the rest.
func (c *Conn) fanOut(ctx context.Context, md connection.Metadata, plan dialect.StatementPlan) (connection.Result, error) {
	op := string(plan.Op)
	var keys []map[string]types.AttributeValue
	err := c.scan(ctx, md, plan, "#pk, #sk", keyNames, func(item map[string]types.AttributeValue) error {
		keys = append(keys, primaryKey(item))
		return nil
	})
	if err != nil {
		return connection.Result{}, err
	}

	var affected atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.s.concurrency)
	for _, key := range keys {
		g.Go(func() error {
			var res connection.Result
			var err error
			if plan.Op == dialect.OpDelete {
				res, err = c.delete(gctx, md, plan, key)
			} else {
				res, err = c.update(gctx, md, plan, key)
			}
			affected.Add(res.RowsAffected)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return connection.Result{}, storeerrors.NewCancelledError(md.EntityType, op, ctx.Err())
		}
		return connection.Result{RowsAffected: affected.Load()}, err
	}
	return connection.Result{RowsAffected: affected.Load()}, nil
}

// Query implements connection.Conn.
func (c *Conn) Query(ctx context.Context, cmd *connection.Command, fn func(connection.Row) error) error {
	md, err := routing(cmd)
	if err != nil {
		return err
	}
	if cmd.Plan.Op != dialect.OpSelect {
		return storeerrors.NewValidationError("", "cannot query "+string(cmd.Plan.Op)+" plan")
	}
	d := cmd.Descriptor
	if d == nil && md.RuntimeType != nil {
		if d, err = descriptor.Describe(md.RuntimeType); err != nil {
			return err
		}
	}
	var projection string
	if d != nil {
		fields := make([]string, len(d.Fields))
		for i, f := range d.Fields {
			fields[i] = "#" + f.Name
		}
		projection = strings.Join(fields, ", ")
	}
	return c.scan(ctx, md, cmd.Plan, projection, nil, func(item map[string]types.AttributeValue) error {
		return fn(&row{item: item, desc: d})
	})
}

// scan pages through the items addressed by plan, applying its offset and
// limit, and passes each to fn.
func (c *Conn) scan(ctx context.Context, md connection.Metadata, plan dialect.StatementPlan, projection string, extra map[string]string, fn func(map[string]types.AttributeValue) error) error {
	op := string(plan.Op)
	exprs := []string{plan.Text}
	in := &sdk.QueryInput{
		TableName:              aws.String(md.Collection),
		KeyConditionExpression: aws.String(plan.Text),
		Limit:                  aws.Int32(c.s.pageSize),
	}
	if plan.Routing.Index != "" {
		in.IndexName = aws.String(plan.Routing.Index)
	}
	if plan.Condition != "" {
		in.FilterExpression = aws.String(plan.Condition)
		exprs = append(exprs, plan.Condition)
	}
	if projection != "" {
		in.ProjectionExpression = aws.String(projection)
		exprs = append(exprs, projection)
	}
	names, values, err := expression(plan, extra, exprs...)
	if err != nil {
		return storeerrors.NewStorageError(md.EntityType, op, err)
	}
	in.ExpressionAttributeNames = names
	in.ExpressionAttributeValues = values

	skip, limit, seen := plan.Page.Offset, plan.Page.Limit, 0
	for {
		if err := storeerrors.FromContext(ctx, md.EntityType, op); err != nil {
			return err
		}
		out, err := withRetry(ctx, c.s, func() (*sdk.QueryOutput, error) { return c.s.api.Query(ctx, in) })
		if err != nil {
			return mapError(ctx, err, md.EntityType, op)
		}
		for _, item := range out.Items {
			if skip > 0 {
				skip--
				continue
			}
			if err := fn(item); err != nil {
				return err
			}
			seen++
			if limit > 0 && seen >= limit {
				return nil
			}
		}
		if len(out.LastEvaluatedKey) == 0 {
			return nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

var (
	_ connection.Factory = (*Store)(nil)
	_ connection.Conn    = (*Conn)(nil)
)
