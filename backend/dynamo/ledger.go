/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package dynamo

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/suparena/identitystore/dialect/docdialect"
	storeerrors "github.com/suparena/identitystore/errors"
	"github.com/suparena/identitystore/migrate"
)

// LedgerPartition is the partition key of migration records. Sort keys
// are zero-padded versions, so they sort numerically.
const LedgerPartition = "MIGRATION"

// Ledger is a migrate.Target keeping migration records in the store's
// table. Document migrations are Func steps; scripts are rejected.
type Ledger struct {
	s *Store
}

// NewLedger creates a ledger in the table of s.
func NewLedger(s *Store) *Ledger {
	return &Ledger{s: s}
}

func versionKey(v int64) string {
	return fmt.Sprintf("%020d", v)
}

// EnsureLedger implements migrate.Target. The ledger lives in the
// entity table, which must exist.
func (l *Ledger) EnsureLedger(ctx context.Context) error {
	_, err := l.s.api.DescribeTable(ctx, &sdk.DescribeTableInput{TableName: aws.String(l.s.table)})
	if err != nil {
		return mapError(ctx, err, "", "ensure ledger")
	}
	return nil
}

// Version implements migrate.Target.
func (l *Ledger) Version(ctx context.Context) (int64, error) {
	out, err := withRetry(ctx, l.s, func() (*sdk.QueryOutput, error) {
		return l.s.api.Query(ctx, &sdk.QueryInput{
			TableName:                 aws.String(l.s.table),
			KeyConditionExpression:    aws.String("#pk = :pk"),
			ExpressionAttributeNames:  map[string]string{"#pk": docdialect.AttrPK},
			ExpressionAttributeValues: map[string]types.AttributeValue{":pk": &types.AttributeValueMemberS{Value: LedgerPartition}},
			ScanIndexForward:          aws.Bool(false),
			ConsistentRead:            aws.Bool(true),
			Limit:                     aws.Int32(1),
		})
	})
	if err != nil {
		return 0, mapError(ctx, err, "", "read ledger")
	}
	if len(out.Items) == 0 {
		return 0, nil
	}
	sk, ok := out.Items[0][docdialect.AttrSK].(*types.AttributeValueMemberS)
	if !ok {
		return 0, storeerrors.NewStorageError("", "read ledger", fmt.Errorf("migration record without sort key"))
	}
	v, err := strconv.ParseInt(sk.Value, 10, 64)
	if err != nil {
		return 0, storeerrors.NewStorageError("", "read ledger", err)
	}
	return v, nil
}

// Apply implements migrate.Target. The step runs before its record is
// written; a crash in between reruns the step.
func (l *Ledger) Apply(ctx context.Context, m migrate.Migration) error {
	if strings.TrimSpace(m.Script) != "" {
		return storeerrors.NewValidationError("script", "document migrations must be functions")
	}
	if m.Func != nil {
		if err := m.Func(ctx); err != nil {
			return err
		}
	}
	in := &sdk.PutItemInput{
		TableName: aws.String(l.s.table),
		Item: map[string]types.AttributeValue{
			docdialect.AttrPK:         &types.AttributeValueMemberS{Value: LedgerPartition},
			docdialect.AttrSK:         &types.AttributeValueMemberS{Value: versionKey(m.Version)},
			docdialect.AttrEntityType: &types.AttributeValueMemberS{Value: LedgerPartition},
			"Version":                 &types.AttributeValueMemberN{Value: strconv.FormatInt(m.Version, 10)},
			"Name":                    &types.AttributeValueMemberS{Value: m.Name},
			"AppliedAt":               &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
		},
		ConditionExpression:      aws.String("attribute_not_exists(#pk)"),
		ExpressionAttributeNames: map[string]string{"#pk": docdialect.AttrPK},
	}
	_, err := withRetry(ctx, l.s, func() (*sdk.PutItemOutput, error) { return l.s.api.PutItem(ctx, in) })
	if isConditionFailed(err) {
		return storeerrors.NewAlreadyExistsError("migration", m.String())
	}
	return err
}

var (
	_ migrate.Target          = (*Ledger)(nil)
	_ migrate.DatabaseCreator = (*Store)(nil)
)
