/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package dynamo

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type item = map[string]types.AttributeValue

// fakeAPI is an in-memory single table. It understands the expressions the
// backend emits: conjunctions of equality and attribute_(not_)exists, and
// SET/REMOVE updates.
type fakeAPI struct {
	mu       sync.Mutex
	items    map[string]item
	tables   map[string]types.TableStatus
	throttle int
	queries  []*sdk.QueryInput
	creates  int
	// describeCalls counts DescribeTable calls; pending marks the number
	// of calls a fresh table stays CREATING.
	describeCalls int
	pending       int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{items: map[string]item{}, tables: map[string]types.TableStatus{}}
}

func sval(av types.AttributeValue) string {
	if s, ok := av.(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func keyOfItem(it item) string { return sval(it["PK"]) + "|" + sval(it["SK"]) }

func copyItem(it item) item {
	out := make(item, len(it))
	for k, v := range it {
		out[k] = v
	}
	return out
}

func (f *fakeAPI) throttled() error {
	if f.throttle > 0 {
		f.throttle--
		return &types.ProvisionedThroughputExceededException{Message: aws.String("slow down")}
	}
	return nil
}

func (f *fakeAPI) eval(expr string, it item, names map[string]string, values map[string]types.AttributeValue) (bool, error) {
	if expr == "" {
		return true, nil
	}
	for _, clause := range strings.Split(expr, " AND ") {
		clause = strings.TrimSpace(clause)
		switch {
		case strings.HasPrefix(clause, "attribute_not_exists("):
			n := strings.TrimSuffix(strings.TrimPrefix(clause, "attribute_not_exists("), ")")
			if _, ok := it[names[n]]; ok {
				return false, nil
			}
		case strings.HasPrefix(clause, "attribute_exists("):
			n := strings.TrimSuffix(strings.TrimPrefix(clause, "attribute_exists("), ")")
			if _, ok := it[names[n]]; !ok {
				return false, nil
			}
		default:
			parts := strings.Split(clause, " = ")
			if len(parts) != 2 {
				return false, fmt.Errorf("unsupported clause %q", clause)
			}
			attr, ok := names[parts[0]]
			if !ok {
				return false, fmt.Errorf("unbound name %s", parts[0])
			}
			want, ok := values[parts[1]]
			if !ok {
				return false, fmt.Errorf("unbound value %s", parts[1])
			}
			if !reflect.DeepEqual(it[attr], want) {
				return false, nil
			}
		}
	}
	return true, nil
}

func (f *fakeAPI) PutItem(_ context.Context, in *sdk.PutItemInput, _ ...func(*sdk.Options)) (*sdk.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.throttled(); err != nil {
		return nil, err
	}
	k := keyOfItem(in.Item)
	existing := f.items[k]
	if existing == nil {
		existing = item{}
	}
	ok, err := f.eval(aws.ToString(in.ConditionExpression), existing, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("exists")}
	}
	f.items[k] = copyItem(in.Item)
	return &sdk.PutItemOutput{}, nil
}

func (f *fakeAPI) DeleteItem(_ context.Context, in *sdk.DeleteItemInput, _ ...func(*sdk.Options)) (*sdk.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.throttled(); err != nil {
		return nil, err
	}
	k := keyOfItem(in.Key)
	existing, found := f.items[k]
	if !found {
		existing = item{}
	}
	ok, err := f.eval(aws.ToString(in.ConditionExpression), existing, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("condition")}
	}
	delete(f.items, k)
	if !found {
		return &sdk.DeleteItemOutput{}, nil
	}
	return &sdk.DeleteItemOutput{Attributes: existing}, nil
}

func (f *fakeAPI) UpdateItem(_ context.Context, in *sdk.UpdateItemInput, _ ...func(*sdk.Options)) (*sdk.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.throttled(); err != nil {
		return nil, err
	}
	k := keyOfItem(in.Key)
	existing, found := f.items[k]
	if !found {
		existing = copyItem(in.Key)
	}
	ok, err := f.eval(aws.ToString(in.ConditionExpression), existing, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("condition")}
	}
	updated := copyItem(existing)
	expr := aws.ToString(in.UpdateExpression)
	var set, remove string
	if i := strings.Index(expr, "REMOVE "); i >= 0 {
		set, remove = expr[:i], expr[i+len("REMOVE "):]
	} else {
		set = expr
	}
	set = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(set), "SET "))
	if set != "" {
		for _, a := range strings.Split(set, ", ") {
			parts := strings.Split(a, " = ")
			updated[in.ExpressionAttributeNames[parts[0]]] = in.ExpressionAttributeValues[parts[1]]
		}
	}
	if remove != "" {
		for _, n := range strings.Split(remove, ", ") {
			delete(updated, in.ExpressionAttributeNames[strings.TrimSpace(n)])
		}
	}
	f.items[k] = updated
	return &sdk.UpdateItemOutput{}, nil
}

func (f *fakeAPI) Query(_ context.Context, in *sdk.QueryInput, _ ...func(*sdk.Options)) (*sdk.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, in)
	if err := f.throttled(); err != nil {
		return nil, err
	}

	var matched []item
	for _, it := range f.items {
		if aws.ToString(in.IndexName) == "GSI1" {
			if _, ok := it["PK1"]; !ok {
				continue
			}
		}
		ok, err := f.eval(aws.ToString(in.KeyConditionExpression), it, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, it)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return keyOfItem(matched[i]) < keyOfItem(matched[j]) })
	if in.ScanIndexForward != nil && !*in.ScanIndexForward {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}

	start := 0
	if len(in.ExclusiveStartKey) > 0 {
		after := keyOfItem(in.ExclusiveStartKey)
		for i, it := range matched {
			if keyOfItem(it) == after {
				start = i + 1
				break
			}
		}
	}
	matched = matched[start:]

	out := &sdk.QueryOutput{}
	limit := len(matched)
	if in.Limit != nil && int(*in.Limit) < limit {
		limit = int(*in.Limit)
	}
	for _, it := range matched[:limit] {
		ok, err := f.eval(aws.ToString(in.FilterExpression), it, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		if ok {
			out.Items = append(out.Items, copyItem(it))
		}
	}
	if limit < len(matched) {
		out.LastEvaluatedKey = item{"PK": matched[limit-1]["PK"], "SK": matched[limit-1]["SK"]}
	}
	return out, nil
}

func (f *fakeAPI) DescribeTable(_ context.Context, in *sdk.DescribeTableInput, _ ...func(*sdk.Options)) (*sdk.DescribeTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.describeCalls++
	status, ok := f.tables[aws.ToString(in.TableName)]
	if !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("no table")}
	}
	if status == types.TableStatusCreating {
		if f.pending > 0 {
			f.pending--
		} else {
			status = types.TableStatusActive
			f.tables[aws.ToString(in.TableName)] = status
		}
	}
	return &sdk.DescribeTableOutput{Table: &types.TableDescription{TableName: in.TableName, TableStatus: status}}, nil
}

func (f *fakeAPI) CreateTable(_ context.Context, in *sdk.CreateTableInput, _ ...func(*sdk.Options)) (*sdk.CreateTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(in.TableName)
	if _, ok := f.tables[name]; ok {
		return nil, &types.ResourceInUseException{Message: aws.String("exists")}
	}
	f.creates++
	f.tables[name] = types.TableStatusCreating
	return &sdk.CreateTableOutput{}, nil
}

var _ API = (*fakeAPI)(nil)
