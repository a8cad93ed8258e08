/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package dynamo

import (
	"database/sql/driver"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/suparena/identitystore/dialect"
	"github.com/suparena/identitystore/dialect/docdialect"
)

var (
	namePattern  = regexp.MustCompile(`#[A-Za-z0-9_]+`)
	valuePattern = regexp.MustCompile(`:[A-Za-z0-9_]+`)
)

// expression collects the attribute names and values referenced by exprs.
// DynamoDB rejects unused placeholders, so nothing else is passed along.
// extra supplies names the plan does not carry.
func expression(plan dialect.StatementPlan, extra map[string]string, exprs ...string) (map[string]string, map[string]types.AttributeValue, error) {
	var names map[string]string
	var values map[string]types.AttributeValue
	for _, expr := range exprs {
		for _, n := range namePattern.FindAllString(expr, -1) {
			attr, ok := plan.Names[n]
			if !ok {
				attr, ok = extra[n]
			}
			if !ok {
				return nil, nil, fmt.Errorf("expression name %s is not bound", n)
			}
			if names == nil {
				names = make(map[string]string)
			}
			names[n] = attr
		}
		for _, v := range valuePattern.FindAllString(expr, -1) {
			raw, ok := plan.Params.Get(strings.TrimPrefix(v, ":"))
			if !ok {
				return nil, nil, fmt.Errorf("expression value %s is not bound", v)
			}
			av, err := marshal(raw)
			if err != nil {
				return nil, nil, err
			}
			if values == nil {
				values = make(map[string]types.AttributeValue)
			}
			values[v] = av
		}
	}
	return names, values, nil
}

// marshal converts a bound value. driver.Valuer values are unwrapped first.
func marshal(v any) (types.AttributeValue, error) {
	if isNil(v) {
		return &types.AttributeValueMemberNULL{Value: true}, nil
	}
	if valuer, ok := v.(driver.Valuer); ok {
		dv, err := valuer.Value()
		if err != nil {
			return nil, err
		}
		if dv == nil {
			return &types.AttributeValueMemberNULL{Value: true}, nil
		}
		v = dv
	}
	return attributevalue.Marshal(v)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func isNull(av types.AttributeValue) bool {
	_, ok := av.(*types.AttributeValueMemberNULL)
	return ok
}

// itemOf builds the item written by an insert plan. Null attributes are
// left out so that attribute_not_exists matches them.
func itemOf(plan dialect.StatementPlan) (map[string]types.AttributeValue, error) {
	item := make(map[string]types.AttributeValue, len(plan.Params))
	for _, p := range plan.Params {
		attr, ok := plan.Names["#"+p.Name]
		if !ok {
			return nil, fmt.Errorf("parameter %s has no attribute", p.Name)
		}
		av, err := marshal(p.Value)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", attr, err)
		}
		if isNull(av) {
			continue
		}
		item[attr] = av
	}
	return item, nil
}

// keyOf returns the primary key bound by a keyed plan.
func keyOf(plan dialect.StatementPlan) (map[string]types.AttributeValue, error) {
	pk, okPK := plan.Params.Get(docdialect.ParamPK)
	sk, okSK := plan.Params.Get(docdialect.ParamSK)
	if !okPK || !okSK {
		return nil, fmt.Errorf("plan binds no primary key")
	}
	return map[string]types.AttributeValue{
		docdialect.AttrPK: &types.AttributeValueMemberS{Value: fmt.Sprint(pk)},
		docdialect.AttrSK: &types.AttributeValueMemberS{Value: fmt.Sprint(sk)},
	}, nil
}

// primaryKey extracts PK and SK from a returned item.
func primaryKey(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		docdialect.AttrPK: item[docdialect.AttrPK],
		docdialect.AttrSK: item[docdialect.AttrSK],
	}
}

func keyString(key map[string]types.AttributeValue) string {
	var pk string
	if s, ok := key[docdialect.AttrPK].(*types.AttributeValueMemberS); ok {
		pk = s.Value
	}
	return pk
}
