/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"

	storeerrors "github.com/suparena/identitystore/errors"
)

// API is the subset of the DynamoDB client the backend calls.
type API interface {
	PutItem(ctx context.Context, in *sdk.PutItemInput, optFns ...func(*sdk.Options)) (*sdk.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *sdk.DeleteItemInput, optFns ...func(*sdk.Options)) (*sdk.DeleteItemOutput, error)
	UpdateItem(ctx context.Context, in *sdk.UpdateItemInput, optFns ...func(*sdk.Options)) (*sdk.UpdateItemOutput, error)
	Query(ctx context.Context, in *sdk.QueryInput, optFns ...func(*sdk.Options)) (*sdk.QueryOutput, error)
	DescribeTable(ctx context.Context, in *sdk.DescribeTableInput, optFns ...func(*sdk.Options)) (*sdk.DescribeTableOutput, error)
	CreateTable(ctx context.Context, in *sdk.CreateTableInput, optFns ...func(*sdk.Options)) (*sdk.CreateTableOutput, error)
}

// ClientOptions selects the account and endpoint of a client. Empty keys
// fall back to the default credential chain.
type ClientOptions struct {
	Region       string
	AccessKey    string
	SecretKey    string
	SessionToken string
	// Endpoint overrides the service endpoint, e.g. for DynamoDB Local.
	Endpoint string
}

// NewClient creates a DynamoDB client.
func NewClient(ctx context.Context, o ClientOptions) (*sdk.Client, error) {
	if o.Region == "" {
		return nil, storeerrors.NewValidationError("region", "DynamoDB region is required")
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(o.Region)}
	if o.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(o.AccessKey, o.SecretKey, o.SessionToken),
		))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, storeerrors.NewConnectionError("dynamodb", "configure", fmt.Errorf("load AWS configuration: %w", err))
	}
	return sdk.NewFromConfig(cfg, func(opt *sdk.Options) {
		if o.Endpoint != "" {
			opt.BaseEndpoint = aws.String(o.Endpoint)
		}
	}), nil
}

var _ API = (*sdk.Client)(nil)
