/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package dynamo

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	storeerrors "github.com/suparena/identitystore/errors"
)

// ErrTransactionsUnsupported is returned by Conn.Begin.
var ErrTransactionsUnsupported = errors.New("dynamo: transactions are not supported")

const backendName = "dynamodb"

var retryableCodes = map[string]bool{
	"ProvisionedThroughputExceededException": true,
	"ThrottlingException":                    true,
	"RequestLimitExceeded":                   true,
	"InternalServerError":                    true,
	"ServiceUnavailable":                     true,
}

// isRetryable reports whether err is a throttling or transient service
// error.
func isRetryable(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return retryableCodes[apiErr.ErrorCode()]
	}
	return false
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

// withRetry runs call until it succeeds, fails with a non-retryable error
// or runs out of attempts. Backoff grows linearly.
func withRetry[O any](ctx context.Context, s *Store, call func() (O, error)) (O, error) {
	var zero O
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		out, err := call()
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return zero, err
		}
		if attempt < s.maxRetries {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(time.Duration(attempt+1) * s.backoff):
			}
		}
	}
	return zero, fmt.Errorf("failed after %d retries: %w", s.maxRetries, lastErr)
}

// mapError classifies a client error.
func mapError(ctx context.Context, err error, entity, op string) error {
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return storeerrors.NewCancelledError(entity, op, ctx.Err())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return storeerrors.NewCancelledError(entity, op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return storeerrors.NewConnectionError(backendName, op, err)
	}
	return storeerrors.NewStorageError(entity, op, err)
}
