/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package datastore

import (
	"context"
	"fmt"
	"time"

	storeerrors "github.com/suparena/identitystore/errors"
	"github.com/suparena/identitystore/statement"
)

// StreamResult represents a single item in a stream with metadata
type StreamResult[T any] struct {
	Item  T          // The decoded entity
	Error error      // Set on the final result when the stream failed
	Meta  StreamMeta // Metadata about this item
}

// StreamMeta contains metadata about a streamed item
type StreamMeta struct {
	Index      int64     // Item index in stream (0-based)
	PageNumber int       // Page number (1-based)
	Timestamp  time.Time // When item was retrieved
}

// StreamOptions configures streaming behavior
type StreamOptions struct {
	BufferSize      int                  // Channel buffer size (default: 100)
	MaxRetries      int                  // Retry attempts for transient errors (default: 3)
	RetryBackoff    time.Duration        // Backoff between retries (default: 1s)
	PageSize        int                  // Items per page (default: 100)
	ProgressHandler func(StreamProgress) // Optional progress callback
	ErrorHandler    func(error) bool     // Return true to skip the failed page, false to stop
}

// StreamProgress tracks streaming progress
type StreamProgress struct {
	ItemsProcessed int64     // Total items processed
	PagesProcessed int       // Total pages processed
	Errors         []error   // Accumulated non-fatal errors
	StartTime      time.Time // When streaming started
	CurrentRate    float64   // Items per second
}

// StreamOption is a functional option for configuring streaming
type StreamOption func(*StreamOptions)

// DefaultStreamOptions returns default streaming options
func DefaultStreamOptions() StreamOptions {
	return StreamOptions{
		BufferSize:   100,
		MaxRetries:   3,
		RetryBackoff: time.Second,
		PageSize:     100,
	}
}

// WithBufferSize sets the channel buffer size
func WithBufferSize(size int) StreamOption {
	return func(opts *StreamOptions) {
		opts.BufferSize = size
	}
}

// WithMaxRetries sets the maximum retry attempts
func WithMaxRetries(retries int) StreamOption {
	return func(opts *StreamOptions) {
		opts.MaxRetries = retries
	}
}

// WithRetryBackoff sets the retry backoff duration
func WithRetryBackoff(backoff time.Duration) StreamOption {
	return func(opts *StreamOptions) {
		opts.RetryBackoff = backoff
	}
}

// WithPageSize sets the number of entities read per page
func WithPageSize(size int) StreamOption {
	return func(opts *StreamOptions) {
		opts.PageSize = size
	}
}

// WithProgressHandler sets a progress callback
func WithProgressHandler(handler func(StreamProgress)) StreamOption {
	return func(opts *StreamOptions) {
		opts.ProgressHandler = handler
	}
}

// WithErrorHandler sets an error handler that can decide whether to continue
func WithErrorHandler(handler func(error) bool) StreamOption {
	return func(opts *StreamOptions) {
		opts.ErrorHandler = handler
	}
}

// Stream pages through the entities matching the non-zero members of
// filter and sends them on the returned channel, which is closed when the
// stream ends. A page that keeps failing ends the stream with one error
// result unless the error handler chooses to skip it. A cancelled ctx ends
// the stream with one Cancelled result, which may replace items still
// buffered. Pages are read by offset, so writes made while streaming may
// shift items between pages.
func Stream[T any](ctx context.Context, repo Repository[T], filter *T, opts ...StreamOption) <-chan StreamResult[T] {
	options := DefaultStreamOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.PageSize <= 0 {
		options.PageSize = DefaultStreamOptions().PageSize
	}
	if options.BufferSize < 0 {
		options.BufferSize = 0
	}

	// One slot is kept for the final result.
	resultCh := make(chan StreamResult[T], options.BufferSize+1)
	go streamWorker(ctx, repo, filter, options, resultCh)
	return resultCh
}

func streamWorker[T any](ctx context.Context, repo Repository[T], filter *T, options StreamOptions, resultCh chan StreamResult[T]) {
	defer close(resultCh)

	var (
		itemIndex  int64
		pageNumber int
		errs       []error
		startTime  = time.Now()
	)
	reportProgress := func() {
		if options.ProgressHandler == nil {
			return
		}
		progress := StreamProgress{
			ItemsProcessed: itemIndex,
			PagesProcessed: pageNumber,
			Errors:         errs,
			StartTime:      startTime,
		}
		if elapsed := time.Since(startTime).Seconds(); elapsed > 0 {
			progress.CurrentRate = float64(itemIndex) / elapsed
		}
		options.ProgressHandler(progress)
	}
	// cancelled never blocks. The worker is the only sender, so dropping a
	// buffered item always frees a slot.
	cancelled := func() {
		final := StreamResult[T]{
			Error: storeerrors.NewCancelledError("", "stream", ctx.Err()),
			Meta:  StreamMeta{Index: itemIndex, PageNumber: pageNumber, Timestamp: time.Now()},
		}
		for {
			select {
			case resultCh <- final:
				return
			default:
			}
			select {
			case <-resultCh:
			default:
			}
		}
	}
	fail := func(err error) {
		select {
		case <-ctx.Done():
			cancelled()
		case resultCh <- StreamResult[T]{
			Error: err,
			Meta:  StreamMeta{Index: itemIndex, PageNumber: pageNumber, Timestamp: time.Now()},
		}:
		}
	}

	for offset := 0; ; offset += options.PageSize {
		if ctx.Err() != nil {
			cancelled()
			return
		}
		page, err := findWithRetry(ctx, repo, filter, offset, options)
		if err != nil {
			if storeerrors.IsCancelled(err) || ctx.Err() != nil {
				cancelled()
				return
			}
			if options.ErrorHandler == nil || !options.ErrorHandler(err) {
				fail(fmt.Errorf("stream page %d: %w", pageNumber+1, err))
				return
			}
			errs = append(errs, err)
			pageNumber++
			continue
		}

		pageNumber++
		for _, item := range page {
			result := StreamResult[T]{
				Item: item,
				Meta: StreamMeta{Index: itemIndex, PageNumber: pageNumber, Timestamp: time.Now()},
			}
			select {
			case <-ctx.Done():
				cancelled()
				return
			case resultCh <- result:
			}
			itemIndex++
		}
		reportProgress()

		if len(page) < options.PageSize {
			return
		}
	}
}

// findWithRetry reads one page, retrying storage and connection failures
// with a linearly growing backoff.
func findWithRetry[T any](ctx context.Context, repo Repository[T], filter *T, offset int, options StreamOptions) ([]T, error) {
	var lastErr error
	for attempt := 0; attempt <= options.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, storeerrors.NewCancelledError("", "stream", ctx.Err())
			case <-time.After(time.Duration(attempt) * options.RetryBackoff):
			}
		}
		page, err := repo.Find(ctx, filter, statement.WithPage(options.PageSize, offset))
		if err == nil {
			return page, nil
		}
		if !isTransient(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("failed after %d retries: %w", options.MaxRetries, lastErr)
}

func isTransient(err error) bool {
	return storeerrors.IsStorageError(err) || storeerrors.IsConnectionError(err)
}
