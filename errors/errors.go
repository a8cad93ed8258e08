/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package errors

import (
	"context"
	"errors"
	"fmt"
)

// Common sentinel errors
var (
	// ErrNotFound is returned when an entity is not found
	ErrNotFound = errors.New("entity not found")

	// ErrAlreadyExists is returned when attempting to create an entity that already exists
	ErrAlreadyExists = errors.New("entity already exists")

	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")

	// ErrSchema is returned when an entity type cannot be described or routed
	ErrSchema = errors.New("schema error")

	// ErrAmbiguousOperation is returned when a delete or update has no filter fields
	ErrAmbiguousOperation = errors.New("ambiguous operation")

	// ErrNotRegistered is returned when a descriptor is requested before registration
	ErrNotRegistered = errors.New("type not registered")

	// ErrConnection is returned when a native connection cannot be created or opened
	ErrConnection = errors.New("connection error")

	// ErrMigration is returned when a migration step fails
	ErrMigration = errors.New("migration failed")

	// ErrCancelled is returned when cooperative cancellation is observed
	ErrCancelled = errors.New("operation cancelled")

	// ErrStorage is returned when the backend rejects a statement
	ErrStorage = errors.New("storage error")

	// ErrTransactionsUnsupported is returned by backends without native transactions
	ErrTransactionsUnsupported = errors.New("transactions not supported by backend")
)

// NotFoundError represents an error when an entity is not found
type NotFoundError struct {
	Type string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with key %q not found", e.Type, e.Key)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// AlreadyExistsError represents an error when an entity already exists
type AlreadyExistsError struct {
	Type string
	Key  string
}

func (e *AlreadyExistsError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s already exists", e.Type)
	}
	return fmt.Sprintf("%s with key %q already exists", e.Type, e.Key)
}

func (e *AlreadyExistsError) Is(target error) bool {
	return target == ErrAlreadyExists
}

// ValidationError represents an input validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %q: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// SchemaError is returned when an entity type cannot be described, lacks an
// identity required by an operation, or cannot be routed.
type SchemaError struct {
	Type   string
	Op     string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("schema error for %s (%s): %s", e.Type, e.Op, e.Reason)
	}
	return fmt.Sprintf("schema error for %s: %s", e.Type, e.Reason)
}

func (e *SchemaError) Is(target error) bool {
	return target == ErrSchema
}

// AmbiguousOperationError is returned when a delete or update carries no filter.
type AmbiguousOperationError struct {
	Type string
	Op   string
}

func (e *AmbiguousOperationError) Error() string {
	return fmt.Sprintf("%s on %s requires at least one filter field", e.Op, e.Type)
}

func (e *AmbiguousOperationError) Is(target error) bool {
	return target == ErrAmbiguousOperation
}

// NotRegisteredError is returned when a type is used before registration.
type NotRegisteredError struct {
	Type string
}

func (e *NotRegisteredError) Error() string {
	return fmt.Sprintf("type %s is not registered", e.Type)
}

func (e *NotRegisteredError) Is(target error) bool {
	return target == ErrNotRegistered
}

// ConnectionError wraps a failure to create or open a native connection.
type ConnectionError struct {
	Backend string
	Op      string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s connection %s: %v", e.Backend, e.Op, e.Err)
}

func (e *ConnectionError) Is(target error) bool {
	return target == ErrConnection
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// MigrationError reports the migration step that stopped a run.
type MigrationError struct {
	Version int64
	Name    string
	Err     error
}

func (e *MigrationError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("migration %d (%s) failed: %v", e.Version, e.Name, e.Err)
	}
	return fmt.Sprintf("migration %d failed: %v", e.Version, e.Err)
}

func (e *MigrationError) Is(target error) bool {
	return target == ErrMigration
}

func (e *MigrationError) Unwrap() error { return e.Err }

// CancelledError reports cooperative cancellation. It unwraps to the context
// error so errors.Is(err, context.Canceled) keeps working.
type CancelledError struct {
	Type string
	Op   string
	Err  error
}

func (e *CancelledError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("%s cancelled: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s on %s cancelled: %v", e.Op, e.Type, e.Err)
}

func (e *CancelledError) Is(target error) bool {
	return target == ErrCancelled
}

func (e *CancelledError) Unwrap() error { return e.Err }

// StorageError wraps a backend failure with the entity type and operation.
type StorageError struct {
	Type string
	Op   string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s on %s: %v", e.Op, e.Type, e.Err)
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

func (e *StorageError) Unwrap() error { return e.Err }

// Helper functions for creating errors

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(entityType, key string) error {
	return &NotFoundError{Type: entityType, Key: key}
}

// NewAlreadyExistsError creates a new AlreadyExistsError
func NewAlreadyExistsError(entityType, key string) error {
	return &AlreadyExistsError{Type: entityType, Key: key}
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// NewSchemaError creates a new SchemaError
func NewSchemaError(entityType, op, reason string) error {
	return &SchemaError{Type: entityType, Op: op, Reason: reason}
}

// NewAmbiguousOperationError creates a new AmbiguousOperationError
func NewAmbiguousOperationError(entityType, op string) error {
	return &AmbiguousOperationError{Type: entityType, Op: op}
}

// NewNotRegisteredError creates a new NotRegisteredError
func NewNotRegisteredError(entityType string) error {
	return &NotRegisteredError{Type: entityType}
}

// NewConnectionError creates a new ConnectionError
func NewConnectionError(backend, op string, err error) error {
	return &ConnectionError{Backend: backend, Op: op, Err: err}
}

// NewMigrationError creates a new MigrationError
func NewMigrationError(version int64, name string, err error) error {
	return &MigrationError{Version: version, Name: name, Err: err}
}

// NewCancelledError creates a new CancelledError
func NewCancelledError(entityType, op string, err error) error {
	return &CancelledError{Type: entityType, Op: op, Err: err}
}

// NewStorageError creates a new StorageError
func NewStorageError(entityType, op string, err error) error {
	return &StorageError{Type: entityType, Op: op, Err: err}
}

// FromContext returns a CancelledError when ctx is done, nil otherwise.
func FromContext(ctx context.Context, entityType, op string) error {
	if err := ctx.Err(); err != nil {
		return NewCancelledError(entityType, op, err)
	}
	return nil
}

// Wrap classifies a backend error: context errors become CancelledError,
// errors that already belong to the taxonomy pass through untouched, and
// anything else becomes a StorageError.
func Wrap(err error, entityType, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		if IsCancelled(err) {
			return err
		}
		return NewCancelledError(entityType, op, err)
	case isClassified(err):
		return err
	default:
		return NewStorageError(entityType, op, err)
	}
}

func isClassified(err error) bool {
	for _, target := range []error{
		ErrNotFound, ErrAlreadyExists, ErrInvalidInput, ErrSchema, ErrAmbiguousOperation,
		ErrNotRegistered, ErrConnection, ErrMigration, ErrCancelled, ErrStorage,
		ErrTransactionsUnsupported,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if an error is an already exists error
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsSchemaError checks if an error is a schema error
func IsSchemaError(err error) bool {
	return errors.Is(err, ErrSchema)
}

// IsAmbiguousOperation checks if an error is an ambiguous operation error
func IsAmbiguousOperation(err error) bool {
	return errors.Is(err, ErrAmbiguousOperation)
}

// IsNotRegistered checks if an error is a not registered error
func IsNotRegistered(err error) bool {
	return errors.Is(err, ErrNotRegistered)
}

// IsConnectionError checks if an error is a connection error
func IsConnectionError(err error) bool {
	return errors.Is(err, ErrConnection)
}

// IsMigrationError checks if an error is a migration error
func IsMigrationError(err error) bool {
	return errors.Is(err, ErrMigration)
}

// IsCancelled checks if an error reports cooperative cancellation
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// IsStorageError checks if an error is a storage error
func IsStorageError(err error) bool {
	return errors.Is(err, ErrStorage)
}
