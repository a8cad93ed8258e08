/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/suparena/identitystore/connection"
	"github.com/suparena/identitystore/dialect"
	storeerrors "github.com/suparena/identitystore/errors"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "IDENTITYSTORE_"

// Options configures an engine.
type Options struct {
	// Backend is one of postgres, mysql, sqlite or dynamodb.
	Backend string `yaml:"backend" env:"BACKEND"`
	// ConnectionString is the DSN of a relational backend.
	ConnectionString string           `yaml:"connection_string" env:"CONNECTION_STRING"`
	Scope            connection.Scope `yaml:"scope" env:"SCOPE"`
	// Collection is the DynamoDB table.
	Collection        string `yaml:"collection" env:"COLLECTION"`
	CreateIfNotExists bool   `yaml:"create_if_not_exists" env:"CREATE_IF_NOT_EXISTS"`
	MigrateOnStartup  bool   `yaml:"migrate_on_startup" env:"MIGRATE_ON_STARTUP"`
	// SuperUser names a user who holds every role.
	SuperUser      string        `yaml:"super_user" env:"SUPER_USER"`
	StartupTimeout time.Duration `yaml:"startup_timeout" env:"STARTUP_TIMEOUT"`

	DynamoDB DynamoDB `yaml:"dynamodb" envPrefix:"DYNAMODB_"`
}

// DynamoDB holds the document backend settings.
type DynamoDB struct {
	Region       string        `yaml:"region" env:"REGION"`
	AccessKey    string        `yaml:"access_key" env:"ACCESS_KEY"`
	SecretKey    string        `yaml:"secret_key" env:"SECRET_KEY"`
	Endpoint     string        `yaml:"endpoint" env:"ENDPOINT"`
	PageSize     int32         `yaml:"page_size" env:"PAGE_SIZE"`
	MaxRetries   int           `yaml:"max_retries" env:"MAX_RETRIES"`
	RetryBackoff time.Duration `yaml:"retry_backoff" env:"RETRY_BACKOFF"`
}

// Defaults returns the options used when nothing else is set.
func Defaults() Options {
	return Options{
		Backend:        dialect.SQLite,
		Scope:          connection.PerOperation,
		Collection:     "Identity",
		StartupTimeout: 30 * time.Second,
		DynamoDB: DynamoDB{
			PageSize:     100,
			MaxRetries:   3,
			RetryBackoff: time.Second,
		},
	}
}

// Load reads the options. Values from the YAML file at path override the
// defaults, and IDENTITYSTORE_* environment variables override both. An
// empty path skips the file.
func Load(path string) (Options, error) {
	o := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return o, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &o); err != nil {
			return o, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(&o, env.Options{Prefix: EnvPrefix}); err != nil {
		return o, fmt.Errorf("parse env: %w", err)
	}
	return o, o.Validate()
}

// LoadDotEnv loads .env files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Validate checks that the options describe a usable backend.
func (o Options) Validate() error {
	switch strings.ToLower(o.Backend) {
	case dialect.Postgres, dialect.MySQL, dialect.SQLite:
		if o.ConnectionString == "" {
			return storeerrors.NewValidationError("connection_string", "required for "+o.Backend)
		}
	case dialect.DynamoDB:
		if o.Collection == "" {
			return storeerrors.NewValidationError("collection", "required for dynamodb")
		}
		if o.DynamoDB.Region == "" {
			return storeerrors.NewValidationError("dynamodb.region", "required for dynamodb")
		}
		if (o.DynamoDB.AccessKey == "") != (o.DynamoDB.SecretKey == "") {
			return storeerrors.NewValidationError("dynamodb.secret_key", "access key and secret key go together")
		}
	default:
		return storeerrors.NewValidationError("backend", fmt.Sprintf("unsupported backend %q", o.Backend))
	}
	if _, err := o.Scope.MarshalText(); err != nil {
		return storeerrors.NewValidationError("scope", err.Error())
	}
	if o.StartupTimeout < 0 {
		return storeerrors.NewValidationError("startup_timeout", "must not be negative")
	}
	return nil
}

// IsDocument reports whether the backend is the document store.
func (o Options) IsDocument() bool {
	return strings.EqualFold(o.Backend, dialect.DynamoDB)
}
