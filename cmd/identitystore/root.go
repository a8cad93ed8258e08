/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/suparena/identitystore"
	"github.com/suparena/identitystore/config"
	"github.com/suparena/identitystore/identity"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigFile string
	EnvFiles   []string
	Verbose    bool
	Format     string // "text" | "json" | "yaml"

	logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "yaml"}

// NewRootCommand creates the root command of the identitystore CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "identitystore",
		Short:         "Manage identitystore databases",
		Long:          "Create identity databases and apply their migrations on SQL or DynamoDB backends.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if err := config.LoadDotEnv(opts.EnvFiles...); err != nil {
				return err
			}
			opts.logger = newLogger(cmd.ErrOrStderr(), opts)
			slog.SetDefault(opts.logger)
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "YAML configuration file")
	cmd.PersistentFlags().StringSliceVar(&opts.EnvFiles, "env-file", nil, ".env files to load (default .env)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewEnsureDBCommand(opts))
	cmd.AddCommand(NewVersionCommand(opts))

	return cmd
}

func newLogger(w io.Writer, opts *RootOptions) *slog.Logger {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if opts.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

// openEngine loads the configuration and opens an engine with the identity
// migrations. The returned context carries the startup timeout.
func openEngine(ctx context.Context, opts *RootOptions, create bool) (*identitystore.Engine, context.Context, context.CancelFunc, error) {
	o, err := config.Load(opts.ConfigFile)
	if err != nil {
		return nil, nil, nil, err
	}
	if create {
		o.CreateIfNotExists = true
	}
	cctx, cancel := ctx, context.CancelFunc(func() {})
	if o.StartupTimeout > 0 {
		cctx, cancel = context.WithTimeout(ctx, o.StartupTimeout)
	}
	opts.logger.Debug("opening engine", "backend", o.Backend, "scope", o.Scope.String())
	e, err := identitystore.Open(cctx, o, identity.Migrations, identitystore.WithLogger(opts.logger))
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}
	return e, cctx, cancel, nil
}

// write renders v in the selected format. text is printed with %v.
func write(w io.Writer, format string, v any, text string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		return yaml.NewEncoder(w).Encode(v)
	}
	_, err := fmt.Fprintln(w, text)
	return err
}
