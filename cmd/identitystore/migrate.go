/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/suparena/identitystore"
	"github.com/suparena/identitystore/migrate"
)

// MigrationReport is the output of migrate and ensure-db.
type MigrationReport struct {
	Version int64   `json:"version" yaml:"version"`
	Applied []int64 `json:"applied" yaml:"applied"`
	State   string  `json:"state" yaml:"state"`
}

func report(res migrate.Result) MigrationReport {
	applied := res.Applied
	if applied == nil {
		applied = []int64{}
	}
	return MigrationReport{Version: res.Version, Applied: applied, State: res.State.String()}
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	var create bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending migrations",
		Long: `Apply every pending identity migration to the configured backend.

With --create the database and migration ledger are created first when
missing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, ctx, cancel, err := openEngine(cmd.Context(), rootOpts, create)
			if err != nil {
				return err
			}
			defer cancel()
			defer e.Close()

			if create {
				if _, err := e.EnsureDatabaseExists(ctx); err != nil {
					return err
				}
			}
			res, err := e.MigrateUp(ctx)
			if err != nil {
				return err
			}
			r := report(res)
			return write(cmd.OutOrStdout(), rootOpts.Format, r,
				fmt.Sprintf("version %d, applied %d migration(s)", r.Version, len(r.Applied)))
		},
	}
	cmd.Flags().BoolVar(&create, "create", false, "create the database when missing")

	return cmd
}

// NewEnsureDBCommand creates the ensure-db command.
func NewEnsureDBCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ensure-db",
		Short: "Create the database and migration ledger when missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, ctx, cancel, err := openEngine(cmd.Context(), rootOpts, true)
			if err != nil {
				return err
			}
			defer cancel()
			defer e.Close()

			res, err := e.EnsureDatabaseExists(ctx)
			if err != nil {
				return err
			}
			r := report(res)
			return write(cmd.OutOrStdout(), rootOpts.Format, r,
				fmt.Sprintf("database ready at version %d", r.Version))
		},
	}
}

// NewVersionCommand creates the version command.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := identitystore.GetVersionInfo()
			text := fmt.Sprintf("identitystore version %s\nGit commit: %s\nBuild date: %s\nGo version: %s",
				info.Version, info.GitCommit, info.BuildDate, info.GoVersion)
			return write(cmd.OutOrStdout(), rootOpts.Format, info, text)
		},
	}
}
