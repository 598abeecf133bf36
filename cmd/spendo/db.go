// Copyright (C) 2025 The Spendo Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/spendoapp/spendo/pkg/ux"
)

func newDBCmd(a *app) *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Manage the Spendo database",
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create any missing tables and indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.Migrate(cmd.Context()); err != nil {
				return err
			}
			ux.NewPrinter(cmd.OutOrStdout()).Success("Database is up to date: %s", s.Path())
			return nil
		},
	}

	var confirmed bool
	truncateCmd := &cobra.Command{
		Use:   "truncate",
		Short: "DANGER: Delete every row from every table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !confirmed {
				return errors.New("refusing to truncate without --yes")
			}
			s, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			tables, err := s.Truncate(cmd.Context())
			if err != nil {
				return err
			}
			out := ux.NewPrinter(cmd.OutOrStdout())
			for _, table := range tables {
				out.Item("Truncated %s", table)
			}
			out.Success("All tables truncated.")
			return nil
		},
	}
	truncateCmd.Flags().BoolVar(&confirmed, "yes", false, "Confirm that all data should be deleted")

	dbCmd.AddCommand(migrateCmd, truncateCmd)
	return dbCmd
}
