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
	"github.com/spf13/cobra"

	"github.com/spendoapp/spendo/pkg/ux"
	"github.com/spendoapp/spendo/services/seed"
)

func newSeedCmd(a *app) *cobra.Command {
	opts := seed.DefaultOptions()
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Generate fake users, incomes, accounts and transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			opts.Logger = a.logger.Slog()
			res, err := seed.Run(cmd.Context(), s, opts)
			if err != nil {
				return err
			}
			out := ux.NewPrinter(cmd.OutOrStdout())
			out.Summary(
				ux.Count{Label: "users created", N: res.UsersCreated},
				ux.Count{Label: "existing users", N: res.UsersFound},
				ux.Count{Label: "incomes", N: res.Incomes},
				ux.Count{Label: "accounts", N: res.Accounts},
				ux.Count{Label: "transactions", N: res.Transactions},
			)
			out.Success("Fake data generation complete.")
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVar(&opts.Users, "users", opts.Users, "Number of users to create")
	f.IntVar(&opts.IncomesPerUser, "incomes", opts.IncomesPerUser, "Number of incomes per user")
	f.IntVar(&opts.AccountsPerUser, "accounts", opts.AccountsPerUser, "Number of accounts per user")
	f.IntVar(&opts.TransactionsPerUser, "user_transactions", opts.TransactionsPerUser, "Number of transactions per user")
	f.Uint64Var(&opts.Seed, "seed", opts.Seed, "Random seed for reproducible data")
	f.IntVar(&opts.Workers, "workers", opts.Workers, "Users generated concurrently")
	return cmd
}
