// Copyright (C) 2025 The Spendo Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package seed fills a store with fake users and finance records for
// local development.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/spendoapp/spendo/pkg/money"
	"github.com/spendoapp/spendo/services/store"
)

// DefaultPassword is the password of every generated user.
const DefaultPassword = "password"

// =============================================================================
// Data tables
// =============================================================================

var occupations = []string{"Engineer", "Teacher", "Doctor", "Artist", "Developer", "Designer"}

var incomeTypes = []string{
	"Salary", "Bonus", "Freelance", "Investment", "Gift",
	"Commission", "Rental", "Dividend", "Allowance", "Pension",
}

var transactionTypes = []string{"scheduled", "one-time"}

type accountName struct {
	name        string
	institution store.InstitutionType
}

var accountNames = []accountName{
	{"Checking", store.InstitutionCash},
	{"PayPal", store.InstitutionCash},
	{"Venmo", store.InstitutionCash},
	{"Cash App", store.InstitutionCash},
	{"Prepaid Card", store.InstitutionCash},
	{"Foreign Currency Account", store.InstitutionCash},
	{"Savings", store.InstitutionSaving},
	{"Money Market", store.InstitutionSaving},
	{"Certificate of Deposit", store.InstitutionSaving},
	{"Education Savings", store.InstitutionSaving},
	{"Health Savings Account", store.InstitutionSaving},
	{"Trusts", store.InstitutionSaving},
	{"Business Account", store.InstitutionSaving},
	{"Joint Account", store.InstitutionSaving},
	{"Custodial Account", store.InstitutionSaving},
	{"Investment", store.InstitutionInvestingRetirement},
	{"401k", store.InstitutionInvestingRetirement},
	{"IRA", store.InstitutionInvestingRetirement},
	{"Roth IRA", store.InstitutionInvestingRetirement},
	{"SEP IRA", store.InstitutionInvestingRetirement},
	{"Simple IRA", store.InstitutionInvestingRetirement},
	{"Brokerage", store.InstitutionInvestingRetirement},
	{"Retirement Account", store.InstitutionInvestingRetirement},
	{"Annuity", store.InstitutionInvestingRetirement},
}

var payees = []string{
	"ubereats", "postmates", "internet", "att", "haircut", "groceries", "steam game",
	"rent", "mortgage", "electric bill", "water bill", "gas bill", "phone bill",
	"netflix", "spotify", "amazon purchase", "target", "walmart", "starbucks",
	"gym membership", "insurance", "car payment", "public transport", "medical bill",
	"prescription", "movie tickets", "restaurant", "airline ticket", "hotel stay",
	"taxi", "rideshare", "parking", "tuition", "school supplies", "childcare",
	"pet supplies", "donation", "gift", "clothing", "electronics", "furniture",
	"home improvement", "subscription box", "laundry", "dry cleaning", "coffee shop",
	"fast food", "concert tickets", "sports event", "theme park", "books", "magazine subscription",
}

// =============================================================================
// Options and results
// =============================================================================

// Options controls how much data Run generates.
type Options struct {
	Users               int
	IncomesPerUser      int
	AccountsPerUser     int
	TransactionsPerUser int

	// Seed makes the generated amounts and picks reproducible.
	Seed uint64

	// Workers bounds how many users are generated at once. Defaults to 4.
	Workers int

	Logger *slog.Logger
}

// DefaultOptions mirrors the command-line defaults.
func DefaultOptions() Options {
	return Options{
		Users:               10,
		IncomesPerUser:      5,
		AccountsPerUser:     6,
		TransactionsPerUser: 8,
		Seed:                1,
		Workers:             4,
	}
}

// Result counts what Run wrote.
type Result struct {
	UsersCreated int
	UsersFound   int
	Incomes      int
	Accounts     int
	Transactions int
}

// lookups are the shared reference rows every user's records point at.
type lookups struct {
	institutions     map[store.InstitutionType]int64
	incomeTypes      []store.IncomeType
	transactionTypes []store.TransactionType
}

// =============================================================================
// Run
// =============================================================================

// Run generates fake data into s.
//
// # Description
//
// Lookup rows (institutions, transaction types, income types) are
// get-or-created first. Users user0..userN-1 are then get-or-created
// with DefaultPassword, and each receives the requested number of
// incomes, accounts and transactions. Existing users still receive new
// records, so running twice doubles their finance rows.
//
// Each user draws from its own generator derived from Options.Seed and
// the user index, so output is reproducible regardless of Workers.
//
// # Outputs
//
//   - Result: counts of rows written.
//   - error: the first store failure. Other workers are cancelled.
func Run(ctx context.Context, s *store.Store, opts Options) (Result, error) {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	refs, err := ensureLookups(ctx, s, logger)
	if err != nil {
		return Result{}, err
	}

	var created, found, incomes, accounts, txns atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i := range opts.Users {
		g.Go(func() error {
			rng := rand.New(rand.NewPCG(opts.Seed, uint64(i)))
			u, isNew, err := s.GetOrCreateUser(gctx, store.NewUser{
				Username:   fmt.Sprintf("user%d", i),
				Email:      fmt.Sprintf("user%d@example.com", i),
				Password:   DefaultPassword,
				FirstName:  fmt.Sprintf("First%d", i),
				LastName:   fmt.Sprintf("Last%d", i),
				Occupation: ptr(pick(rng, occupations)),
			})
			if err != nil {
				return fmt.Errorf("user%d: %w", i, err)
			}
			if isNew {
				created.Add(1)
				logger.Info("Created user", "username", u.Username)
			} else {
				found.Add(1)
				logger.Info("Found existing user", "username", u.Username)
			}

			for range opts.IncomesPerUser {
				it := pick(rng, refs.incomeTypes)
				in, err := s.CreateIncome(gctx, store.Income{
					Name:         it.IncomeType,
					Amount:       randomAmount(rng, 100, 5000),
					IncomeTypeID: it.ID,
					UserID:       u.ID,
				})
				if err != nil {
					return fmt.Errorf("income for %s: %w", u.Username, err)
				}
				incomes.Add(1)
				logger.Debug("Added income", "username", u.Username, "type", it.IncomeType, "amount", in.Amount.String())
			}

			for range opts.AccountsPerUser {
				an := pick(rng, accountNames)
				if _, err := s.CreateAccount(gctx, store.Account{
					Name:          an.name,
					Balance:       randomAmount(rng, 0, 10000),
					InstitutionID: refs.institutions[an.institution],
					UserID:        u.ID,
				}); err != nil {
					return fmt.Errorf("account for %s: %w", u.Username, err)
				}
				accounts.Add(1)
				logger.Debug("Added account", "username", u.Username, "name", an.name, "institution", an.institution.Label())
			}

			for range opts.TransactionsPerUser {
				tt := pick(rng, refs.transactionTypes)
				t, err := s.CreateTransaction(gctx, store.Transaction{
					Name:              pick(rng, payees),
					Payment:           randomAmount(rng, 1, 100),
					Recurring:         rng.IntN(2) == 1,
					UserID:            u.ID,
					TransactionTypeID: tt.ID,
				})
				if err != nil {
					return fmt.Errorf("transaction for %s: %w", u.Username, err)
				}
				txns.Add(1)
				logger.Debug("Added transaction", "username", u.Username, "name", t.Name)
			}
			return nil
		})
	}

	err = g.Wait()
	res := Result{
		UsersCreated: int(created.Load()),
		UsersFound:   int(found.Load()),
		Incomes:      int(incomes.Load()),
		Accounts:     int(accounts.Load()),
		Transactions: int(txns.Load()),
	}
	if err != nil {
		return res, err
	}
	logger.Info("Fake data generation complete",
		"users_created", res.UsersCreated,
		"users_found", res.UsersFound,
		"incomes", res.Incomes,
		"accounts", res.Accounts,
		"transactions", res.Transactions,
	)
	return res, nil
}

func ensureLookups(ctx context.Context, s *store.Store, logger *slog.Logger) (*lookups, error) {
	refs := &lookups{institutions: make(map[store.InstitutionType]int64, len(store.InstitutionTypes))}

	for _, t := range store.InstitutionTypes {
		inst, created, err := s.GetOrCreateInstitution(ctx, t)
		if err != nil {
			return nil, err
		}
		refs.institutions[t] = inst.ID
		logLookup(logger, created, "institution", t.Label())
	}

	for _, name := range transactionTypes {
		tt, created, err := s.GetOrCreateTransactionType(ctx, name)
		if err != nil {
			return nil, err
		}
		refs.transactionTypes = append(refs.transactionTypes, *tt)
		logLookup(logger, created, "transaction type", name)
	}

	for _, name := range incomeTypes {
		it, created, err := s.GetOrCreateIncomeType(ctx, name)
		if err != nil {
			return nil, err
		}
		refs.incomeTypes = append(refs.incomeTypes, *it)
		logLookup(logger, created, "income type", name)
	}
	return refs, nil
}

func logLookup(logger *slog.Logger, created bool, kind, name string) {
	if created {
		logger.Info("Created "+kind, "name", name)
		return
	}
	logger.Info("Found existing "+kind, "name", name)
}

// randomAmount returns a uniformly chosen amount in [lo, hi] dollars with
// cent precision.
func randomAmount(rng *rand.Rand, lo, hi int64) money.Amount {
	span := (hi - lo) * 100
	return money.FromCents(lo*100 + rng.Int64N(span+1))
}

func pick[T any](rng *rand.Rand, items []T) T {
	return items[rng.IntN(len(items))]
}

func ptr[T any](v T) *T { return &v }
