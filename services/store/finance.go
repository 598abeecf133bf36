// Copyright (C) 2025 The Spendo Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// Lookup tables
// =============================================================================

// GetOrCreateInstitution returns the institution row for t.
func (s *Store) GetOrCreateInstitution(ctx context.Context, t InstitutionType) (*Institution, bool, error) {
	if !t.Valid() {
		return nil, false, fmt.Errorf("unknown institution type %q", t)
	}
	created, err := s.insertIgnore(ctx, `INSERT INTO institutions (type) VALUES (?) ON CONFLICT(type) DO NOTHING`, t)
	if err != nil {
		return nil, false, fmt.Errorf("create institution: %w", err)
	}
	inst := Institution{}
	if err := s.db.QueryRowContext(ctx, `SELECT id, type FROM institutions WHERE type = ?`, t).
		Scan(&inst.ID, &inst.Type); err != nil {
		return nil, false, fmt.Errorf("get institution: %w", err)
	}
	return &inst, created, nil
}

// ListInstitutions returns institutions ordered by id.
func (s *Store) ListInstitutions(ctx context.Context) ([]Institution, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, type FROM institutions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list institutions: %w", err)
	}
	defer rows.Close()

	var out []Institution
	for rows.Next() {
		var inst Institution
		if err := rows.Scan(&inst.ID, &inst.Type); err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

// GetOrCreateIncomeType returns the income type named name.
func (s *Store) GetOrCreateIncomeType(ctx context.Context, name string) (*IncomeType, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false, errors.New("income type is required")
	}
	created, err := s.insertIgnore(ctx,
		`INSERT INTO income_types (income_type, created_at) VALUES (?, ?) ON CONFLICT(income_type) DO NOTHING`,
		name, s.timestamp())
	if err != nil {
		return nil, false, fmt.Errorf("create income type: %w", err)
	}
	var (
		it IncomeType
		ts string
	)
	if err := s.db.QueryRowContext(ctx, `SELECT id, income_type, created_at FROM income_types WHERE income_type = ?`, name).
		Scan(&it.ID, &it.IncomeType, &ts); err != nil {
		return nil, false, fmt.Errorf("get income type: %w", err)
	}
	it.CreatedAt = parseTime(ts)
	return &it, created, nil
}

// ListIncomeTypes returns income types ordered by id.
func (s *Store) ListIncomeTypes(ctx context.Context) ([]IncomeType, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, income_type, created_at FROM income_types ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list income types: %w", err)
	}
	defer rows.Close()

	var out []IncomeType
	for rows.Next() {
		var (
			it IncomeType
			ts string
		)
		if err := rows.Scan(&it.ID, &it.IncomeType, &ts); err != nil {
			return nil, err
		}
		it.CreatedAt = parseTime(ts)
		out = append(out, it)
	}
	return out, rows.Err()
}

// GetOrCreateTransactionType returns the transaction type named name.
func (s *Store) GetOrCreateTransactionType(ctx context.Context, name string) (*TransactionType, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false, errors.New("transaction type is required")
	}
	created, err := s.insertIgnore(ctx,
		`INSERT INTO transaction_types (type, created_at) VALUES (?, ?) ON CONFLICT(type) DO NOTHING`,
		name, s.timestamp())
	if err != nil {
		return nil, false, fmt.Errorf("create transaction type: %w", err)
	}
	var (
		tt TransactionType
		ts string
	)
	if err := s.db.QueryRowContext(ctx, `SELECT id, type, created_at FROM transaction_types WHERE type = ?`, name).
		Scan(&tt.ID, &tt.Type, &ts); err != nil {
		return nil, false, fmt.Errorf("get transaction type: %w", err)
	}
	tt.CreatedAt = parseTime(ts)
	return &tt, created, nil
}

// ListTransactionTypes returns transaction types ordered by id.
func (s *Store) ListTransactionTypes(ctx context.Context) ([]TransactionType, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, type, created_at FROM transaction_types ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list transaction types: %w", err)
	}
	defer rows.Close()

	var out []TransactionType
	for rows.Next() {
		var (
			tt TransactionType
			ts string
		)
		if err := rows.Scan(&tt.ID, &tt.Type, &ts); err != nil {
			return nil, err
		}
		tt.CreatedAt = parseTime(ts)
		out = append(out, tt)
	}
	return out, rows.Err()
}

func (s *Store) insertIgnore(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// =============================================================================
// Accounts
// =============================================================================

const accountColumns = `a.id, a.name, a.balance, a.institution_id, a.user_id, a.created_at, i.type`

const accountFrom = ` FROM accounts a JOIN institutions i ON i.id = a.institution_id`

func scanAccount(row rowScanner) (*Account, error) {
	var (
		a  Account
		ts string
	)
	if err := row.Scan(&a.ID, &a.Name, &a.Balance, &a.InstitutionID, &a.UserID, &ts, &a.InstitutionType); err != nil {
		return nil, err
	}
	a.CreatedAt = parseTime(ts)
	return &a, nil
}

// CreateAccount inserts a for a.UserID. An empty name becomes "Account".
func (s *Store) CreateAccount(ctx context.Context, a Account) (*Account, error) {
	if strings.TrimSpace(a.Name) == "" {
		a.Name = "Account"
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (name, balance, institution_id, user_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		a.Name, a.Balance, a.InstitutionID, a.UserID, s.timestamp())
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("account references: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("insert account: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetAccount(ctx, a.UserID, id)
}

// ListAccounts returns userID's accounts ordered by id.
func (s *Store) ListAccounts(ctx context.Context, userID int64) ([]Account, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+accountColumns+accountFrom+` WHERE a.user_id = ? ORDER BY a.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// GetAccount returns ErrNotFound unless the account exists and belongs to userID.
func (s *Store) GetAccount(ctx context.Context, userID, id int64) (*Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+accountFrom+` WHERE a.id = ? AND a.user_id = ?`, id, userID)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

// UpdateAccount overwrites the mutable fields of a user's account.
func (s *Store) UpdateAccount(ctx context.Context, a Account) (*Account, error) {
	if strings.TrimSpace(a.Name) == "" {
		a.Name = "Account"
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET name = ?, balance = ?, institution_id = ? WHERE id = ? AND user_id = ?`,
		a.Name, a.Balance, a.InstitutionID, a.ID, a.UserID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("account references: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("update account: %w", err)
	}
	if err := affectedOrNotFound(res); err != nil {
		return nil, err
	}
	return s.GetAccount(ctx, a.UserID, a.ID)
}

// DeleteAccount removes a user's account and, by cascade, its transactions.
func (s *Store) DeleteAccount(ctx context.Context, userID, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return affectedOrNotFound(res)
}

// BalanceSummary totals userID's account balances by institution type.
func (s *Store) BalanceSummary(ctx context.Context, userID int64) (*BalanceSummary, error) {
	accounts, err := s.ListAccounts(ctx, userID)
	if err != nil {
		return nil, err
	}
	var sum BalanceSummary
	for _, a := range accounts {
		sum.add(a.InstitutionType, a.Balance)
	}
	return &sum, nil
}

// =============================================================================
// Incomes
// =============================================================================

const incomeColumns = `id, name, amount, income_type_id, user_id, income_date, created_at`

func scanIncome(row rowScanner) (*Income, error) {
	var (
		in Income
		ts string
	)
	if err := row.Scan(&in.ID, &in.Name, &in.Amount, &in.IncomeTypeID, &in.UserID, &in.IncomeDate, &ts); err != nil {
		return nil, err
	}
	in.CreatedAt = parseTime(ts)
	return &in, nil
}

// CreateIncome inserts in for in.UserID. A zero IncomeDate becomes today.
func (s *Store) CreateIncome(ctx context.Context, in Income) (*Income, error) {
	if in.IncomeDate.IsZero() {
		in.IncomeDate = NewDate(s.now())
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO incomes (name, amount, income_type_id, user_id, income_date, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		in.Name, in.Amount, in.IncomeTypeID, in.UserID, in.IncomeDate, s.timestamp())
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("income references: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("insert income: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetIncome(ctx, in.UserID, id)
}

// ListIncomes returns userID's incomes, newest income_date first.
func (s *Store) ListIncomes(ctx context.Context, userID int64) ([]Income, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+incomeColumns+` FROM incomes WHERE user_id = ? ORDER BY income_date DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list incomes: %w", err)
	}
	defer rows.Close()

	var out []Income
	for rows.Next() {
		in, err := scanIncome(rows)
		if err != nil {
			return nil, fmt.Errorf("scan income: %w", err)
		}
		out = append(out, *in)
	}
	return out, rows.Err()
}

func (s *Store) GetIncome(ctx context.Context, userID, id int64) (*Income, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+incomeColumns+` FROM incomes WHERE id = ? AND user_id = ?`, id, userID)
	in, err := scanIncome(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get income: %w", err)
	}
	return in, nil
}

func (s *Store) UpdateIncome(ctx context.Context, in Income) (*Income, error) {
	if in.IncomeDate.IsZero() {
		in.IncomeDate = NewDate(s.now())
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE incomes SET name = ?, amount = ?, income_type_id = ?, income_date = ? WHERE id = ? AND user_id = ?`,
		in.Name, in.Amount, in.IncomeTypeID, in.IncomeDate, in.ID, in.UserID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("income references: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("update income: %w", err)
	}
	if err := affectedOrNotFound(res); err != nil {
		return nil, err
	}
	return s.GetIncome(ctx, in.UserID, in.ID)
}

func (s *Store) DeleteIncome(ctx context.Context, userID, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM incomes WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete income: %w", err)
	}
	return affectedOrNotFound(res)
}

// =============================================================================
// Transactions
// =============================================================================

const transactionColumns = `id, name, payment, transaction_date, recurring, note, user_id, account_id,
	transaction_type_id, created_at`

func scanTransaction(row rowScanner) (*Transaction, error) {
	var (
		t       Transaction
		date    sql.NullString
		note    sql.NullString
		account sql.NullInt64
		ts      string
	)
	if err := row.Scan(&t.ID, &t.Name, &t.Payment, &date, &t.Recurring, &note, &t.UserID, &account,
		&t.TransactionTypeID, &ts); err != nil {
		return nil, err
	}
	if date.Valid && date.String != "" {
		d, err := ParseDate(date.String)
		if err != nil {
			return nil, err
		}
		t.TransactionDate = &d
	}
	t.Note = stringPtr(note)
	t.AccountID = intPtr(account)
	t.CreatedAt = parseTime(ts)
	return &t, nil
}

func nullDate(d *Date) sql.NullString {
	if d == nil || d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

// checkAccountOwner rejects account ids that are not userID's.
func (s *Store) checkAccountOwner(ctx context.Context, userID int64, accountID *int64) error {
	if accountID == nil {
		return nil
	}
	if _, err := s.GetAccount(ctx, userID, *accountID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("account %d: %w", *accountID, ErrNotFound)
		}
		return err
	}
	return nil
}

// CreateTransaction inserts t for t.UserID. A non-nil AccountID must
// belong to the same user.
func (s *Store) CreateTransaction(ctx context.Context, t Transaction) (*Transaction, error) {
	if strings.TrimSpace(t.Name) == "" {
		return nil, errors.New("transaction name is required")
	}
	if err := s.checkAccountOwner(ctx, t.UserID, t.AccountID); err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (name, payment, transaction_date, recurring, note, user_id, account_id,
			transaction_type_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Name, t.Payment, nullDate(t.TransactionDate), t.Recurring, nullString(t.Note), t.UserID,
		nullInt(t.AccountID), t.TransactionTypeID, s.timestamp())
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("transaction references: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("insert transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetTransaction(ctx, t.UserID, id)
}

// ListTransactions returns userID's transactions, newest first.
func (s *Store) ListTransactions(ctx context.Context, userID int64) ([]Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *Store) GetTransaction(ctx context.Context, userID, id int64) (*Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ? AND user_id = ?`, id, userID)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

func (s *Store) UpdateTransaction(ctx context.Context, t Transaction) (*Transaction, error) {
	if strings.TrimSpace(t.Name) == "" {
		return nil, errors.New("transaction name is required")
	}
	if err := s.checkAccountOwner(ctx, t.UserID, t.AccountID); err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions SET name = ?, payment = ?, transaction_date = ?, recurring = ?, note = ?,
			account_id = ?, transaction_type_id = ?
		WHERE id = ? AND user_id = ?`,
		t.Name, t.Payment, nullDate(t.TransactionDate), t.Recurring, nullString(t.Note),
		nullInt(t.AccountID), t.TransactionTypeID, t.ID, t.UserID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("transaction references: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("update transaction: %w", err)
	}
	if err := affectedOrNotFound(res); err != nil {
		return nil, err
	}
	return s.GetTransaction(ctx, t.UserID, t.ID)
}

func (s *Store) DeleteTransaction(ctx context.Context, userID, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	return affectedOrNotFound(res)
}
