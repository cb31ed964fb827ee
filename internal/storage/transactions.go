package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ledger/internal/core"
	"ledger/internal/log"
)

const transactionColumns = `transaction_id, account_id, description, transaction_timestamp, category_id, amount, accumulated, hash`

// TransactionStore owns transaction rows. Chronological order is always
// (transaction_timestamp, transaction_id).
type TransactionStore struct {
	conn
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(sc rowScanner) (core.Transaction, error) {
	var (
		t   core.Transaction
		ts  int64
		cat sql.NullInt64
	)
	if err := sc.Scan(&t.ID, &t.AccountID, &t.Description, &ts, &cat, &t.Amount, &t.Accumulated, &t.Hash); err != nil {
		return core.Transaction{}, err
	}
	t.Timestamp = time.Unix(ts, 0).UTC()
	t.CategoryID = idPtr(cat)
	return t, nil
}

func (s *TransactionStore) collect(ctx context.Context, op, query string, args ...any) ([]core.Transaction, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	defer rows.Close()

	var txs []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, wrapErr(op, err)
		}
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(op, err)
	}
	return txs, nil
}

// Create inserts a transaction, resolving hash collisions with mode.
func (s *TransactionStore) Create(ctx context.Context, nt core.NewTransaction, mode core.ConflictMode) (core.Transaction, error) {
	t, _, err := s.Insert(ctx, nt, mode)
	return t, err
}

// Insert is Create that also reports whether a row was written. Under
// ConflictSkip a collision returns the existing row and false.
//
// The new row's accumulated is the running balance of the row preceding it
// plus its amount. Later rows are not touched.
func (s *TransactionStore) Insert(ctx context.Context, nt core.NewTransaction, mode core.ConflictMode) (core.Transaction, bool, error) {
	if err := nt.Validate(); err != nil {
		return core.Transaction{}, false, err
	}
	nt.Timestamp = nt.Timestamp.UTC().Truncate(time.Second)
	hash := nt.Hash()

	var (
		result   core.Transaction
		inserted bool
	)
	err := s.inTx(ctx, func(c conn) error {
		existing, err := findByHash(ctx, c, nt.AccountID, hash)
		switch {
		case err == nil:
			switch mode {
			case core.ConflictSkip:
				result = existing
				return nil
			case core.ConflictError:
				return fmt.Errorf("create transaction %d: %w", existing.ID, core.ErrConflict)
			}
		case !errors.Is(err, core.ErrNotFound):
			return err
		}

		prev, err := balanceThrough(ctx, c, nt.AccountID, &nt.Timestamp, true)
		if err != nil {
			return err
		}

		result = core.Transaction{
			AccountID:   nt.AccountID,
			Description: nt.Description,
			Timestamp:   nt.Timestamp,
			CategoryID:  nt.CategoryID,
			Amount:      nt.Amount,
			Accumulated: prev + nt.Amount,
			Hash:        hash,
		}
		err = c.queryRow(ctx,
			`INSERT INTO transactions (account_id, description, transaction_timestamp, category_id, amount, accumulated, hash)
			 VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING transaction_id`,
			nt.AccountID, nt.Description, nt.Timestamp.Unix(), nullableID(nt.CategoryID), nt.Amount, result.Accumulated, hash,
		).Scan(&result.ID)
		if err != nil {
			return wrapErr("insert transaction", err)
		}
		inserted = true
		return nil
	})
	if err != nil {
		return core.Transaction{}, false, err
	}

	if inserted {
		slog.InfoContext(ctx, "Transaction created",
			log.FieldTransactionID, result.ID,
			log.FieldAccountID, result.AccountID,
			log.FieldAmountCents, result.Amount,
			"conflict_mode", mode.String())
	} else {
		slog.DebugContext(ctx, "Transaction already present, skipped",
			log.FieldTransactionID, result.ID,
			log.FieldAccountID, result.AccountID)
	}
	return result, inserted, nil
}

func findByHash(ctx context.Context, c conn, accountID int64, hash string) (core.Transaction, error) {
	t, err := scanTransaction(c.queryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE account_id = ? AND hash = ?
		 ORDER BY transaction_id LIMIT 1`, accountID, hash))
	if err != nil {
		return core.Transaction{}, wrapErr("find transaction by hash", err)
	}
	return t, nil
}

// balanceThrough returns the accumulated value of the last row at (inclusive)
// or before (exclusive) ts, or 0 when there is none. A nil ts means no rows
// precede.
func balanceThrough(ctx context.Context, c conn, accountID int64, ts *time.Time, inclusive bool) (int64, error) {
	if ts == nil {
		return 0, nil
	}
	cmp := "<"
	if inclusive {
		cmp = "<="
	}
	var acc int64
	err := c.queryRow(ctx,
		`SELECT accumulated FROM transactions
		 WHERE account_id = ? AND transaction_timestamp `+cmp+` ?
		 ORDER BY transaction_timestamp DESC, transaction_id DESC LIMIT 1`,
		accountID, ts.Unix()).Scan(&acc)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, wrapErr("read previous balance", err)
	}
	return acc, nil
}

func (s *TransactionStore) Get(ctx context.Context, id int64) (core.Transaction, error) {
	return getTransaction(ctx, s.conn, id)
}

func getTransaction(ctx context.Context, c conn, id int64) (core.Transaction, error) {
	t, err := scanTransaction(c.queryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE transaction_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.NotFound("transaction", id)
	}
	if err != nil {
		return core.Transaction{}, wrapErr("get transaction", err)
	}
	return t, nil
}

// SetAmount changes the amount and shifts this row's accumulated by the
// difference. The hash is refreshed because amount is an identity field.
func (s *TransactionStore) SetAmount(ctx context.Context, id, amount int64) (core.Transaction, error) {
	var updated core.Transaction
	err := s.inTx(ctx, func(c conn) error {
		t, err := getTransaction(ctx, c, id)
		if err != nil {
			return err
		}
		t.Accumulated += amount - t.Amount
		t.Amount = amount
		t.Hash = core.ContentHash(t.AccountID, t.Description, t.Timestamp, t.Amount)

		_, err = c.exec(ctx,
			`UPDATE transactions SET amount = ?, accumulated = ?, hash = ? WHERE transaction_id = ?`,
			t.Amount, t.Accumulated, t.Hash, id)
		if err != nil {
			return wrapErr("set transaction amount", err)
		}
		updated = t
		return nil
	})
	if err != nil {
		return core.Transaction{}, err
	}

	slog.InfoContext(ctx, "Transaction amount updated", log.FieldTransactionID, id, log.FieldAmountCents, amount)
	return updated, nil
}

// SetDescription changes the description and recomputes the hash.
func (s *TransactionStore) SetDescription(ctx context.Context, id int64, description string) (core.Transaction, error) {
	if strings.TrimSpace(description) == "" {
		return core.Transaction{}, core.ErrEmptyDescription
	}

	var updated core.Transaction
	err := s.inTx(ctx, func(c conn) error {
		t, err := getTransaction(ctx, c, id)
		if err != nil {
			return err
		}
		t.Description = description
		t.Hash = core.ContentHash(t.AccountID, t.Description, t.Timestamp, t.Amount)

		_, err = c.exec(ctx,
			`UPDATE transactions SET description = ?, hash = ? WHERE transaction_id = ?`,
			t.Description, t.Hash, id)
		if err != nil {
			return wrapErr("set transaction description", err)
		}
		updated = t
		return nil
	})
	if err != nil {
		return core.Transaction{}, err
	}
	return updated, nil
}

// SetCategory assigns a category; nil marks the transaction uncategorized.
func (s *TransactionStore) SetCategory(ctx context.Context, id int64, categoryID *int64) error {
	res, err := s.exec(ctx,
		`UPDATE transactions SET category_id = ? WHERE transaction_id = ?`, nullableID(categoryID), id)
	return checkAffected("set transaction category", "transaction", id, res, err)
}

// Delete removes a row without touching the accumulated values after it.
func (s *TransactionStore) Delete(ctx context.Context, id int64) error {
	res, err := s.exec(ctx, `DELETE FROM transactions WHERE transaction_id = ?`, id)
	if err := checkAffected("delete transaction", "transaction", id, res, err); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Transaction deleted", log.FieldTransactionID, id)
	return nil
}

// List pages through an account's transactions in chronological order.
func (s *TransactionStore) List(ctx context.Context, accountID int64, page core.Page, order core.Order) ([]core.Transaction, error) {
	page = page.Normalize()
	dir := "ASC"
	if order == core.Descending {
		dir = "DESC"
	}
	return s.collect(ctx, "list transactions",
		`SELECT `+transactionColumns+` FROM transactions WHERE account_id = ?
		 ORDER BY transaction_timestamp `+dir+`, transaction_id `+dir+`
		 LIMIT ? OFFSET ?`,
		accountID, page.Limit, page.Offset)
}

// ListByDate returns transactions with after <= timestamp < before in
// ascending order. Nil bounds are open.
func (s *TransactionStore) ListByDate(ctx context.Context, accountID int64, after, before *time.Time, uncategorizedOnly bool) ([]core.Transaction, error) {
	where, args := rangeClause(accountID, after, before)
	if uncategorizedOnly {
		where += ` AND category_id IS NULL`
	}
	return s.collect(ctx, "list transactions by date",
		`SELECT `+transactionColumns+` FROM transactions WHERE `+where+`
		 ORDER BY transaction_timestamp, transaction_id`, args...)
}

func (s *TransactionStore) ListUncategorized(ctx context.Context, accountID int64) ([]core.Transaction, error) {
	return s.ListByDate(ctx, accountID, nil, nil, true)
}

func rangeClause(accountID int64, after, before *time.Time) (string, []any) {
	where := `account_id = ?`
	args := []any{accountID}
	if after != nil {
		where += ` AND transaction_timestamp >= ?`
		args = append(args, after.Unix())
	}
	if before != nil {
		where += ` AND transaction_timestamp < ?`
		args = append(args, before.Unix())
	}
	return where, args
}

// DailyBalances returns, per UTC day in [after, before), the accumulated
// value of that day's last transaction.
func (s *TransactionStore) DailyBalances(ctx context.Context, accountID int64, after, before *time.Time) ([]core.DailyBalance, error) {
	where, args := rangeClause(accountID, after, before)
	rows, err := s.query(ctx,
		`SELECT transaction_timestamp, accumulated FROM transactions WHERE `+where+`
		 ORDER BY transaction_timestamp, transaction_id`, args...)
	if err != nil {
		return nil, wrapErr("daily balances", err)
	}
	defer rows.Close()

	var out []core.DailyBalance
	for rows.Next() {
		var ts, acc int64
		if err := rows.Scan(&ts, &acc); err != nil {
			return nil, wrapErr("scan daily balance", err)
		}
		day := core.TruncateDay(time.Unix(ts, 0))
		if n := len(out); n > 0 && out[n-1].Day.Equal(day) {
			out[n-1].Balance = acc
			continue
		}
		out = append(out, core.DailyBalance{Day: day, Balance: acc})
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("daily balances", err)
	}
	return out, nil
}

// Sum adds the amounts with from <= timestamp < to. Nil bounds are open.
func (s *TransactionStore) Sum(ctx context.Context, accountID int64, from, to *time.Time) (int64, error) {
	where, args := rangeClause(accountID, from, to)
	var total int64
	err := s.queryRow(ctx,
		`SELECT CAST(COALESCE(SUM(amount), 0) AS BIGINT) FROM transactions WHERE `+where, args...).Scan(&total)
	if err != nil {
		return 0, wrapErr("sum transactions", err)
	}
	return total, nil
}

// NextTimestamp returns the earliest transaction timestamp at or after
// notBefore. A nil notBefore searches the whole account.
func (s *TransactionStore) NextTimestamp(ctx context.Context, accountID int64, notBefore *time.Time) (time.Time, bool, error) {
	where, args := rangeClause(accountID, notBefore, nil)
	var ts sql.NullInt64
	err := s.queryRow(ctx,
		`SELECT MIN(transaction_timestamp) FROM transactions WHERE `+where, args...).Scan(&ts)
	if err != nil {
		return time.Time{}, false, wrapErr("next transaction timestamp", err)
	}
	if !ts.Valid {
		return time.Time{}, false, nil
	}
	return time.Unix(ts.Int64, 0).UTC(), true, nil
}

// RecomputeAccumulated rewrites the running balance of every row at or after
// from, seeded from the last row before it. It returns the number of rows
// whose value changed.
func (s *TransactionStore) RecomputeAccumulated(ctx context.Context, accountID int64, from *time.Time) (int, error) {
	type entry struct {
		id, amount, accumulated int64
	}

	changed := 0
	err := s.inTx(ctx, func(c conn) error {
		running, err := balanceThrough(ctx, c, accountID, from, false)
		if err != nil {
			return err
		}

		where, args := rangeClause(accountID, from, nil)
		rows, err := c.query(ctx,
			`SELECT transaction_id, amount, accumulated FROM transactions WHERE `+where+`
			 ORDER BY transaction_timestamp, transaction_id`, args...)
		if err != nil {
			return wrapErr("load transactions for recompute", err)
		}
		var entries []entry
		for rows.Next() {
			var e entry
			if err := rows.Scan(&e.id, &e.amount, &e.accumulated); err != nil {
				rows.Close()
				return wrapErr("scan transaction for recompute", err)
			}
			entries = append(entries, e)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return wrapErr("load transactions for recompute", err)
		}

		for _, e := range entries {
			running += e.amount
			if running == e.accumulated {
				continue
			}
			if _, err := c.exec(ctx,
				`UPDATE transactions SET accumulated = ? WHERE transaction_id = ?`, running, e.id); err != nil {
				return wrapErr("update accumulated", err)
			}
			changed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	slog.InfoContext(ctx, "Accumulated balances recomputed", log.FieldAccountID, accountID, log.FieldChanged, changed)
	return changed, nil
}
