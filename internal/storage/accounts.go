package storage

import (
	"context"
	"log/slog"
	"strings"

	"ledger/internal/core"
	"ledger/internal/log"
)

type AccountStore struct {
	conn
}

func (s *AccountStore) Create(ctx context.Context, userID int64, name string) (core.Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.Account{}, core.ErrEmptyName
	}

	a := core.Account{UserID: userID, Name: name}
	err := s.queryRow(ctx,
		`INSERT INTO accounts (user_id, account_name) VALUES (?, ?) RETURNING account_id`,
		userID, name).Scan(&a.ID)
	if err != nil {
		return core.Account{}, wrapErr("create account", err)
	}

	slog.InfoContext(ctx, "Account created", log.FieldAccountID, a.ID, log.FieldUserID, userID)
	return a, nil
}

func (s *AccountStore) Get(ctx context.Context, id int64) (core.Account, error) {
	a := core.Account{ID: id}
	err := s.queryRow(ctx,
		`SELECT user_id, account_name FROM accounts WHERE account_id = ?`, id).Scan(&a.UserID, &a.Name)
	if err != nil {
		return core.Account{}, wrapErr("get account", err)
	}
	return a, nil
}

// ListByUser returns the user's accounts in creation order.
func (s *AccountStore) ListByUser(ctx context.Context, userID int64) ([]core.Account, error) {
	return s.list(ctx, `SELECT account_id, user_id, account_name FROM accounts WHERE user_id = ? ORDER BY account_id`, userID)
}

func (s *AccountStore) List(ctx context.Context) ([]core.Account, error) {
	return s.list(ctx, `SELECT account_id, user_id, account_name FROM accounts ORDER BY account_id`)
}

func (s *AccountStore) list(ctx context.Context, query string, args ...any) ([]core.Account, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list accounts", err)
	}
	defer rows.Close()

	var accounts []core.Account
	for rows.Next() {
		var a core.Account
		if err := rows.Scan(&a.ID, &a.UserID, &a.Name); err != nil {
			return nil, wrapErr("scan account", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list accounts", err)
	}
	return accounts, nil
}

func (s *AccountStore) SetName(ctx context.Context, id int64, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.ErrEmptyName
	}
	res, err := s.exec(ctx, `UPDATE accounts SET account_name = ? WHERE account_id = ?`, name, id)
	return checkAffected("rename account", "account", id, res, err)
}
