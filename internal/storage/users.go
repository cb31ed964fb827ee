package storage

import (
	"context"
	"log/slog"
	"strings"

	"ledger/internal/core"
	"ledger/internal/log"
)

type UserStore struct {
	conn
}

func (s *UserStore) Create(ctx context.Context, username string) (core.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return core.User{}, core.ErrEmptyName
	}

	u := core.User{Username: username}
	err := s.queryRow(ctx, `INSERT INTO users (username) VALUES (?) RETURNING user_id`, username).Scan(&u.ID)
	if err != nil {
		return core.User{}, wrapErr("create user", err)
	}

	slog.InfoContext(ctx, "User created", log.FieldUserID, u.ID, "username", u.Username)
	return u, nil
}

func (s *UserStore) Get(ctx context.Context, id int64) (core.User, error) {
	u := core.User{ID: id}
	err := s.queryRow(ctx, `SELECT username FROM users WHERE user_id = ?`, id).Scan(&u.Username)
	if err != nil {
		return core.User{}, wrapErr("get user", err)
	}
	return u, nil
}

func (s *UserStore) GetByName(ctx context.Context, username string) (core.User, error) {
	u := core.User{Username: username}
	err := s.queryRow(ctx, `SELECT user_id FROM users WHERE username = ?`, username).Scan(&u.ID)
	if err != nil {
		return core.User{}, wrapErr("get user by name", err)
	}
	return u, nil
}
