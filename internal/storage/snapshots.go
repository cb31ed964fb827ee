package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ledger/internal/core"
)

// SnapshotStore persists the account_snapshot checkpoint chain. Datestamps
// are stored as unix seconds at UTC midnight.
type SnapshotStore struct {
	conn
}

func (s *SnapshotStore) Get(ctx context.Context, accountID int64, date time.Time) (core.Snapshot, error) {
	day := core.TruncateDay(date)
	snap := core.Snapshot{AccountID: accountID, Date: day}
	err := s.queryRow(ctx,
		`SELECT amount FROM account_snapshot WHERE account_id = ? AND datestamp = ?`,
		accountID, day.Unix()).Scan(&snap.Amount)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Snapshot{}, core.NotFound("snapshot", day.Format(time.DateOnly))
	}
	if err != nil {
		return core.Snapshot{}, wrapErr("get snapshot", err)
	}
	return snap, nil
}

// GetLast returns the latest snapshot whose day is at or before date.
func (s *SnapshotStore) GetLast(ctx context.Context, accountID int64, date time.Time) (core.Snapshot, error) {
	return s.last(ctx, accountID, "<=", core.TruncateDay(date))
}

// GetLastBefore returns the latest snapshot whose day is strictly before date's day.
func (s *SnapshotStore) GetLastBefore(ctx context.Context, accountID int64, date time.Time) (core.Snapshot, error) {
	return s.last(ctx, accountID, "<", core.TruncateDay(date))
}

func (s *SnapshotStore) last(ctx context.Context, accountID int64, cmp string, day time.Time) (core.Snapshot, error) {
	snap := core.Snapshot{AccountID: accountID}
	var ds int64
	err := s.queryRow(ctx,
		`SELECT datestamp, amount FROM account_snapshot
		 WHERE account_id = ? AND datestamp `+cmp+` ?
		 ORDER BY datestamp DESC LIMIT 1`,
		accountID, day.Unix()).Scan(&ds, &snap.Amount)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Snapshot{}, core.NotFound("snapshot before", day.Format(time.DateOnly))
	}
	if err != nil {
		return core.Snapshot{}, wrapErr("get last snapshot", err)
	}
	snap.Date = time.Unix(ds, 0).UTC()
	return snap, nil
}

// List returns the account's chain in ascending date order.
func (s *SnapshotStore) List(ctx context.Context, accountID int64) ([]core.Snapshot, error) {
	rows, err := s.query(ctx,
		`SELECT datestamp, amount FROM account_snapshot WHERE account_id = ? ORDER BY datestamp`, accountID)
	if err != nil {
		return nil, wrapErr("list snapshots", err)
	}
	defer rows.Close()

	var snaps []core.Snapshot
	for rows.Next() {
		var ds int64
		snap := core.Snapshot{AccountID: accountID}
		if err := rows.Scan(&ds, &snap.Amount); err != nil {
			return nil, wrapErr("scan snapshot", err)
		}
		snap.Date = time.Unix(ds, 0).UTC()
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list snapshots", err)
	}
	return snaps, nil
}

func (s *SnapshotStore) Insert(ctx context.Context, snap core.Snapshot) error {
	_, err := s.exec(ctx,
		`INSERT INTO account_snapshot (account_id, datestamp, amount) VALUES (?, ?, ?)`,
		snap.AccountID, core.TruncateDay(snap.Date).Unix(), snap.Amount)
	if err != nil {
		return wrapErr(fmt.Sprintf("insert snapshot %s", snap.Date.Format(time.DateOnly)), err)
	}
	return nil
}

// DeleteByDateRange removes snapshots with after < datestamp < before. At
// least one bound is required.
func (s *SnapshotStore) DeleteByDateRange(ctx context.Context, accountID int64, after, before *time.Time) (int64, error) {
	if after == nil && before == nil {
		return 0, core.ErrInvalidRange
	}
	if after != nil && before != nil && !after.Before(*before) {
		return 0, fmt.Errorf("delete snapshots after %s before %s: %w",
			after.Format(time.RFC3339), before.Format(time.RFC3339), core.ErrInvalidRange)
	}

	query := `DELETE FROM account_snapshot WHERE account_id = ?`
	args := []any{accountID}
	if after != nil {
		query += ` AND datestamp > ?`
		args = append(args, after.Unix())
	}
	if before != nil {
		query += ` AND datestamp < ?`
		args = append(args, before.Unix())
	}

	res, err := s.exec(ctx, query, args...)
	if err != nil {
		return 0, wrapErr("delete snapshots", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapErr("delete snapshots", err)
	}
	return n, nil
}

// DeleteAll wipes an account's chain. Only rebuilds from the epoch use it.
func (s *SnapshotStore) DeleteAll(ctx context.Context, accountID int64) (int64, error) {
	res, err := s.exec(ctx, `DELETE FROM account_snapshot WHERE account_id = ?`, accountID)
	if err != nil {
		return 0, wrapErr("delete all snapshots", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapErr("delete all snapshots", err)
	}
	return n, nil
}
