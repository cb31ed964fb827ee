// Package snapshot maintains the per-account chain of daily balance
// checkpoints. The chain is derived data: Recalculate rebuilds any suffix of
// it from transaction history.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/storage"
)

// cutMargin keeps the starting checkpoint itself out of the deletion when
// the chain is cut after it.
const cutMargin = 12 * time.Hour

type Engine struct {
	repo   *storage.Repository
	logger *log.Logger
}

func NewEngine(repo *storage.Repository, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default(log.ComponentSnapshot)
	}
	return &Engine{repo: repo, logger: logger}
}

// Bind returns an engine working through repo, typically one handed out by
// Repository.WithTx so a rebuild commits with the caller's writes.
func (e *Engine) Bind(repo *storage.Repository) *Engine {
	return &Engine{repo: repo, logger: e.logger}
}

// Result describes one Recalculate run.
type Result struct {
	Start   core.Snapshot
	Deleted int64
	Created int
}

func (e *Engine) Get(ctx context.Context, accountID int64, date time.Time) (core.Snapshot, error) {
	return e.repo.Snapshots.Get(ctx, accountID, date)
}

// GetLast returns the most recent snapshot at or before date.
func (e *Engine) GetLast(ctx context.Context, accountID int64, date time.Time) (core.Snapshot, error) {
	return e.repo.Snapshots.GetLast(ctx, accountID, date)
}

func (e *Engine) List(ctx context.Context, accountID int64) ([]core.Snapshot, error) {
	return e.repo.Snapshots.List(ctx, accountID)
}

// DeleteByDateRange removes snapshots strictly between after and before.
// With both bounds nil it fails with core.ErrInvalidRange.
func (e *Engine) DeleteByDateRange(ctx context.Context, accountID int64, after, before *time.Time) (int64, error) {
	n, err := e.repo.Snapshots.DeleteByDateRange(ctx, accountID, after, before)
	if err != nil {
		return 0, fmt.Errorf("delete snapshots for account %d: %w", accountID, err)
	}
	return n, nil
}

// Recalculate rebuilds the chain from the last checkpoint before from's day,
// or from the epoch when from is nil or no such checkpoint exists. The day
// containing from is always rebuilt. The cut and the rebuild commit together.
func (e *Engine) Recalculate(ctx context.Context, accountID int64, from *time.Time) (Result, error) {
	started := time.Now()

	var res Result
	err := e.repo.WithTx(ctx, func(tx *storage.Repository) error {
		if _, err := tx.Accounts.Get(ctx, accountID); err != nil {
			return err
		}
		start, synthetic, err := startingCheckpoint(ctx, tx, accountID, from)
		if err != nil {
			return err
		}
		res.Start = start

		if synthetic {
			res.Deleted, err = tx.Snapshots.DeleteAll(ctx, accountID)
		} else {
			cut := start.Date.Add(cutMargin)
			res.Deleted, err = tx.Snapshots.DeleteByDateRange(ctx, accountID, &cut, nil)
		}
		if err != nil {
			return err
		}

		// cursor is the first instant not yet covered by current
		var cursor *time.Time
		if !synthetic {
			end := core.EndOfDay(start.Date)
			cursor = &end
		}

		current := start
		for {
			if err := ctx.Err(); err != nil {
				return err
			}

			next, ok, err := tx.Transactions.NextTimestamp(ctx, accountID, cursor)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}

			day := core.TruncateDay(next)
			end := day.Add(core.Day)
			sum, err := tx.Transactions.Sum(ctx, accountID, cursor, &end)
			if err != nil {
				return err
			}

			current = core.Snapshot{AccountID: accountID, Date: day, Amount: current.Amount + sum}
			if err := tx.Snapshots.Insert(ctx, current); err != nil {
				return err
			}
			res.Created++
			cursor = &end
		}
	})
	if err != nil {
		return Result{}, fmt.Errorf("recalculate snapshots for account %d: %w", accountID, err)
	}

	e.logger.InfoContext(ctx, "Snapshots recalculated",
		log.FieldAccountID, accountID,
		log.FieldOperation, log.OpRecalculate,
		"start", res.Start.Date.Format(time.DateOnly),
		log.FieldDeleted, res.Deleted,
		log.FieldSnapshots, res.Created,
		log.FieldDuration, time.Since(started).Milliseconds())

	return res, nil
}

func startingCheckpoint(ctx context.Context, tx *storage.Repository, accountID int64, from *time.Time) (core.Snapshot, bool, error) {
	zero := core.Snapshot{AccountID: accountID, Date: core.Epoch}
	if from == nil {
		return zero, true, nil
	}
	snap, err := tx.Snapshots.GetLastBefore(ctx, accountID, *from)
	if errors.Is(err, core.ErrNotFound) {
		return zero, true, nil
	}
	if err != nil {
		return core.Snapshot{}, false, err
	}
	return snap, false, nil
}
