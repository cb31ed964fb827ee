package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"ledger/internal/amqp"
	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/rules"
	"ledger/internal/snapshot"
	"ledger/internal/storage"
)

// JobPublisher hands ledger jobs to a background worker.
type JobPublisher interface {
	PublishJob(ctx context.Context, msg *amqp.JobMessage) error
	Close() error
}

// rebuildParallelism bounds concurrent account rebuilds in RebuildAll.
const rebuildParallelism = 4

// LedgerService coordinates the transaction store, the rule matcher and the
// snapshot engine for each account. Mutations never cascade on their own;
// callers ask for recategorization or recalculation explicitly.
type LedgerService struct {
	repo      *storage.Repository
	engine    *snapshot.Engine
	matcher   *rules.Matcher
	publisher JobPublisher
	logger    *log.Logger

	// explicit rebuilds of one account run one at a time, never shared
	locks accountLocks

	// concurrent RebuildAll calls share one pass bound to the service lifetime
	rebuilds singleflight.Group
	lifetime context.Context
	shutdown context.CancelFunc
}

func NewLedgerService(repo *storage.Repository, matcher *rules.Matcher, publisher JobPublisher, logger *log.Logger) *LedgerService {
	if logger == nil {
		logger = log.Default(log.ComponentLedger)
	}
	lifetime, shutdown := context.WithCancel(context.Background())
	return &LedgerService{
		repo:      repo,
		engine:    snapshot.NewEngine(repo, logger.WithComponent(log.ComponentSnapshot)),
		matcher:   matcher,
		publisher: publisher,
		logger:    logger,
		lifetime:  lifetime,
		shutdown:  shutdown,
	}
}

func (s *LedgerService) Repository() *storage.Repository {
	return s.repo
}

func (s *LedgerService) Snapshots() *snapshot.Engine {
	return s.engine
}

// CreateRule validates the pattern before persisting the rule.
func (s *LedgerService) CreateRule(ctx context.Context, userID int64, pattern string, categoryID int64) (core.Rule, error) {
	if err := s.matcher.Validate(pattern); err != nil {
		return core.Rule{}, fmt.Errorf("create rule: %w", err)
	}
	return s.repo.Rules.Create(ctx, userID, pattern, categoryID)
}

// RecategorizeTransactions applies the account owner's rules to the
// transactions with from <= timestamp < to, in ascending order. A category is
// written only when the first matching rule differs from the current one;
// transactions no rule matches keep their category. The sweep stops at the
// first error and reports how many rows it had already changed.
func (s *LedgerService) RecategorizeTransactions(ctx context.Context, accountID int64, from, to *time.Time, mode core.RecategorizeMode) (int, error) {
	started := time.Now()

	account, err := s.repo.Accounts.Get(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("recategorize account %d: %w", accountID, err)
	}
	ruleSet, err := s.repo.Rules.ListByUser(ctx, account.UserID)
	if err != nil {
		return 0, fmt.Errorf("load rules for user %d: %w", account.UserID, err)
	}
	txs, err := s.repo.Transactions.ListByDate(ctx, accountID, from, to, mode == core.RecategorizeUncategorized)
	if err != nil {
		return 0, fmt.Errorf("load transactions for account %d: %w", accountID, err)
	}

	changed := 0
	for _, tx := range txs {
		if err := ctx.Err(); err != nil {
			return changed, err
		}

		category, err := s.matcher.Classify(ruleSet, tx.Description)
		if err != nil {
			return changed, fmt.Errorf("classify transaction %d: %w", tx.ID, err)
		}
		if category == nil || sameCategory(tx.CategoryID, category) {
			continue
		}
		if err := s.repo.Transactions.SetCategory(ctx, tx.ID, category); err != nil {
			return changed, fmt.Errorf("categorize transaction %d: %w", tx.ID, err)
		}
		changed++
	}

	s.logger.WithAccount(accountID).InfoContext(ctx, "Transactions recategorized",
		log.FieldOperation, log.OpRecategorize,
		"mode", mode.String(),
		"rules", len(ruleSet),
		"scanned", len(txs),
		log.FieldChanged, changed,
		log.FieldDuration, time.Since(started).Milliseconds())
	return changed, nil
}

func sameCategory(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// RecalculateSnapshots rebuilds the account's snapshot chain from the last
// checkpoint before from. Each call runs its own rebuild after any earlier
// rebuild of the same account has finished.
func (s *LedgerService) RecalculateSnapshots(ctx context.Context, accountID int64, from *time.Time) (snapshot.Result, error) {
	unlock, err := s.locks.lock(ctx, accountID)
	if err != nil {
		return snapshot.Result{}, fmt.Errorf("recalculate snapshots for account %d: %w", accountID, err)
	}
	defer unlock()

	return s.engine.Recalculate(ctx, accountID, from)
}

// RecalculateBalances rewrites the running balances from from onwards and
// then rebuilds the snapshot chain, in one database transaction. Use it
// after backdated inserts, amount edits or deletions.
func (s *LedgerService) RecalculateBalances(ctx context.Context, accountID int64, from *time.Time) (snapshot.Result, error) {
	unlock, err := s.locks.lock(ctx, accountID)
	if err != nil {
		return snapshot.Result{}, fmt.Errorf("recalculate balances for account %d: %w", accountID, err)
	}
	defer unlock()

	var res snapshot.Result
	err = s.repo.WithTx(ctx, func(tx *storage.Repository) error {
		if _, err := tx.Accounts.Get(ctx, accountID); err != nil {
			return err
		}
		var err error
		res, err = s.rebuildIn(ctx, tx, accountID, from)
		return err
	})
	if err != nil {
		return snapshot.Result{}, fmt.Errorf("recalculate balances for account %d: %w", accountID, err)
	}
	return res, nil
}

// rebuildIn recomputes accumulated values and the snapshot chain through tx.
func (s *LedgerService) rebuildIn(ctx context.Context, tx *storage.Repository, accountID int64, from *time.Time) (snapshot.Result, error) {
	changed, err := tx.Transactions.RecomputeAccumulated(ctx, accountID, from)
	if err != nil {
		return snapshot.Result{}, err
	}
	s.logger.DebugContext(ctx, "Running balances recomputed",
		log.FieldAccountID, accountID,
		log.FieldOperation, log.OpRecalculate,
		log.FieldChanged, changed)
	return s.engine.Bind(tx).Recalculate(ctx, accountID, from)
}

// Balance returns the account balance including every transaction at or
// before at. It starts from the last checkpoint of an earlier day, so it is
// only as fresh as the snapshot chain.
func (s *LedgerService) Balance(ctx context.Context, accountID int64, at time.Time) (int64, error) {
	if _, err := s.repo.Accounts.Get(ctx, accountID); err != nil {
		return 0, fmt.Errorf("balance for account %d: %w", accountID, err)
	}

	var (
		base  int64
		after *time.Time
	)
	snap, err := s.repo.Snapshots.GetLastBefore(ctx, accountID, at)
	switch {
	case err == nil:
		base = snap.Amount
		end := core.EndOfDay(snap.Date)
		after = &end
	case !errors.Is(err, core.ErrNotFound):
		return 0, fmt.Errorf("balance for account %d: %w", accountID, err)
	}

	until := at.UTC().Truncate(time.Second).Add(time.Second)
	sum, err := s.repo.Transactions.Sum(ctx, accountID, after, &until)
	if err != nil {
		return 0, fmt.Errorf("balance for account %d: %w", accountID, err)
	}
	return base + sum, nil
}

// ImportTransactions stores rows under ConflictSkip so re-importing the same
// statement is a no-op, then rebuilds balances from the earliest new row.
// Every row is validated before anything is written, and the inserts commit
// together with the rebuild: a failing batch leaves the account untouched.
func (s *LedgerService) ImportTransactions(ctx context.Context, accountID int64, rows []core.NewTransaction) (core.ImportResult, error) {
	if _, err := s.repo.Accounts.Get(ctx, accountID); err != nil {
		return core.ImportResult{}, fmt.Errorf("import into account %d: %w", accountID, err)
	}

	batch := make([]core.NewTransaction, len(rows))
	for i, row := range rows {
		row.AccountID = accountID
		if err := row.Validate(); err != nil {
			return core.ImportResult{}, fmt.Errorf("import row %d: %w", i+1, err)
		}
		batch[i] = row
	}

	unlock, err := s.locks.lock(ctx, accountID)
	if err != nil {
		return core.ImportResult{}, fmt.Errorf("import into account %d: %w", accountID, err)
	}
	defer unlock()

	var result core.ImportResult
	err = s.repo.WithTx(ctx, func(tx *storage.Repository) error {
		result = core.ImportResult{}
		for i, row := range batch {
			t, inserted, err := tx.Transactions.Insert(ctx, row, core.ConflictSkip)
			if err != nil {
				return fmt.Errorf("import row %d: %w", i+1, err)
			}
			if !inserted {
				result.Skipped++
				continue
			}
			result.Imported++
			if result.Earliest.IsZero() || t.Timestamp.Before(result.Earliest) {
				result.Earliest = t.Timestamp
			}
		}
		if result.Imported == 0 {
			return nil
		}
		from := result.Earliest
		_, err := s.rebuildIn(ctx, tx, accountID, &from)
		return err
	})
	if err != nil {
		return core.ImportResult{}, err
	}

	s.logger.InfoContext(ctx, "Transactions imported",
		log.FieldAccountID, accountID,
		log.FieldOperation, log.OpImport,
		"imported", result.Imported,
		"skipped", result.Skipped)
	return result, nil
}

// EnqueueRecalculate hands a balance rebuild to the worker. Without a
// publisher the rebuild runs inline.
func (s *LedgerService) EnqueueRecalculate(ctx context.Context, accountID int64, from *time.Time) error {
	if s.publisher == nil {
		s.logger.WarnContext(ctx, "AMQP client not available, recalculating inline", log.FieldAccountID, accountID)
		_, err := s.RecalculateBalances(ctx, accountID, from)
		return err
	}
	return s.publisher.PublishJob(ctx, amqp.NewRecalculateJob(accountID, from))
}

// EnqueueRecategorize hands a recategorization sweep to the worker. Without
// a publisher the sweep runs inline.
func (s *LedgerService) EnqueueRecategorize(ctx context.Context, accountID int64, from, to *time.Time, mode core.RecategorizeMode) error {
	if s.publisher == nil {
		s.logger.WarnContext(ctx, "AMQP client not available, recategorizing inline", log.FieldAccountID, accountID)
		_, err := s.RecategorizeTransactions(ctx, accountID, from, to, mode)
		return err
	}
	return s.publisher.PublishJob(ctx, amqp.NewRecategorizeJob(accountID, from, to, mode == core.RecategorizeUncategorized))
}

// HandleJob runs a job received from the queue.
func (s *LedgerService) HandleJob(ctx context.Context, msg *amqp.JobMessage) error {
	switch msg.Kind {
	case amqp.JobRecalculate:
		_, err := s.RecalculateBalances(ctx, msg.AccountID, msg.From)
		return err
	case amqp.JobRecategorize:
		mode := core.RecategorizeAll
		if msg.Uncategorized {
			mode = core.RecategorizeUncategorized
		}
		_, err := s.RecategorizeTransactions(ctx, msg.AccountID, msg.From, msg.To, mode)
		return err
	}
	return fmt.Errorf("unknown job kind %q", msg.Kind)
}

// RebuildAll recomputes balances and snapshots of every account from
// scratch. Concurrent callers share one pass. The pass keeps running when a
// caller gives up and stops only when the service is closed; the caller
// returns as soon as its own ctx ends.
func (s *LedgerService) RebuildAll(ctx context.Context) (int, error) {
	ch := s.rebuilds.DoChan("rebuild-all", func() (any, error) {
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		defer cancel()
		stop := context.AfterFunc(s.lifetime, cancel)
		defer stop()

		return s.rebuildAll(runCtx)
	})

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return 0, r.Err
		}
		return r.Val.(int), nil
	}
}

func (s *LedgerService) rebuildAll(ctx context.Context) (int, error) {
	started := time.Now()
	accounts, err := s.repo.Accounts.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list accounts: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rebuildParallelism)
	for _, account := range accounts {
		g.Go(func() error {
			if _, err := s.RecalculateBalances(gctx, account.ID, nil); err != nil {
				s.logger.LogError(gctx, "Account rebuild failed", err, log.FieldAccountID, account.ID)
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, fmt.Errorf("rebuild accounts: %w", err)
	}

	s.logger.InfoContext(ctx, "All accounts rebuilt",
		log.FieldOperation, log.OpRebuild,
		"accounts", len(accounts),
		log.FieldDuration, time.Since(started).Milliseconds())
	return len(accounts), nil
}

// Close stops any shared rebuild, then closes storage and the job publisher.
func (s *LedgerService) Close() error {
	s.shutdown()

	var errs []error

	if s.repo != nil {
		if err := s.repo.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close ledger service: %w", errors.Join(errs...))
	}
	return nil
}
