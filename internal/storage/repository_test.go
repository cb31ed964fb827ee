package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ledger/internal/core"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func newTestAccount(t *testing.T, repo *Repository) core.Account {
	t.Helper()
	ctx := context.Background()
	user, err := repo.Users.Create(ctx, "alice")
	require.NoError(t, err)
	acct, err := repo.Accounts.Create(ctx, user.ID, "checking")
	require.NoError(t, err)
	return acct
}

func TestRebind(t *testing.T) {
	pg := conn{dialect: DialectPostgres}
	require.Equal(t,
		"SELECT a FROM t WHERE x = $1 AND y < $2",
		pg.rebind("SELECT a FROM t WHERE x = ? AND y < ?"))

	lite := conn{dialect: DialectSQLite}
	require.Equal(t, "x = ?", lite.rebind("x = ?"))
}

func TestUsersAndAccounts(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	user, err := repo.Users.Create(ctx, "bob")
	require.NoError(t, err)

	got, err := repo.Users.GetByName(ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)

	a1, err := repo.Accounts.Create(ctx, user.ID, "checking")
	require.NoError(t, err)
	_, err = repo.Accounts.Create(ctx, user.ID, "savings")
	require.NoError(t, err)

	require.NoError(t, repo.Accounts.SetName(ctx, a1.ID, "main"))
	a1, err = repo.Accounts.Get(ctx, a1.ID)
	require.NoError(t, err)
	require.Equal(t, "main", a1.Name)

	accounts, err := repo.Accounts.ListByUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	require.Equal(t, a1.ID, accounts[0].ID)

	_, err = repo.Accounts.Get(ctx, 9999)
	require.ErrorIs(t, err, core.ErrNotFound)

	_, err = repo.Accounts.Create(ctx, 9999, "orphan")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestRulesKeepInsertionOrder(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	user, err := repo.Users.Create(ctx, "carol")
	require.NoError(t, err)
	other, err := repo.Users.Create(ctx, "dave")
	require.NoError(t, err)
	cat, err := repo.Categories.Create(ctx, "groceries", "food shopping")
	require.NoError(t, err)

	r1, err := repo.Rules.Create(ctx, user.ID, "^A", cat.ID)
	require.NoError(t, err)
	_, err = repo.Rules.Create(ctx, other.ID, "zzz", cat.ID)
	require.NoError(t, err)
	r3, err := repo.Rules.Create(ctx, user.ID, "A.*B", cat.ID)
	require.NoError(t, err)

	rules, err := repo.Rules.ListByUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	require.Equal(t, r1.ID, rules[0].ID)
	require.Equal(t, r3.ID, rules[1].ID)

	require.NoError(t, repo.Rules.Delete(ctx, r1.ID))
	require.ErrorIs(t, repo.Rules.Delete(ctx, r1.ID), core.ErrNotFound)

	_, err = repo.Rules.Get(ctx, r1.ID)
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestCategoryDeleteClearsTransactions(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	acct := newTestAccount(t, repo)

	cat, err := repo.Categories.Create(ctx, "rent", "")
	require.NoError(t, err)

	tx, err := repo.Transactions.Create(ctx, core.NewTransaction{
		AccountID:   acct.ID,
		Description: "landlord",
		Timestamp:   time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		CategoryID:  &cat.ID,
		Amount:      -90000,
	}, core.ConflictError)
	require.NoError(t, err)

	require.NoError(t, repo.Categories.Delete(ctx, cat.ID))

	tx, err = repo.Transactions.Get(ctx, tx.ID)
	require.NoError(t, err)
	require.Nil(t, tx.CategoryID)

	categories, err := repo.Categories.List(ctx)
	require.NoError(t, err)
	require.Empty(t, categories)
}

func TestWithTxRollsBack(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	acct := newTestAccount(t, repo)

	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	err := repo.WithTx(ctx, func(tx *Repository) error {
		if err := tx.Snapshots.Insert(ctx, core.Snapshot{AccountID: acct.ID, Date: day, Amount: 10}); err != nil {
			return err
		}
		return core.ErrConflict
	})
	require.ErrorIs(t, err, core.ErrConflict)

	snaps, err := repo.Snapshots.List(ctx, acct.ID)
	require.NoError(t, err)
	require.Empty(t, snaps)
}

func TestWithTxCancelledContext(t *testing.T) {
	repo := newTestRepository(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := repo.WithTx(ctx, func(*Repository) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, core.ErrStorage)
	require.False(t, called)
}
