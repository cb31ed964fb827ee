package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ledger/internal/core"
)

func TestSnapshotStoreQueries(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	acct := newTestAccount(t, repo)

	for day, amount := range map[int]int64{1: 500, 3: 600, 7: 550} {
		require.NoError(t, repo.Snapshots.Insert(ctx, core.Snapshot{
			AccountID: acct.ID, Date: at(day, 0), Amount: amount,
		}))
	}

	snap, err := repo.Snapshots.Get(ctx, acct.ID, at(3, 15))
	require.NoError(t, err)
	require.Equal(t, int64(600), snap.Amount)

	_, err = repo.Snapshots.Get(ctx, acct.ID, at(2, 0))
	require.ErrorIs(t, err, core.ErrNotFound)

	last, err := repo.Snapshots.GetLast(ctx, acct.ID, at(5, 0))
	require.NoError(t, err)
	require.True(t, last.Date.Equal(at(3, 0)))

	last, err = repo.Snapshots.GetLast(ctx, acct.ID, at(3, 0))
	require.NoError(t, err)
	require.True(t, last.Date.Equal(at(3, 0)))

	before, err := repo.Snapshots.GetLastBefore(ctx, acct.ID, at(3, 12))
	require.NoError(t, err)
	require.True(t, before.Date.Equal(at(1, 0)))

	_, err = repo.Snapshots.GetLastBefore(ctx, acct.ID, at(1, 12))
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestSnapshotDeleteByDateRange(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	acct := newTestAccount(t, repo)

	for day := 1; day <= 5; day++ {
		require.NoError(t, repo.Snapshots.Insert(ctx, core.Snapshot{
			AccountID: acct.ID, Date: at(day, 0), Amount: int64(day),
		}))
	}

	_, err := repo.Snapshots.DeleteByDateRange(ctx, acct.ID, nil, nil)
	require.ErrorIs(t, err, core.ErrInvalidRange)

	after, before := at(4, 0), at(2, 0)
	_, err = repo.Snapshots.DeleteByDateRange(ctx, acct.ID, &after, &before)
	require.ErrorIs(t, err, core.ErrInvalidRange)

	after = at(3, 12)
	n, err := repo.Snapshots.DeleteByDateRange(ctx, acct.ID, &after, nil)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	before = at(2, 0)
	n, err = repo.Snapshots.DeleteByDateRange(ctx, acct.ID, nil, &before)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	snaps, err := repo.Snapshots.List(ctx, acct.ID)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	require.True(t, snaps[0].Date.Equal(at(2, 0)))
	require.True(t, snaps[1].Date.Equal(at(3, 0)))

	n, err = repo.Snapshots.DeleteAll(ctx, acct.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	require.Equal(t, time.UTC, snaps[0].Date.Location())
}
