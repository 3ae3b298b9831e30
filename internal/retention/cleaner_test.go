package retention

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/lottery-crawler/internal/clock/system"
	"github.com/JakeFAU/lottery-crawler/internal/lottery"
	"github.com/JakeFAU/lottery-crawler/internal/storage/memory"
)

var shanghai = time.FixedZone("CST", 8*3600)

func seed(t *testing.T, store *memory.Store, dates ...string) {
	t.Helper()
	for i, d := range dates {
		day, err := time.Parse(lottery.DateLayout, d)
		require.NoError(t, err)
		require.NoError(t, store.SaveResult(context.Background(), lottery.DrawResult{
			TypeID:   1,
			Issue:    day.Format("2006") + string(rune('0'+i)),
			DrawDate: day,
			RedBalls: []string{"01"},
		}))
	}
}

func TestRunBacksUpThenDeletes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := system.NewFrozen(time.Date(2025, 12, 7, 2, 0, 0, 0, shanghai))
	store := memory.NewStore(memory.WithClock(clk))
	blobs := memory.NewBlobStore()
	seed(t, store, "2024-12-06", "2024-12-07", "2025-12-04")

	cleaner := NewCleaner(Config{Days: 365, Location: shanghai}, store, blobs, clk, nil)
	res, err := cleaner.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), res.DeletedRows)
	require.Equal(t, "2024-12-07", res.Cutoff.Format(lottery.DateLayout))
	require.Equal(t, "memory://lottery_backup_20251207_020000.json", res.BackupFile)

	raw, ok := blobs.Object("lottery_backup_20251207_020000.json")
	require.True(t, ok)
	var snap snapshot
	require.NoError(t, json.Unmarshal(raw, &snap))
	require.Equal(t, 3, snap.Count)

	n, err := store.CountResults(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	logs, err := store.ListCleanupLogs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, lottery.CleanupSuccess, logs[0].Status)
	require.Equal(t, int64(1), logs[0].DeletedRows)
	require.Equal(t, res.BackupFile, logs[0].BackupFile)
}

func TestRunContinuesWhenBackupFails(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := system.NewFrozen(time.Date(2025, 12, 7, 2, 0, 0, 0, shanghai))
	store := memory.NewStore(memory.WithClock(clk))
	blobs := memory.NewBlobStore()
	blobs.FailWith(errors.New("bucket missing"))
	seed(t, store, "2023-01-01")

	res, err := NewCleaner(Config{Location: shanghai}, store, blobs, clk, nil).Run(ctx)
	require.NoError(t, err)
	require.Empty(t, res.BackupFile)
	require.Equal(t, int64(1), res.DeletedRows)

	logs, err := store.ListCleanupLogs(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, lottery.CleanupSuccess, logs[0].Status)
	require.Empty(t, logs[0].BackupFile)
}

func TestRunWithoutBackupSink(t *testing.T) {
	t.Parallel()

	clk := system.NewFrozen(time.Date(2025, 12, 7, 2, 0, 0, 0, time.UTC))
	store := memory.NewStore()
	res, err := NewCleaner(Config{Days: 30}, store, nil, clk, nil).Run(context.Background())
	require.NoError(t, err)
	require.Empty(t, res.BackupFile)
	require.Equal(t, "2025-11-07", res.Cutoff.Format(lottery.DateLayout))
}

type failingDelete struct {
	*memory.Store
}

func (failingDelete) DeleteResultsBefore(context.Context, time.Time) (int64, error) {
	return 0, errors.New("disk I/O error")
}

func TestRunRecordsDeleteFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := system.NewFrozen(time.Date(2025, 12, 7, 2, 0, 0, 0, time.UTC))
	inner := memory.NewStore()
	store := failingDelete{Store: inner}

	_, err := NewCleaner(Config{}, store, memory.NewBlobStore(), clk, nil).Run(ctx)
	require.Error(t, err)

	logs, err := inner.ListCleanupLogs(ctx, 1)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, lottery.CleanupError, logs[0].Status)
	require.Contains(t, logs[0].ErrorMessage, "disk I/O error")
}
