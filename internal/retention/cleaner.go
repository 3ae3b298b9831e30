// Package retention backs up draw results and prunes rows past the retention window.
package retention

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/lottery-crawler/internal/lottery"
	"github.com/JakeFAU/lottery-crawler/internal/metrics"
)

// BackupLayout names backup snapshots, e.g. lottery_backup_20251207_020000.json.
const BackupLayout = "lottery_backup_20060102_150405.json"

// Config controls the retention window.
type Config struct {
	Days     int
	Location *time.Location
}

// Result summarizes one cleanup run.
type Result struct {
	DeletedRows int64     `json:"deleted_rows"`
	BackupFile  string    `json:"backup_file"`
	Cutoff      time.Time `json:"cutoff"`
}

type snapshot struct {
	CreatedAt time.Time            `json:"created_at"`
	Count     int                  `json:"count"`
	Results   []lottery.DrawResult `json:"results"`
}

// Cleaner runs the backup-then-delete job.
type Cleaner struct {
	cfg    Config
	store  lottery.RetentionStore
	backup lottery.BlobStore
	clock  lottery.Clock
	logger *zap.Logger
}

// NewCleaner builds a Cleaner. A nil backup disables snapshots.
func NewCleaner(cfg Config, store lottery.RetentionStore, backup lottery.BlobStore, clock lottery.Clock, logger *zap.Logger) *Cleaner {
	if cfg.Days <= 0 {
		cfg.Days = 365
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cleaner{cfg: cfg, store: store, backup: backup, clock: clock, logger: logger.Named("retention")}
}

// Cutoff returns the first calendar date that is kept.
func (c *Cleaner) Cutoff() time.Time {
	local := c.clock.Now().In(c.cfg.Location).AddDate(0, 0, -c.cfg.Days)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// Run snapshots every draw to the backup sink, then deletes draws dated before
// the cutoff. A failed backup is logged and the cleanup proceeds.
func (c *Cleaner) Run(ctx context.Context) (Result, error) {
	now := c.clock.Now()
	res := Result{Cutoff: c.Cutoff()}

	uri, err := c.writeBackup(ctx, now)
	if err != nil {
		c.logger.Warn("backup failed; continuing cleanup", zap.Error(err))
	}
	res.BackupFile = uri

	deleted, err := c.store.DeleteResultsBefore(ctx, res.Cutoff)
	if err != nil {
		err = fmt.Errorf("delete draws before %s: %w", res.Cutoff.Format(lottery.DateLayout), err)
		c.logger.Error("cleanup failed", zap.Error(err))
		metrics.ObserveCleanup(lottery.CleanupError, 0)
		if logErr := c.store.LogCleanup(ctx, lottery.CleanupLog{
			CleanupTime:  now,
			BackupFile:   uri,
			Status:       lottery.CleanupError,
			ErrorMessage: err.Error(),
		}); logErr != nil {
			c.logger.Error("record cleanup log", zap.Error(logErr))
		}
		return res, err
	}
	res.DeletedRows = deleted
	metrics.ObserveCleanup(lottery.CleanupSuccess, deleted)

	if err := c.store.LogCleanup(ctx, lottery.CleanupLog{
		CleanupTime: now,
		DeletedRows: deleted,
		BackupFile:  uri,
		Status:      lottery.CleanupSuccess,
	}); err != nil {
		return res, fmt.Errorf("record cleanup log: %w", err)
	}
	c.logger.Info("cleanup complete",
		zap.Int64("deleted_rows", deleted),
		zap.String("backup_file", uri),
		zap.String("cutoff", res.Cutoff.Format(lottery.DateLayout)),
	)
	return res, nil
}

func (c *Cleaner) writeBackup(ctx context.Context, now time.Time) (string, error) {
	if c.backup == nil {
		return "", nil
	}
	rows, err := c.store.AllResults(ctx)
	if err != nil {
		return "", fmt.Errorf("load draws: %w", err)
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(snapshot{CreatedAt: now, Count: len(rows), Results: rows}); err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	name := now.In(c.cfg.Location).Format(BackupLayout)
	uri, err := c.backup.PutObject(ctx, name, "application/json", &buf)
	if err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	return uri, nil
}
