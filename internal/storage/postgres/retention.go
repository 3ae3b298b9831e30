package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/JakeFAU/lottery-crawler/internal/lottery"
)

// AllResults returns every draw for the backup snapshot.
func (s *Store) AllResults(ctx context.Context) ([]lottery.DrawResult, error) {
	return s.queryDraws(ctx, selectDraws().OrderBy("type_id", "draw_date DESC", "issue DESC"))
}

// DeleteResultsBefore removes draws dated strictly before the given day.
func (s *Store) DeleteResultsBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM draw_results WHERE draw_date < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("delete old draws: %w", err)
	}
	return tag.RowsAffected(), nil
}

// LogCleanup inserts a cleanup_logs row.
func (s *Store) LogCleanup(ctx context.Context, entry lottery.CleanupLog) error {
	at := entry.CleanupTime
	if at.IsZero() {
		at = s.clock.Now()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO cleanup_logs (cleanup_time, deleted_rows, backup_file, status, error_message)
		VALUES ($1, $2, $3, $4, $5)`,
		at, entry.DeletedRows, entry.BackupFile, entry.Status, entry.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("insert cleanup log: %w", err)
	}
	return nil
}

// ListCleanupLogs returns cleanup rows newest first.
func (s *Store) ListCleanupLogs(ctx context.Context, limit int) ([]lottery.CleanupLog, error) {
	sql, args, err := psql.Select("id", "cleanup_time", "deleted_rows", "backup_file", "status", "error_message").
		From("cleanup_logs").
		OrderBy("cleanup_time DESC", "id DESC").
		Limit(uint64(max(limit, 1))).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list cleanup logs: %w", err)
	}
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list cleanup logs: %w", err)
	}
	defer rows.Close()

	out := []lottery.CleanupLog{}
	for rows.Next() {
		var l lottery.CleanupLog
		if err := rows.Scan(&l.ID, &l.CleanupTime, &l.DeletedRows, &l.BackupFile, &l.Status, &l.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scan cleanup log: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cleanup logs: %w", err)
	}
	return out, nil
}
