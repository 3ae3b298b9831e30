package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JakeFAU/lottery-crawler/internal/lottery"
)

// LogCrawlTask appends a crawl_tasks row.
func (s *Store) LogCrawlTask(ctx context.Context, code string, status lottery.TaskStatus) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO crawl_tasks (lottery_code, crawl_time, status) VALUES ($1, $2, $3)`,
		code, s.clock.Now(), string(status),
	)
	if err != nil {
		return fmt.Errorf("insert crawl task %s: %w", code, err)
	}
	return nil
}

// LogCrawlError appends an unfixed crawl_errors row.
func (s *Store) LogCrawlError(ctx context.Context, code string, kind lottery.ErrorKind, message string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO crawl_errors (lottery_code, error_type, error_message, crawl_time) VALUES ($1, $2, $3, $4)`,
		code, string(kind), message, s.clock.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert crawl error %s: %w", code, err)
	}
	return nil
}

// MarkAllErrorsFixed resolves every open error of code.
func (s *Store) MarkAllErrorsFixed(ctx context.Context, code, note string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE crawl_errors SET is_fixed = TRUE, fix_time = $1, fix_note = $2
		WHERE lottery_code = $3 AND is_fixed = FALSE`,
		s.clock.Now(), note, code,
	)
	if err != nil {
		return 0, fmt.Errorf("mark errors fixed %s: %w", code, err)
	}
	return tag.RowsAffected(), nil
}

// MarkErrorsFixedBefore resolves open errors of code recorded before cutoff.
func (s *Store) MarkErrorsFixedBefore(ctx context.Context, code, note string, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE crawl_errors SET is_fixed = TRUE, fix_time = $1, fix_note = $2
		WHERE lottery_code = $3 AND is_fixed = FALSE AND crawl_time < $4`,
		s.clock.Now(), note, code, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("mark errors fixed before %s: %w", code, err)
	}
	return tag.RowsAffected(), nil
}

// MarkErrorFixed resolves one error by id.
func (s *Store) MarkErrorFixed(ctx context.Context, id int64, note string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE crawl_errors SET is_fixed = TRUE, fix_time = $1, fix_note = $2 WHERE id = $3`,
		s.clock.Now(), note, id,
	)
	if err != nil {
		return fmt.Errorf("mark error %d fixed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("crawl error %d: %w", id, lottery.ErrNotFound)
	}
	return nil
}

// HasUnfixedErrors reports open errors of code, or of any code when code is empty.
func (s *Store) HasUnfixedErrors(ctx context.Context, code string) (bool, error) {
	q := psql.Select("1").From("crawl_errors").Where(squirrel.Eq{"is_fixed": false})
	if code != "" {
		q = q.Where(squirrel.Eq{"lottery_code": code})
	}
	ok, err := s.exists(ctx, q)
	if err != nil {
		return false, fmt.Errorf("check unfixed errors: %w", err)
	}
	return ok, nil
}

// HasSuccessfulTask reports a SUCCESS task of code in [from, to).
func (s *Store) HasSuccessfulTask(ctx context.Context, code string, from, to time.Time) (bool, error) {
	q := psql.Select("1").From("crawl_tasks").Where(squirrel.And{
		squirrel.Eq{"lottery_code": code, "status": string(lottery.TaskSuccess)},
		squirrel.GtOrEq{"crawl_time": from},
		squirrel.Lt{"crawl_time": to},
	})
	ok, err := s.exists(ctx, q)
	if err != nil {
		return false, fmt.Errorf("check successful task: %w", err)
	}
	return ok, nil
}

// ListErrors returns error rows newest first.
func (s *Store) ListErrors(ctx context.Context, code string, onlyUnfixed bool, limit int) ([]lottery.CrawlError, error) {
	q := psql.Select("id", "lottery_code", "error_type", "error_message", "crawl_time", "is_fixed", "fix_time", "fix_note").
		From("crawl_errors").
		OrderBy("crawl_time DESC", "id DESC").
		Limit(uint64(max(limit, 1)))
	if code != "" {
		q = q.Where(squirrel.Eq{"lottery_code": code})
	}
	if onlyUnfixed {
		q = q.Where(squirrel.Eq{"is_fixed": false})
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list errors: %w", err)
	}
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list crawl errors: %w", err)
	}
	defer rows.Close()

	out := []lottery.CrawlError{}
	for rows.Next() {
		var (
			e       lottery.CrawlError
			kind    string
			fixTime pgtype.Timestamptz
			fixNote pgtype.Text
		)
		if err := rows.Scan(&e.ID, &e.LotteryCode, &kind, &e.ErrorMessage, &e.CrawlTime, &e.IsFixed, &fixTime, &fixNote); err != nil {
			return nil, fmt.Errorf("scan crawl error: %w", err)
		}
		e.ErrorType = lottery.ErrorKind(kind)
		if fixTime.Valid {
			t := fixTime.Time
			e.FixTime = &t
		}
		e.FixNote = fixNote.String
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate crawl errors: %w", err)
	}
	return out, nil
}
