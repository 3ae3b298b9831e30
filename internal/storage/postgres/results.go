package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/lottery-crawler/internal/lottery"
)

var drawColumns = []string{
	"type_id", "issue", "draw_date", "red_balls", "blue_balls", "sales", "pool_money",
	"first_prize_count", "first_prize_amount", "second_prize_count", "second_prize_amount",
}

const upsertResultSQL = `
INSERT INTO draw_results (
	type_id, issue, draw_date, red_balls, blue_balls, sales, pool_money,
	first_prize_count, first_prize_amount, second_prize_count, second_prize_amount
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (type_id, issue) DO UPDATE SET
	draw_date = EXCLUDED.draw_date,
	red_balls = EXCLUDED.red_balls,
	blue_balls = EXCLUDED.blue_balls,
	sales = EXCLUDED.sales,
	pool_money = EXCLUDED.pool_money,
	first_prize_count = EXCLUDED.first_prize_count,
	first_prize_amount = EXCLUDED.first_prize_amount,
	second_prize_count = EXCLUDED.second_prize_count,
	second_prize_amount = EXCLUDED.second_prize_amount,
	updated_at = NOW()`

const redFrequencySQL = `
SELECT ball, COUNT(*) AS hits
FROM (SELECT TRIM(unnest(red_balls)) AS ball FROM draw_results WHERE type_id = $1) r
WHERE ball <> ''
GROUP BY ball
ORDER BY hits DESC, ball`

const blueFrequencySQL = `
SELECT ball, COUNT(*) AS hits
FROM (
	SELECT TRIM(unnest(string_to_array(blue_balls, ','))) AS ball
	FROM draw_results WHERE type_id = $1 AND blue_balls <> ''
) b
WHERE ball <> ''
GROUP BY ball
ORDER BY hits DESC, ball`

// LookupTypeID resolves a lottery code, caching hits since the set is static.
func (s *Store) LookupTypeID(ctx context.Context, code string) (int64, error) {
	if id, ok := s.typeIDs.Get(code); ok {
		return id, nil
	}
	var id int64
	err := s.pool.QueryRow(ctx, `SELECT id FROM lottery_types WHERE code = $1`, code).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("lookup %q: %w", code, lottery.ErrUnknownType)
	}
	if err != nil {
		return 0, fmt.Errorf("lookup lottery type %q: %w", code, err)
	}
	s.typeIDs.Add(code, id)
	return id, nil
}

// ListTypes returns every lottery type ordered by id.
func (s *Store) ListTypes(ctx context.Context) ([]lottery.Type, error) {
	sql, args, err := psql.Select("id", "name", "code", "description").
		From("lottery_types").OrderBy("id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list types: %w", err)
	}
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list lottery types: %w", err)
	}
	defer rows.Close()

	out := []lottery.Type{}
	for rows.Next() {
		var t lottery.Type
		if err := rows.Scan(&t.ID, &t.Name, &t.Code, &t.Description); err != nil {
			return nil, fmt.Errorf("scan lottery type: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lottery types: %w", err)
	}
	return out, nil
}

// SaveResult upserts one draw keyed by (type_id, issue).
func (s *Store) SaveResult(ctx context.Context, r lottery.DrawResult) error {
	red := r.RedBalls
	if red == nil {
		red = []string{}
	}
	_, err := s.pool.Exec(ctx, upsertResultSQL,
		r.TypeID, r.Issue, r.DrawDate, red, r.BlueBalls, r.Sales, r.PoolMoney,
		r.FirstPrizeCount, r.FirstPrizeAmount, r.SecondPrizeCount, r.SecondPrizeAmount,
	)
	if err != nil {
		return fmt.Errorf("upsert draw %d/%s: %w", r.TypeID, r.Issue, err)
	}
	return nil
}

func selectDraws() squirrel.SelectBuilder {
	return psql.Select(drawColumns...).From("draw_results")
}

func scanDraw(row pgx.Row) (lottery.DrawResult, error) {
	var r lottery.DrawResult
	err := row.Scan(
		&r.TypeID, &r.Issue, &r.DrawDate, &r.RedBalls, &r.BlueBalls, &r.Sales, &r.PoolMoney,
		&r.FirstPrizeCount, &r.FirstPrizeAmount, &r.SecondPrizeCount, &r.SecondPrizeAmount,
	)
	return r, err
}

func (s *Store) queryDraws(ctx context.Context, q squirrel.SelectBuilder) ([]lottery.DrawResult, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build draw query: %w", err)
	}
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query draws: %w", err)
	}
	defer rows.Close()

	out := []lottery.DrawResult{}
	for rows.Next() {
		r, err := scanDraw(rows)
		if err != nil {
			return nil, fmt.Errorf("scan draw: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate draws: %w", err)
	}
	return out, nil
}

// LatestResults returns up to limit draws, newest first.
func (s *Store) LatestResults(ctx context.Context, typeID int64, limit int) ([]lottery.DrawResult, error) {
	return s.ResultHistory(ctx, typeID, 0, limit)
}

// ResultHistory returns one page of draws, newest first.
func (s *Store) ResultHistory(ctx context.Context, typeID int64, offset, limit int) ([]lottery.DrawResult, error) {
	limit = max(limit, 1)
	offset = max(offset, 0)
	q := selectDraws().
		Where(squirrel.Eq{"type_id": typeID}).
		OrderBy("draw_date DESC", "issue DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset))
	return s.queryDraws(ctx, q)
}

// CountResults counts draws of one type.
func (s *Store) CountResults(ctx context.Context, typeID int64) (int64, error) {
	sql, args, err := psql.Select("COUNT(*)").From("draw_results").
		Where(squirrel.Eq{"type_id": typeID}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}
	var n int64
	if err := s.pool.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count draws: %w", err)
	}
	return n, nil
}

// ResultByIssue returns one draw or lottery.ErrNotFound.
func (s *Store) ResultByIssue(ctx context.Context, typeID int64, issue string) (lottery.DrawResult, error) {
	sql, args, err := selectDraws().
		Where(squirrel.Eq{"type_id": typeID, "issue": issue}).ToSql()
	if err != nil {
		return lottery.DrawResult{}, fmt.Errorf("build issue query: %w", err)
	}
	r, err := scanDraw(s.pool.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return lottery.DrawResult{}, fmt.Errorf("issue %s: %w", issue, lottery.ErrNotFound)
	}
	if err != nil {
		return lottery.DrawResult{}, fmt.Errorf("query issue %s: %w", issue, err)
	}
	return r, nil
}

// BallFrequency counts red and blue balls across all draws of one type.
func (s *Store) BallFrequency(ctx context.Context, typeID int64) (lottery.BallFrequency, error) {
	red, err := s.ballCounts(ctx, redFrequencySQL, typeID)
	if err != nil {
		return lottery.BallFrequency{}, fmt.Errorf("red frequency: %w", err)
	}
	blue, err := s.ballCounts(ctx, blueFrequencySQL, typeID)
	if err != nil {
		return lottery.BallFrequency{}, fmt.Errorf("blue frequency: %w", err)
	}
	return lottery.BallFrequency{Red: red, Blue: blue}, nil
}

func (s *Store) ballCounts(ctx context.Context, sql string, typeID int64) ([]lottery.BallCount, error) {
	rows, err := s.pool.Query(ctx, sql, typeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []lottery.BallCount{}
	for rows.Next() {
		var bc lottery.BallCount
		if err := rows.Scan(&bc.Ball, &bc.Count); err != nil {
			return nil, err
		}
		out = append(out, bc)
	}
	return out, rows.Err()
}
