// Package crawl sequences fetching, normalization and persistence for each
// configured lottery type, gated by the daily success check and the error ledger.
package crawl

import (
	"context"
	"fmt"
	"time"

	"github.com/JakeFAU/lottery-crawler/internal/lottery"
)

// Gate decides whether a type needs crawling today and whether scheduled
// runs are blocked by unresolved errors.
type Gate struct {
	ledger lottery.Ledger
	clock  lottery.Clock
	loc    *time.Location
}

// NewGate builds a Gate that evaluates "today" in loc.
func NewGate(ledger lottery.Ledger, clock lottery.Clock, loc *time.Location) *Gate {
	if loc == nil {
		loc = time.UTC
	}
	return &Gate{ledger: ledger, clock: clock, loc: loc}
}

// Today returns the [start, end) bounds of the current calendar day in the
// gate's timezone.
func (g *Gate) Today() (time.Time, time.Time) {
	now := g.clock.Now().In(g.loc)
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, g.loc)
	return start, start.AddDate(0, 0, 1)
}

// CanCrawl reports whether code should be crawled. force always permits.
func (g *Gate) CanCrawl(ctx context.Context, code string, force bool) (bool, error) {
	if force {
		return true, nil
	}
	from, to := g.Today()
	done, err := g.ledger.HasSuccessfulTask(ctx, code, from, to)
	if err != nil {
		return false, fmt.Errorf("check today's crawl for %s: %w", code, err)
	}
	return !done, nil
}

// HasUnfixedErrors reports open ledger errors for code ("" means any code).
func (g *Gate) HasUnfixedErrors(ctx context.Context, code string) (bool, error) {
	open, err := g.ledger.HasUnfixedErrors(ctx, code)
	if err != nil {
		return false, fmt.Errorf("check unfixed errors: %w", err)
	}
	return open, nil
}
