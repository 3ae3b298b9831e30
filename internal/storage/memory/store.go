package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/lottery-crawler/internal/lottery"
)

// DefaultTypes is the reference set seeded into a new Store.
var DefaultTypes = []lottery.Type{
	{ID: 1, Name: "双色球", Code: lottery.CodeSSQ, Description: "每周二、四、日21:15开奖"},
	{ID: 2, Name: "快乐8", Code: lottery.CodeKL8, Description: "每日21:30开奖"},
	{ID: 3, Name: "七乐彩", Code: lottery.CodeQLC, Description: "每周一、三、五21:15开奖"},
	{ID: 4, Name: "福彩3D", Code: lottery.Code3D, Description: "每日21:15开奖"},
}

type resultKey struct {
	typeID int64
	issue  string
}

// Store is an in-memory lottery.Store for development and tests.
type Store struct {
	mu       sync.RWMutex
	now      func() time.Time
	types    []lottery.Type
	results  map[resultKey]lottery.DrawResult
	tasks    []lottery.CrawlTask
	errs     []lottery.CrawlError
	cleanups []lottery.CleanupLog
	nextID   int64
	pingErr  error
}

// StoreOption customizes a Store.
type StoreOption func(*Store)

// WithClock sets the time source used for ledger timestamps.
func WithClock(clock lottery.Clock) StoreOption {
	return func(s *Store) {
		s.now = clock.Now
	}
}

// WithTypes replaces the seeded lottery types.
func WithTypes(types []lottery.Type) StoreOption {
	return func(s *Store) {
		s.types = slices.Clone(types)
	}
}

// NewStore builds a Store seeded with DefaultTypes.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		now:     func() time.Time { return time.Now().UTC() },
		types:   slices.Clone(DefaultTypes),
		results: make(map[resultKey]lottery.DrawResult),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetPingError makes Ping report err (nil restores health).
func (s *Store) SetPingError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pingErr = err
}

// Ping reports the configured health error.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pingErr
}

// Close is a no-op.
func (s *Store) Close() {}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// LookupTypeID resolves a lottery code.
func (s *Store) LookupTypeID(_ context.Context, code string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.types {
		if t.Code == code {
			return t.ID, nil
		}
	}
	return 0, fmt.Errorf("lookup %q: %w", code, lottery.ErrUnknownType)
}

// ListTypes returns the reference set ordered by id.
func (s *Store) ListTypes(_ context.Context) ([]lottery.Type, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := slices.Clone(s.types)
	slices.SortFunc(out, func(a, b lottery.Type) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// SaveResult inserts or replaces the row for (TypeID, Issue).
func (s *Store) SaveResult(_ context.Context, result lottery.DrawResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	result.RedBalls = slices.Clone(result.RedBalls)
	s.results[resultKey{typeID: result.TypeID, issue: result.Issue}] = result
	return nil
}

// LogCrawlTask appends a task row stamped with the current time.
func (s *Store) LogCrawlTask(_ context.Context, code string, status lottery.TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, lottery.CrawlTask{
		ID:          s.id(),
		LotteryCode: code,
		CrawlTime:   s.now(),
		Status:      status,
	})
	return nil
}

// LogCrawlError appends an unfixed error row.
func (s *Store) LogCrawlError(_ context.Context, code string, kind lottery.ErrorKind, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, lottery.CrawlError{
		ID:           s.id(),
		LotteryCode:  code,
		ErrorType:    kind,
		ErrorMessage: message,
		CrawlTime:    s.now(),
	})
	return nil
}

// MarkAllErrorsFixed resolves every unfixed error for code.
func (s *Store) MarkAllErrorsFixed(_ context.Context, code, note string) (int64, error) {
	return s.markFixed(func(e lottery.CrawlError) bool { return e.LotteryCode == code }, note), nil
}

// MarkErrorsFixedBefore resolves unfixed errors for code recorded before cutoff.
func (s *Store) MarkErrorsFixedBefore(_ context.Context, code, note string, cutoff time.Time) (int64, error) {
	return s.markFixed(func(e lottery.CrawlError) bool {
		return e.LotteryCode == code && e.CrawlTime.Before(cutoff)
	}, note), nil
}

// MarkErrorFixed resolves one error by id.
func (s *Store) MarkErrorFixed(_ context.Context, id int64, note string) error {
	if s.markFixed(func(e lottery.CrawlError) bool { return e.ID == id }, note) == 0 {
		s.mu.RLock()
		defer s.mu.RUnlock()
		for _, e := range s.errs {
			if e.ID == id {
				return nil
			}
		}
		return fmt.Errorf("crawl error %d: %w", id, lottery.ErrNotFound)
	}
	return nil
}

func (s *Store) markFixed(match func(lottery.CrawlError) bool, note string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var n int64
	for i := range s.errs {
		if s.errs[i].IsFixed || !match(s.errs[i]) {
			continue
		}
		fixed := now
		s.errs[i].IsFixed = true
		s.errs[i].FixTime = &fixed
		s.errs[i].FixNote = note
		n++
	}
	return n
}

// HasUnfixedErrors reports open errors for code, or for any code when code is empty.
func (s *Store) HasUnfixedErrors(_ context.Context, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.errs {
		if !e.IsFixed && (code == "" || e.LotteryCode == code) {
			return true, nil
		}
	}
	return false, nil
}

// HasSuccessfulTask reports a SUCCESS task for code with crawl time in [from, to).
func (s *Store) HasSuccessfulTask(_ context.Context, code string, from, to time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tasks {
		if t.LotteryCode == code && t.Status == lottery.TaskSuccess &&
			!t.CrawlTime.Before(from) && t.CrawlTime.Before(to) {
			return true, nil
		}
	}
	return false, nil
}

// ListErrors returns errors newest first.
func (s *Store) ListErrors(_ context.Context, code string, onlyUnfixed bool, limit int) ([]lottery.CrawlError, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]lottery.CrawlError, 0, len(s.errs))
	for i := len(s.errs) - 1; i >= 0; i-- {
		e := s.errs[i]
		if code != "" && e.LotteryCode != code {
			continue
		}
		if onlyUnfixed && e.IsFixed {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Tasks returns a copy of the task ledger in insertion order.
func (s *Store) Tasks() []lottery.CrawlTask {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.tasks)
}

// Errors returns a copy of the error ledger in insertion order.
func (s *Store) Errors() []lottery.CrawlError {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.errs)
}

// sortedResults returns the rows of typeID (all types when typeID is 0),
// newest draw first. Callers hold the read lock.
func (s *Store) sortedResults(typeID int64) []lottery.DrawResult {
	out := make([]lottery.DrawResult, 0, len(s.results))
	for k, r := range s.results {
		if typeID == 0 || k.typeID == typeID {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b lottery.DrawResult) int {
		if c := b.DrawDate.Compare(a.DrawDate); c != 0 {
			return c
		}
		if c := cmp.Compare(a.TypeID, b.TypeID); c != 0 {
			return c
		}
		return cmp.Compare(b.Issue, a.Issue)
	})
	return out
}

// LatestResults returns up to limit rows, newest first.
func (s *Store) LatestResults(ctx context.Context, typeID int64, limit int) ([]lottery.DrawResult, error) {
	return s.ResultHistory(ctx, typeID, 0, limit)
}

// ResultHistory returns one page of rows, newest first.
func (s *Store) ResultHistory(_ context.Context, typeID int64, offset, limit int) ([]lottery.DrawResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.sortedResults(typeID)
	if offset >= len(rows) {
		return []lottery.DrawResult{}, nil
	}
	rows = rows[max(offset, 0):]
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// CountResults counts rows for typeID.
func (s *Store) CountResults(_ context.Context, typeID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for k := range s.results {
		if k.typeID == typeID {
			n++
		}
	}
	return n, nil
}

// ResultByIssue returns one draw.
func (s *Store) ResultByIssue(_ context.Context, typeID int64, issue string) (lottery.DrawResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[resultKey{typeID: typeID, issue: issue}]
	if !ok {
		return lottery.DrawResult{}, fmt.Errorf("issue %s: %w", issue, lottery.ErrNotFound)
	}
	return r, nil
}

// BallFrequency counts each red and blue ball across all draws of typeID.
func (s *Store) BallFrequency(_ context.Context, typeID int64) (lottery.BallFrequency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	red := map[string]int64{}
	blue := map[string]int64{}
	for k, r := range s.results {
		if k.typeID != typeID {
			continue
		}
		for _, b := range r.RedBalls {
			red[strings.TrimSpace(b)]++
		}
		for _, b := range strings.Split(r.BlueBalls, ",") {
			if b = strings.TrimSpace(b); b != "" {
				blue[b]++
			}
		}
	}
	return lottery.BallFrequency{Red: rankBalls(red), Blue: rankBalls(blue)}, nil
}

func rankBalls(counts map[string]int64) []lottery.BallCount {
	out := make([]lottery.BallCount, 0, len(counts))
	for ball, n := range counts {
		out = append(out, lottery.BallCount{Ball: ball, Count: n})
	}
	slices.SortFunc(out, func(a, b lottery.BallCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Ball, b.Ball)
	})
	return out
}

// AllResults returns every stored draw.
func (s *Store) AllResults(_ context.Context) ([]lottery.DrawResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedResults(0), nil
}

// DeleteResultsBefore removes draws dated strictly before the given day.
func (s *Store) DeleteResultsBefore(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, r := range s.results {
		if r.DrawDate.Before(before) {
			delete(s.results, k)
			n++
		}
	}
	return n, nil
}

// LogCleanup appends a cleanup row.
func (s *Store) LogCleanup(_ context.Context, entry lottery.CleanupLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.ID = s.id()
	if entry.CleanupTime.IsZero() {
		entry.CleanupTime = s.now()
	}
	s.cleanups = append(s.cleanups, entry)
	return nil
}

// ListCleanupLogs returns cleanup rows newest first.
func (s *Store) ListCleanupLogs(_ context.Context, limit int) ([]lottery.CleanupLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]lottery.CleanupLog, 0, len(s.cleanups))
	for i := len(s.cleanups) - 1; i >= 0; i-- {
		out = append(out, s.cleanups[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

var _ lottery.Store = (*Store)(nil)
