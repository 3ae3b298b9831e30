package crawl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/lottery-crawler/internal/lottery"
	"github.com/JakeFAU/lottery-crawler/internal/metrics"
)

// Error resolution scopes applied after a successful crawl.
const (
	// ResolveAll fixes every open error of the code, including ones logged
	// during the run itself.
	ResolveAll = "all"
	// ResolvePrior only fixes errors recorded before the run started.
	ResolvePrior = "prior"
)

// Status is the per-type result of one run.
type Status string

// Run statuses.
const (
	StatusSkipped Status = "skipped"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Store is the persistence the orchestrator writes to.
type Store interface {
	lottery.ResultWriter
	lottery.Ledger
}

// Config controls which types are crawled and how errors are resolved.
type Config struct {
	Codes        []string
	PageSize     int
	ResolveScope string
}

// Outcome describes what happened to one lottery type.
type Outcome struct {
	Code         string `json:"code"`
	Status       Status `json:"status"`
	Fetched      int    `json:"fetched"`
	Saved        int    `json:"saved"`
	Failed       int    `json:"failed"`
	Fixed        int64  `json:"fixed_errors"`
	FromFallback bool   `json:"from_fallback"`
	Error        string `json:"error,omitempty"`
	Err          error  `json:"-"`
}

// Summary aggregates the outcomes of a multi-type run.
type Summary struct {
	Started  time.Time `json:"started_at"`
	Finished time.Time `json:"finished_at"`
	Outcomes []Outcome `json:"results"`
}

// OK reports whether no type failed.
func (s Summary) OK() bool {
	for _, o := range s.Outcomes {
		if o.Status == StatusFailed {
			return false
		}
	}
	return true
}

// Orchestrator runs the gate, fetch, resolve, normalize/save, finalize
// pipeline for each lottery type.
type Orchestrator struct {
	cfg        Config
	gate       *Gate
	fetcher    lottery.Fetcher
	normalizer lottery.Normalizer
	store      Store
	clock      lottery.Clock
	logger     *zap.Logger
}

// NewOrchestrator wires an Orchestrator.
func NewOrchestrator(
	cfg Config,
	gate *Gate,
	fetcher lottery.Fetcher,
	normalizer lottery.Normalizer,
	store Store,
	clock lottery.Clock,
	logger *zap.Logger,
) *Orchestrator {
	if len(cfg.Codes) == 0 {
		cfg.Codes = lottery.DefaultCodes
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 30
	}
	if cfg.ResolveScope == "" {
		cfg.ResolveScope = ResolveAll
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:        cfg,
		gate:       gate,
		fetcher:    fetcher,
		normalizer: normalizer,
		store:      store,
		clock:      clock,
		logger:     logger.Named("orchestrator"),
	}
}

// Codes returns the configured crawl order.
func (o *Orchestrator) Codes() []string {
	return o.cfg.Codes
}

// RunAll crawls every configured type sequentially with the default page size.
func (o *Orchestrator) RunAll(ctx context.Context, force bool) Summary {
	return o.Run(ctx, o.cfg.Codes, force, o.cfg.PageSize)
}

// Run crawls codes sequentially. A failed type never stops the others; only
// context cancellation ends the loop early.
func (o *Orchestrator) Run(ctx context.Context, codes []string, force bool, pageSize int) Summary {
	summary := Summary{Started: o.clock.Now()}
	for _, code := range codes {
		if ctx.Err() != nil {
			o.logger.Warn("crawl run canceled", zap.String("next_code", code), zap.Error(ctx.Err()))
			break
		}
		summary.Outcomes = append(summary.Outcomes, o.RunOne(ctx, code, force, pageSize))
	}
	summary.Finished = o.clock.Now()
	o.logger.Info("crawl run finished",
		zap.Int("types", len(summary.Outcomes)),
		zap.Bool("ok", summary.OK()),
		zap.Duration("elapsed", summary.Finished.Sub(summary.Started)),
	)
	return summary
}

// RunScheduled is the cron entry point: it does nothing while any error in
// the ledger is unresolved. ran reports whether the crawl executed.
func (o *Orchestrator) RunScheduled(ctx context.Context) (summary Summary, ran bool, err error) {
	blocked, err := o.gate.HasUnfixedErrors(ctx, "")
	if err != nil {
		return Summary{}, false, err
	}
	if blocked {
		o.logger.Warn("scheduled crawl skipped: unfixed errors in ledger")
		return Summary{}, false, nil
	}
	return o.RunAll(ctx, false), true, nil
}

// RunOne crawls a single lottery type.
func (o *Orchestrator) RunOne(ctx context.Context, code string, force bool, pageSize int) Outcome {
	out := o.runOne(ctx, code, force, pageSize)
	if out.Err != nil {
		out.Error = out.Err.Error()
	}
	metrics.ObserveCrawlRun(code, string(out.Status))
	metrics.ObserveItems(code, out.Saved, out.Failed)
	return out
}

func (o *Orchestrator) runOne(ctx context.Context, code string, force bool, pageSize int) Outcome {
	log := o.logger.With(zap.String("code", code))
	out := Outcome{Code: code}

	ok, err := o.gate.CanCrawl(ctx, code, force)
	if err != nil {
		log.Error("crawl gate check failed", zap.Error(err))
		out.Status = StatusFailed
		out.Err = err
		return out
	}
	if !ok {
		log.Info("already crawled today; skipping")
		out.Status = StatusSkipped
		return out
	}

	startedAt := o.clock.Now()
	if pageSize <= 0 {
		pageSize = o.cfg.PageSize
	}

	payload, err := o.fetcher.Fetch(ctx, code, pageSize)
	if err == nil && !payload.OK() {
		msg := payload.Message
		if msg == "" {
			msg = fmt.Sprintf("upstream returned state %d", payload.State)
		}
		err = errors.New(msg)
	}
	if err != nil {
		return o.fail(ctx, log, out, lottery.ErrorKindAPI, fmt.Errorf("fetch: %w", err))
	}
	out.Fetched = len(payload.Result)
	out.FromFallback = payload.FromFallback

	typeID, err := o.store.LookupTypeID(ctx, code)
	if err != nil {
		return o.fail(ctx, log, out, lottery.ErrorKindType, err)
	}

	for i, raw := range payload.Result {
		result, err := o.normalizer.Normalize(code, typeID, raw)
		if err == nil {
			err = o.store.SaveResult(ctx, result)
		}
		if err != nil {
			out.Failed++
			log.Warn("skipping draw item", zap.Int("index", i), zap.Error(err))
			o.recordError(ctx, log, code, lottery.ErrorKindParse, fmt.Sprintf("item %d: %v", i, err))
			continue
		}
		out.Saved++
	}

	if err := o.store.LogCrawlTask(ctx, code, lottery.TaskSuccess); err != nil {
		log.Error("record crawl task", zap.Error(err))
	}
	out.Status = StatusSuccess
	out.Fixed = o.resolve(ctx, log, code, startedAt)

	log.Info("crawl complete",
		zap.Int("fetched", out.Fetched),
		zap.Int("saved", out.Saved),
		zap.Int("failed", out.Failed),
		zap.Bool("from_fallback", out.FromFallback),
	)
	return out
}

func (o *Orchestrator) fail(ctx context.Context, log *zap.Logger, out Outcome, kind lottery.ErrorKind, err error) Outcome {
	log.Error("crawl failed", zap.String("kind", string(kind)), zap.Error(err))
	o.recordError(ctx, log, out.Code, kind, err.Error())
	if logErr := o.store.LogCrawlTask(ctx, out.Code, lottery.TaskFailed); logErr != nil {
		log.Error("record crawl task", zap.Error(logErr))
	}
	out.Status = StatusFailed
	out.Err = err
	return out
}

func (o *Orchestrator) recordError(ctx context.Context, log *zap.Logger, code string, kind lottery.ErrorKind, msg string) {
	metrics.ObserveCrawlError(string(kind))
	if err := o.store.LogCrawlError(ctx, code, kind, msg); err != nil {
		log.Error("record crawl error", zap.String("kind", string(kind)), zap.Error(err))
	}
}

// resolve marks errors fixed after a successful crawl according to the
// configured scope and returns how many rows changed.
func (o *Orchestrator) resolve(ctx context.Context, log *zap.Logger, code string, startedAt time.Time) int64 {
	note := "auto-resolved by successful crawl at " + startedAt.Format(time.RFC3339)
	var (
		n   int64
		err error
	)
	if o.cfg.ResolveScope == ResolvePrior {
		n, err = o.store.MarkErrorsFixedBefore(ctx, code, note, startedAt)
	} else {
		n, err = o.store.MarkAllErrorsFixed(ctx, code, note)
	}
	if err != nil {
		log.Error("resolve crawl errors", zap.Error(err))
		return 0
	}
	if n > 0 {
		log.Warn("marked crawl errors fixed", zap.Int64("count", n), zap.String("scope", o.cfg.ResolveScope))
	}
	return n
}
