package crawl

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/lottery-crawler/internal/clock/system"
	"github.com/JakeFAU/lottery-crawler/internal/lottery"
	"github.com/JakeFAU/lottery-crawler/internal/normalize"
	"github.com/JakeFAU/lottery-crawler/internal/storage/memory"
)

var shanghai = time.FixedZone("CST", 8*3600)

type fakeFetcher struct {
	mu       sync.Mutex
	calls    map[string]int
	payloads map[string]lottery.Payload
	err      error
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{calls: map[string]int{}, payloads: map[string]lottery.Payload{}}
}

func (f *fakeFetcher) Fetch(_ context.Context, code string, _ int) (lottery.Payload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[code]++
	if f.err != nil {
		return lottery.Payload{}, f.err
	}
	p, ok := f.payloads[code]
	if !ok {
		return lottery.Payload{State: 1, Message: "no data"}, nil
	}
	return p, nil
}

func (f *fakeFetcher) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func items(raw ...string) lottery.Payload {
	p := lottery.Payload{State: 0}
	for _, r := range raw {
		p.Result = append(p.Result, json.RawMessage(r))
	}
	return p
}

const (
	ssqItem = `{"code":"2025140","date":"2025-12-04(四)","red":"01,03,04,12,18,24","blue":"05"}`
	kl8Item = `{"code":"2025324","date":"2025-12-04(四)","red":"09,13,20,26,28,32,39,42,43,46,47,49,50,60,61,62,63,64,66,79","blue":""}`
	qlcItem = `{"code":"2025138","date":"2025-12-03(三)","red":"07,09,10,12,22,23,24","blue":"04"}`
	d3Item  = `{"code":"2025324","date":"2025-12-04(四)","red":"661","blue":""}`
	badItem = `{"code":"2025141","date":"not-a-date","red":"01,02"}`
)

type harness struct {
	clock   *system.Frozen
	store   *memory.Store
	fetcher *fakeFetcher
	orch    *Orchestrator
	gate    *Gate
}

func newHarness(t *testing.T, scope string) *harness {
	t.Helper()
	clk := system.NewFrozen(time.Date(2025, 12, 4, 10, 20, 0, 0, shanghai))
	store := memory.NewStore(memory.WithClock(clk))
	fetcher := newFakeFetcher()
	fetcher.payloads[lottery.CodeSSQ] = items(ssqItem)
	fetcher.payloads[lottery.CodeKL8] = items(kl8Item)
	fetcher.payloads[lottery.CodeQLC] = items(qlcItem)
	fetcher.payloads[lottery.Code3D] = items(d3Item)

	gate := NewGate(store, clk, shanghai)
	orch := NewOrchestrator(Config{ResolveScope: scope}, gate, fetcher, normalize.New(), store, clk, nil)
	return &harness{clock: clk, store: store, fetcher: fetcher, orch: orch, gate: gate}
}

func TestRunAllThenGateDeniesSameDay(t *testing.T) {
	t.Parallel()

	h := newHarness(t, ResolveAll)
	ctx := context.Background()

	summary := h.orch.RunAll(ctx, false)
	require.True(t, summary.OK())
	require.Len(t, summary.Outcomes, 4)
	for _, o := range summary.Outcomes {
		require.Equal(t, StatusSuccess, o.Status, o.Code)
		require.Equal(t, 1, o.Saved, o.Code)

		ok, err := h.gate.CanCrawl(ctx, o.Code, false)
		require.NoError(t, err)
		require.False(t, ok, o.Code)
	}

	h.clock.Advance(time.Hour)
	summary = h.orch.RunAll(ctx, false)
	for _, o := range summary.Outcomes {
		require.Equal(t, StatusSkipped, o.Status, o.Code)
	}
	require.Equal(t, 4, h.fetcher.total())

	h.clock.Advance(24 * time.Hour)
	ok, err := h.gate.CanCrawl(ctx, lottery.CodeSSQ, false)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestForceBypassesGate(t *testing.T) {
	t.Parallel()

	h := newHarness(t, ResolveAll)
	ctx := context.Background()
	require.Equal(t, StatusSuccess, h.orch.RunOne(ctx, lottery.CodeSSQ, false, 30).Status)
	require.Equal(t, StatusSkipped, h.orch.RunOne(ctx, lottery.CodeSSQ, false, 30).Status)
	require.Equal(t, StatusSuccess, h.orch.RunOne(ctx, lottery.CodeSSQ, true, 5).Status)
	require.Equal(t, 2, h.fetcher.calls[lottery.CodeSSQ])
}

func TestScenarioItemPersisted(t *testing.T) {
	t.Parallel()

	h := newHarness(t, ResolveAll)
	ctx := context.Background()
	out := h.orch.RunOne(ctx, lottery.CodeSSQ, false, 30)
	require.Equal(t, StatusSuccess, out.Status)

	got, err := h.store.ResultByIssue(ctx, 1, "2025140")
	require.NoError(t, err)
	require.Equal(t, "2025-12-04", got.DrawDate.Format(lottery.DateLayout))
	require.Equal(t, []string{"01", "03", "04", "12", "18", "24"}, got.RedBalls)
	require.Equal(t, "05", got.BlueBalls)

	threeD := h.orch.RunOne(ctx, lottery.Code3D, false, 30)
	require.Equal(t, StatusSuccess, threeD.Status)
	d3, err := h.store.ResultByIssue(ctx, 4, "2025324")
	require.NoError(t, err)
	require.Equal(t, []string{"6", "6", "1"}, d3.RedBalls)
	require.Empty(t, d3.BlueBalls)
}

func TestMalformedItemIsSkipped(t *testing.T) {
	t.Parallel()

	for _, scope := range []string{ResolveAll, ResolvePrior} {
		t.Run(scope, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, scope)
			ctx := context.Background()
			second := `{"code":"2025139","date":"2025-12-02(二)","red":"02,05,17,22,30,33","blue":"06"}`
			h.fetcher.payloads[lottery.CodeSSQ] = items(ssqItem, badItem, second)

			out := h.orch.RunOne(ctx, lottery.CodeSSQ, false, 30)
			require.Equal(t, StatusSuccess, out.Status)
			require.Equal(t, 3, out.Fetched)
			require.Equal(t, 2, out.Saved)
			require.Equal(t, 1, out.Failed)

			n, err := h.store.CountResults(ctx, 1)
			require.NoError(t, err)
			require.Equal(t, int64(2), n)

			errs := h.store.Errors()
			require.Len(t, errs, 1)
			require.Equal(t, lottery.ErrorKindParse, errs[0].ErrorType)
			require.Equal(t, scope == ResolveAll, errs[0].IsFixed)

			tasks := h.store.Tasks()
			require.Len(t, tasks, 1)
			require.Equal(t, lottery.TaskSuccess, tasks[0].Status)
		})
	}
}

func TestSuccessResolvesPriorErrors(t *testing.T) {
	t.Parallel()

	h := newHarness(t, ResolvePrior)
	ctx := context.Background()
	require.NoError(t, h.store.LogCrawlError(ctx, lottery.CodeSSQ, lottery.ErrorKindAPI, "upstream down"))
	require.NoError(t, h.store.LogCrawlError(ctx, lottery.CodeSSQ, lottery.ErrorKindParse, "bad item"))
	require.NoError(t, h.store.LogCrawlError(ctx, lottery.CodeKL8, lottery.ErrorKindAPI, "upstream down"))
	h.clock.Advance(time.Minute)

	out := h.orch.RunOne(ctx, lottery.CodeSSQ, false, 30)
	require.Equal(t, StatusSuccess, out.Status)
	require.Equal(t, int64(2), out.Fixed)

	for _, e := range h.store.Errors() {
		if e.LotteryCode == lottery.CodeSSQ {
			require.True(t, e.IsFixed)
			require.NotNil(t, e.FixTime)
			require.Contains(t, e.FixNote, "auto-resolved by successful crawl at")
			continue
		}
		require.False(t, e.IsFixed)
	}
}

func TestRunScheduledBlockedByUnfixedErrors(t *testing.T) {
	t.Parallel()

	h := newHarness(t, ResolveAll)
	ctx := context.Background()
	require.NoError(t, h.store.LogCrawlError(ctx, lottery.CodeQLC, lottery.ErrorKindAPI, "upstream down"))

	summary, ran, err := h.orch.RunScheduled(ctx)
	require.NoError(t, err)
	require.False(t, ran)
	require.Empty(t, summary.Outcomes)
	require.Zero(t, h.fetcher.total())
	require.Empty(t, h.store.Tasks())
}

func TestRunScheduledRunsWhenLedgerClean(t *testing.T) {
	t.Parallel()

	h := newHarness(t, ResolveAll)
	summary, ran, err := h.orch.RunScheduled(context.Background())
	require.NoError(t, err)
	require.True(t, ran)
	require.True(t, summary.OK())
	require.Equal(t, 4, h.fetcher.total())
}

func TestAPIFailureDoesNotAbortOtherTypes(t *testing.T) {
	t.Parallel()

	h := newHarness(t, ResolveAll)
	ctx := context.Background()
	h.fetcher.payloads[lottery.CodeKL8] = lottery.Payload{State: 1, Message: "no data after 3 attempts"}

	summary := h.orch.RunAll(ctx, false)
	require.False(t, summary.OK())
	statuses := map[string]Status{}
	for _, o := range summary.Outcomes {
		statuses[o.Code] = o.Status
	}
	require.Equal(t, map[string]Status{
		lottery.CodeSSQ: StatusSuccess,
		lottery.CodeKL8: StatusFailed,
		lottery.CodeQLC: StatusSuccess,
		lottery.Code3D:  StatusSuccess,
	}, statuses)

	open, err := h.store.ListErrors(ctx, lottery.CodeKL8, true, 10)
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Equal(t, lottery.ErrorKindAPI, open[0].ErrorType)
	require.Contains(t, open[0].ErrorMessage, "no data after 3 attempts")

	var failedTasks int
	for _, task := range h.store.Tasks() {
		if task.Status == lottery.TaskFailed {
			require.Equal(t, lottery.CodeKL8, task.LotteryCode)
			failedTasks++
		}
	}
	require.Equal(t, 1, failedTasks)

	ok, err := h.gate.CanCrawl(ctx, lottery.CodeKL8, false)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestFetchErrorRecordsAPIError(t *testing.T) {
	t.Parallel()

	h := newHarness(t, ResolveAll)
	h.fetcher.err = errors.New("dial tcp: connection refused")

	out := h.orch.RunOne(context.Background(), lottery.CodeSSQ, false, 30)
	require.Equal(t, StatusFailed, out.Status)
	require.Contains(t, out.Error, "connection refused")
	require.Equal(t, lottery.ErrorKindAPI, h.store.Errors()[0].ErrorType)
}

func TestUnknownTypeRecordsTypeError(t *testing.T) {
	t.Parallel()

	h := newHarness(t, ResolveAll)
	h.fetcher.payloads["dlt"] = items(ssqItem)

	out := h.orch.RunOne(context.Background(), "dlt", false, 30)
	require.Equal(t, StatusFailed, out.Status)
	require.ErrorIs(t, out.Err, lottery.ErrUnknownType)

	errs := h.store.Errors()
	require.Len(t, errs, 1)
	require.Equal(t, lottery.ErrorKindType, errs[0].ErrorType)
	require.Equal(t, lottery.TaskFailed, h.store.Tasks()[0].Status)
}

func TestFallbackFlagPropagates(t *testing.T) {
	t.Parallel()

	h := newHarness(t, ResolveAll)
	p := items(ssqItem)
	p.FromFallback = true
	h.fetcher.payloads[lottery.CodeSSQ] = p

	out := h.orch.RunOne(context.Background(), lottery.CodeSSQ, false, 30)
	require.Equal(t, StatusSuccess, out.Status)
	require.True(t, out.FromFallback)
}

func TestRunStopsOnCanceledContext(t *testing.T) {
	t.Parallel()

	h := newHarness(t, ResolveAll)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary := h.orch.RunAll(ctx, false)
	require.Empty(t, summary.Outcomes)
	require.Zero(t, h.fetcher.total())
}
