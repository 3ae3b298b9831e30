package cwl

import (
	"context"
	"net/http"
	"regexp"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testHomepage = "https://lottery.test/"
	testEndpoint = "https://lottery.test/notice"
)

var noticeURL = regexp.MustCompile(`^https://lottery\.test/notice`)

type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

type noticeServer struct {
	mu        sync.Mutex
	calls     int
	homeCalls int
	requests  []*http.Request
	statuses  []int
	body      string
}

func (s *noticeServer) responder(req *http.Request) (*http.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.requests = append(s.requests, req)
	status := http.StatusOK
	if len(s.statuses) > 0 {
		status = s.statuses[0]
		s.statuses = s.statuses[1:]
	}
	return httpmock.NewStringResponse(status, s.body), nil
}

func (s *noticeServer) home(_ *http.Request) (*http.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.homeCalls++
	return httpmock.NewStringResponse(http.StatusOK, "<html></html>"), nil
}

func newTestFetcher(t *testing.T, srv *noticeServer, mutate func(*Config)) (*Fetcher, *recordingSleeper) {
	t.Helper()
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, testHomepage, srv.home)
	transport.RegisterRegexpResponder(http.MethodGet, noticeURL, srv.responder)

	cfg := DefaultConfig()
	cfg.Endpoint = testEndpoint
	cfg.Homepage = testHomepage
	cfg.MinDelay = time.Second
	cfg.MaxDelay = time.Second
	if mutate != nil {
		mutate(&cfg)
	}
	sleeper := &recordingSleeper{}
	f := New(cfg, zap.NewNop(), WithTransport(transport), WithSleeper(sleeper.Sleep))
	return f, sleeper
}

const oneItem = `{"state":0,"message":"查询成功","result":[{"code":"2025140","date":"2025-12-04(四)","red":"01,03,04,12,18,24","blue":"05"}]}`

func TestFetchSucceedsFirstAttempt(t *testing.T) {
	t.Parallel()

	srv := &noticeServer{body: oneItem}
	f, _ := newTestFetcher(t, srv, nil)

	payload, err := f.Fetch(context.Background(), "ssq", 30)
	require.NoError(t, err)
	require.True(t, payload.OK())
	require.False(t, payload.FromFallback)
	require.Len(t, payload.Result, 1)
	require.Equal(t, 1, srv.calls)

	req := srv.requests[0]
	q := req.URL.Query()
	require.Equal(t, "ssq", q.Get("name"))
	require.Equal(t, "30", q.Get("pageSize"))
	require.Equal(t, "1", q.Get("pageNo"))
	require.Equal(t, "PC", q.Get("systemType"))
	require.Equal(t, testHomepage, req.Header.Get("Referer"))
	require.Equal(t, "https://lottery.test", req.Header.Get("Origin"))
	require.Equal(t, "XMLHttpRequest", req.Header.Get("X-Requested-With"))
	require.True(t, slices.Contains(DefaultUserAgents, req.Header.Get("User-Agent")))
}

func TestFetchRetriesWithBackoff(t *testing.T) {
	t.Parallel()

	srv := &noticeServer{body: oneItem, statuses: []int{http.StatusInternalServerError, http.StatusForbidden}}
	f, sleeper := newTestFetcher(t, srv, nil)

	payload, err := f.Fetch(context.Background(), "ssq", 30)
	require.NoError(t, err)
	require.False(t, payload.FromFallback)
	require.Equal(t, 3, srv.calls)
	require.Equal(t, []time.Duration{
		time.Second, 2 * time.Second,
		time.Second, 4 * time.Second,
		time.Second,
	}, sleeper.delays)
	for _, req := range srv.requests {
		require.NotEmpty(t, req.Header.Get("User-Agent"))
	}
}

func TestFetchInvalidJSONIsRetried(t *testing.T) {
	t.Parallel()

	srv := &noticeServer{body: "<html>blocked</html>"}
	f, _ := newTestFetcher(t, srv, nil)

	payload, err := f.Fetch(context.Background(), "qlc", 30)
	require.NoError(t, err)
	require.True(t, payload.FromFallback)
	require.Equal(t, 3, srv.calls)
}

func TestFetchServesFallbackAfterExhaustingRetries(t *testing.T) {
	t.Parallel()

	srv := &noticeServer{statuses: []int{500, 500, 500}}
	f, _ := newTestFetcher(t, srv, nil)

	payload, err := f.Fetch(context.Background(), "ssq", 30)
	require.NoError(t, err)
	require.True(t, payload.OK())
	require.True(t, payload.FromFallback)
	require.Len(t, payload.Result, 2)
	require.Equal(t, 3, srv.calls)
}

func TestFetchWithoutFallbackReportsAPIFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		code   string
		mutate func(*Config)
	}{
		{name: "unknown code", code: "dlt"},
		{name: "fallback disabled", code: "ssq", mutate: func(c *Config) { c.FallbackEnabled = false }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := &noticeServer{statuses: []int{502, 502, 502}}
			f, _ := newTestFetcher(t, srv, tt.mutate)

			payload, err := f.Fetch(context.Background(), tt.code, 30)
			require.NoError(t, err)
			require.False(t, payload.OK())
			require.False(t, payload.FromFallback)
			require.Contains(t, payload.Message, "no data after 3 attempts")
		})
	}
}

func TestFetchReturnsUpstreamErrorStateWithoutRetry(t *testing.T) {
	t.Parallel()

	srv := &noticeServer{body: `{"state":1,"message":"参数错误","result":[]}`}
	f, _ := newTestFetcher(t, srv, nil)

	payload, err := f.Fetch(context.Background(), "ssq", 30)
	require.NoError(t, err)
	require.Equal(t, 1, payload.State)
	require.Equal(t, "参数错误", payload.Message)
	require.Equal(t, 1, srv.calls)
}

func TestFetchWarmsUpOnce(t *testing.T) {
	t.Parallel()

	srv := &noticeServer{body: oneItem}
	f, _ := newTestFetcher(t, srv, nil)

	for i := 0; i < 2; i++ {
		_, err := f.Fetch(context.Background(), "ssq", 5)
		require.NoError(t, err)
	}
	require.Equal(t, 1, srv.homeCalls)
	require.Equal(t, 2, srv.calls)
}

func TestFetchCanceledContext(t *testing.T) {
	t.Parallel()

	srv := &noticeServer{body: oneItem}
	f, _ := newTestFetcher(t, srv, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.Fetch(ctx, "ssq", 30)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 0, srv.calls)
}

func TestFallbackCoversDefaultCodes(t *testing.T) {
	t.Parallel()

	for _, code := range []string{"ssq", "kl8", "qlc", "3d"} {
		payload, ok := Fallback(code)
		require.True(t, ok, code)
		require.True(t, payload.OK())
		require.True(t, payload.FromFallback)
		require.NotEmpty(t, payload.Result)
	}
	_, ok := Fallback("dlt")
	require.False(t, ok)
}

func TestBackoff(t *testing.T) {
	t.Parallel()

	b := Backoff{BaseDelay: 2 * time.Second, MinDelay: time.Second, MaxDelay: 3 * time.Second}
	require.Equal(t, 2*time.Second, b.Delay(0))
	require.Equal(t, 4*time.Second, b.Delay(1))
	require.Equal(t, 8*time.Second, b.Delay(2))
	for i := 0; i < 50; i++ {
		j := b.Jitter()
		require.GreaterOrEqual(t, j, time.Second)
		require.LessOrEqual(t, j, 3*time.Second)
	}
}
