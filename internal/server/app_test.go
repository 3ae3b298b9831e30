package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/lottery-crawler/internal/config"
)

const ssqNotice = `{"state":0,"message":"查询成功","result":[{"name":"双色球","code":"2025140","date":"2025-12-04(四)","red":"01,03,04,12,18,24","blue":"05","sales":"362437084","poolmoney":"2690606470","prizegrades":[{"type":1,"typenum":"4","typemoney":"9980899"},{"type":2,"typenum":"126","typemoney":"197654"}]}]}`

func testConfig(t *testing.T, upstream string) config.Config {
	t.Helper()
	return config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 5000},
		DB:     config.DBConfig{Driver: config.DriverMemory},
		Fetcher: config.FetcherConfig{
			Endpoint:       upstream + "/notice",
			Homepage:       upstream + "/",
			TimeoutSeconds: 5,
			MaxRetries:     1,
		},
		Crawler: config.CrawlerConfig{
			Codes:          []string{"ssq"},
			PageSize:       30,
			ManualPageSize: 5,
			Timezone:       "UTC",
			ResolveScope:   "all",
		},
		Scheduler: config.SchedulerConfig{Enabled: true, CrawlSpec: "20 10 * * *", CleanupSpec: "0 2 * * 0"},
		Retention: config.RetentionConfig{Days: 365, BackupKind: config.BackupLocal, BackupDir: t.TempDir()},
	}
}

func newUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html></html>"))
	})
	mux.HandleFunc("/notice", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(ssqNotice))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestBuildRegistersScheduledJobs(t *testing.T) {
	t.Parallel()

	upstream := newUpstream(t)
	app, err := Build(context.Background(), testConfig(t, upstream.URL), zap.NewNop())
	require.NoError(t, err)
	defer app.Close()

	sched, err := app.Scheduler()
	require.NoError(t, err)
	entries := sched.Entries()
	require.Len(t, entries, 2)
	require.Equal(t, JobDailyCrawl, entries[0].Name)
	require.Equal(t, JobWeeklyCleanup, entries[1].Name)

	again, err := app.Scheduler()
	require.NoError(t, err)
	require.Same(t, sched, again)
}

func TestDailyCrawlPersistsDraws(t *testing.T) {
	t.Parallel()

	upstream := newUpstream(t)
	app, err := Build(context.Background(), testConfig(t, upstream.URL), zap.NewNop())
	require.NoError(t, err)
	defer app.Close()

	sched, err := app.Scheduler()
	require.NoError(t, err)
	require.NoError(t, sched.RunOnce(JobDailyCrawl))

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/lottery/ssq/latest", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"issue":"2025140"`)
	require.Contains(t, rec.Body.String(), `"draw_date":"2025-12-04"`)

	require.NoError(t, sched.RunOnce(JobWeeklyCleanup))
	rec = httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/cleanup/logs", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"success"`)
}

func TestBuildRejectsBadTimezone(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Crawler.Timezone = "Nowhere/Special"
	_, err := Build(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "load timezone")
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Server.Port = 0
	cfg.Server.ShutdownTimeout = time.Second
	app, err := Build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
