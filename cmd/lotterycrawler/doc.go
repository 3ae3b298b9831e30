// Package main hosts the lottery crawler entrypoint.
//
// Architecture overview:
//   - Fetch pipeline: internal/fetcher/cwl pulls draw notices from the China Welfare Lottery endpoint through a
//     Colly collector, rebuilding browser-like headers per attempt, retrying with exponential backoff and serving an
//     embedded fallback dataset once retries are exhausted.
//   - Ingestion: internal/crawl.Orchestrator gates each lottery type (at most one successful crawl per local calendar
//     day unless forced), normalizes every item independently via internal/normalize and upserts draws keyed by
//     (type, issue). Failures land in the crawl error ledger; a successful crawl resolves the type's open errors.
//   - Persistence: internal/storage/postgres (pgx pool, squirrel reads, golang-migrate schema) or the in-memory
//     store for development. Retention backups go to a local directory or GCS.
//   - Scheduling: internal/scheduler wraps robfig/cron with a daily crawl that is skipped while any ledger error is
//     unresolved, and a weekly backup-then-delete cleanup.
//   - HTTP API: internal/api serves draw listings, stats, manual crawl and admin routes plus /healthz, /readyz and
//     /metrics.
//
// Commands:
//   - lotterycrawler serve                  HTTP API plus scheduler.
//   - lotterycrawler crawl [--force]        one crawl pass, then exit.
//   - lotterycrawler cleanup                one retention pass, then exit.
//   - lotterycrawler migrate up|down|status schema management.
//
// Configuration comes from an optional --config file and LOTTERY_* environment variables, e.g.
// LOTTERY_DB_DSN, LOTTERY_CRAWLER_CODES=ssq,kl8, LOTTERY_RETENTION_BACKUP_KIND=gcs.
package main
