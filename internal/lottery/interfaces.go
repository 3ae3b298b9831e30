package lottery

import (
	"context"
	"encoding/json"
	"io"
	"time"
)

// Fetcher retrieves the raw draw payload for one lottery code.
type Fetcher interface {
	Fetch(ctx context.Context, code string, pageSize int) (Payload, error)
}

// Normalizer maps one raw upstream item onto a DrawResult.
type Normalizer interface {
	Normalize(code string, typeID int64, raw json.RawMessage) (DrawResult, error)
}

// ResultWriter upserts canonical draw records.
type ResultWriter interface {
	LookupTypeID(ctx context.Context, code string) (int64, error)
	SaveResult(ctx context.Context, result DrawResult) error
}

// Ledger records crawl attempts and ingestion failures.
type Ledger interface {
	LogCrawlTask(ctx context.Context, code string, status TaskStatus) error
	LogCrawlError(ctx context.Context, code string, kind ErrorKind, message string) error
	MarkAllErrorsFixed(ctx context.Context, code, note string) (int64, error)
	MarkErrorsFixedBefore(ctx context.Context, code, note string, cutoff time.Time) (int64, error)
	MarkErrorFixed(ctx context.Context, id int64, note string) error
	HasUnfixedErrors(ctx context.Context, code string) (bool, error)
	HasSuccessfulTask(ctx context.Context, code string, from, to time.Time) (bool, error)
	ListErrors(ctx context.Context, code string, onlyUnfixed bool, limit int) ([]CrawlError, error)
}

// ResultReader serves the read API.
type ResultReader interface {
	ListTypes(ctx context.Context) ([]Type, error)
	LatestResults(ctx context.Context, typeID int64, limit int) ([]DrawResult, error)
	ResultHistory(ctx context.Context, typeID int64, offset, limit int) ([]DrawResult, error)
	CountResults(ctx context.Context, typeID int64) (int64, error)
	ResultByIssue(ctx context.Context, typeID int64, issue string) (DrawResult, error)
	BallFrequency(ctx context.Context, typeID int64) (BallFrequency, error)
}

// RetentionStore supports the backup-then-delete cleanup job.
type RetentionStore interface {
	AllResults(ctx context.Context) ([]DrawResult, error)
	DeleteResultsBefore(ctx context.Context, before time.Time) (int64, error)
	LogCleanup(ctx context.Context, entry CleanupLog) error
	ListCleanupLogs(ctx context.Context, limit int) ([]CleanupLog, error)
}

// Store is the full persistence surface shared by every component.
type Store interface {
	ResultWriter
	Ledger
	ResultReader
	RetentionStore
	Ping(ctx context.Context) error
	Close()
}

// BlobStore writes backup artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
