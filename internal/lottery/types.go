// Package lottery defines core types shared across the ingestion pipeline.
package lottery

import (
	"encoding/json"
	"errors"
	"time"
)

// Supported lottery codes as used by the upstream endpoint.
const (
	CodeSSQ = "ssq"
	CodeKL8 = "kl8"
	CodeQLC = "qlc"
	Code3D  = "3d"
)

// DefaultCodes is the crawl order used when none is configured.
var DefaultCodes = []string{CodeSSQ, CodeKL8, CodeQLC, Code3D}

// DateLayout is the calendar date layout used by the upstream source and the API.
const DateLayout = "2006-01-02"

var (
	// ErrUnknownType is returned when a lottery code has no lottery_types row.
	ErrUnknownType = errors.New("unknown lottery type")
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
)

// TaskStatus is the terminal state of one crawl attempt for one lottery type.
type TaskStatus string

// Crawl task statuses persisted in crawl_tasks.
const (
	TaskSuccess TaskStatus = "SUCCESS"
	TaskFailed  TaskStatus = "FAILED"
)

// ErrorKind classifies rows in the crawl error ledger.
type ErrorKind string

// Error kinds persisted in crawl_errors.
const (
	ErrorKindType  ErrorKind = "TYPE_ERROR"
	ErrorKindParse ErrorKind = "DATA_PARSE_ERROR"
	ErrorKindAPI   ErrorKind = "API_ERROR"
)

// Cleanup statuses persisted in cleanup_logs.
const (
	CleanupSuccess = "success"
	CleanupError   = "error"
)

// Type is one row of the static lottery_types reference set.
type Type struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Code        string `json:"code"`
	Description string `json:"description"`
}

// DrawResult is the canonical record of one draw, unique per (TypeID, Issue).
type DrawResult struct {
	TypeID            int64     `json:"type_id"`
	Issue             string    `json:"issue"`
	DrawDate          time.Time `json:"draw_date"`
	RedBalls          []string  `json:"red_balls"`
	BlueBalls         string    `json:"blue_balls"`
	Sales             string    `json:"sales"`
	PoolMoney         string    `json:"pool_money"`
	FirstPrizeCount   int       `json:"first_prize_count"`
	FirstPrizeAmount  string    `json:"first_prize_amount"`
	SecondPrizeCount  int       `json:"second_prize_count"`
	SecondPrizeAmount string    `json:"second_prize_amount"`
}

// CrawlTask is one append-only row of the task-run ledger.
type CrawlTask struct {
	ID          int64      `json:"id"`
	LotteryCode string     `json:"lottery_code"`
	CrawlTime   time.Time  `json:"crawl_time"`
	Status      TaskStatus `json:"status"`
}

// CrawlError is one row of the error ledger.
type CrawlError struct {
	ID           int64      `json:"id"`
	LotteryCode  string     `json:"lottery_code"`
	ErrorType    ErrorKind  `json:"error_type"`
	ErrorMessage string     `json:"error_message"`
	CrawlTime    time.Time  `json:"crawl_time"`
	IsFixed      bool       `json:"is_fixed"`
	FixTime      *time.Time `json:"fix_time,omitempty"`
	FixNote      string     `json:"fix_note,omitempty"`
}

// CleanupLog records one retention run.
type CleanupLog struct {
	ID           int64     `json:"id"`
	CleanupTime  time.Time `json:"cleanup_time"`
	DeletedRows  int64     `json:"deleted_rows"`
	BackupFile   string    `json:"backup_file"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message"`
}

// BallCount is one entry of a ball frequency table.
type BallCount struct {
	Ball  string `json:"ball"`
	Count int64  `json:"count"`
}

// BallFrequency aggregates how often each ball was drawn for one lottery type.
type BallFrequency struct {
	Red  []BallCount `json:"red_ball_frequency"`
	Blue []BallCount `json:"blue_ball_frequency"`
}

// Payload is the upstream response envelope. Items stay raw so one malformed
// item cannot fail the decode of the whole batch.
type Payload struct {
	State        int               `json:"state"`
	Message      string            `json:"message"`
	Result       []json.RawMessage `json:"result"`
	FromFallback bool              `json:"-"`
}

// OK reports whether the upstream flagged the payload as successful.
func (p Payload) OK() bool {
	return p.State == 0
}
