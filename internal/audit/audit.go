// Package audit journals clause analyses and tool calls to sqlite or
// postgres.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ericksa/clauseguard/internal/analyzer"
)

// DefaultLimit is used by Recent when the caller passes no positive limit.
const DefaultLimit = 20

var schema = []string{
	`CREATE TABLE IF NOT EXISTS clause_analyses (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		clause_type TEXT NOT NULL,
		risk_score INTEGER NOT NULL,
		action TEXT NOT NULL,
		failed BOOLEAN NOT NULL,
		payload TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_clause_analyses_run ON clause_analyses (run_id)`,
	`CREATE TABLE IF NOT EXISTS tool_calls (
		id TEXT PRIMARY KEY,
		tool TEXT NOT NULL,
		input TEXT,
		output TEXT,
		error TEXT,
		created_at TIMESTAMP NOT NULL
	)`,
}

// Auditor is safe for concurrent use. A nil *Auditor accepts every call and
// records nothing.
type Auditor struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

// Entry is one journaled analysis.
type Entry struct {
	ID         string          `json:"id"`
	RunID      string          `json:"run_id"`
	ClauseType string          `json:"clause_type"`
	RiskScore  int             `json:"risk_score"`
	Action     string          `json:"action"`
	Failed     bool            `json:"failed"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
}

// ToolCall is one journaled tool invocation.
type ToolCall struct {
	ID        string    `json:"id"`
	Tool      string    `json:"tool"`
	Input     string    `json:"input"`
	Output    string    `json:"output"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewRunID returns an identifier grouping the analyses of one request.
func NewRunID() string {
	return uuid.NewString()
}

// Open connects to the journal database and creates its tables. driver is
// "sqlite3" (dsn is a file path) or "postgres" (dsn is a lib/pq connection
// string).
func Open(ctx context.Context, driver, dsn string) (*Auditor, error) {
	switch driver {
	case "sqlite3", "postgres":
	default:
		return nil, fmt.Errorf("unsupported audit driver %q", driver)
	}

	if driver == "sqlite3" && dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create audit db directory: %w", err)
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit db: %w", err)
	}
	if driver == "sqlite3" {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping audit db: %w", err)
	}

	a := &Auditor{db: db, driver: driver, now: time.Now}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create audit schema: %w", err)
		}
	}
	return a, nil
}

// rebind rewrites ? placeholders as $n for postgres.
func (a *Auditor) rebind(query string) string {
	if a.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Record appends one analysis to the journal under runID.
func (a *Auditor) Record(ctx context.Context, runID string, analysis analyzer.ClauseAnalysis) error {
	if a == nil || a.db == nil {
		return nil
	}
	payload, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("encode analysis: %w", err)
	}

	_, err = a.db.ExecContext(ctx, a.rebind(
		`INSERT INTO clause_analyses (id, run_id, clause_type, risk_score, action, failed, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		uuid.NewString(), runID, analysis.ClauseType, analysis.Risk.RiskScore,
		analysis.Recommendations.Action, analysis.Failed(), string(payload), a.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

// RecordAll journals a batch under one run ID and returns the first error.
func (a *Auditor) RecordAll(ctx context.Context, runID string, analyses []analyzer.ClauseAnalysis) error {
	var first error
	for _, an := range analyses {
		if err := a.Record(ctx, runID, an); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Recent lists the newest analyses first.
func (a *Auditor) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if a == nil || a.db == nil {
		return []Entry{}, nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	return a.queryEntries(ctx,
		`SELECT id, run_id, clause_type, risk_score, action, failed, payload, created_at
		FROM clause_analyses ORDER BY created_at DESC LIMIT ?`, limit)
}

// ByRun lists the analyses recorded under runID in insertion order.
func (a *Auditor) ByRun(ctx context.Context, runID string) ([]Entry, error) {
	if a == nil || a.db == nil {
		return []Entry{}, nil
	}
	return a.queryEntries(ctx,
		`SELECT id, run_id, clause_type, risk_score, action, failed, payload, created_at
		FROM clause_analyses WHERE run_id = ? ORDER BY created_at ASC`, runID)
}

func (a *Auditor) queryEntries(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := a.db.QueryContext(ctx, a.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e       Entry
			payload string
		)
		if err := rows.Scan(&e.ID, &e.RunID, &e.ClauseType, &e.RiskScore, &e.Action, &e.Failed, &payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Payload = json.RawMessage(payload)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// LogToolCall journals one tool invocation.
func (a *Auditor) LogToolCall(ctx context.Context, tool string, input json.RawMessage, output []byte, callErr error) error {
	if a == nil || a.db == nil {
		return nil
	}
	var errStr string
	if callErr != nil {
		errStr = callErr.Error()
	}
	_, err := a.db.ExecContext(ctx, a.rebind(
		"INSERT INTO tool_calls (id, tool, input, output, error, created_at) VALUES (?, ?, ?, ?, ?, ?)"),
		uuid.NewString(), tool, string(input), string(output), errStr, a.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to write tool call: %w", err)
	}
	return nil
}

// ToolCalls lists the newest tool invocations first.
func (a *Auditor) ToolCalls(ctx context.Context, limit int) ([]ToolCall, error) {
	if a == nil || a.db == nil {
		return []ToolCall{}, nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := a.db.QueryContext(ctx, a.rebind(
		"SELECT id, tool, input, output, error, created_at FROM tool_calls ORDER BY created_at DESC LIMIT ?"), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	calls := []ToolCall{}
	for rows.Next() {
		var (
			c                   ToolCall
			input, output, cErr sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.Tool, &input, &output, &cErr, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Input, c.Output, c.Error = input.String, output.String, cErr.String
		calls = append(calls, c)
	}
	return calls, rows.Err()
}

func (a *Auditor) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}
