package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/intelliquery/backend/internal/storage/models"
	"github.com/intelliquery/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping() error {
	return c.db.Ping()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS query_history (
		id TEXT PRIMARY KEY,
		user_id TEXT,
		query_text TEXT NOT NULL,
		intent TEXT NOT NULL,
		filters TEXT,
		narrative TEXT,
		clarified INTEGER DEFAULT 0,
		result_error TEXT,
		used_fallback INTEGER DEFAULT 0,
		latency_ms INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_query_user ON query_history(user_id);
	CREATE INDEX IF NOT EXISTS idx_query_created ON query_history(created_at);

	CREATE TABLE IF NOT EXISTS feedback (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		query_id TEXT NOT NULL,
		helpful INTEGER NOT NULL,
		comment TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (query_id) REFERENCES query_history(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_feedback_query ON feedback(query_id);

	CREATE TABLE IF NOT EXISTS load_runs (
		id TEXT PRIMARY KEY,
		load_trigger TEXT NOT NULL,
		status TEXT NOT NULL,
		schema_version TEXT,
		deal_count INTEGER,
		work_order_count INTEGER,
		error TEXT,
		duration_ms INTEGER,
		started_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_load_started ON load_runs(started_at);

	CREATE TABLE IF NOT EXISTS load_quality_issues (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		load_id TEXT NOT NULL,
		dataset TEXT NOT NULL,
		kind TEXT NOT NULL,
		column_name TEXT,
		count INTEGER,
		percentage REAL,
		severity TEXT NOT NULL,
		samples TEXT,
		FOREIGN KEY (load_id) REFERENCES load_runs(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_issues_load ON load_quality_issues(load_id);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) InsertQueryRecord(record *models.QueryRecord) error {
	query := `
		INSERT INTO query_history (id, user_id, query_text, intent, filters, narrative, clarified,
			result_error, used_fallback, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		record.ID,
		record.UserID,
		record.QueryText,
		record.Intent,
		record.Filters,
		record.Narrative,
		boolToInt(record.Clarified),
		record.ResultError,
		boolToInt(record.UsedFallback),
		record.LatencyMS,
		record.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert query record: %w", err)
	}

	logger.Info("Query recorded",
		zap.String("query_id", record.ID),
		zap.String("intent", record.Intent),
		zap.Int("latency_ms", record.LatencyMS),
	)

	return nil
}

func (c *Client) GetQueryHistory(userID string, limit int) ([]models.QueryRecord, error) {
	query := `
		SELECT id, user_id, query_text, intent, filters, narrative, clarified, result_error,
			used_fallback, latency_ms, created_at
		FROM query_history
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := c.db.Query(query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get query history: %w", err)
	}
	defer rows.Close()

	var records []models.QueryRecord
	for rows.Next() {
		var r models.QueryRecord
		var filters, narrative, resultError sql.NullString
		var clarified, usedFallback int
		var createdAt int64

		err := rows.Scan(&r.ID, &r.UserID, &r.QueryText, &r.Intent, &filters, &narrative,
			&clarified, &resultError, &usedFallback, &r.LatencyMS, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		r.Filters = filters.String
		r.Narrative = narrative.String
		r.ResultError = resultError.String
		r.Clarified = clarified == 1
		r.UsedFallback = usedFallback == 1
		r.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, r)
	}

	return records, rows.Err()
}

func (c *Client) StoreFeedback(feedback *models.Feedback) error {
	query := `INSERT INTO feedback (query_id, helpful, comment, created_at) VALUES (?, ?, ?, ?)`

	_, err := c.db.Exec(
		query,
		feedback.QueryID,
		boolToInt(feedback.Helpful),
		feedback.Comment,
		time.Now().Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to store feedback: %w", err)
	}

	logger.Info("Feedback stored",
		zap.String("query_id", feedback.QueryID),
		zap.Bool("helpful", feedback.Helpful),
	)

	return nil
}

// InsertLoadRun stores a load run together with its quality issues in one
// transaction.
func (c *Client) InsertLoadRun(run *models.LoadRun) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO load_runs (id, load_trigger, status, schema_version, deal_count, work_order_count,
			error, duration_ms, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.Trigger,
		run.Status,
		run.SchemaVersion,
		run.DealCount,
		run.WorkOrderCount,
		run.Error,
		run.DurationMS,
		run.StartedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert load run: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO load_quality_issues (load_id, dataset, kind, column_name, count, percentage, severity, samples)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare issue insert: %w", err)
	}
	defer stmt.Close()

	for _, issue := range run.Issues {
		samples, _ := json.Marshal(issue.Samples)
		_, err := stmt.Exec(run.ID, issue.Dataset, issue.Kind, issue.Column, issue.Count,
			issue.Percentage, issue.Severity, string(samples))
		if err != nil {
			return fmt.Errorf("failed to insert quality issue: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit load run: %w", err)
	}

	logger.Info("Load run recorded",
		zap.String("load_id", run.ID),
		zap.String("status", run.Status),
		zap.Int("issues", len(run.Issues)),
	)

	return nil
}

// GetLoadRuns returns the most recent load runs, newest first, without
// their issues.
func (c *Client) GetLoadRuns(limit int) ([]models.LoadRun, error) {
	query := `
		SELECT id, load_trigger, status, schema_version, deal_count, work_order_count, error, duration_ms, started_at
		FROM load_runs
		ORDER BY started_at DESC
		LIMIT ?
	`

	rows, err := c.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get load runs: %w", err)
	}
	defer rows.Close()

	var runs []models.LoadRun
	for rows.Next() {
		var r models.LoadRun
		var schemaVersion, loadErr sql.NullString
		var startedAt int64

		err := rows.Scan(&r.ID, &r.Trigger, &r.Status, &schemaVersion, &r.DealCount,
			&r.WorkOrderCount, &loadErr, &r.DurationMS, &startedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		r.SchemaVersion = schemaVersion.String
		r.Error = loadErr.String
		r.StartedAt = time.Unix(startedAt, 0)
		runs = append(runs, r)
	}

	return runs, rows.Err()
}

func (c *Client) GetLoadIssues(loadID string) ([]models.QualityIssue, error) {
	query := `
		SELECT id, load_id, dataset, kind, column_name, count, percentage, severity, samples
		FROM load_quality_issues
		WHERE load_id = ?
		ORDER BY id
	`

	rows, err := c.db.Query(query, loadID)
	if err != nil {
		return nil, fmt.Errorf("failed to get load issues: %w", err)
	}
	defer rows.Close()

	var issues []models.QualityIssue
	for rows.Next() {
		var i models.QualityIssue
		var samples string

		err := rows.Scan(&i.ID, &i.LoadID, &i.Dataset, &i.Kind, &i.Column, &i.Count,
			&i.Percentage, &i.Severity, &samples)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		json.Unmarshal([]byte(samples), &i.Samples)
		issues = append(issues, i)
	}

	return issues, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
