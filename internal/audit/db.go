// internal/audit/db.go
package audit

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Record represents a single file redaction in the audit trail.
type Record struct {
	ID            int64
	JobName       string
	TriggerType   string
	State         string // success, failure, skipped
	SourcePath    string
	OutputPath    string
	Matches       int
	RuleErrors    string // newline-joined per-rule error summaries
	ContentDigest string // sha256 of the redacted output
	StartedAt     time.Time
	FinishedAt    time.Time
	DurationMs    int64
	Error         string
}

// DB wraps the SQLite database connection for the redaction audit trail.
type DB struct {
	db *sql.DB
}

const auditSchema = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER NOT NULL,
    applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS redaction_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    job_name TEXT NOT NULL,
    trigger_type TEXT NOT NULL,
    state TEXT NOT NULL,
    source_path TEXT NOT NULL,
    output_path TEXT NOT NULL,
    matches INTEGER NOT NULL DEFAULT 0,
    rule_errors TEXT,
    content_digest TEXT,
    started_at DATETIME NOT NULL,
    finished_at DATETIME NOT NULL,
    duration_ms INTEGER NOT NULL,
    error TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_redaction_history_job ON redaction_history(job_name);
CREATE INDEX IF NOT EXISTS idx_redaction_history_state ON redaction_history(state);
CREATE INDEX IF NOT EXISTS idx_redaction_history_digest ON redaction_history(content_digest);
CREATE INDEX IF NOT EXISTS idx_redaction_history_started ON redaction_history(started_at);
`

// Open opens or creates an audit database at the given path.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if _, err := db.Exec(auditSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	var count int
	db.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&count)
	if count == 0 {
		db.Exec("INSERT INTO schema_version (version) VALUES (1)")
	}

	return &DB{db: db}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// Add stores an audit record and returns its ID.
func (d *DB) Add(rec Record) (int64, error) {
	result, err := d.db.Exec(`
		INSERT INTO redaction_history
		(job_name, trigger_type, state, source_path, output_path, matches,
		 rule_errors, content_digest, started_at, finished_at, duration_ms, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.JobName, rec.TriggerType, rec.State, rec.SourcePath, rec.OutputPath,
		rec.Matches, rec.RuleErrors, rec.ContentDigest, rec.StartedAt,
		rec.FinishedAt, rec.DurationMs, rec.Error,
	)
	if err != nil {
		return 0, fmt.Errorf("recording redaction: %w", err)
	}
	return result.LastInsertId()
}

// History retrieves audit records filtered by job name and/or state.
func (d *DB) History(jobName, state string, limit int) ([]Record, error) {
	query := `SELECT id, job_name, trigger_type, state, source_path, output_path,
		matches, rule_errors, content_digest, started_at, finished_at, duration_ms, error
		FROM redaction_history WHERE 1=1`
	var args []any

	if jobName != "" {
		query += " AND job_name = ?"
		args = append(args, jobName)
	}
	if state != "" {
		query += " AND state = ?"
		args = append(args, state)
	}

	query += " ORDER BY started_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var ruleErrs, digest, errStr sql.NullString
		if err := rows.Scan(&r.ID, &r.JobName, &r.TriggerType, &r.State,
			&r.SourcePath, &r.OutputPath, &r.Matches, &ruleErrs, &digest,
			&r.StartedAt, &r.FinishedAt, &r.DurationMs, &errStr); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		r.RuleErrors = ruleErrs.String
		r.ContentDigest = digest.String
		r.Error = errStr.String
		records = append(records, r)
	}
	return records, rows.Err()
}

// HasDigest reports whether a successful redaction with this content
// digest is already recorded. Used to confirm bloom-filter hits before
// skipping a file.
func (d *DB) HasDigest(digest string) (bool, error) {
	var count int
	err := d.db.QueryRow(
		"SELECT COUNT(*) FROM redaction_history WHERE content_digest = ? AND state = 'success'",
		digest,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking digest: %w", err)
	}
	return count > 0, nil
}

// RecentDigests returns the digests of the most recent successful
// redactions, newest first. The daemon seeds its bloom pre-filter from
// this at startup.
func (d *DB) RecentDigests(limit int) ([]string, error) {
	rows, err := d.db.Query(`
		SELECT DISTINCT content_digest FROM redaction_history
		WHERE state = 'success' AND content_digest != ''
		ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying digests: %w", err)
	}
	defer rows.Close()

	var digests []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scanning digest: %w", err)
		}
		digests = append(digests, d)
	}
	return digests, rows.Err()
}

// Cleanup removes audit records older than the specified number of days.
func (d *DB) Cleanup(retentionDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	result, err := d.db.Exec(
		"DELETE FROM redaction_history WHERE started_at < ?", cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("cleaning up history: %w", err)
	}
	return result.RowsAffected()
}
