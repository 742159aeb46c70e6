package storage

import (
	"database/sql"
	"time"

	"jenkinstrigger/internal/logger"
	"jenkinstrigger/internal/storage/models"

	_ "github.com/mattn/go-sqlite3"
)

const timestampLayout = "2006-01-02 15:04:05.000000"

var db *sql.DB

// Init initializes the SQLite run-history database
func Init(dbPath string) error {
	var err error

	db, err = sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return err
	}

	// One short-lived writer per process; a small pool is plenty
	db.SetMaxOpenConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err = db.Ping(); err != nil {
		return err
	}

	if err = createTables(); err != nil {
		return err
	}

	logger.Debug("Run history database initialized", "path", dbPath)
	return nil
}

// createTables creates the necessary database tables
func createTables() error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS trigger_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		job_name TEXT NOT NULL,
		params TEXT,
		build_url TEXT,
		result TEXT NOT NULL,
		error TEXT,
		duration_ms INTEGER NOT NULL
	)
	`)

	return err
}

// InsertRun inserts a run-history row
func InsertRun(run models.TriggerRun) error {
	_, err := db.Exec(
		`INSERT INTO trigger_runs (timestamp, job_name, params, build_url, result, error, duration_ms) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.Timestamp.Format(timestampLayout),
		run.JobName,
		run.Params,
		run.BuildURL,
		run.Result,
		run.Error,
		run.DurationMS,
	)

	if err != nil {
		logger.Error("Failed to insert run history row", "error", err)
		return err
	}

	return nil
}

// GetRuns retrieves run-history rows, newest first
func GetRuns(limit, offset int) ([]models.TriggerRun, error) {
	rows, err := db.Query(
		`SELECT id, timestamp, job_name, params, build_url, result, error, duration_ms FROM trigger_runs ORDER BY id DESC LIMIT ? OFFSET ?`,
		limit,
		offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.TriggerRun
	for rows.Next() {
		var run models.TriggerRun
		var timestampStr string

		if err := rows.Scan(
			&run.ID,
			&timestampStr,
			&run.JobName,
			&run.Params,
			&run.BuildURL,
			&run.Result,
			&run.Error,
			&run.DurationMS,
		); err != nil {
			return nil, err
		}

		timestamp, err := time.Parse(timestampLayout, timestampStr)
		if err != nil {
			timestamp, err = time.Parse("2006-01-02 15:04:05", timestampStr)
			if err != nil {
				timestamp = time.Time{}
			}
		}
		run.Timestamp = timestamp

		runs = append(runs, run)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return runs, nil
}

// Close closes the database connection
func Close() error {
	if db != nil {
		return db.Close()
	}
	return nil
}
