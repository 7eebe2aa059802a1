package metrics

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS update_metrics (
	run_id  TEXT NOT NULL,
	update_idx INTEGER NOT NULL,
	name    TEXT NOT NULL,
	value   REAL NOT NULL,
	PRIMARY KEY (run_id, update_idx, name)
);`

// SQLiteSink persists every metric as one row per (update, name) for
// post-run analysis.
type SQLiteSink struct {
	db    *sql.DB
	runID string
}

// NewSQLiteSink opens (or creates) the database at path and ensures the
// schema exists.
func NewSQLiteSink(path, runID string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening metrics db: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating metrics schema: %w", err)
	}
	return &SQLiteSink{db: db, runID: runID}, nil
}

func (s *SQLiteSink) Emit(update int, values Values) {
	tx, err := s.db.Begin()
	if err != nil {
		return
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO update_metrics (run_id, update_idx, name, value) VALUES (?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return
	}
	for name, value := range values {
		if _, err := stmt.Exec(s.runID, update, name, value); err != nil {
			_ = stmt.Close()
			_ = tx.Rollback()
			return
		}
	}
	_ = stmt.Close()
	_ = tx.Commit()
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
