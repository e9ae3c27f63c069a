package store

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Prediction is one scored entry in the append-only log.
type Prediction struct {
	ID         int64     `json:"id"`
	Features   []float64 `json:"features"`
	Prediction float64   `json:"prediction"`
	Timestamp  time.Time `json:"timestamp"`
}

// PredictionLog persists predictions to sqlite, append-only. Reads come
// back in reverse chronological order.
type PredictionLog struct {
	db *sql.DB
}

// OpenPredictionLog opens (and if needed creates) the log database.
func OpenPredictionLog(path string) (*PredictionLog, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open prediction database: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping prediction database: %w", err)
	}

	const schema = `
		CREATE TABLE IF NOT EXISTS predictions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			features TEXT NOT NULL,
			prediction REAL NOT NULL,
			timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
		)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create predictions table: %w", err)
	}

	return &PredictionLog{db: db}, nil
}

// Append stores one prediction and returns its assigned id.
func (l *PredictionLog) Append(features []float64, prediction float64) (int64, error) {
	parts := make([]string, len(features))
	for i, f := range features {
		parts[i] = strconv.FormatFloat(f, 'g', -1, 64)
	}

	res, err := l.db.Exec(
		"INSERT INTO predictions (features, prediction, timestamp) VALUES (?, ?, ?)",
		strings.Join(parts, ","), prediction, time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert prediction: %w", err)
	}
	return res.LastInsertId()
}

// List returns every prediction, newest first.
func (l *PredictionLog) List() ([]Prediction, error) {
	rows, err := l.db.Query(
		"SELECT id, features, prediction, timestamp FROM predictions ORDER BY timestamp DESC, id DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	defer rows.Close()

	predictions := []Prediction{}
	for rows.Next() {
		var (
			p        Prediction
			features string
		)
		if err := rows.Scan(&p.ID, &features, &p.Prediction, &p.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan prediction row: %w", err)
		}
		for _, part := range strings.Split(features, ",") {
			f, err := strconv.ParseFloat(part, 64)
			if err != nil {
				return nil, fmt.Errorf("corrupt features column for id %d: %w", p.ID, err)
			}
			p.Features = append(p.Features, f)
		}
		predictions = append(predictions, p)
	}
	return predictions, rows.Err()
}

// Count returns the number of stored predictions.
func (l *PredictionLog) Count() (int64, error) {
	var n int64
	err := l.db.QueryRow("SELECT COUNT(*) FROM predictions").Scan(&n)
	return n, err
}

// Close releases the database handle.
func (l *PredictionLog) Close() error {
	return l.db.Close()
}
