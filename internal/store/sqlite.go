package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"candlelens/internal/analysis/scoring"
	"candlelens/internal/models"
)

// SQLiteStore implements ScoreJournal using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the journal database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS scores (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		instrument TEXT NOT NULL,
		pattern_uid TEXT NOT NULL,
		pattern_name TEXT NOT NULL,
		direction TEXT NOT NULL,
		clazz TEXT NOT NULL,
		end_date TEXT,
		score INTEGER NOT NULL,
		band TEXT NOT NULL,
		momentum REAL,
		breadth REAL,
		lowvol REAL,
		eqbond REAL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_scores_instrument ON scores(instrument, created_at);
	CREATE INDEX IF NOT EXISTS idx_scores_uid ON scores(pattern_uid);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveScore appends a score to the journal and sets rec.ID.
func (s *SQLiteStore) SaveScore(ctx context.Context, rec *ScoreRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO scores (instrument, pattern_uid, pattern_name, direction, clazz, end_date, score, band, momentum, breadth, lowvol, eqbond, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.Instrument, rec.PatternUID, rec.PatternName, string(rec.Direction), string(rec.Class), rec.EndDate,
		rec.Score, string(rec.Band), nullFloat(rec.Momentum), nullFloat(rec.Breadth), nullFloat(rec.LowVol), nullFloat(rec.EqBond), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save score: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read score id: %w", err)
	}
	rec.ID = id
	return nil
}

// ListScores retrieves journaled scores, newest first.
func (s *SQLiteStore) ListScores(ctx context.Context, filter ScoreFilter) ([]ScoreRecord, error) {
	query := "SELECT id, instrument, pattern_uid, pattern_name, direction, clazz, end_date, score, band, momentum, breadth, lowvol, eqbond, created_at FROM scores WHERE 1=1"
	args := []interface{}{}

	if filter.Instrument != "" {
		query += " AND instrument = ?"
		args = append(args, filter.Instrument)
	}
	if filter.PatternUID != "" {
		query += " AND pattern_uid = ?"
		args = append(args, filter.PatternUID)
	}
	if filter.MinScore > 0 {
		query += " AND score >= ?"
		args = append(args, filter.MinScore)
	}
	if !filter.Since.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, filter.Since.UTC())
	}

	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query scores: %w", err)
	}
	defer rows.Close()

	var records []ScoreRecord
	for rows.Next() {
		var r ScoreRecord
		var direction, class, band string
		var endDate sql.NullString
		var momentum, breadth, lowvol, eqbond sql.NullFloat64

		if err := rows.Scan(&r.ID, &r.Instrument, &r.PatternUID, &r.PatternName, &direction, &class, &endDate,
			&r.Score, &band, &momentum, &breadth, &lowvol, &eqbond, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan score: %w", err)
		}

		r.Direction = models.Direction(direction)
		r.Class = models.PatternClass(class)
		r.Band = scoring.Band(band)
		r.EndDate = endDate.String
		r.Momentum = floatPtr(momentum)
		r.Breadth = floatPtr(breadth)
		r.LowVol = floatPtr(lowvol)
		r.EqBond = floatPtr(eqbond)
		records = append(records, r)
	}

	return records, rows.Err()
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
