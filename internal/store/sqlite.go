package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	apperrors "ohlcv-analyst/internal/errors"
	"ohlcv-analyst/internal/models"
)

// SQLiteStore keeps a validated snapshot of the dataset in SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (or creates) the snapshot database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to open database")
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db, path: dbPath}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, apperrors.Wrap(err, "failed to initialize schema")
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS bars (
		date TEXT PRIMARY KEY,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume REAL NOT NULL,
		direction TEXT NOT NULL DEFAULT 'NONE',
		support TEXT NOT NULL DEFAULT '[]',
		resistance TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`)
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveBars writes bars in one transaction, replacing bars with the same date.
func (s *SQLiteStore) SaveBars(ctx context.Context, bars []models.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO bars (date, open, high, low, close, volume, direction, support, resistance)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return apperrors.Wrap(err, "failed to prepare statement")
	}
	defer stmt.Close()

	for _, b := range bars {
		_, err := stmt.ExecContext(ctx, b.Date(), b.Open, b.High, b.Low, b.Close, b.Volume,
			string(b.Direction), FormatLevels(b.Support), FormatLevels(b.Resistance))
		if err != nil {
			return apperrors.Wrapf(err, "failed to insert bar %s", b.Date())
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(err, "failed to commit transaction")
	}

	return nil
}

// Count returns the number of stored bars.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bars`).Scan(&n); err != nil {
		return 0, apperrors.Wrap(err, "failed to count bars")
	}
	return n, nil
}

// LoadDataset reads every stored bar and rebuilds the dataset. Stored values
// go through the same validation as CSV input.
func (s *SQLiteStore) LoadDataset(ctx context.Context) (*Dataset, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, open, high, low, close, volume, direction, support, resistance
		FROM bars
		ORDER BY date ASC
	`)
	if err != nil {
		return nil, apperrors.NewDataError(s.path, 0, "", "failed to query bars", err)
	}
	defer rows.Close()

	var bars []models.Bar
	row := 0
	for rows.Next() {
		row++
		var (
			date, direction, support, resistance string
			open, high, low, close, volume       float64
		)
		if err := rows.Scan(&date, &open, &high, &low, &close, &volume, &direction, &support, &resistance); err != nil {
			return nil, apperrors.NewDataError(s.path, row, "", "failed to scan bar", err)
		}

		ts, err := time.Parse(models.DateLayout, date)
		if err != nil {
			return nil, apperrors.NewDataError(s.path, row, "date", "unparsable date", err)
		}
		dir, ok := models.ParseDirection(direction)
		if !ok {
			return nil, apperrors.NewDataError(s.path, row, "direction", fmt.Sprintf("unknown direction %q", direction), nil)
		}
		bar := models.NewBar(ts, open, high, low, close, volume)
		bar.Direction = dir
		if bar.Support, err = ParseLevels(support); err != nil {
			return nil, apperrors.NewDataError(s.path, row, "support", "invalid level list", err)
		}
		if bar.Resistance, err = ParseLevels(resistance); err != nil {
			return nil, apperrors.NewDataError(s.path, row, "resistance", "invalid level list", err)
		}
		bars = append(bars, bar)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDataError(s.path, 0, "", "error iterating bars", err)
	}
	if len(bars) == 0 {
		return nil, apperrors.NewDataError(s.path, 0, "", "snapshot has no bars", nil)
	}

	return NewDataset(bars), nil
}
