// Package sqlite provides SQLite-backed persistence for the predictions
// service.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/louisbranch/augurrank/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/augurrank/internal/predictions/domain"
	"github.com/louisbranch/augurrank/internal/predictions/storage/sqlite/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store persists predictions service state in SQLite.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a predictions SQLite store at the provided path and applies
// embedded migrations. Write transactions take the lock immediately so that
// overlapping writers surface as retryable conflicts rather than deadlocks.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// storeTx adapts one *sql.Tx to the domain transaction contract.
type storeTx struct {
	tx *sql.Tx
}

// Update runs fn inside one immediate transaction. Busy and locked errors
// from the engine are reported as domain.ErrConflict so the caller can retry
// with fresh reads.
func (s *Store) Update(ctx context.Context, fn func(tx domain.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if fn == nil {
		return fmt.Errorf("transaction function is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return mapConflict(fmt.Errorf("begin transaction: %w", err))
	}
	if err := fn(&storeTx{tx: tx}); err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("%w: rollback transaction: %v", err, rollbackErr)
		}
		return mapConflict(err)
	}
	if err := tx.Commit(); err != nil {
		return mapConflict(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

func (t *storeTx) GetUser(ctx context.Context, addr string) (domain.User, error) {
	return getUser(ctx, t.tx, addr)
}

func (t *storeTx) PutUser(ctx context.Context, user domain.User) error {
	return putUser(ctx, t.tx, user)
}

func (t *storeTx) GetPrediction(ctx context.Context, id string) (domain.Prediction, error) {
	return getPrediction(ctx, t.tx, id)
}

func (t *storeTx) PutPrediction(ctx context.Context, pred domain.Prediction) error {
	return putPrediction(ctx, t.tx, pred)
}

// GetUser loads one user by address.
func (s *Store) GetUser(ctx context.Context, addr string) (domain.User, error) {
	if err := ctx.Err(); err != nil {
		return domain.User{}, err
	}
	return getUser(ctx, s.sqlDB, addr)
}

// GetPrediction loads one prediction by id.
func (s *Store) GetPrediction(ctx context.Context, id string) (domain.Prediction, error) {
	if err := ctx.Err(); err != nil {
		return domain.Prediction{}, err
	}
	return getPrediction(ctx, s.sqlDB, id)
}

// GetPredictions loads the owner's predictions among ids, newest first.
// Records owned by other identities are omitted.
func (s *Store) GetPredictions(ctx context.Context, owner string, ids []string) ([]domain.Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if owner == "" {
		return nil, fmt.Errorf("owner is required")
	}
	if len(ids) == 0 {
		return []domain.Prediction{}, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(ids)+1)
	args = append(args, owner)
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT `+predictionColumns+`
FROM predictions
WHERE owner = ? AND id IN (`+placeholders+`)
ORDER BY create_date DESC, id DESC
`, args...)
	if err != nil {
		return nil, fmt.Errorf("get predictions: %w", err)
	}
	defer rows.Close()
	return collectPredictions(rows)
}

// GetNewestPrediction loads the owner's most recent prediction for one game.
func (s *Store) GetNewestPrediction(ctx context.Context, owner string, game domain.Game) (domain.Prediction, error) {
	if err := ctx.Err(); err != nil {
		return domain.Prediction{}, err
	}
	if owner == "" {
		return domain.Prediction{}, fmt.Errorf("owner is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT `+predictionColumns+`
FROM predictions
WHERE owner = ? AND game = ?
ORDER BY create_date DESC, id DESC
LIMIT 1
`, owner, string(game))
	pred, err := scanPrediction(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Prediction{}, domain.ErrNotFound
		}
		return domain.Prediction{}, fmt.Errorf("get newest prediction: %w", err)
	}
	return pred, nil
}

// QueryPredictions runs a range query over one owner's predictions ordered by
// create date, with a has-more marker using the limit+1 idiom.
func (s *Store) QueryPredictions(ctx context.Context, query domain.PredictionQuery) (domain.PredictionPage, error) {
	if err := ctx.Err(); err != nil {
		return domain.PredictionPage{}, err
	}
	if query.Owner == "" {
		return domain.PredictionPage{}, fmt.Errorf("owner is required")
	}
	if !domain.ValidOperator(query.Operator) {
		return domain.PredictionPage{}, fmt.Errorf("unsupported operator %q", query.Operator)
	}
	if query.Limit <= 0 {
		return domain.PredictionPage{}, fmt.Errorf("limit must be greater than zero")
	}

	var sb strings.Builder
	sb.WriteString("SELECT " + predictionColumns + "\nFROM predictions\nWHERE owner = ?")
	args := []any{query.Owner}

	if query.Game != "" {
		sb.WriteString(" AND game = ?")
		args = append(args, string(query.Game))
	}
	sb.WriteString(" AND create_date " + string(query.Operator) + " ?")
	args = append(args, query.CreateDate)

	if len(query.ExcludingIDs) > 0 {
		placeholders := strings.Repeat("?,", len(query.ExcludingIDs))
		sb.WriteString(" AND id NOT IN (" + placeholders[:len(placeholders)-1] + ")")
		for _, id := range query.ExcludingIDs {
			args = append(args, id)
		}
	}

	direction := "ASC"
	if query.Descending {
		direction = "DESC"
	}
	sb.WriteString(fmt.Sprintf(" ORDER BY create_date %s, id %s LIMIT ?", direction, direction))
	args = append(args, query.Limit+1)

	rows, err := s.sqlDB.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return domain.PredictionPage{}, fmt.Errorf("query predictions: %w", err)
	}
	defer rows.Close()

	preds, err := collectPredictions(rows)
	if err != nil {
		return domain.PredictionPage{}, err
	}
	page := domain.PredictionPage{Predictions: preds}
	if len(page.Predictions) > query.Limit {
		page.Predictions = page.Predictions[:query.Limit]
		page.HasMore = true
	}
	return page, nil
}

// PutNewsletterEmail records one newsletter sign-up; a duplicate email is a
// no-op so re-submissions stay silent.
func (s *Store) PutNewsletterEmail(ctx context.Context, record domain.NewsletterEmail) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	email := strings.TrimSpace(record.Email)
	if email == "" {
		return fmt.Errorf("email is required")
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO newsletter_emails (email, status, create_date, update_date)
VALUES (?, ?, ?, ?)
ON CONFLICT (email) DO NOTHING
`, email, record.Status, record.CreateDate, record.UpdateDate)
	if err != nil {
		return fmt.Errorf("put newsletter email: %w", err)
	}
	return nil
}

// GetGameStats loads one owner's aggregate stats for a game.
func (s *Store) GetGameStats(ctx context.Context, owner string, game domain.Game) (domain.GameStats, error) {
	if err := ctx.Err(); err != nil {
		return domain.GameStats{}, err
	}
	if owner == "" {
		return domain.GameStats{}, fmt.Errorf("owner is required")
	}

	var stats domain.GameStats
	var gameValue string
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT owner, game, verified, correct, wrong, not_applicable, current_streak, max_streak, update_date
FROM game_stats
WHERE owner = ? AND game = ?
`, owner, string(game))
	err := row.Scan(&stats.Owner, &gameValue, &stats.Verified, &stats.Correct, &stats.Wrong,
		&stats.NotApplicable, &stats.CurrentStreak, &stats.MaxStreak, &stats.UpdateDate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.GameStats{}, domain.ErrNotFound
		}
		return domain.GameStats{}, fmt.Errorf("get game stats: %w", err)
	}
	stats.Game = domain.Game(gameValue)
	return stats, nil
}

// PutGameStats stores one owner's aggregate stats for a game.
func (s *Store) PutGameStats(ctx context.Context, stats domain.GameStats) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if stats.Owner == "" {
		return fmt.Errorf("owner is required")
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO game_stats (owner, game, verified, correct, wrong, not_applicable, current_streak, max_streak, update_date)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (owner, game) DO UPDATE SET
    verified = excluded.verified,
    correct = excluded.correct,
    wrong = excluded.wrong,
    not_applicable = excluded.not_applicable,
    current_streak = excluded.current_streak,
    max_streak = excluded.max_streak,
    update_date = excluded.update_date
`, stats.Owner, string(stats.Game), stats.Verified, stats.Correct, stats.Wrong,
		stats.NotApplicable, stats.CurrentStreak, stats.MaxStreak, stats.UpdateDate)
	if err != nil {
		return fmt.Errorf("put game stats: %w", err)
	}
	return nil
}

// AppendTelemetryEvent stores one operational telemetry record.
func (s *Store) AppendTelemetryEvent(ctx context.Context, event domain.TelemetryEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO telemetry_events (at, kind, record_key, detail)
VALUES (?, ?, ?, ?)
`, event.Timestamp, event.Kind, event.Key, event.Detail)
	if err != nil {
		return fmt.Errorf("append telemetry event: %w", err)
	}
	return nil
}

// mapConflict rewrites engine busy/locked errors into the retryable conflict
// sentinel; other errors pass through unchanged.
func mapConflict(err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_BUSY, sqlite3lib.SQLITE_LOCKED:
			return fmt.Errorf("%w: %v", domain.ErrConflict, err)
		}
	}
	message := strings.ToLower(err.Error())
	if strings.Contains(message, "database is locked") || strings.Contains(message, "database table is locked") {
		return fmt.Errorf("%w: %v", domain.ErrConflict, err)
	}
	return err
}

var _ domain.Store = (*Store)(nil)
var _ domain.TelemetryStore = (*Store)(nil)
