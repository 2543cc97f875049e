package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"autoindex/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ StrategyStore = (*SQLiteStore)(nil)
var _ RunStore = (*SQLiteStore)(nil)

// SQLiteStore implements StrategyStore and RunStore backed by a SQLite
// database.
type SQLiteStore struct {
	db *sql.DB
}

// migrations are applied in order; PRAGMA user_version records how many
// have run.
var migrations = []string{
	`CREATE TABLE strategies (
		name       TEXT    NOT NULL,
		version    INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		config     TEXT    NOT NULL,
		PRIMARY KEY (name, version)
	)`,
	`CREATE TABLE runs (
		id              TEXT PRIMARY KEY,
		strategy        TEXT    NOT NULL,
		status          TEXT    NOT NULL,
		incomplete      INTEGER NOT NULL,
		error           TEXT    NOT NULL DEFAULT '',
		initial_capital TEXT    NOT NULL,
		final_value     TEXT    NOT NULL,
		report          TEXT    NOT NULL,
		started_at      INTEGER NOT NULL,
		finished_at     INTEGER NOT NULL
	)`,
	`CREATE INDEX runs_strategy_started ON runs (strategy, started_at)`,
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies
// pending migrations and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// A single connection serializes writers and keeps :memory: databases
	// shared.
	db.SetMaxOpenConns(1)
	s := &SQLiteStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating %s: %w", dbPath, err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	var version int
	if err := s.db.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&version); err != nil {
		return err
	}
	for i := version; i < len(migrations); i++ {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d`, i+1)); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// StrategyStore implementation
// ---------------------------------------------------------------------------

// SaveStrategy appends cfg as the next version of its name. A zero
// UpdatedAt is stamped with the current time.
func (s *SQLiteStore) SaveStrategy(ctx context.Context, cfg domain.StrategyConfig) (int, error) {
	if cfg.Name == "" {
		return 0, fmt.Errorf("strategy without name: %w", domain.ErrInvalidInput)
	}
	if cfg.UpdatedAt.IsZero() {
		cfg.UpdatedAt = time.Now().UTC()
	}
	body, err := json.Marshal(cfg)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var version int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM strategies WHERE name = ?`, cfg.Name,
	).Scan(&version); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO strategies (name, version, updated_at, config) VALUES (?, ?, ?, ?)`,
		cfg.Name, version, cfg.UpdatedAt.UnixMilli(), string(body),
	); err != nil {
		return 0, err
	}
	return version, tx.Commit()
}

// LatestStrategy returns the highest version of name.
func (s *SQLiteStore) LatestStrategy(ctx context.Context, name string) (domain.StrategyConfig, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT config FROM strategies WHERE name = ? ORDER BY version DESC LIMIT 1`, name,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.StrategyConfig{}, fmt.Errorf("strategy %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return domain.StrategyConfig{}, err
	}
	var cfg domain.StrategyConfig
	if err := json.Unmarshal([]byte(body), &cfg); err != nil {
		return domain.StrategyConfig{}, fmt.Errorf("decoding strategy %s: %w", name, err)
	}
	return cfg, nil
}

// StrategyVersions returns every stored version of name, oldest first.
func (s *SQLiteStore) StrategyVersions(ctx context.Context, name string) ([]StrategyVersion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT version, updated_at, config FROM strategies WHERE name = ? ORDER BY version`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StrategyVersion
	for rows.Next() {
		var (
			v    StrategyVersion
			ms   int64
			body string
		)
		if err := rows.Scan(&v.Version, &ms, &body); err != nil {
			return nil, err
		}
		v.UpdatedAt = time.UnixMilli(ms).UTC()
		if err := json.Unmarshal([]byte(body), &v.Config); err != nil {
			return nil, fmt.Errorf("decoding strategy %s v%d: %w", name, v.Version, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("strategy %s: %w", name, ErrNotFound)
	}
	return out, nil
}

// ListStrategies returns the distinct names of stored strategies.
func (s *SQLiteStore) ListStrategies(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT name FROM strategies ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// ---------------------------------------------------------------------------
// RunStore implementation
// ---------------------------------------------------------------------------

// SaveRun inserts or replaces the summary of res. Money columns are stored
// as decimal strings.
func (s *SQLiteStore) SaveRun(ctx context.Context, res *domain.BacktestResult) error {
	if res == nil || res.ID == "" {
		return fmt.Errorf("run without id: %w", domain.ErrInvalidInput)
	}
	report, err := json.Marshal(res.Report)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs
			(id, strategy, status, incomplete, error, initial_capital, final_value, report, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID,
		res.Strategy.Name,
		string(res.Status),
		res.Incomplete,
		res.Error,
		decimal.NewFromFloat(res.InitialCapital).String(),
		decimal.NewFromFloat(res.FinalValue()).String(),
		string(report),
		res.StartedAt.UnixMilli(),
		res.FinishedAt.UnixMilli(),
	)
	return err
}

const runColumns = `id, strategy, status, incomplete, error, initial_capital, final_value, report, started_at, finished_at`

// GetRun returns the summary of run id.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (RunSummary, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunSummary{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return r, err
}

// ListRuns returns run summaries, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, strategy string, limit int) ([]RunSummary, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	var args []any
	if strategy != "" {
		query += ` WHERE strategy = ?`
		args = append(args, strategy)
	}
	query += ` ORDER BY started_at DESC, id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (RunSummary, error) {
	var (
		r                   RunSummary
		status, report      string
		capital, final      string
		startedMs, finishMs int64
	)
	if err := sc.Scan(&r.ID, &r.Strategy, &status, &r.Incomplete, &r.Error,
		&capital, &final, &report, &startedMs, &finishMs); err != nil {
		return RunSummary{}, err
	}
	r.Status = domain.BacktestStatus(status)
	r.StartedAt = time.UnixMilli(startedMs).UTC()
	r.FinishedAt = time.UnixMilli(finishMs).UTC()

	c, err := decimal.NewFromString(capital)
	if err != nil {
		return RunSummary{}, fmt.Errorf("run %s initial capital: %w", r.ID, err)
	}
	f, err := decimal.NewFromString(final)
	if err != nil {
		return RunSummary{}, fmt.Errorf("run %s final value: %w", r.ID, err)
	}
	r.InitialCapital = c.InexactFloat64()
	r.FinalValue = f.InexactFloat64()

	if err := json.Unmarshal([]byte(report), &r.Report); err != nil {
		return RunSummary{}, fmt.Errorf("run %s report: %w", r.ID, err)
	}
	return r, nil
}
