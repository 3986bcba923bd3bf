package sqlx

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	// Supported database drivers.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"progresskit/core"
)

// Driver selects the SQL dialect.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverMySQL    Driver = "mysql"
)

// Config holds SQL storage configuration.
type Config struct {
	Driver          Driver        `json:"driver"`
	DSN             string        `json:"dsn"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
}

// DefaultConfig returns sensible defaults for the given driver.
func DefaultConfig(driver Driver) Config {
	return Config{
		Driver:          driver,
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

// Store implements engine.Storage on a relational database. State rows carry
// a version column; updates are optimistic compare-and-swap on that column,
// so a lost race costs a retry instead of a lock.
//
// Schema:
//
//	user_progression(user_id TEXT PRIMARY KEY, state TEXT NOT NULL, version BIGINT NOT NULL)
//	achievement_progress(user_id TEXT, achievement_id TEXT, progress TEXT NOT NULL,
//	                     PRIMARY KEY (user_id, achievement_id))
type Store struct {
	db     *sqlx.DB
	driver Driver
}

// New connects using the configuration and pings the database.
func New(cfg Config) (*Store, error) {
	db, err := sqlx.Connect(string(cfg.Driver), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Driver, err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return &Store{db: db, driver: cfg.Driver}, nil
}

// NewWithDB wraps an existing database handle (useful for testing).
func NewWithDB(db *sqlx.DB, driver Driver) *Store {
	return &Store{db: db, driver: driver}
}

// Close closes the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Migrate creates the storage tables when they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS user_progression (
			user_id VARCHAR(255) PRIMARY KEY,
			state TEXT NOT NULL,
			version BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS achievement_progress (
			user_id VARCHAR(255) NOT NULL,
			achievement_id VARCHAR(255) NOT NULL,
			progress TEXT NOT NULL,
			PRIMARY KEY (user_id, achievement_id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func (s *Store) UpdateState(ctx context.Context, user core.UserID, fn func(*core.UserState) error) (core.UserState, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return core.UserState{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var blob string
	var version int64
	exists := true
	query := tx.Rebind(`SELECT state, version FROM user_progression WHERE user_id = ?`)
	if err := tx.QueryRowxContext(ctx, query, user).Scan(&blob, &version); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return core.UserState{}, fmt.Errorf("read state: %w", err)
		}
		exists = false
	}

	st := core.UserState{UserID: user}
	if exists {
		if err := json.Unmarshal([]byte(blob), &st); err != nil {
			return core.UserState{}, fmt.Errorf("corrupt state row for %s: %w", user, err)
		}
	}
	if err := fn(&st); err != nil {
		return core.UserState{}, err
	}
	st.Version = version + 1

	next, err := json.Marshal(st)
	if err != nil {
		return core.UserState{}, err
	}
	if exists {
		update := tx.Rebind(`UPDATE user_progression SET state = ?, version = ? WHERE user_id = ? AND version = ?`)
		res, err := tx.ExecContext(ctx, update, string(next), st.Version, user, version)
		if err != nil {
			return core.UserState{}, fmt.Errorf("write state: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return core.UserState{}, err
		}
		if affected == 0 {
			return core.UserState{}, fmt.Errorf("%w: state for %s", core.ErrConcurrencyConflict, user)
		}
	} else {
		insert := tx.Rebind(`INSERT INTO user_progression (user_id, state, version) VALUES (?, ?, ?)`)
		if _, err := tx.ExecContext(ctx, insert, user, string(next), st.Version); err != nil {
			// a concurrent writer created the row first
			return core.UserState{}, fmt.Errorf("%w: state for %s: %v", core.ErrConcurrencyConflict, user, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return core.UserState{}, fmt.Errorf("commit: %w", err)
	}
	return st, nil
}

func (s *Store) GetState(ctx context.Context, user core.UserID) (core.UserState, error) {
	var blob string
	query := s.db.Rebind(`SELECT state FROM user_progression WHERE user_id = ?`)
	if err := s.db.QueryRowxContext(ctx, query, user).Scan(&blob); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.UserState{}, fmt.Errorf("%w: user %s", core.ErrNotFound, user)
		}
		return core.UserState{}, fmt.Errorf("read state: %w", err)
	}
	var st core.UserState
	if err := json.Unmarshal([]byte(blob), &st); err != nil {
		return core.UserState{}, fmt.Errorf("corrupt state row for %s: %w", user, err)
	}
	return st, nil
}

func (s *Store) ListStates(ctx context.Context) ([]core.UserState, error) {
	rows, err := s.db.QueryxContext(ctx, `SELECT state FROM user_progression`)
	if err != nil {
		return nil, fmt.Errorf("list states: %w", err)
	}
	defer rows.Close()

	var out []core.UserState
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, err
		}
		var st core.UserState
		if err := json.Unmarshal([]byte(blob), &st); err != nil {
			continue // skip corrupt rows, the ranker tolerates gaps
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Store) UpdateProgress(ctx context.Context, user core.UserID, achievement core.AchievementID, fn func(*core.AchievementProgress, bool) error) (core.AchievementProgress, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return core.AchievementProgress{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var blob string
	exists := true
	query := tx.Rebind(`SELECT progress FROM achievement_progress WHERE user_id = ? AND achievement_id = ?`)
	if err := tx.QueryRowxContext(ctx, query, user, achievement).Scan(&blob); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return core.AchievementProgress{}, fmt.Errorf("read progress: %w", err)
		}
		exists = false
	}

	var row core.AchievementProgress
	if exists {
		if err := json.Unmarshal([]byte(blob), &row); err != nil {
			return core.AchievementProgress{}, fmt.Errorf("corrupt progress row %s/%s: %w", user, achievement, err)
		}
	}
	if err := fn(&row, exists); err != nil {
		return core.AchievementProgress{}, err
	}

	next, err := json.Marshal(row)
	if err != nil {
		return core.AchievementProgress{}, err
	}
	if exists {
		update := tx.Rebind(`UPDATE achievement_progress SET progress = ? WHERE user_id = ? AND achievement_id = ?`)
		if _, err := tx.ExecContext(ctx, update, string(next), user, achievement); err != nil {
			return core.AchievementProgress{}, fmt.Errorf("write progress: %w", err)
		}
	} else {
		insert := tx.Rebind(`INSERT INTO achievement_progress (user_id, achievement_id, progress) VALUES (?, ?, ?)`)
		if _, err := tx.ExecContext(ctx, insert, user, achievement, string(next)); err != nil {
			return core.AchievementProgress{}, fmt.Errorf("%w: progress %s/%s: %v", core.ErrConcurrencyConflict, user, achievement, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return core.AchievementProgress{}, fmt.Errorf("commit: %w", err)
	}
	return row, nil
}

func (s *Store) GetProgress(ctx context.Context, user core.UserID, achievement core.AchievementID) (core.AchievementProgress, error) {
	var blob string
	query := s.db.Rebind(`SELECT progress FROM achievement_progress WHERE user_id = ? AND achievement_id = ?`)
	if err := s.db.QueryRowxContext(ctx, query, user, achievement).Scan(&blob); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.AchievementProgress{}, fmt.Errorf("%w: progress %s/%s", core.ErrNotFound, user, achievement)
		}
		return core.AchievementProgress{}, fmt.Errorf("read progress: %w", err)
	}
	var row core.AchievementProgress
	if err := json.Unmarshal([]byte(blob), &row); err != nil {
		return core.AchievementProgress{}, fmt.Errorf("corrupt progress row: %w", err)
	}
	return row, nil
}
