package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/limits"
)

// SQLiteBackend implements Backend on a SQLite file.
// It is suitable for single-host deployments where several processes share
// one database file; every operation runs in its own transaction.
//
// SQLiteBackend uses a write-ahead log (WAL) for better concurrent performance
// and periodic checkpointing to keep the log bounded. Expired rows are removed
// lazily on access and in bulk by Cleanup.
type SQLiteBackend struct {
	db                 *sql.DB
	dbPath             string
	checkpointInterval time.Duration
	clock              func() time.Time
	done               chan struct{}
	closeOnce          sync.Once
}

var _ Backend = (*SQLiteBackend)(nil)

// SQLiteBackendConfig configures the SQLite backend.
type SQLiteBackendConfig struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// CheckpointInterval is how often to checkpoint the WAL.
	// Default: 5 minutes
	CheckpointInterval time.Duration

	// BusyTimeout is how long to wait for locks held by other processes.
	// Default: 5 seconds
	BusyTimeout time.Duration

	// Clock returns the current time. Used for expiry only.
	// Default: time.Now
	Clock func() time.Time
}

// NewSQLiteBackend creates a new SQLite backend with default settings.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	return NewSQLiteBackendWithConfig(SQLiteBackendConfig{DBPath: dbPath})
}

// NewSQLiteBackendWithConfig creates a new SQLite backend with custom configuration.
func NewSQLiteBackendWithConfig(cfg SQLiteBackendConfig) (*SQLiteBackend, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.CheckpointInterval == 0 {
		cfg.CheckpointInterval = 5 * time.Minute
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_txlock=immediate",
		cfg.DBPath, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	backend := &SQLiteBackend{
		db:                 db,
		dbPath:             cfg.DBPath,
		checkpointInterval: cfg.CheckpointInterval,
		clock:              cfg.Clock,
		done:               make(chan struct{}),
	}

	if err := backend.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	go backend.checkpointLoop()

	return backend, nil
}

// initSchema creates the database schema if it doesn't exist.
func (s *SQLiteBackend) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS counters (
		key TEXT PRIMARY KEY,
		value INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS buckets (
		key TEXT PRIMARY KEY,
		tokens REAL NOT NULL,
		last_refill INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_counters_expires_at ON counters(expires_at);
	CREATE INDEX IF NOT EXISTS idx_buckets_expires_at ON buckets(expires_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Get returns the current value of a counter.
func (s *SQLiteBackend) Get(ctx context.Context, key string) (int64, error) {
	var value int64
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM counters WHERE key = ? AND expires_at > ?`,
		key, s.clock().UnixMilli(),
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, &limits.StoreError{Op: "get", Key: key, Err: err}
	}
	return value, nil
}

// Incr atomically increments a counter, setting its expiry on creation.
func (s *SQLiteBackend) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var value int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		value, err = s.incrTx(ctx, tx, key, ttl)
		return err
	})
	if err != nil {
		return 0, &limits.StoreError{Op: "incr", Key: key, Err: err}
	}
	return value, nil
}

// IncrIfBelow increments a counter only while it is below limit.
func (s *SQLiteBackend) IncrIfBelow(ctx context.Context, key string, limit int64, ttl time.Duration) (int64, bool, error) {
	var (
		value int64
		ok    bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.clock().UnixMilli()
		var current int64
		err := tx.QueryRowContext(ctx,
			`SELECT value FROM counters WHERE key = ? AND expires_at > ?`, key, now,
		).Scan(&current)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if current >= limit {
			value = current
			return nil
		}
		value, err = s.incrTx(ctx, tx, key, ttl)
		ok = err == nil
		return err
	})
	if err != nil {
		return 0, false, &limits.StoreError{Op: "incr_if_below", Key: key, Err: err}
	}
	return value, ok, nil
}

// Decr decrements a counter with a floor of zero.
func (s *SQLiteBackend) Decr(ctx context.Context, key string) (int64, error) {
	var value int64
	err := s.db.QueryRowContext(ctx,
		`UPDATE counters SET value = MAX(value - 1, 0)
		 WHERE key = ? AND expires_at > ?
		 RETURNING value`,
		key, s.clock().UnixMilli(),
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, &limits.StoreError{Op: "decr", Key: key, Err: err}
	}
	return value, nil
}

// Delete removes a counter.
func (s *SQLiteBackend) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM counters WHERE key = ?`, key); err != nil {
		return &limits.StoreError{Op: "delete", Key: key, Err: err}
	}
	return nil
}

// TakeToken refills and takes from the bucket at key inside one transaction.
func (s *SQLiteBackend) TakeToken(ctx context.Context, key string, params BucketParams, now time.Time) (BucketResult, error) {
	var result BucketResult
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		state, err := s.loadBucket(ctx, tx, key, params, now)
		if err != nil {
			return err
		}

		state, result = state.refill(params, now).take(params)

		_, err = tx.ExecContext(ctx,
			`INSERT INTO buckets (key, tokens, last_refill, expires_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT (key) DO UPDATE SET
				tokens = excluded.tokens,
				last_refill = excluded.last_refill,
				expires_at = excluded.expires_at`,
			key, state.Tokens, state.LastRefill.UnixMilli(), s.clock().Add(params.IdleTTL()).UnixMilli(),
		)
		return err
	})
	if err != nil {
		return BucketResult{}, &limits.StoreError{Op: "take_token", Key: key, Err: err}
	}
	return result, nil
}

// PeekTokens returns the refilled token count without consuming.
func (s *SQLiteBackend) PeekTokens(ctx context.Context, key string, params BucketParams, now time.Time) (float64, error) {
	var tokens float64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		state, err := s.loadBucket(ctx, tx, key, params, now)
		if err != nil {
			return err
		}
		tokens = state.refill(params, now).Tokens
		return nil
	})
	if err != nil {
		return 0, &limits.StoreError{Op: "peek_tokens", Key: key, Err: err}
	}
	return tokens, nil
}

// Cleanup removes expired counters and buckets.
func (s *SQLiteBackend) Cleanup(ctx context.Context, now time.Time) (int, error) {
	var deleted int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"counters", "buckets"} {
			res, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE expires_at <= ?`, now.UnixMilli())
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			deleted += n
		}
		return nil
	})
	if err != nil {
		return 0, &limits.StoreError{Op: "cleanup", Err: err}
	}
	return int(deleted), nil
}

// Ping checks that the database is reachable.
func (s *SQLiteBackend) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return &limits.StoreError{Op: "ping", Err: err}
	}
	return nil
}

// Close checkpoints the WAL and closes the database.
func (s *SQLiteBackend) Close() error {
	var closeErr error

	s.closeOnce.Do(func() {
		close(s.done)
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		if err := s.db.Close(); err != nil {
			closeErr = fmt.Errorf("failed to close database: %w", err)
		}
	})

	return closeErr
}

// incrTx upserts a counter, resetting rows that have expired.
func (s *SQLiteBackend) incrTx(ctx context.Context, tx *sql.Tx, key string, ttl time.Duration) (int64, error) {
	now := s.clock()

	var value int64
	err := tx.QueryRowContext(ctx,
		`INSERT INTO counters (key, value, expires_at) VALUES (?, 1, ?)
		 ON CONFLICT (key) DO UPDATE SET
			value = CASE WHEN counters.expires_at > ? THEN counters.value + 1 ELSE 1 END,
			expires_at = CASE WHEN counters.expires_at > ? THEN counters.expires_at ELSE excluded.expires_at END
		 RETURNING value`,
		key, now.Add(ttl).UnixMilli(), now.UnixMilli(), now.UnixMilli(),
	).Scan(&value)
	return value, err
}

// loadBucket reads a bucket, returning a full one when absent or expired.
func (s *SQLiteBackend) loadBucket(ctx context.Context, tx *sql.Tx, key string, params BucketParams, now time.Time) (bucketState, error) {
	var (
		tokens     float64
		lastRefill int64
	)
	err := tx.QueryRowContext(ctx,
		`SELECT tokens, last_refill FROM buckets WHERE key = ? AND expires_at > ?`,
		key, s.clock().UnixMilli(),
	).Scan(&tokens, &lastRefill)
	if errors.Is(err, sql.ErrNoRows) {
		return fullBucket(params, now), nil
	}
	if err != nil {
		return bucketState{}, err
	}
	return bucketState{Tokens: tokens, LastRefill: time.UnixMilli(lastRefill)}, nil
}

// withTx runs fn in a transaction, committing on success.
func (s *SQLiteBackend) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// checkpointLoop runs periodic WAL checkpoints.
func (s *SQLiteBackend) checkpointLoop() {
	ticker := time.NewTicker(s.checkpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(PASSIVE)")
		case <-s.done:
			return
		}
	}
}
