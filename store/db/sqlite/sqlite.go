package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	// Import the pure-Go SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/mintoctopus/reserve/internal/profile"
	"github.com/mintoctopus/reserve/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens the SQLite database at the profile's DSN.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile == nil {
		return nil, errors.New("profile is nil")
	}

	// WAL keeps reads from blocking the single writer; busy_timeout
	// covers the brief write lock hand-off.
	db, err := sql.Open("sqlite", profile.DSN+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database: %s", profile.DSN)
	}

	// SQLite allows one writer; a single connection sidesteps
	// SQLITE_BUSY entirely at this write volume.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	driver := DB{db: db, profile: profile}
	return &driver, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

// IsInitialized checks whether the record table exists.
func (d *DB) IsInitialized(ctx context.Context) (bool, error) {
	const query = `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'record'`
	var count int
	if err := d.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return false, errors.Wrap(err, "failed to check initialization")
	}
	return count > 0, nil
}

// Migrate creates the record table.
func (d *DB) Migrate(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS record (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			updated_ts BIGINT NOT NULL
		)`
	if _, err := d.db.ExecContext(ctx, ddl); err != nil {
		return errors.Wrap(err, "failed to create record table")
	}
	return nil
}

func (d *DB) GetRecord(ctx context.Context, key string) ([]byte, bool, error) {
	const query = `SELECT value FROM record WHERE key = ?`
	var value []byte
	err := d.db.QueryRowContext(ctx, query, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "failed to get record %q", key)
	}
	return value, true, nil
}

func (d *DB) SetRecord(ctx context.Context, key string, value []byte) error {
	const query = `
		INSERT INTO record (key, value, updated_ts) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_ts = excluded.updated_ts`
	if _, err := d.db.ExecContext(ctx, query, key, value, time.Now().Unix()); err != nil {
		return errors.Wrapf(err, "failed to set record %q", key)
	}
	return nil
}

func (d *DB) DeleteRecord(ctx context.Context, key string) error {
	const query = `DELETE FROM record WHERE key = ?`
	if _, err := d.db.ExecContext(ctx, query, key); err != nil {
		return errors.Wrapf(err, "failed to delete record %q", key)
	}
	return nil
}

func (d *DB) ListRecords(ctx context.Context, prefix string) ([]*store.Record, error) {
	const query = `SELECT key, value, updated_ts FROM record WHERE key LIKE ? || '%' ORDER BY key`
	rows, err := d.db.QueryContext(ctx, query, prefix)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list records with prefix %q", prefix)
	}
	defer rows.Close()

	var records []*store.Record
	for rows.Next() {
		var rec store.Record
		var updatedTS int64
		if err := rows.Scan(&rec.Key, &rec.Value, &updatedTS); err != nil {
			return nil, errors.Wrap(err, "failed to scan record")
		}
		rec.UpdatedAt = time.Unix(updatedTS, 0).UTC()
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate records")
	}
	return records, nil
}
